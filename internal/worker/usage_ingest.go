package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/vps-billing/internal/kafka"
	"github.com/jmehdipour/vps-billing/internal/metrics"
	"github.com/jmehdipour/vps-billing/internal/model"
	"go.uber.org/zap"
)

// Source is the subset of kafka.Consumer the ingest loop needs.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Sink stores a batch of samples; UsageRepository.InsertBatch satisfies it.
type Sink interface {
	InsertBatch(ctx context.Context, rows []model.UsageMetric) error
}

// UsageIngest:
// - fetches usage samples from Kafka,
// - batches them by size/time into ClickHouse,
// - commits offsets only after the batch holding them is stored.
type UsageIngest struct {
	Source    Source
	Sink      Sink
	Log       *zap.Logger
	BatchSize int
	BatchWait time.Duration
}

func NewUsageIngest(src Source, sink Sink, log *zap.Logger) *UsageIngest {
	if log == nil {
		log = zap.NewNop()
	}
	return &UsageIngest{
		Source:    src,
		Sink:      sink,
		Log:       log,
		BatchSize: 500,
		BatchWait: 2 * time.Second,
	}
}

// DecodeSample parses one message value. Samples without a server id or
// timestamp are rejected.
func DecodeSample(b []byte) (model.UsageMetric, error) {
	var m model.UsageMetric
	if err := json.Unmarshal(b, &m); err != nil {
		return model.UsageMetric{}, err
	}
	if m.ServerID <= 0 {
		return model.UsageMetric{}, errors.New("missing server_id")
	}
	if m.SampledAt.IsZero() {
		return model.UsageMetric{}, errors.New("missing sampled_at")
	}
	m.SampledAt = m.SampledAt.UTC()
	return m, nil
}

// Run blocks until ctx is cancelled, then flushes what it holds.
func (w *UsageIngest) Run(ctx context.Context) error {
	if w.Source == nil || w.Sink == nil {
		return errors.New("usage-ingest: source and sink are required")
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 500
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 2 * time.Second
	}

	msgCh := make(chan kafka.Message, w.BatchSize)
	go w.fetch(ctx, msgCh)

	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	var (
		rows    []model.UsageMetric
		pending []kafka.Message // every fetched message, malformed included
	)

	flush := func(ctx context.Context) bool {
		if len(pending) == 0 {
			return true
		}
		if len(rows) > 0 {
			if err := w.Sink.InsertBatch(ctx, rows); err != nil {
				metrics.UsageSamplesTotal.WithLabelValues("failed").Add(float64(len(rows)))
				w.Log.Error("usage batch insert failed, will retry", zap.Int("rows", len(rows)), zap.Error(err))
				return false
			}
			metrics.UsageSamplesTotal.WithLabelValues("stored").Add(float64(len(rows)))
		}
		if err := w.Source.Commit(ctx, pending...); err != nil {
			// rows are stored; a redelivery is collapsed by the table engine
			w.Log.Warn("usage offset commit failed", zap.Int("messages", len(pending)), zap.Error(err))
		}
		w.Log.Debug("usage batch flushed", zap.Int("rows", len(rows)), zap.Int("messages", len(pending)))
		rows = rows[:0]
		pending = pending[:0]
		return true
	}

	in := msgCh
	for {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			flush(sctx)
			cancel()
			return nil

		case m, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			pending = append(pending, m)
			sample, err := DecodeSample(m.Value)
			if err != nil {
				metrics.UsageSamplesTotal.WithLabelValues("malformed").Inc()
				w.Log.Warn("dropping malformed usage sample",
					zap.Int("partition", m.Partition),
					zap.Int64("offset", m.Offset),
					zap.Error(err))
			} else {
				rows = append(rows, sample)
			}
			if len(pending) >= w.BatchSize && !flush(ctx) {
				// stop reading until the sink accepts the batch
				in = nil
			}

		case <-tick.C:
			if flush(ctx) && in == nil {
				in = msgCh
			}
		}
	}
}

func (w *UsageIngest) fetch(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)
	for {
		m, err := w.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Log.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

func (w *UsageIngest) String() string {
	return fmt.Sprintf("usage-ingest batch=%d wait=%s", w.BatchSize, w.BatchWait)
}
