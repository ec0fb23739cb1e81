// Package kafka wraps the segmentio reader used to consume usage samples.
package kafka

import (
	"context"
	"time"

	"github.com/jmehdipour/vps-billing/internal/config"
	"github.com/segmentio/kafka-go"
)

type Message = kafka.Message

// Consumer reads one topic inside a consumer group. Offsets are committed
// explicitly so a sample is only acknowledged once it has been stored.
type Consumer struct {
	r     *kafka.Reader
	topic string
}

// NewUsageConsumer builds a reader for cfg.UsageTopic.
func NewUsageConsumer(cfg config.KafkaConfig) *Consumer {
	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = 1 << 10
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "vpsbill-usage"
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  groupID,
		Topic:    cfg.UsageTopic,
		MinBytes: minBytes,
		MaxBytes: maxBytes,
		// 0 keeps commits synchronous with the flush that stored the batch
		CommitInterval: time.Duration(cfg.CommitInterval) * time.Millisecond,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
	})

	return &Consumer{r: r, topic: cfg.UsageTopic}
}

func (c *Consumer) Topic() string   { return c.topic }
func (c *Consumer) GroupID() string { return c.r.Config().GroupID }

// Fetch returns the next message without committing it.
func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

// Commit marks msgs as processed; kafka-go keeps the highest offset per partition.
func (c *Consumer) Commit(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return c.r.CommitMessages(ctx, msgs...)
}

// Lag is the reader's last known lag behind the partition head.
func (c *Consumer) Lag() int64 { return c.r.Stats().Lag }

func (c *Consumer) Close() error { return c.r.Close() }
