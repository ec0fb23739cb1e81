package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmoiron/sqlx"
)

// UsageRepository reads and appends network usage samples in ClickHouse.
type UsageRepository interface {
	QueryUsage(ctx context.Context, serverID int64, from, to time.Time) ([]model.UsageMetric, error)
	InsertBatch(ctx context.Context, rows []model.UsageMetric) error
}

type chUsageRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewUsageRepository(ch *sqlx.DB) UsageRepository {
	return &chUsageRepository{ch: ch}
}

// QueryUsage returns samples with from <= sampled_at < to.
func (r *chUsageRepository) QueryUsage(ctx context.Context, serverID int64, from, to time.Time) ([]model.UsageMetric, error) {
	const q = `
		SELECT server_id, network_in, network_out, sampled_at
		FROM usage_metrics FINAL
		WHERE server_id = ? AND sampled_at >= ? AND sampled_at < ?
		ORDER BY sampled_at
	`
	var rows []model.UsageMetric
	if err := r.ch.SelectContext(ctx, &rows, q, serverID, from.UTC(), to.UTC()); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertBatch appends samples as one ClickHouse block.
func (r *chUsageRepository) InsertBatch(ctx context.Context, rows []model.UsageMetric) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO usage_metrics (server_id, network_in, network_out, sampled_at)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, m := range rows {
		if _, err := stmt.ExecContext(ctx, m.ServerID, m.NetworkIn, m.NetworkOut, m.SampledAt.UTC()); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	return tx.Commit()
}
