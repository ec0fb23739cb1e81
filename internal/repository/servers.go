package repository

import (
	"context"

	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmoiron/sqlx"
)

type ServersRepository interface {
	ListAll(ctx context.Context) ([]model.Server, error)
	Create(ctx context.Context, s model.Server) (int64, error)
	Delete(ctx context.Context, id int64) error
}

type ServersRepositoryImpl struct {
	db *sqlx.DB
}

func NewServersRepository(db *sqlx.DB) *ServersRepositoryImpl {
	return &ServersRepositoryImpl{db: db}
}

var _ ServersRepository = (*ServersRepositoryImpl)(nil)

func (r *ServersRepositoryImpl) ListAll(ctx context.Context) ([]model.Server, error) {
	var rows []model.Server
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, name, size_slug, status, provider_id, created_at
		  FROM servers
		 ORDER BY id
	`); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ServersRepositoryImpl) Create(ctx context.Context, s model.Server) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO servers (account_id, name, size_slug, status, provider_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.AccountID, s.Name, s.SizeSlug, s.Status.String(), s.ProviderID, s.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Delete removes the server row. Volumes attached to it are detached by the
// foreign key (ON DELETE SET NULL).
func (r *ServersRepositoryImpl) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	return err
}
