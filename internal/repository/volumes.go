package repository

import (
	"context"

	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmoiron/sqlx"
)

type VolumesRepository interface {
	ListByServer(ctx context.Context, serverID int64) ([]model.Volume, error)
	Create(ctx context.Context, v model.Volume) (int64, error)
	Delete(ctx context.Context, id int64) error
}

type VolumesRepositoryImpl struct {
	db *sqlx.DB
}

func NewVolumesRepository(db *sqlx.DB) *VolumesRepositoryImpl {
	return &VolumesRepositoryImpl{db: db}
}

var _ VolumesRepository = (*VolumesRepositoryImpl)(nil)

func (r *VolumesRepositoryImpl) ListByServer(ctx context.Context, serverID int64) ([]model.Volume, error) {
	var rows []model.Volume
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, server_id, name, size_gb, provider_id, created_at
		  FROM volumes
		 WHERE server_id = ?
		 ORDER BY id
	`, serverID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *VolumesRepositoryImpl) Create(ctx context.Context, v model.Volume) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO volumes (account_id, server_id, name, size_gb, provider_id, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())
	`, v.AccountID, v.ServerID, v.Name, v.SizeGB, v.ProviderID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *VolumesRepositoryImpl) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM volumes WHERE id = ?`, id)
	return err
}
