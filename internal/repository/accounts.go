package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmoiron/sqlx"
)

type AccountsRepository interface {
	Get(ctx context.Context, id int64) (*model.Account, error)
	Create(ctx context.Context, a model.Account) (int64, error)
	GetBalanceForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (balance int64, found bool, err error)
	Adjust(ctx context.Context, tx *sqlx.Tx, id, delta int64) error
}

type AccountsRepositoryImpl struct {
	db *sqlx.DB
}

func NewAccountsRepository(db *sqlx.DB) *AccountsRepositoryImpl {
	return &AccountsRepositoryImpl{db: db}
}

var _ AccountsRepository = (*AccountsRepositoryImpl)(nil)

// Get returns nil, nil when the account does not exist.
func (r *AccountsRepositoryImpl) Get(ctx context.Context, id int64) (*model.Account, error) {
	var a model.Account
	err := r.db.GetContext(ctx, &a, `
		SELECT id, email, balance, suspended, created_at, updated_at
		  FROM accounts
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts an account with a zero balance; funds arrive as deposits.
func (r *AccountsRepositoryImpl) Create(ctx context.Context, a model.Account) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (email, balance, suspended, created_at, updated_at)
		VALUES (?, 0, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id), updated_at = VALUES(updated_at)
	`, a.Email, a.Suspended)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *AccountsRepositoryImpl) GetBalanceForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (int64, bool, error) {
	var bal int64
	err := tx.QueryRowxContext(ctx, `
		SELECT balance
		FROM accounts
		WHERE id = ?
		FOR UPDATE
	`, id).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return bal, true, nil
}

func (r *AccountsRepositoryImpl) Adjust(ctx context.Context, tx *sqlx.Tx, id, delta int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance + ?, updated_at = NOW()
		WHERE id = ?
	`, delta, id)
	return err
}
