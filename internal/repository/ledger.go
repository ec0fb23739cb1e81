package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmoiron/sqlx"
)

// ErrDuplicateKey reports a ledger row whose idempotency key already exists.
var ErrDuplicateKey = errors.New("duplicate idempotency key")

const mysqlDupEntry = 1062

type LedgerRepository interface {
	ExistsByIdem(ctx context.Context, tx *sqlx.Tx, idem string) (bool, error)
	Insert(ctx context.Context, tx *sqlx.Tx, t model.Transaction) error
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]model.Transaction, error)
}

type ledgerRepo struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) LedgerRepository { return &ledgerRepo{db: db} }

// ExistsByIdem checks if a ledger row with the given idempotency key already exists.
func (r *ledgerRepo) ExistsByIdem(ctx context.Context, tx *sqlx.Tx, idem string) (bool, error) {
	var one int
	err := tx.QueryRowxContext(ctx,
		`SELECT 1 FROM transactions WHERE idempotency_key = ? LIMIT 1`, idem,
	).Scan(&one)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ledgerRepo) Insert(ctx context.Context, tx *sqlx.Tx, t model.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions
		    (id, account_id, resource_id, amount, type, description, status, idempotency_key, created_at)
		VALUES
		    (?,  ?,          ?,           ?,      ?,    ?,           ?,      ?,               ?)
	`, t.ID, t.AccountID, t.ResourceID, t.Amount, t.Type.String(), t.Description, string(t.Status), t.IdempotencyKey, t.CreatedAt)

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDupEntry {
		return ErrDuplicateKey
	}
	return err
}

func (r *ledgerRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]model.Transaction, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	var rows []model.Transaction
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, resource_id, amount, type, description, status, idempotency_key, created_at
		  FROM transactions
		 WHERE account_id = ?
		 ORDER BY id DESC
		 LIMIT ?
	`, accountID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
