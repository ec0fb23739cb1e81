package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/vps-billing/internal/billing"
	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return NewStore(sqlx.NewDb(raw, "mysql")), mock
}

func charge(amount int64) billing.DecideFunc {
	return func(balance int64) (model.Transaction, error) {
		if balance < amount {
			return model.Transaction{}, &billing.ShortfallError{Balance: balance, Cost: amount}
		}
		return model.Transaction{
			ID:        "01JTESTTXN",
			Amount:    -amount,
			Type:      model.TxHourlyServerCharge,
			CreatedAt: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
		}, nil
	}
}

func TestSettleCommitsLedgerBalanceAndOutbox(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT balance\s+FROM accounts\s+WHERE id = \?\s+FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(1000))
	mock.ExpectQuery(`SELECT 1 FROM transactions WHERE idempotency_key = \?`).
		WithArgs("srv-10-2026031510").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE accounts`).WithArgs(int64(-700), int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO outbox`).
		WithArgs("transaction", "01JTESTTXN", TransactionsTopic, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	txn, err := store.Settle(context.Background(), 1, "srv-10-2026031510", charge(700))
	require.NoError(t, err)
	assert.EqualValues(t, -700, txn.Amount)
	assert.EqualValues(t, 1, txn.AccountID)
	assert.Equal(t, "srv-10-2026031510", txn.IdempotencyKey)
	assert.Equal(t, model.TxCompleted, txn.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleAlreadySettled(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM accounts`).WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(1000))
	mock.ExpectQuery(`FROM transactions`).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	_, err := store.Settle(context.Background(), 1, "srv-10-2026031510", charge(700))
	assert.ErrorIs(t, err, billing.ErrAlreadySettled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleShortfallRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM accounts`).WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(500))
	mock.ExpectQuery(`FROM transactions`).WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectRollback()

	_, err := store.Settle(context.Background(), 1, "srv-10-2026031510", charge(700))
	var sf *billing.ShortfallError
	require.True(t, errors.As(err, &sf))
	assert.EqualValues(t, 500, sf.Balance)
	assert.ErrorIs(t, err, billing.ErrInsufficientFunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleMissingAccount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM accounts`).WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectRollback()

	_, err := store.Settle(context.Background(), 1, "k", charge(1))
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleDuplicateInsertMapsToAlreadySettled(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM accounts`).WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(1000))
	mock.ExpectQuery(`FROM transactions`).WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectExec(`INSERT INTO transactions`).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	_, err := store.Settle(context.Background(), 1, "k", charge(1))
	assert.ErrorIs(t, err, billing.ErrAlreadySettled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestZeroAmountSettleSkipsBalanceUpdate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM accounts`).WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(500))
	mock.ExpectQuery(`FROM transactions`).WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO outbox`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	txn, err := store.Settle(context.Background(), 1, "del-10", func(int64) (model.Transaction, error) {
		return model.Transaction{Type: model.TxServerDeletedInsufficient}, nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, txn.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAccountNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM accounts`).WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "balance", "suspended", "created_at", "updated_at"}))

	acct, err := store.GetAccount(context.Background(), 9)
	require.NoError(t, err)
	assert.Nil(t, acct)
}

func TestDepositRejectsNonPositive(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.Deposit(context.Background(), 1, 0, "req-1")
	assert.Error(t, err)
}
