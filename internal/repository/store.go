package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/vps-billing/internal/billing"
	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmehdipour/vps-billing/internal/util"
	"github.com/jmoiron/sqlx"
)

// Store is the MySQL resource store used by the billing sweeps.
type Store struct {
	db       *sqlx.DB
	accounts AccountsRepository
	servers  ServersRepository
	volumes  VolumesRepository
	ledger   LedgerRepository
	outbox   OutboxRepository
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:       db,
		accounts: NewAccountsRepository(db),
		servers:  NewServersRepository(db),
		volumes:  NewVolumesRepository(db),
		ledger:   NewLedgerRepository(db),
		outbox:   NewOutboxRepository(),
	}
}

var _ billing.Store = (*Store)(nil)

func (s *Store) ListServers(ctx context.Context) ([]model.Server, error) {
	return s.servers.ListAll(ctx)
}

func (s *Store) ListVolumesByServer(ctx context.Context, serverID int64) ([]model.Volume, error) {
	return s.volumes.ListByServer(ctx, serverID)
}

func (s *Store) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	return s.accounts.Get(ctx, accountID)
}

func (s *Store) DeleteServer(ctx context.Context, serverID int64) error {
	return s.servers.Delete(ctx, serverID)
}

func (s *Store) DeleteVolume(ctx context.Context, volumeID int64) error {
	return s.volumes.Delete(ctx, volumeID)
}

// Settle locks the account row, then checks the idempotency key, so a
// concurrent settle of the same key blocks and then sees the committed row.
// Ledger row, balance change and outbox event commit together.
func (s *Store) Settle(ctx context.Context, accountID int64, key string, decide billing.DecideFunc) (model.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	bal, found, err := s.accounts.GetBalanceForUpdate(ctx, tx, accountID)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("lock account: %w", err)
	}
	if !found {
		return model.Transaction{}, billing.ErrAccountNotFound
	}

	exists, err := s.ledger.ExistsByIdem(ctx, tx, key)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("ledger idem check: %w", err)
	}
	if exists {
		return model.Transaction{}, billing.ErrAlreadySettled
	}

	txn, err := decide(bal)
	if err != nil {
		return model.Transaction{}, err
	}
	txn.AccountID = accountID
	txn.IdempotencyKey = key
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	if txn.ID == "" {
		txn.ID = util.NewID(txn.CreatedAt)
	}
	if txn.Status == "" {
		txn.Status = model.TxCompleted
	}

	if err := s.ledger.Insert(ctx, tx, txn); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return model.Transaction{}, billing.ErrAlreadySettled
		}
		return model.Transaction{}, fmt.Errorf("ledger insert: %w", err)
	}

	if txn.Amount != 0 {
		if err := s.accounts.Adjust(ctx, tx, accountID, txn.Amount); err != nil {
			return model.Transaction{}, fmt.Errorf("adjust balance: %w", err)
		}
	}

	payload, err := json.Marshal(txn)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("marshal transaction: %w", err)
	}
	ev := model.OutboxEvent{
		Aggregate:   "transaction",
		AggregateID: txn.ID,
		Topic:       TransactionsTopic,
		Payload:     payload,
	}
	if err := s.outbox.Insert(ctx, tx, ev); err != nil {
		return model.Transaction{}, fmt.Errorf("insert outbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return txn, nil
}

// Deposit credits an account (idempotent per requestID).
func (s *Store) Deposit(ctx context.Context, accountID, amount int64, requestID string) (model.Transaction, error) {
	if amount <= 0 {
		return model.Transaction{}, fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	return s.Settle(ctx, accountID, "dep-"+requestID, func(int64) (model.Transaction, error) {
		return model.Transaction{
			Amount:      amount,
			Type:        model.TxDeposit,
			Description: fmt.Sprintf("Deposit %s", requestID),
		}, nil
	})
}

func (s *Store) CreateAccount(ctx context.Context, a model.Account) (int64, error) {
	return s.accounts.Create(ctx, a)
}

func (s *Store) CreateServer(ctx context.Context, srv model.Server) (int64, error) {
	return s.servers.Create(ctx, srv)
}

func (s *Store) CreateVolume(ctx context.Context, v model.Volume) (int64, error) {
	return s.volumes.Create(ctx, v)
}

func (s *Store) Transactions(ctx context.Context, accountID int64, limit int) ([]model.Transaction, error) {
	return s.ledger.ListByAccount(ctx, accountID, limit)
}
