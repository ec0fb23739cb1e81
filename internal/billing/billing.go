// Package billing runs the usage-based billing sweeps: hourly compute
// charges, hourly volume charges and the monthly bandwidth overage
// settlement. Each sweep walks every resource sequentially; a failure on
// one resource is logged and never aborts the sweep.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmehdipour/vps-billing/internal/pricing"
	"go.uber.org/zap"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAlreadySettled is returned by Store.Settle when the idempotency key
	// is already in the ledger.
	ErrAlreadySettled  = errors.New("already settled")
	ErrAccountNotFound = errors.New("account not found")
)

// ShortfallError carries the balance and cost that triggered a shortfall.
type ShortfallError struct {
	Balance int64
	Cost    int64
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient funds: balance=%d cost=%d", e.Balance, e.Cost)
}

func (e *ShortfallError) Unwrap() error { return ErrInsufficientFunds }

// DecideFunc sees the locked balance and returns the ledger row to apply.
// Returning an error rolls the settlement back.
type DecideFunc func(balance int64) (model.Transaction, error)

// Store is the resource and ledger store the sweeps read and mutate.
type Store interface {
	ListServers(ctx context.Context) ([]model.Server, error)
	ListVolumesByServer(ctx context.Context, serverID int64) ([]model.Volume, error)
	// GetAccount returns nil, nil when the account does not exist.
	GetAccount(ctx context.Context, accountID int64) (*model.Account, error)
	DeleteServer(ctx context.Context, serverID int64) error
	DeleteVolume(ctx context.Context, volumeID int64) error
	// Settle locks the account balance, calls decide with it, then applies
	// the returned transaction amount and appends it to the ledger as one
	// atomic unit under the given idempotency key.
	Settle(ctx context.Context, accountID int64, key string, decide DecideFunc) (model.Transaction, error)
}

type UsageStore interface {
	QueryUsage(ctx context.Context, serverID int64, from, to time.Time) ([]model.UsageMetric, error)
}

// Gateway deprovisions resources at the cloud provider. A resource that is
// already gone must be reported as success.
type Gateway interface {
	DeleteCompute(ctx context.Context, providerID string) error
	DeleteVolume(ctx context.Context, providerID string) error
}

type Options struct {
	Policies Policies
	Now      func() time.Time
	Logger   *zap.Logger
}

type Reconciler struct {
	store    Store
	usage    UsageStore
	gateway  Gateway
	rates    *pricing.Table
	policies Policies
	now      func() time.Time
	log      *zap.Logger
}

func New(store Store, usage UsageStore, gateway Gateway, rates *pricing.Table, opts Options) *Reconciler {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	pol := opts.Policies.withDefaults()
	return &Reconciler{
		store:    store,
		usage:    usage,
		gateway:  gateway,
		rates:    rates,
		policies: pol,
		now:      nowFn,
		log:      lg.Named("billing"),
	}
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Processed     int
	Charged       int
	Skipped       int
	Deprovisioned int
	Failed        int
	ChargedCents  int64
}

func (r SweepResult) String() string {
	return fmt.Sprintf("processed=%d charged=%d skipped=%d deprovisioned=%d failed=%d cents=%d",
		r.Processed, r.Charged, r.Skipped, r.Deprovisioned, r.Failed, r.ChargedCents)
}

type outcome int

const (
	outcomeCharged outcome = iota
	outcomeSkipped
	outcomeDeprovisioned
	outcomeFailed
)

func (r *SweepResult) add(o outcome, cents int64) {
	r.Processed++
	switch o {
	case outcomeCharged:
		r.Charged++
		r.ChargedCents += cents
	case outcomeSkipped:
		r.Skipped++
	case outcomeDeprovisioned:
		r.Deprovisioned++
	case outcomeFailed:
		r.Failed++
	}
}

func hourKey(prefix string, id int64, at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", prefix, id, at.UTC().Format("2006010215"))
}

func int64Ptr(v int64) *int64 { return &v }
