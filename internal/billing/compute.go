package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/vps-billing/internal/metrics"
	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmehdipour/vps-billing/internal/util"
	"go.uber.org/zap"
)

// BillCompute charges every server, whatever its status, one hour of its
// size class price. Servers whose owning account no longer exists are
// deprovisioned and removed without a ledger entry.
func (r *Reconciler) BillCompute(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := r.now()
	lg := r.log.Named("compute")

	servers, err := r.store.ListServers(ctx)
	if err != nil {
		return res, fmt.Errorf("list servers: %w", err)
	}

	for _, srv := range servers {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		o, cents := r.billServer(ctx, lg, srv, now)
		res.add(o, cents)
	}

	lg.Info("compute sweep done", zap.Stringer("result", res))
	return res, nil
}

func (r *Reconciler) billServer(ctx context.Context, lg *zap.Logger, srv model.Server, now time.Time) (outcome, int64) {
	lg = lg.With(zap.Int64("server_id", srv.ID), zap.Int64("account_id", srv.AccountID))

	acct, err := r.store.GetAccount(ctx, srv.AccountID)
	if err != nil {
		lg.Error("load account", zap.Error(err))
		metrics.ChargesTotal.WithLabelValues("compute", "failed").Inc()
		return outcomeFailed, 0
	}
	if acct == nil {
		return r.repairOrphan(ctx, lg, srv)
	}

	size, known := r.rates.Lookup(srv.SizeSlug)
	if !known {
		lg.Warn("unknown size class, billing at default tier",
			zap.String("size", srv.SizeSlug), zap.String("fallback", size.Slug))
	}
	price := size.HourlyCents
	policy := r.policies.Compute

	txn, err := r.store.Settle(ctx, acct.ID, hourKey("srv", srv.ID, now), func(balance int64) (model.Transaction, error) {
		if !policy.covers(balance, price) {
			return model.Transaction{}, &ShortfallError{Balance: balance, Cost: price}
		}
		return model.Transaction{
			ID:          util.NewID(now),
			AccountID:   acct.ID,
			ResourceID:  int64Ptr(srv.ID),
			Amount:      -price,
			Type:        model.TxHourlyServerCharge,
			Description: fmt.Sprintf("Hourly charge for server %s (%s)", srv.Name, size.Slug),
			Status:      model.TxCompleted,
			CreatedAt:   now,
		}, nil
	})

	var sf *ShortfallError
	switch {
	case err == nil:
		metrics.ChargesTotal.WithLabelValues("compute", "charged").Inc()
		metrics.ChargedCentsTotal.WithLabelValues("compute").Add(float64(price))
		return outcomeCharged, -txn.Amount

	case errors.Is(err, ErrAlreadySettled):
		lg.Debug("hour already billed")
		metrics.ChargesTotal.WithLabelValues("compute", "settled").Inc()
		return outcomeSkipped, 0

	case errors.As(err, &sf):
		metrics.ChargesTotal.WithLabelValues("compute", "shortfall").Inc()
		if policy == PolicySkip {
			lg.Warn("insufficient funds for server, skipping",
				zap.Int64("balance", sf.Balance), zap.Int64("cost", sf.Cost))
			return outcomeSkipped, 0
		}
		if err := r.deprovisionServer(ctx, lg, srv, acct.ID, sf, now); err != nil {
			lg.Error("deprovision server on shortfall", zap.Error(err))
			return outcomeFailed, 0
		}
		return outcomeDeprovisioned, 0

	default:
		lg.Error("settle server charge", zap.Error(err))
		metrics.ChargesTotal.WithLabelValues("compute", "failed").Inc()
		return outcomeFailed, 0
	}
}

// repairOrphan removes a server whose account is gone. No charge and no
// ledger entry: there is no account to attach either to.
func (r *Reconciler) repairOrphan(ctx context.Context, lg *zap.Logger, srv model.Server) (outcome, int64) {
	lg.Warn("orphaned server, deprovisioning", zap.String("provider_id", srv.ProviderID))

	if err := r.gateway.DeleteCompute(ctx, srv.ProviderID); err != nil {
		lg.Error("deprovision orphaned server", zap.Error(err))
		return outcomeFailed, 0
	}
	if err := r.store.DeleteServer(ctx, srv.ID); err != nil {
		lg.Error("delete orphaned server record", zap.Error(err))
		return outcomeFailed, 0
	}
	metrics.DeprovisionsTotal.WithLabelValues("server", "orphaned").Inc()
	return outcomeDeprovisioned, 0
}

// deprovisionServer deletes the server at the provider and in the store,
// then records a zero-amount audit transaction. Nothing is charged.
func (r *Reconciler) deprovisionServer(ctx context.Context, lg *zap.Logger, srv model.Server, accountID int64, sf *ShortfallError, now time.Time) error {
	if err := r.gateway.DeleteCompute(ctx, srv.ProviderID); err != nil {
		return fmt.Errorf("gateway delete: %w", err)
	}
	if err := r.store.DeleteServer(ctx, srv.ID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	metrics.DeprovisionsTotal.WithLabelValues("server", "insufficient_funds").Inc()

	key := fmt.Sprintf("del-%d", srv.ID)
	_, err := r.store.Settle(ctx, accountID, key, func(balance int64) (model.Transaction, error) {
		return model.Transaction{
			ID:         util.NewID(now),
			AccountID:  accountID,
			ResourceID: int64Ptr(srv.ID),
			Amount:     0,
			Type:       model.TxServerDeletedInsufficient,
			Description: fmt.Sprintf("Server %s deleted: balance %d¢ below charge %d¢ (short %d¢)",
				srv.Name, sf.Balance, sf.Cost, sf.Cost-sf.Balance),
			Status:    model.TxCompleted,
			CreatedAt: now,
		}, nil
	})
	if err != nil && !errors.Is(err, ErrAlreadySettled) {
		// The server is already gone; only the audit row is missing.
		lg.Error("record deletion transaction", zap.Error(err))
	}

	lg.Warn("server deleted for insufficient funds",
		zap.Int64("balance", sf.Balance), zap.Int64("cost", sf.Cost))
	return nil
}
