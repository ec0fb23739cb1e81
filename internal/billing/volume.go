package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/vps-billing/internal/metrics"
	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmehdipour/vps-billing/internal/util"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// VolumeCost returns the hourly cost in cents of the given volumes. Sizes
// are summed at full precision and rounded once.
func VolumeCost(volumes []model.Volume, ratePerGBHour decimal.Decimal) (totalGB int64, cents int64) {
	for _, v := range volumes {
		totalGB += v.SizeGB
	}
	cost := decimal.NewFromInt(totalGB).Mul(ratePerGBHour).Round(0)
	return totalGB, cost.IntPart()
}

// BillVolumes charges, per server, one hour of storage for all volumes
// attached to it, as a single transaction.
func (r *Reconciler) BillVolumes(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := r.now()
	lg := r.log.Named("volume")

	servers, err := r.store.ListServers(ctx)
	if err != nil {
		return res, fmt.Errorf("list servers: %w", err)
	}

	for _, srv := range servers {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		vols, err := r.store.ListVolumesByServer(ctx, srv.ID)
		if err != nil {
			lg.Error("list volumes", zap.Int64("server_id", srv.ID), zap.Error(err))
			metrics.ChargesTotal.WithLabelValues("volume", "failed").Inc()
			res.add(outcomeFailed, 0)
			continue
		}
		if len(vols) == 0 {
			continue
		}

		o, cents := r.billServerVolumes(ctx, lg, srv, vols, now)
		res.add(o, cents)
	}

	lg.Info("volume sweep done", zap.Stringer("result", res))
	return res, nil
}

func (r *Reconciler) billServerVolumes(ctx context.Context, lg *zap.Logger, srv model.Server, vols []model.Volume, now time.Time) (outcome, int64) {
	lg = lg.With(zap.Int64("server_id", srv.ID), zap.Int64("account_id", srv.AccountID))

	acct, err := r.store.GetAccount(ctx, srv.AccountID)
	if err != nil {
		lg.Error("load account", zap.Error(err))
		metrics.ChargesTotal.WithLabelValues("volume", "failed").Inc()
		return outcomeFailed, 0
	}
	if acct == nil {
		// Orphaned volumes are reported, not repaired, here.
		lg.Warn("volumes without an account, skipping", zap.Int("volumes", len(vols)))
		return outcomeSkipped, 0
	}

	totalGB, cost := VolumeCost(vols, r.rates.VolumeRate())
	if cost <= 0 {
		return outcomeSkipped, 0
	}
	policy := r.policies.Volume

	_, err = r.store.Settle(ctx, acct.ID, hourKey("vol", srv.ID, now), func(balance int64) (model.Transaction, error) {
		if !policy.covers(balance, cost) {
			return model.Transaction{}, &ShortfallError{Balance: balance, Cost: cost}
		}
		return model.Transaction{
			ID:          util.NewID(now),
			AccountID:   acct.ID,
			ResourceID:  int64Ptr(srv.ID),
			Amount:      -cost,
			Type:        model.TxHourlyVolumeCharge,
			Description: fmt.Sprintf("Hourly storage for %d volume(s), %d GB total, on server %s", len(vols), totalGB, srv.Name),
			Status:      model.TxCompleted,
			CreatedAt:   now,
		}, nil
	})

	var sf *ShortfallError
	switch {
	case err == nil:
		metrics.ChargesTotal.WithLabelValues("volume", "charged").Inc()
		metrics.ChargedCentsTotal.WithLabelValues("volume").Add(float64(cost))
		return outcomeCharged, cost

	case errors.Is(err, ErrAlreadySettled):
		metrics.ChargesTotal.WithLabelValues("volume", "settled").Inc()
		return outcomeSkipped, 0

	case errors.As(err, &sf):
		metrics.ChargesTotal.WithLabelValues("volume", "shortfall").Inc()
		if policy != PolicyDeprovision {
			lg.Warn("insufficient funds for volumes, skipping",
				zap.Int64("balance", sf.Balance), zap.Int64("cost", sf.Cost))
			return outcomeSkipped, 0
		}
		if err := r.deprovisionVolumes(ctx, lg, srv, acct.ID, vols, sf, now); err != nil {
			lg.Error("deprovision volumes on shortfall", zap.Error(err))
			return outcomeFailed, 0
		}
		return outcomeDeprovisioned, 0

	default:
		lg.Error("settle volume charge", zap.Error(err))
		metrics.ChargesTotal.WithLabelValues("volume", "failed").Inc()
		return outcomeFailed, 0
	}
}

func (r *Reconciler) deprovisionVolumes(ctx context.Context, lg *zap.Logger, srv model.Server, accountID int64, vols []model.Volume, sf *ShortfallError, now time.Time) error {
	for _, v := range vols {
		if err := r.gateway.DeleteVolume(ctx, v.ProviderID); err != nil {
			return fmt.Errorf("gateway delete volume %d: %w", v.ID, err)
		}
		if err := r.store.DeleteVolume(ctx, v.ID); err != nil {
			return fmt.Errorf("delete volume record %d: %w", v.ID, err)
		}
		metrics.DeprovisionsTotal.WithLabelValues("volume", "insufficient_funds").Inc()
	}

	_, err := r.store.Settle(ctx, accountID, hourKey("vdel", srv.ID, now), func(balance int64) (model.Transaction, error) {
		return model.Transaction{
			ID:          util.NewID(now),
			AccountID:   accountID,
			ResourceID:  int64Ptr(srv.ID),
			Amount:      0,
			Type:        model.TxVolumesDeletedInsufficient,
			Description: fmt.Sprintf("%d volume(s) on server %s deleted: balance %d¢ below charge %d¢", len(vols), srv.Name, sf.Balance, sf.Cost),
			Status:      model.TxCompleted,
			CreatedAt:   now,
		}, nil
	})
	if err != nil && !errors.Is(err, ErrAlreadySettled) {
		lg.Error("record volume deletion transaction", zap.Error(err))
	}
	return nil
}
