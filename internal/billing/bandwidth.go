package billing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jmehdipour/vps-billing/internal/metrics"
	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmehdipour/vps-billing/internal/util"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var bytesPerGB = decimal.NewFromInt(1 << 30)

// BytesToGB converts a byte counter to GiB at full precision.
func BytesToGB(b uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(b), 0).Div(bytesPerGB)
}

// OverageCost prices usage above the included allowance as a fraction of
// the tier's hourly price per GB. Returns zero when usage is within the
// allowance.
func OverageCost(usageGB decimal.Decimal, includedGB, hourlyCents int64, rate decimal.Decimal) (overageGB decimal.Decimal, cents int64) {
	overageGB = usageGB.Sub(decimal.NewFromInt(includedGB))
	if !overageGB.IsPositive() {
		return decimal.Zero, 0
	}
	cost := overageGB.Mul(decimal.NewFromInt(hourlyCents)).Mul(rate).Round(0)
	return overageGB, cost.IntPart()
}

// SettleBandwidth charges bandwidth overage for active servers whose
// billing-cycle anniversary is today. Every other server is left alone
// until its own anniversary. Overage is debited even past zero under the
// default policy.
func (r *Reconciler) SettleBandwidth(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := r.now()
	lg := r.log.Named("bandwidth")

	servers, err := r.store.ListServers(ctx)
	if err != nil {
		return res, fmt.Errorf("list servers: %w", err)
	}

	for _, srv := range servers {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !srv.Active() || !IsAnniversary(srv.CreatedAt, now) {
			continue
		}
		o, cents := r.settleServerBandwidth(ctx, lg, srv, now)
		res.add(o, cents)
	}

	lg.Info("bandwidth sweep done", zap.Stringer("result", res))
	return res, nil
}

func (r *Reconciler) settleServerBandwidth(ctx context.Context, lg *zap.Logger, srv model.Server, now time.Time) (outcome, int64) {
	start, end := BillingPeriod(srv.CreatedAt, now)
	lg = lg.With(
		zap.Int64("server_id", srv.ID),
		zap.Int64("account_id", srv.AccountID),
		zap.Time("period_start", start),
		zap.Time("period_end", end),
	)

	acct, err := r.store.GetAccount(ctx, srv.AccountID)
	if err != nil {
		lg.Error("load account", zap.Error(err))
		metrics.ChargesTotal.WithLabelValues("bandwidth", "failed").Inc()
		return outcomeFailed, 0
	}
	if acct == nil {
		lg.Warn("server without an account, skipping overage")
		return outcomeSkipped, 0
	}

	samples, err := r.usage.QueryUsage(ctx, srv.ID, start, end.AddDate(0, 0, 1))
	if err != nil {
		lg.Error("query usage", zap.Error(err))
		metrics.ChargesTotal.WithLabelValues("bandwidth", "failed").Inc()
		return outcomeFailed, 0
	}
	var total uint64
	for _, s := range samples {
		total += s.Total()
	}
	usageGB := BytesToGB(total)

	size, known := r.rates.Lookup(srv.SizeSlug)
	if !known {
		lg.Warn("unknown size class, using default tier allowance",
			zap.String("size", srv.SizeSlug), zap.String("fallback", size.Slug))
	}
	overageGB, cost := OverageCost(usageGB, size.BandwidthGB, size.HourlyCents, r.rates.OverageRate())
	if cost <= 0 {
		lg.Debug("usage within allowance", zap.String("usage_gb", usageGB.StringFixed(2)))
		return outcomeSkipped, 0
	}
	policy := r.policies.Bandwidth

	key := fmt.Sprintf("bw-%d-%s", srv.ID, start.Format("20060102"))
	_, err = r.store.Settle(ctx, acct.ID, key, func(balance int64) (model.Transaction, error) {
		if !policy.covers(balance, cost) {
			return model.Transaction{}, &ShortfallError{Balance: balance, Cost: cost}
		}
		return model.Transaction{
			ID:         util.NewID(now),
			AccountID:  acct.ID,
			ResourceID: int64Ptr(srv.ID),
			Amount:     -cost,
			Type:       model.TxBandwidthOverage,
			Description: fmt.Sprintf("Bandwidth overage for server %s, %s to %s: %s GB used, %d GB included, %s GB over",
				srv.Name, start.Format("2006-01-02"), end.Format("2006-01-02"),
				usageGB.StringFixed(2), size.BandwidthGB, overageGB.StringFixed(2)),
			Status:    model.TxCompleted,
			CreatedAt: now,
		}, nil
	})

	var sf *ShortfallError
	switch {
	case err == nil:
		metrics.ChargesTotal.WithLabelValues("bandwidth", "charged").Inc()
		metrics.ChargedCentsTotal.WithLabelValues("bandwidth").Add(float64(cost))
		return outcomeCharged, cost

	case errors.Is(err, ErrAlreadySettled):
		metrics.ChargesTotal.WithLabelValues("bandwidth", "settled").Inc()
		return outcomeSkipped, 0

	case errors.As(err, &sf):
		metrics.ChargesTotal.WithLabelValues("bandwidth", "shortfall").Inc()
		if policy != PolicyDeprovision {
			lg.Warn("insufficient funds for overage, skipping",
				zap.Int64("balance", sf.Balance), zap.Int64("cost", sf.Cost))
			return outcomeSkipped, 0
		}
		if err := r.deprovisionServer(ctx, lg, srv, acct.ID, sf, now); err != nil {
			lg.Error("deprovision server on overage shortfall", zap.Error(err))
			return outcomeFailed, 0
		}
		return outcomeDeprovisioned, 0

	default:
		lg.Error("settle overage", zap.Error(err))
		metrics.ChargesTotal.WithLabelValues("bandwidth", "failed").Inc()
		return outcomeFailed, 0
	}
}
