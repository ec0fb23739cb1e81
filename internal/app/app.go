// Package app wires configuration, stores, the provider gateway and the
// reconciler together for the CLI commands and workers.
package app

import (
	"context"
	"fmt"

	"github.com/jmehdipour/vps-billing/internal/billing"
	"github.com/jmehdipour/vps-billing/internal/config"
	"github.com/jmehdipour/vps-billing/internal/db"
	"github.com/jmehdipour/vps-billing/internal/lock"
	"github.com/jmehdipour/vps-billing/internal/pricing"
	"github.com/jmehdipour/vps-billing/internal/provisioning"
	"github.com/jmehdipour/vps-billing/internal/repository"
	"github.com/jmehdipour/vps-billing/internal/scheduler"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	TaskCompute   = "compute"
	TaskVolume    = "volume"
	TaskBandwidth = "bandwidth"
)

type App struct {
	Cfg        config.Config
	Log        *zap.Logger
	MySQL      *sqlx.DB
	ClickHouse *sqlx.DB
	Redis      *redis.Client
	Store      *repository.Store
	Usage      repository.UsageRepository
	Reconciler *billing.Reconciler

	// OnSweep, when set before Scheduler, receives each sweep summary.
	OnSweep ResultFunc
}

// Open connects every backing store and builds the reconciler. Redis is
// optional: without it sweeps run unlocked, which is only safe with a
// single replica.
func Open(cfg config.Config, log *zap.Logger) (*App, error) {
	rates, err := pricing.New(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("pricing: %w", err)
	}
	policies, err := billing.ParsePolicies(cfg.Billing.Policies.Compute, cfg.Billing.Policies.Volume, cfg.Billing.Policies.Bandwidth)
	if err != nil {
		return nil, err
	}

	a := &App{Cfg: cfg, Log: log}

	a.MySQL, err = db.NewMySQL(cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}
	a.ClickHouse, err = db.NewClickHouse(cfg.ClickHouse)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("clickhouse connect: %w", err)
	}
	if cfg.Redis.Addr != "" {
		a.Redis, err = db.NewRedis(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis connect: %w", err)
		}
	}

	a.Store = repository.NewStore(a.MySQL)
	a.Usage = repository.NewUsageRepository(a.ClickHouse)
	gw := provisioning.NewHTTPGateway(cfg.Provider, log.Named("provisioning"))

	a.Reconciler = billing.New(a.Store, a.Usage, gw, rates, billing.Options{
		Policies: policies,
		Logger:   log,
	})
	return a, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.ClickHouse != nil {
		_ = a.ClickHouse.Close()
	}
	if a.MySQL != nil {
		_ = a.MySQL.Close()
	}
}

// Scheduler registers the three sweeps, locked through Redis when available.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	opts := scheduler.Options{LockTTL: a.Cfg.Billing.LockTTL, Logger: a.Log.Named("scheduler")}
	if a.Redis != nil {
		opts.Locker = lock.NewRedisLocker(a.Redis)
	}
	s := scheduler.New(opts)
	for _, t := range SweepTasks(a.Reconciler, a.Cfg.Billing, a.Log, a.OnSweep) {
		if err := s.Add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Sweeper is implemented by *billing.Reconciler.
type Sweeper interface {
	BillCompute(ctx context.Context) (billing.SweepResult, error)
	BillVolumes(ctx context.Context) (billing.SweepResult, error)
	SettleBandwidth(ctx context.Context) (billing.SweepResult, error)
}

// ResultFunc receives the summary of every successful sweep.
type ResultFunc func(task string, res billing.SweepResult)

// SweepTasks adapts the reconciler sweeps into scheduler tasks that log
// their summary and hand it to report when set.
func SweepTasks(sw Sweeper, cfg config.BillingConfig, log *zap.Logger, report ResultFunc) []scheduler.Task {
	wrap := func(name string, fn func(context.Context) (billing.SweepResult, error)) func(context.Context) error {
		return func(ctx context.Context) error {
			res, err := fn(ctx)
			if err != nil {
				return err
			}
			log.Info("sweep finished", zap.String("task", name), zap.Stringer("result", res))
			if report != nil {
				report(name, res)
			}
			return nil
		}
	}
	return []scheduler.Task{
		{Name: TaskCompute, Interval: cfg.ComputeInterval, Run: wrap(TaskCompute, sw.BillCompute)},
		{Name: TaskVolume, Interval: cfg.VolumeInterval, Run: wrap(TaskVolume, sw.BillVolumes)},
		{Name: TaskBandwidth, Interval: cfg.BandwidthInterval, Run: wrap(TaskBandwidth, sw.SettleBandwidth)},
	}
}
