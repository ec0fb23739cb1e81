package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jmehdipour/vps-billing/internal/app"
	httpSrv "github.com/jmehdipour/vps-billing/internal/http"
	"github.com/jmehdipour/vps-billing/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Run the billing scheduler and the ops listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.Log

		a, err := app.Open(cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		sched, err := a.Scheduler()
		if err != nil {
			return err
		}

		server := httpSrv.NewServer(cfg.Ops, httpSrv.Deps{
			Sweeps:   sched,
			Accounts: a.Store,
			Redis:    a.Redis,
			Logger:   log.Named("ops"),
		})

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(cfg.Ops.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		sched.Start(ctx)
		log.Info("billing worker started",
			zap.Duration("compute_interval", cfg.Billing.ComputeInterval),
			zap.Duration("volume_interval", cfg.Billing.VolumeInterval),
			zap.Duration("bandwidth_interval", cfg.Billing.BandwidthInterval),
			zap.String("policy_compute", cfg.Billing.Policies.Compute),
			zap.String("policy_volume", cfg.Billing.Policies.Volume),
			zap.String("policy_bandwidth", cfg.Billing.Policies.Bandwidth))

		var runErr error
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
		case runErr = <-errCh:
			log.Error("ops http exited", zap.Error(runErr))
		}

		cancel()
		sched.Stop()

		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = server.Shutdown(sctx)

		return runErr
	},
}
