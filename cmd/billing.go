package cmd

import (
	"fmt"
	"io"

	"github.com/jmehdipour/vps-billing/internal/app"
	"github.com/jmehdipour/vps-billing/internal/billing"
	"github.com/jmehdipour/vps-billing/internal/logger"
	"github.com/spf13/cobra"
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Billing sweeps",
}

var billingRunCmd = &cobra.Command{
	Use:       "run {compute|volume|bandwidth}",
	Short:     "Run one billing sweep now and exit",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{app.TaskCompute, app.TaskVolume, app.TaskBandwidth},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := app.Open(cfg, logger.Log)
		if err != nil {
			return err
		}
		defer a.Close()
		a.OnSweep = printSweep(cmd.OutOrStdout())

		sched, err := a.Scheduler()
		if err != nil {
			return err
		}
		if err := sched.RunOnce(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("sweep %s: %w", args[0], err)
		}
		return nil
	},
}

func printSweep(w io.Writer) app.ResultFunc {
	return func(task string, res billing.SweepResult) {
		fmt.Fprintf(w, "%s: %s\n", task, res)
	}
}

func init() {
	billingCmd.AddCommand(billingRunCmd)
}
