package worker

import (
	"fmt"

	"github.com/jmehdipour/vps-billing/internal/db"
	"github.com/jmehdipour/vps-billing/internal/kafka"
	"github.com/jmehdipour/vps-billing/internal/logger"
	"github.com/jmehdipour/vps-billing/internal/repository"
	"github.com/jmehdipour/vps-billing/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Consume usage samples from Kafka into ClickHouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.Log.Named("usage")

		chDB, err := db.NewClickHouse(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer chDB.Close()

		consumer := kafka.NewUsageConsumer(cfg.Kafka)
		defer consumer.Close()

		w := worker.NewUsageIngest(consumer, repository.NewUsageRepository(chDB), log)
		if cfg.Kafka.BatchSize > 0 {
			w.BatchSize = cfg.Kafka.BatchSize
		}
		if cfg.Kafka.BatchWait > 0 {
			w.BatchWait = cfg.Kafka.BatchWait
		}

		log.Info("usage ingest started",
			zap.String("topic", consumer.Topic()),
			zap.String("group", consumer.GroupID()),
			zap.Stringer("worker", w))

		err = w.Run(cmd.Context())
		log.Info("usage ingest stopped", zap.Int64("lag", consumer.Lag()))
		return err
	},
}
