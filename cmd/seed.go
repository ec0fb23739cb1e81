package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/vps-billing/internal/billing"
	"github.com/jmehdipour/vps-billing/internal/db"
	"github.com/jmehdipour/vps-billing/internal/logger"
	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmehdipour/vps-billing/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo accounts, servers and volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		mysqlDB, err := db.NewMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		logger.Log.Info("seeding demo accounts")
		return seedDemo(cmd.Context(), repository.NewStore(mysqlDB), time.Now().UTC())
	},
}

type demoAccount struct {
	email   string
	deposit int64
	servers []demoServer
}

type demoServer struct {
	name      string
	size      string
	status    model.ServerStatus
	createdAt time.Time
	volumesGB []int64
}

func demoAccounts(now time.Time) []demoAccount {
	day := 24 * time.Hour
	return []demoAccount{
		{
			email:   "acme@example.com",
			deposit: 100000,
			servers: []demoServer{
				{name: "acme-web-1", size: "s-2vcpu-4gb", status: model.ServerActive, createdAt: now.AddDate(0, -2, 0), volumesGB: []int64{100, 50}},
				{name: "acme-db-1", size: "s-4vcpu-8gb", status: model.ServerActive, createdAt: now.Add(-40 * day)},
			},
		},
		{
			// barely funded: compute sweep deletes the server on its first short hour
			email:   "lowfunds@example.com",
			deposit: 5,
			servers: []demoServer{
				{name: "lowfunds-1", size: "s-4vcpu-8gb", status: model.ServerActive, createdAt: now.Add(-3 * day), volumesGB: []int64{10}},
			},
		},
		{
			email:   "idle@example.com",
			deposit: 2500,
			servers: []demoServer{
				{name: "idle-1", size: "s-1vcpu-1gb", status: model.ServerOff, createdAt: now.Add(-10 * day)},
				{name: "idle-2", size: "s-1vcpu-2gb", status: model.ServerNew, createdAt: now},
			},
		},
	}
}

func seedDemo(ctx context.Context, store *repository.Store, now time.Time) error {
	for i, a := range demoAccounts(now) {
		accountID, err := store.CreateAccount(ctx, model.Account{Email: a.email})
		if err != nil {
			return fmt.Errorf("create account %s: %w", a.email, err)
		}

		if _, err := store.Deposit(ctx, accountID, a.deposit, fmt.Sprintf("seed-%d", i)); err != nil &&
			!errors.Is(err, billing.ErrAlreadySettled) {
			return fmt.Errorf("deposit %s: %w", a.email, err)
		}

		for j, s := range a.servers {
			serverID, err := store.CreateServer(ctx, model.Server{
				AccountID:  accountID,
				Name:       s.name,
				SizeSlug:   s.size,
				Status:     s.status,
				ProviderID: fmt.Sprintf("seed-%d-%d", i, j),
				CreatedAt:  s.createdAt,
			})
			if err != nil {
				return fmt.Errorf("create server %s: %w", s.name, err)
			}
			for k, gb := range s.volumesGB {
				sid := serverID
				if _, err := store.CreateVolume(ctx, model.Volume{
					AccountID:  accountID,
					ServerID:   &sid,
					Name:       fmt.Sprintf("%s-vol-%d", s.name, k),
					SizeGB:     gb,
					ProviderID: fmt.Sprintf("seed-vol-%d-%d-%d", i, j, k),
				}); err != nil {
					return fmt.Errorf("create volume for %s: %w", s.name, err)
				}
			}
		}
		logger.Log.Info("seeded account", zap.String("email", a.email), zap.Int64("account_id", accountID), zap.Int("servers", len(a.servers)))
	}
	return nil
}
