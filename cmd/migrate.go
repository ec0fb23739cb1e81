package cmd

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmehdipour/vps-billing/internal/db"
	"github.com/jmehdipour/vps-billing/internal/logger"
	"github.com/jmehdipour/vps-billing/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (dev: DROP & CREATE tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		mysqlDB, err := db.NewMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer mysqlDB.Close()

		if _, err := mysqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return fmt.Errorf("disable fk checks: %w", err)
		}
		if err := applyDir(mysqlDB, "mysql", false); err != nil {
			_, _ = mysqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")
			return err
		}
		if _, err := mysqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1"); err != nil {
			return fmt.Errorf("enable fk checks: %w", err)
		}

		chDB, err := db.NewClickHouse(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chDB.Close()

		// clickhouse takes one statement per Exec
		if err := applyDir(chDB, "clickhouse", true); err != nil {
			return err
		}

		logger.Log.Info("migration complete")
		return nil
	},
}

func applyDir(dbx *sqlx.DB, dir string, split bool) error {
	names, err := fs.Glob(migrations.FS, dir+"/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		stmts := []string{string(b)}
		if split {
			stmts = splitStatements(string(b))
		}
		for _, stmt := range stmts {
			if _, err := dbx.Exec(stmt); err != nil {
				return fmt.Errorf("exec migration %s: %w", name, err)
			}
		}
		logger.Log.Info("migration applied", zap.String("file", name))
	}
	return nil
}

func splitStatements(sql string) []string {
	var out []string
	for _, s := range strings.Split(sql, ";") {
		var lines []string
		for _, l := range strings.Split(s, "\n") {
			if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "--") {
				lines = append(lines, l)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return out
}
