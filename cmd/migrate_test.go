package cmd

import (
	"io/fs"
	"testing"

	"github.com/jmehdipour/vps-billing/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	got := splitStatements("-- header\nCREATE TABLE a (x Int8);\n\n-- note\nCREATE TABLE b (y Int8)\n")
	assert.Equal(t, []string{"CREATE TABLE a (x Int8)", "CREATE TABLE b (y Int8)"}, got)
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, dir := range []string{"mysql", "clickhouse"} {
		names, err := fs.Glob(migrations.FS, dir+"/*.sql")
		require.NoError(t, err)
		assert.NotEmpty(t, names, dir)
	}

	b, err := migrations.FS.ReadFile("mysql/001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(b), "UNIQUE KEY uq_transactions_idem (idempotency_key)")
	assert.Contains(t, string(b), "ON DELETE SET NULL")
}
