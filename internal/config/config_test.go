package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Billing.ComputeInterval)
	assert.Equal(t, time.Hour, cfg.Billing.VolumeInterval)
	assert.Equal(t, 24*time.Hour, cfg.Billing.BandwidthInterval)
	assert.Equal(t, "deprovision", cfg.Billing.Policies.Compute)
	assert.Equal(t, "skip", cfg.Billing.Policies.Volume)
	assert.Equal(t, "overdraft", cfg.Billing.Policies.Bandwidth)
	assert.Equal(t, "s-1vcpu-1gb", cfg.Pricing.DefaultSize)
	require.NotEmpty(t, cfg.Pricing.Sizes)
	assert.Equal(t, "s-1vcpu-1gb", cfg.Pricing.Sizes[0].Slug)
	assert.EqualValues(t, 1000, cfg.Pricing.Sizes[0].BandwidthGB)
}

func TestLoadMergesUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
billing:
  compute_interval: 15m
  policies:
    volume: deprovision
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Billing.ComputeInterval)
	assert.Equal(t, "deprovision", cfg.Billing.Policies.Volume)
	assert.Equal(t, "deprovision", cfg.Billing.Policies.Compute)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VPSBILL_PROVIDER_TOKEN", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Provider.Token)
}

func TestValidateRejectsUnknownPolicy(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Billing.Policies.Bandwidth = "forgive"
	assert.ErrorContains(t, cfg.Validate(), "billing.policies.bandwidth")
}

func TestValidateRejectsUnknownDefaultSize(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Pricing.DefaultSize = "m-64vcpu"
	assert.ErrorContains(t, cfg.Validate(), "default_size")
}
