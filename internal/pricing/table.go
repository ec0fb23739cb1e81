// Package pricing holds the static rate table: hourly price and included
// monthly bandwidth per size class, plus the flat volume and overage rates.
package pricing

import (
	"fmt"

	"github.com/jmehdipour/vps-billing/internal/config"
	"github.com/shopspring/decimal"
)

type Size struct {
	Slug        string
	HourlyCents int64
	BandwidthGB int64
}

// Table is read-only after New and safe for concurrent use.
type Table struct {
	sizes       map[string]Size
	fallback    Size
	volumeRate  decimal.Decimal
	overageRate decimal.Decimal
}

func New(cfg config.PricingConfig) (*Table, error) {
	t := &Table{sizes: make(map[string]Size, len(cfg.Sizes))}
	for _, s := range cfg.Sizes {
		if s.Slug == "" {
			return nil, fmt.Errorf("pricing: size with empty slug")
		}
		if s.HourlyCents < 0 || s.BandwidthGB < 0 {
			return nil, fmt.Errorf("pricing: size %s has negative price or bandwidth", s.Slug)
		}
		t.sizes[s.Slug] = Size{Slug: s.Slug, HourlyCents: s.HourlyCents, BandwidthGB: s.BandwidthGB}
	}

	fb, ok := t.sizes[cfg.DefaultSize]
	if !ok {
		return nil, fmt.Errorf("pricing: default size %q not defined", cfg.DefaultSize)
	}
	t.fallback = fb

	var err error
	if t.volumeRate, err = parseRate(cfg.VolumeRatePerGBHour); err != nil {
		return nil, fmt.Errorf("pricing: volume_rate_per_gb_hour: %w", err)
	}
	if t.overageRate, err = parseRate(cfg.OverageRate); err != nil {
		return nil, fmt.Errorf("pricing: overage_rate: %w", err)
	}
	return t, nil
}

func parseRate(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative rate %s", s)
	}
	return d, nil
}

// Lookup resolves a size class. Unknown slugs resolve to the default tier;
// the second return value reports whether the slug was known.
func (t *Table) Lookup(slug string) (Size, bool) {
	if s, ok := t.sizes[slug]; ok {
		return s, true
	}
	return t.fallback, false
}

func (t *Table) Known(slug string) bool {
	_, ok := t.sizes[slug]
	return ok
}

// HourlyPrice returns the hourly price in cents, falling back to the default tier.
func (t *Table) HourlyPrice(slug string) int64 {
	s, _ := t.Lookup(slug)
	return s.HourlyCents
}

// IncludedBandwidthGB returns the monthly allowance, falling back to the default tier.
func (t *Table) IncludedBandwidthGB(slug string) int64 {
	s, _ := t.Lookup(slug)
	return s.BandwidthGB
}

// VolumeRate is cents per GB per hour.
func (t *Table) VolumeRate() decimal.Decimal { return t.volumeRate }

// OverageRate multiplies the tier's hourly price per overage GB.
func (t *Table) OverageRate() decimal.Decimal { return t.overageRate }
