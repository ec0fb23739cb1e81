package billing

import "fmt"

// ShortfallPolicy decides what happens when a balance cannot cover a charge.
type ShortfallPolicy string

const (
	// PolicyDeprovision deletes the billed resources and records a zero-amount transaction.
	PolicyDeprovision ShortfallPolicy = "deprovision"
	// PolicySkip logs the shortfall and leaves balance and resources untouched.
	PolicySkip ShortfallPolicy = "skip"
	// PolicyOverdraft debits anyway; the balance may go negative.
	PolicyOverdraft ShortfallPolicy = "overdraft"
)

func ParsePolicy(s string) (ShortfallPolicy, error) {
	switch p := ShortfallPolicy(s); p {
	case PolicyDeprovision, PolicySkip, PolicyOverdraft:
		return p, nil
	default:
		return "", fmt.Errorf("unknown shortfall policy %q", s)
	}
}

// Policies configures each charge kind independently.
type Policies struct {
	Compute   ShortfallPolicy
	Volume    ShortfallPolicy
	Bandwidth ShortfallPolicy
}

// DefaultPolicies: compute is a hard cutoff, volumes are skipped, overage
// always debits.
func DefaultPolicies() Policies {
	return Policies{
		Compute:   PolicyDeprovision,
		Volume:    PolicySkip,
		Bandwidth: PolicyOverdraft,
	}
}

// withDefaults fills every unset policy from DefaultPolicies.
func (p Policies) withDefaults() Policies {
	def := DefaultPolicies()
	if p.Compute == "" {
		p.Compute = def.Compute
	}
	if p.Volume == "" {
		p.Volume = def.Volume
	}
	if p.Bandwidth == "" {
		p.Bandwidth = def.Bandwidth
	}
	return p
}

func ParsePolicies(compute, volume, bandwidth string) (Policies, error) {
	var (
		p   Policies
		err error
	)
	if p.Compute, err = ParsePolicy(compute); err != nil {
		return Policies{}, fmt.Errorf("compute: %w", err)
	}
	if p.Volume, err = ParsePolicy(volume); err != nil {
		return Policies{}, fmt.Errorf("volume: %w", err)
	}
	if p.Bandwidth, err = ParsePolicy(bandwidth); err != nil {
		return Policies{}, fmt.Errorf("bandwidth: %w", err)
	}
	return p, nil
}

// covers reports whether a charge may be applied to the balance.
func (p ShortfallPolicy) covers(balance, cost int64) bool {
	return p == PolicyOverdraft || balance >= cost
}
