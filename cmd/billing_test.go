package cmd

import (
	"bytes"
	"testing"

	"github.com/jmehdipour/vps-billing/internal/billing"
	"github.com/stretchr/testify/assert"
)

func TestPrintSweepWritesSummary(t *testing.T) {
	var buf bytes.Buffer
	printSweep(&buf)("bandwidth", billing.SweepResult{Processed: 1, Charged: 1, ChargedCents: 7000})

	assert.Equal(t, "bandwidth: processed=1 charged=1 skipped=0 deprovisioned=0 failed=0 cents=7000\n", buf.String())
}
