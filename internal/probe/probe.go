// Package probe implements the on-device capability check.
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxfill/voxfill/internal/bridge"
)

// DefaultTimeout is how long an eligibility check may take before it is
// resolved to "not eligible".
const DefaultTimeout = time.Second

// Checker answers whether the page-world on-device model is currently
// usable. The answer is never cached: model availability changes between
// recordings (download completion, resource pressure), so every cycle asks
// again.
type Checker struct {
	bus     bridge.Caller
	timeout time.Duration
}

// New creates a Checker over the given bus. A non-positive timeout falls
// back to [DefaultTimeout].
func New(bus bridge.Caller, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{bus: bus, timeout: timeout}
}

// Eligible reports whether on-device inference is usable right now. It never
// returns an error: timeouts, transport failures, and negative answers all
// resolve to false.
func (c *Checker) Eligible(ctx context.Context) bool {
	var result bridge.EligibilityResult
	if err := c.bus.Call(ctx, bridge.OpCheckEligibility, nil, c.timeout, &result); err != nil {
		slog.Debug("on-device eligibility check failed", "error", err)
		return false
	}
	return result.IsEligible
}
