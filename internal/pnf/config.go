package pnf

import (
	"fmt"
	"strings"
)

// Policy decides the order of extension and reversal tests inside one candle.
type Policy string

// Intra-candle policies.
const (
	// PolicyExtensionFirst applies the same-direction extreme first, then tests
	// reversal against the updated extreme.
	PolicyExtensionFirst Policy = "extension_first"

	// PolicyReversalFirst tests reversal against the pre-candle extreme first
	// and only extends when no reversal happened.
	PolicyReversalFirst Policy = "reversal_first"

	// PolicyOpenGap behaves as PolicyReversalFirst when the candle's open already
	// breaches the reversal threshold, otherwise as PolicyExtensionFirst.
	PolicyOpenGap Policy = "open_gap"
)

// ParsePolicy parses a policy name. Empty selects the default.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyExtensionFirst:
		return PolicyExtensionFirst, nil
	case PolicyReversalFirst:
		return PolicyReversalFirst, nil
	case PolicyOpenGap:
		return PolicyOpenGap, nil
	default:
		return "", fmt.Errorf("%w: unknown policy %q", ErrConfiguration, s)
	}
}

// Config holds chart construction parameters.
type Config struct {
	BoxSizePct    float64 // fraction of the reference price, 0.01 = 1%
	ReversalBoxes int
	Policy        Policy
}

// DefaultConfig returns 1% boxes with a 3-box reversal.
func DefaultConfig() Config {
	return Config{
		BoxSizePct:    0.01,
		ReversalBoxes: 3,
		Policy:        PolicyExtensionFirst,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !(c.BoxSizePct > 0) {
		return fmt.Errorf("%w: box size must be positive, got %v", ErrConfiguration, c.BoxSizePct)
	}
	if c.ReversalBoxes < 1 {
		return fmt.Errorf("%w: reversal boxes must be >= 1, got %d", ErrConfiguration, c.ReversalBoxes)
	}
	if _, err := ParsePolicy(string(c.Policy)); err != nil {
		return err
	}
	return nil
}
