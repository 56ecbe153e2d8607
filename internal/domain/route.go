package domain

import "fmt"

// CostTier is a coarse classification of a model's relative price, used for
// routing decisions and advisory cost estimation.
type CostTier string

const (
	TierCheap   CostTier = "cheap"
	TierPremium CostTier = "premium"
)

// Valid reports whether t is a known cost tier.
func (t CostTier) Valid() bool {
	return t == TierCheap || t == TierPremium
}

// ModelRoute describes the degradation path for one agent type: the primary
// gateway model, the cheaper gateway fallback model, and the direct provider
// used when the gateway itself is not an option. Read-only after the routing
// table is built.
type ModelRoute struct {
	Primary          string   `yaml:"primary"`
	Fallback         string   `yaml:"fallback"`
	FallbackProvider string   `yaml:"fallback_provider"`
	CostTier         CostTier `yaml:"cost_tier"`
}

// Validate checks the route invariants. The fallback provider must be
// non-empty and distinct from both gateway models: it is the escape hatch
// that works when the gateway does not.
func (r ModelRoute) Validate() error {
	if r.Primary == "" {
		return fmt.Errorf("primary model is empty")
	}
	if r.Fallback == "" {
		return fmt.Errorf("fallback model is empty")
	}
	if r.FallbackProvider == "" {
		return fmt.Errorf("fallback provider is empty")
	}
	if r.FallbackProvider == r.Primary || r.FallbackProvider == r.Fallback {
		return fmt.Errorf("fallback provider %q must be distinct from gateway models", r.FallbackProvider)
	}
	if !r.CostTier.Valid() {
		return fmt.Errorf("unknown cost tier %q", r.CostTier)
	}
	return nil
}
