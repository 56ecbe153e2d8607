// Package usecase holds the routing layer's decision logic: error
// classification, circuit breaking, health tracking, route resolution,
// and the fallback orchestrator that ties them together.
package usecase

import "modelrelay/internal/domain"

// Severity is an advisory ranking of how urgently an error class needs
// operator attention. Used for log levels, never for control flow.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// fallbackEligible is the single source of truth for which error classes may
// trigger the next tier of the cascade. AUTH is deliberately excluded: a bad
// credential fails identically on every retry path, and cascading it only
// burns quota on providers that will reject it too.
var fallbackEligible = map[domain.ErrorCode]bool{
	domain.CodeConnection:  true,
	domain.CodeModel:       true,
	domain.CodeQuota:       true,
	domain.CodeCircuitOpen: true,
	domain.CodeTimeout:     true,
	domain.CodeHealthCheck: true,
	domain.CodeUnknown:     true,
	domain.CodeAuth:        false,
	domain.CodeRouting:     false,
	domain.CodeFallback:    false,
}

// ShouldFallback reports whether err warrants trying the next tier.
// Unrecognized errors are treated as transient and eligible.
func ShouldFallback(err error) bool {
	return fallbackEligible[domain.CodeOf(err)]
}

// IsRetryable reports whether err may succeed on a retry of the SAME tier.
// Only transient transport conditions qualify; everything else either needs
// a different tier or cannot succeed at all.
func IsRetryable(err error) bool {
	switch domain.CodeOf(err) {
	case domain.CodeConnection, domain.CodeTimeout, domain.CodeQuota:
		return true
	}
	return false
}

// SeverityOf ranks err for logging purposes.
func SeverityOf(err error) Severity {
	switch domain.CodeOf(err) {
	case domain.CodeAuth, domain.CodeQuota:
		return SeverityCritical
	case domain.CodeConnection, domain.CodeModel:
		return SeverityHigh
	case domain.CodeTimeout, domain.CodeHealthCheck, domain.CodeCircuitOpen:
		return SeverityMedium
	case domain.CodeRouting, domain.CodeFallback:
		return SeverityLow
	}
	return SeverityMedium
}
