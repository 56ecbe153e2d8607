package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-parseable discriminator of the routing error
// taxonomy. A single struct tagged by code replaces a subclass-per-kind
// hierarchy: call sites dispatch on CodeOf instead of type assertions, and
// the fallback policy lives in one table.
type ErrorCode string

const (
	CodeUnknown     ErrorCode = "UNKNOWN"
	CodeConnection  ErrorCode = "CONNECTION"
	CodeAuth        ErrorCode = "AUTH"
	CodeModel       ErrorCode = "MODEL"
	CodeRouting     ErrorCode = "ROUTING"
	CodeFallback    ErrorCode = "FALLBACK"
	CodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	CodeHealthCheck ErrorCode = "HEALTH_CHECK"
	CodeQuota       ErrorCode = "QUOTA"
	CodeTimeout     ErrorCode = "TIMEOUT"
)

// RouteError is the routing layer's error type.
type RouteError struct {
	Code    ErrorCode
	Message string
	Agent   AgentType // optional: the role the failing request was made for
	Detail  string    // optional structured detail, already rendered
	Err     error     // wrapped cause, or nil
}

func (e *RouteError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Agent != "" {
		msg += fmt.Sprintf(" (agent=%s)", e.Agent)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RouteError) Unwrap() error { return e.Err }

// NewRouteError creates a RouteError with the given code and message.
func NewRouteError(code ErrorCode, message string) *RouteError {
	return &RouteError{Code: code, Message: message}
}

// WrapRouteError creates a RouteError wrapping an underlying cause.
func WrapRouteError(code ErrorCode, message string, err error) *RouteError {
	return &RouteError{Code: code, Message: message, Err: err}
}

// WithAgent tags the error with the agent role it occurred for.
func (e *RouteError) WithAgent(agent AgentType) *RouteError {
	e.Agent = agent
	return e
}

// WithDetail attaches rendered detail to the error.
func (e *RouteError) WithDetail(detail string) *RouteError {
	e.Detail = detail
	return e
}

// CodeOf extracts the ErrorCode from anywhere in err's chain.
// Returns CodeUnknown when no RouteError is present.
func CodeOf(err error) ErrorCode {
	var re *RouteError
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
