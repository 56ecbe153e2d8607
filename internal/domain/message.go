package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseMetadata carries per-call bookkeeping returned with a response.
type ResponseMetadata struct {
	Model        string `json:"model"`
	TokenCount   int    `json:"token_count"`
	FinishReason string `json:"finish_reason"`
}

// LLMResponse is the result of one successful model call. Created per call,
// immutable, never retained by the router.
type LLMResponse struct {
	Content   string           `json:"content"`
	Reasoning string           `json:"reasoning,omitempty"`
	Metadata  ResponseMetadata `json:"metadata"`
}

// StreamDelta is a single incremental chunk of a streaming response. The
// final delta has Done set and carries the response metadata.
type StreamDelta struct {
	Content  string            `json:"content,omitempty"`
	Done     bool              `json:"done,omitempty"`
	Metadata *ResponseMetadata `json:"metadata,omitempty"`
}

// CallMeta identifies one routed request for the gateway's own routing and
// billing. RequestID is generated fresh per call.
type CallMeta struct {
	Agent     AgentType
	Tier      CostTier
	RequestID string
}

// CostEstimate is an advisory token/price estimate. Heuristic by design;
// used for logging, never for billing.
type CostEstimate struct {
	Tokens int
	USD    float64
}

// CallRecord is one row of the usage ledger: which model served a request,
// over which path, and what it roughly cost.
type CallRecord struct {
	RequestID string
	Agent     AgentType
	Model     string
	Path      string // "primary", "fallback", or "direct"
	Tokens    int
	CostUSD   float64
	Outcome   string // "ok" or "error"
	Latency   time.Duration
	At        time.Time
}
