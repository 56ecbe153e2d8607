package domain

import "context"

// ModelOption describes one model offered by a direct provider.
type ModelOption struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// DirectProvider is the last tier of the fallback cascade: a client that
// calls a named LLM provider directly, bypassing the gateway, breaker, and
// health machinery entirely. The orchestrator is the only component allowed
// to call it.
type DirectProvider interface {
	// Chat sends messages to the named provider and returns the response.
	Chat(ctx context.Context, messages []Message, providerKey string) (*LLMResponse, error)
	// ChatStream sends messages and returns a channel of incremental deltas.
	ChatStream(ctx context.Context, messages []Message, providerKey string) (<-chan StreamDelta, error)
	// TestConnection verifies the named provider is reachable.
	TestConnection(ctx context.Context, providerKey string) error
	// ListModels returns the models the named provider offers.
	ListModels(ctx context.Context, providerKey string) ([]ModelOption, error)
}
