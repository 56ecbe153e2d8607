package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"modelrelay/internal/domain"
	"modelrelay/internal/infra/config"
	"modelrelay/internal/infra/tracer"
)

// Request defaults sent to the gateway.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096
)

// Simulated streaming parameters. The gateway does not stream, so a complete
// response is chunked into word groups with a short delay between chunks.
const (
	streamChunkWords = 4
	streamChunkDelay = 15 * time.Millisecond
)

// Client executes single model calls against the gateway's HTTP surface and
// classifies every outcome into the RouteError taxonomy.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter // nil = unlimited
	logger  *slog.Logger

	enc encoder
}

// NewClient creates a gateway client from configuration.
func NewClient(cfg config.GatewayConfig, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout()

	var limiter *rate.Limiter
	if cfg.RateLimit.RequestsPerMin > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerMin)/60.0, burst)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		client: &http.Client{
			Transport: newPooledTransport(timeout),
		},
		limiter: limiter,
		logger:  logger,
	}
}

// NewRequestID returns a fresh ULID for call metadata.
func NewRequestID() string {
	return ulid.Make().String()
}

// --- Gateway wire types ---

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireMetadata struct {
	AgentType string `json:"agent_type"`
	CostTier  string `json:"cost_tier"`
	RequestID string `json:"request_id"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Metadata    wireMetadata  `json:"metadata"`
}

type wireChoice struct {
	Message struct {
		Content   string `json:"content"`
		Reasoning string `json:"reasoning,omitempty"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

type wireHealth struct {
	Status string `json:"status"`
}

type wireModels struct {
	Models []string `json:"models"`
}

// Chat executes exactly one model call against the gateway.
func (c *Client) Chat(ctx context.Context, model string, messages []domain.Message, meta domain.CallMeta) (*domain.LLMResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "gateway.chat",
		trace.WithAttributes(
			tracer.StringAttr("gateway.model", model),
			tracer.StringAttr("gateway.agent", string(meta.Agent)),
		),
	)
	defer span.End()

	if meta.RequestID == "" {
		meta.RequestID = NewRequestID()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	body, err := json.Marshal(wireRequest{
		Model:       model,
		Messages:    toWireMessages(messages),
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		Metadata: wireMetadata{
			AgentType: string(meta.Agent),
			CostTier:  string(meta.Tier),
			RequestID: meta.RequestID,
		},
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapRouteError(domain.CodeConnection, "marshal request", err)
	}

	respBody, err := doJSONRequest(ctx, c.client, http.MethodPost, c.baseURL+"/chat/completions", body, c.authHeaders())
	if err != nil {
		err = tagAgent(err, meta.Agent)
		tracer.RecordError(span, err)
		return nil, err
	}

	var resp wireResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapRouteError(domain.CodeConnection, "unmarshal response", err).WithAgent(meta.Agent)
	}
	if len(resp.Choices) == 0 {
		err := domain.NewRouteError(domain.CodeConnection, "gateway returned no choices").WithAgent(meta.Agent)
		tracer.RecordError(span, err)
		return nil, err
	}

	respModel := resp.Model
	if respModel == "" {
		respModel = model
	}
	result := &domain.LLMResponse{
		Content:   resp.Choices[0].Message.Content,
		Reasoning: resp.Choices[0].Message.Reasoning,
		Metadata: domain.ResponseMetadata{
			Model:        respModel,
			TokenCount:   resp.Usage.TotalTokens,
			FinishReason: resp.Choices[0].FinishReason,
		},
	}

	span.SetAttributes(tracer.IntAttr("gateway.tokens", result.Metadata.TokenCount))
	tracer.SetOK(span)
	c.logger.Debug("gateway chat completed",
		"model", result.Metadata.Model,
		"tokens", result.Metadata.TokenCount,
		"request_id", meta.RequestID,
	)

	return result, nil
}

// ChatStream obtains the full response and delivers it as word chunks with a
// small artificial delay. Chunk delivery selects on ctx so an in-flight
// simulated stream is cancellable.
func (c *Client) ChatStream(ctx context.Context, model string, messages []domain.Message, meta domain.CallMeta) (<-chan domain.StreamDelta, error) {
	resp, err := c.Chat(ctx, model, messages, meta)
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)

		words := strings.Fields(resp.Content)
		for i := 0; i < len(words); i += streamChunkWords {
			end := i + streamChunkWords
			if end > len(words) {
				end = len(words)
			}
			chunk := strings.Join(words[i:end], " ")
			if end < len(words) {
				chunk += " "
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(streamChunkDelay):
			}
			select {
			case ch <- domain.StreamDelta{Content: chunk}:
			case <-ctx.Done():
				return
			}
		}

		md := resp.Metadata
		select {
		case ch <- domain.StreamDelta{Done: true, Metadata: &md}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// CheckHealth performs one bounded-timeout probe of the gateway's health
// endpoint. Any failure is a HEALTH_CHECK error.
func (c *Client) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	respBody, err := doJSONRequest(ctx, c.client, http.MethodGet, c.baseURL+"/health", nil, c.authHeaders())
	if err != nil {
		return domain.WrapRouteError(domain.CodeHealthCheck, "health probe failed", err)
	}

	var h wireHealth
	if err := json.Unmarshal(respBody, &h); err != nil {
		return domain.WrapRouteError(domain.CodeHealthCheck, "health probe failed", err)
	}
	if h.Status != "healthy" {
		return domain.NewRouteError(domain.CodeHealthCheck, "gateway reports "+h.Status)
	}
	return nil
}

// ListModels returns the model ids the gateway exposes.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	respBody, err := doJSONRequest(ctx, c.client, http.MethodGet, c.baseURL+"/models", nil, c.authHeaders())
	if err != nil {
		return nil, err
	}

	var m wireModels
	if err := json.Unmarshal(respBody, &m); err != nil {
		return nil, domain.WrapRouteError(domain.CodeConnection, "unmarshal models", err)
	}
	return m.Models, nil
}

// wait blocks on the outbound rate limiter, if one is configured.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.WrapRouteError(domain.CodeTimeout, "rate limiter wait", err)
	}
	return nil
}

func (c *Client) authHeaders() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func toWireMessages(messages []domain.Message) []wireMessage {
	out := make([]wireMessage, len(messages))
	for i, m := range messages {
		out[i] = wireMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// tagAgent attaches the agent role to a RouteError in err's chain.
func tagAgent(err error, agent domain.AgentType) error {
	var re *domain.RouteError
	if errors.As(err, &re) && re.Agent == "" {
		re.Agent = agent
	}
	return err
}
