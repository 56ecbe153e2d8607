// Package direct implements the last tier of the fallback cascade: an
// OpenAI-compatible client that calls a named provider's API directly,
// bypassing the gateway entirely.
package direct

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"modelrelay/internal/domain"
	"modelrelay/internal/infra/config"
)

const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// Simulated streaming parameters, matching the gateway client's behavior.
const (
	streamChunkWords = 4
	streamChunkDelay = 15 * time.Millisecond
)

// Client calls named LLM providers over their OpenAI-compatible HTTP APIs.
// It implements domain.DirectProvider.
type Client struct {
	providers map[string]config.DirectProviderConfig
	timeout   time.Duration
	client    *http.Client
	logger    *slog.Logger
}

var _ domain.DirectProvider = (*Client)(nil)

// NewClient creates a direct provider client from configuration.
func NewClient(cfg config.DirectConfig, logger *slog.Logger) *Client {
	return &Client{
		providers: cfg.Providers,
		timeout:   cfg.RequestTimeout(),
		client:    &http.Client{},
		logger:    logger,
	}
}

func (c *Client) provider(key string) (config.DirectProviderConfig, error) {
	p, ok := c.providers[key]
	if !ok {
		return config.DirectProviderConfig{}, domain.NewRouteError(domain.CodeFallback,
			fmt.Sprintf("direct provider %q not configured", key))
	}
	return p, nil
}

// --- OpenAI-compatible wire types ---

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type wireModelList struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

// Chat implements domain.DirectProvider.
func (c *Client) Chat(ctx context.Context, messages []domain.Message, providerKey string) (*domain.LLMResponse, error) {
	p, err := c.provider(providerKey)
	if err != nil {
		return nil, err
	}

	msgs := make([]wireMessage, len(messages))
	for i, m := range messages {
		msgs[i] = wireMessage{Role: m.Role, Content: m.Content}
	}
	body, err := json.Marshal(wireRequest{Model: p.Model, Messages: msgs})
	if err != nil {
		return nil, domain.WrapRouteError(domain.CodeFallback, "marshal direct request", err)
	}

	respBody, err := c.do(ctx, p, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var resp wireResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, domain.WrapRouteError(domain.CodeFallback, "unmarshal direct response", err)
	}
	if len(resp.Choices) == 0 {
		return nil, domain.NewRouteError(domain.CodeFallback, "direct provider returned no choices")
	}

	model := resp.Model
	if model == "" {
		model = p.Model
	}
	c.logger.Debug("direct chat completed", "provider", providerKey, "model", model)

	return &domain.LLMResponse{
		Content: resp.Choices[0].Message.Content,
		Metadata: domain.ResponseMetadata{
			Model:        model,
			TokenCount:   resp.Usage.TotalTokens,
			FinishReason: resp.Choices[0].FinishReason,
		},
	}, nil
}

// ChatStream implements domain.DirectProvider with the same full-response
// word-chunk simulation the gateway client uses. Cancellable via ctx.
func (c *Client) ChatStream(ctx context.Context, messages []domain.Message, providerKey string) (<-chan domain.StreamDelta, error) {
	resp, err := c.Chat(ctx, messages, providerKey)
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

// TestConnection implements domain.DirectProvider.
func (c *Client) TestConnection(ctx context.Context, providerKey string) error {
	p, err := c.provider(providerKey)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, p, http.MethodGet, "/models", nil)
	return err
}

// ListModels implements domain.DirectProvider.
func (c *Client) ListModels(ctx context.Context, providerKey string) ([]domain.ModelOption, error) {
	p, err := c.provider(providerKey)
	if err != nil {
		return nil, err
	}

	respBody, err := c.do(ctx, p, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}

	var list wireModelList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, domain.WrapRouteError(domain.CodeFallback, "unmarshal model list", err)
	}

	models := make([]domain.ModelOption, len(list.Data))
	for i, m := range list.Data {
		models[i] = domain.ModelOption{ID: m.ID, OwnedBy: m.OwnedBy}
	}
	return models, nil
}

// do performs one bounded-timeout request against a provider endpoint.
func (c *Client) do(ctx context.Context, p config.DirectProviderConfig, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	url := strings.TrimRight(p.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, domain.WrapRouteError(domain.CodeFallback, "create direct request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.WrapRouteError(domain.CodeTimeout, "direct call timed out", err)
		}
		return nil, domain.WrapRouteError(domain.CodeFallback, "direct request failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, domain.WrapRouteError(domain.CodeFallback, "read direct response", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		detail := string(respBody)
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return nil, domain.NewRouteError(domain.CodeFallback,
			fmt.Sprintf("direct provider error %d", httpResp.StatusCode)).WithDetail(detail)
	}
	return respBody, nil
}
