package gateway

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelrelay/internal/domain"
	"modelrelay/internal/infra/config"
)

func costClient() *Client {
	return NewClient(config.GatewayConfig{BaseURL: "http://unused", TimeoutMS: 1000}, slog.Default())
}

func TestEstimateCostScalesWithLength(t *testing.T) {
	c := costClient()
	text := strings.Repeat("some plain words about routing ", 8)

	single := c.EstimateCost([]domain.Message{
		{Role: domain.RoleUser, Content: text},
	}, domain.TierCheap)
	double := c.EstimateCost([]domain.Message{
		{Role: domain.RoleUser, Content: text + text},
	}, domain.TierCheap)

	require.Greater(t, single.Tokens, 0)
	ratio := float64(double.Tokens) / float64(single.Tokens)
	assert.InDelta(t, 2.0, ratio, 0.3, "doubling characters should roughly double tokens")
}

func TestEstimateCostSumsMessages(t *testing.T) {
	c := costClient()
	msg := domain.Message{Role: domain.RoleUser, Content: "hello there router"}

	one := c.EstimateCost([]domain.Message{msg}, domain.TierCheap)
	three := c.EstimateCost([]domain.Message{msg, msg, msg}, domain.TierCheap)

	assert.Equal(t, one.Tokens*3, three.Tokens)
}

func TestEstimateCostTierPricing(t *testing.T) {
	c := costClient()
	msgs := []domain.Message{{Role: domain.RoleUser, Content: strings.Repeat("x", 400)}}

	cheap := c.EstimateCost(msgs, domain.TierCheap)
	premium := c.EstimateCost(msgs, domain.TierPremium)

	assert.Equal(t, cheap.Tokens, premium.Tokens)
	assert.Greater(t, premium.USD, cheap.USD)
}

func TestEstimateCostUnknownTierUsesCheapPrice(t *testing.T) {
	c := costClient()
	msgs := []domain.Message{{Role: domain.RoleUser, Content: "hi"}}

	est := c.EstimateCost(msgs, domain.CostTier("free"))
	cheap := c.EstimateCost(msgs, domain.TierCheap)

	assert.Equal(t, cheap.USD, est.USD)
}
