package gateway

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"modelrelay/internal/domain"
)

// Per-1K-token unit prices by cost tier, in USD. Advisory only.
var tierUnitPrice = map[domain.CostTier]float64{
	domain.TierCheap:   0.0005,
	domain.TierPremium: 0.01,
}

// encoder lazily loads a tiktoken encoding. When the encoding is unavailable
// (e.g. no BPE data in an air-gapped environment) the chars/4 heuristic is
// used instead.
type encoder struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func (e *encoder) tokens(text string) int {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.enc = enc
		}
	})
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// EstimateCost returns an advisory token/price estimate for a message list.
// The count is summed per message and multiplied by the tier's unit price.
func (c *Client) EstimateCost(messages []domain.Message, tier domain.CostTier) domain.CostEstimate {
	tokens := 0
	for _, m := range messages {
		tokens += c.enc.tokens(m.Content)
	}

	price, ok := tierUnitPrice[tier]
	if !ok {
		price = tierUnitPrice[domain.TierCheap]
	}

	return domain.CostEstimate{
		Tokens: tokens,
		USD:    float64(tokens) / 1000.0 * price,
	}
}
