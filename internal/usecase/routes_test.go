package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelrelay/internal/domain"
	"modelrelay/internal/infra/config"
)

func TestDefaultTableCoversAllAgents(t *testing.T) {
	table, err := NewRoutingTable(nil)
	require.NoError(t, err)

	for _, agent := range domain.AllAgentTypes {
		route, err := table.Resolve(agent)
		require.NoError(t, err, "agent %s", agent)
		assert.NoError(t, route.Validate())
	}
}

func TestDefaultRouteContents(t *testing.T) {
	table, err := NewRoutingTable(nil)
	require.NoError(t, err)

	route, err := table.Resolve(domain.AgentResearcher)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", route.Primary)
	assert.Equal(t, domain.TierPremium, route.CostTier)

	route, err = table.Resolve(domain.AgentFormatting)
	require.NoError(t, err)
	assert.Equal(t, domain.TierCheap, route.CostTier)
}

func TestOverrideMergesPartially(t *testing.T) {
	table, err := NewRoutingTable(map[string]config.RouteConfig{
		"editing": {Primary: "openai/gpt-5-mini"},
	})
	require.NoError(t, err)

	route, err := table.Resolve(domain.AgentEditing)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-5-mini", route.Primary)
	// Untouched fields keep the defaults.
	assert.Equal(t, "anthropic/claude-3-5-haiku", route.Fallback)
	assert.Equal(t, "openai", route.FallbackProvider)
}

func TestOverrideUnknownAgentRejected(t *testing.T) {
	_, err := NewRoutingTable(map[string]config.RouteConfig{
		"translator": {Primary: "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "translator")
}

func TestOverrideInvalidRouteRejected(t *testing.T) {
	_, err := NewRoutingTable(map[string]config.RouteConfig{
		"writing": {FallbackProvider: "anthropic/claude-3-5-sonnet"},
	})
	require.Error(t, err, "fallback provider colliding with primary must fail validation")
}

func TestResolveUnknownAgent(t *testing.T) {
	table, err := NewRoutingTable(nil)
	require.NoError(t, err)

	_, err = table.Resolve(domain.AgentType("translator"))
	require.Error(t, err)
	assert.Equal(t, domain.CodeRouting, domain.CodeOf(err))
}

func TestRoutesReturnsCopy(t *testing.T) {
	table, err := NewRoutingTable(nil)
	require.NoError(t, err)

	routes := table.Routes()
	routes[domain.AgentWriting] = domain.ModelRoute{Primary: "mutated"}

	route, err := table.Resolve(domain.AgentWriting)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", route.Primary)
}
