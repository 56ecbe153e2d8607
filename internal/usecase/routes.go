package usecase

import (
	"fmt"

	"modelrelay/internal/domain"
	"modelrelay/internal/infra/config"
)

// defaultRoutes maps every agent type to its degradation path. Reasoning-heavy
// roles ride premium models; mechanical roles ride cheap ones.
var defaultRoutes = map[domain.AgentType]domain.ModelRoute{
	domain.AgentResearcher: {
		Primary:          "openai/gpt-4o",
		Fallback:         "openai/gpt-4o-mini",
		FallbackProvider: "anthropic",
		CostTier:         domain.TierPremium,
	},
	domain.AgentAnalysis: {
		Primary:          "anthropic/claude-3-5-sonnet",
		Fallback:         "anthropic/claude-3-5-haiku",
		FallbackProvider: "openai",
		CostTier:         domain.TierPremium,
	},
	domain.AgentWriting: {
		Primary:          "anthropic/claude-3-5-sonnet",
		Fallback:         "openai/gpt-4o-mini",
		FallbackProvider: "openai",
		CostTier:         domain.TierPremium,
	},
	domain.AgentEditing: {
		Primary:          "openai/gpt-4o-mini",
		Fallback:         "anthropic/claude-3-5-haiku",
		FallbackProvider: "openai",
		CostTier:         domain.TierCheap,
	},
	domain.AgentFormatting: {
		Primary:          "openai/gpt-4o-mini",
		Fallback:         "meta/llama-3.1-8b",
		FallbackProvider: "openai",
		CostTier:         domain.TierCheap,
	},
}

// RoutingTable resolves agent types to model routes. Built once at startup,
// read-only afterwards, so lookups need no locking.
type RoutingTable struct {
	routes map[domain.AgentType]domain.ModelRoute
}

// NewRoutingTable builds the table from the built-in defaults plus any
// config overrides. Every override is validated; the final table must cover
// every known agent type.
func NewRoutingTable(overrides map[string]config.RouteConfig) (*RoutingTable, error) {
	routes := make(map[domain.AgentType]domain.ModelRoute, len(defaultRoutes))
	for agent, route := range defaultRoutes {
		routes[agent] = route
	}

	for name, o := range overrides {
		agent, err := domain.ParseAgentType(name)
		if err != nil {
			return nil, fmt.Errorf("routing override: %w", err)
		}
		route := routes[agent]
		if o.Primary != "" {
			route.Primary = o.Primary
		}
		if o.Fallback != "" {
			route.Fallback = o.Fallback
		}
		if o.FallbackProvider != "" {
			route.FallbackProvider = o.FallbackProvider
		}
		if o.CostTier != "" {
			route.CostTier = domain.CostTier(o.CostTier)
		}
		routes[agent] = route
	}

	for agent, route := range routes {
		if err := route.Validate(); err != nil {
			return nil, fmt.Errorf("route for agent %q: %w", agent, err)
		}
	}
	for _, agent := range domain.AllAgentTypes {
		if _, ok := routes[agent]; !ok {
			return nil, fmt.Errorf("routing table missing agent %q", agent)
		}
	}
	return &RoutingTable{routes: routes}, nil
}

// Resolve returns the route for an agent type. A miss is a configuration
// bug surfaced as a ROUTING error.
func (t *RoutingTable) Resolve(agent domain.AgentType) (domain.ModelRoute, error) {
	route, ok := t.routes[agent]
	if !ok {
		return domain.ModelRoute{}, domain.NewRouteError(domain.CodeRouting,
			fmt.Sprintf("no route for agent type %q", agent)).WithAgent(agent)
	}
	return route, nil
}

// Routes returns a copy of the full table, for diagnostics.
func (t *RoutingTable) Routes() map[domain.AgentType]domain.ModelRoute {
	out := make(map[domain.AgentType]domain.ModelRoute, len(t.routes))
	for k, v := range t.routes {
		out[k] = v
	}
	return out
}
