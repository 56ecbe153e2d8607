package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"modelrelay/internal/domain"
	"modelrelay/internal/infra/config"
	"modelrelay/internal/infra/tracer"
)

// backoffBase is the first sleep of the exponential_backoff strategy; each
// further retry doubles it.
const backoffBase = 200 * time.Millisecond

// GatewayCaller is the orchestrator's view of the gateway adapter.
type GatewayCaller interface {
	Chat(ctx context.Context, model string, messages []domain.Message, meta domain.CallMeta) (*domain.LLMResponse, error)
	ChatStream(ctx context.Context, model string, messages []domain.Message, meta domain.CallMeta) (<-chan domain.StreamDelta, error)
	CheckHealth(ctx context.Context) error
	EstimateCost(messages []domain.Message, tier domain.CostTier) domain.CostEstimate
}

// UsageRecorder receives one record per completed SendMessage call.
// Optional; recording failures are logged, never surfaced to callers.
type UsageRecorder interface {
	RecordCall(ctx context.Context, rec domain.CallRecord) error
}

// ConnectionReport is the result of a startup connectivity diagnostic.
type ConnectionReport struct {
	GatewayOK    bool
	GatewayError string
	// Providers maps each direct provider named by the routing table to
	// "ok" or its probe error.
	Providers map[string]string
}

// OrchestratorParams collects the orchestrator's dependencies. Everything is
// injected; the orchestrator owns no construction of its collaborators.
type OrchestratorParams struct {
	Gateway GatewayCaller
	Direct  domain.DirectProvider
	Routes  *RoutingTable
	Breaker *Breaker
	Health  *HealthChecker
	Usage   UsageRecorder // nil disables usage recording
	Logger  *slog.Logger
	Config  config.GatewayConfig
}

// Orchestrator routes each request down a three-tier degradation path:
// the breaker-guarded primary gateway model, then the gateway fallback
// model, then the direct provider. Whether an error cascades to the next
// tier is decided by the classifier; the error of the last tier attempted
// is the one callers see.
type Orchestrator struct {
	gateway GatewayCaller
	direct  domain.DirectProvider
	routes  *RoutingTable
	breaker *Breaker
	health  *HealthChecker
	usage   UsageRecorder
	logger  *slog.Logger
	cfg     config.GatewayConfig
}

// NewOrchestrator wires an orchestrator from its parts.
func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	return &Orchestrator{
		gateway: p.Gateway,
		direct:  p.Direct,
		routes:  p.Routes,
		breaker: p.Breaker,
		health:  p.Health,
		usage:   p.Usage,
		logger:  p.Logger,
		cfg:     p.Config,
	}
}

// SendMessage routes one chat request for the given agent role.
func (o *Orchestrator) SendMessage(ctx context.Context, agent domain.AgentType, messages []domain.Message) (*domain.LLMResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.send",
		trace.WithAttributes(tracer.StringAttr("route.agent", string(agent))),
	)
	defer span.End()

	route, err := o.routes.Resolve(agent)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	meta := domain.CallMeta{Agent: agent, Tier: route.CostTier}
	started := time.Now()

	if o.gatewayUsable() {
		// Tier 1: primary model, guarded per the configured strategy.
		resp, err := o.callPrimary(ctx, route, messages, meta)
		if err == nil {
			o.finish(ctx, span, meta, resp, "primary", started, messages, route)
			return resp, nil
		}
		o.noteGatewayFailure(err)
		if !ShouldFallback(err) {
			tracer.RecordError(span, err)
			return nil, err
		}
		o.logger.Warn("primary model failed, trying gateway fallback",
			"agent", agent, "model", route.Primary,
			"error", err, "severity", SeverityOf(err))

		// Tier 2: fallback model on the same gateway, no breaker. A breaker
		// trip on the primary must not condemn the cheaper model untried.
		resp, err = o.callGateway(ctx, route.Fallback, messages, meta)
		if err == nil {
			o.finish(ctx, span, meta, resp, "fallback", started, messages, route)
			return resp, nil
		}
		o.noteGatewayFailure(err)
		if !ShouldFallback(err) {
			tracer.RecordError(span, err)
			return nil, err
		}
		o.logger.Warn("gateway fallback failed, trying direct provider",
			"agent", agent, "model", route.Fallback,
			"error", err, "severity", SeverityOf(err))
	} else {
		o.logger.Info("gateway skipped",
			"agent", agent, "enabled", o.cfg.Enabled, "healthy", o.health.IsHealthy())
	}

	// Tier 3: direct provider, bypassing the gateway. Its error is the last
	// one and the one callers see.
	resp, err := o.direct.Chat(ctx, messages, route.FallbackProvider)
	if err == nil {
		o.finish(ctx, span, meta, resp, "direct", started, messages, route)
		return resp, nil
	}

	err = tagAgentErr(err, agent)
	tracer.RecordError(span, err)
	o.record(ctx, meta, "direct", "error", 0, 0, time.Since(started), route)
	return nil, err
}

// SendMessageStream is SendMessage's streaming counterpart. The breaker
// guards stream initiation only: once a channel is handed out, mid-stream
// delivery is between the adapter and the consumer.
func (o *Orchestrator) SendMessageStream(ctx context.Context, agent domain.AgentType, messages []domain.Message) (<-chan domain.StreamDelta, error) {
	route, err := o.routes.Resolve(agent)
	if err != nil {
		return nil, err
	}
	meta := domain.CallMeta{Agent: agent, Tier: route.CostTier}

	if o.gatewayUsable() {
		ch, err := o.openPrimaryStream(ctx, route, messages, meta)
		if err == nil {
			return ch, nil
		}
		o.noteGatewayFailure(err)
		if !ShouldFallback(err) {
			return nil, err
		}
		o.logger.Warn("primary stream failed, trying gateway fallback",
			"agent", agent, "error", err)

		started := time.Now()
		ch, err = o.gateway.ChatStream(ctx, route.Fallback, messages, meta)
		if err == nil {
			o.health.RecordSuccess(time.Since(started))
			return ch, nil
		}
		o.noteGatewayFailure(err)
		if !ShouldFallback(err) {
			return nil, err
		}
	}

	ch, err := o.direct.ChatStream(ctx, messages, route.FallbackProvider)
	if err != nil {
		return nil, tagAgentErr(err, agent)
	}
	return ch, nil
}

// TestConnection probes the gateway and every direct provider the routing
// table names. A gateway failure is reported but not returned: the cascade
// exists to survive it. A broken direct provider is returned as an error,
// since it is the path of last resort.
func (o *Orchestrator) TestConnection(ctx context.Context) (*ConnectionReport, error) {
	report := &ConnectionReport{Providers: map[string]string{}}

	if err := o.gateway.CheckHealth(ctx); err != nil {
		report.GatewayError = err.Error()
		o.logger.Warn("gateway connectivity check failed", "error", err)
	} else {
		report.GatewayOK = true
	}

	var firstErr error
	for _, route := range o.routes.Routes() {
		name := route.FallbackProvider
		if _, seen := report.Providers[name]; seen {
			continue
		}
		if err := o.direct.TestConnection(ctx, name); err != nil {
			report.Providers[name] = err.Error()
			if firstErr == nil {
				firstErr = domain.WrapRouteError(domain.CodeConnection,
					fmt.Sprintf("direct provider %q unreachable", name), err)
			}
			continue
		}
		report.Providers[name] = "ok"
	}
	return report, firstErr
}

// EstimateCost estimates the token count and price of sending messages as
// the given agent, priced at the agent's route tier.
func (o *Orchestrator) EstimateCost(messages []domain.Message, agent domain.AgentType) (domain.CostEstimate, error) {
	route, err := o.routes.Resolve(agent)
	if err != nil {
		return domain.CostEstimate{}, err
	}
	return o.gateway.EstimateCost(messages, route.CostTier), nil
}

// BreakerSnapshot exposes the primary-path breaker state for diagnostics.
func (o *Orchestrator) BreakerSnapshot() BreakerSnapshot {
	return o.breaker.Snapshot()
}

// gatewayUsable reports whether the gateway tiers should be attempted at all.
func (o *Orchestrator) gatewayUsable() bool {
	return o.cfg.Enabled && o.health.IsHealthy()
}

// callPrimary runs the primary tier under the configured fallback strategy,
// spending the retry budget on retryable errors.
func (o *Orchestrator) callPrimary(ctx context.Context, route domain.ModelRoute, messages []domain.Message, meta domain.CallMeta) (*domain.LLMResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.Retries; attempt++ {
		if attempt > 0 {
			if o.cfg.FallbackStrategy == config.StrategyExponentialBackoff {
				if err := sleepCtx(ctx, backoffBase<<(attempt-1)); err != nil {
					return nil, lastErr
				}
			}
			o.logger.Debug("retrying primary model",
				"agent", meta.Agent, "attempt", attempt, "error", lastErr)
		}

		var resp *domain.LLMResponse
		var err error
		if o.cfg.FallbackStrategy == config.StrategyCircuitBreaker {
			resp, err = o.breaker.Execute(func() (*domain.LLMResponse, error) {
				return o.callGateway(ctx, route.Primary, messages, meta)
			})
		} else {
			resp, err = o.callGateway(ctx, route.Primary, messages, meta)
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// An open circuit will stay open for the whole budget; retrying it
		// only delays the cascade.
		if !IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

// openPrimaryStream is callPrimary for streams. Under the circuit_breaker
// strategy the breaker wraps stream initiation; the channel is smuggled out
// through the closure and the breaker sees only success or failure.
func (o *Orchestrator) openPrimaryStream(ctx context.Context, route domain.ModelRoute, messages []domain.Message, meta domain.CallMeta) (<-chan domain.StreamDelta, error) {
	open := func() (<-chan domain.StreamDelta, error) {
		started := time.Now()
		ch, err := o.gateway.ChatStream(ctx, route.Primary, messages, meta)
		if err != nil {
			return nil, err
		}
		o.health.RecordSuccess(time.Since(started))
		return ch, nil
	}

	if o.cfg.FallbackStrategy != config.StrategyCircuitBreaker {
		return open()
	}

	var ch <-chan domain.StreamDelta
	_, err := o.breaker.Execute(func() (*domain.LLMResponse, error) {
		c, err := open()
		if err != nil {
			return nil, err
		}
		ch = c
		return &domain.LLMResponse{}, nil
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// callGateway makes one gateway call and feeds its outcome to the health
// checker.
func (o *Orchestrator) callGateway(ctx context.Context, model string, messages []domain.Message, meta domain.CallMeta) (*domain.LLMResponse, error) {
	started := time.Now()
	resp, err := o.gateway.Chat(ctx, model, messages, meta)
	if err != nil {
		return nil, err
	}
	o.health.RecordSuccess(time.Since(started))
	return resp, nil
}

// noteGatewayFailure feeds a gateway error into the health checker. Breaker
// rejections are excluded: no request reached the gateway, so they say
// nothing about its health.
func (o *Orchestrator) noteGatewayFailure(err error) {
	if domain.IsCode(err, domain.CodeCircuitOpen) {
		return
	}
	o.health.RecordFailure(err)
}

// finish closes out a successful call: trace, log, usage row.
func (o *Orchestrator) finish(ctx context.Context, span trace.Span, meta domain.CallMeta, resp *domain.LLMResponse, path string, started time.Time, messages []domain.Message, route domain.ModelRoute) {
	if span != nil {
		span.SetAttributes(
			tracer.StringAttr("route.path", path),
			tracer.StringAttr("route.model", resp.Metadata.Model),
		)
		tracer.SetOK(span)
	}
	o.logger.Info("request served",
		"agent", meta.Agent, "path", path,
		"model", resp.Metadata.Model, "tokens", resp.Metadata.TokenCount,
		"latency", time.Since(started))

	est := o.gateway.EstimateCost(messages, route.CostTier)
	o.record(ctx, meta, path, "ok", resp.Metadata.TokenCount, est.USD, time.Since(started), route)
}

// record writes one usage ledger row, best effort.
func (o *Orchestrator) record(ctx context.Context, meta domain.CallMeta, path, outcome string, tokens int, costUSD float64, latency time.Duration, route domain.ModelRoute) {
	if o.usage == nil {
		return
	}
	model := route.Primary
	switch path {
	case "fallback":
		model = route.Fallback
	case "direct":
		model = route.FallbackProvider
	}
	rec := domain.CallRecord{
		RequestID: meta.RequestID,
		Agent:     meta.Agent,
		Model:     model,
		Path:      path,
		Tokens:    tokens,
		CostUSD:   costUSD,
		Outcome:   outcome,
		Latency:   latency,
		At:        time.Now().UTC(),
	}
	if err := o.usage.RecordCall(ctx, rec); err != nil {
		o.logger.Warn("usage record failed", "error", err)
	}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// tagAgentErr attaches the agent role to a RouteError chain, or wraps a
// plain error so callers always see the taxonomy.
func tagAgentErr(err error, agent domain.AgentType) error {
	if err == nil {
		return nil
	}
	var re *domain.RouteError
	if errors.As(err, &re) {
		if re.Agent == "" {
			re.Agent = agent
		}
		return err
	}
	return domain.WrapRouteError(domain.CodeUnknown, "request failed on every tier", err).WithAgent(agent)
}
