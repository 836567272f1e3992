package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/halcyonlabs/patternflow/core"
	"github.com/halcyonlabs/patternflow/packs"
	"github.com/halcyonlabs/patternflow/resilience"
	"github.com/halcyonlabs/patternflow/telemetry"
)

// StepResult is a capability invocation's value plus the provenance metadata
// the runtime attaches. Agents return raw values; only the runtime builds
// StepResults.
type StepResult struct {
	Value      interface{} `json:"value"`
	Source     string      `json:"source"`
	AsOf       string      `json:"asof"`
	TTLSeconds int         `json:"ttl"`
	Confidence *float64    `json:"confidence,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
	Agent      string      `json:"agent"`
	Capability string      `json:"capability"`
	Attempts   int         `json:"attempts"`
}

// AgentRuntime is the only entity that invokes agent handlers. Every
// invocation passes through the capability registry, a per
// (agent, capability) circuit breaker, the pricing-pack precondition, and
// the transient-only retry policy, in that order.
type AgentRuntime struct {
	registry *core.CapabilityRegistry
	breaker  core.BreakerConfig
	retry    *resilience.RetryConfig
	logger   core.Logger

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// NewAgentRuntime creates the runtime with the configured resilience policy.
func NewAgentRuntime(registry *core.CapabilityRegistry, cfg *core.Config, logger core.Logger) *AgentRuntime {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &AgentRuntime{
		registry: registry,
		breaker:  cfg.Breaker,
		retry: &resilience.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		logger:   logger,
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// Invoke runs one capability and returns its result with metadata attached.
// Failures come back as *core.Error with the taxonomy kind that drives the
// orchestrator's fallback handling.
func (r *AgentRuntime) Invoke(ctx context.Context, capability string, rc *core.RequestContext, args map[string]interface{}) (*StepResult, error) {
	binding, err := r.registry.Resolve(capability)
	if err != nil {
		return nil, r.failure(core.KindUnknownCapability, rc,
			fmt.Sprintf("capability %q is not registered", capability), err)
	}
	agent := binding.AgentName

	cb := r.breakerFor(agent, capability)
	if !cb.Allow() {
		telemetry.AddSpanEvent(ctx, "breaker_open",
			attribute.String("capability", capability),
			attribute.String("agent", agent))
		return nil, r.failure(core.KindCircuitOpen, rc,
			fmt.Sprintf("circuit open for %s:%s", agent, capability), nil)
	}

	if binding.Capability.RequiresPricingPack {
		if rc.PricingPackID == "" {
			return nil, r.failure(core.KindMissingPricingPack, rc,
				"capability requires a pricing pack and the request context has none", nil)
		}
		if err := packs.ValidatePackID(rc.PricingPackID); err != nil {
			return nil, r.failure(core.KindMissingPricingPack, rc,
				fmt.Sprintf("pricing pack id %q is malformed", rc.PricingPackID), err)
		}
	}

	invokeCtx := ctx
	if deadline := rc.Deadline(); !deadline.IsZero() {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	var raw interface{}
	attempts, err := resilience.Retry(invokeCtx, r.retry, core.IsTransient, func() error {
		v, invokeErr := binding.Capability.Handler(invokeCtx, rc, args)
		if invokeErr == nil {
			raw = v
		}
		return invokeErr
	})

	if err != nil {
		cb.RecordFailure(err)
		kind := core.KindAgentPermanentFailure
		switch {
		case core.IsTransient(err):
			kind = core.KindAgentTransientFailure
		case core.KindOf(err) == core.KindValidationFailure:
			kind = core.KindValidationFailure
		}
		r.logger.Warn("Capability invocation failed", map[string]interface{}{
			"operation":      "runtime_invoke",
			"capability":     capability,
			"agent":          agent,
			"attempts":       attempts,
			"error":          err.Error(),
			"correlation_id": rc.CorrelationID,
		})
		return nil, r.failure(kind, rc,
			fmt.Sprintf("%s failed after %d attempt(s)", capability, attempts), err)
	}
	cb.RecordSuccess()

	result := &StepResult{
		Value:      raw,
		Source:     agent + ":" + rc.PricingPackID,
		AsOf:       rc.AsOfDate,
		TTLSeconds: binding.Capability.TTLSeconds,
		Agent:      agent,
		Capability: capability,
		Attempts:   attempts,
	}
	mergeMetadata(result)
	return result, nil
}

// breakerFor returns the breaker guarding one (agent, capability) pair,
// creating it on first use.
func (r *AgentRuntime) breakerFor(agent, capability string) *resilience.CircuitBreaker {
	name := agent + ":" + capability

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb, err := resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
		Name:            name,
		WindowSize:      r.breaker.WindowSize,
		FailureRatio:    r.breaker.FailureRatio,
		MinFailures:     r.breaker.MinFailures,
		Cooldown:        r.breaker.Cooldown,
		CooldownCeiling: r.breaker.CooldownCeiling,
		Logger:          r.logger,
	})
	if err != nil {
		// Config was validated at startup; an invalid policy here means the
		// defaults were bypassed. Fall back to them rather than panic.
		cb, _ = resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig(name))
	}
	r.breakers[name] = cb
	return cb
}

// BreakerState exposes breaker state for introspection endpoints.
func (r *AgentRuntime) BreakerState(agent, capability string) resilience.CircuitState {
	return r.breakerFor(agent, capability).State()
}

func (r *AgentRuntime) failure(kind core.ErrorKind, rc *core.RequestContext, msg string, err error) *core.Error {
	return &core.Error{
		Kind:          kind,
		Op:            "runtime.invoke",
		CorrelationID: rc.CorrelationID,
		Message:       msg,
		Err:           err,
	}
}

// mergeMetadata merges an agent-supplied _metadata block over the runtime
// defaults, then strips it from the stored value so execution state carries
// business data only.
func mergeMetadata(result *StepResult) {
	value, ok := result.Value.(map[string]interface{})
	if !ok {
		return
	}
	meta, ok := value["_metadata"].(map[string]interface{})
	if !ok {
		return
	}

	if s, ok := meta["source"].(string); ok && s != "" {
		result.Source = s
	}
	if s, ok := meta["asof"].(string); ok && s != "" {
		result.AsOf = s
	}
	if ttl, ok := meta["ttl"].(float64); ok {
		result.TTLSeconds = int(ttl)
	} else if ttl, ok := meta["ttl"].(int); ok {
		result.TTLSeconds = ttl
	}
	if c, ok := meta["confidence"].(float64); ok {
		result.Confidence = &c
	}
	if warns, ok := meta["warnings"].([]interface{}); ok {
		for _, w := range warns {
			if s, ok := w.(string); ok {
				result.Warnings = append(result.Warnings, s)
			}
		}
	}

	stripped := make(map[string]interface{}, len(value)-1)
	for k, v := range value {
		if k == "_metadata" {
			continue
		}
		stripped[k] = v
	}
	result.Value = stripped
}

// cacheTTL computes the effective cache lifetime for a step result: an
// explicit step ttl wins, otherwise the agent-declared capability ttl.
// Zero disables caching.
func cacheTTL(step *Step, result *StepResult) time.Duration {
	seconds := result.TTLSeconds
	if step.TTLSeconds != nil {
		seconds = *step.TTLSeconds
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
