package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/halcyonlabs/patternflow/core"
	"github.com/halcyonlabs/patternflow/telemetry"
)

// RightsChecker is the external auth collaborator. A nil error means the
// user holds every listed right.
type RightsChecker interface {
	Check(ctx context.Context, userID string, rights []string) error
}

// AllowAllRights grants everything. Deployments without an auth collaborator
// use it; patterns declaring rights_required then gate nothing.
type AllowAllRights struct{}

func (AllowAllRights) Check(context.Context, string, []string) error { return nil }

// ExecutionResult is the assembled outcome of one pattern execution.
type ExecutionResult struct {
	Outputs    map[string]interface{} `json:"outputs"`
	Trace      []TraceEntry           `json:"trace"`
	Provenance ProvenanceSummary      `json:"provenance"`
}

// Orchestrator drives a pattern's steps: resolve, cache, invoke, record.
// It exclusively owns the execution state and trace for the lifetime of one
// request; agents only ever see their resolved args and the request context.
type Orchestrator struct {
	loader  *Loader
	runtime *AgentRuntime
	cache   ExecutionCache
	rights  RightsChecker
	width   int
	logger  core.Logger
}

// NewOrchestrator wires the orchestrator. A nil rights checker allows all;
// a nil cache disables memoization entirely.
func NewOrchestrator(loader *Loader, runtime *AgentRuntime, cache ExecutionCache, rights RightsChecker, cfg *core.Config, logger core.Logger) *Orchestrator {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if rights == nil {
		rights = AllowAllRights{}
	}
	if cache == nil {
		cache = NewMemoryCache(cfg.CacheCapacity)
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Orchestrator{
		loader:  loader,
		runtime: runtime,
		cache:   cache,
		rights:  rights,
		width:   cfg.MaxParallelWidth,
		logger:  logger,
	}
}

// Execute runs one pattern to completion. On step failure, cancellation, or
// deadline the returned result still carries the trace accumulated so far;
// outputs are only projected on full success.
func (o *Orchestrator) Execute(ctx context.Context, patternID string, inputs map[string]interface{}, rc *core.RequestContext) (*ExecutionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "pattern.execute")
	defer span.End()
	telemetry.SetSpanAttributes(ctx,
		attribute.String("pattern.id", patternID),
		attribute.String("request.id", rc.RequestID),
		attribute.String("pricing_pack.id", rc.PricingPackID),
	)

	pattern, err := o.loader.Get(patternID)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		return nil, o.annotate(err, patternID, "", rc)
	}

	coerced, err := coerceInputs(pattern, inputs)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		return nil, o.annotate(err, patternID, "", rc)
	}

	if len(pattern.RightsRequired) > 0 {
		if err := o.rights.Check(ctx, rc.UserID, pattern.RightsRequired); err != nil {
			denied := &core.Error{
				Kind:          core.KindAccessDenied,
				Op:            "orchestrator.rights",
				PatternID:     patternID,
				CorrelationID: rc.CorrelationID,
				Message:       fmt.Sprintf("user %q lacks required rights", rc.UserID),
				Err:           err,
			}
			telemetry.RecordSpanError(ctx, denied)
			return nil, denied
		}
	}

	state := make(map[string]interface{})
	trace := make([]TraceEntry, 0, len(pattern.Steps))

	i := 0
	for i < len(pattern.Steps) {
		step := &pattern.Steps[i]

		if err := o.interrupted(ctx, rc); err != nil {
			trace = append(trace, TraceEntry{
				Step:       step.Name,
				Capability: step.Capability,
				Status:     StatusCancelled,
				StartedAt:  time.Now(),
				EndedAt:    time.Now(),
				Error:      err.Error(),
			})
			telemetry.RecordSpanError(ctx, err)
			return &ExecutionResult{Trace: trace}, o.annotate(err, patternID, step.Name, rc)
		}

		if step.ParallelGroup == "" {
			if err := o.runStep(ctx, pattern, step, coerced, rc, state, &trace); err != nil {
				telemetry.RecordSpanError(ctx, err)
				return &ExecutionResult{Trace: trace}, err
			}
			i++
			continue
		}

		j := i
		for j < len(pattern.Steps) && pattern.Steps[j].ParallelGroup == step.ParallelGroup {
			j++
		}
		if err := o.runGroup(ctx, pattern, pattern.Steps[i:j], coerced, rc, state, &trace); err != nil {
			telemetry.RecordSpanError(ctx, err)
			return &ExecutionResult{Trace: trace}, err
		}
		i = j
	}

	outputs := make(map[string]interface{}, len(pattern.Outputs))
	root := NewTemplateRoot(coerced, rc, state)
	for name, tmpl := range pattern.Outputs {
		value, err := ResolveLenient(tmpl, root)
		if err != nil {
			// Lenient resolution cannot fail on missing paths; anything else
			// projects as null rather than failing a finished execution.
			value = nil
		}
		outputs[name] = value
	}

	result := &ExecutionResult{
		Outputs:    outputs,
		Trace:      trace,
		Provenance: summarizeProvenance(rc, trace, time.Now()),
	}
	o.logger.Info("Pattern executed", map[string]interface{}{
		"operation":      "pattern_execute",
		"pattern":        patternID,
		"steps":          len(trace),
		"correlation_id": rc.CorrelationID,
	})
	return result, nil
}

// runStep executes one serial step, appending exactly one trace entry.
// A nil return means execution continues; an error halts the pattern.
func (o *Orchestrator) runStep(ctx context.Context, pattern *Pattern, step *Step, inputs map[string]interface{}, rc *core.RequestContext, state map[string]interface{}, trace *[]TraceEntry) error {
	started := time.Now()
	root := NewTemplateRoot(inputs, rc, state)

	if step.Condition != "" {
		condValue, err := ResolveValue(step.Condition, root)
		if err != nil {
			*trace = append(*trace, o.failedEntry(step, started, err))
			return o.annotate(err, pattern.ID, step.Name, rc)
		}
		if !Truthy(condValue) {
			*trace = append(*trace, TraceEntry{
				Step:       step.Name,
				Capability: step.Capability,
				Status:     StatusSkipped,
				StartedAt:  started,
				EndedAt:    time.Now(),
			})
			return nil
		}
	}

	args, err := o.resolveArgs(step, root)
	if err != nil {
		*trace = append(*trace, o.failedEntry(step, started, err))
		return o.annotate(err, pattern.ID, step.Name, rc)
	}

	fp, err := Fingerprint(pattern.ID, pattern.Version, step.Name, step.Capability, args, rc.PricingPackID, rc.LedgerCommitHash)
	if err != nil {
		*trace = append(*trace, o.failedEntry(step, started, err))
		return o.annotate(err, pattern.ID, step.Name, rc)
	}

	if cached, ok := o.cache.Get(ctx, fp); ok {
		telemetry.AddSpanEvent(ctx, "cache_hit", attribute.String("step", step.Name))
		state[step.StateKey()] = cached.Value
		*trace = append(*trace, o.resultEntry(step, started, cached, StatusCached))
		return nil
	}

	result, err := o.runtime.Invoke(ctx, step.Capability, rc, args)
	if err != nil {
		return o.stepFailure(pattern, step, started, err, state, trace, rc)
	}

	if ttl := cacheTTL(step, result); ttl > 0 {
		o.cache.Set(ctx, fp, result, ttl)
	}
	state[step.StateKey()] = result.Value
	*trace = append(*trace, o.resultEntry(step, started, result, StatusOK))
	return nil
}

// groupMember carries one parallel-group step through resolve, fan-out, and
// commit.
type groupMember struct {
	step    *Step
	args    map[string]interface{}
	fp      string
	skipped bool
	cached  *StepResult
	started time.Time
	ended   time.Time
	result  *StepResult
	err     error
}

// runGroup executes a contiguous parallel group: args resolve serially
// against pre-group state, invocations fan out bounded by the configured
// width, and the barrier commits state writes and trace entries in
// declaration order regardless of completion order.
func (o *Orchestrator) runGroup(ctx context.Context, pattern *Pattern, steps []Step, inputs map[string]interface{}, rc *core.RequestContext, state map[string]interface{}, trace *[]TraceEntry) error {
	root := NewTemplateRoot(inputs, rc, state)
	members := make([]*groupMember, len(steps))

	for i := range steps {
		step := &steps[i]
		m := &groupMember{step: step, started: time.Now()}
		members[i] = m

		if step.Condition != "" {
			condValue, err := ResolveValue(step.Condition, root)
			if err != nil {
				*trace = append(*trace, o.failedEntry(step, m.started, err))
				return o.annotate(err, pattern.ID, step.Name, rc)
			}
			if !Truthy(condValue) {
				m.skipped = true
				continue
			}
		}

		args, err := o.resolveArgs(step, root)
		if err != nil {
			*trace = append(*trace, o.failedEntry(step, m.started, err))
			return o.annotate(err, pattern.ID, step.Name, rc)
		}
		m.args = args

		fp, err := Fingerprint(pattern.ID, pattern.Version, step.Name, step.Capability, args, rc.PricingPackID, rc.LedgerCommitHash)
		if err != nil {
			*trace = append(*trace, o.failedEntry(step, m.started, err))
			return o.annotate(err, pattern.ID, step.Name, rc)
		}
		m.fp = fp

		if cached, ok := o.cache.Get(ctx, fp); ok {
			m.cached = cached
		}
	}

	sem := make(chan struct{}, o.width)
	var wg sync.WaitGroup
	for _, m := range members {
		if m.skipped || m.cached != nil {
			continue
		}
		wg.Add(1)
		go func(m *groupMember) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			m.started = time.Now()
			m.result, m.err = o.runtime.Invoke(ctx, m.step.Capability, rc, m.args)
			m.ended = time.Now()
		}(m)
	}
	wg.Wait()

	// Commit at the barrier, in declaration order.
	var halt error
	for _, m := range members {
		step := m.step
		switch {
		case m.skipped:
			*trace = append(*trace, TraceEntry{
				Step:       step.Name,
				Capability: step.Capability,
				Status:     StatusSkipped,
				StartedAt:  m.started,
				EndedAt:    m.started,
			})
		case m.cached != nil:
			state[step.StateKey()] = m.cached.Value
			*trace = append(*trace, o.resultEntry(step, m.started, m.cached, StatusCached))
		case m.err != nil:
			if err := o.stepFailure(pattern, step, m.started, m.err, state, trace, rc); err != nil && halt == nil {
				halt = err
			}
		default:
			if ttl := cacheTTL(step, m.result); ttl > 0 {
				o.cache.Set(ctx, m.fp, m.result, ttl)
			}
			state[step.StateKey()] = m.result.Value
			*trace = append(*trace, o.resultEntry(step, m.started, m.result, StatusOK))
		}
	}
	return halt
}

// stepFailure applies the failure policy for one invocation error: declared
// fallbacks absorb it, optional steps record and continue, everything else
// halts. Resolution-level errors never reach here; only invocation outcomes
// are fallback-eligible.
func (o *Orchestrator) stepFailure(pattern *Pattern, step *Step, started time.Time, err error, state map[string]interface{}, trace *[]TraceEntry, rc *core.RequestContext) error {
	kind := core.KindOf(err)
	fallbackEligible := kind == core.KindCircuitOpen ||
		kind == core.KindAgentTransientFailure ||
		kind == core.KindAgentPermanentFailure ||
		kind == core.KindValidationFailure

	if fallbackEligible && step.Fallback != nil {
		state[step.StateKey()] = step.Fallback
		*trace = append(*trace, TraceEntry{
			Step:       step.Name,
			Capability: step.Capability,
			Status:     StatusFallback,
			StartedAt:  started,
			EndedAt:    time.Now(),
			Error:      err.Error(),
		})
		return nil
	}

	*trace = append(*trace, o.failedEntry(step, started, err))

	if fallbackEligible && step.Optional {
		o.logger.Warn("Optional step failed", map[string]interface{}{
			"operation":      "pattern_execute",
			"pattern":        pattern.ID,
			"step":           step.Name,
			"error":          err.Error(),
			"correlation_id": rc.CorrelationID,
		})
		return nil
	}
	return o.annotate(err, pattern.ID, step.Name, rc)
}

func (o *Orchestrator) resolveArgs(step *Step, root map[string]interface{}) (map[string]interface{}, error) {
	if len(step.Args) == 0 {
		return map[string]interface{}{}, nil
	}
	resolved, err := ResolveValue(step.Args, root)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]interface{}), nil
}

// interrupted reports whether the request has been cancelled or has run out
// of wall-clock budget. Checked between steps; in-flight invocations finish
// cooperatively through their derived deadlines.
func (o *Orchestrator) interrupted(ctx context.Context, rc *core.RequestContext) error {
	if err := ctx.Err(); err != nil {
		kind := core.KindExecutionCancelled
		if errors.Is(err, context.DeadlineExceeded) {
			kind = core.KindDeadlineExceeded
		}
		return &core.Error{Kind: kind, Op: "orchestrator.execute", Err: err}
	}
	if rc.Timeout > 0 && rc.Remaining() <= 0 {
		return &core.Error{
			Kind:    core.KindDeadlineExceeded,
			Op:      "orchestrator.execute",
			Message: "request wall-clock budget exhausted",
		}
	}
	return nil
}

func (o *Orchestrator) resultEntry(step *Step, started time.Time, result *StepResult, status string) TraceEntry {
	return TraceEntry{
		Step:       step.Name,
		Capability: step.Capability,
		Agent:      result.Agent,
		Status:     status,
		StartedAt:  started,
		EndedAt:    time.Now(),
		Source:     result.Source,
		AsOf:       result.AsOf,
		TTLSeconds: result.TTLSeconds,
		Attempts:   result.Attempts,
		Warnings:   result.Warnings,
	}
}

func (o *Orchestrator) failedEntry(step *Step, started time.Time, err error) TraceEntry {
	return TraceEntry{
		Step:       step.Name,
		Capability: step.Capability,
		Status:     StatusFailed,
		StartedAt:  started,
		EndedAt:    time.Now(),
		Error:      err.Error(),
	}
}

// annotate stamps pattern, step, and correlation identity onto a structured
// error without disturbing its kind. Non-structured errors wrap as Internal.
func (o *Orchestrator) annotate(err error, patternID, step string, rc *core.RequestContext) error {
	var e *core.Error
	if errors.As(err, &e) {
		if e.PatternID == "" {
			e.PatternID = patternID
		}
		if e.Step == "" {
			e.Step = step
		}
		if e.CorrelationID == "" {
			e.CorrelationID = rc.CorrelationID
		}
		return e
	}
	return &core.Error{
		Kind:          core.KindInternal,
		Op:            "orchestrator.execute",
		PatternID:     patternID,
		Step:          step,
		CorrelationID: rc.CorrelationID,
		Err:           err,
	}
}
