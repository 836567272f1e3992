package core

import "context"

// CapabilityHandler is the method bound to one capability. It receives the
// request context plus the already-resolved args, and returns an opaque
// value. Handlers never see the execution state; cross-step data flow goes
// through the orchestrator.
type CapabilityHandler func(ctx context.Context, rc *RequestContext, args map[string]interface{}) (interface{}, error)

// Capability declares one named operation an agent implements. Registration
// is explicit at agent construction; there is no annotation scanning.
type Capability struct {
	// Name uses dotted notation by convention, e.g. "metrics.compute_twr".
	// The registry does not interpret the structure.
	Name        string
	Description string
	Tags        []string

	// TTLSeconds is the agent-declared cache lifetime for results of this
	// capability. 0 means results are never cached.
	TTLSeconds int

	// RequiresPricingPack makes the runtime reject invocations whose request
	// context has no pricing pack id, before the handler runs.
	RequiresPricingPack bool

	Handler CapabilityHandler
}

// Agent is any object exposing a stable name and a set of capabilities.
// The orchestrator treats all agents uniformly; agents must never reach the
// cache, the pattern store, or other agents directly.
type Agent interface {
	Name() string
	Capabilities() []Capability
}
