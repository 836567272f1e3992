package core

import (
	"fmt"
	"sort"
	"sync"
)

// Binding ties a capability name to the agent that implements it. Bindings
// are registered once at process startup and immutable thereafter.
type Binding struct {
	Capability Capability
	AgentName  string
}

// CapabilityRegistry maps capability names to (agent, method) bindings and
// indexes agents by name. Capability names are globally unique; registering a
// duplicate is a fatal startup error naming both agents.
type CapabilityRegistry struct {
	mu       sync.RWMutex
	bindings map[string]Binding
	byAgent  map[string][]string // agent name -> capability names
	logger   Logger
}

// NewCapabilityRegistry creates an empty registry.
func NewCapabilityRegistry(logger Logger) *CapabilityRegistry {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &CapabilityRegistry{
		bindings: make(map[string]Binding),
		byAgent:  make(map[string][]string),
		logger:   logger,
	}
}

// Register records a binding for each capability the agent declares.
// A name collision is fatal: the error names both the holding and the
// offending agent so startup diagnostics are actionable.
func (r *CapabilityRegistry) Register(agent Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := agent.Name()
	if name == "" {
		return fmt.Errorf("register: agent has no name: %w", ErrInvalidConfiguration)
	}
	if _, exists := r.byAgent[name]; exists {
		return fmt.Errorf("register: agent %q already registered: %w", name, ErrDuplicateBinding)
	}

	caps := agent.Capabilities()
	for _, cap := range caps {
		if cap.Name == "" || cap.Handler == nil {
			return fmt.Errorf("register: agent %q declares capability with empty name or nil handler: %w",
				name, ErrInvalidConfiguration)
		}
		if held, exists := r.bindings[cap.Name]; exists {
			return fmt.Errorf("register: capability %q claimed by both %q and %q: %w",
				cap.Name, held.AgentName, name, ErrDuplicateBinding)
		}
	}

	names := make([]string, 0, len(caps))
	for _, cap := range caps {
		r.bindings[cap.Name] = Binding{Capability: cap, AgentName: name}
		names = append(names, cap.Name)
	}
	sort.Strings(names)
	r.byAgent[name] = names

	r.logger.Info("Agent registered", map[string]interface{}{
		"operation":    "registry_register",
		"agent":        name,
		"capabilities": len(names),
	})
	return nil
}

// Resolve returns the binding for a capability name.
func (r *CapabilityRegistry) Resolve(capability string) (Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[capability]
	if !ok {
		return Binding{}, fmt.Errorf("resolve %q: %w", capability, ErrCapabilityNotFound)
	}
	return b, nil
}

// Has reports whether a capability is registered. Used by the pattern loader
// to reject unresolved references at load time.
func (r *CapabilityRegistry) Has(capability string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bindings[capability]
	return ok
}

// ListCapabilities returns all capability names, sorted.
func (r *CapabilityRegistry) ListCapabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListAgents returns all agent names, sorted.
func (r *CapabilityRegistry) ListAgents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byAgent))
	for name := range r.byAgent {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AgentCapabilities returns the sorted capability names of one agent.
func (r *CapabilityRegistry) AgentCapabilities(agent string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names, ok := r.byAgent[agent]
	if !ok {
		return nil, fmt.Errorf("agent %q: %w", agent, ErrAgentNotFound)
	}
	out := make([]string, len(names))
	copy(out, names)
	return out, nil
}
