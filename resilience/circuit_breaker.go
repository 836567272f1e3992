package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/halcyonlabs/patternflow/core"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// StateClosed allows all requests through.
	StateClosed CircuitState = iota
	// StateOpen rejects all requests immediately.
	StateOpen
	// StateHalfOpen allows a single probe request.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrorClassifier decides which errors count toward opening the breaker.
// Only transient infrastructure failures should; a stream of validation
// errors says nothing about agent health.
type ErrorClassifier func(error) bool

// CircuitBreakerConfig holds the policy for one breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker, conventionally "<agent>:<capability>".
	Name string

	// WindowSize is the number of most recent invocations evaluated.
	WindowSize int

	// FailureRatio opens the breaker when the window's failure rate reaches
	// this value and MinFailures is also met.
	FailureRatio float64

	// MinFailures is the failure floor below which the breaker never opens,
	// regardless of rate.
	MinFailures int

	// Cooldown is how long the breaker stays open before allowing a probe.
	// Each failed probe doubles the effective cooldown up to CooldownCeiling.
	Cooldown        time.Duration
	CooldownCeiling time.Duration

	Classifier ErrorClassifier
	Logger     core.Logger
	Clock      func() time.Time
}

// DefaultBreakerConfig returns the runtime policy defaults.
func DefaultBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:            name,
		WindowSize:      20,
		FailureRatio:    0.5,
		MinFailures:     5,
		Cooldown:        30 * time.Second,
		CooldownCeiling: 10 * time.Minute,
		Classifier:      core.IsTransient,
	}
}

// Validate rejects unusable policies.
func (c *CircuitBreakerConfig) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("breaker %q: window size must be positive: %w", c.Name, core.ErrInvalidConfiguration)
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		return fmt.Errorf("breaker %q: failure ratio must be in (0,1]: %w", c.Name, core.ErrInvalidConfiguration)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("breaker %q: cooldown must be positive: %w", c.Name, core.ErrInvalidConfiguration)
	}
	return nil
}

// CircuitBreaker is a three-state failure-rate gate. One instance guards one
// (agent, capability) pair; instances are independent.
type CircuitBreaker struct {
	config *CircuitBreakerConfig
	window *resultWindow

	mu              sync.Mutex
	state           CircuitState
	openedAt        time.Time
	currentCooldown time.Duration
	probeInFlight   bool
}

// NewCircuitBreaker creates a breaker from config, applying defaults for
// unset fields.
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultBreakerConfig("default")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Classifier == nil {
		config.Classifier = core.IsTransient
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.CooldownCeiling <= 0 {
		config.CooldownCeiling = 10 * time.Minute
	}
	if config.MinFailures <= 0 {
		config.MinFailures = 1
	}
	return &CircuitBreaker{
		config:          config,
		window:          newResultWindow(config.WindowSize),
		state:           StateClosed,
		currentCooldown: config.Cooldown,
	}, nil
}

// Allow reports whether an invocation may proceed. In the half-open state
// only a single probe is admitted at a time.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.config.Clock().Sub(cb.openedAt) >= cb.currentCooldown {
			cb.transition(StateHalfOpen)
			cb.probeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful invocation.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		// Probe succeeded: close and start fresh.
		cb.probeInFlight = false
		cb.currentCooldown = cb.config.Cooldown
		cb.window.reset()
		cb.transition(StateClosed)
		return
	}
	cb.window.record(false)
}

// RecordFailure records a failed invocation. Errors the classifier rejects
// (permanent failures) do not feed the window but do end a half-open probe
// without reopening: a validation error proves the agent is reachable.
func (cb *CircuitBreaker) RecordFailure(err error) {
	counts := cb.config.Classifier(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probeInFlight = false
		if !counts {
			cb.currentCooldown = cb.config.Cooldown
			cb.window.reset()
			cb.transition(StateClosed)
			return
		}
		// Probe failed: back to open with doubled cooldown.
		cb.currentCooldown *= 2
		if cb.currentCooldown > cb.config.CooldownCeiling {
			cb.currentCooldown = cb.config.CooldownCeiling
		}
		cb.openedAt = cb.config.Clock()
		cb.transition(StateOpen)
		return
	}

	if !counts {
		cb.window.record(false)
		return
	}
	cb.window.record(true)

	total, failures := cb.window.snapshot()
	if cb.state == StateClosed &&
		failures >= cb.config.MinFailures &&
		float64(failures)/float64(total) >= cb.config.FailureRatio {
		cb.openedAt = cb.config.Clock()
		cb.transition(StateOpen)
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transition assumes cb.mu is held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.config.Logger.Info("Circuit breaker state change", map[string]interface{}{
		"operation":   "circuit_breaker_transition",
		"name":        cb.config.Name,
		"from":        from.String(),
		"to":          to.String(),
		"cooldown_ms": cb.currentCooldown.Milliseconds(),
	})
}
