package resilience

import "sync"

// resultWindow is a fixed-size ring over the outcome of the last N
// invocations. The breaker evaluates the failure rate over this window, so
// old outcomes age out by invocation count, not by wall clock.
type resultWindow struct {
	mu       sync.Mutex
	outcomes []bool // true = failure
	next     int
	filled   int
	failures int
}

func newResultWindow(size int) *resultWindow {
	if size <= 0 {
		size = 20
	}
	return &resultWindow{outcomes: make([]bool, size)}
}

// record adds one outcome, evicting the oldest when the window is full.
func (w *resultWindow) record(failure bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.filled == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.filled++
	}
	w.outcomes[w.next] = failure
	if failure {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.outcomes)
}

// snapshot returns (total recorded, failures) for threshold evaluation.
func (w *resultWindow) snapshot() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filled, w.failures
}

// reset clears the window, used when the breaker closes after recovery.
func (w *resultWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.outcomes {
		w.outcomes[i] = false
	}
	w.next = 0
	w.filled = 0
	w.failures = 0
}
