// File: internal/navigator/stop.go
package navigator

import "sync"

// StopSignal is a single-writer, idempotent-set, many-reader cancellation
// flag scoped to one run. It is observed at step boundaries only; in-flight
// model or browser calls are never interrupted.
type StopSignal struct {
	once sync.Once
	done chan struct{}
}

// NewStopSignal creates an unset signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Set marks the signal. Repeated calls are no-ops.
func (s *StopSignal) Set() {
	s.once.Do(func() { close(s.done) })
}

// Stopped reports whether the signal has been set.
func (s *StopSignal) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done exposes the signal as a channel for select-based waits.
func (s *StopSignal) Done() <-chan struct{} {
	return s.done
}

// StopRegistry maps session identifiers to their StopSignal. It is the only
// state shared between concurrent runs, so all access is mutex-guarded.
// Entries must be removed on every run exit path to avoid leaking
// cancellation state across sessions.
type StopRegistry struct {
	mu      sync.Mutex
	signals map[string]*StopSignal
}

// NewStopRegistry creates an empty registry.
func NewStopRegistry() *StopRegistry {
	return &StopRegistry{signals: make(map[string]*StopSignal)}
}

// Add registers a signal under the session id, replacing any previous entry.
func (r *StopRegistry) Add(sessionID string, signal *StopSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals[sessionID] = signal
}

// Lookup returns the signal for the session id, if registered.
func (r *StopRegistry) Lookup(sessionID string) (*StopSignal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signals[sessionID]
	return s, ok
}

// Remove drops the registration. Removing an unknown id is a no-op.
func (r *StopRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.signals, sessionID)
}

// Len reports the number of live registrations.
func (r *StopRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}
