package status

import (
	"sync"
	"time"
)

// ServiceStatus is a point-in-time view of one service's availability.
type ServiceStatus struct {
	Available    bool          `json:"available"`
	LastChecked  time.Time     `json:"last_checked"`
	LastError    string        `json:"last_error,omitempty"`
	ResponseTime time.Duration `json:"response_time,omitempty"`
}

// Table tracks availability per service name. It is safe for concurrent
// use and is injected into the health monitor and the proxy rather than
// living as package state.
type Table struct {
	mutex    sync.RWMutex
	statuses map[string]ServiceStatus
	nowFunc  func() time.Time
}

// NewTable creates an empty status table.
func NewTable() *Table {
	return &Table{
		statuses: make(map[string]ServiceStatus),
		nowFunc:  time.Now,
	}
}

// MarkAvailable records a successful probe or proxied response for the
// service, clearing any previous error.
func (t *Table) MarkAvailable(name string, responseTime time.Duration) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.statuses[name] = ServiceStatus{
		Available:    true,
		LastChecked:  t.nowFunc(),
		ResponseTime: responseTime,
	}
}

// MarkUnavailable records a failed probe or proxied response for the service.
func (t *Table) MarkUnavailable(name string, lastError string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.statuses[name] = ServiceStatus{
		Available:   false,
		LastChecked: t.nowFunc(),
		LastError:   lastError,
	}
}

// Get returns the recorded status for a service. The second return value
// is false if the service has never been probed.
func (t *Table) Get(name string) (ServiceStatus, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	s, ok := t.statuses[name]
	return s, ok
}

// Snapshot returns a copy of the full table.
func (t *Table) Snapshot() map[string]ServiceStatus {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	snap := make(map[string]ServiceStatus, len(t.statuses))
	for name, s := range t.statuses {
		snap[name] = s
	}
	return snap
}

// AllAvailable reports whether every one of the given services is
// currently marked available. Services with no recorded status count
// as unavailable.
func (t *Table) AllAvailable(names []string) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	for _, name := range names {
		s, ok := t.statuses[name]
		if !ok || !s.Available {
			return false
		}
	}
	return true
}

// SetNowFunc overrides the time source (for testing).
func (t *Table) SetNowFunc(fn func() time.Time) {
	t.mutex.Lock()
	t.nowFunc = fn
	t.mutex.Unlock()
}
