package discovery

import (
	"sync"
	"time"

	"revp/internal/domain"
)

// StatusRegistry tracks the latest scan outcome per host. It is written by
// scan cycles and read by the operator API, so access is guarded.
type StatusRegistry struct {
	mu       sync.RWMutex
	statuses map[string]domain.HostStatus
}

// NewStatusRegistry creates an empty registry.
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{statuses: make(map[string]domain.HostStatus)}
}

// Record stores the outcome of one scan attempt. A nil err marks success
// and refreshes LastSuccess; a non-nil err keeps the previous LastSuccess.
func (r *StatusRegistry) Record(host string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	status := r.statuses[host]
	status.LastCheck = now

	if err != nil {
		status.State = domain.HostStateError
		status.Message = err.Error()
	} else {
		status.State = domain.HostStateSuccess
		status.Message = ""
		status.LastSuccess = now
	}

	r.statuses[host] = status
}

// Snapshot returns a copy of all recorded statuses.
func (r *StatusRegistry) Snapshot() map[string]domain.HostStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.HostStatus, len(r.statuses))
	for name, status := range r.statuses {
		out[name] = status
	}
	return out
}
