package in

import "revp/internal/domain"

// HostStatusService exposes the per-host scan outcomes to operators.
type HostStatusService interface {
	Hosts() []domain.HostRecord
	Statuses() map[string]domain.HostStatus
}
