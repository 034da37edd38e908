package out

import (
	"context"

	"revp/internal/domain"
)

// ContainerLister fetches container records with their label maps from a
// Docker host. Implementations exist for SSH-reachable hosts and for the
// local Docker socket.
type ContainerLister interface {
	ListContainers(ctx context.Context, host domain.HostRecord) ([]domain.ContainerInfo, error)
}
