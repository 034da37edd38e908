// Package dockerlocal lists containers through the local Docker socket.
// It serves hosts of kind "local", where the engine runs next to the
// containers it watches and no SSH hop is needed.
package dockerlocal

import (
	"context"
	"fmt"
	"strings"

	"github.com/bnema/zerowrap"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"revp/internal/domain"
)

// Lister implements out.ContainerLister against the local Docker API.
type Lister struct {
	client *client.Client
}

// NewLister creates a Docker API lister using environment configuration
// (DOCKER_HOST et al).
func NewLister() (*Lister, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &Lister{client: cli}, nil
}

// NewListerWithClient creates a lister with a custom client (for testing).
func NewListerWithClient(cli *client.Client) *Lister {
	return &Lister{client: cli}
}

// ListContainers returns running containers with their label maps. The host
// record only contributes its name for logging; the connection is always the
// local socket.
func (l *Lister) ListContainers(ctx context.Context, host domain.HostRecord) ([]domain.ContainerInfo, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "dockerlocal",
		zerowrap.FieldAction:  "ListContainers",
		zerowrap.FieldHost:    host.Name,
	})
	log := zerowrap.FromCtx(ctx)

	containers, err := l.client.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, log.WrapErr(err, "failed to list containers")
	}

	result := make([]domain.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		result = append(result, domain.ContainerInfo{
			ID:     c.ID,
			Name:   name,
			Labels: c.Labels,
		})
	}

	log.Debug().Int(zerowrap.FieldCount, len(result)).Msg("containers listed")
	return result, nil
}
