// Package in defines input ports (interfaces) for driving adapters.
// HTTP handlers and CLI commands depend on these interfaces rather than on
// concrete use case services.
package in

import (
	"context"

	"revp/internal/domain"
)

// RouteUpdate carries the mutable fields of a route. Nil fields keep the
// current value; the route is always fully rebuilt, never patched in place.
type RouteUpdate struct {
	UpstreamProto *string
	UpstreamHost  *string
	UpstreamPort  *int
	DNSResolver   *string
	Terminal      *bool
}

// RouteService manages routes on the live proxy collection.
type RouteService interface {
	List(ctx context.Context) ([]domain.RouteSpec, error)
	Get(ctx context.Context, id string) (domain.RouteSpec, error)
	Create(ctx context.Context, spec domain.RouteSpec) (domain.RouteSpec, error)
	Update(ctx context.Context, id string, update RouteUpdate) (domain.RouteSpec, error)
	Delete(ctx context.Context, id string) error

	// StaticRoutes returns the current static route set (desired state
	// contribution of the declarative store).
	StaticRoutes() []domain.RouteSpec
}
