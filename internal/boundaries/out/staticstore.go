package out

import "revp/internal/domain"

// StaticRouteStore persists declaratively configured routes. Load returns
// no routes (not an error) when the backing file does not exist; Save
// replaces the stored set atomically.
type StaticRouteStore interface {
	Load() ([]domain.RouteSpec, error)
	Save(routes []domain.RouteSpec) error
}
