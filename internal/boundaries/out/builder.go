package out

import "revp/internal/domain"

// RouteDocumentBuilder renders a route spec into the proxy's wire document.
// Building is deterministic; the same spec always yields the same document.
//
// Normalize collapses wire defaults out of a spec so that a spec compares
// equal to the spec extracted from its own document. Desired specs must be
// normalized before they are diffed against extracted ones.
type RouteDocumentBuilder interface {
	Build(spec domain.RouteSpec) (domain.RouteEntry, error)
	Normalize(spec domain.RouteSpec) domain.RouteSpec
}
