// Package out defines output ports (interfaces) for infrastructure.
// These interfaces define the contract between use cases and driven adapters
// (Caddy admin API, SSH hosts, filesystem).
package out

import (
	"context"

	"revp/internal/domain"
)

// ProxyCollection is the versioned route collection on the external proxy.
// Reads return the full collection with its version token; writes replace
// the full collection atomically from the proxy's perspective, conditional
// on the token. A stale token fails the whole write with
// domain.ErrConflict and the collection is guaranteed untouched.
//
// The adapter never retries internally; retry policy belongs to callers.
type ProxyCollection interface {
	Read(ctx context.Context) (*domain.ConfigRevision, error)
	Write(ctx context.Context, entries []domain.RouteEntry, token string) error
	Ping(ctx context.Context) error
}
