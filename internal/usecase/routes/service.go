// Package routes implements operator-facing route management: CRUD on the
// live collection plus persistence of the static route set.
package routes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/cenkalti/backoff/v4"

	"revp/internal/boundaries/in"
	"revp/internal/boundaries/out"
	"revp/internal/domain"
)

const (
	// maxConflictRetries bounds how often a mutation is retried after a
	// version conflict before the error surfaces to the caller.
	maxConflictRetries = 3
	conflictRetryDelay = 50 * time.Millisecond
)

// Service implements in.RouteService. Every mutation is a full
// read-modify-write of the route collection under the version token; a
// concurrent modification fails the write and the mutation is retried on a
// fresh read a bounded number of times.
type Service struct {
	proxy   out.ProxyCollection
	builder out.RouteDocumentBuilder
	store   out.StaticRouteStore
	log     zerowrap.Logger

	mu     sync.RWMutex
	static []domain.RouteSpec
}

// NewService creates the route management service.
func NewService(proxy out.ProxyCollection, builder out.RouteDocumentBuilder, store out.StaticRouteStore, log zerowrap.Logger) *Service {
	return &Service{
		proxy:   proxy,
		builder: builder,
		store:   store,
		log: zerowrap.Logger{Logger: log.With().
			Str(zerowrap.FieldLayer, "usecase").
			Str(zerowrap.FieldUseCase, "routes").
			Logger()},
	}
}

// LoadStatic reads the persisted static route set into memory. Called once
// at startup; the routes reach the proxy through the next reconcile cycle.
func (s *Service) LoadStatic() error {
	routes, err := s.store.Load()
	if err != nil {
		return err
	}
	for i := range routes {
		routes[i] = s.builder.Normalize(routes[i])
	}

	s.mu.Lock()
	s.static = routes
	s.mu.Unlock()

	s.log.Info().Int(zerowrap.FieldCount, len(routes)).Msg("static routes loaded")
	return nil
}

// StaticRoutes returns the current static route set.
func (s *Service) StaticRoutes() []domain.RouteSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	routes := make([]domain.RouteSpec, len(s.static))
	copy(routes, s.static)
	return routes
}

// List returns every route in the live collection, foreign routes included.
func (s *Service) List(ctx context.Context) ([]domain.RouteSpec, error) {
	rev, err := s.proxy.Read(ctx)
	if err != nil {
		return nil, err
	}

	specs := make([]domain.RouteSpec, 0, len(rev.Entries))
	for _, e := range rev.Entries {
		specs = append(specs, e.Spec)
	}
	return specs, nil
}

// Get returns a single route by ID.
func (s *Service) Get(ctx context.Context, id string) (domain.RouteSpec, error) {
	rev, err := s.proxy.Read(ctx)
	if err != nil {
		return domain.RouteSpec{}, err
	}

	entry, ok := rev.FindByID(id)
	if !ok {
		return domain.RouteSpec{}, fmt.Errorf("%w: %s", domain.ErrRouteNotFound, id)
	}
	return entry.Spec, nil
}

// Create adds a static route to the live collection and persists it. The ID
// is normalized to carry the static_ prefix. Fails if the ID already exists
// or the host is claimed by any other route, foreign ones included.
func (s *Service) Create(ctx context.Context, spec domain.RouteSpec) (domain.RouteSpec, error) {
	spec.ID = domain.StaticRouteID(spec.ID, "")
	spec.Source = domain.RouteSourceStatic
	if spec.UpstreamProto == "" {
		spec.UpstreamProto = domain.ProtoHTTP
	}
	spec.Terminal = true
	spec = s.builder.Normalize(spec)

	if err := spec.Validate(); err != nil {
		return domain.RouteSpec{}, err
	}

	err := s.withConflictRetry(ctx, func(ctx context.Context) error {
		rev, err := s.proxy.Read(ctx)
		if err != nil {
			return err
		}

		if _, exists := rev.FindByID(spec.ID); exists {
			return fmt.Errorf("%w: %s", domain.ErrRouteExists, spec.ID)
		}
		if owner, claimed := rev.HostOwner(spec.Host); claimed && owner != spec.ID {
			return fmt.Errorf("%w: %s is routed by %s", domain.ErrDuplicateHost, spec.Host, owner)
		}

		entry, err := s.builder.Build(spec)
		if err != nil {
			return err
		}

		return s.proxy.Write(ctx, append(rev.Entries, entry), rev.Token)
	})
	if err != nil {
		return domain.RouteSpec{}, err
	}

	s.mu.Lock()
	s.static = append(s.static, spec)
	s.mu.Unlock()

	if err := s.persistStatic(); err != nil {
		return domain.RouteSpec{}, err
	}

	s.log.Info().
		Str(zerowrap.FieldEntityID, spec.ID).
		Str(zerowrap.FieldHost, spec.Host).
		Msg("route created")
	return spec, nil
}

// Update rebuilds an owned route with new upstream settings. The route is
// never patched in place; the whole document is regenerated from the
// updated spec.
func (s *Service) Update(ctx context.Context, id string, update in.RouteUpdate) (domain.RouteSpec, error) {
	var updated domain.RouteSpec

	err := s.withConflictRetry(ctx, func(ctx context.Context) error {
		rev, err := s.proxy.Read(ctx)
		if err != nil {
			return err
		}

		entry, ok := rev.FindByID(id)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrRouteNotFound, id)
		}
		if !entry.Spec.Owned() {
			return fmt.Errorf("%w: %s", domain.ErrForeignRoute, id)
		}

		spec := entry.Spec
		if update.UpstreamProto != nil {
			spec.UpstreamProto = *update.UpstreamProto
		}
		if update.UpstreamHost != nil {
			spec.UpstreamHost = *update.UpstreamHost
		}
		if update.UpstreamPort != nil {
			spec.UpstreamPort = *update.UpstreamPort
		}
		if update.DNSResolver != nil {
			spec.DNSResolver = *update.DNSResolver
		}
		if update.Terminal != nil {
			spec.Terminal = *update.Terminal
		}
		spec = s.builder.Normalize(spec)
		if err := spec.Validate(); err != nil {
			return err
		}

		rebuilt, err := s.builder.Build(spec)
		if err != nil {
			return err
		}

		entries := make([]domain.RouteEntry, len(rev.Entries))
		copy(entries, rev.Entries)
		for i := range entries {
			if entries[i].Spec.ID == id {
				entries[i] = rebuilt
			}
		}

		if err := s.proxy.Write(ctx, entries, rev.Token); err != nil {
			return err
		}
		updated = spec
		return nil
	})
	if err != nil {
		return domain.RouteSpec{}, err
	}

	if updated.Source == domain.RouteSourceStatic {
		s.mu.Lock()
		for i := range s.static {
			if s.static[i].ID == id {
				s.static[i] = updated
			}
		}
		s.mu.Unlock()
		if err := s.persistStatic(); err != nil {
			return domain.RouteSpec{}, err
		}
	}

	s.log.Info().Str(zerowrap.FieldEntityID, id).Msg("route updated")
	return updated, nil
}

// Delete removes an owned route. Deleting a route that does not exist is a
// no-op; deleting a foreign route is refused.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.withConflictRetry(ctx, func(ctx context.Context) error {
		rev, err := s.proxy.Read(ctx)
		if err != nil {
			return err
		}

		entry, ok := rev.FindByID(id)
		if !ok {
			return nil
		}
		if !entry.Spec.Owned() {
			return fmt.Errorf("%w: %s", domain.ErrForeignRoute, id)
		}

		entries := make([]domain.RouteEntry, 0, len(rev.Entries)-1)
		for _, e := range rev.Entries {
			if e.Spec.ID != id {
				entries = append(entries, e)
			}
		}
		return s.proxy.Write(ctx, entries, rev.Token)
	})
	if err != nil {
		return err
	}

	removed := false
	s.mu.Lock()
	kept := s.static[:0]
	for _, spec := range s.static {
		if spec.ID == id {
			removed = true
			continue
		}
		kept = append(kept, spec)
	}
	s.static = kept
	s.mu.Unlock()

	if removed {
		if err := s.persistStatic(); err != nil {
			return err
		}
	}

	s.log.Info().Str(zerowrap.FieldEntityID, id).Msg("route deleted")
	return nil
}

func (s *Service) persistStatic() error {
	s.mu.RLock()
	routes := make([]domain.RouteSpec, len(s.static))
	copy(routes, s.static)
	s.mu.RUnlock()

	if err := s.store.Save(routes); err != nil {
		return s.log.WrapErr(err, "persisting static routes")
	}
	return nil
}

// withConflictRetry runs op, retrying a bounded number of times when the
// conditional write lost the race. Every retry starts from a fresh read.
func (s *Service) withConflictRetry(ctx context.Context, op func(context.Context) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(conflictRetryDelay), maxConflictRetries),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrConflict):
			s.log.Warn().Err(err).Msg("write conflict, retrying from fresh read")
			return err
		default:
			return backoff.Permanent(err)
		}
	}, policy)
}
