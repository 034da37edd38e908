// Package reconcile drives the periodic convergence of desired routing
// state (discovered containers plus static routes) onto the proxy's live
// route collection.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/cenkalti/backoff/v4"

	"revp/internal/boundaries/out"
	"revp/internal/domain"
)

const (
	maxConflictRetries = 3
	conflictRetryDelay = 50 * time.Millisecond
)

// DiscoveredRoutes supplies the scan half of desired state.
type DiscoveredRoutes interface {
	Scan(ctx context.Context) ([]domain.RouteSpec, error)
}

// StaticRoutes supplies the declarative half of desired state.
type StaticRoutes interface {
	StaticRoutes() []domain.RouteSpec
}

// Reconciler converges the live route collection towards desired state in
// periodic cycles. Each cycle is one read, one in-memory diff and at most
// one conditional write; foreign routes pass through byte-for-byte.
type Reconciler struct {
	proxy    out.ProxyCollection
	builder  out.RouteDocumentBuilder
	scans    DiscoveredRoutes
	static   StaticRoutes
	interval time.Duration
	log      zerowrap.Logger
}

// New creates a reconciler running one cycle per interval.
func New(proxy out.ProxyCollection, builder out.RouteDocumentBuilder, scans DiscoveredRoutes, static StaticRoutes, interval time.Duration, log zerowrap.Logger) *Reconciler {
	return &Reconciler{
		proxy:    proxy,
		builder:  builder,
		scans:    scans,
		static:   static,
		interval: interval,
		log: zerowrap.Logger{Logger: log.With().
			Str(zerowrap.FieldLayer, "usecase").
			Str(zerowrap.FieldUseCase, "reconcile").
			Logger()},
	}
}

// Run loops until ctx is cancelled. The first cycle starts immediately;
// subsequent cycles are spaced so that cycle time counts against the
// interval. A cycle already in progress finishes before Run returns.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		start := time.Now()

		if err := r.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A failed cycle is retried on the next tick; desired state is
			// recomputed from scratch so nothing is lost.
			r.log.Error().Err(err).Msg("reconcile cycle failed")
		}

		sleep := r.interval - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Cycle runs a single reconcile pass. Version conflicts are retried a
// bounded number of times from a fresh read before the cycle gives up.
func (r *Reconciler) Cycle(ctx context.Context) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(conflictRetryDelay), maxConflictRetries),
		ctx,
	)
	return backoff.Retry(func() error {
		err := r.converge(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrConflict):
			r.log.Warn().Err(err).Msg("collection changed during cycle, retrying")
			return err
		default:
			return backoff.Permanent(err)
		}
	}, policy)
}

func (r *Reconciler) converge(ctx context.Context) error {
	scanned, err := r.scans.Scan(ctx)
	if err != nil {
		return err
	}
	desired := r.mergeDesired(r.static.StaticRoutes(), scanned)

	rev, err := r.proxy.Read(ctx)
	if err != nil {
		return err
	}

	next, changed := r.diff(rev, desired)
	if !changed {
		r.log.Debug().Int(zerowrap.FieldCount, len(rev.Entries)).Msg("collection in sync")
		return nil
	}

	if err := r.proxy.Write(ctx, next, rev.Token); err != nil {
		return err
	}

	r.log.Info().
		Int("desired", len(desired)).
		Int(zerowrap.FieldCount, len(next)).
		Msg("collection converged")
	return nil
}

// mergeDesired unions static and discovered routes into the desired set.
// Static routes take precedence; within each half the first claim on a
// host wins and later claims are dropped with a warning. Specs are
// normalized here so the diff compares them against extracted specs on
// equal terms.
func (r *Reconciler) mergeDesired(static, scanned []domain.RouteSpec) map[string]domain.RouteSpec {
	desired := make(map[string]domain.RouteSpec, len(static)+len(scanned))
	hosts := make(map[string]string, len(static)+len(scanned))

	for _, spec := range append(append([]domain.RouteSpec{}, static...), scanned...) {
		spec = r.builder.Normalize(spec)
		if owner, claimed := hosts[spec.Host]; claimed {
			r.log.Warn().
				Str(zerowrap.FieldEntityID, spec.ID).
				Str(zerowrap.FieldHost, spec.Host).
				Str("claimed_by", owner).
				Msg("duplicate host in desired state, route dropped")
			continue
		}
		hosts[spec.Host] = spec.ID
		desired[spec.ID] = spec
	}
	return desired
}

// diff computes the next collection. Foreign entries are carried over
// verbatim; owned entries are kept, rebuilt or dropped; desired routes not
// yet present are appended. Returns the next entries and whether anything
// actually changed.
func (r *Reconciler) diff(rev *domain.ConfigRevision, desired map[string]domain.RouteSpec) ([]domain.RouteEntry, bool) {
	next := make([]domain.RouteEntry, 0, len(rev.Entries)+len(desired))
	hosts := make(map[string]string)
	seen := make(map[string]bool, len(desired))
	changed := false

	claim := func(e domain.RouteEntry) {
		if e.Spec.Host != "" {
			hosts[e.Spec.Host] = e.Spec.ID
		}
	}

	for _, entry := range rev.Entries {
		if !entry.Spec.Owned() {
			next = append(next, entry)
			claim(entry)
			continue
		}

		want, ok := desired[entry.Spec.ID]
		if !ok {
			changed = true
			r.log.Info().
				Str(zerowrap.FieldEntityID, entry.Spec.ID).
				Str(zerowrap.FieldHost, entry.Spec.Host).
				Msg("removing route")
			continue
		}
		seen[entry.Spec.ID] = true

		if want == entry.Spec {
			next = append(next, entry)
			claim(entry)
			continue
		}

		rebuilt, err := r.builder.Build(want)
		if err != nil {
			r.log.Error().Err(err).Str(zerowrap.FieldEntityID, want.ID).Msg("rebuild failed, keeping current route")
			next = append(next, entry)
			claim(entry)
			continue
		}
		changed = true
		next = append(next, rebuilt)
		claim(rebuilt)
		r.log.Info().Str(zerowrap.FieldEntityID, want.ID).Msg("rebuilding route")
	}

	ids := make([]string, 0, len(desired))
	for id := range desired {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		want := desired[id]
		if owner, claimed := hosts[want.Host]; claimed {
			r.log.Warn().
				Str(zerowrap.FieldEntityID, id).
				Str(zerowrap.FieldHost, want.Host).
				Str("claimed_by", owner).
				Msg("host already routed, not creating route")
			continue
		}

		entry, err := r.builder.Build(want)
		if err != nil {
			r.log.Error().Err(err).Str(zerowrap.FieldEntityID, id).Msg("build failed, route skipped")
			continue
		}
		changed = true
		next = append(next, entry)
		claim(entry)
		r.log.Info().
			Str(zerowrap.FieldEntityID, id).
			Str(zerowrap.FieldHost, want.Host).
			Msg("creating route")
	}

	return next, changed
}
