package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bnema/zerowrap"
	"golang.org/x/sync/errgroup"

	"revp/internal/boundaries/out"
	"revp/internal/config"
	"revp/internal/domain"
)

// Scanner produces the discovered route set by listing containers on every
// enabled host and translating their service labels into route specs. The
// host inventory file is reloaded on each scan so inventory edits take
// effect on the next cycle.
//
// A failing host contributes nothing this cycle but does not fail the scan;
// its previously discovered routes simply fall out of the desired set.
type Scanner struct {
	sshLister   out.ContainerLister
	localLister out.ContainerLister
	hostsPath   string
	namespace   string
	statuses    *StatusRegistry
	log         zerowrap.Logger

	mu    sync.RWMutex
	hosts []domain.HostRecord
}

// NewScanner creates a scanner. namespace is the label prefix to consume,
// normally domain.DefaultLabelNamespace.
func NewScanner(sshLister, localLister out.ContainerLister, hostsPath, namespace string, statuses *StatusRegistry, log zerowrap.Logger) *Scanner {
	return &Scanner{
		sshLister:   sshLister,
		localLister: localLister,
		hostsPath:   hostsPath,
		namespace:   namespace,
		statuses:    statuses,
		log: zerowrap.Logger{Logger: log.With().
			Str(zerowrap.FieldLayer, "usecase").
			Str(zerowrap.FieldUseCase, "discovery").
			Logger()},
	}
}

// Scan lists containers on all enabled hosts in parallel and returns the
// discovered route specs, sorted by route ID.
func (s *Scanner) Scan(ctx context.Context) ([]domain.RouteSpec, error) {
	hosts, err := config.LoadHosts(s.hostsPath)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.hosts = hosts
	s.mu.Unlock()

	var specsMu sync.Mutex
	var specs []domain.RouteSpec

	g, ctx := errgroup.WithContext(ctx)
	for _, host := range hosts {
		if !host.Enabled {
			continue
		}
		g.Go(func() error {
			routes, err := s.scanHost(ctx, host)
			s.statuses.Record(host.Name, err)
			if err != nil {
				s.log.Error().
					Err(err).
					Str(zerowrap.FieldHost, host.Name).
					Msg("host scan failed, skipping this cycle")
				return nil
			}
			specsMu.Lock()
			specs = append(specs, routes...)
			specsMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })

	s.log.Debug().Int(zerowrap.FieldCount, len(specs)).Msg("scan cycle complete")
	return specs, nil
}

func (s *Scanner) scanHost(ctx context.Context, host domain.HostRecord) ([]domain.RouteSpec, error) {
	lister := s.sshLister
	if host.Kind == domain.HostKindLocal {
		lister = s.localLister
	}

	containers, err := lister.ListContainers(ctx, host)
	if err != nil {
		return nil, err
	}

	var specs []domain.RouteSpec
	for _, c := range containers {
		descriptors, errs := ParseServices(c.Labels, s.namespace)
		for _, parseErr := range errs {
			s.log.Warn().
				Err(parseErr).
				Str(zerowrap.FieldHost, host.Name).
				Str("container", c.Name).
				Msg("ignoring malformed service label")
		}

		for _, desc := range descriptors {
			specs = append(specs, s.routeForService(host, c, desc))
		}
	}
	return specs, nil
}

func (s *Scanner) routeForService(host domain.HostRecord, c domain.ContainerInfo, desc domain.ServiceDescriptor) domain.RouteSpec {
	upstreamHost := host.Hostname
	if upstreamHost == "" {
		upstreamHost = "localhost"
	}

	return domain.RouteSpec{
		ID:            fmt.Sprintf("%s%s_%s_%s_%d", domain.MonitorIDPrefix, host.Name, c.Name, c.ShortID(), desc.Port),
		Host:          desc.Domain,
		UpstreamProto: desc.BackendProto,
		UpstreamHost:  upstreamHost,
		UpstreamPort:  desc.Port,
		Source:        domain.RouteSourceMonitor,
		Terminal:      true,
	}
}

// Hosts returns the inventory as of the last scan.
func (s *Scanner) Hosts() []domain.HostRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.HostRecord, len(s.hosts))
	copy(records, s.hosts)
	return records
}

// Statuses returns the latest per-host scan outcomes.
func (s *Scanner) Statuses() map[string]domain.HostStatus {
	return s.statuses.Snapshot()
}
