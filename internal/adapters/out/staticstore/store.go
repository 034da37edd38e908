// Package staticstore persists declaratively configured routes in a YAML
// file. The file is the durable half of desired state; discovered routes are
// recomputed every cycle and never stored.
package staticstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bnema/zerowrap"
	"gopkg.in/yaml.v3"

	"revp/internal/domain"
)

// fileFormat is the on-disk document. Keys of Routes are route names; the
// canonical route ID derives from the key unless route_id overrides it.
type fileFormat struct {
	Routes map[string]routeEntry `yaml:"routes"`
}

type routeEntry struct {
	Host             string `yaml:"host"`
	UpstreamProtocol string `yaml:"upstream_protocol,omitempty"`
	UpstreamHost     string `yaml:"upstream_host"`
	UpstreamPort     int    `yaml:"upstream_port"`
	RouteID          string `yaml:"route_id,omitempty"`
	DNSResolver      string `yaml:"dns_resolver,omitempty"`
}

// Store implements out.StaticRouteStore on a single YAML file.
type Store struct {
	path string
	log  zerowrap.Logger
}

// NewStore creates a store backed by the file at path. The file may not
// exist yet; it is created on first Save.
func NewStore(path string, log zerowrap.Logger) *Store {
	return &Store{
		path: path,
		log: zerowrap.Logger{Logger: log.With().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldComponent, "staticstore").
			Logger()},
	}
}

// Load reads the stored route set. A missing or unreadable file yields an
// empty set, not an error, so the engine starts without static routes
// instead of refusing to run. Invalid entries fail the whole load so a typo
// cannot silently drop a route.
func (s *Store) Load() ([]domain.RouteSpec, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.log.Debug().Str(zerowrap.FieldPath, s.path).Msg("no static route file, starting empty")
		return nil, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str(zerowrap.FieldPath, s.path).Msg("static route file unreadable, starting empty")
		return nil, nil
	}

	var file fileFormat
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", domain.ErrConfigLoadFailed, s.path, err)
	}

	routes := make([]domain.RouteSpec, 0, len(file.Routes))
	for key, entry := range file.Routes {
		spec := domain.RouteSpec{
			ID:            domain.StaticRouteID(key, entry.RouteID),
			Host:          entry.Host,
			UpstreamProto: entry.UpstreamProtocol,
			UpstreamHost:  entry.UpstreamHost,
			UpstreamPort:  entry.UpstreamPort,
			Source:        domain.RouteSourceStatic,
			Terminal:      true,
			DNSResolver:   entry.DNSResolver,
		}
		if spec.UpstreamProto == "" {
			spec.UpstreamProto = domain.ProtoHTTP
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: route %q: %w", domain.ErrInvalidConfig, key, err)
		}
		routes = append(routes, spec)
	}

	// Map iteration order is random; keep output deterministic.
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })

	s.log.Debug().Int(zerowrap.FieldCount, len(routes)).Msg("static routes loaded")
	return routes, nil
}

// Save replaces the stored set. The file is written to a temp path in the
// same directory and renamed, so readers never observe a partial file.
func (s *Store) Save(routes []domain.RouteSpec) error {
	file := fileFormat{Routes: make(map[string]routeEntry, len(routes))}
	for _, spec := range routes {
		file.Routes[spec.ID] = routeEntry{
			Host:             spec.Host,
			UpstreamProtocol: spec.UpstreamProto,
			UpstreamHost:     spec.UpstreamHost,
			UpstreamPort:     spec.UpstreamPort,
			DNSResolver:      spec.DNSResolver,
		}
	}

	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encoding static routes: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".routes-*.yml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}

	s.log.Debug().Int(zerowrap.FieldCount, len(routes)).Msg("static routes saved")
	return nil
}
