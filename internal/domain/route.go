// Package domain contains pure business types without external dependencies.
// These types are used throughout the application and have no tags or framework dependencies.
package domain

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// RouteSource identifies which subsystem owns a route.
type RouteSource string

const (
	// RouteSourceStatic marks routes that come from the declarative store and
	// survive restarts.
	RouteSourceStatic RouteSource = "static"
	// RouteSourceMonitor marks routes discovered from container labels. They
	// are regenerated every scan cycle and disappear with their container.
	RouteSourceMonitor RouteSource = "monitor"
	// RouteSourceForeign marks routes this engine did not create. Foreign
	// routes are never modified or deleted.
	RouteSourceForeign RouteSource = "foreign"
)

// Route ID prefixes. The prefix on a route ID is the only ownership signal
// the reconciler trusts when deciding whether it may delete a route.
const (
	StaticIDPrefix  = "static_"
	MonitorIDPrefix = "monitor_"
)

// Upstream protocols accepted by RouteSpec.
const (
	ProtoHTTP  = "http"
	ProtoHTTPS = "https"
)

// SourceForID derives the route source from the ID prefix.
func SourceForID(id string) RouteSource {
	switch {
	case strings.HasPrefix(id, StaticIDPrefix):
		return RouteSourceStatic
	case strings.HasPrefix(id, MonitorIDPrefix):
		return RouteSourceMonitor
	default:
		return RouteSourceForeign
	}
}

// RouteSpec is the canonical internal representation of a proxy route.
// Specs are never mutated in place; an update is a full rebuild.
type RouteSpec struct {
	ID            string
	Host          string
	UpstreamProto string // "http" or "https"
	UpstreamHost  string
	UpstreamPort  int
	Source        RouteSource
	Terminal      bool
	DNSResolver   string // optional resolver address override
}

// Upstream returns the dial address without a scheme. IPv6 hosts are
// bracketed so the address splits back into host and port.
func (s RouteSpec) Upstream() string {
	return net.JoinHostPort(s.UpstreamHost, strconv.Itoa(s.UpstreamPort))
}

// Owned reports whether this engine may create, rebuild or delete the route.
func (s RouteSpec) Owned() bool {
	return s.Source == RouteSourceStatic || s.Source == RouteSourceMonitor
}

// Validate checks the spec before it is turned into a wire document.
func (s RouteSpec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty route id", ErrInvalidRoute)
	}
	if s.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidRoute)
	}
	if strings.Contains(s.Host, "://") {
		return fmt.Errorf("%w: host must not contain a protocol", ErrInvalidRoute)
	}
	if s.UpstreamProto != ProtoHTTP && s.UpstreamProto != ProtoHTTPS {
		return fmt.Errorf("%w: upstream protocol must be http or https, got %q", ErrInvalidRoute, s.UpstreamProto)
	}
	if s.UpstreamHost == "" {
		return fmt.Errorf("%w: empty upstream host", ErrInvalidRoute)
	}
	if s.UpstreamPort <= 0 || s.UpstreamPort > 65535 {
		return fmt.Errorf("%w: upstream port out of range: %d", ErrInvalidRoute, s.UpstreamPort)
	}
	return nil
}

// StaticRouteID computes the canonical ID for a static route entry. A
// user-supplied custom ID is preserved; otherwise the ID derives from the
// config key. Either way the result carries the static_ prefix.
func StaticRouteID(key, custom string) string {
	id := custom
	if id == "" {
		id = strings.NewReplacer(".", "_", "*", "star", " ", "_").Replace(key)
	}
	if !strings.HasPrefix(id, StaticIDPrefix) {
		id = StaticIDPrefix + id
	}
	return id
}

// RouteEntry pairs an extracted spec with the raw wire document it came
// from. The raw document is written back verbatim for routes the reconciler
// does not touch, so unrelated routes stay byte-for-byte identical.
type RouteEntry struct {
	Spec RouteSpec
	Raw  json.RawMessage
}

// ConfigRevision is the live route collection plus its opaque version token.
// An empty token degrades writes to unconditional mode.
type ConfigRevision struct {
	Token   string
	Entries []RouteEntry
}

// FindByID returns the entry with the given route ID, if present.
func (r *ConfigRevision) FindByID(id string) (RouteEntry, bool) {
	for _, e := range r.Entries {
		if e.Spec.ID == id {
			return e, true
		}
	}
	return RouteEntry{}, false
}

// HostOwner returns the route ID currently claiming the given host, across
// all active routes including foreign ones.
func (r *ConfigRevision) HostOwner(host string) (string, bool) {
	for _, e := range r.Entries {
		if e.Spec.Host != "" && e.Spec.Host == host {
			return e.Spec.ID, true
		}
	}
	return "", false
}
