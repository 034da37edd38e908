// Package caddy implements the proxy collection adapter against the Caddy
// admin API: the wire document model and the versioned read/write client.
package caddy

import (
	"encoding/json"
	"net"
	"strconv"
	"strings"

	"revp/internal/domain"
)

// Traceability headers injected on both request and response paths.
const (
	HeaderRouteID  = "X-Revp-Route-Id"
	HeaderUpstream = "X-Revp-Upstream"
)

// Route is one entry of the proxy's route collection
// (config/apps/http/servers/{server}/routes).
type Route struct {
	ID       string    `json:"@id,omitempty"`
	Match    []Match   `json:"match,omitempty"`
	Handle   []Handler `json:"handle,omitempty"`
	Terminal bool      `json:"terminal,omitempty"`
}

// Match is a request matcher on a route or subroute.
type Match struct {
	Host     []string `json:"host,omitempty"`
	Protocol string   `json:"protocol,omitempty"`
}

// Handler is a route handler. Which fields are meaningful depends on the
// Handler discriminator (subroute, static_response, reverse_proxy).
type Handler struct {
	Handler    string     `json:"handler"`
	Routes     []Route    `json:"routes,omitempty"`      // subroute
	StatusCode int        `json:"status_code,omitempty"` // static_response
	Headers    *Headers   `json:"headers,omitempty"`
	Upstreams  []Upstream `json:"upstreams,omitempty"` // reverse_proxy
	Transport  *Transport `json:"transport,omitempty"` // reverse_proxy
}

// Upstream is a reverse_proxy dial target.
type Upstream struct {
	Dial string `json:"dial,omitempty"`
}

// Transport is the reverse_proxy transport configuration.
type Transport struct {
	Protocol string     `json:"protocol,omitempty"`
	TLS      *TLSConfig `json:"tls,omitempty"`
	Resolver *Resolver  `json:"resolver,omitempty"`
}

// TLSConfig enables TLS towards the upstream. InsecureSkipVerify is set for
// https upstreams because backend certificates are assumed self-signed.
type TLSConfig struct {
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`
}

// Resolver overrides system DNS for upstream dialing.
type Resolver struct {
	Addresses []string `json:"addresses,omitempty"`
}

// HeaderOps is a set of header mutations.
type HeaderOps struct {
	Set map[string][]string `json:"set,omitempty"`
}

// Headers covers both wire shapes of the "headers" field: static_response
// takes a flat header map, reverse_proxy takes request/response operations.
type Headers struct {
	Direct   map[string][]string
	Request  *HeaderOps
	Response *HeaderOps
}

// MarshalJSON emits the flat map when Direct is set, the
// request/response operations object otherwise.
func (h Headers) MarshalJSON() ([]byte, error) {
	if h.Direct != nil {
		return json.Marshal(h.Direct)
	}
	type ops struct {
		Request  *HeaderOps `json:"request,omitempty"`
		Response *HeaderOps `json:"response,omitempty"`
	}
	return json.Marshal(ops{Request: h.Request, Response: h.Response})
}

// UnmarshalJSON accepts either wire shape.
func (h *Headers) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	_, hasReq := probe["request"]
	_, hasResp := probe["response"]
	if hasReq || hasResp {
		var o struct {
			Request  *HeaderOps `json:"request"`
			Response *HeaderOps `json:"response"`
		}
		if err := json.Unmarshal(data, &o); err != nil {
			return err
		}
		h.Request = o.Request
		h.Response = o.Response
		return nil
	}
	return json.Unmarshal(data, &h.Direct)
}

// Model builds wire documents from route specs and flattens wire documents
// back into specs. The nested handler tree exists only inside this type;
// everything above it works on domain.RouteSpec.
type Model struct {
	defaultResolver string
}

// NewModel creates a route document model. defaultResolver is the resolver
// address written into documents whose spec carries no explicit override.
func NewModel(defaultResolver string) *Model {
	return &Model{defaultResolver: defaultResolver}
}

// Build produces the wire document for a spec: an HTTP→HTTPS redirect
// subroute plus an HTTPS subroute carrying the reverse_proxy handler.
func (m *Model) Build(spec domain.RouteSpec) (domain.RouteEntry, error) {
	if err := spec.Validate(); err != nil {
		return domain.RouteEntry{}, err
	}

	doc := m.document(spec)
	raw, err := json.Marshal(doc)
	if err != nil {
		return domain.RouteEntry{}, err
	}
	return domain.RouteEntry{Spec: spec, Raw: raw}, nil
}

func (m *Model) document(spec domain.RouteSpec) Route {
	dial := spec.Upstream()
	if spec.UpstreamProto == domain.ProtoHTTPS {
		dial = "https://" + dial
	}

	resolver := spec.DNSResolver
	if resolver == "" {
		resolver = m.defaultResolver
	}

	transport := &Transport{
		Protocol: "http",
		Resolver: &Resolver{Addresses: []string{resolver}},
	}
	if spec.UpstreamProto == domain.ProtoHTTPS {
		// Backend certificates are assumed self-signed.
		transport.TLS = &TLSConfig{InsecureSkipVerify: true}
	}

	trace := map[string][]string{
		HeaderRouteID:  {spec.ID},
		HeaderUpstream: {dial},
	}

	redirect := Handler{
		Handler:    "static_response",
		StatusCode: 308,
		Headers: &Headers{
			Direct: map[string][]string{
				"Location": {"https://" + spec.Host + "{http.request.uri}"},
			},
		},
	}

	proxy := Handler{
		Handler:   "reverse_proxy",
		Upstreams: []Upstream{{Dial: dial}},
		Transport: transport,
		Headers: &Headers{
			Request:  &HeaderOps{Set: trace},
			Response: &HeaderOps{Set: trace},
		},
	}

	return Route{
		ID:       spec.ID,
		Match:    []Match{{Host: []string{spec.Host}}},
		Terminal: spec.Terminal,
		Handle: []Handler{{
			Handler: "subroute",
			Routes: []Route{
				{Match: []Match{{Protocol: "http"}}, Handle: []Handler{redirect}},
				{Match: []Match{{Protocol: "https"}}, Handle: []Handler{proxy}},
			},
		}},
	}
}

// Normalize collapses wire defaults out of a spec. A resolver equal to the
// configured default produces the same document as no resolver at all, so
// it is dropped; otherwise specs carrying the default explicitly would
// never compare equal to their own round trip.
func (m *Model) Normalize(spec domain.RouteSpec) domain.RouteSpec {
	if spec.DNSResolver == m.defaultResolver {
		spec.DNSResolver = ""
	}
	return spec
}

// Extract flattens a wire document into a spec. Partial and foreign
// documents yield best-effort defaults (http, port 80, empty host) instead
// of an error, because the live collection may contain routes this engine
// did not create.
func (m *Model) Extract(doc Route) domain.RouteSpec {
	spec := domain.RouteSpec{
		ID:            doc.ID,
		Source:        domain.SourceForID(doc.ID),
		Terminal:      doc.Terminal,
		UpstreamProto: domain.ProtoHTTP,
		UpstreamPort:  80,
	}

	for _, match := range doc.Match {
		if len(match.Host) > 0 {
			spec.Host = match.Host[0]
			break
		}
	}

	proxy := findReverseProxy(doc.Handle)
	if proxy == nil {
		return spec
	}

	if len(proxy.Upstreams) > 0 {
		m.parseDial(proxy.Upstreams[0].Dial, &spec)
	}
	if proxy.Transport != nil && proxy.Transport.Resolver != nil && len(proxy.Transport.Resolver.Addresses) > 0 {
		if addr := proxy.Transport.Resolver.Addresses[0]; addr != m.defaultResolver {
			spec.DNSResolver = addr
		}
	}

	return spec
}

// ExtractRaw parses a raw wire document. Undecodable documents are treated
// as foreign with zero-value spec fields.
func (m *Model) ExtractRaw(raw json.RawMessage) domain.RouteSpec {
	var doc Route
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.RouteSpec{
			Source:        domain.RouteSourceForeign,
			UpstreamProto: domain.ProtoHTTP,
			UpstreamPort:  80,
		}
	}
	return m.Extract(doc)
}

func (m *Model) parseDial(dial string, spec *domain.RouteSpec) {
	if rest, ok := strings.CutPrefix(dial, "https://"); ok {
		spec.UpstreamProto = domain.ProtoHTTPS
		dial = rest
	} else if rest, ok := strings.CutPrefix(dial, "http://"); ok {
		spec.UpstreamProto = domain.ProtoHTTP
		dial = rest
	}

	host, portStr, err := net.SplitHostPort(dial)
	if err != nil {
		spec.UpstreamHost = dial
		return
	}
	spec.UpstreamHost = host
	if port, err := strconv.Atoi(portStr); err == nil {
		spec.UpstreamPort = port
	}
}

// findReverseProxy walks the handler tree iteratively and returns the first
// reverse_proxy handler, descending through subroutes.
func findReverseProxy(handlers []Handler) *Handler {
	stack := make([]Handler, 0, len(handlers))
	stack = append(stack, handlers...)

	for len(stack) > 0 {
		h := stack[0]
		stack = stack[1:]

		switch h.Handler {
		case "reverse_proxy":
			return &h
		case "subroute":
			for _, sub := range h.Routes {
				stack = append(stack, sub.Handle...)
			}
		}
	}
	return nil
}
