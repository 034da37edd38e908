package caddy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revp/internal/domain"
)

func TestModel_RoundTrip_HTTP(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	spec := domain.RouteSpec{
		ID:            "static_app_example_com",
		Host:          "app.example.com",
		UpstreamProto: domain.ProtoHTTP,
		UpstreamHost:  "10.0.0.5",
		UpstreamPort:  8080,
		Source:        domain.RouteSourceStatic,
		Terminal:      true,
	}

	entry, err := model.Build(spec)
	require.NoError(t, err)

	got := model.ExtractRaw(entry.Raw)
	assert.Equal(t, spec, got)
}

func TestModel_RoundTrip_HTTPS(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	spec := domain.RouteSpec{
		ID:            "monitor_vps1_web_abc123def456_8443",
		Host:          "web.example.com",
		UpstreamProto: domain.ProtoHTTPS,
		UpstreamHost:  "10.0.0.9",
		UpstreamPort:  8443,
		Source:        domain.RouteSourceMonitor,
		Terminal:      true,
	}

	entry, err := model.Build(spec)
	require.NoError(t, err)

	got := model.ExtractRaw(entry.Raw)
	assert.Equal(t, spec, got)
}

func TestModel_RoundTrip_IPv6Upstream(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	spec := domain.RouteSpec{
		ID:            "static_six_example_com",
		Host:          "six.example.com",
		UpstreamProto: domain.ProtoHTTP,
		UpstreamHost:  "::1",
		UpstreamPort:  8080,
		Source:        domain.RouteSourceStatic,
		Terminal:      true,
	}

	entry, err := model.Build(spec)
	require.NoError(t, err)

	// The dial address must be bracketed or it cannot be split back.
	var doc Route
	require.NoError(t, json.Unmarshal(entry.Raw, &doc))
	proxy := findReverseProxy(doc.Handle)
	require.NotNil(t, proxy)
	require.NotEmpty(t, proxy.Upstreams)
	assert.Equal(t, "[::1]:8080", proxy.Upstreams[0].Dial)

	got := model.ExtractRaw(entry.Raw)
	assert.Equal(t, spec, got)
}

func TestModel_RoundTrip_ResolverOverride(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	spec := domain.RouteSpec{
		ID:            "static_custom",
		Host:          "custom.example.com",
		UpstreamProto: domain.ProtoHTTP,
		UpstreamHost:  "backend",
		UpstreamPort:  80,
		Source:        domain.RouteSourceStatic,
		DNSResolver:   "10.1.1.1:53",
	}

	entry, err := model.Build(spec)
	require.NoError(t, err)

	got := model.ExtractRaw(entry.Raw)
	assert.Equal(t, "10.1.1.1:53", got.DNSResolver)
	assert.Equal(t, spec, got)
}

func TestModel_Build_DefaultResolverCollapses(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	spec := domain.RouteSpec{
		ID:            "static_plain",
		Host:          "plain.example.com",
		UpstreamProto: domain.ProtoHTTP,
		UpstreamHost:  "backend",
		UpstreamPort:  80,
		Source:        domain.RouteSourceStatic,
	}

	entry, err := model.Build(spec)
	require.NoError(t, err)

	// The default resolver is written on the wire...
	var doc Route
	require.NoError(t, json.Unmarshal(entry.Raw, &doc))
	proxy := findReverseProxy(doc.Handle)
	require.NotNil(t, proxy)
	require.NotNil(t, proxy.Transport)
	assert.Equal(t, []string{"127.0.0.1:53"}, proxy.Transport.Resolver.Addresses)

	// ...but collapses back to empty on extraction.
	got := model.ExtractRaw(entry.Raw)
	assert.Empty(t, got.DNSResolver)
}

func TestModel_Normalize(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	spec := domain.RouteSpec{
		ID:            "static_plain",
		Host:          "plain.example.com",
		UpstreamProto: domain.ProtoHTTP,
		UpstreamHost:  "backend",
		UpstreamPort:  80,
		DNSResolver:   "127.0.0.1:53",
	}

	// The default resolver collapses to empty, an override stays.
	assert.Empty(t, model.Normalize(spec).DNSResolver)

	spec.DNSResolver = "10.0.0.53:5353"
	assert.Equal(t, "10.0.0.53:5353", model.Normalize(spec).DNSResolver)
}

func TestModel_Build_HTTPSDialAndTLS(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	spec := domain.RouteSpec{
		ID:            "static_secure",
		Host:          "secure.example.com",
		UpstreamProto: domain.ProtoHTTPS,
		UpstreamHost:  "10.0.0.2",
		UpstreamPort:  9443,
		Source:        domain.RouteSourceStatic,
	}

	entry, err := model.Build(spec)
	require.NoError(t, err)

	var doc Route
	require.NoError(t, json.Unmarshal(entry.Raw, &doc))
	proxy := findReverseProxy(doc.Handle)
	require.NotNil(t, proxy)
	require.Len(t, proxy.Upstreams, 1)
	assert.Equal(t, "https://10.0.0.2:9443", proxy.Upstreams[0].Dial)
	require.NotNil(t, proxy.Transport.TLS)
	assert.True(t, proxy.Transport.TLS.InsecureSkipVerify)
}

func TestModel_Build_TraceHeaders(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	spec := domain.RouteSpec{
		ID:            "static_traced",
		Host:          "traced.example.com",
		UpstreamProto: domain.ProtoHTTP,
		UpstreamHost:  "10.0.0.3",
		UpstreamPort:  3000,
		Source:        domain.RouteSourceStatic,
	}

	entry, err := model.Build(spec)
	require.NoError(t, err)

	var doc Route
	require.NoError(t, json.Unmarshal(entry.Raw, &doc))
	proxy := findReverseProxy(doc.Handle)
	require.NotNil(t, proxy)
	require.NotNil(t, proxy.Headers)
	require.NotNil(t, proxy.Headers.Request)
	assert.Equal(t, []string{"static_traced"}, proxy.Headers.Request.Set[HeaderRouteID])
	assert.Equal(t, []string{"10.0.0.3:3000"}, proxy.Headers.Request.Set[HeaderUpstream])
	require.NotNil(t, proxy.Headers.Response)
	assert.Equal(t, []string{"static_traced"}, proxy.Headers.Response.Set[HeaderRouteID])
}

func TestModel_Build_InvalidSpec(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	_, err := model.Build(domain.RouteSpec{ID: "static_x", Host: "x.example.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidRoute)
}

func TestModel_Extract_ForeignRoute(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	raw := json.RawMessage(`{
		"@id": "acme_challenge",
		"match": [{"host": ["other.example.com"]}],
		"handle": [{"handler": "static_response", "status_code": 200}]
	}`)

	got := model.ExtractRaw(raw)
	assert.Equal(t, domain.RouteSourceForeign, got.Source)
	assert.Equal(t, "other.example.com", got.Host)
	assert.Equal(t, domain.ProtoHTTP, got.UpstreamProto)
	assert.Equal(t, 80, got.UpstreamPort)
	assert.Empty(t, got.UpstreamHost)
}

func TestModel_Extract_PartialDocument(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	got := model.ExtractRaw(json.RawMessage(`{"handle": []}`))
	assert.Equal(t, domain.RouteSourceForeign, got.Source)
	assert.Empty(t, got.Host)
	assert.Equal(t, domain.ProtoHTTP, got.UpstreamProto)
	assert.Equal(t, 80, got.UpstreamPort)
}

func TestModel_Extract_UndecodableDocument(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	got := model.ExtractRaw(json.RawMessage(`["not", "an", "object"]`))
	assert.Equal(t, domain.RouteSourceForeign, got.Source)
}

func TestModel_Extract_NestedSubroute(t *testing.T) {
	model := NewModel("127.0.0.1:53")

	raw := json.RawMessage(`{
		"@id": "monitor_h_c_000000000000_80",
		"match": [{"host": ["nested.example.com"]}],
		"handle": [{"handler": "subroute", "routes": [
			{"handle": [{"handler": "subroute", "routes": [
				{"handle": [{"handler": "reverse_proxy", "upstreams": [{"dial": "10.9.9.9:8000"}]}]}
			]}]}
		]}]
	}`)

	got := model.ExtractRaw(raw)
	assert.Equal(t, domain.RouteSourceMonitor, got.Source)
	assert.Equal(t, "10.9.9.9", got.UpstreamHost)
	assert.Equal(t, 8000, got.UpstreamPort)
}

func TestHeaders_UnmarshalBothShapes(t *testing.T) {
	var flat Headers
	require.NoError(t, json.Unmarshal([]byte(`{"Location": ["https://x{http.request.uri}"]}`), &flat))
	assert.Equal(t, []string{"https://x{http.request.uri}"}, flat.Direct["Location"])
	assert.Nil(t, flat.Request)

	var ops Headers
	require.NoError(t, json.Unmarshal([]byte(`{"request": {"set": {"X-A": ["1"]}}}`), &ops))
	require.NotNil(t, ops.Request)
	assert.Equal(t, []string{"1"}, ops.Request.Set["X-A"])
	assert.Nil(t, ops.Direct)
}
