package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revp/internal/boundaries/in"
	"revp/internal/domain"
)

type fakeRouteService struct {
	routes  map[string]domain.RouteSpec
	created []domain.RouteSpec
	deleted []string
	err     error
}

func (f *fakeRouteService) List(context.Context) ([]domain.RouteSpec, error) {
	if f.err != nil {
		return nil, f.err
	}
	specs := make([]domain.RouteSpec, 0, len(f.routes))
	for _, s := range f.routes {
		specs = append(specs, s)
	}
	return specs, nil
}

func (f *fakeRouteService) Get(_ context.Context, id string) (domain.RouteSpec, error) {
	if spec, ok := f.routes[id]; ok {
		return spec, nil
	}
	return domain.RouteSpec{}, fmt.Errorf("%w: %s", domain.ErrRouteNotFound, id)
}

func (f *fakeRouteService) Create(_ context.Context, spec domain.RouteSpec) (domain.RouteSpec, error) {
	if f.err != nil {
		return domain.RouteSpec{}, f.err
	}
	spec.ID = domain.StaticRouteID(spec.ID, "")
	spec.Source = domain.RouteSourceStatic
	f.created = append(f.created, spec)
	return spec, nil
}

func (f *fakeRouteService) Update(_ context.Context, id string, update in.RouteUpdate) (domain.RouteSpec, error) {
	spec, ok := f.routes[id]
	if !ok {
		return domain.RouteSpec{}, fmt.Errorf("%w: %s", domain.ErrRouteNotFound, id)
	}
	if update.UpstreamPort != nil {
		spec.UpstreamPort = *update.UpstreamPort
	}
	f.routes[id] = spec
	return spec, nil
}

func (f *fakeRouteService) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRouteService) StaticRoutes() []domain.RouteSpec { return nil }

type fakeHostService struct {
	hosts    []domain.HostRecord
	statuses map[string]domain.HostStatus
}

func (f *fakeHostService) Hosts() []domain.HostRecord             { return f.hosts }
func (f *fakeHostService) Statuses() map[string]domain.HostStatus { return f.statuses }

type fakePinger struct {
	err error
}

func (f *fakePinger) Read(context.Context) (*domain.ConfigRevision, error) { return nil, nil }
func (f *fakePinger) Write(context.Context, []domain.RouteEntry, string) error {
	return nil
}
func (f *fakePinger) Ping(context.Context) error { return f.err }

func newTestHandler(routes *fakeRouteService, hosts *fakeHostService, pinger *fakePinger) *Handler {
	if hosts == nil {
		hosts = &fakeHostService{}
	}
	if pinger == nil {
		pinger = &fakePinger{}
	}
	return NewHandler(routes, hosts, pinger, ConfigInfo{
		AdminURL:       "http://localhost:2019",
		ServerName:     "srv0",
		Interval:       30 * time.Second,
		LabelNamespace: "revp",
		HostsFile:      "/etc/revp/hosts.yml",
	}, zerowrap.Default())
}

func doRequest(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ListRoutes(t *testing.T) {
	routes := &fakeRouteService{routes: map[string]domain.RouteSpec{
		"static_c": {ID: "static_c", Host: "c.example.com", UpstreamProto: "http", UpstreamHost: "10.0.0.5", UpstreamPort: 9000, Source: domain.RouteSourceStatic},
	}}
	rec := doRequest(newTestHandler(routes, nil, nil), http.MethodGet, "/admin/routes", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Routes []routeResponse `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Routes, 1)
	assert.Equal(t, "static_c", resp.Routes[0].ID)
	assert.Equal(t, "static", resp.Routes[0].Source)
}

func TestHandler_GetRoute_NotFound(t *testing.T) {
	rec := doRequest(newTestHandler(&fakeRouteService{}, nil, nil), http.MethodGet, "/admin/routes/static_ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CreateRoute(t *testing.T) {
	routes := &fakeRouteService{}
	rec := doRequest(newTestHandler(routes, nil, nil), http.MethodPost, "/admin/routes",
		`{"id": "c", "host": "c.example.com", "upstream_host": "10.0.0.5", "upstream_port": 9000}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, routes.created, 1)
	assert.Equal(t, "static_c", routes.created[0].ID)
}

func TestHandler_CreateRoute_InvalidJSON(t *testing.T) {
	rec := doRequest(newTestHandler(&fakeRouteService{}, nil, nil), http.MethodPost, "/admin/routes", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_CreateRoute_DuplicateHost(t *testing.T) {
	routes := &fakeRouteService{err: domain.ErrDuplicateHost}
	rec := doRequest(newTestHandler(routes, nil, nil), http.MethodPost, "/admin/routes",
		`{"host": "c.example.com", "upstream_host": "10.0.0.5", "upstream_port": 9000}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_UpdateRoute(t *testing.T) {
	routes := &fakeRouteService{routes: map[string]domain.RouteSpec{
		"static_c": {ID: "static_c", Host: "c.example.com", UpstreamProto: "http", UpstreamHost: "10.0.0.5", UpstreamPort: 9000, Source: domain.RouteSourceStatic},
	}}
	rec := doRequest(newTestHandler(routes, nil, nil), http.MethodPatch, "/admin/routes/static_c",
		`{"upstream_port": 9100}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9100, routes.routes["static_c"].UpstreamPort)
}

func TestHandler_UpdateRoute_PutNotAllowed(t *testing.T) {
	rec := doRequest(newTestHandler(&fakeRouteService{}, nil, nil), http.MethodPut, "/admin/routes/static_c",
		`{"upstream_port": 9100}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_DeleteRoute(t *testing.T) {
	routes := &fakeRouteService{}
	rec := doRequest(newTestHandler(routes, nil, nil), http.MethodDelete, "/admin/routes/static_c", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"static_c"}, routes.deleted)
}

func TestHandler_DeleteRoute_Foreign(t *testing.T) {
	routes := &fakeRouteService{err: domain.ErrForeignRoute}
	rec := doRequest(newTestHandler(routes, nil, nil), http.MethodDelete, "/admin/routes/manual-edit", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_Hosts(t *testing.T) {
	hosts := &fakeHostService{
		hosts: []domain.HostRecord{{Name: "vps1", Hostname: "203.0.113.7", Kind: domain.HostKindSSH, Enabled: true}},
		statuses: map[string]domain.HostStatus{
			"vps1": {State: domain.HostStateSuccess, LastCheck: time.Now()},
		},
	}
	rec := doRequest(newTestHandler(&fakeRouteService{}, hosts, nil), http.MethodGet, "/admin/hosts", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Hosts []hostResponse `json:"hosts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Hosts, 1)
	assert.Equal(t, "success", resp.Hosts[0].State)
	assert.NotEmpty(t, resp.Hosts[0].LastCheck)
}

func TestHandler_Health(t *testing.T) {
	rec := doRequest(newTestHandler(&fakeRouteService{}, nil, &fakePinger{}), http.MethodGet, "/admin/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(newTestHandler(&fakeRouteService{}, nil, &fakePinger{err: errors.New("connection refused")}), http.MethodGet, "/admin/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_Config(t *testing.T) {
	rec := doRequest(newTestHandler(&fakeRouteService{}, nil, nil), http.MethodGet, "/admin/config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "srv0", resp["caddy_server_name"])
	assert.Equal(t, "30s", resp["monitor_interval"])
}

func TestHandler_UnknownPath(t *testing.T) {
	rec := doRequest(newTestHandler(&fakeRouteService{}, nil, nil), http.MethodGet, "/admin/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	rec := doRequest(newTestHandler(&fakeRouteService{}, nil, nil), http.MethodPost, "/admin/hosts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
