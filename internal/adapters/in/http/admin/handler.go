// Package admin implements the HTTP adapter for the operator API.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/zerowrap"

	"revp/internal/boundaries/in"
	"revp/internal/boundaries/out"
	"revp/internal/domain"
)

// maxRequestSize is the maximum allowed size for operator API request bodies.
const maxRequestSize = 1 << 20 // 1MB

// ConfigInfo is the sanitized runtime configuration exposed on /admin/config.
type ConfigInfo struct {
	AdminURL       string        `json:"caddy_admin_url"`
	ServerName     string        `json:"caddy_server_name"`
	Interval       time.Duration `json:"monitor_interval"`
	LabelNamespace string        `json:"label_namespace"`
	HostsFile      string        `json:"hosts_file"`
}

// Handler implements the HTTP handler for the operator API.
type Handler struct {
	routeSvc in.RouteService
	hostSvc  in.HostStatusService
	proxy    out.ProxyCollection
	info     ConfigInfo
	log      zerowrap.Logger
}

// NewHandler creates a new operator API handler.
func NewHandler(routeSvc in.RouteService, hostSvc in.HostStatusService, proxy out.ProxyCollection, info ConfigInfo, log zerowrap.Logger) *Handler {
	return &Handler{
		routeSvc: routeSvc,
		hostSvc:  hostSvc,
		proxy:    proxy,
		info:     info,
		log:      log,
	}
}

// RegisterRoutes registers the operator routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/", h.handleAdmin)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handleAdmin(w, r)
}

func (h *Handler) handleAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := zerowrap.CtxWithFields(r.Context(), map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "http",
		zerowrap.FieldHandler: "admin",
		zerowrap.FieldMethod:  r.Method,
		zerowrap.FieldPath:    r.URL.Path,
	})
	r = r.WithContext(ctx)

	path := strings.TrimPrefix(r.URL.Path, "/admin")

	switch {
	case path == "/routes" || strings.HasPrefix(path, "/routes/"):
		h.handleRoutes(w, r, path)
	case path == "/hosts":
		h.handleHosts(w, r)
	case path == "/health":
		h.handleHealth(w, r)
	case path == "/config":
		h.handleConfig(w, r)
	default:
		http.NotFound(w, r)
	}
}

type routeResponse struct {
	ID            string `json:"id"`
	Host          string `json:"host"`
	UpstreamProto string `json:"upstream_protocol"`
	UpstreamHost  string `json:"upstream_host"`
	UpstreamPort  int    `json:"upstream_port"`
	Source        string `json:"source"`
	Terminal      bool   `json:"terminal"`
	DNSResolver   string `json:"dns_resolver,omitempty"`
}

func toRouteResponse(spec domain.RouteSpec) routeResponse {
	return routeResponse{
		ID:            spec.ID,
		Host:          spec.Host,
		UpstreamProto: spec.UpstreamProto,
		UpstreamHost:  spec.UpstreamHost,
		UpstreamPort:  spec.UpstreamPort,
		Source:        string(spec.Source),
		Terminal:      spec.Terminal,
		DNSResolver:   spec.DNSResolver,
	}
}

type createRouteRequest struct {
	ID            string `json:"id"`
	Host          string `json:"host"`
	UpstreamProto string `json:"upstream_protocol"`
	UpstreamHost  string `json:"upstream_host"`
	UpstreamPort  int    `json:"upstream_port"`
	DNSResolver   string `json:"dns_resolver"`
}

type updateRouteRequest struct {
	UpstreamProto *string `json:"upstream_protocol"`
	UpstreamHost  *string `json:"upstream_host"`
	UpstreamPort  *int    `json:"upstream_port"`
	DNSResolver   *string `json:"dns_resolver"`
	Terminal      *bool   `json:"terminal"`
}

func (h *Handler) handleRoutes(w http.ResponseWriter, r *http.Request, path string) {
	id := strings.TrimPrefix(strings.TrimPrefix(path, "/routes"), "/")

	switch {
	case r.Method == http.MethodGet && id == "":
		h.handleRoutesList(w, r)
	case r.Method == http.MethodGet:
		h.handleRoutesGet(w, r, id)
	case r.Method == http.MethodPost && id == "":
		h.handleRoutesPost(w, r)
	case r.Method == http.MethodPatch && id != "":
		h.handleRoutesPatch(w, r, id)
	case r.Method == http.MethodDelete && id != "":
		h.handleRoutesDelete(w, r, id)
	default:
		h.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleRoutesList(w http.ResponseWriter, r *http.Request) {
	specs, err := h.routeSvc.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list routes")
		h.sendError(w, http.StatusBadGateway, "failed to read route collection")
		return
	}

	routes := make([]routeResponse, 0, len(specs))
	for _, spec := range specs {
		routes = append(routes, toRouteResponse(spec))
	}
	h.sendJSON(w, http.StatusOK, map[string]any{"routes": routes})
}

func (h *Handler) handleRoutesGet(w http.ResponseWriter, r *http.Request, id string) {
	spec, err := h.routeSvc.Get(r.Context(), id)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, toRouteResponse(spec))
}

func (h *Handler) handleRoutesPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)

	var req createRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	spec, err := h.routeSvc.Create(r.Context(), domain.RouteSpec{
		ID:            req.ID,
		Host:          req.Host,
		UpstreamProto: req.UpstreamProto,
		UpstreamHost:  req.UpstreamHost,
		UpstreamPort:  req.UpstreamPort,
		DNSResolver:   req.DNSResolver,
	})
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendJSON(w, http.StatusCreated, toRouteResponse(spec))
}

func (h *Handler) handleRoutesPatch(w http.ResponseWriter, r *http.Request, id string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)

	var req updateRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	spec, err := h.routeSvc.Update(r.Context(), id, in.RouteUpdate{
		UpstreamProto: req.UpstreamProto,
		UpstreamHost:  req.UpstreamHost,
		UpstreamPort:  req.UpstreamPort,
		DNSResolver:   req.DNSResolver,
		Terminal:      req.Terminal,
	})
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, toRouteResponse(spec))
}

func (h *Handler) handleRoutesDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.routeSvc.Delete(r.Context(), id); err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type hostResponse struct {
	Name        string `json:"name"`
	Hostname    string `json:"hostname,omitempty"`
	Kind        string `json:"kind"`
	Enabled     bool   `json:"enabled"`
	State       string `json:"state,omitempty"`
	Message     string `json:"message,omitempty"`
	LastCheck   string `json:"last_check,omitempty"`
	LastSuccess string `json:"last_success,omitempty"`
}

func (h *Handler) handleHosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	statuses := h.hostSvc.Statuses()

	hosts := make([]hostResponse, 0)
	for _, record := range h.hostSvc.Hosts() {
		resp := hostResponse{
			Name:     record.Name,
			Hostname: record.Hostname,
			Kind:     string(record.Kind),
			Enabled:  record.Enabled,
		}
		if status, ok := statuses[record.Name]; ok {
			resp.State = status.State
			resp.Message = status.Message
			if !status.LastCheck.IsZero() {
				resp.LastCheck = status.LastCheck.Format(time.RFC3339)
			}
			if !status.LastSuccess.IsZero() {
				resp.LastSuccess = status.LastSuccess.Format(time.RFC3339)
			}
		}
		hosts = append(hosts, resp)
	}
	h.sendJSON(w, http.StatusOK, map[string]any{"hosts": hosts})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.proxy.Ping(r.Context()); err != nil {
		h.sendJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"proxy":  err.Error(),
		})
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]any{
		"caddy_admin_url":   h.info.AdminURL,
		"caddy_server_name": h.info.ServerName,
		"monitor_interval":  h.info.Interval.String(),
		"label_namespace":   h.info.LabelNamespace,
		"hosts_file":        h.info.HostsFile,
	})
}

// sendServiceError maps domain errors to HTTP status codes.
func (h *Handler) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRouteNotFound):
		h.sendError(w, http.StatusNotFound, "route not found")
	case errors.Is(err, domain.ErrRouteExists):
		h.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrDuplicateHost):
		h.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrForeignRoute):
		h.sendError(w, http.StatusForbidden, "route is not managed by this engine")
	case errors.Is(err, domain.ErrInvalidRoute):
		h.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConflict):
		h.sendError(w, http.StatusConflict, "route collection is changing too fast, try again")
	default:
		h.log.Error().Err(err).Msg("operator API request failed")
		h.sendError(w, http.StatusInternalServerError, "internal error")
	}
}

// sendJSON sends a JSON response.
func (h *Handler) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// sendError sends an error response.
func (h *Handler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, map[string]string{"error": message})
}
