package caddy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bnema/zerowrap"

	"revp/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client talks to the Caddy admin API and implements out.ProxyCollection.
// Every write is conditional on the version token observed at read time;
// the client performs no retries of its own.
type Client struct {
	adminURL   string
	serverName string
	model      *Model
	httpClient *http.Client
	log        zerowrap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates an admin API client for one HTTP server's route
// collection. adminURL is the base admin endpoint, e.g. http://localhost:2019.
func NewClient(adminURL, serverName string, model *Model, log zerowrap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		adminURL:   adminURL,
		serverName: serverName,
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log: zerowrap.Logger{Logger: log.With().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldComponent, "caddy-client").
			Logger()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) routesURL() string {
	return fmt.Sprintf("%s/config/apps/http/servers/%s/routes", c.adminURL, c.serverName)
}

// Read fetches the full route collection and its version token. A missing
// token is tolerated but logged, because it degrades subsequent writes to
// unconditional mode.
func (c *Client) Read(ctx context.Context) (*domain.ConfigRevision, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.routesURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("building read request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reading route collection: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("admin API returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	token := resp.Header.Get("Etag")
	if token == "" {
		c.log.Warn().
			Str(zerowrap.FieldPath, c.routesURL()).
			Msg("proxy returned no version token, writes will be unconditional")
	}

	var raws []json.RawMessage
	if len(bytes.TrimSpace(body)) > 0 && !bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, fmt.Errorf("decoding route collection: %w", err)
		}
	}

	entries := make([]domain.RouteEntry, 0, len(raws))
	for _, raw := range raws {
		entries = append(entries, domain.RouteEntry{
			Spec: c.model.ExtractRaw(raw),
			Raw:  raw,
		})
	}

	c.log.Debug().
		Int(zerowrap.FieldCount, len(entries)).
		Bool("versioned", token != "").
		Msg("route collection read")

	return &domain.ConfigRevision{Token: token, Entries: entries}, nil
}

// Write replaces the whole route collection in a single request. When token
// is non-empty the write is conditional and fails with domain.ErrConflict if
// the collection changed since the matching Read.
func (c *Client) Write(ctx context.Context, entries []domain.RouteEntry, token string) error {
	raws := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		if len(e.Raw) == 0 {
			return fmt.Errorf("route %s has no wire document", e.Spec.ID)
		}
		raws = append(raws, e.Raw)
	}

	payload, err := json.Marshal(raws)
	if err != nil {
		return fmt.Errorf("encoding route collection: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.routesURL(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building write request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("If-Match", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("writing route collection: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
		return fmt.Errorf("%w (status %d)", domain.ErrConflict, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("admin API returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	c.log.Debug().
		Int(zerowrap.FieldCount, len(entries)).
		Bool("conditional", token != "").
		Msg("route collection written")

	return nil
}

// Ping checks that the admin API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.adminURL+"/config/", nil)
	if err != nil {
		return fmt.Errorf("building ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("proxy admin API unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy admin API returned %d", resp.StatusCode)
	}
	return nil
}
