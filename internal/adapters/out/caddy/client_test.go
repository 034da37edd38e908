package caddy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revp/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "srv0", NewModel("127.0.0.1:53"), zerowrap.Default())
}

func TestClient_Read_ParsesCollectionAndToken(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/config/apps/http/servers/srv0/routes", r.URL.Path)
		w.Header().Set("Etag", `"abc123"`)
		w.Write([]byte(`[
			{"@id": "static_one", "match": [{"host": ["one.example.com"]}]},
			{"@id": "foreign_thing"}
		]`))
	})

	rev, err := client.Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, `"abc123"`, rev.Token)
	require.Len(t, rev.Entries, 2)
	assert.Equal(t, domain.RouteSourceStatic, rev.Entries[0].Spec.Source)
	assert.Equal(t, "one.example.com", rev.Entries[0].Spec.Host)
	assert.Equal(t, domain.RouteSourceForeign, rev.Entries[1].Spec.Source)
	assert.JSONEq(t, `{"@id": "foreign_thing"}`, string(rev.Entries[1].Raw))
}

func TestClient_Read_NullCollection(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Etag", `"empty"`)
		w.Write([]byte("null"))
	})

	rev, err := client.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rev.Entries)
	assert.Equal(t, `"empty"`, rev.Token)
}

func TestClient_Read_MissingToken(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})

	rev, err := client.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rev.Token)
}

func TestClient_Read_ServerError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Read(context.Background())
	assert.Error(t, err)
}

func TestClient_Write_ConditionalPatch(t *testing.T) {
	var gotIfMatch string
	var gotBody []json.RawMessage

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotIfMatch = r.Header.Get("If-Match")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	})

	entries := []domain.RouteEntry{
		{Spec: domain.RouteSpec{ID: "static_one"}, Raw: json.RawMessage(`{"@id":"static_one"}`)},
	}
	err := client.Write(context.Background(), entries, `"abc123"`)
	require.NoError(t, err)

	assert.Equal(t, `"abc123"`, gotIfMatch)
	require.Len(t, gotBody, 1)
	assert.JSONEq(t, `{"@id":"static_one"}`, string(gotBody[0]))
}

func TestClient_Write_EmptyTokenUnconditional(t *testing.T) {
	var sawIfMatch bool
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, sawIfMatch = r.Header["If-Match"]
	})

	err := client.Write(context.Background(), nil, "")
	require.NoError(t, err)
	assert.False(t, sawIfMatch)
}

func TestClient_Write_Conflict(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusPreconditionFailed} {
		client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		err := client.Write(context.Background(), nil, `"stale"`)
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
}

func TestClient_Write_MissingRawDocument(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	err := client.Write(context.Background(), []domain.RouteEntry{
		{Spec: domain.RouteSpec{ID: "static_bare"}},
	}, "")
	assert.Error(t, err)
}

func TestClient_Ping(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/config/", r.URL.Path)
		w.Write([]byte("{}"))
	})

	assert.NoError(t, client.Ping(context.Background()))
}
