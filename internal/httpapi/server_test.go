package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gillohner/pubky-tools/internal/capability"
	"github.com/gillohner/pubky-tools/internal/drive"
	"github.com/gillohner/pubky-tools/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, grantStrings ...string) (*Server, *memory.Driver) {
	t.Helper()

	grants, err := capability.ParseGrants(grantStrings)
	require.NoError(t, err)

	st := memory.New()
	d := drive.New(st, nil, drive.DefaultConfig())
	return New(d, nil, Config{Owner: "o", Grants: grants}), st
}

func doRequest(t *testing.T, s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestFileLifecycle(t *testing.T) {
	s, _ := newTestServer(t, "/pub/notes/:rw")

	// Create.
	rec := doRequest(t, s, http.MethodPut, "/files/o/pub/notes/todo.txt", []byte("buy milk"))
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Read.
	rec = doRequest(t, s, http.MethodGet, "/files/o/pub/notes/todo.txt", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "buy milk", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	// Overwrite.
	rec = doRequest(t, s, http.MethodPut, "/files/o/pub/notes/todo.txt", []byte("done"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Delete.
	rec = doRequest(t, s, http.MethodDelete, "/files/o/pub/notes/todo.txt", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Gone.
	rec = doRequest(t, s, http.MethodGet, "/files/o/pub/notes/todo.txt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Kind)
}

func TestCapabilityDenials(t *testing.T) {
	s, _ := newTestServer(t, "/pub/notes/:r")

	tests := []struct {
		name   string
		method string
		target string
	}{
		{"write with read-only grant", http.MethodPut, "/files/o/pub/notes/a.txt"},
		{"path outside grant", http.MethodGet, "/files/o/pub/photos/a.jpg"},
		{"other owner", http.MethodGet, "/files/someone-else/pub/notes/a.txt"},
		{"delete with read-only grant", http.MethodDelete, "/files/o/pub/notes/a.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, tt.method, tt.target, []byte("x"))
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

func TestListDirectory(t *testing.T) {
	s, _ := newTestServer(t, "/pub/:rw")

	for _, path := range []string{
		"/files/o/pub/docs/a.txt",
		"/files/o/pub/docs/sub/b.txt",
	} {
		rec := doRequest(t, s, http.MethodPut, path, []byte("x"))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(t, s, http.MethodGet, "/list/o/pub/docs/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var nodes []drive.FileNode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "sub", nodes[0].Name)
	assert.True(t, nodes[0].IsDirectory)
	assert.Equal(t, "a.txt", nodes[1].Name)
	assert.False(t, nodes[1].IsDirectory)
}

func TestCreateDirectory(t *testing.T) {
	s, _ := newTestServer(t, "/pub/:rw")

	rec := doRequest(t, s, http.MethodPost, "/dirs/o/pub/projects/alpha", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/list/o/pub/projects/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var nodes []drive.FileNode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, "alpha", nodes[0].Name)
	assert.True(t, nodes[0].IsDirectory)
}

func TestUpload(t *testing.T) {
	s, _ := newTestServer(t, "/pub/:rw")

	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

	rec := doRequest(t, s, http.MethodPost, "/upload/o/pub/photos/?name=cat.png", pngHeader)
	require.Equal(t, http.StatusCreated, rec.Code)

	var upload drive.Upload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))
	assert.Contains(t, upload.BlobKey, "pubky://o/pub/photos/blobs/")
	assert.Equal(t, "cat.png", upload.Record.Name)
	assert.Equal(t, "image/png", upload.Record.ContentType)
}

func TestUploadRequiresName(t *testing.T) {
	s, _ := newTestServer(t, "/pub/:rw")

	rec := doRequest(t, s, http.MethodPost, "/upload/o/pub/photos/", []byte("data"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFreshBypassesCache(t *testing.T) {
	s, st := newTestServer(t, "/pub/:rw")
	ctx := context.Background()

	rec := doRequest(t, s, http.MethodPut, "/files/o/pub/a.txt", []byte("v1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	// Mutate the store behind the gateway's back.
	require.NoError(t, st.Put(ctx, "pubky://o/pub/a.txt", []byte("v2")))

	rec = doRequest(t, s, http.MethodGet, "/files/o/pub/a.txt", nil)
	assert.Equal(t, "v1", rec.Body.String(), "cached read serves the stale value")

	rec = doRequest(t, s, http.MethodGet, "/files/o/pub/a.txt?fresh=1", nil)
	assert.Equal(t, "v2", rec.Body.String())
}

func TestCacheEndpoints(t *testing.T) {
	s, _ := newTestServer(t, "/pub/:rw")

	rec := doRequest(t, s, http.MethodPut, "/files/o/pub/a.txt", []byte("x"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats drive.CacheStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Files.TotalEntries)

	rec = doRequest(t, s, http.MethodPost, "/cache/clear", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/cache/stats", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Files.TotalEntries)
}
