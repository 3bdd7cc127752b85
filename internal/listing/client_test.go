package listing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelscutari/dredge/internal/entry"
)

func TestClientFollowsPageTokens(t *testing.T) {
	var mu sync.Mutex
	var seen []listRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/My%20Docs/", r.URL.EscapedPath())
		assert.Equal(t, "r1", r.URL.Query().Get("rootId"))

		var req listRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()

		var resp listResponse
		switch req.PageToken {
		case "":
			resp.NextPageToken = "p2"
			resp.Data.Files = []entry.RawRecord{{Name: "a", MimeType: "text/plain", Size: "1"}}
		case "p2":
			resp.Data.Files = []entry.RawRecord{{Name: "sub", MimeType: entry.FolderMimeType}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClient(Options{BaseURL: server.URL, Password: "pw"})
	require.NoError(t, err)

	records, err := client.List(context.Background(), "/My Docs", "r1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Name)
	assert.Equal(t, "sub", records[1].Name)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, 0, seen[0].PageIndex)
	assert.Equal(t, 1, seen[1].PageIndex)
	assert.Equal(t, "pw", seen[1].Password)
}

func TestClientStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/secret/" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(Options{BaseURL: server.URL + "/"})
	require.NoError(t, err)

	_, err = client.List(context.Background(), "/missing", "")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = client.List(context.Background(), "/secret/", "")
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestNewClientRejectsBadScheme(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}

func TestMemoryListerFailuresAndCalls(t *testing.T) {
	m := NewMemoryLister()
	m.AddFile("/", "f", 10)
	a := m.AddDir("/", "A")
	m.AddFile(a, "a1", 5)
	m.FailNext(a, 1)

	ctx := context.Background()
	_, err := m.List(ctx, "/A", "")
	require.Error(t, err)

	records, err := m.List(ctx, "/A/", "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a1", records[0].Name)
	assert.Equal(t, 2, m.Calls("/A/"))

	_, err = m.List(ctx, "/nope/", "")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.EqualValues(t, 3, m.TotalCalls())
}
