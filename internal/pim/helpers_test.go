package pim

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lychee-technology/pimsync"
	"github.com/stretchr/testify/require"
)

type fakePIM struct {
	*httptest.Server
	tokenCalls atomic.Int32
	pageCalls  atomic.Int32
}

func testConfig(baseURL string) pimsync.PIMConfig {
	cfg := pimsync.DefaultConfig().PIM
	cfg.BaseURL = baseURL
	cfg.ClientID = "client"
	cfg.ClientSecret = "secret"
	cfg.Username = "user"
	cfg.Password = "pass"
	cfg.RequestsPerSecond = 0
	cfg.Timeout = 5 * time.Second
	return cfg
}

// newFakePIM serves the token endpoint and delegates everything else to api.
func newFakePIM(t *testing.T, api http.HandlerFunc) *fakePIM {
	t.Helper()
	f := &fakePIM{}
	mux := http.NewServeMux()
	mux.HandleFunc(TokenPath, func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		writeJSON(w, map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.pageCalls.Add(1)
		api(w, r)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	cfg := testConfig(baseURL)
	client, err := NewClient(cfg, NewTokenProvider(cfg, nil, nil), opts...)
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func collectionPage(items []any, next string) map[string]any {
	links := map[string]any{"self": map[string]string{"href": "self"}}
	if next != "" {
		links["next"] = map[string]string{"href": next}
	}
	return map[string]any{
		"_links":    links,
		"_embedded": map[string]any{"items": items},
	}
}
