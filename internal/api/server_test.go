package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/quarrylabs/quarry/internal/ingest"
	"github.com/quarrylabs/quarry/internal/log"
	"github.com/quarrylabs/quarry/internal/retrieval"
	"github.com/quarrylabs/quarry/internal/vector"
)

// fakeRetriever returns canned retrieval results.
type fakeRetriever struct {
	result *retrieval.Result
	err    error

	mu       sync.Mutex
	lastTopK int
	lastThr  float64
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, topK int, threshold float64) (*retrieval.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTopK = topK
	f.lastThr = threshold
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeIngestor returns canned ingestion results.
type fakeIngestor struct {
	result *ingest.Result
	err    error
}

func (f *fakeIngestor) Ingest(_ context.Context, _ string, _ []byte) (*ingest.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// allowAllLimiter admits every request.
type allowAllLimiter struct{}

func (allowAllLimiter) Allow(string) bool { return true }
func (allowAllLimiter) Close()            {}

// quotaLimiter admits a fixed number of requests, then denies.
type quotaLimiter struct {
	mu    sync.Mutex
	quota int
}

func (q *quotaLimiter) Allow(string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.quota <= 0 {
		return false
	}
	q.quota--
	return true
}

func (q *quotaLimiter) Close() {}

func newTestServer(t *testing.T, cfg ServerConfig) *httptest.Server {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Retriever == nil {
		cfg.Retriever = &fakeRetriever{result: &retrieval.Result{}}
	}
	if cfg.Ingestor == nil {
		cfg.Ingestor = &fakeIngestor{result: &ingest.Result{SourceHash: "abc", Chunks: 1}}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = allowAllLimiter{}
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.7
	}

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw)) //nolint:noctx // test client
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestNewServerValidation(t *testing.T) {
	base := ServerConfig{
		Retriever: &fakeRetriever{},
		Ingestor:  &fakeIngestor{},
		Limiter:   allowAllLimiter{},
	}

	missing := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"retriever", func(c *ServerConfig) { c.Retriever = nil }},
		{"ingestor", func(c *ServerConfig) { c.Ingestor = nil }},
		{"limiter", func(c *ServerConfig) { c.Limiter = nil }},
	}

	for _, tt := range missing {
		t.Run("missing "+tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := NewServer(cfg); err == nil {
				t.Errorf("NewServer() without %s should fail", tt.name)
			}
		})
	}
}

func TestQueryEndpoint(t *testing.T) {
	docs := []vector.ScoredDocument{
		{Document: vector.Document{ID: "1", Content: "relevant passage"}, Similarity: 0.92},
	}
	retr := &fakeRetriever{result: &retrieval.Result{Documents: docs}}
	ts := newTestServer(t, ServerConfig{Retriever: retr})

	resp := postJSON(t, ts.URL+"/api/v1/query", map[string]any{"query": "what is this"})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[queryResponse](t, resp)
	if body.CacheHit {
		t.Error("cache_hit = true, want false")
	}
	if len(body.Documents) != 1 || body.Documents[0].Similarity != 0.92 {
		t.Errorf("documents = %+v", body.Documents)
	}
	if !strings.Contains(body.Context, "relevant passage") {
		t.Errorf("context = %q", body.Context)
	}
}

func TestQueryEndpointCacheHit(t *testing.T) {
	retr := &fakeRetriever{result: &retrieval.Result{CacheHit: true, CachedResponse: "cached answer"}}
	ts := newTestServer(t, ServerConfig{Retriever: retr})

	resp := postJSON(t, ts.URL+"/api/v1/query", map[string]any{"query": "repeat question"})

	body := decodeBody[queryResponse](t, resp)
	if !body.CacheHit || body.Context != "cached answer" {
		t.Errorf("response = %+v", body)
	}
	if len(body.Documents) != 0 {
		t.Errorf("documents on cache hit = %+v", body.Documents)
	}
}

func TestQueryEndpointDefaults(t *testing.T) {
	retr := &fakeRetriever{result: &retrieval.Result{}}
	ts := newTestServer(t, ServerConfig{Retriever: retr, TopK: 7, Threshold: 0.65})

	postJSON(t, ts.URL+"/api/v1/query", map[string]any{"query": "q"})

	retr.mu.Lock()
	defer retr.mu.Unlock()
	if retr.lastTopK != 7 {
		t.Errorf("topK = %d, want server default 7", retr.lastTopK)
	}
	if retr.lastThr != 0.65 {
		t.Errorf("threshold = %v, want server default 0.65", retr.lastThr)
	}
}

func TestQueryEndpointOverrides(t *testing.T) {
	retr := &fakeRetriever{result: &retrieval.Result{}}
	ts := newTestServer(t, ServerConfig{Retriever: retr})

	postJSON(t, ts.URL+"/api/v1/query", map[string]any{"query": "q", "top_k": 2, "threshold": 0.0})

	retr.mu.Lock()
	defer retr.mu.Unlock()
	if retr.lastTopK != 2 {
		t.Errorf("topK = %d, want request override 2", retr.lastTopK)
	}
	// An explicit threshold of 0 is a valid override, not "unset".
	if retr.lastThr != 0 {
		t.Errorf("threshold = %v, want request override 0", retr.lastThr)
	}
}

func TestQueryEndpointBadRequests(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})

	t.Run("empty query", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/v1/query", map[string]any{"query": ""})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/query", "application/json", strings.NewReader("{not json")) //nolint:noctx // test client
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/query") //nolint:noctx // test client
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", resp.StatusCode)
		}
	})
}

func TestQueryEndpointRetrievalFailure(t *testing.T) {
	retr := &fakeRetriever{err: fmt.Errorf("%w: backend down", retrieval.ErrRetrievalFailed)}
	ts := newTestServer(t, ServerConfig{Retriever: retr})

	resp := postJSON(t, ts.URL+"/api/v1/query", map[string]any{"query": "q"})

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	body := decodeBody[ErrorResponse](t, resp)
	if body.Error != "retrieval_unavailable" {
		t.Errorf("error code = %q", body.Error)
	}
}

func TestDocumentEndpoint(t *testing.T) {
	ing := &fakeIngestor{result: &ingest.Result{SourceHash: "deadbeef", Chunks: 3}}
	ts := newTestServer(t, ServerConfig{Ingestor: ing})

	resp := postJSON(t, ts.URL+"/api/v1/documents", map[string]any{"name": "doc.txt", "content": "document body"})

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	body := decodeBody[documentResponse](t, resp)
	if body.SourceHash != "deadbeef" || body.Chunks != 3 {
		t.Errorf("response = %+v", body)
	}
}

func TestDocumentEndpointDuplicate(t *testing.T) {
	ing := &fakeIngestor{err: fmt.Errorf("%w (hash abc)", ingest.ErrDuplicateContent)}
	ts := newTestServer(t, ServerConfig{Ingestor: ing})

	resp := postJSON(t, ts.URL+"/api/v1/documents", map[string]any{"name": "doc.txt", "content": "dup"})

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	body := decodeBody[ErrorResponse](t, resp)
	if body.Error != "duplicate_content" {
		t.Errorf("error code = %q", body.Error)
	}
}

func TestDocumentEndpointEmptyContent(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})

	resp := postJSON(t, ts.URL+"/api/v1/documents", map[string]any{"name": "doc.txt", "content": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDocumentEndpointIngestFailure(t *testing.T) {
	ing := &fakeIngestor{err: errors.New("embedding provider down")}
	ts := newTestServer(t, ServerConfig{Ingestor: ing})

	resp := postJSON(t, ts.URL+"/api/v1/documents", map[string]any{"name": "doc.txt", "content": "body"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestRateLimiting(t *testing.T) {
	ts := newTestServer(t, ServerConfig{Limiter: &quotaLimiter{quota: 3}})

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		resp := postJSON(t, ts.URL+"/api/v1/query", map[string]any{"query": "q"})
		statuses = append(statuses, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			if got := resp.Header.Get("Retry-After"); got == "" {
				t.Error("429 response missing Retry-After header")
			}
		}
	}

	want := []int{200, 200, 200, 429}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("request %d: status = %d, want %d", i+1, statuses[i], want[i])
		}
	}
}

func TestHealthzBypassesRateLimiter(t *testing.T) {
	ts := newTestServer(t, ServerConfig{Limiter: &quotaLimiter{quota: 0}})

	resp, err := http.Get(ts.URL + "/healthz") //nolint:noctx // test client
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d with exhausted quota, want 200", resp.StatusCode)
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})

	resp := postJSON(t, ts.URL+"/api/v1/query", map[string]any{"query": "q"})
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID header")
	}
}
