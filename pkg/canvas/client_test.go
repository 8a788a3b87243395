package canvas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const nodesBody = `{"name":"Design","nodes":{"1:2":{"document":{"id":"1:2","name":"Header","type":"FRAME"}}}}`

type scriptedResponse struct {
	status     int
	body       string
	retryAfter string
}

// newScriptedServer replays the given responses in order, repeating the
// last one if more requests arrive. It returns a counter of requests seen.
func newScriptedServer(t *testing.T, script []scriptedResponse) (*httptest.Server, *int) {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := *calls
		if idx >= len(script) {
			idx = len(script) - 1
		}
		*calls++
		step := script[idx]
		if step.retryAfter != "" {
			w.Header().Set("Retry-After", step.retryAfter)
		}
		w.WriteHeader(step.status)
		w.Write([]byte(step.body))
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

// recordSleeps replaces the client's retry sleep with one that records the
// requested durations without actually waiting.
func recordSleeps(c *Client) *[]time.Duration {
	sleeps := new([]time.Duration)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return sleeps
}

type stubCache struct {
	entries map[string]json.RawMessage
	stored  int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]json.RawMessage)}
}

func stubKey(fileID string, nodeIDs []string) string {
	return fileID + "|" + strings.Join(nodeIDs, ",")
}

func (s *stubCache) Lookup(fileID string, nodeIDs []string) (json.RawMessage, bool) {
	data, ok := s.entries[stubKey(fileID, nodeIDs)]
	return data, ok
}

func (s *stubCache) Store(fileID string, nodeIDs []string, data json.RawMessage) error {
	s.entries[stubKey(fileID, nodeIDs)] = data
	s.stored++
	return nil
}

func TestFetchNodesRequestShape(t *testing.T) {
	var gotPath, gotToken, gotAccept, gotIDs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-API-TOKEN")
		gotAccept = r.Header.Get("Accept")
		gotIDs = r.URL.Query().Get("ids")
		w.Write([]byte(nodesBody))
	}))
	defer srv.Close()

	client := NewClient("secret-token", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	resp, err := client.FetchNodes(context.Background(), "F1", []string{"1:2", "3:4"}, false)
	require.NoError(t, err)

	require.Equal(t, "/files/F1/nodes", gotPath)
	require.Equal(t, "secret-token", gotToken, "token must travel in the X-API-TOKEN header")
	require.Equal(t, "application/json", gotAccept)
	require.Equal(t, "1:2,3:4", gotIDs, "all identifiers must go into one batched request")

	require.Equal(t, "Design", resp.Name)
	require.Contains(t, resp.Nodes, "1:2")
	require.Equal(t, "Header", resp.Nodes["1:2"].Document.Name)
}

func TestFetchNodesAPIErrorInBody(t *testing.T) {
	srv, _ := newScriptedServer(t, []scriptedResponse{
		{status: http.StatusOK, body: `{"err":"file not found"}`},
	})

	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	_, err := client.FetchNodes(context.Background(), "F1", []string{"1:2"}, false)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "file not found", apiErr.Message)
}

func TestGetRetriesOnRateLimit(t *testing.T) {
	srv, calls := newScriptedServer(t, []scriptedResponse{
		{status: http.StatusTooManyRequests, retryAfter: "2"},
		{status: http.StatusTooManyRequests},
		{status: http.StatusOK, body: nodesBody},
	})

	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	sleeps := recordSleeps(client)

	resp, err := client.FetchNodes(context.Background(), "F1", []string{"1:2"}, false)
	require.NoError(t, err)
	require.Equal(t, "Design", resp.Name)

	require.Equal(t, 3, *calls, "two rate-limited attempts then success")
	require.Equal(t, []time.Duration{2 * time.Second, 1 * time.Second}, *sleeps,
		"first wait honors Retry-After, second falls back to the default")
}

func TestGetRateLimitExhausted(t *testing.T) {
	srv, calls := newScriptedServer(t, []scriptedResponse{
		{status: http.StatusTooManyRequests},
	})

	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	sleeps := recordSleeps(client)

	_, err := client.FetchNodes(context.Background(), "F1", []string{"1:2"}, false)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	require.Equal(t, 3, rateErr.Attempts)
	require.Equal(t, 3, *calls)
	require.Len(t, *sleeps, 2, "no sleep after the final attempt")
}

func TestGetServerErrorFailsFast(t *testing.T) {
	srv, calls := newScriptedServer(t, []scriptedResponse{
		{status: http.StatusInternalServerError, body: "boom"},
	})

	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	_, err := client.FetchNodes(context.Background(), "F1", []string{"1:2"}, false)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	require.Equal(t, "boom", apiErr.Message)
	require.Equal(t, 1, *calls, "non-429 statuses are not retried")
}

func TestGetTransportErrorRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	httpClient := srv.Client()
	srv.Close()

	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(httpClient))
	sleeps := recordSleeps(client)

	_, err := client.FetchNodes(context.Background(), "F1", []string{"1:2"}, false)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, 3, transportErr.Attempts)
	require.Error(t, transportErr.Unwrap(), "the last transport failure is preserved")
	require.Equal(t, []time.Duration{defaultRetryWait, defaultRetryWait}, *sleeps)
}

func TestGetContextCancelled(t *testing.T) {
	srv, _ := newScriptedServer(t, []scriptedResponse{
		{status: http.StatusTooManyRequests},
	})

	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchNodes(ctx, "F1", []string{"1:2"}, false)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithRetryOverridesBudget(t *testing.T) {
	srv, calls := newScriptedServer(t, []scriptedResponse{
		{status: http.StatusTooManyRequests},
		{status: http.StatusTooManyRequests},
		{status: http.StatusTooManyRequests},
		{status: http.StatusTooManyRequests},
		{status: http.StatusOK, body: nodesBody},
	})

	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()),
		WithRetry(5, 50*time.Millisecond))
	sleeps := recordSleeps(client)

	_, err := client.FetchNodes(context.Background(), "F1", []string{"1:2"}, false)
	require.NoError(t, err)
	require.Equal(t, 5, *calls)
	require.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}, *sleeps)
}

func TestFetchNodesCache(t *testing.T) {
	srv, calls := newScriptedServer(t, []scriptedResponse{
		{status: http.StatusOK, body: nodesBody},
	})

	store := newStubCache()
	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithCache(store))

	first, err := client.FetchNodes(context.Background(), "F1", []string{"1:2"}, true)
	require.NoError(t, err)
	require.Equal(t, 1, *calls)
	require.Equal(t, 1, store.stored, "fresh response is written to the cache")

	second, err := client.FetchNodes(context.Background(), "F1", []string{"1:2"}, true)
	require.NoError(t, err)
	require.Equal(t, 1, *calls, "second fetch is served from the cache")
	require.Equal(t, first.Name, second.Name)
	require.Equal(t, first.Nodes["1:2"].Document.Name, second.Nodes["1:2"].Document.Name)
}

func TestFetchNodesCacheBypassed(t *testing.T) {
	srv, calls := newScriptedServer(t, []scriptedResponse{
		{status: http.StatusOK, body: nodesBody},
	})

	store := newStubCache()
	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithCache(store))

	_, err := client.FetchNodes(context.Background(), "F1", []string{"1:2"}, false)
	require.NoError(t, err)
	_, err = client.FetchNodes(context.Background(), "F1", []string{"1:2"}, false)
	require.NoError(t, err)

	require.Equal(t, 2, *calls, "useCache=false must hit the API every time")
	require.Zero(t, store.stored)
}

func TestFetchFile(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"name":"Design","document":{"id":"0:0","name":"Document","type":"DOCUMENT","children":[{"id":"0:1","name":"Page 1","type":"CANVAS"}]}}`))
	}))
	defer srv.Close()

	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	resp, err := client.FetchFile(context.Background(), "F1", false)
	require.NoError(t, err)
	require.Equal(t, "/files/F1", gotPath)
	require.Equal(t, "Design", resp.Name)
	require.Len(t, resp.Document.Children, 1)
	require.Equal(t, "Page 1", resp.Document.Children[0].Name)
}

func TestFetchImageURLs(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"ids":    r.URL.Query().Get("ids"),
			"format": r.URL.Query().Get("format"),
			"scale":  r.URL.Query().Get("scale"),
		}
		w.Write([]byte(`{"images":{"1:2":"https://cdn.example/a.png","3:4":""}}`))
	}))
	defer srv.Close()

	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	urls, err := client.FetchImageURLs(context.Background(), "F1", []string{"1:2", "3:4"}, "png", 2)
	require.NoError(t, err)
	require.Equal(t, "1:2,3:4", gotQuery["ids"])
	require.Equal(t, "png", gotQuery["format"])
	require.Equal(t, "2", gotQuery["scale"])
	require.Equal(t, "https://cdn.example/a.png", urls["1:2"])
	require.Empty(t, urls["3:4"], "unrenderable nodes come back with an empty URL")
}

func TestFetchImageURLsError(t *testing.T) {
	srv, _ := newScriptedServer(t, []scriptedResponse{
		{status: http.StatusOK, body: `{"err":"render failed","images":{}}`},
	})

	client := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	_, err := client.FetchImageURLs(context.Background(), "F1", []string{"1:2"}, "png", 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "render failed", apiErr.Message)
}

func TestDownloadImage(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-API-TOKEN")
		w.Write([]byte("binary-image-data"))
	}))
	defer srv.Close()

	client := NewClient("tok", WithHTTPClient(srv.Client()))

	data, err := client.DownloadImage(context.Background(), srv.URL+"/render/a.png")
	require.NoError(t, err)
	require.Equal(t, "binary-image-data", string(data))
	require.Empty(t, gotToken, "pre-signed URLs carry their own authorization")
}

func TestDownloadImageFailure(t *testing.T) {
	srv, calls := newScriptedServer(t, []scriptedResponse{
		{status: http.StatusForbidden, body: "expired"},
	})

	client := NewClient("tok", WithHTTPClient(srv.Client()))

	_, err := client.DownloadImage(context.Background(), srv.URL+"/render/a.png")
	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	require.Equal(t, http.StatusForbidden, dlErr.StatusCode)
	require.Equal(t, 1, *calls, "downloads are not retried")
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{name: "integer seconds", header: "5", want: 5 * time.Second},
		{name: "zero seconds", header: "0", want: 0},
		{name: "missing header", header: "", want: defaultRetryWait},
		{name: "unparseable header", header: "soon", want: defaultRetryWait},
		{name: "negative seconds", header: "-3", want: defaultRetryWait},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}
			if got := retryAfter(resp, defaultRetryWait); got != tt.want {
				t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}
