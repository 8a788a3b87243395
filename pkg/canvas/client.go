package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the hosted API root. Self-hosted deployments point
	// WithBaseURL at their own root.
	DefaultBaseURL = "https://api.canvascloud.io/v1"

	defaultMaxAttempts = 3
	defaultRetryWait   = 1000 * time.Millisecond
)

// ResponseCache persists raw API responses between invocations. Lookup
// misses (including expired or unreadable entries) return ok == false;
// Store reports write failures for the caller to log, never to abort on.
type ResponseCache interface {
	Lookup(fileID string, nodeIDs []string) (json.RawMessage, bool)
	Store(fileID string, nodeIDs []string, data json.RawMessage) error
}

// Client is an API client with rate-limit-aware retry for node metadata and
// image-render requests. The zero value is not usable; construct with
// NewClient. A single Client is safe for concurrent use; each export
// invocation shares only the optional response cache's backing storage.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	cache      ResponseCache
	logger     zerolog.Logger

	maxAttempts int
	retryWait   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, e.g. for a self-hosted deployment or
// a test server. A trailing slash is stripped.
func WithBaseURL(raw string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(raw, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithCache attaches a response cache consulted by FetchNodes and FetchFile
// when their useCache argument is true. Image-render URLs are never cached;
// they expire before a second use.
func WithCache(cache ResponseCache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLogger sets the client logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetry overrides the retry budget: the total number of attempts per
// request and the fallback wait between attempts when the API does not
// provide a Retry-After hint.
func WithRetry(maxAttempts int, wait time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if wait > 0 {
			c.retryWait = wait
		}
	}
}

// NewClient creates an API client carrying the provided pre-issued access
// token. The client is configured with transport settings tuned for large
// file payloads: connection pooling, disabled HTTP/2 (stream errors on
// multi-megabyte bodies), and a generous timeout.
func NewClient(token string, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
		DisableKeepAlives:   false,
		MaxIdleConnsPerHost: 10,
		ForceAttemptHTTP2:   false,
	}

	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout:   10 * time.Minute,
			Transport: transport,
		},
		logger:      zerolog.Nop(),
		maxAttempts: defaultMaxAttempts,
		retryWait:   defaultRetryWait,
		sleep:       sleepContext,
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

// FetchNodes retrieves metadata for the given nodes in a single batched
// request. All identifiers go into one call; per-node requests would burn
// through the rate limit. When useCache is true the response cache is
// consulted first and the fresh response is stored on the way out; cache
// failures degrade to a miss or a dropped write, never an error.
func (c *Client) FetchNodes(ctx context.Context, fileID string, nodeIDs []string, useCache bool) (*NodesResponse, error) {
	if useCache && c.cache != nil {
		if data, ok := c.cache.Lookup(fileID, nodeIDs); ok {
			var cached NodesResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				c.logger.Debug().Str("file_id", fileID).Int("node_count", len(nodeIDs)).Msg("nodes served from cache")
				return &cached, nil
			}
			c.logger.Warn().Str("file_id", fileID).Msg("discarding undecodable cache entry")
		}
	}

	q := url.Values{}
	q.Set("ids", strings.Join(nodeIDs, ","))
	endpoint := fmt.Sprintf("%s/files/%s/nodes?%s", c.baseURL, fileID, q.Encode())

	c.logger.Debug().Str("file_id", fileID).Int("node_count", len(nodeIDs)).Msg("fetching node metadata")
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp NodesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse nodes response: %w", err)
	}
	if resp.Err != "" {
		return nil, &APIError{Message: resp.Err}
	}

	if useCache && c.cache != nil {
		if err := c.cache.Store(fileID, nodeIDs, body); err != nil {
			c.logger.Warn().Err(err).Str("file_id", fileID).Msg("failed to cache nodes response")
		}
	}

	return &resp, nil
}

// FetchFile retrieves the complete file, including the full document tree.
// Used when a URL carries no node identifiers and the export targets the
// file's top-level frames. Cached under the empty node-identifier set.
func (c *Client) FetchFile(ctx context.Context, fileID string, useCache bool) (*FileResponse, error) {
	if useCache && c.cache != nil {
		if data, ok := c.cache.Lookup(fileID, nil); ok {
			var cached FileResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				c.logger.Debug().Str("file_id", fileID).Msg("file served from cache")
				return &cached, nil
			}
			c.logger.Warn().Str("file_id", fileID).Msg("discarding undecodable cache entry")
		}
	}

	endpoint := fmt.Sprintf("%s/files/%s", c.baseURL, fileID)

	c.logger.Debug().Str("file_id", fileID).Msg("fetching file")
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp FileResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse file response: %w", err)
	}
	if resp.Err != "" {
		return nil, &APIError{Message: resp.Err}
	}

	if useCache && c.cache != nil {
		if err := c.cache.Store(fileID, nil, body); err != nil {
			c.logger.Warn().Err(err).Str("file_id", fileID).Msg("failed to cache file response")
		}
	}

	return &resp, nil
}

// FetchImageURLs asks the render endpoint for download URLs covering the
// given nodes, batched into one request. The returned map may lack entries,
// or carry empty values, for nodes the renderer could not process. Render
// URLs are short-lived and therefore never cached.
func (c *Client) FetchImageURLs(ctx context.Context, fileID string, nodeIDs []string, format string, scale float64) (map[string]string, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(nodeIDs, ","))
	q.Set("format", format)
	q.Set("scale", strconv.FormatFloat(scale, 'f', -1, 64))
	endpoint := fmt.Sprintf("%s/images/%s?%s", c.baseURL, fileID, q.Encode())

	c.logger.Debug().Str("file_id", fileID).Str("format", format).Float64("scale", scale).Msg("fetching render URLs")
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp ImagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse images response: %w", err)
	}
	if resp.Err != "" {
		return nil, &APIError{Message: resp.Err}
	}

	return resp.Images, nil
}

// DownloadImage fetches the binary payload behind a pre-signed render URL.
// The URL embeds its own authorization, so no token header is attached,
// and the request is not retried.
func (c *Client) DownloadImage(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DownloadError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}

	return data, nil
}

// get issues an authenticated GET with the retry policy for metadata and
// render-URL requests: a 429 waits out the server's Retry-After hint (or
// the fixed default) and retries, transport failures retry on the same
// budget, and any other non-success status fails immediately. The token
// travels only in the request header and is never logged.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("X-API-TOKEN", c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn().Int("attempt", attempt).Err(err).Msg("request failed")
			if attempt < c.maxAttempts {
				if serr := c.sleep(ctx, c.retryWait); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, &TransportError{Attempts: attempt, Err: lastErr}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp, c.retryWait)
			resp.Body.Close()
			c.logger.Warn().Int("attempt", attempt).Dur("wait", wait).Msg("rate limited")
			if attempt < c.maxAttempts {
				if serr := c.sleep(ctx, wait); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, &RateLimitError{Attempts: attempt}
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			c.logger.Warn().Int("attempt", attempt).Err(err).Msg("reading response failed")
			if attempt < c.maxAttempts {
				if serr := c.sleep(ctx, c.retryWait); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, &TransportError{Attempts: attempt, Err: lastErr}
		}

		return body, nil
	}

	return nil, &TransportError{Attempts: c.maxAttempts, Err: lastErr}
}

// retryAfter reads the Retry-After header as whole seconds, falling back to
// the fixed default when the header is missing or unparseable.
func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return fallback
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// sleepContext blocks for d or until ctx is cancelled, propagating the
// cancellation error so an in-flight retry never outlives its caller.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
