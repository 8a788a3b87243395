package canvas

import "fmt"

// InvalidURLError reports a design file URL that does not match any of the
// accepted path shapes (/file/<id>, /design/<id>, /proto/<id>).
type InvalidURLError struct {
	URL string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid design file URL %q: expected a /file/, /design/ or /proto/ path", e.URL)
}

// APIError reports a request the API rejected: a non-success HTTP status
// (other than 429, which is retried) or a response body carrying a
// structured error field. It is never retried.
type APIError struct {
	StatusCode int    // 0 when the failure came from the response body
	Message    string // upstream error message, surfaced verbatim
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %s", e.Message)
}

// RateLimitError reports a 429 response that persisted past the retry budget.
type RateLimitError struct {
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts", e.Attempts)
}

// TransportError reports connection-level failures (dial errors, timeouts,
// truncated bodies) that persisted past the retry budget. The last
// underlying error is available via Unwrap.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DownloadError reports a non-success status while fetching a pre-signed
// render URL. It is fatal for the node being downloaded only; sibling nodes
// in the same export are unaffected.
type DownloadError struct {
	StatusCode int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("image download failed with status %d", e.StatusCode)
}
