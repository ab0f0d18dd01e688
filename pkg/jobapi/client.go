package jobapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// requestTimeout bounds every single HTTP round trip to the job server.
const requestTimeout = 15 * time.Second

// updateRequiredHint is the substring the server embeds in a 4xx body's
// "error" field when the client's version is too old to keep working.
const updateRequiredHint = "Please restart fishnet to upgrade."

// ErrUpdateRequired is returned when the job server indicates this client
// must be restarted on a newer version before it can continue.
var ErrUpdateRequired = errors.New("job server requires a client update")

// HTTPClientError is returned for 4xx responses: the request itself was
// rejected (bad key, unknown job, superseded work) and must not be retried
// as-is.
type HTTPClientError struct {
	StatusCode int
	Body       string
}

func (e *HTTPClientError) Error() string {
	return fmt.Sprintf("job server rejected request: %v: %v", e.StatusCode, e.Body)
}

// HTTPServerError is returned for 5xx responses: a transient server-side
// failure, safe to retry with backoff.
type HTTPServerError struct {
	StatusCode int
	Body       string
}

func (e *HTTPServerError) Error() string {
	return fmt.Sprintf("job server error: %v: %v", e.StatusCode, e.Body)
}

// classifyStatus maps an HTTP status to nil (success), an *HTTPClientError or
// an *HTTPServerError.
func classifyStatus(code int, body string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 400 && code < 500:
		return &HTTPClientError{StatusCode: code, Body: body}
	case code >= 500:
		return &HTTPServerError{StatusCode: code, Body: body}
	default:
		return fmt.Errorf("unexpected status: %v: %v", code, body)
	}
}

// Client talks to the job server over HTTP. Every request carries the
// envelope (client/engine identification) the server expects.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient returns a Client for the given base URL (e.g.
// "https://engine.lichess.org"), stamping every request with userAgent.
func NewClient(baseURL, userAgent string) *Client {
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      &http.Client{Timeout: requestTimeout},
	}
}

// AcquireRequest is the body of a POST to /acquire.
type AcquireRequest struct {
	Envelope
}

// Acquire asks the server for a job. A nil Job with a nil error means no job
// is currently available.
func (c *Client) Acquire(ctx context.Context, req AcquireRequest) (*Job, error) {
	var job Job
	ok, err := c.do(ctx, http.MethodPost, "/acquire", req, &job)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &job, nil
}

// SubmitAnalysis reports a (possibly partial) analysis result for jobID.
func (c *Client) SubmitAnalysis(ctx context.Context, jobID string, env Envelope) error {
	_, err := c.do(ctx, http.MethodPost, "/analysis/"+jobID, env, nil)
	return err
}

// SubmitMove reports the chosen move for jobID.
func (c *Client) SubmitMove(ctx context.Context, jobID string, env Envelope) error {
	_, err := c.do(ctx, http.MethodPost, "/move/"+jobID, env, nil)
	return err
}

// Abort reports that jobID was abandoned (e.g. because the engine died).
func (c *Client) Abort(ctx context.Context, jobID string, env Envelope) error {
	_, err := c.do(ctx, http.MethodPost, "/abort/"+jobID, env, nil)
	return err
}

// ValidateKey checks an API key against the server, returning false (with a
// nil error) if the server rejects it as invalid.
func (c *Client) ValidateKey(ctx context.Context, key string) (bool, error) {
	ok, err := c.do(ctx, http.MethodGet, "/key/"+key, nil, nil)
	var clientErr *HTTPClientError
	if err != nil {
		if asHTTPClientError(err, &clientErr) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

func asHTTPClientError(err error, target **HTTPClientError) bool {
	e, ok := err.(*HTTPClientError)
	if ok {
		*target = e
	}
	return ok
}

// bodyRequestsUpdate reports whether a 4xx body's "error" field asks the
// client to restart on a newer version.
func bodyRequestsUpdate(body string) bool {
	var wire struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return false
	}
	return strings.Contains(wire.Error, updateRequiredHint)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (bool, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("encode request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("build request: %v", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("request %v %v: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	if err := classifyStatus(resp.StatusCode, string(data)); err != nil {
		var clientErr *HTTPClientError
		if errors.As(err, &clientErr) && bodyRequestsUpdate(clientErr.Body) {
			return false, fmt.Errorf("%w: %v", ErrUpdateRequired, clientErr)
		}
		return false, err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return false, fmt.Errorf("decode response %v: %v", path, err)
		}
	}
	return true, nil
}
