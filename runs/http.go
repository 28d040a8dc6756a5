package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/praxisworks/runkit/cache"
	kiterrors "github.com/praxisworks/runkit/errors"
	"github.com/praxisworks/runkit/ratelimit"
	"github.com/praxisworks/runkit/tasks"
)

const runsPath = "/api/v1/runs"

// HTTPConfig holds configuration for the HTTP run client.
type HTTPConfig struct {
	// BaseURL is the service root, e.g. "https://runs.example.com".
	BaseURL string

	// APIKey authenticates requests via bearer auth.
	APIKey string

	// Timeout bounds each HTTP request. Default: 30s.
	Timeout time.Duration

	// RateLimit paces requests to the service. Zero value uses
	// ratelimit.DefaultConfig().
	RateLimit ratelimit.Config

	// Retry controls per-request retries. Zero value uses
	// ratelimit.DefaultRetryConfig().
	Retry ratelimit.RetryConfig

	// CacheTTL is how long GET responses stay fresh. Non-positive
	// uses the default of 5s.
	CacheTTL time.Duration

	// CacheSize bounds the GET response cache. Default: 128.
	CacheSize int
}

// HTTPClient implements Client over the service's JSON/HTTP API. Every
// request passes through the rate limiter, transient failures are
// retried with backoff, and GET responses are served from a short-TTL
// cache to absorb polling bursts.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *ratelimit.Limiter
	retry   ratelimit.RetryConfig
	cache   *cache.Cache
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTP run client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, kiterrors.Validation("base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, kiterrors.Validation("api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rl := cfg.RateLimit
	if rl == (ratelimit.Config{}) {
		rl = ratelimit.DefaultConfig()
	}
	limiter, err := ratelimit.NewLimiter(rl)
	if err != nil {
		return nil, err
	}

	retry := cfg.Retry
	if retry == (ratelimit.RetryConfig{}) {
		retry = ratelimit.DefaultRetryConfig()
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 128
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		retry:   retry,
		cache:   cache.New(cache.Config{MaxEntries: size, TTL: ttl}),
	}, nil
}

// Wire formats.

type runRequest struct {
	Prompt   string            `json:"prompt"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type resumeRequest struct {
	Prompt string `json:"prompt"`
}

type runResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	WebURL string `json:"web_url,omitempty"`
}

type logsResponse struct {
	Entries []LogEntry `json:"entries"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (r *runResponse) toRunInfo() *RunInfo {
	return &RunInfo{
		ID:        r.ID,
		Status:    tasks.ParseRemoteStatus(r.Status),
		RawStatus: r.Status,
		Result:    r.Result,
		Error:     r.Error,
		WebURL:    r.WebURL,
	}
}

// CreateRun starts a new run from a prompt.
func (c *HTTPClient) CreateRun(ctx context.Context, spec PromptSpec) (*RunInfo, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	body := runRequest{Prompt: spec.Prompt, Metadata: spec.Metadata}
	data, err := c.doRequest(ctx, http.MethodPost, runsPath, nil, body)
	if err != nil {
		return nil, err
	}
	c.cache.Purge()
	return decodeRun(data)
}

// GetRun fetches the current status and outcome of a run.
func (c *HTTPClient) GetRun(ctx context.Context, id int64) (*RunInfo, error) {
	if err := validateRunID(id); err != nil {
		return nil, err
	}

	data, err := c.doCachedGet(ctx, fmt.Sprintf("%s/%d", runsPath, id), nil)
	if err != nil {
		return nil, err
	}
	return decodeRun(data)
}

// ResumeRun continues an existing run with a follow-up prompt.
func (c *HTTPClient) ResumeRun(ctx context.Context, id int64, prompt string) (*RunInfo, error) {
	if err := validateRunID(id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, kiterrors.Validation("resume prompt is required", kiterrors.WithRunID(id))
	}

	path := fmt.Sprintf("%s/%d/resume", runsPath, id)
	data, err := c.doRequest(ctx, http.MethodPost, path, nil, resumeRequest{Prompt: prompt})
	if err != nil {
		return nil, err
	}
	c.cache.Purge()
	return decodeRun(data)
}

// CancelRun asks the service to stop a run.
func (c *HTTPClient) CancelRun(ctx context.Context, id int64) (*RunInfo, error) {
	if err := validateRunID(id); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/%d/cancel", runsPath, id)
	data, err := c.doRequest(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return nil, err
	}
	c.cache.Purge()
	return decodeRun(data)
}

// Logs returns a page of the run's log.
func (c *HTTPClient) Logs(ctx context.Context, id int64, skip, limit int) ([]LogEntry, error) {
	if err := validateRunID(id); err != nil {
		return nil, err
	}

	params := map[string]string{}
	if skip > 0 {
		params["skip"] = strconv.Itoa(skip)
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	path := fmt.Sprintf("%s/%d/logs", runsPath, id)
	data, err := c.doCachedGet(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var resp logsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, malformedResponse(err)
	}
	return resp.Entries, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// doCachedGet serves a GET from the response cache when fresh,
// otherwise performs the request and caches the result.
func (c *HTTPClient) doCachedGet(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	key := cache.Key(http.MethodGet, path, params, nil)
	if data, ok := c.cache.Get(key); ok {
		return data, nil
	}

	data, err := c.doRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, data)
	return data, nil
}

// doRequest performs one API call: acquire the rate limiter, send,
// classify the response. Transient failures retry with backoff; the
// limiter is re-acquired on every attempt so retries are paced too.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, params map[string]string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, kiterrors.Wrap(err, "encode request")
		}
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		reqURL += "?" + q.Encode()
	}

	var result []byte
	err := ratelimit.Do(ctx, c.retry, func() error {
		if err := c.limiter.Acquire(ctx); err != nil {
			return kiterrors.Wrap(err, "rate limiter wait")
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return kiterrors.Wrap(err, "create request")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return classifyTransport(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return kiterrors.RemoteUnavailable("read response", kiterrors.WithCause(err))
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return statusError(resp.StatusCode, data)
		}

		result = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// classifyTransport folds a transport-level failure into the taxonomy.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return kiterrors.Canceled("request canceled", kiterrors.WithCause(err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return kiterrors.Timeout("request timed out", kiterrors.WithCause(err))
	}
	return kiterrors.RemoteUnavailable("request failed", kiterrors.WithCause(err))
}

// statusError maps a non-success HTTP status onto the taxonomy.
func statusError(code int, body []byte) error {
	msg := serviceMessage(body)

	switch {
	case code == http.StatusBadRequest:
		return kiterrors.Validation(msg)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return kiterrors.RemoteAuth(msg)
	case code == http.StatusNotFound:
		return kiterrors.NotFound(msg)
	case code == http.StatusConflict:
		return kiterrors.Conflict(msg)
	case code == http.StatusTooManyRequests:
		return kiterrors.RateLimited(msg)
	case code >= 500:
		return kiterrors.RemoteUnavailable(fmt.Sprintf("service error (status %d): %s", code, msg))
	default:
		return kiterrors.Newf(kiterrors.ErrCodeInternal, "unexpected status %d: %s", code, msg)
	}
}

// serviceMessage extracts the error text the service returned, falling
// back to the raw body.
func serviceMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "no error detail"
	}
	return msg
}

func decodeRun(data []byte) (*RunInfo, error) {
	var resp runResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, malformedResponse(err)
	}
	return resp.toRunInfo(), nil
}

func malformedResponse(err error) error {
	return kiterrors.RemoteUnavailable("malformed response", kiterrors.WithCause(err))
}

func validateRunID(id int64) error {
	if id <= 0 {
		return kiterrors.Validation(fmt.Sprintf("run id must be positive, got %d", id))
	}
	return nil
}
