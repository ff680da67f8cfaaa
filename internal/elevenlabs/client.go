// Package elevenlabs is a client for the ElevenLabs text-to-speech API. Its
// Client is a stream.Backend: synthesis responses are read into chunks as
// they arrive from the network.
package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.elevenlabs.io"

const (
	defaultTimeout  = 30 * time.Second
	defaultReadSize = 4096
	apiKeyHeader    = "xi-api-key"
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("elevenlabs: missing API key")
)

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	// Timeout bounds metadata requests. Synthesis streams are bounded only by
	// their context.
	Timeout time.Duration
	// RequestsPerMinute limits outgoing requests. Zero disables the limit.
	RequestsPerMinute int
	// ReadSize is the largest chunk read from a synthesis response.
	ReadSize   int
	UserAgent  string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client talks to the ElevenLabs API.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

// New returns a client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = defaultReadSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "vista"
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("elevenlabs")
	}

	return &Client{
		cfg:     cfg,
		base:    base,
		http:    hc,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// SetRequestsPerMinute changes the rate limit. Zero removes it.
func (c *Client) SetRequestsPerMinute(rpm int) {
	if rpm <= 0 {
		c.limiter.SetLimit(rate.Inf)
		return
	}
	c.limiter.SetLimit(rate.Every(time.Minute / time.Duration(rpm)))
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Status     string // machine-readable status from the error body, if any
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Status != "" && e.Message != "":
		return fmt.Sprintf("elevenlabs: %d %s: %s", e.StatusCode, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("elevenlabs: %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("elevenlabs: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// Temporary reports whether the request may succeed if retried later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// readAPIError builds an APIError from a failed response. The API reports
// errors as {"detail": {"status": ..., "message": ...}}, {"detail": "..."},
// or a list of validation errors.
func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	var detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	var text string
	var list []struct {
		Msg string `json:"msg"`
	}
	switch {
	case json.Unmarshal(envelope.Detail, &detail) == nil:
		apiErr.Status, apiErr.Message = detail.Status, detail.Message
	case json.Unmarshal(envelope.Detail, &text) == nil:
		apiErr.Message = text
	case json.Unmarshal(envelope.Detail, &list) == nil:
		msgs := make([]string, 0, len(list))
		for _, item := range list {
			msgs = append(msgs, item.Msg)
		}
		apiErr.Message = strings.Join(msgs, "; ")
	default:
		apiErr.Message = string(envelope.Detail)
	}
	return apiErr
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = u.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	return req, nil
}

// getJSON performs a rate-limited GET and decodes the response into v.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("request", "method", http.MethodGet, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode/100 != 2 {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
