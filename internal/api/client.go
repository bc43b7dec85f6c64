// Package api is the client for the autoantibody control plane.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/alchemab/aab/internal/config"
	"github.com/alchemab/aab/internal/credentials"
	"github.com/alchemab/aab/internal/http"
	"github.com/alchemab/aab/internal/logging"
	"github.com/alchemab/aab/internal/ratelimit"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 64 * 1024

// apiMetrics tracks API usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls  int64
	callsByOp   map[string]int64
	failedCalls int64
}

// Client talks to the control plane. Every call carries the caller's
// credentials and is awaited; failed calls are never retried.
type Client struct {
	httpClient *nethttp.Client
	config     *config.Config
	baseURL    string
	limiter    *ratelimit.RateLimiter
	logger     *logging.Logger
	metrics    *apiMetrics
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty: %w", config.ErrMissingAPIURL)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	httpClient, err := http.ConfigureHTTPClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	// A failed control plane call fails the whole upload, so retries are off
	// and non-2xx responses are handed back untouched.
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = 0
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = logging.NewRetryLogger(logger)

	burst := cfg.RateBurst
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = config.New().RatePerSec
	}

	return &Client{
		httpClient: retryClient.StandardClient(),
		config:     cfg,
		baseURL:    strings.TrimSuffix(cfg.APIBaseURL, "/"),
		limiter:    ratelimit.NewRateLimiter(rps, burst, logger),
		logger:     logger,
		metrics:    &apiMetrics{callsByOp: make(map[string]int64)},
	}, nil
}

// GetConfig returns the configuration used by this API client
func (c *Client) GetConfig() *config.Config {
	return c.config
}

// CallCount returns the number of calls made for an operation.
func (c *Client) CallCount(operation string) int64 {
	c.metrics.Lock()
	defer c.metrics.Unlock()
	return c.metrics.callsByOp[operation]
}

// request describes one control plane call.
type request struct {
	operation   string
	method      string
	route       string
	query       url.Values
	body        interface{}
	contentType string // overrides the JSON content type when set
}

// doRequest performs an HTTP request with authentication and rate limiting
func (c *Client) doRequest(ctx context.Context, r request, creds credentials.Credentials) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	c.metrics.Lock()
	c.metrics.totalCalls++
	c.metrics.callsByOp[r.operation]++
	c.metrics.Unlock()

	var reqBody io.Reader
	if r.body != nil {
		jsonData, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	target := c.baseURL + "/" + r.route
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := nethttp.NewRequestWithContext(ctx, r.method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+creds.IDToken)
	req.Header.Set("x-access-token", creds.AccessToken)
	req.Header.Set("Accept", "application/json")
	switch {
	case r.contentType != "":
		req.Header.Set("Content-Type", r.contentType)
	case r.body != nil:
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countFailure()
		c.logger.Error().Err(err).Str("operation", r.operation).Str("method", r.method).Str("route", r.route).Msg("API call failed")
		return nil, fmt.Errorf("%s request failed: %w", r.operation, err)
	}

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		ev := c.logger.Warn().Str("operation", r.operation)
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			ev = ev.Str("retry_after", retryAfter)
		}
		ev.Msg("THROTTLED: control plane rate limit exceeded")
	}

	return resp, nil
}

// call performs r and decodes a 2xx JSON response into out (if non-nil).
// Non-2xx responses become *GatewayError carrying the response body.
func (c *Client) call(ctx context.Context, r request, creds credentials.Credentials, out interface{}) error {
	resp, err := c.doRequest(ctx, r, creds)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.countFailure()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		gerr := &GatewayError{Operation: r.operation, StatusCode: resp.StatusCode, Body: string(body)}
		c.logger.Debug().Str("operation", r.operation).Int("status", resp.StatusCode).Msg("control plane rejected call")
		return gerr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: empty response body", r.operation)
		}
		return fmt.Errorf("failed to decode %s response: %w", r.operation, err)
	}
	return nil
}

func (c *Client) countFailure() {
	c.metrics.Lock()
	c.metrics.failedCalls++
	c.metrics.Unlock()
}
