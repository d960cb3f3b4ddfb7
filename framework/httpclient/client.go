// Package httpclient is the outbound JSON client shared by the business
// services. Every client sits behind its own circuit breaker.
package httpclient

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

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// ErrUnavailable is returned while the breaker refuses calls.
var ErrUnavailable = errors.New("upstream temporarily unavailable")

// Options configures a Client.
type Options struct {
	Name    string
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
	Logger  *zap.Logger

	// Breaker tuning. Zero values take the defaults below.
	MaxRequests      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration
	FailureThreshold float64
	MinRequests      uint32

	// Transport overrides the default transport (tests).
	Transport http.RoundTripper
}

// Client sends JSON requests relative to a base URL.
type Client struct {
	name    string
	baseURL string
	headers map[string]string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// New creates a Client from opts.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRequests == 0 {
		opts.MaxRequests = 5
	}
	if opts.Interval == 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = 60 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 0.8
	}
	if opts.MinRequests == 0 {
		opts.MinRequests = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("upstream", opts.Name))

	c := &Client{
		name:    opts.Name,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		headers: opts.Headers,
		http:    &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < opts.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// 4xx answers mean the upstream is alive.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < http.StatusInternalServerError
			}
			return err == nil
		},
	})
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string { return c.name }

// State returns the breaker state.
func (c *Client) State() gobreaker.State { return c.breaker.State() }

// GetJSON sends GET path and decodes the response into out (may be nil).
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.JSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON sends body as JSON and decodes the response into out (may be nil).
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.JSON(ctx, http.MethodPost, path, body, out)
}

// JSON sends a request with an optional JSON body.
func (c *Client) JSON(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", c.name, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := c.NewRequest(ctx, method, path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.Do(req, out)
}

// NewRequest builds a request for path carrying the client's default headers.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Do sends req through the breaker. A 2xx body is copied into out when it
// is an io.Writer, decoded into it as JSON otherwise, and discarded when
// out is nil. Anything else becomes a *StatusError.
func (c *Client) Do(req *http.Request, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return nil, &StatusError{
				Method: req.Method,
				URL:    req.URL.Redacted(),
				Code:   resp.StatusCode,
				Body:   strings.TrimSpace(string(b)),
			}
		}
		switch dst := out.(type) {
		case nil:
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, nil
		case io.Writer:
			if _, err := io.Copy(dst, resp.Body); err != nil {
				return nil, fmt.Errorf("read %s response: %w", c.name, err)
			}
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", c.name, err)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("request rejected by circuit breaker", zap.String("path", req.URL.Path))
		return fmt.Errorf("%s: %w", c.name, ErrUnavailable)
	}
	return err
}
