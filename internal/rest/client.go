// Package rest executes signed and unsigned venue REST calls with rate
// limiting, circuit breaking and error classification.
package rest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/exwrap/martin/errs"
	"github.com/exwrap/martin/internal/schema"
	"github.com/exwrap/martin/internal/telemetry"
)

const userAgent = "martin-gateway/2.0"

// Request is one upstream REST call. Query is encoded sorted by key; Signed
// requests pass through the venue's sign hook before dispatch.
type Request struct {
	Method  string
	Base    string
	Path    string
	Query   url.Values
	Body    []byte
	Headers http.Header
	Signed  bool
}

// SignFunc decorates a request with venue authentication (timestamp,
// receive window, signature placement).
type SignFunc func(ctx context.Context, req *Request) error

// Client is one venue's HTTP session. Safe for concurrent use.
type Client struct {
	venue   schema.Venue
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	latch   *Latch
	sign    SignFunc
	metrics *telemetry.Instruments
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSignFunc installs the venue signing hook.
func WithSignFunc(fn SignFunc) Option {
	return func(c *Client) { c.sign = fn }
}

// WithRateLimit overrides the client-side request pacing.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithInstruments attaches metric instruments to the client.
func WithInstruments(inst *telemetry.Instruments) Option {
	return func(c *Client) { c.metrics = inst }
}

// NewClient builds a venue REST client sharing the process-wide latch.
func NewClient(venue schema.Venue, latch *Latch, opts ...Option) *Client {
	settings := gobreaker.Settings{Name: string(venue)}
	settings.Interval = 60 * time.Second
	settings.Timeout = 30 * time.Second
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	c := &Client{
		venue:   venue,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		breaker: gobreaker.NewCircuitBreaker(settings),
		latch:   latch,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Do executes req and decodes the JSON response body into out (skipped when
// out is nil). Errors carry the classification codes from errs.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if c.latch != nil && c.latch.Active() {
		return errs.New(string(c.venue), errs.CodeRateLimited,
			errs.WithMessage("rate limit latch active"))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.New(string(c.venue), errs.CodeNetwork, errs.WithCause(err))
	}
	if req.Signed && c.sign != nil {
		if err := c.sign(ctx, &req); err != nil {
			return err
		}
	}

	start := time.Now()
	body, err := c.execute(ctx, &req)
	c.metrics.RESTDuration(ctx, string(c.venue), req.Method, req.Path,
		float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		if errs.HasCode(err, errs.CodeRateLimited) {
			c.metrics.RateLimitTrip(ctx, string(c.venue))
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.New(string(c.venue), errs.CodeOther,
			errs.WithMessage("decode response"), errs.WithCause(err))
	}
	return nil
}

func (c *Client) execute(ctx context.Context, req *Request) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.roundTrip(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errs.New(string(c.venue), errs.CodeNetwork,
				errs.WithMessage("circuit breaker open"), errs.WithCause(err))
		}
		return nil, err
	}
	body, _ := result.([]byte)
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, req *Request) ([]byte, error) {
	endpoint := strings.TrimSuffix(req.Base, "/") + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}
	var reader io.Reader
	if len(req.Body) > 0 {
		reader = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, reader)
	if err != nil {
		return nil, errs.New(string(c.venue), errs.CodeValidation, errs.WithCause(err))
	}
	httpReq.Header.Set("User-Agent", userAgent)
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransport(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, c.classifyTransport(err)
	}
	if err := c.classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		if c.latch != nil {
			c.latch.Trip()
		}
		return errs.New(string(c.venue), errs.CodeRateLimited,
			errs.WithHTTP(status), errs.WithRawMessage(trimBody(body)))
	case status >= 400 && status < 500:
		return errs.New(string(c.venue), errs.CodeHTTP,
			errs.WithHTTP(status), errs.WithRawMessage(trimBody(body)))
	default:
		return errs.New(string(c.venue), errs.CodeOther,
			errs.WithHTTP(status), errs.WithRawMessage(trimBody(body)))
	}
}

func (c *Client) classifyTransport(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return errs.New(string(c.venue), errs.CodeNetwork, errs.WithCause(err))
	}
	if errors.Is(err, context.Canceled) {
		return errs.New(string(c.venue), errs.CodeNetwork, errs.WithCause(err))
	}
	return errs.New(string(c.venue), errs.CodeOther, errs.WithCause(err))
}

func trimBody(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max]
	}
	return s
}
