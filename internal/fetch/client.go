// Package fetch provides the JSON HTTP client shared by the registry clients:
// cached DNS, exponential retry on rate limits and server errors, and a circuit
// breaker per upstream host.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	circuit "github.com/rubyist/circuitbreaker"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrUpstreamDown = errors.New("upstream unavailable")
)

// HTTPError is an unexpected, non-retryable response status.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client fetches JSON documents from upstream APIs.
type Client struct {
	client     *http.Client
	userAgent  string
	maxRetries uint64
	baseDelay  time.Duration
	tripAfter  int64

	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex

	stopRefresh chan struct{}
	refreshDone chan struct{}
	closeOnce   sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default DNS-caching HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithMaxRetries sets how many times a retryable failure is retried.
func WithMaxRetries(n uint64) Option {
	return func(cl *Client) {
		cl.maxRetries = n
	}
}

// WithBaseDelay sets the first backoff interval.
func WithBaseDelay(d time.Duration) Option {
	return func(cl *Client) {
		cl.baseDelay = d
	}
}

// WithTimeout sets the per-request timeout of the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.client.Timeout = d
	}
}

// WithTripThreshold sets how many consecutive failures open a host's circuit.
func WithTripThreshold(n int64) Option {
	return func(cl *Client) {
		cl.tripAfter = n
	}
}

// New creates a Client with the given options. Call Close when done with it.
func New(opts ...Option) *Client {
	resolver := &dnscache.Resolver{}
	c := &Client{
		client:     newCachingHTTPClient(resolver),
		userAgent:  "package-health/1.0",
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		tripAfter:  5,
		breakers:   make(map[string]*circuit.Breaker),

		stopRefresh: make(chan struct{}),
		refreshDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.refreshDNS(resolver, dnsRefreshInterval)
	return c
}

const dnsRefreshInterval = 5 * time.Minute

// refreshDNS re-resolves cached hosts every interval until Close is called.
func (c *Client) refreshDNS(resolver *dnscache.Resolver, interval time.Duration) {
	defer close(c.refreshDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			resolver.Refresh(true)
		case <-c.stopRefresh:
			return
		}
	}
}

// Close stops the background DNS refresh and waits for it to exit.
// It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.stopRefresh) })
	<-c.refreshDone
}

func newCachingHTTPClient(resolver *dnscache.Resolver) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, err
				}
				ips, err := resolver.LookupHost(ctx, host)
				if err != nil {
					return nil, err
				}
				for _, ip := range ips {
					conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
					if err == nil {
						return conn, nil
					}
				}
				return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
			},
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// GetJSON fetches rawURL and decodes the JSON body into v.
// Rate limits and 5xx responses are retried with exponential backoff.
// A 404 returns ErrNotFound and does not count against the host's circuit.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	host := hostOf(rawURL)
	breaker := c.breaker(host)
	if !breaker.Ready() {
		return fmt.Errorf("circuit open for %s: %w", host, ErrUpstreamDown)
	}

	var notFound bool
	err := breaker.Call(func() error {
		err := c.getWithRetry(ctx, rawURL, v)
		if errors.Is(err, ErrNotFound) {
			notFound = true
			return nil
		}
		return err
	}, 0)
	if notFound {
		return ErrNotFound
	}
	return err
}

func (c *Client) getWithRetry(ctx context.Context, rawURL string, v any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.MaxInterval = 10 * c.baseDelay
	b.MaxElapsedTime = 0

	op := func() error {
		err := c.get(ctx, rawURL, v)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamDown) {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
}

func (c *Client) get(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decoding %s: %w", rawURL, err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("status %d from %s: %w", resp.StatusCode, rawURL, ErrUpstreamDown)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &HTTPError{StatusCode: resp.StatusCode, URL: rawURL, Body: string(body)}
	}
}

// breaker returns the circuit breaker for host, creating it on first use.
func (c *Client) breaker(host string) *circuit.Breaker {
	c.mu.RLock()
	b, ok := c.breakers[host]
	c.mu.RUnlock()
	if ok {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[host]; ok {
		return b
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	b = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(c.tripAfter),
	})
	c.breakers[host] = b
	return b
}

// BreakerStates reports "open" or "closed" per upstream host.
func (c *Client) BreakerStates() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make(map[string]string, len(c.breakers))
	for host, b := range c.breakers {
		if b.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
