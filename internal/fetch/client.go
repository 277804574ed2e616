package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/fabianmarian8/pagewatch/internal/config"
)

const (
	defaultDialTimeout         = 5 * time.Second
	defaultKeepAliveInterval   = 15 * time.Second
	defaultTLSHandshakeTimeout = 5 * time.Second

	// Watcher workloads touch many hosts infrequently; the pool is sized for
	// breadth rather than per-host depth.
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 4
	defaultIdleConnTimeout     = 90 * time.Second

	// redirectDrainLimit bounds how much of an abandoned redirect body is
	// read before closing, keeping the connection reusable.
	redirectDrainLimit = 32 * 1024
)

// defaultHeaders make the plain-HTTP path look like an ordinary browser tab.
// Sites that vary markup by client tend to key off these three.
var defaultHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Upgrade-Insecure-Requests": "1",
}

// PageResponse is the final hop of a followed redirect chain.
type PageResponse struct {
	StatusCode int
	FinalURL   string
	Body       string
	Header     http.Header
}

// HTTPClient is the lightweight acquisition path. It is safe for concurrent
// use; per-call state (the cookie jar for a redirect chain) never outlives a
// single Get.
type HTTPClient struct {
	transport http.RoundTripper
	cfg       config.HTTPConfig
	limiters  *hostLimiters
	logger    *zap.Logger
}

// NewHTTPClient assembles the transport stack. Returns an error only for an
// unusable configuration (malformed proxy URL).
func NewHTTPClient(cfg config.HTTPConfig, logger *zap.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("httpclient")

	dialer := &net.Dialer{
		Timeout:   defaultDialTimeout,
		KeepAlive: defaultKeepAliveInterval,
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		// Session resumption pays off on repeated observations of the same
		// hosts.
		ClientSessionCache: tls.NewLRUClientSessionCache(256),
		InsecureSkipVerify: cfg.IgnoreTLSErrors,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", cfg.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
	}

	var limiters *hostLimiters
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiters = newHostLimiters(rate.Limit(cfg.RateLimit), burst)
	}

	return &HTTPClient{
		transport: newDecompressionTransport(transport),
		cfg:       cfg,
		limiters:  limiters,
		logger:    logger,
	}, nil
}

// Get fetches a page, following redirects manually up to the configured
// ceiling. 301, 302, and 303 rewrite the method to GET; 307 and 308 preserve
// it. Cookies set along the chain are replayed on subsequent hops and
// discarded when the call returns.
func (c *HTTPClient) Get(ctx context.Context, rawURL string, extraHeaders map[string]string) (*PageResponse, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{
		Transport: c.transport,
		Jar:       jar,
		// Redirects are inspected by the loop below, never followed blindly.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	method := http.MethodGet
	maxRedirects := c.cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	for hop := 0; ; hop++ {
		if err := c.waitForHost(ctx, target.Hostname()); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request for %q: %w", target.String(), err)
		}
		c.applyHeaders(req, extraHeaders)

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		next, redirected := redirectTarget(resp)
		if !redirected {
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes()))
			closeErr := resp.Body.Close()
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response body: %w", readErr)
			}
			if closeErr != nil {
				c.logger.Debug("Failed to close response body", zap.Error(closeErr))
			}
			return &PageResponse{
				StatusCode: resp.StatusCode,
				FinalURL:   req.URL.String(),
				Body:       string(body),
				Header:     resp.Header,
			}, nil
		}

		// Drain a bounded amount so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, redirectDrainLimit))
		_ = resp.Body.Close()

		if hop >= maxRedirects {
			return nil, fmt.Errorf("redirect limit of %d exceeded at %q", maxRedirects, target.String())
		}

		resolved, err := target.Parse(next)
		if err != nil {
			return nil, fmt.Errorf("invalid redirect location %q: %w", next, err)
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return nil, fmt.Errorf("redirect to unsupported scheme %q", resolved.Scheme)
		}

		if resp.StatusCode != http.StatusTemporaryRedirect && resp.StatusCode != http.StatusPermanentRedirect {
			method = http.MethodGet
		}
		c.logger.Debug("Following redirect",
			zap.Int("status", resp.StatusCode),
			zap.String("location", resolved.String()),
			zap.Int("hop", hop+1),
		)
		target = resolved
	}
}

func (c *HTTPClient) applyHeaders(req *http.Request, extra map[string]string) {
	for name, value := range defaultHeaders {
		req.Header.Set(name, value)
	}
	userAgent := c.cfg.UserAgent
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	for name, value := range c.cfg.Headers {
		req.Header.Set(name, value)
	}
	for name, value := range extra {
		req.Header.Set(name, value)
	}
}

func (c *HTTPClient) maxBodyBytes() int64 {
	if c.cfg.MaxBodyBytes > 0 {
		return c.cfg.MaxBodyBytes
	}
	return 10 * 1024 * 1024
}

func (c *HTTPClient) waitForHost(ctx context.Context, host string) error {
	if c.limiters == nil {
		return nil
	}
	return c.limiters.wait(ctx, host)
}

// redirectTarget reports whether the response is a followable redirect. A
// redirect status without a Location header is returned to the caller as-is.
func redirectTarget(resp *http.Response) (string, bool) {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		location := strings.TrimSpace(resp.Header.Get("Location"))
		return location, location != ""
	default:
		return "", false
	}
}

// hostLimiters holds one token bucket per host. Politeness toward a slow shop
// must not stall observations of unrelated hosts.
type hostLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newHostLimiters(limit rate.Limit, burst int) *hostLimiters {
	return &hostLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (h *hostLimiters) wait(ctx context.Context, host string) error {
	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()
	return limiter.Wait(ctx)
}
