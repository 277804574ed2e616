// Package fetch acquires page content with an HTTP-first strategy and a
// headless-rendering fallback. Network failures, block pages, and app shells
// are reported inside the result; a Go error escapes only for inputs no retry
// can fix.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/fabianmarian8/pagewatch/api/schemas"
)

// RenderedPage is what the headless path hands back.
type RenderedPage struct {
	HTML       string
	FinalURL   string
	StatusCode int
	Screenshot []byte
}

// Renderer is the headless acquisition path. *browser.Manager implements it;
// tests substitute fakes. A nil Renderer is valid and degrades every headless
// attempt to a browser_unavailable error.
type Renderer interface {
	Render(ctx context.Context, url string, opts *schemas.FetchOptions) (*RenderedPage, error)
}

// Fetcher decides per call which path produces the page.
type Fetcher struct {
	http           *HTTPClient
	renderer       Renderer
	logger         *zap.Logger
	defaultTimeout time.Duration
}

// NewFetcher wires the two acquisition paths. The HTTP client is mandatory;
// the renderer may be nil when no browser is available.
func NewFetcher(httpClient *HTTPClient, renderer Renderer, logger *zap.Logger) (*Fetcher, error) {
	if httpClient == nil {
		return nil, errors.New("fetch: http client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := httpClient.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		http:           httpClient,
		renderer:       renderer,
		logger:         logger.Named("fetch"),
		defaultTimeout: timeout,
	}, nil
}

// Fetch acquires the page at rawURL. The returned error is non-nil only for
// programmer errors (malformed URL, headless forced without a renderer);
// every network-level outcome is carried inside the result.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts *schemas.FetchOptions) (*schemas.FetchResult, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("invalid url %q: scheme must be http or https with a host", rawURL)
	}

	mode := schemas.FetchModeAuto
	if opts != nil && opts.PreferredMode != "" {
		mode = opts.PreferredMode
	}
	if mode == schemas.FetchModeHeadless && f.renderer == nil {
		return nil, errors.New("fetch: preferredMode=headless requires a renderer")
	}

	result := &schemas.FetchResult{URL: rawURL, ModeUsed: schemas.FetchModeHTTP}
	start := time.Now()
	defer func() {
		result.DurationMS = time.Since(start).Milliseconds()
	}()

	if mode == schemas.FetchModeHeadless {
		return f.render(ctx, rawURL, opts, result), nil
	}

	// A missing renderer does not veto the fallback decision: when the HTTP
	// path demands rendering, the result must say browser_unavailable rather
	// than pretend the HTTP outcome was acceptable.
	canFallback := mode == schemas.FetchModeAuto && opts.HeadlessFallback()

	httpCtx, cancel := context.WithTimeout(ctx, f.callTimeout(opts))
	resp, err := f.http.Get(httpCtx, rawURL, headersOf(opts))
	cancel()

	if err != nil {
		code := classifyTransportError(err)
		reason := fmt.Sprintf("http attempt failed: %s", code)
		f.logger.Debug("HTTP acquisition failed",
			zap.String("url", rawURL),
			zap.String("code", string(code)),
			zap.Error(err),
		)
		if canFallback {
			return f.fallback(ctx, rawURL, opts, result, reason), nil
		}
		return failure(result, code, err.Error()), nil
	}

	result.StatusCode = resp.StatusCode
	result.FinalURL = resp.FinalURL

	if reason, blocked := BlockSignature(resp.StatusCode, resp.Body); blocked {
		f.logger.Info("Response classified as a block page",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode),
			zap.String("signature", reason),
		)
		if canFallback {
			return f.fallback(ctx, rawURL, opts, result, reason), nil
		}
		if resp.StatusCode >= 400 {
			return failure(result, statusErrorCode(resp.StatusCode), reason), nil
		}
		// A blocked 2xx with fallback disabled is still the content the
		// server chose to serve.
		result.HTML = resp.Body
		result.Success = true
		return result, nil
	}

	if resp.StatusCode >= 400 {
		return failure(result, statusErrorCode(resp.StatusCode),
			fmt.Sprintf("HTTP %d from %s", resp.StatusCode, resp.FinalURL)), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failure(result, schemas.FetchErrConnection,
			fmt.Sprintf("HTTP %d without a followable Location", resp.StatusCode)), nil
	}

	if reason, needsRender := RequiresRendering(resp.Body); needsRender && canFallback {
		f.logger.Debug("Response classified as client-side rendered",
			zap.String("url", rawURL),
			zap.String("reason", reason),
		)
		return f.fallback(ctx, rawURL, opts, result, reason), nil
	}

	result.HTML = resp.Body
	result.Success = true
	return result, nil
}

// fallback switches the in-flight result over to the rendering path.
func (f *Fetcher) fallback(ctx context.Context, rawURL string, opts *schemas.FetchOptions, result *schemas.FetchResult, reason string) *schemas.FetchResult {
	result.FallbackTriggered = true
	result.FallbackReason = reason
	return f.render(ctx, rawURL, opts, result)
}

func (f *Fetcher) render(ctx context.Context, rawURL string, opts *schemas.FetchOptions, result *schemas.FetchResult) *schemas.FetchResult {
	result.ModeUsed = schemas.FetchModeHeadless

	if f.renderer == nil {
		return failure(result, schemas.FetchErrBrowser, "no renderer attached to this fetcher")
	}

	renderCtx, cancel := context.WithTimeout(ctx, f.callTimeout(opts))
	defer cancel()

	page, err := f.renderer.Render(renderCtx, rawURL, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return failure(result, schemas.FetchErrTimeout, fmt.Sprintf("rendering timed out: %s", err))
		}
		return failure(result, schemas.FetchErrBrowser, err.Error())
	}

	result.HTML = page.HTML
	result.FinalURL = page.FinalURL
	if page.StatusCode != 0 {
		result.StatusCode = page.StatusCode
	}
	result.Screenshot = page.Screenshot
	result.Success = true
	return result
}

func (f *Fetcher) callTimeout(opts *schemas.FetchOptions) time.Duration {
	if opts != nil && opts.TimeoutMS > 0 {
		return time.Duration(opts.TimeoutMS) * time.Millisecond
	}
	return f.defaultTimeout
}

func headersOf(opts *schemas.FetchOptions) map[string]string {
	if opts == nil {
		return nil
	}
	return opts.Headers
}
