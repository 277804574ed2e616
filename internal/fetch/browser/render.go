package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpfetch "github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/fabianmarian8/pagewatch/api/schemas"
	"github.com/fabianmarian8/pagewatch/internal/config"
	"github.com/fabianmarian8/pagewatch/internal/fetch"
)

// blockedResourceTypes are not loaded when resource blocking is on. Layout
// and script execution stay intact; only bytes that cannot change the
// extracted values are skipped.
var blockedResourceTypes = map[network.ResourceType]bool{
	network.ResourceTypeImage: true,
	network.ResourceTypeFont:  true,
	network.ResourceTypeMedia: true,
}

// renderContext is one isolated browser context plus the blank target
// living inside it. It serves exactly one Render call.
type renderContext struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	tabCtx           context.Context
	tabCancel        context.CancelFunc
	controller       context.Context
	browserContextID cdp.BrowserContextID
}

// render drives the navigation pipeline and serializes the settled DOM.
func (rc *renderContext) render(ctx context.Context, rawURL string, opts *schemas.FetchOptions) (*fetch.RenderedPage, error) {
	runCtx, cancel := combineContext(rc.tabCtx, ctx)
	defer cancel()
	runCtx, cancelNav := context.WithTimeout(runCtx, rc.navigationTimeout())
	defer cancelNav()

	blocking := opts.BlockingEnabled()

	var (
		statusMu   sync.Mutex
		statusCode int
	)
	chromedp.ListenTarget(rc.tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Type != network.ResourceTypeDocument {
				return
			}
			// The first document response belongs to the main frame;
			// later ones are iframes.
			statusMu.Lock()
			if statusCode == 0 {
				statusCode = int(e.Response.Status)
			}
			statusMu.Unlock()
		case *cdpfetch.EventRequestPaused:
			if !blocking {
				return
			}
			go rc.resolvePausedRequest(e)
		}
	})

	tasks := chromedp.Tasks{network.Enable()}
	if rc.cfg.DisableCache {
		tasks = append(tasks, network.SetCacheDisabled(true))
	}
	if blocking {
		tasks = append(tasks, cdpfetch.Enable())
	}
	if hdrs := headerValues(opts); len(hdrs) > 0 {
		tasks = append(tasks, network.SetExtraHTTPHeaders(hdrs))
	}
	if opts != nil && len(opts.Cookies) > 0 {
		tasks = append(tasks, setCookies(rawURL, opts.Cookies))
	}
	tasks = append(tasks,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if opts != nil && opts.WaitSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery))
	}
	if delay := rc.stabilizeDelay(opts); delay > 0 {
		tasks = append(tasks, chromedp.Sleep(delay))
	}

	var dom, finalURL string
	tasks = append(tasks,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &dom, chromedp.ByQuery),
	)
	var screenshot []byte
	if opts != nil && opts.Screenshot {
		tasks = append(tasks, chromedp.CaptureScreenshot(&screenshot))
	}

	if err := chromedp.Run(runCtx, tasks); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", rawURL, err)
	}

	statusMu.Lock()
	status := statusCode
	statusMu.Unlock()

	return &fetch.RenderedPage{
		HTML:       dom,
		FinalURL:   finalURL,
		StatusCode: status,
		Screenshot: screenshot,
	}, nil
}

// resolvePausedRequest fails or resumes one intercepted request. It runs on
// its own goroutine; CDP replies cannot be issued from inside the event
// handler without deadlocking the connection.
func (rc *renderContext) resolvePausedRequest(ev *cdpfetch.EventRequestPaused) {
	execCtx := cdp.WithExecutor(rc.tabCtx, chromedp.FromContext(rc.tabCtx).Target)

	var err error
	if blockedResourceTypes[ev.ResourceType] {
		err = cdpfetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	} else {
		err = cdpfetch.ContinueRequest(ev.RequestID).Do(execCtx)
	}
	if err != nil && rc.tabCtx.Err() == nil {
		rc.logger.Debug("Failed to resolve intercepted request.",
			zap.String("url", ev.Request.URL),
			zap.Error(err),
		)
	}
}

// close tears the target down and disposes the isolated browser context.
func (rc *renderContext) close() {
	rc.tabCancel()

	if rc.browserContextID == "" || rc.controller.Err() != nil {
		return
	}
	disposeCtx, cancel := context.WithTimeout(rc.controller, disposeTimeout)
	defer cancel()
	if err := target.DisposeBrowserContext(rc.browserContextID).Do(disposeCtx); err != nil {
		rc.logger.Debug("Failed to dispose isolated browser context.",
			zap.String("browser_context_id", string(rc.browserContextID)),
			zap.Error(err),
		)
	}
}

func (rc *renderContext) navigationTimeout() time.Duration {
	if rc.cfg.NavigationTimeout > 0 {
		return rc.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

// stabilizeDelay gives client-side rendering a beat to settle after load.
// A per-rule render delay wins over the configured default.
func (rc *renderContext) stabilizeDelay(opts *schemas.FetchOptions) time.Duration {
	if opts != nil && opts.RenderDelayMS > 0 {
		return time.Duration(opts.RenderDelayMS) * time.Millisecond
	}
	return rc.cfg.StabilizeWait
}

func headerValues(opts *schemas.FetchOptions) network.Headers {
	if opts == nil || len(opts.Headers) == 0 {
		return nil
	}
	hdrs := make(network.Headers, len(opts.Headers))
	for k, v := range opts.Headers {
		hdrs[k] = v
	}
	return hdrs
}

// setCookies installs rule cookies before navigation. Cookies without an
// explicit domain are scoped to the target URL.
func setCookies(rawURL string, cookies []schemas.FetchCookie) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		for _, ck := range cookies {
			p := network.SetCookie(ck.Name, ck.Value)
			if ck.Domain != "" {
				p = p.WithDomain(ck.Domain)
			} else {
				p = p.WithURL(rawURL)
			}
			if ck.Path != "" {
				p = p.WithPath(ck.Path)
			}
			if ck.Secure {
				p = p.WithSecure(true)
			}
			if ck.HTTPOnly {
				p = p.WithHTTPOnly(true)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("setting cookie %q: %w", ck.Name, err)
			}
		}
		return nil
	}
}

// combineContext derives a context from primary, which carries the CDP
// target values, that is additionally cancelled when secondary ends.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
