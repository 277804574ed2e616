package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fabianmarian8/pagewatch/api/schemas"
	"github.com/fabianmarian8/pagewatch/internal/config"
	"github.com/fabianmarian8/pagewatch/internal/fetch"
)

// Manager implements fetch.Renderer on top of a single shared headless
// Chrome process. Every Render call runs inside its own isolated browser
// context (separate cookie jar, cache, and storage) so concurrent page
// checks cannot leak state into each other.
var _ fetch.Renderer = (*Manager)(nil)

const (
	startupTimeout = 30 * time.Second
	disposeTimeout = 5 * time.Second
)

var (
	// ErrNotStarted is returned by Render before Start has succeeded.
	ErrNotStarted = errors.New("browser manager not started")
	// ErrClosed is returned by Render after Shutdown has begun.
	ErrClosed = errors.New("browser manager closed")
)

type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	// allocatorCtx manages the browser process. browserCtx is the root
	// chromedp context; all render targets are derived from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	// sem bounds how many render contexts may be live at once.
	sem         *semaphore.Weighted
	concurrency int64
	// createMu serializes isolated context creation; Chrome misbehaves
	// when Target.createBrowserContext calls race on one connection.
	createMu sync.Mutex
	// wg tracks in-flight renders for a graceful shutdown.
	wg sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewManager builds a manager from the browser section of the config.
// Start must be called before the first Render.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	concurrency := int64(cfg.Concurrency)
	if concurrency < 1 {
		concurrency = 1
	}
	return &Manager{
		cfg:         cfg,
		logger:      logger.Named("browser"),
		sem:         semaphore.NewWeighted(concurrency),
		concurrency: concurrency,
	}
}

// Start launches the browser process and verifies it responds. The given
// context bounds startup only; the process itself lives until Shutdown.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return errors.New("browser manager already started")
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before browser launch: %w", err)
	}

	m.logger.Info("Launching headless browser.",
		zap.Bool("headless", m.cfg.Headless),
		zap.Int64("concurrency", m.concurrency),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), buildAllocatorOptions(m.cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run a trivial navigation to confirm the process came up and the CDP
	// connection works before accepting render traffic.
	probeCtx, cancelProbe := context.WithTimeout(browserCtx, startupTimeout)
	defer cancelProbe()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.mu.Lock()
	m.allocatorCtx = allocCtx
	m.allocatorCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel
	m.started = true
	m.mu.Unlock()

	m.logger.Info("Browser launched and responsive.")
	return nil
}

// Render navigates an isolated browser context to url and returns the
// serialized DOM after the page settles.
func (m *Manager) Render(ctx context.Context, url string, opts *schemas.FetchOptions) (*fetch.RenderedPage, error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return nil, ErrClosed
	case !m.started:
		m.mu.Unlock()
		return nil, ErrNotStarted
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a render slot: %w", err)
	}
	defer m.sem.Release(1)

	rc, err := m.newRenderContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.close()

	return rc.render(ctx, url, opts)
}

// newRenderContext creates a fresh isolated browser context plus a blank
// target inside it, and wires a chromedp context onto that target.
func (m *Manager) newRenderContext(ctx context.Context) (*renderContext, error) {
	controller := m.controllerCtx()

	m.createMu.Lock()
	defer m.createMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before creating browser context: %w", err)
	}

	browserContextID, err := target.CreateBrowserContext().Do(controller)
	if err != nil {
		return nil, fmt.Errorf("creating isolated browser context: %w", err)
	}

	targetID, err := target.CreateTarget("about:blank").
		WithBrowserContextID(browserContextID).
		Do(controller)
	if err != nil {
		m.disposeBrowserContext(controller, browserContextID)
		return nil, fmt.Errorf("creating render target: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(targetID))
	return &renderContext{
		cfg:              m.cfg,
		logger:           m.logger,
		tabCtx:           tabCtx,
		tabCancel:        tabCancel,
		controller:       controller,
		browserContextID: browserContextID,
	}, nil
}

// controllerCtx returns a context that executes CDP commands against the
// browser connection itself rather than an attached target. Only valid
// after Start has populated the browser context.
func (m *Manager) controllerCtx() context.Context {
	return cdp.WithExecutor(m.browserCtx, chromedp.FromContext(m.browserCtx).Browser)
}

func (m *Manager) disposeBrowserContext(controller context.Context, id cdp.BrowserContextID) {
	if controller.Err() != nil {
		return
	}
	disposeCtx, cancel := context.WithTimeout(controller, disposeTimeout)
	defer cancel()
	if err := target.DisposeBrowserContext(id).Do(disposeCtx); err != nil {
		m.logger.Debug("Failed to dispose isolated browser context.",
			zap.String("browser_context_id", string(id)),
			zap.Error(err),
		)
	}
}

// Shutdown waits for in-flight renders to finish, then terminates the
// browser process. New Render calls fail with ErrClosed immediately.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	m.mu.Unlock()

	if !started {
		return nil
	}

	m.logger.Info("Browser manager shutdown initiated. Waiting for active renders.")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("All renders completed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	m.browserCancel()
	m.allocatorCancel()
	<-m.allocatorCtx.Done()
	m.logger.Info("Browser process terminated.")
	return nil
}

// buildAllocatorOptions translates the browser config into chromedp
// allocator options. Later flags override the chromedp defaults.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		// Sites that sniff for automation serve different markup.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("mute-audio", true),
	)

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}

	// Extra flags from the config, "--name=value" or bare "--name".
	for _, arg := range cfg.Args {
		parts := strings.SplitN(strings.TrimPrefix(arg, "--"), "=", 2)
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(parts[0], parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(parts[0], true))
		}
	}

	// Required for running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}
