// File: cmd/check.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fabianmarian8/pagewatch/api/schemas"
	"github.com/fabianmarian8/pagewatch/internal/config"
	"github.com/fabianmarian8/pagewatch/internal/fetch"
	"github.com/fabianmarian8/pagewatch/internal/fetch/browser"
	"github.com/fabianmarian8/pagewatch/internal/monitor"
	"github.com/fabianmarian8/pagewatch/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newCheckCmd creates and configures the `check` command: the one-shot
// diagnostic that runs observation cycles for a single rule file and prints
// each outcome as JSON.
func newCheckCmd() *cobra.Command {
	var (
		repeat    int
		interval  time.Duration
		noBrowser bool
	)

	checkCmd := &cobra.Command{
		Use:   "check <rule.json>",
		Short: "Run observation cycles for one rule and print the outcomes",
		Long: `Check loads a rule from a JSON file, runs it through the full observation
pipeline (fetch, extract, normalize, anti-flap), and prints each outcome as
indented JSON. State lives in memory only, so the first cycle always reports
the baseline; use --repeat to watch the anti-flap machine react to a page
that changes between cycles.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if repeat < 1 {
				return fmt.Errorf("--repeat must be at least 1, got %d", repeat)
			}

			ctx := cmd.Context()
			cfg := configFromCommand(cmd)
			logger := observability.GetLogger()

			rule, err := loadRule(args[0])
			if err != nil {
				return err
			}

			components, err := initializeCheckComponents(ctx, cfg, logger, noBrowser)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			observer, err := monitor.NewObserver(components.Fetcher, monitor.NewMemoryStore(), cfg.Monitor, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize observer: %w", err)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")

			for cycle := 1; cycle <= repeat; cycle++ {
				if cycle > 1 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(interval):
					}
				}

				outcome, err := observer.Observe(ctx, rule)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						logger.Warn("Check aborted", zap.String("rule_id", rule.ID))
						return err
					}
					return fmt.Errorf("observation cycle %d: %w", cycle, err)
				}
				if err := encoder.Encode(outcome); err != nil {
					return fmt.Errorf("encoding outcome: %w", err)
				}
			}
			return nil
		},
	}

	checkCmd.Flags().IntVarP(&repeat, "repeat", "n", 1, "Number of observation cycles to run.")
	checkCmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Pause between repeated cycles.")
	checkCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Never launch the headless browser; pages that need rendering degrade to an HTTP-only fetch.")

	return checkCmd
}

// loadRule reads and validates a rule definition from a JSON file.
func loadRule(path string) (*schemas.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}

	var rule schemas.Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("parsing rule file %s: %w", path, err)
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule in %s: %w", path, err)
	}
	return &rule, nil
}

// checkComponents holds the initialized acquisition services.
type checkComponents struct {
	Fetcher *fetch.Fetcher
	Browser *browser.Manager

	logger *zap.Logger
}

// Shutdown gracefully closes the browser if one was started.
func (cc *checkComponents) Shutdown() {
	if cc.Browser == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := cc.Browser.Shutdown(shutdownCtx); err != nil {
		cc.logger.Warn("Error during browser manager shutdown", zap.Error(err))
	}
}

// initializeCheckComponents handles dependency injection for the check
// command. A browser that fails to start is not fatal: the fetcher keeps
// working HTTP-only and rules that need rendering report the degradation in
// their results.
func initializeCheckComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, noBrowser bool) (*checkComponents, error) {
	httpClient, err := fetch.NewHTTPClient(cfg.HTTP, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize HTTP client: %w", err)
	}

	components := &checkComponents{logger: logger}

	var renderer fetch.Renderer
	if !noBrowser {
		manager := browser.NewManager(cfg.Browser, logger)
		if err := manager.Start(ctx); err != nil {
			logger.Warn("Headless browser unavailable; continuing HTTP-only.", zap.Error(err))
		} else {
			components.Browser = manager
			renderer = manager
		}
	}

	fetcher, err := fetch.NewFetcher(httpClient, renderer, logger)
	if err != nil {
		components.Shutdown()
		return nil, fmt.Errorf("failed to initialize fetcher: %w", err)
	}
	components.Fetcher = fetcher

	return components, nil
}
