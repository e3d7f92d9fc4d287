// File: internal/navigator/runner.go
package navigator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/glasswing-dev/webnav/internal/browser"
	"github.com/glasswing-dev/webnav/internal/config"
	"github.com/glasswing-dev/webnav/internal/decision"
	"github.com/glasswing-dev/webnav/internal/executor"
)

// RunOptions are the per-run parameters accepted from callers.
type RunOptions struct {
	Goal     string
	StartURL string
	Headless bool
}

// Runner starts one complete navigation run and returns its result stream.
// The returned channel is closed when the run ends for any reason; all
// resources the run acquired are released by then.
type Runner func(ctx context.Context, opts RunOptions, stop *StopSignal) (<-chan StepResult, error)

// NewRunner builds the production runner: each invocation launches a fresh
// browser, navigates to the start URL, constructs the configured decision
// engine, and drives the step loop to completion.
func NewRunner(cfg *config.Config, logger *zap.Logger) Runner {
	return func(ctx context.Context, opts RunOptions, stop *StopSignal) (<-chan StepResult, error) {
		bcfg := cfg.Browser
		bcfg.Headless = opts.Headless

		drv, err := browser.New(ctx, bcfg, logger)
		if err != nil {
			return nil, fmt.Errorf("browser launch failed: %w", err)
		}

		startURL := opts.StartURL
		if startURL == "" {
			startURL = cfg.Navigator.StartURL
		}
		if err := drv.Navigate(ctx, startURL, bcfg.NavigationTimeout); err != nil {
			drv.Close()
			return nil, fmt.Errorf("initial navigation failed: %w", err)
		}

		engine, err := decision.New(ctx, cfg.LLM, cfg.Navigator, logger)
		if err != nil {
			drv.Close()
			return nil, err
		}

		loop := NewLoop(drv, engine, executor.New(drv, bcfg, logger), cfg.Navigator, logger)
		steps := loop.Run(ctx, opts.Goal, stop)

		// Relay results so the browser can be torn down once the loop ends,
		// regardless of how it ended.
		out := make(chan StepResult)
		go func() {
			defer close(out)
			defer drv.Close()
			for result := range steps {
				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}
}
