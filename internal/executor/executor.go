// File: internal/executor/executor.go
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/glasswing-dev/webnav/internal/action"
	"github.com/glasswing-dev/webnav/internal/browser"
	"github.com/glasswing-dev/webnav/internal/config"
)

// waitDuration is how long the wait action pauses the run.
const waitDuration = 2 * time.Second

// scrollSettlePause is the fixed pause after a scroll.
const scrollSettlePause = 500 * time.Millisecond

// Executor maps one decided action onto browser-driver primitives and
// classifies the outcome. Driver failures are reported, never propagated:
// execution errors are a per-step outcome, not a run-level fault.
type Executor struct {
	driver browser.Driver
	cfg    config.BrowserConfig
	logger *zap.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an executor over the given driver.
func New(driver browser.Driver, cfg config.BrowserConfig, logger *zap.Logger) *Executor {
	return &Executor{
		driver: driver,
		cfg:    cfg,
		logger: logger.Named("executor"),
		sleep:  sleepCtx,
	}
}

// Execute performs the action and returns (success, human-readable message).
func (e *Executor) Execute(ctx context.Context, act action.Action) (success bool, message string) {
	defer func() {
		if r := recover(); r != nil {
			success = false
			message = fmt.Sprintf("action panicked: %v", r)
			e.logger.Error("Recovered panic during action execution",
				zap.String("kind", string(act.Kind)), zap.Any("panic", r))
		}
	}()

	switch act.Kind {
	case action.KindClick:
		if err := e.driver.Click(ctx, act.X, act.Y); err != nil {
			return false, fmt.Sprintf("Action failed: %v", err)
		}
		if err := e.driver.WaitSettle(ctx, e.cfg.SettleTimeout); err != nil {
			return false, fmt.Sprintf("Action failed: %v", err)
		}
		return true, fmt.Sprintf("Clicked at (%d, %d)", act.X, act.Y)

	case action.KindType:
		if err := e.driver.TypeText(ctx, act.Text, e.cfg.TypingDelay); err != nil {
			return false, fmt.Sprintf("Action failed: %v", err)
		}
		return true, fmt.Sprintf("Typed: %s", truncateText(act.Text, 50))

	case action.KindKey:
		if err := e.driver.PressKey(ctx, act.Key); err != nil {
			return false, fmt.Sprintf("Action failed: %v", err)
		}
		if err := e.driver.WaitSettle(ctx, e.cfg.SettleTimeout); err != nil {
			return false, fmt.Sprintf("Action failed: %v", err)
		}
		return true, fmt.Sprintf("Pressed key %s", act.Key)

	case action.KindScroll:
		// The tool-call protocol positions the scroll focus explicitly.
		if act.X != 0 || act.Y != 0 {
			if err := e.driver.MoveMouse(ctx, act.X, act.Y); err != nil {
				return false, fmt.Sprintf("Action failed: %v", err)
			}
		}
		amount := act.Amount
		if amount <= 0 {
			amount = action.DefaultScrollAmount
		}
		direction := act.Direction
		if direction == "" {
			direction = "down"
		}
		delta := amount
		if direction != "down" {
			delta = -amount
		}
		if err := e.driver.Scroll(ctx, 0, delta); err != nil {
			return false, fmt.Sprintf("Action failed: %v", err)
		}
		if err := e.sleep(ctx, scrollSettlePause); err != nil {
			return false, fmt.Sprintf("Action failed: %v", err)
		}
		return true, fmt.Sprintf("Scrolled %s %dpx", direction, amount)

	case action.KindNavigate:
		if err := e.driver.Navigate(ctx, act.URL, e.cfg.NavigationTimeout); err != nil {
			return false, fmt.Sprintf("Action failed: %v", err)
		}
		return true, fmt.Sprintf("Navigated to %s", act.URL)

	case action.KindMoveMouse:
		if err := e.driver.MoveMouse(ctx, act.X, act.Y); err != nil {
			return false, fmt.Sprintf("Action failed: %v", err)
		}
		return true, fmt.Sprintf("Moved mouse to (%d, %d)", act.X, act.Y)

	case action.KindDrag:
		if err := e.driver.Drag(ctx, act.StartX, act.StartY, act.EndX, act.EndY); err != nil {
			return false, fmt.Sprintf("Action failed: %v", err)
		}
		return true, fmt.Sprintf("Dragged from (%d, %d) to (%d, %d)", act.StartX, act.StartY, act.EndX, act.EndY)

	case action.KindScreenshot:
		// No browser side effect; the model asked for a fresh frame, which
		// the next loop iteration captures anyway.
		return true, "Screenshot requested"

	case action.KindWait:
		if err := e.sleep(ctx, waitDuration); err != nil {
			return false, fmt.Sprintf("Action failed: %v", err)
		}
		return true, "Waited 2 seconds"

	case action.KindDone:
		return true, fmt.Sprintf("Goal accomplished: %s", act.Reason)

	case action.KindFail:
		return false, fmt.Sprintf("Cannot complete: %s", act.Reason)

	default:
		// Unreachable when the decision engine validates its output against
		// the action model.
		return false, fmt.Sprintf("unknown action kind %q", act.Kind)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
