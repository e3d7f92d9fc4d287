// File: internal/navigator/loop.go
package navigator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/glasswing-dev/webnav/internal/action"
	"github.com/glasswing-dev/webnav/internal/config"
)

// StepResult is the immutable record of one loop iteration. It is owned by
// the receiver once emitted.
type StepResult struct {
	// Step is 1-based and strictly increasing within a run.
	Step       int
	Screenshot []byte
	Action     action.Action
	Success    bool
	Message    string
	ElapsedMS  int64
}

// Decider produces the next action from a screenshot and feeds executed steps
// back into its running context. Satisfied by decision.Engine.
type Decider interface {
	Decide(ctx context.Context, screenshot []byte, goal string) action.Action
	Observe(step int, act action.Action, message string)
}

// ActionExecutor performs one action. Satisfied by executor.Executor.
type ActionExecutor interface {
	Execute(ctx context.Context, act action.Action) (bool, string)
}

// Screenshotter captures the current frame. Satisfied by browser.Driver.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Loop orchestrates one run: screenshot, decide, execute, emit, repeat.
// A run executes on a single goroutine; ordering between screenshot,
// decision, and execution is strictly sequential.
type Loop struct {
	screens  Screenshotter
	decider  Decider
	executor ActionExecutor
	cfg      config.NavigatorConfig
	logger   *zap.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewLoop wires the step loop over its three collaborators.
func NewLoop(screens Screenshotter, decider Decider, exec ActionExecutor, cfg config.NavigatorConfig, logger *zap.Logger) *Loop {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 25
	}
	if cfg.FailureBackoff <= 0 {
		cfg.FailureBackoff = 2 * time.Second
	}
	return &Loop{
		screens:  screens,
		decider:  decider,
		executor: exec,
		cfg:      cfg,
		logger:   logger.Named("navigator"),
		sleep:    sleepCtx,
	}
}

// Run starts the loop on its own goroutine and returns the result stream.
// The channel is closed on every exit path: terminal action, stop signal,
// context cancellation, or the step ceiling.
//
// Reaching the ceiling without a terminal action ends the run silently;
// callers must treat that as an implicit non-success outcome distinct from a
// fail action.
func (l *Loop) Run(ctx context.Context, goal string, stop *StopSignal) <-chan StepResult {
	out := make(chan StepResult)

	go func() {
		defer close(out)

		for step := 1; step <= l.cfg.MaxSteps; step++ {
			// Cancellation is cooperative and checked only at iteration
			// boundaries.
			if stop.Stopped() || ctx.Err() != nil {
				l.logger.Info("Run stopped", zap.Int("at_step", step))
				return
			}

			start := time.Now()

			shot, err := l.screens.Screenshot(ctx)
			var act action.Action
			var success bool
			var message string
			if err != nil {
				// Without a frame the model cannot decide anything; end the
				// run with an explicit failure rather than looping blind.
				act = action.Fail(fmt.Sprintf("screenshot capture failed: %v", err))
				success = false
				message = act.Reason
			} else {
				act = l.decider.Decide(ctx, shot, goal)
				success, message = l.executor.Execute(ctx, act)
			}

			result := StepResult{
				Step:       step,
				Screenshot: shot,
				Action:     act,
				Success:    success,
				Message:    message,
				ElapsedMS:  time.Since(start).Milliseconds(),
			}

			l.logger.Info("Step completed",
				zap.Int("step", step),
				zap.String("action", string(act.Kind)),
				zap.Bool("success", success),
				zap.Int64("elapsed_ms", result.ElapsedMS),
			)

			select {
			case out <- result:
			case <-ctx.Done():
				return
			}

			l.decider.Observe(step, act, message)

			if act.Kind.Terminal() {
				return
			}

			// Throttle retries after a failed interaction without ending the
			// run. The wait action already slept.
			if !success && act.Kind != action.KindWait {
				l.sleep(ctx, l.cfg.FailureBackoff)
			}
		}

		l.logger.Warn("Step ceiling reached without a terminal action",
			zap.Int("max_steps", l.cfg.MaxSteps))
	}()

	return out
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
