// File: internal/browser/chromedp.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/glasswing-dev/webnav/internal/config"
)

// settleFallbackPause is the fixed pause used when the page never reaches a
// quiescent state within the settle timeout.
const settleFallbackPause = 500 * time.Millisecond

// settlePollInterval is how often WaitSettle re-checks document.readyState.
const settlePollInterval = 100 * time.Millisecond

// keyCodes maps the key names the vision model emits onto the raw key codes
// understood by the CDP input domain. Lookup is case-insensitive.
var keyCodes = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"space":      " ",
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"home":       kb.Home,
	"end":        kb.End,
}

// Chrome drives a single headless (or headful) Chrome instance through the
// DevTools protocol. One Chrome instance backs exactly one navigation run.
type Chrome struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	cfg         config.BrowserConfig
	logger      *zap.Logger

	mu   sync.Mutex
	posX float64
	posY float64

	closeOnce sync.Once
}

var _ Driver = (*Chrome)(nil)

// New launches a Chrome instance with the configured viewport and returns a
// connected driver. The caller must Close it when the run ends.
func New(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Chrome, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(strings.TrimLeft(arg, "-"), true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	c := &Chrome{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		cfg:         cfg,
		logger:      logger.Named("browser"),
		// Pointer starts at the viewport center.
		posX: float64(cfg.ViewportWidth) / 2,
		posY: float64(cfg.ViewportHeight) / 2,
	}

	// The first Run starts the browser process and connects the target.
	if err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight)),
	); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	c.logger.Info("Browser launched",
		zap.Bool("headless", cfg.Headless),
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight),
	)
	return c, nil
}

// Close shuts the tab and the browser process down. Safe to call repeatedly.
func (c *Chrome) Close() {
	c.closeOnce.Do(func() {
		c.tabCancel()
		c.allocCancel()
		c.logger.Debug("Browser closed")
	})
}

// run executes chromedp actions on the driver's tab, bailing out early if the
// caller's context is already cancelled.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(c.tabCtx, actions...)
}

func (c *Chrome) setPos(x, y float64) {
	c.mu.Lock()
	c.posX, c.posY = x, y
	c.mu.Unlock()
}

func (c *Chrome) pos() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.posX, c.posY
}

func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

func (c *Chrome) Click(ctx context.Context, x, y int) error {
	fx, fy := float64(x), float64(y)
	if err := c.run(ctx,
		chromedp.MouseEvent(input.MouseMoved, fx, fy),
		chromedp.MouseClickXY(fx, fy),
	); err != nil {
		return fmt.Errorf("click at (%d, %d) failed: %w", x, y, err)
	}
	c.setPos(fx, fy)
	return nil
}

func (c *Chrome) TypeText(ctx context.Context, text string, delay time.Duration) error {
	for _, r := range text {
		if err := c.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("typing failed at %q: %w", r, err)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chrome) PressKey(ctx context.Context, name string) error {
	code, ok := keyCodes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		if len([]rune(name)) != 1 {
			return fmt.Errorf("unsupported key %q", name)
		}
		// Single printable characters pass through as-is.
		code = name
	}
	if err := c.run(ctx, chromedp.KeyEvent(code)); err != nil {
		return fmt.Errorf("key press %q failed: %w", name, err)
	}
	return nil
}

func (c *Chrome) Scroll(ctx context.Context, dx, dy int) error {
	x, y := c.pos()
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, x, y).
			WithDeltaX(float64(dx)).
			WithDeltaY(float64(dy)).
			Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("scroll by (%d, %d) failed: %w", dx, dy, err)
	}
	return nil
}

func (c *Chrome) MoveMouse(ctx context.Context, x, y int) error {
	fx, fy := float64(x), float64(y)
	if err := c.run(ctx, chromedp.MouseEvent(input.MouseMoved, fx, fy)); err != nil {
		return fmt.Errorf("mouse move to (%d, %d) failed: %w", x, y, err)
	}
	c.setPos(fx, fy)
	return nil
}

func (c *Chrome) Drag(ctx context.Context, x1, y1, x2, y2 int) error {
	sx, sy := float64(x1), float64(y1)
	ex, ey := float64(x2), float64(y2)

	err := c.run(ctx,
		chromedp.MouseEvent(input.MouseMoved, sx, sy),
		chromedp.MouseEvent(input.MousePressed, sx, sy, chromedp.Button("left"), chromedp.ClickCount(1)),
		chromedp.MouseEvent(input.MouseMoved, ex, ey, chromedp.Button("left")),
		chromedp.MouseEvent(input.MouseReleased, ex, ey, chromedp.Button("left"), chromedp.ClickCount(1)),
	)
	if err != nil {
		return fmt.Errorf("drag from (%d, %d) to (%d, %d) failed: %w", x1, y1, x2, y2, err)
	}
	c.setPos(ex, ey)
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// chromedp.Navigate waits for the page load event, not network idle;
	// modern SPAs may never go fully idle.
	navCtx, cancel := context.WithTimeout(c.tabCtx, timeout)
	defer cancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (c *Chrome) WaitSettle(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var state string
		if err := c.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return fmt.Errorf("settle check failed: %w", err)
		}
		if state == "complete" {
			return nil
		}
		if err := c.sleep(ctx, settlePollInterval); err != nil {
			return err
		}
	}
	// The page never quiesced within the budget. Give it a short fixed pause
	// and move on rather than treating a busy SPA as a failure.
	c.logger.Debug("Settle wait timed out, using fixed pause", zap.Duration("timeout", timeout))
	return c.sleep(ctx, settleFallbackPause)
}

func (c *Chrome) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
