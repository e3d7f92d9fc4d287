// File: internal/browser/driver.go
package browser

import (
	"context"
	"time"
)

// Driver is the primitive operation contract the action executor consumes.
// Implementations own the browser process lifecycle; coordinates are absolute
// pixels against the configured viewport, origin top-left.
type Driver interface {
	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Click moves the pointer to (x, y) and performs a left click.
	Click(ctx context.Context, x, y int) error

	// TypeText simulates keystrokes for the literal text with a per-character
	// delay. The target field is assumed to be focused already.
	TypeText(ctx context.Context, text string, delay time.Duration) error

	// PressKey presses a named key such as "Enter" or "Tab".
	PressKey(ctx context.Context, name string) error

	// Scroll dispatches a wheel event at the current pointer position.
	// Positive dy scrolls down.
	Scroll(ctx context.Context, dx, dy int) error

	// MoveMouse repositions the pointer without clicking.
	MoveMouse(ctx context.Context, x, y int) error

	// Drag presses at (x1, y1), moves to (x2, y2), and releases.
	Drag(ctx context.Context, x1, y1, x2, y2 int) error

	// Navigate loads the URL, waiting for the page load event up to timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// WaitSettle waits for the document to reach a ready state, up to timeout.
	// Single-page apps may never quiesce, so expiry falls back to a fixed
	// short pause and is not an error.
	WaitSettle(ctx context.Context, timeout time.Duration) error

	// Close shuts down the browser and releases all resources.
	Close()
}
