// File: internal/decision/structured.go
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/glasswing-dev/webnav/internal/action"
	"github.com/glasswing-dev/webnav/internal/llmclient"
)

// parseAttempts is the total number of model calls allowed when replies fail
// to parse as JSON. Transport errors are never retried.
const parseAttempts = 3

// parseRetryBase scales the back-off sleep between parse retries.
const parseRetryBase = 500 * time.Millisecond

// structuredSystemPrompt instructs the model to reply with a single JSON
// object drawn from the action vocabulary.
const structuredSystemPrompt = `You are a web navigation agent. You observe browser screenshots and decide what action to take to accomplish the user's goal.

You MUST respond with a single JSON object - no markdown, no explanation outside the JSON.

Available actions:
- {"action": "click", "x": <int>, "y": <int>, "reason": "<why>"}
- {"action": "type", "text": "<text to type>", "reason": "<why>"}
- {"action": "scroll", "direction": "down"|"up", "amount": 300, "reason": "<why>"}
- {"action": "navigate", "url": "<full URL>", "reason": "<why>"}
- {"action": "key", "key": "<key name, e.g. Enter>", "reason": "<why>"}
- {"action": "move_mouse", "x": <int>, "y": <int>, "reason": "<why>"}
- {"action": "drag", "start_x": <int>, "start_y": <int>, "end_x": <int>, "end_y": <int>, "reason": "<why>"}
- {"action": "screenshot", "reason": "<why>"}
- {"action": "wait", "reason": "<why>"}
- {"action": "done", "reason": "<what was accomplished>"}
- {"action": "fail", "reason": "<why it cannot be done>"}

Rules:
1. Analyze the screenshot carefully - read text, identify buttons, forms, links
2. Choose the single most effective next action toward the goal
3. For clicks, use pixel coordinates (x=0,y=0 is top-left, x=1280,y=800 is bottom-right)
4. For typing, assume the correct field is already focused (after clicking it)
5. If the goal is achieved, respond with "done"
6. If blocked by CAPTCHA or login wall you cannot pass, respond with "fail"
7. NEVER access DOM or APIs - only use what you see in the screenshot`

// historyEntry is one line of the bounded history log fed back into prompts.
type historyEntry struct {
	Step    int
	Kind    action.Kind
	Message string
}

// wireAction is the JSON shape the model replies with. Pointer fields
// distinguish absent values so documented defaults can be applied.
type wireAction struct {
	Action    string `json:"action"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Text      string `json:"text"`
	URL       string `json:"url"`
	Direction string `json:"direction"`
	Amount    *int   `json:"amount"`
	Key       string `json:"key"`
	StartX    int    `json:"start_x"`
	StartY    int    `json:"start_y"`
	EndX      int    `json:"end_x"`
	EndY      int    `json:"end_y"`
	Reason    string `json:"reason"`
}

func (w wireAction) toAction() action.Action {
	kind := action.Kind(w.Action)
	if !kind.Valid() {
		reason := w.Reason
		if reason == "" {
			reason = fmt.Sprintf("model returned unrecognized action %q", w.Action)
		}
		return action.Fail(truncate(reason, reasonMaxLen))
	}

	amount := action.DefaultScrollAmount
	if w.Amount != nil {
		amount = *w.Amount
	}

	act := action.Action{
		Kind:      kind,
		X:         w.X,
		Y:         w.Y,
		Text:      w.Text,
		URL:       w.URL,
		Direction: w.Direction,
		Amount:    amount,
		Key:       w.Key,
		StartX:    w.StartX,
		StartY:    w.StartY,
		EndX:      w.EndX,
		EndY:      w.EndY,
		Reason:    w.Reason,
	}
	if kind.Terminal() {
		act.Reason = truncate(act.Reason, reasonMaxLen)
	}
	return act
}

// StructuredEngine implements the structured-text decision protocol: one
// single-turn vision call per step, a bounded history log as running context,
// and a bounded parse-retry policy.
type StructuredEngine struct {
	client      llmclient.Client
	logger      *zap.Logger
	historySize int
	history     []historyEntry

	// sleep is swapped out in tests to avoid real back-off delays.
	sleep func(d time.Duration)
}

var _ Engine = (*StructuredEngine)(nil)

// NewStructuredEngine builds the structured-text engine. historySize bounds
// how many recent steps are replayed into each prompt.
func NewStructuredEngine(client llmclient.Client, historySize int, logger *zap.Logger) *StructuredEngine {
	if historySize <= 0 {
		historySize = 5
	}
	return &StructuredEngine{
		client:      client,
		logger:      logger.Named("decision.structured"),
		historySize: historySize,
		sleep:       time.Sleep,
	}
}

// Decide sends the screenshot plus a goal/history prompt and parses the reply
// into one action. Malformed replies are retried with fresh model calls;
// transport errors surface immediately as a fail action.
func (e *StructuredEngine) Decide(ctx context.Context, screenshot []byte, goal string) action.Action {
	req := llmclient.VisionRequest{
		SystemPrompt: structuredSystemPrompt,
		UserPrompt:   e.buildPrompt(goal),
		ImagePNG:     screenshot,
	}

	var lastErr error
	var raw string
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		text, err := e.client.GenerateVision(ctx, req)
		if err != nil {
			// Network, auth, and quota failures are not transient for this
			// protocol; bail out without retrying.
			e.logger.Warn("Vision call failed", zap.Error(err))
			return action.Fail(truncate(fmt.Sprintf("vision model error: %v", err), reasonMaxLen))
		}

		raw = stripCodeFence(text)
		var wire wireAction
		if err := json.Unmarshal([]byte(raw), &wire); err != nil {
			lastErr = err
			e.logger.Warn("Model reply failed to parse as JSON",
				zap.Int("attempt", attempt),
				zap.String("raw_prefix", truncate(raw, 80)),
			)
			if attempt < parseAttempts {
				e.sleep(time.Duration(attempt) * parseRetryBase)
			}
			continue
		}
		return wire.toAction()
	}

	return action.Fail(fmt.Sprintf("JSON parse failed after %d attempts: %v. Raw: %s",
		parseAttempts, lastErr, truncate(raw, reasonMaxLen)))
}

// Observe appends the executed step to the history log.
func (e *StructuredEngine) Observe(step int, act action.Action, message string) {
	e.history = append(e.history, historyEntry{Step: step, Kind: act.Kind, Message: message})
}

func (e *StructuredEngine) buildPrompt(goal string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s", goal)

	if len(e.history) > 0 {
		recent := e.history
		if len(recent) > e.historySize {
			recent = recent[len(recent)-e.historySize:]
		}
		b.WriteString("\n\nRecent actions taken:\n")
		for i, h := range recent {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "Step %d: %s - %s", h.Step, h.Kind, h.Message)
		}
	}

	b.WriteString("\n\nWhat is the next action to take? Respond with JSON only.")
	return b.String()
}
