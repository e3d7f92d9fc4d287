// File: internal/decision/engine.go
package decision

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/glasswing-dev/webnav/internal/action"
	"github.com/glasswing-dev/webnav/internal/config"
	"github.com/glasswing-dev/webnav/internal/llmclient"
)

// Engine turns one observed screenshot into exactly one next action. It never
// returns an error: every failure mode degrades to a fail action so the step
// loop stays in charge of run termination.
type Engine interface {
	Decide(ctx context.Context, screenshot []byte, goal string) action.Action

	// Observe feeds the executed step back into the engine's running context.
	// Protocols that maintain their own transcript may ignore it.
	Observe(step int, act action.Action, message string)
}

// New is a factory that builds the decision engine selected by configuration.
func New(ctx context.Context, cfg config.LLMConfig, navCfg config.NavigatorConfig, logger *zap.Logger) (Engine, error) {
	switch cfg.Protocol {
	case config.ProtocolStructured:
		client, err := llmclient.NewGeminiClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewStructuredEngine(client, navCfg.HistorySize, logger), nil
	case config.ProtocolToolCall:
		return NewToolCallEngine(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown decision protocol %q (supported: %s, %s)",
			cfg.Protocol, config.ProtocolStructured, config.ProtocolToolCall)
	}
}

// reasonMaxLen bounds diagnostic text embedded in reason strings so transport
// payloads stay small.
const reasonMaxLen = 200

// Regex definitions use \x60 (hex representation) for backticks because Go
// raw strings cannot contain backticks.
var (
	fenceOpenRegex  = regexp.MustCompile(`^\x60\x60\x60(?:json)?\n?`)
	fenceCloseRegex = regexp.MustCompile(`\n?\x60\x60\x60$`)
)

// stripCodeFence removes surrounding markdown code-fence markup, a common
// formatting artifact in model replies that are supposed to be bare JSON.
func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = fenceOpenRegex.ReplaceAllString(raw, "")
	raw = fenceCloseRegex.ReplaceAllString(raw, "")
	return strings.TrimSpace(raw)
}

// truncate shortens diagnostic text to a bounded prefix.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	return s[:maxLen] + "..."
}

// completionKeywords signal in free text that the model considers the goal
// achieved. Heuristic: descriptive text can false-positive, but the behavior
// is kept as observed in production traffic.
var completionKeywords = []string{"completed", "done", "accomplished", "finished", "found"}

// failureKeywords signal in free text that the model considers itself blocked.
var failureKeywords = []string{"cannot", "unable", "blocked", "captcha", "login required"}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
