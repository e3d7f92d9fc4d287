// File: internal/decision/toolcall.go
package decision

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/glasswing-dev/webnav/internal/action"
	"github.com/glasswing-dev/webnav/internal/config"
)

// Tool names registered with the model. The computer_use_ prefix namespaces
// the browser-action surface.
const (
	toolClick      = "computer_use_click"
	toolType       = "computer_use_type"
	toolScroll     = "computer_use_scroll"
	toolKey        = "computer_use_key"
	toolMoveMouse  = "computer_use_move_mouse"
	toolDrag       = "computer_use_drag"
	toolNavigate   = "computer_use_navigate"
	toolScreenshot = "computer_use_screenshot"
)

// scrollUnitPixels converts the model's coarse scroll unit into pixels.
const scrollUnitPixels = 100

// toolModel is the narrow slice of the genai client the engine needs,
// extracted so tests can substitute canned responses.
type toolModel interface {
	generate(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error)
}

// genaiModel is the production toolModel backed by the genai SDK.
type genaiModel struct {
	client *genai.Client
	model  string
	cfg    *genai.GenerateContentConfig
}

func (g *genaiModel) generate(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	return g.client.Models.GenerateContent(ctx, g.model, contents, g.cfg)
}

// ToolCallEngine implements the native tool-call decision protocol. It keeps
// the full conversation transcript so the model sees every prior screenshot
// and its own earlier turns.
type ToolCallEngine struct {
	model    toolModel
	logger   *zap.Logger
	maxTurns int

	transcript []*genai.Content
	started    bool
}

var _ Engine = (*ToolCallEngine)(nil)

// NewToolCallEngine builds the tool-call engine and its genai client.
func NewToolCallEngine(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*ToolCallEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(cfg.Temperature)),
		MaxOutputTokens: int32(cfg.MaxOutputTokens),
		Tools:           []*genai.Tool{{FunctionDeclarations: toolDeclarations()}},
		SystemInstruction: genai.NewContentFromText(
			"You are a web navigation agent. Observe each browser screenshot and call exactly one "+
				"computer_use tool to make progress toward the user's goal. Coordinates are absolute "+
				"pixels, origin top-left. When the goal is achieved, reply in plain text describing "+
				"what was accomplished instead of calling a tool.",
			genai.RoleUser,
		),
	}

	return &ToolCallEngine{
		model:    &genaiModel{client: client, model: cfg.Model, cfg: genCfg},
		logger:   logger.Named("decision.toolcall"),
		maxTurns: cfg.MaxTranscriptTurns,
	}, nil
}

// Decide appends a user turn (screenshot + instruction) to the transcript,
// issues one model call, and maps the reply onto an action. Transport errors
// surface immediately as fail without mutating the transcript.
func (e *ToolCallEngine) Decide(ctx context.Context, screenshot []byte, goal string) action.Action {
	instruction := "Here is the current screenshot. Continue toward the goal with one tool call."
	if !e.started {
		instruction = fmt.Sprintf("Goal: %s\n\nHere is the starting screenshot. Take the first step with one tool call.", goal)
	}

	userTurn := genai.NewContentFromParts([]*genai.Part{
		{InlineData: &genai.Blob{MIMEType: "image/png", Data: screenshot}},
		{Text: instruction},
	}, genai.RoleUser)

	resp, err := e.model.generate(ctx, append(e.transcript, userTurn))
	if err != nil {
		e.logger.Warn("Tool-call generation failed", zap.Error(err))
		return action.Fail(truncate(fmt.Sprintf("vision model error: %v", err), reasonMaxLen))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return action.Fail("vision model returned no candidates")
	}
	candidate := resp.Candidates[0]

	e.started = true
	e.transcript = append(e.transcript, userTurn, candidate.Content)
	e.trimTranscript()

	return e.mapResponse(candidate)
}

// Observe is a no-op: the transcript already carries the full exchange.
func (e *ToolCallEngine) Observe(int, action.Action, string) {}

// trimTranscript bounds conversation growth when a cap is configured. The
// first turn is always retained because it carries the goal.
func (e *ToolCallEngine) trimTranscript() {
	if e.maxTurns <= 0 || len(e.transcript) <= e.maxTurns {
		return
	}
	trimmed := make([]*genai.Content, 0, e.maxTurns)
	trimmed = append(trimmed, e.transcript[0])
	trimmed = append(trimmed, e.transcript[len(e.transcript)-(e.maxTurns-1):]...)
	e.transcript = trimmed
}

func (e *ToolCallEngine) mapResponse(candidate *genai.Candidate) action.Action {
	text := candidateText(candidate)

	// Terminal signal: the model stopped of its own accord and used
	// completion language. This keyword check can false-positive on
	// descriptive text; callers wanting stricter semantics should require a
	// terminal tool instead.
	if candidate.FinishReason == genai.FinishReasonStop && containsAny(text, completionKeywords) {
		return action.Done(truncate(text, reasonMaxLen))
	}

	for _, part := range candidate.Content.Parts {
		if part.FunctionCall == nil {
			continue
		}
		return e.dispatchTool(part.FunctionCall)
	}

	// No tool requested. Blocked language fails the run; anything else gives
	// the model another turn.
	if containsAny(text, failureKeywords) {
		return action.Fail(truncate(text, reasonMaxLen))
	}
	return action.Wait(truncate("model returned no tool call: "+text, reasonMaxLen))
}

func (e *ToolCallEngine) dispatchTool(call *genai.FunctionCall) action.Action {
	args := call.Args
	switch call.Name {
	case toolClick:
		return action.Action{Kind: action.KindClick, X: argInt(args, "x", 0), Y: argInt(args, "y", 0)}
	case toolType:
		return action.Action{Kind: action.KindType, Text: argString(args, "text")}
	case toolScroll:
		amount := argInt(args, "amount", 0) * scrollUnitPixels
		if amount == 0 {
			amount = action.DefaultScrollAmount
		}
		direction := argString(args, "direction")
		if direction == "" {
			direction = "down"
		}
		return action.Action{
			Kind:      action.KindScroll,
			X:         argInt(args, "x", 0),
			Y:         argInt(args, "y", 0),
			Direction: direction,
			Amount:    amount,
		}
	case toolKey:
		return action.Action{Kind: action.KindKey, Key: argString(args, "key")}
	case toolMoveMouse:
		return action.Action{Kind: action.KindMoveMouse, X: argInt(args, "x", 0), Y: argInt(args, "y", 0)}
	case toolDrag:
		return action.Action{
			Kind:   action.KindDrag,
			StartX: argInt(args, "start_x", 0),
			StartY: argInt(args, "start_y", 0),
			EndX:   argInt(args, "end_x", 0),
			EndY:   argInt(args, "end_y", 0),
		}
	case toolNavigate:
		return action.Action{Kind: action.KindNavigate, URL: argString(args, "url")}
	case toolScreenshot:
		return action.Action{Kind: action.KindScreenshot}
	default:
		// An unrecognized tool name must not abort the run.
		e.logger.Warn("Model requested unknown tool", zap.String("tool", call.Name))
		return action.Wait(fmt.Sprintf("model requested unsupported tool %q", call.Name))
	}
}

func candidateText(candidate *genai.Candidate) string {
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func argInt(args map[string]any, key string, fallback int) int {
	v, ok := args[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func toolDeclarations() []*genai.FunctionDeclaration {
	intProp := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeInteger, Description: desc}
	}
	strProp := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	object := func(props map[string]*genai.Schema, required ...string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
	}

	return []*genai.FunctionDeclaration{
		{
			Name:        toolClick,
			Description: "Click the left mouse button at the given viewport coordinates.",
			Parameters: object(map[string]*genai.Schema{
				"x": intProp("Horizontal pixel coordinate."),
				"y": intProp("Vertical pixel coordinate."),
			}, "x", "y"),
		},
		{
			Name:        toolType,
			Description: "Type text into the currently focused field.",
			Parameters: object(map[string]*genai.Schema{
				"text": strProp("The literal text to type."),
			}, "text"),
		},
		{
			Name:        toolScroll,
			Description: "Scroll the page at the given position. Amount is in coarse units of roughly 100 pixels.",
			Parameters: object(map[string]*genai.Schema{
				"x":         intProp("Horizontal pixel coordinate to scroll at."),
				"y":         intProp("Vertical pixel coordinate to scroll at."),
				"direction": {Type: genai.TypeString, Description: "Scroll direction.", Enum: []string{"up", "down"}},
				"amount":    intProp("Scroll amount in coarse units."),
			}, "direction"),
		},
		{
			Name:        toolKey,
			Description: "Press a named key, for example Enter after typing a search query.",
			Parameters: object(map[string]*genai.Schema{
				"key": strProp("Key name such as Enter, Tab, Escape, ArrowDown."),
			}, "key"),
		},
		{
			Name:        toolMoveMouse,
			Description: "Move the mouse pointer without clicking.",
			Parameters: object(map[string]*genai.Schema{
				"x": intProp("Horizontal pixel coordinate."),
				"y": intProp("Vertical pixel coordinate."),
			}, "x", "y"),
		},
		{
			Name:        toolDrag,
			Description: "Drag the mouse from a start position to an end position with the left button held.",
			Parameters: object(map[string]*genai.Schema{
				"start_x": intProp("Drag start horizontal coordinate."),
				"start_y": intProp("Drag start vertical coordinate."),
				"end_x":   intProp("Drag end horizontal coordinate."),
				"end_y":   intProp("Drag end vertical coordinate."),
			}, "start_x", "start_y", "end_x", "end_y"),
		},
		{
			Name:        toolNavigate,
			Description: "Navigate the browser to a full URL.",
			Parameters: object(map[string]*genai.Schema{
				"url": strProp("The absolute URL to load."),
			}, "url"),
		},
		{
			Name:        toolScreenshot,
			Description: "Request a fresh screenshot without changing page state.",
			Parameters:  object(map[string]*genai.Schema{}),
		},
	}
}
