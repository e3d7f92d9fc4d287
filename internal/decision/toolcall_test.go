// File: internal/decision/toolcall_test.go
package decision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/glasswing-dev/webnav/internal/action"
)

// fakeToolModel replays scripted responses and records the contents it saw.
type fakeToolModel struct {
	responses []*genai.GenerateContentResponse
	errs      []error
	seen      [][]*genai.Content
}

func (f *fakeToolModel) generate(_ context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	call := len(f.seen)
	f.seen = append(f.seen, contents)
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	return f.responses[call], nil
}

func newToolCallForTest(model toolModel) *ToolCallEngine {
	return &ToolCallEngine{model: model, logger: zap.NewNop()}
}

func toolResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason: genai.FinishReasonStop,
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: name, Args: args}}},
		},
	}}}
}

func textResponse(text string, reason genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason: reason,
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: []*genai.Part{{Text: text}},
		},
	}}}
}

func TestToolCallDecide_DispatchesClick(t *testing.T) {
	model := &fakeToolModel{responses: []*genai.GenerateContentResponse{
		toolResponse("computer_use_click", map[string]any{"x": float64(320), "y": float64(480)}),
	}}
	engine := newToolCallForTest(model)

	act := engine.Decide(context.Background(), []byte("png"), "goal")

	assert.Equal(t, action.KindClick, act.Kind)
	assert.Equal(t, 320, act.X)
	assert.Equal(t, 480, act.Y)
}

func TestToolCallDecide_ScrollAmountScaledByHundred(t *testing.T) {
	model := &fakeToolModel{responses: []*genai.GenerateContentResponse{
		toolResponse("computer_use_scroll", map[string]any{
			"x": float64(640), "y": float64(400), "direction": "up", "amount": float64(3),
		}),
	}}
	engine := newToolCallForTest(model)

	act := engine.Decide(context.Background(), nil, "goal")

	assert.Equal(t, action.KindScroll, act.Kind)
	assert.Equal(t, "up", act.Direction)
	assert.Equal(t, 300, act.Amount)
	assert.Equal(t, 640, act.X)
}

func TestToolCallDecide_ScrollDefaults(t *testing.T) {
	model := &fakeToolModel{responses: []*genai.GenerateContentResponse{
		toolResponse("computer_use_scroll", map[string]any{}),
	}}
	engine := newToolCallForTest(model)

	act := engine.Decide(context.Background(), nil, "goal")

	assert.Equal(t, "down", act.Direction)
	assert.Equal(t, action.DefaultScrollAmount, act.Amount)
}

func TestToolCallDecide_UnknownToolDegradesToWait(t *testing.T) {
	model := &fakeToolModel{responses: []*genai.GenerateContentResponse{
		toolResponse("computer_use_levitate", map[string]any{}),
	}}
	engine := newToolCallForTest(model)

	act := engine.Decide(context.Background(), nil, "goal")

	// An unrecognized tool must not abort the run.
	assert.Equal(t, action.KindWait, act.Kind)
	assert.Contains(t, act.Reason, "computer_use_levitate")
}

func TestToolCallDecide_CompletionTextYieldsDone(t *testing.T) {
	model := &fakeToolModel{responses: []*genai.GenerateContentResponse{
		textResponse("The search task has been completed; the results page shows cats.", genai.FinishReasonStop),
	}}
	engine := newToolCallForTest(model)

	act := engine.Decide(context.Background(), nil, "goal")

	assert.Equal(t, action.KindDone, act.Kind)
	assert.Contains(t, act.Reason, "completed")
}

func TestToolCallDecide_BlockedTextYieldsFail(t *testing.T) {
	model := &fakeToolModel{responses: []*genai.GenerateContentResponse{
		textResponse("I cannot proceed: the page is guarded by a CAPTCHA challenge.", genai.FinishReasonStop),
	}}
	engine := newToolCallForTest(model)

	act := engine.Decide(context.Background(), nil, "goal")

	assert.Equal(t, action.KindFail, act.Kind)
	assert.Contains(t, act.Reason, "CAPTCHA")
}

func TestToolCallDecide_NoToolNoKeywordsYieldsWait(t *testing.T) {
	model := &fakeToolModel{responses: []*genai.GenerateContentResponse{
		textResponse("Let me take a closer look at the navigation bar.", genai.FinishReasonMaxTokens),
	}}
	engine := newToolCallForTest(model)

	act := engine.Decide(context.Background(), nil, "goal")

	// The model gets another turn instead of terminating the run.
	assert.Equal(t, action.KindWait, act.Kind)
}

func TestToolCallDecide_TransportErrorLeavesTranscriptUntouched(t *testing.T) {
	model := &fakeToolModel{errs: []error{errors.New("connection reset")}}
	engine := newToolCallForTest(model)

	act := engine.Decide(context.Background(), nil, "goal")

	assert.Equal(t, action.KindFail, act.Kind)
	assert.Contains(t, act.Reason, "connection reset")
	assert.Empty(t, engine.transcript)
}

func TestToolCallDecide_TranscriptGrowsPerStep(t *testing.T) {
	model := &fakeToolModel{responses: []*genai.GenerateContentResponse{
		toolResponse("computer_use_click", map[string]any{"x": float64(1), "y": float64(2)}),
		toolResponse("computer_use_type", map[string]any{"text": "cats"}),
	}}
	engine := newToolCallForTest(model)

	engine.Decide(context.Background(), []byte("frame1"), "find cats")
	engine.Decide(context.Background(), []byte("frame2"), "find cats")

	// Two user turns plus two model turns.
	require.Len(t, engine.transcript, 4)

	// The goal text appears only in the first user turn.
	first := engine.transcript[0]
	require.Len(t, first.Parts, 2)
	assert.Contains(t, first.Parts[1].Text, "find cats")
	assert.NotContains(t, engine.transcript[2].Parts[1].Text, "find cats")

	// The second call saw the full prior exchange plus the new turn.
	require.Len(t, model.seen, 2)
	assert.Len(t, model.seen[1], 3)
}

func TestToolCallTrimTranscript_KeepsFirstTurn(t *testing.T) {
	engine := newToolCallForTest(&fakeToolModel{})
	engine.maxTurns = 3

	first := genai.NewContentFromText("Goal: find cats", genai.RoleUser)
	engine.transcript = []*genai.Content{
		first,
		genai.NewContentFromText("turn 2", genai.RoleModel),
		genai.NewContentFromText("turn 3", genai.RoleUser),
		genai.NewContentFromText("turn 4", genai.RoleModel),
		genai.NewContentFromText("turn 5", genai.RoleUser),
	}

	engine.trimTranscript()

	require.Len(t, engine.transcript, 3)
	assert.Same(t, first, engine.transcript[0])
	assert.Equal(t, "turn 4", engine.transcript[1].Parts[0].Text)
	assert.Equal(t, "turn 5", engine.transcript[2].Parts[0].Text)
}
