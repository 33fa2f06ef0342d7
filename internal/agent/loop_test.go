package agent

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/internal/sandbox"
	"github.com/ValeryJL/InsanusChat-Backend/internal/tools"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDecider replays a fixed sequence of decisions or errors
type scriptedDecider struct {
	steps []func(observations []Observation) (Decision, error)
	calls int
	seen  [][]Observation
}

func (d *scriptedDecider) Decide(ctx context.Context, history []models.Message, observations []Observation, available []tools.Metadata) (Decision, error) {
	d.seen = append(d.seen, append([]Observation{}, observations...))
	step := d.steps[len(d.steps)-1]
	if d.calls < len(d.steps) {
		step = d.steps[d.calls]
	}
	d.calls++
	return step(observations)
}

func answer(text string) func([]Observation) (Decision, error) {
	return func([]Observation) (Decision, error) { return FinalText{Text: text}, nil }
}

func useTool(id string, input map[string]any) func([]Observation) (Decision, error) {
	return func([]Observation) (Decision, error) { return ToolUse{ToolID: id, Input: input}, nil }
}

func failDecide(msg string) func([]Observation) (Decision, error) {
	return func([]Observation) (Decision, error) { return nil, errors.New(msg) }
}

func newTestRunner(d Decider, reg tools.Registry, maxIterations int) *Runner {
	log := logger.New(logger.Config{Level: "error", Output: io.Discard})
	executor := sandbox.NewExecutor(sandbox.Config{Timeout: time.Second}, log)
	return NewRunner(d, reg, executor, maxIterations, log)
}

func TestLoopImmediateFinalAnswer(t *testing.T) {
	d := &scriptedDecider{steps: []func([]Observation) (Decision, error){answer("done")}}
	r := newTestRunner(d, tools.NewMemoryRegistry(), 8)

	res := r.Run(context.Background(), nil, "hello", nil)
	assert.Equal(t, "done", res.Text)
	assert.False(t, res.Aborted)
	assert.Equal(t, 1, res.Iterations)
}

func TestLoopAbortsAtIterationCap(t *testing.T) {
	reg := tools.NewMemoryRegistry(tools.Remote{ID: "t1", Name: "spin", Command: "irrelevant"})
	d := &scriptedDecider{steps: []func([]Observation) (Decision, error){useTool("t1", nil)}}
	r := newTestRunner(d, reg, 3)
	r.callRemote = func(ctx context.Context, tool tools.Remote, input map[string]any) (string, error) {
		return "again", nil
	}

	res := r.Run(context.Background(), nil, "go", []string{"t1"})
	assert.True(t, res.Aborted)
	assert.Equal(t, AbortText, res.Text)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, d.calls)
}

func TestLoopFeedsRemoteResultBack(t *testing.T) {
	reg := tools.NewMemoryRegistry(tools.Remote{ID: "t1", Name: "search", Command: "irrelevant"})
	d := &scriptedDecider{steps: []func([]Observation) (Decision, error){
		useTool("t1", map[string]any{"query": "weather"}),
		answer("sunny"),
	}}
	r := newTestRunner(d, reg, 8)

	var gotInput map[string]any
	r.callRemote = func(ctx context.Context, tool tools.Remote, input map[string]any) (string, error) {
		gotInput = input
		return "22C and clear", nil
	}

	res := r.Run(context.Background(), nil, "what's the weather", []string{"t1"})
	require.Equal(t, "sunny", res.Text)
	assert.Equal(t, map[string]any{"query": "weather"}, gotInput)

	// The second decide call saw the tool result appended after the user text.
	require.Len(t, d.seen, 2)
	second := d.seen[1]
	require.Len(t, second, 2)
	assert.Equal(t, ObservationUser, second[0].Kind)
	assert.Equal(t, ObservationToolResult, second[1].Kind)
	assert.Equal(t, "22C and clear", second[1].Content)
}

func TestLoopToolFailureBecomesObservation(t *testing.T) {
	reg := tools.NewMemoryRegistry(tools.Remote{ID: "t1", Name: "search", Command: "irrelevant"})
	d := &scriptedDecider{steps: []func([]Observation) (Decision, error){
		useTool("t1", nil),
		answer("giving up on the tool"),
	}}
	r := newTestRunner(d, reg, 8)
	r.callRemote = func(ctx context.Context, tool tools.Remote, input map[string]any) (string, error) {
		return "", errors.New("connection refused")
	}

	res := r.Run(context.Background(), nil, "search something", []string{"t1"})
	assert.Equal(t, "giving up on the tool", res.Text)
	assert.False(t, res.Aborted)

	second := d.seen[1]
	require.Len(t, second, 2)
	assert.Equal(t, ObservationToolError, second[1].Kind)
	assert.Contains(t, second[1].Content, "connection refused")
}

func TestLoopUnknownToolBecomesObservation(t *testing.T) {
	d := &scriptedDecider{steps: []func([]Observation) (Decision, error){
		useTool("no-such-tool", nil),
		answer("fine without it"),
	}}
	r := newTestRunner(d, tools.NewMemoryRegistry(), 8)

	res := r.Run(context.Background(), nil, "hi", nil)
	assert.Equal(t, "fine without it", res.Text)

	second := d.seen[1]
	assert.Equal(t, ObservationToolError, second[1].Kind)
	assert.Contains(t, second[1].Content, "not available")
}

func TestLoopDecideErrorIsRetriedUntilCap(t *testing.T) {
	d := &scriptedDecider{steps: []func([]Observation) (Decision, error){failDecide("model down")}}
	r := newTestRunner(d, tools.NewMemoryRegistry(), 2)

	res := r.Run(context.Background(), nil, "hi", nil)
	assert.True(t, res.Aborted)
	assert.Equal(t, AbortText, res.Text)

	// Each failed decide left an error observation behind.
	second := d.seen[1]
	require.Len(t, second, 2)
	assert.Equal(t, ObservationToolError, second[1].Kind)
	assert.Contains(t, second[1].Content, "model down")
}

func TestEchoDeciderAnswersLastUserText(t *testing.T) {
	d := EchoDecider{}
	decision, err := d.Decide(context.Background(), nil, []Observation{
		{Kind: ObservationUser, Content: "ping"},
	}, nil)
	require.NoError(t, err)

	final, ok := decision.(FinalText)
	require.True(t, ok)
	assert.Equal(t, "You said: ping", final.Text)
}
