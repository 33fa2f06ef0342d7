package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ValeryJL/InsanusChat-Backend/internal/mcp"
	"github.com/ValeryJL/InsanusChat-Backend/internal/metrics"
	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/internal/sandbox"
	"github.com/ValeryJL/InsanusChat-Backend/internal/tools"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"
)

// AbortText is the degraded answer returned when the iteration cap fires
const AbortText = "aborting after too many iterations"

// Result is a finished agent turn. The loop always terminates in a final
// text or the cap abort; it never surfaces an error to its caller.
type Result struct {
	Text       string
	Aborted    bool
	Iterations int
}

// Runner drives the decide/act/observe loop for one agent turn.
type Runner struct {
	decider       Decider
	registry      tools.Registry
	executor      *sandbox.Executor
	maxIterations int
	log           *logger.Logger

	// callRemote is swappable so tests avoid spawning server subprocesses
	callRemote func(ctx context.Context, tool tools.Remote, input map[string]any) (string, error)
}

// NewRunner creates a runner with the given iteration cap
func NewRunner(decider Decider, registry tools.Registry, executor *sandbox.Executor, maxIterations int, log *logger.Logger) *Runner {
	r := &Runner{
		decider:       decider,
		registry:      registry,
		executor:      executor,
		maxIterations: maxIterations,
		log:           log,
	}
	r.callRemote = r.callRemoteTool
	return r
}

// Run executes one agent turn: the pending user text against the chat's
// resolved tool set, with the bounded history as model context. Every
// failure inside the loop is folded into an observation and fed back, so
// Run always returns a usable Result.
func (r *Runner) Run(ctx context.Context, history []models.Message, userText string, toolIDs []string) Result {
	available, err := r.registry.ResolveAll(ctx, toolIDs)
	if err != nil {
		r.log.Warn("tool resolution failed, continuing without tools", "error", err.Error())
		available = nil
	}
	summaries := tools.Summaries(available)

	observations := []Observation{{Kind: ObservationUser, Content: userText}}

	for i := 0; i < r.maxIterations; i++ {
		decision, err := r.decider.Decide(ctx, history, observations, summaries)
		if err != nil {
			observations = append(observations, Observation{
				Kind:    ObservationToolError,
				Content: fmt.Sprintf("decide step failed: %v", err),
			})
			continue
		}

		switch d := decision.(type) {
		case FinalText:
			return Result{Text: d.Text, Iterations: i + 1}
		case ToolUse:
			observations = append(observations, r.invoke(ctx, available, d))
		default:
			observations = append(observations, Observation{
				Kind:    ObservationToolError,
				Content: fmt.Sprintf("unsupported decision %T", decision),
			})
		}
	}

	r.log.Warn("agent turn hit iteration cap", "iterations", r.maxIterations)
	return Result{Text: AbortText, Aborted: true, Iterations: r.maxIterations}
}

// invoke runs one tool decision and folds the outcome into an observation
func (r *Runner) invoke(ctx context.Context, available []tools.Descriptor, use ToolUse) Observation {
	var selected tools.Descriptor
	for _, d := range available {
		if d.Meta().ID == use.ToolID {
			selected = d
			break
		}
	}
	if selected == nil {
		return Observation{
			Kind:    ObservationToolError,
			ToolID:  use.ToolID,
			Content: fmt.Sprintf("tool %s is not available in this chat", use.ToolID),
		}
	}

	switch tool := selected.(type) {
	case tools.Snippet:
		res := r.executor.Execute(ctx, tool.Language, tool.Code, use.Input)
		if !res.Success {
			return Observation{
				Kind:    ObservationToolError,
				ToolID:  tool.ID,
				Content: res.Error,
				Data:    map[string]any{"stderr": res.Stderr},
			}
		}
		return Observation{
			Kind:    ObservationToolResult,
			ToolID:  tool.ID,
			Content: renderResult(res.Result),
		}
	case tools.Remote:
		text, err := r.callRemote(ctx, tool, use.Input)
		if err != nil {
			metrics.ToolCalls.WithLabelValues("remote", "error").Inc()
			return Observation{
				Kind:    ObservationToolError,
				ToolID:  tool.ID,
				Content: err.Error(),
			}
		}
		metrics.ToolCalls.WithLabelValues("remote", "ok").Inc()
		return Observation{
			Kind:    ObservationToolResult,
			ToolID:  tool.ID,
			Content: text,
		}
	default:
		return Observation{
			Kind:    ObservationToolError,
			ToolID:  use.ToolID,
			Content: fmt.Sprintf("unsupported tool descriptor %T", selected),
		}
	}
}

// callRemoteTool opens an MCP session for the tool's server, calls the tool
// and closes the session whatever the outcome.
func (r *Runner) callRemoteTool(ctx context.Context, tool tools.Remote, input map[string]any) (string, error) {
	client, err := mcp.NewClient(tool)
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer client.Close()

	if err := client.Initialize(ctx); err != nil {
		return "", fmt.Errorf("initialize session: %w", err)
	}

	result, err := client.CallTool(ctx, tool.Name, input)
	if err != nil {
		return "", err
	}
	if result.IsError {
		return "", fmt.Errorf("tool reported error: %s", result.Text())
	}
	return result.Text(), nil
}

func renderResult(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
