package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/internal/tools"
)

// Decider produces the next step of an agent turn: given the conversation
// so far, the loop's observations and the available tools, it either
// answers or picks one tool to run.
type Decider interface {
	Decide(ctx context.Context, history []models.Message, observations []Observation, available []tools.Metadata) (Decision, error)
}

// HTTPDecider delegates the decide step to an external model service. The
// service receives the history, observations and tool metadata and answers
// with either {"type":"final","text":...} or
// {"type":"tool_use","tool_id":...,"input":{...}}.
type HTTPDecider struct {
	url    string
	client *http.Client
}

// NewHTTPDecider creates a decider posting to url with the given timeout
func NewHTTPDecider(url string, timeout time.Duration) *HTTPDecider {
	return &HTTPDecider{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type decideRequest struct {
	History      []models.Message `json:"history"`
	Observations []Observation    `json:"observations"`
	Tools        []tools.Metadata `json:"tools"`
}

type decideResponse struct {
	Type   string         `json:"type"`
	Text   string         `json:"text,omitempty"`
	ToolID string         `json:"tool_id,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
}

func (d *HTTPDecider) Decide(ctx context.Context, history []models.Message, observations []Observation, available []tools.Metadata) (Decision, error) {
	body, err := json.Marshal(decideRequest{
		History:      history,
		Observations: observations,
		Tools:        available,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal decide request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build decide request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("decide request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("decide service returned %d", resp.StatusCode)
	}

	var decoded decideResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode decide response: %w", err)
	}

	switch decoded.Type {
	case "final":
		return FinalText{Text: decoded.Text}, nil
	case "tool_use":
		if decoded.ToolID == "" {
			return nil, fmt.Errorf("tool_use decision without tool_id")
		}
		return ToolUse{ToolID: decoded.ToolID, Input: decoded.Input}, nil
	default:
		return nil, fmt.Errorf("unknown decision type %q", decoded.Type)
	}
}

// EchoDecider answers immediately with the last user observation. It backs
// local development and tests when no model service is configured.
type EchoDecider struct{}

func (EchoDecider) Decide(ctx context.Context, history []models.Message, observations []Observation, available []tools.Metadata) (Decision, error) {
	for i := len(observations) - 1; i >= 0; i-- {
		if observations[i].Kind == ObservationUser {
			return FinalText{Text: "You said: " + observations[i].Content}, nil
		}
	}
	return FinalText{Text: "Hello! How can I help you?"}, nil
}
