// Package tools defines tool descriptors and the registry that resolves the
// tool references a chat carries into runnable descriptors: either a code
// snippet for the sandboxed executor or a remote tool served over an MCP
// subprocess.
package tools

import (
	"context"
	"time"
)

// Descriptor is a resolved tool. It is a sealed union: the only
// implementations are Snippet and Remote.
type Descriptor interface {
	// Meta returns the tool's identity as shown to the deciding model
	Meta() Metadata

	sealed()
}

// Metadata identifies a tool to the agent
type Metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Snippet is a piece of user-provided code executed in the local sandbox.
type Snippet struct {
	ID          string
	Name        string
	Description string
	Language    string
	Code        string
}

func (s Snippet) Meta() Metadata {
	return Metadata{ID: s.ID, Name: s.Name, Description: s.Description}
}

func (Snippet) sealed() {}

// Remote is a tool served by an external MCP server process spawned on
// demand.
type Remote struct {
	ID          string
	Name        string
	Description string
	Command     string
	Args        []string
	Env         map[string]string
	Timeout     time.Duration
}

func (r Remote) Meta() Metadata {
	return Metadata{ID: r.ID, Name: r.Name, Description: r.Description}
}

func (Remote) sealed() {}

// Registry resolves tool ids to descriptors.
type Registry interface {
	// Resolve returns the descriptor for one tool id
	Resolve(ctx context.Context, id string) (Descriptor, error)
	// ResolveAll resolves a chat's active tool ids, skipping unknown ids
	ResolveAll(ctx context.Context, ids []string) ([]Descriptor, error)
}

// Summaries extracts the metadata of a tool set for the decide step
func Summaries(descriptors []Descriptor) []Metadata {
	out := make([]Metadata, len(descriptors))
	for i, d := range descriptors {
		out[i] = d.Meta()
	}
	return out
}
