// Package llm implements the LLM capability (spec §6's "LLM interface
// (consumed): call(template_id, version, variables) -> JSON"), bound
// concretely to OpenAI-compatible chat completions (openai.go) with a
// deterministic double for tests (mock.go).
package llm

import (
	"context"
	"encoding/json"
)

// Capability is the typed boundary the Braider calls through. Responses
// are raw JSON: OpenAICapability requests a JSON-object response format
// and returns the content unchecked, and the Braider validates every
// response before it becomes braid content.
type Capability interface {
	Call(ctx context.Context, req Request) (json.RawMessage, error)
}

// Request carries everything the Capability needs to make one call:
// the template id and version (used in error messages), the
// already-materialized prompt (system + user messages), and
// per-template parameters from the Prompt Registry.
type Request struct {
	TemplateID  string
	Version     string
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}
