package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAICapability binds Capability to an OpenAI-compatible chat
// completions endpoint, requesting a strict JSON object response so
// the Braider never has to parse prose out of a free-text reply.
type OpenAICapability struct {
	client *openai.Client
	model  string
}

// NewOpenAICapability wraps a go-openai client for a given model id.
func NewOpenAICapability(client *openai.Client, model string) *OpenAICapability {
	return &OpenAICapability{client: client, model: model}
}

func (c *OpenAICapability) Call(ctx context.Context, req Request) (json.RawMessage, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm call %s@%s: %w", req.TemplateID, req.Version, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm call %s@%s: no choices returned", req.TemplateID, req.Version)
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}
