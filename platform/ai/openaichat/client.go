package openaichat

import (
	"context"
	"strings"

	"opticai_backend/platform/apperr"
)

// Complete sends a one-shot system+user prompt pair and returns the assistant
// text. Used by callers that need a single completion outside an agent run.
func (m *Model) Complete(ctx context.Context, system, user string) (string, error) {
	messages := []chatMessage{}
	if strings.TrimSpace(system) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	payload := map[string]interface{}{
		"model":    m.config.Model,
		"messages": messages,
	}

	result, err := m.post(ctx, payload)
	if err != nil {
		return "", apperr.Wrap(apperr.KindLLM, "llm request failed", err)
	}

	text := strings.TrimSpace(result.Choices[0].Message.Content)
	if text == "" {
		return "", apperr.LLM("llm returned an empty completion")
	}

	return text, nil
}
