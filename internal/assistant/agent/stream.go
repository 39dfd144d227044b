package agent

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/genai"

	"opticai_backend/internal/assistant/memory"
	"opticai_backend/internal/tenancy"
	"opticai_backend/platform/apperr"
)

// Part is one element of the UI parts contract: the ordered, timestamped
// mix of assistant text and tool lifecycle markers for a single turn.
type Part struct {
	Type      string `json:"type"` // "text" or "tool"
	Content   string `json:"content"`
	ToolName  string `json:"toolName,omitempty"`
	ToolPhase string `json:"toolPhase,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ToolEvent describes a tool lifecycle frame.
type ToolEvent struct {
	Phase  string         `json:"phase"` // "start" or "end"
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Output string         `json:"output,omitempty"`
}

// StreamFrame is one SSE payload. Exactly one of the three shapes is set:
// a tool lifecycle event, a token chunk, or the final done frame.
type StreamFrame struct {
	Tool  *ToolEvent `json:"tool,omitempty"`
	Parts []Part     `json:"parts,omitempty"`

	Chunk           string `json:"chunk,omitempty"`
	FullMessage     string `json:"fullMessage,omitempty"`
	CurrentTextPart string `json:"currentTextPart,omitempty"`

	Message string `json:"message,omitempty"`
	Done    bool   `json:"done,omitempty"`
}

const (
	checkingText     = "בודק..."
	toolSnippetLimit = 200
)

// partsBuilder assembles the turn's parts array. Timestamps are a
// monotonically increasing counter, not wall-clock time, so ordering
// survives fast event bursts.
type partsBuilder struct {
	parts       []Part
	clock       int64
	fullMessage string
	openText    int // index of the text part accumulating tokens, -1 if none
}

func newPartsBuilder() *partsBuilder {
	return &partsBuilder{parts: []Part{}, openText: -1}
}

func (b *partsBuilder) tick() int64 {
	b.clock++
	return b.clock
}

func (b *partsBuilder) hasText() bool {
	for _, p := range b.parts {
		if p.Type == "text" && strings.TrimSpace(p.Content) != "" {
			return true
		}
	}
	return false
}

func (b *partsBuilder) appendText(content string) {
	b.parts = append(b.parts, Part{Type: "text", Content: content, Timestamp: b.tick()})
	b.openText = -1
}

// onToken accumulates a model token into the running text part. Returns
// false when the chunk is a duplicate of the already-assembled message
// (some providers emit a final aggregate event after the chunks).
func (b *partsBuilder) onToken(chunk string) bool {
	if chunk == "" {
		return false
	}
	if b.fullMessage != "" && chunk == b.fullMessage {
		return false
	}
	if b.openText < 0 {
		b.parts = append(b.parts, Part{Type: "text", Timestamp: b.tick()})
		b.openText = len(b.parts) - 1
	}
	b.parts[b.openText].Content += chunk
	b.fullMessage += chunk
	return true
}

// onToolStart appends the tool marker, prefixing the turn with a visible
// "checking" text part when a tool would otherwise lead the response.
func (b *partsBuilder) onToolStart(name string) {
	if !b.hasText() {
		b.appendText(checkingText)
	}
	b.parts = append(b.parts, Part{
		Type:      "tool",
		Content:   "executing: " + name + "...",
		ToolName:  name,
		ToolPhase: "start",
		Timestamp: b.tick(),
	})
	b.openText = -1
}

// onToolEnd flips the matching tool part to its end phase and surfaces the
// tool's outcome as a visible text part when notable.
func (b *partsBuilder) onToolEnd(name, output string, isError bool) {
	for i := len(b.parts) - 1; i >= 0; i-- {
		if b.parts[i].Type == "tool" && b.parts[i].ToolName == name && b.parts[i].ToolPhase == "start" {
			b.parts[i].Content = "completed: " + name
			b.parts[i].ToolPhase = "end"
			b.parts[i].Timestamp = b.tick()
			break
		}
	}

	if isError {
		b.appendText("tool error: " + truncate(output, toolSnippetLimit))
	} else if output != "" {
		b.appendText("tool output: " + truncate(output, toolSnippetLimit))
	}
}

func (b *partsBuilder) currentTextPart() string {
	if b.openText < 0 {
		return ""
	}
	return b.parts[b.openText].Content
}

func (b *partsBuilder) snapshot() []Part {
	out := make([]Part, len(b.parts))
	copy(out, b.parts)
	return out
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

// toolOutcome extracts a printable snippet from a function response and
// reports whether the tool returned an error envelope.
func toolOutcome(response map[string]any) (string, bool) {
	var raw string
	for _, key := range []string{"result", "output", "response"} {
		if s, ok := response[key].(string); ok {
			raw = s
			break
		}
	}
	if raw == "" {
		encoded, err := json.Marshal(response)
		if err != nil {
			return "", false
		}
		raw = string(encoded)
	}

	var env struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &env); err == nil && env.Status == "error" {
		return env.Error, true
	}
	return raw, false
}

// ChatStream runs one chat turn in streaming mode, invoking emit for every
// SSE frame. Emission errors (client disconnect) stop the stream; in-flight
// tool calls have already committed their own transactions.
func (a *Assistant) ChatStream(
	ctx context.Context,
	caller tenancy.Caller,
	scope tenancy.Scope,
	req ChatRequest,
	emit func(StreamFrame) error,
) error {
	r, err := a.newRunner(caller, scope)
	if err != nil {
		return apperr.LLM(err.Error())
	}

	key, history, err := a.prepareTurn(ctx, caller, req)
	if err != nil {
		return apperr.Internal("conversation memory unavailable")
	}

	userID, sessionID, cleanup, err := a.openSession(ctx, caller)
	if err != nil {
		return apperr.LLM(err.Error())
	}
	defer cleanup()

	userMessage := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: buildUserMessage(history, req.Message)}},
	}

	builder := newPartsBuilder()
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeSSE}

	for event, runErr := range r.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if runErr != nil {
			a.log.LLMError("chat stream run", runErr)
			return apperr.LLM("assistant run failed")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if event.Content == nil {
			continue
		}

		for _, part := range event.Content.Parts {
			if err := a.streamPart(part, builder, emit); err != nil {
				return err
			}
		}
	}

	if err := emit(StreamFrame{
		Message: builder.fullMessage,
		Parts:   builder.snapshot(),
		Done:    true,
	}); err != nil {
		return err
	}

	if builder.fullMessage != "" {
		if err := a.memory.Append(ctx, key, memory.Turn{Role: "assistant", Content: builder.fullMessage}); err != nil {
			a.log.LLMError("append assistant turn", err)
		}
	}
	return nil
}

func (a *Assistant) streamPart(part *genai.Part, builder *partsBuilder, emit func(StreamFrame) error) error {
	switch {
	case part.FunctionCall != nil:
		builder.onToolStart(part.FunctionCall.Name)
		return emit(StreamFrame{
			Tool: &ToolEvent{
				Phase: "start",
				Name:  part.FunctionCall.Name,
				Args:  part.FunctionCall.Args,
			},
			Parts: builder.snapshot(),
		})

	case part.FunctionResponse != nil:
		output, isError := toolOutcome(part.FunctionResponse.Response)
		builder.onToolEnd(part.FunctionResponse.Name, output, isError)
		return emit(StreamFrame{
			Tool: &ToolEvent{
				Phase:  "end",
				Name:   part.FunctionResponse.Name,
				Output: truncate(output, toolSnippetLimit),
			},
			Parts: builder.snapshot(),
		})

	case part.Text != "":
		if !builder.onToken(part.Text) {
			return nil
		}
		return emit(StreamFrame{
			Chunk:           part.Text,
			FullMessage:     builder.fullMessage,
			CurrentTextPart: builder.currentTextPart(),
		})
	}
	return nil
}
