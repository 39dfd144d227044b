package agent

import (
	"testing"
)

// A turn that calls one tool must begin with a visible text part, carry a
// tool part whose phase transitions start -> end, and keep timestamps
// strictly increasing.
func TestPartsBuilderSingleToolTurn(t *testing.T) {
	b := newPartsBuilder()

	b.onToolStart("ClientTool")
	b.onToolEnd("ClientTool", `{"status":"success","data":[]}`, false)
	b.onToken("שלום")
	b.onToken(", מצאתי את המטופל")

	parts := b.snapshot()
	if len(parts) < 3 {
		t.Fatalf("expected at least 3 parts, got %d: %+v", len(parts), parts)
	}

	if parts[0].Type != "text" || parts[0].Content != checkingText {
		t.Fatalf("first part should be the checking text, got %+v", parts[0])
	}

	var tool *Part
	for i := range parts {
		if parts[i].Type == "tool" {
			tool = &parts[i]
			break
		}
	}
	if tool == nil {
		t.Fatal("no tool part assembled")
	}
	if tool.ToolPhase != "end" || tool.Content != "completed: ClientTool" {
		t.Fatalf("tool part not completed: %+v", tool)
	}

	last := parts[len(parts)-1]
	if last.Type != "text" || last.Content != "שלום, מצאתי את המטופל" {
		t.Fatalf("token accumulation broken: %+v", last)
	}

	for i := 1; i < len(parts); i++ {
		if parts[i].Timestamp <= parts[i-1].Timestamp {
			t.Fatalf("timestamps not strictly increasing: %+v", parts)
		}
	}
}

func TestPartsBuilderToolErrorSurfaced(t *testing.T) {
	b := newPartsBuilder()
	b.onToolStart("AppointmentTool")

	output, isErr := toolOutcome(map[string]any{
		"result": `{"status":"error","error":"מטופל 99 לא נמצא"}`,
	})
	if !isErr {
		t.Fatal("error envelope not detected")
	}
	b.onToolEnd("AppointmentTool", output, true)

	last := b.snapshot()[len(b.parts)-1]
	if last.Type != "text" || last.Content != "tool error: מטופל 99 לא נמצא" {
		t.Fatalf("tool error part = %+v", last)
	}
}

func TestPartsBuilderNoLeadingCheckingAfterText(t *testing.T) {
	b := newPartsBuilder()
	b.onToken("אני בודק את היומן")
	b.onToolStart("AppointmentTool")

	parts := b.snapshot()
	for _, p := range parts {
		if p.Content == checkingText {
			t.Fatalf("checking part inserted even though text preceded the tool: %+v", parts)
		}
	}
}

func TestPartsBuilderSkipsAggregateDuplicate(t *testing.T) {
	b := newPartsBuilder()
	if !b.onToken("שלום ") {
		t.Fatal("first chunk rejected")
	}
	if !b.onToken("עולם") {
		t.Fatal("second chunk rejected")
	}
	// A final event repeating the whole message must not double it.
	if b.onToken("שלום עולם") {
		t.Fatal("aggregate duplicate accepted")
	}
	if b.fullMessage != "שלום עולם" {
		t.Fatalf("fullMessage = %q", b.fullMessage)
	}
}
