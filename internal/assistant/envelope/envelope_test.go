package envelope

import (
	"encoding/json"
	"testing"
)

func TestBulkResultMessages(t *testing.T) {
	b := NewBulkResult()
	b.AddSuccess(0, 10, nil)
	b.AddSuccess(1, 11, nil)
	if got := b.Message("created"); got != "2 created successfully" {
		t.Fatalf("all-success message = %q", got)
	}

	b.AddFailure(2, "boom", map[string]any{"client_id": 99})
	if got := b.Message("created"); got != "2 created, 1 failed" {
		t.Fatalf("mixed message = %q", got)
	}

	allFailed := NewBulkResult()
	allFailed.AddFailure(0, "x", nil)
	allFailed.AddFailure(1, "y", nil)
	if got := allFailed.Message("created"); got != "all 2 failed" {
		t.Fatalf("all-failed message = %q", got)
	}
}

func TestBulkEnvelopeCounters(t *testing.T) {
	b := NewBulkResult()
	b.AddSuccess(0, 7, map[string]any{"date": "2024-12-25"})
	b.AddFailure(1, "מטופל 99 לא נמצא", map[string]any{"client_id": 99})

	var e struct {
		Status   string `json:"status"`
		Progress struct {
			Succeeded int `json:"succeeded"`
			Failed    int `json:"failed"`
			Total     int `json:"total"`
		} `json:"progress"`
		Data struct {
			Succeeded []map[string]any `json:"succeeded"`
			Failed    []Failed         `json:"failed"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(b.Envelope("created")), &e); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if e.Status != StatusSuccess {
		t.Fatalf("bulk envelope status = %q, want success", e.Status)
	}
	if e.Progress.Succeeded != 1 || e.Progress.Failed != 1 || e.Progress.Total != 2 {
		t.Fatalf("progress = %+v", e.Progress)
	}
	if e.Data.Succeeded[0]["date"] != "2024-12-25" {
		t.Fatalf("succeeded extra not flattened: %v", e.Data.Succeeded[0])
	}
	failedData, ok := e.Data.Failed[0].Data.(map[string]any)
	if !ok || failedData["client_id"].(float64) != 99 {
		t.Fatalf("failed entry data not preserved: %v", e.Data.Failed[0].Data)
	}
}

func TestEmptyBulkRendersArrays(t *testing.T) {
	raw := NewBulkResult().Envelope("created")
	var e map[string]any
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatal(err)
	}
	data := e["data"].(map[string]any)
	if _, ok := data["succeeded"].([]any); !ok {
		t.Fatalf("succeeded should be an array, got %T", data["succeeded"])
	}
}
