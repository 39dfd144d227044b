// Package envelope defines the uniform JSON return shape of every
// assistant tool call. Tools never return Go errors to the model; they
// serialise one of three envelope statuses instead.
package envelope

import (
	"encoding/json"
	"fmt"
)

const (
	StatusSuccess              = "success"
	StatusError                = "error"
	StatusConfirmationRequired = "confirmation_required"
)

// Progress reports bulk verb accounting. Emitted by every create/update.
type Progress struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Envelope is the single response shape tools hand back to the model.
type Envelope struct {
	Status      string    `json:"status"`
	Data        any       `json:"data,omitempty"`
	Message     string    `json:"message,omitempty"`
	Progress    *Progress `json:"progress,omitempty"`
	Error       string    `json:"error,omitempty"`
	Suggestions any       `json:"suggestions,omitempty"`
	Action      string    `json:"action,omitempty"`
}

// Succeeded is one per-record success entry in a bulk result.
type Succeeded struct {
	Index int            `json:"index"`
	ID    int64          `json:"id"`
	Extra map[string]any `json:"-"`
}

// MarshalJSON flattens Extra alongside index and id.
func (s Succeeded) MarshalJSON() ([]byte, error) {
	m := map[string]any{"index": s.Index, "id": s.ID}
	for k, v := range s.Extra {
		m[k] = v
	}
	return json.Marshal(m)
}

// Failed is one per-record failure entry in a bulk result. Data preserves
// the record exactly as submitted.
type Failed struct {
	Index int    `json:"index"`
	Error string `json:"error"`
	Data  any    `json:"data"`
}

// BulkResult accumulates per-record outcomes for a bulk verb.
type BulkResult struct {
	Succeeded []Succeeded `json:"succeeded"`
	Failed    []Failed    `json:"failed"`
}

// NewBulkResult returns a result with non-nil slices so JSON renders
// empty arrays rather than null.
func NewBulkResult() *BulkResult {
	return &BulkResult{Succeeded: []Succeeded{}, Failed: []Failed{}}
}

// AddSuccess records one committed record.
func (b *BulkResult) AddSuccess(index int, id int64, extra map[string]any) {
	b.Succeeded = append(b.Succeeded, Succeeded{Index: index, ID: id, Extra: extra})
}

// AddFailure records one rolled-back record with its submitted data.
func (b *BulkResult) AddFailure(index int, errMsg string, data any) {
	b.Failed = append(b.Failed, Failed{Index: index, Error: errMsg, Data: data})
}

// Message builds the bulk summary line: "N created successfully" when
// nothing failed, "N created, M failed" for a mix, "all M failed" when
// nothing succeeded.
func (b *BulkResult) Message(verb string) string {
	n, m := len(b.Succeeded), len(b.Failed)
	switch {
	case m == 0:
		return fmt.Sprintf("%d %s successfully", n, verb)
	case n == 0:
		return fmt.Sprintf("all %d failed", m)
	default:
		return fmt.Sprintf("%d %s, %d failed", n, verb, m)
	}
}

// Envelope wraps the result as a success envelope with exact counters.
// Bulk verbs never fail the whole call.
func (b *BulkResult) Envelope(verb string) string {
	return Success(b, b.Message(verb), &Progress{
		Succeeded: len(b.Succeeded),
		Failed:    len(b.Failed),
		Total:     len(b.Succeeded) + len(b.Failed),
	})
}

func render(e Envelope) string {
	out, err := json.Marshal(e)
	if err != nil {
		// Envelope fields are JSON-safe by construction; this path means a
		// tool put something unmarshalable in Data.
		fallback, _ := json.Marshal(Envelope{Status: StatusError, Error: "internal serialization error"})
		return string(fallback)
	}
	return string(out)
}

// Success renders a success envelope. progress may be nil for non-bulk verbs.
func Success(data any, message string, progress *Progress) string {
	return render(Envelope{Status: StatusSuccess, Data: data, Message: message, Progress: progress})
}

// Error renders an error envelope.
func Error(message string) string {
	return render(Envelope{Status: StatusError, Error: message})
}

// ErrorWithSuggestions renders an error envelope carrying resolver suggestions.
func ErrorWithSuggestions(message string, suggestions any) string {
	return render(Envelope{Status: StatusError, Error: message, Suggestions: suggestions})
}

// ConfirmationRequired renders the reserved confirmation envelope.
func ConfirmationRequired(action string, data any, message string) string {
	return render(Envelope{Status: StatusConfirmationRequired, Action: action, Data: data, Message: message})
}
