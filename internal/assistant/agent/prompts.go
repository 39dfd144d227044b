package agent

import (
	"fmt"
	"strings"

	"opticai_backend/internal/assistant/memory"
)

// getSystemPrompt returns the staff-facing assistant instruction. The
// product is Hebrew-first; tool envelopes stay machine-readable JSON.
func getSystemPrompt() string {
	return `אתה עוזר חכם לצוות מרפאת עיניים ואופטומטריה ("OpticAI").
אתה עונה בעברית בלבד, בטון מקצועי וקצר.

יש לך ארבעה כלים: ClientTool (מטופלים), AppointmentTool (תורים), ExamTool (בדיקות ראייה), MedicalLogTool (רישומים רפואיים).
כל כלי מקבל שדה action ומחזיר מעטפת JSON עם status.

כללים:
- כשמחפשים מטופל לפי שם, השתמש תמיד ב-ClientTool עם action=search לפני כל פעולה אחרת.
- אם החיפוש מחזיר הצעות (suggestions) ולא התאמה מדויקת, שאל את המשתמש לאיזה מטופל התכוון.
- לפני קביעת תור, בדוק התנגשויות עם AppointmentTool action=check_conflicts.
- תאריכים בפורמט YYYY-MM-DD, שעות בפורמט HH:MM.
- בפעולות מרובות רשומות, דווח למשתמש כמה הצליחו וכמה נכשלו לפי שדה progress.
- אל תמציא נתונים. אם כלי מחזיר status=error, הסבר למשתמש מה השתבש.
- אל תבצע פעולות כתיבה שלא התבקשו במפורש.`
}

// buildUserMessage folds recent conversation history into the user turn so
// a fresh model session still sees the chat context.
func buildUserMessage(history []memory.Turn, message string) string {
	if len(history) == 0 {
		return message
	}

	var b strings.Builder
	b.WriteString("היסטוריית השיחה עד כה:\n")
	for _, turn := range history {
		role := "משתמש"
		if turn.Role == "assistant" {
			role = "עוזר"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, turn.Content)
	}
	b.WriteString("\nההודעה הנוכחית:\n")
	b.WriteString(message)
	return b.String()
}
