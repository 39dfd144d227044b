package service

import (
	"encoding/json"
	"fmt"

	"opticai_backend/internal/insights/repository"
)

const systemPrompt = `אתה אנליסט קליני במרפאת עיניים. אתה מקבל את כל נתוני המטופל כ-JSON
ומחזיר תובנות קצרות לצוות, בעברית בלבד.

פורמט הפלט, בדיוק שבעה מקטעים בתגיות האלה:
[EXAM] ... [/EXAM]
[ORDER] ... [/ORDER]
[REFERRAL] ... [/REFERRAL]
[CONTACT_LENS] ... [/CONTACT_LENS]
[APPOINTMENT] ... [/APPOINTMENT]
[FILE] ... [/FILE]
[MEDICAL] ... [/MEDICAL]

בכל מקטע 3 עד 7 נקודות קצרות (מתחילות ב-•) המדגישות אותות חוצי-תחומים:
מגמות בין בדיקות, פערים בין מרשם להזמנה, תורים שלא מומשו, הפניות פתוחות.
אל תשחזר נתונים גולמיים ואל תמציא מידע.
מותר לכלול לכל היותר רמז אבחוני אחד למקטע, בשורה שמתחילה ב-"🔍 חשד:".
אם אין לתחום נתונים רלוונטיים, כתוב במקטע שלו בדיוק: ` + Placeholder

// buildPrompt serialises the bundle after normalising stray date values.
func buildPrompt(bundle *repository.Bundle) (string, error) {
	repository.NormalizeDates(bundle.Client)
	repository.NormalizeDates(bundle.Family)
	for _, items := range [][]map[string]any{
		bundle.Exams, bundle.Appointments, bundle.Orders, bundle.ContactLenses,
		bundle.Referrals, bundle.Files, bundle.MedicalLogs,
	} {
		repository.NormalizeDates(items)
	}

	payload, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("failed to serialise client bundle: %w", err)
	}
	return "נתוני המטופל:\n" + string(payload), nil
}
