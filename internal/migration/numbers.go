package migration

import (
	"fmt"
	"strconv"
	"strings"
)

// SerializeNumber rewrites legacy fixed-point numerics. Values without a
// decimal point encode the units in the first digit and the fraction in the
// rest ("125" means 1.25, "-075" means -0.75). Values that already carry a
// decimal point pass through with "," normalised to ".". Returns nil for
// empty input and leaves non-numeric strings untouched, so the function is
// safe to apply twice.
func SerializeNumber(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	s = strings.ReplaceAll(s, ",", ".")
	if strings.Contains(s, ".") {
		return &s
	}

	sign := ""
	digits := s
	if strings.HasPrefix(digits, "-") || strings.HasPrefix(digits, "+") {
		sign = digits[:1]
		digits = digits[1:]
	}
	if digits == "" || !isDigits(digits) {
		return &s
	}
	if len(digits) == 1 {
		return &s
	}

	out := sign + digits[:1] + "." + digits[1:]
	if sign == "+" {
		out = digits[:1] + "." + digits[1:]
	}
	return &out
}

// ParseNumber runs SerializeNumber and converts the result to a float.
func ParseNumber(raw string) *float64 {
	s := SerializeNumber(raw)
	if s == nil {
		return nil
	}
	f, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// ParseVisualAcuity reads a legacy VA value. The export stores some acuities
// scaled by ten ("12" means 1.2); anything above 1.0 is divided by ten. The
// scaling is applied unconditionally, matching the legacy importer.
func ParseVisualAcuity(raw string) *float64 {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if f > 1.0 {
		f = f / 10.0
	}
	return &f
}

// CompositeClientID synthesises the stable client primary key: the clinic id
// digits concatenated with the digits of the legacy account code. The result
// is globally unique and survives re-runs, which the cross-file joins depend
// on.
func CompositeClientID(clinicID int64, accountCode string) (int64, error) {
	digits := digitsOnly(accountCode)
	if digits == "" {
		return 0, fmt.Errorf("account code %q has no digits", accountCode)
	}

	id, err := strconv.ParseInt(strconv.FormatInt(clinicID, 10)+digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("composite id for clinic %d account %q: %w", clinicID, accountCode, err)
	}
	return id, nil
}

// ExtractAccountCode recovers the digit part of the legacy account code from
// a composite client id. It is the inverse of CompositeClientID up to
// non-digit characters.
func ExtractAccountCode(id int64, clinicID int64) string {
	s := strconv.FormatInt(id, 10)
	prefix := strconv.FormatInt(clinicID, 10)
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):]
	}
	return s
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
