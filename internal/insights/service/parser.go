package service

import (
	"regexp"
	"strings"
)

// Placeholder is persisted for sections the LLM did not produce.
const Placeholder = "אין מידע רלוונטי לתחום זה"

// sections lists the bracket tags in the order the prompt requests them,
// with the client-record domain each one feeds.
var sections = []struct {
	Tag    string
	Domain string
}{
	{"EXAM", "exam"},
	{"ORDER", "order"},
	{"REFERRAL", "referral"},
	{"CONTACT_LENS", "contact_lens"},
	{"APPOINTMENT", "appointment"},
	{"FILE", "file"},
	{"MEDICAL", "medical"},
}

// Domains returns the seven valid part keys.
func Domains() []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.Domain
	}
	return out
}

// IsValidDomain reports whether part names one of the seven sections.
func IsValidDomain(part string) bool {
	for _, s := range sections {
		if s.Domain == part {
			return true
		}
	}
	return false
}

var sectionPatterns = func() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(sections))
	for _, s := range sections {
		patterns[s.Domain] = regexp.MustCompile(`(?is)\[` + s.Tag + `\](.*?)\[/` + s.Tag + `\]`)
	}
	return patterns
}()

// ParseSections extracts every [TAG]...[/TAG] block from the LLM reply,
// case-insensitively. Missing sections resolve to the placeholder.
func ParseSections(reply string) map[string]string {
	out := make(map[string]string, len(sections))
	for _, s := range sections {
		match := sectionPatterns[s.Domain].FindStringSubmatch(reply)
		if match == nil || strings.TrimSpace(match[1]) == "" {
			out[s.Domain] = Placeholder
			continue
		}
		out[s.Domain] = strings.TrimSpace(match[1])
	}
	return out
}
