package intent

import (
	"regexp"
	"strings"

	"github.com/teemow/crmupdater/internal/apperrors"
)

// TriggerPhrase marks the line that lists the companies to register.
const TriggerPhrase = "upload to affinity"

var notePattern = regexp.MustCompile(`(?is)notes:\s*"(.*?)"`)

// Intent is the instruction parsed from a message body.
type Intent struct {
	// Companies in mention order, lowercased. Duplicates are kept.
	Companies []string `json:"companies"`

	// Note is the free text from the notes block. Only meaningful when HasNote is set.
	Note    string `json:"note,omitempty"`
	HasNote bool   `json:"has_note"`
}

// Parse extracts the companies and optional note from body.
// It fails with a TRIGGER_NOT_FOUND error when the trigger phrase is absent.
// An empty company list is not an error.
func Parse(body string) (Intent, error) {
	if !strings.Contains(strings.ToLower(body), TriggerPhrase) {
		return Intent{}, apperrors.TriggerNotFound("keyword '" + TriggerPhrase + "' not found")
	}

	line, ok := triggerLine(body)
	if !ok {
		return Intent{}, apperrors.TriggerLineNotFound("could not locate upload line")
	}

	in := Intent{
		Companies: splitCompanies(line),
	}

	if m := notePattern.FindStringSubmatch(body); m != nil {
		in.Note = strings.TrimSpace(m[1])
		in.HasNote = true
	}

	return in, nil
}

// triggerLine returns the first line containing the trigger phrase, lowercased and trimmed.
func triggerLine(body string) (string, bool) {
	for _, line := range splitLines(body) {
		lower := strings.ToLower(strings.TrimSpace(line))
		if strings.Contains(lower, TriggerPhrase) {
			return lower, true
		}
	}
	return "", false
}

// splitLines splits on \n, \r\n and lone \r.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

func splitCompanies(line string) []string {
	before, _, _ := strings.Cut(line, TriggerPhrase)
	before = strings.NewReplacer("[", "", "]", "").Replace(strings.TrimSpace(before))

	parts := strings.Split(before, ",")
	companies := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			companies = append(companies, p)
		}
	}
	return companies
}
