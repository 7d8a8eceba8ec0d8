package lookup

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	citationPattern = regexp.MustCompile(`\[\d+\]`)
	urlPattern      = regexp.MustCompile(`(?i)https?://[^\s<>"'` + "`" + `]+`)
)

const trailingPunctuation = ".,;:!?)]}>'\"*"

// ErrNoURL is returned when a reply contains no URL.
var ErrNoURL = errors.New("reply contains no URL")

// ExtractURL returns the single well-formed URL in reply. Citation markers
// such as [1] and trailing punctuation are stripped first. Repeats of the
// same URL count once.
func ExtractURL(reply string) (string, error) {
	cleaned := citationPattern.ReplaceAllString(reply, " ")

	var found []string
	seen := map[string]bool{}
	for _, candidate := range urlPattern.FindAllString(cleaned, -1) {
		candidate = strings.TrimRight(candidate, trailingPunctuation)
		if !wellFormed(candidate) || seen[candidate] {
			continue
		}
		seen[candidate] = true
		found = append(found, candidate)
	}

	switch len(found) {
	case 0:
		return "", ErrNoURL
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("reply contains %d URLs: %s", len(found), strings.Join(found, ", "))
	}
}

func wellFormed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && strings.Contains(u.Host, ".")
}
