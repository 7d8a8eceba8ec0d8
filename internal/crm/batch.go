package crm

import (
	"context"
	"fmt"
	"strings"
)

// Upsert modes.
const (
	ModeDirect = "direct"
	ModeRelay  = "relay"
)

const attachmentsHeader = "\n\nAttachments:\n"

// Upserter registers a batch of companies in the CRM. Per-company failures
// are reported and omitted from the results; an error is returned only when
// the whole batch could not be attempted.
type Upserter interface {
	Upsert(ctx context.Context, batch Batch) ([]Result, error)
	Mode() string
}

// Reporter receives best-effort failure reports. *notify.Reporter satisfies it.
type Reporter interface {
	Report(ctx context.Context, subject, body string)
}

// Result is one successfully upserted company.
type Result struct {
	Company string `json:"company"`
	// CompanyID is set in direct mode.
	CompanyID int64 `json:"company_id,omitempty"`
	// URL is the resolved website, set in relay mode.
	URL string `json:"url,omitempty"`
}

// Batch is the normalized input shared by both upsert modes.
type Batch struct {
	Companies []string
	// Notes is aligned with Companies. Missing notes are empty.
	Notes []string
	Links []string
}

// NewBatch aligns notes with companies, padding with empty notes, and copies
// links so the batch does not share backing arrays with the caller.
// Notes beyond the last company are dropped.
func NewBatch(companies []string, notes []string, links []string) Batch {
	b := Batch{
		Companies: append([]string(nil), companies...),
		Notes:     make([]string, len(companies)),
		Links:     append([]string(nil), links...),
	}
	copy(b.Notes, notes)
	return b
}

// NoteFor returns the operator note for company i.
func (b Batch) NoteFor(i int) string {
	if i < 0 || i >= len(b.Notes) {
		return ""
	}
	return b.Notes[i]
}

// CompositeNoteFor returns the note to attach to company i.
func (b Batch) CompositeNoteFor(i int) string {
	return ComposeNote(b.NoteFor(i), b.Links)
}

// ComposeNote joins the operator note with an attachments block listing one
// link per line. The result is trimmed and empty when there is nothing to say.
func ComposeNote(note string, links []string) string {
	var sb strings.Builder
	sb.WriteString(note)
	if len(links) > 0 {
		sb.WriteString(attachmentsHeader)
		sb.WriteString(strings.Join(links, "\n"))
	}
	return strings.TrimSpace(sb.String())
}

// FailureSubject is the report subject for a company that could not be upserted.
func FailureSubject(company string) string {
	return "CRMUpdater: Affinity Upload Failed for " + company
}

// FailureBody is the report body for a company that could not be upserted.
func FailureBody(err error, company, note string, links []string) string {
	if note == "" {
		note = "(none)"
	}
	linkText := "(none)"
	if len(links) > 0 {
		linkText = strings.Join(links, ", ")
	}
	return fmt.Sprintf("Error: %v\n\nCompany: %s\nNote: %s\nDrive links: %s", err, company, note, linkText)
}
