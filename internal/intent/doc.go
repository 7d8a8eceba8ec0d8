// Package intent extracts the operator's instruction from an inbound email body.
//
// A body is actionable when one of its lines contains the trigger phrase
// "upload to affinity". The comma separated text before the phrase on that
// line names the companies to register. An optional note is taken from the
// first `notes: "..."` block anywhere in the body; the quoted content may
// span several lines.
//
// Example:
//
//	in, err := intent.Parse("Acme, Globex upload to affinity\nNotes: \"met at demo day\"")
//	// in.Companies == []string{"acme", "globex"}
//	// in.Note == "met at demo day"
package intent
