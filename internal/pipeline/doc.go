// Package pipeline orchestrates one update run.
//
// A run fetches the latest mailbox message, skips it if it was already
// processed or is one of our own error reports, uploads its attachments to
// Drive, parses the trigger line and hands the companies to a crm.Upserter.
// Only the fetch can fail a run; later failures are reported to the operator
// and the run carries on with the next attachment or company.
package pipeline
