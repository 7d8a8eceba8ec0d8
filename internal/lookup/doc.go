// Package lookup resolves a company name to its canonical website using a
// Perplexity-compatible chat-completions API.
//
// The reply must contain exactly one URL; ExtractURL performs that check.
package lookup
