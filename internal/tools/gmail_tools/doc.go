// Package gmail_tools provides the gmail_refresh_watch MCP tool, which renews
// the push watch that feeds the webhook.
package gmail_tools
