// Package cmd implements the command-line interface for crmupdater.
//
// This package provides the following commands:
//   - serve: Run the Pub/Sub webhook server (the default)
//   - watch: Register or renew the Gmail push watch
//   - process: Parse one email body and optionally update the CRM
//   - mcp: Run an MCP server on stdio exposing the pipeline as tools
//   - generate-docs: Generate markdown documentation for the MCP tools
//   - version: Display version information
package cmd
