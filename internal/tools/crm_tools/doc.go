// Package crm_tools exposes the update pipeline as MCP tools.
//
// Available tools:
//   - crm_parse_email: parse an email body for companies and a note
//   - crm_upload_companies: upsert companies with the configured mode
//   - crm_process_latest: run the pipeline on the latest inbox message
package crm_tools
