// Package batch summarizes a CRM upsert batch for MCP tool results, one
// entry per requested company.
package batch
