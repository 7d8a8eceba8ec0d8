// Package server hosts the HTTP surface of crmupdater.
//
// WebhookServer accepts Gmail watch notifications pushed by Cloud Pub/Sub on
// POST /pubsub and runs the update pipeline for each one. POST or GET
// /refresh_watch re-registers the mailbox watch, which Gmail expires after
// seven days. /healthz and /readyz serve the liveness and readiness probes,
// and /mcp exposes the MCP tools when an MCP server is attached.
//
// A push is answered with 200 once the pipeline has run, whatever the
// outcome of the CRM update: failures past the fetch are reported to the
// operator by email instead. Malformed envelopes get a 400 and fetch
// failures a 500 so that Pub/Sub redelivers.
//
// MetricsServer serves Prometheus metrics on a separate port.
package server
