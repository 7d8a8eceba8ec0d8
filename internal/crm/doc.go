// Package crm upserts the companies named in a trigger email.
//
// Two Upserter implementations share one contract and one Batch
// normalization. DirectUpserter calls the Affinity API: it reads list
// membership once per batch, then for each company finds or creates the
// record, adds it to the list if needed and attaches the composite note.
// RelayUpserter resolves each company's website and emails the CRM's intake
// addresses instead.
//
// Companies are processed strictly in order. A failing company is reported
// through the Reporter and left out of the results; the rest of the batch
// still runs.
package crm
