// Package notify sends best-effort failure reports to the operator.
//
// Reports go out through the mailbox provider and carry the
// X-CRMUpdater-Report header. Report never returns an error: a failed send is
// logged and counted on error_reports_total and processing continues.
package notify
