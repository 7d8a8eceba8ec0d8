package instrumentation

import "strings"

// ExtractUserDomain reduces a sender address to its domain for use as a
// metric label. Anything that is not exactly local@domain maps to "unknown".
//
//	ExtractUserDomain("founder@novacredit.com") // "novacredit.com"
//	ExtractUserDomain("invalid")                // "unknown"
func ExtractUserDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "unknown"
	}
	return domain
}

// Operation types for Google API, CRM and lookup metrics.
// Status and Service constants are defined in labels.go.
const (
	OperationList   = "list"
	OperationGet    = "get"
	OperationCreate = "create"
	OperationSend   = "send"
	OperationSearch = "search"
	OperationWatch  = "watch"
	OperationUpload = "upload"
	OperationShare  = "share"

	OperationListMembers = "list_members"
	OperationAddToList   = "add_to_list"
	OperationAddNote     = "add_note"
	OperationLookup      = "lookup"
)
