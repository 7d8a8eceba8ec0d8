package affinity

import (
	"fmt"
)

// Company is a company record owned by Affinity.
type Company struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

// MemberSet holds the company ids already present in a list.
type MemberSet map[int64]struct{}

// Has reports whether id is a member.
func (s MemberSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Add records id as a member.
func (s MemberSet) Add(id int64) {
	s[id] = struct{}{}
}

// APIError is a non-success response from the Affinity API
type APIError struct {
	// Op is the operation that failed (e.g., "search", "add_to_list")
	Op string

	// StatusCode is the HTTP status returned by Affinity
	StatusCode int

	// Body is the response body, truncated
	Body string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("affinity %s failed (%d): %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("affinity %s failed (%d)", e.Op, e.StatusCode)
}

type companyPage struct {
	Data []Company `json:"data"`
}

type listEntryPage struct {
	Data []struct {
		Company struct {
			ID int64 `json:"id"`
		} `json:"company"`
	} `json:"data"`
	Pagination struct {
		NextURL string `json:"nextUrl"`
	} `json:"pagination"`
}

type createCompanyRequest struct {
	Name string `json:"name"`
}

type addListEntryRequest struct {
	CompanyID int64 `json:"companyId"`
}

type addNoteRequest struct {
	Content string `json:"content"`
}
