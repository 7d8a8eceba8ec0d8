package batch

import (
	"encoding/json"
	"strconv"

	"github.com/teemow/crmupdater/internal/crm"
)

// Item statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome of one company in a batch.
type Result struct {
	Company   string `json:"company"`
	Status    string `json:"status"`
	CompanyID string `json:"company_id,omitempty"`
	URL       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchResult aggregates the outcome of an upsert batch.
type BatchResult struct {
	Mode       string   `json:"mode"`
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// errReported is the detail for companies missing from the upserter's results.
// The upserter has already sent the failure to the operator.
const errReported = "not upserted; failure was reported to the operator"

// Summarize matches the upserter's results against the requested companies.
// Requested names missing from results count as failures. Duplicate names
// are matched one result each.
func Summarize(mode string, companies []string, results []crm.Result) BatchResult {
	pending := make(map[string][]crm.Result, len(results))
	for _, r := range results {
		pending[r.Company] = append(pending[r.Company], r)
	}

	br := BatchResult{
		Mode:    mode,
		Total:   len(companies),
		Results: make([]Result, 0, len(companies)),
	}
	for _, name := range companies {
		matches := pending[name]
		if len(matches) == 0 {
			br.Failed++
			br.Results = append(br.Results, Result{Company: name, Status: StatusError, Error: errReported})
			continue
		}
		r := matches[0]
		pending[name] = matches[1:]

		item := Result{Company: name, Status: StatusSuccess, URL: r.URL}
		if r.CompanyID != 0 {
			item.CompanyID = strconv.FormatInt(r.CompanyID, 10)
		}
		br.Successful++
		br.Results = append(br.Results, item)
	}
	return br
}

// Format renders br as indented JSON.
func (br BatchResult) Format() string {
	data, _ := json.MarshalIndent(br, "", "  ")
	return string(data)
}
