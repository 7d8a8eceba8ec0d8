// Package affinity is a small client for the Affinity CRM v2 REST API.
//
// It covers what the updater needs to register a company in one list:
// searching and creating companies, reading and extending list membership,
// and attaching notes. Requests use Bearer authentication and are traced
// through otelhttp. Every failure is returned as a CRM_OPERATION_ERROR that
// names the operation.
//
// Example usage:
//
//	client, err := affinity.NewClient(apiKey, affinity.WithListID(315335))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	company, found, err := client.SearchCompany(ctx, "nova credit")
//	if err == nil && !found {
//	    company, err = client.CreateCompany(ctx, "nova credit")
//	}
package affinity
