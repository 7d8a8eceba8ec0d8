// Package gmail provides a client for interacting with the Gmail API.
//
// This package offers the mailbox operations the update pipeline needs:
//   - Fetching the most recent message with its allowed attachments
//   - Walking a message part tree into body text and attachment references
//   - Sending plain text notifications
//   - Registering push notification watches
//
// ExtractParts is a pure function over a message part tree, so body and
// attachment extraction can be tested without a mailbox.
//
// Authentication:
// The client takes an already authorized *http.Client. Credentials are loaded
// by the google package from the mounted secret, a token file, or Secret Manager.
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, httpClient, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	msg, found, err := client.FetchLatest(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if found {
//	    fmt.Println(msg.Subject, len(msg.Attachments))
//	}
package gmail
