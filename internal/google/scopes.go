package google

import (
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultScopes are the scopes the stored token must grant:
//   - Gmail: read the inbox, register watches, send reports and relay mail
//   - Drive: create attachment files and share them with the domain
var DefaultScopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailModifyScope,
	gmail.GmailSendScope,
	drive.DriveScope,
}
