// Package google loads the stored Google OAuth credentials used by the Gmail
// and Drive clients.
//
// Credentials are an authorized-user token document (token, refresh_token,
// token_uri, client_id, client_secret, scopes, expiry). A CredentialStore looks
// for it in order:
//
//  1. the mounted secret file (default /secrets/token.json)
//  2. the token file (TOKEN_PATH, default token.json)
//  3. Secret Manager, projects/<project>/secrets/<name>/versions/latest
//
// The resulting token source refreshes the access token as needed. No
// interactive authorization flow is provided.
package google
