// Package drive relays email attachments to Google Drive.
//
// Each attachment becomes a new file, optionally under a configured parent
// folder, shared read-only with a single domain and not discoverable by
// search. The caller receives the file's webViewLink.
//
// Example usage:
//
//	client, err := drive.NewClient(ctx, httpClient, nil,
//	    drive.WithParentFolder(folderID),
//	    drive.WithShareDomain("wyldvc.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	file, err := client.UploadAttachment(ctx, "deck.pdf", content, "application/pdf")
//	if err != nil {
//	    // err is an UPLOAD_ERROR naming the file
//	}
//	fmt.Println(file.Link)
package drive
