package drive

// UploadedFile is an attachment stored in Drive and shared with the domain.
type UploadedFile struct {
	// FileID is the Drive file id
	FileID string `json:"fileId"`

	// SourceFilename is the attachment name the file was created from
	SourceFilename string `json:"sourceFilename"`

	// Link is the webViewLink readers in the share domain can open
	Link string `json:"link"`
}

// Links returns the view links of files, in order.
func Links(files []UploadedFile) []string {
	links := make([]string, 0, len(files))
	for _, f := range files {
		links = append(links, f.Link)
	}
	return links
}
