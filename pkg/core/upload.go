package core

// FileRef points at a local file selected for upload.
type FileRef struct {
	Path string
	Name string
	Size int64
}

// UploadIntent is a request to transfer one file to a destination.
type UploadIntent struct {
	AccountID   int64
	Destination Destination
	File        FileRef
	AutoCommit  bool
}

// UploadResult is the outcome of one successful upload: the attachment
// object produced by the strategy plus the server session token, if any.
type UploadResult struct {
	JobID   int64
	Object  any
	Session string
}
