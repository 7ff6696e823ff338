package shareport

import "time"

// IssueUploadURLRequest asks for a presigned PUT for one file of a batch.
// FileName is the original relative path and may contain folder segments.
type IssueUploadURLRequest struct {
	Slug        string
	FileName    string
	ContentType string
}

// PresignedUpload is the result of issuing an upload URL. Key is
// deterministic for a given (slug, file name) pair so retried issuance
// targets the same object.
type PresignedUpload struct {
	URL       string    `json:"presigned_url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CommitUploadRequest commits a metadata record naming objects that were
// already uploaded through presigned PUTs. The save is the commit point of
// the two-phase sequence.
type CommitUploadRequest struct {
	Slug           string
	Title          string
	Files          []FileRecord
	ExpiryDays     int
	ClientEmail    string
	CustomMessage  string
	RatingsEnabled bool
}
