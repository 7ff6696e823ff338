package shareport

import (
	"time"
)

// KeyPrefix is the object namespace root for all upload batches. Every
// object belonging to slug S lives under KeyPrefix + S + "/".
const KeyPrefix = "uploads/"

// DefaultExpiryDays is applied when a commit request does not specify an
// expiry window.
const DefaultExpiryDays = 7

// FileRecord describes one stored object within an upload batch.
//
// Key is the storage path and is globally unique. Name is the original
// relative path as the photographer uploaded it and may contain folder
// segments ("ceremony/001.jpg"); it is what consumers see inside archives.
type FileRecord struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// UploadMetadata is the authoritative record for one upload batch.
//
// The record is the commit point of the two-phase upload sequence: objects
// are written to the blob store first, the record is saved last. Until the
// record exists the objects are orphans, reachable only by a prefix scan.
type UploadMetadata struct {
	Slug            string          `json:"slug"`
	Title           string          `json:"title,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	Files           []FileRecord    `json:"files"`
	Downloads       int64           `json:"downloads"`
	PreviewImageKey string          `json:"preview_image_key,omitempty"`
	ClientEmail     string          `json:"client_email,omitempty"`
	CustomMessage   string          `json:"custom_message,omitempty"`
	Ratings         map[string]bool `json:"ratings,omitempty"`
	RatingsEnabled  bool            `json:"ratings_enabled"`
}

// Expired reports whether the batch is past its expiry instant.
func (m *UploadMetadata) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// File returns the file record for the given storage key, or nil if the
// key does not belong to this batch.
func (m *UploadMetadata) File(key string) *FileRecord {
	for i := range m.Files {
		if m.Files[i].Key == key {
			return &m.Files[i]
		}
	}
	return nil
}

// FilesInFolder returns the subset of files whose Name sits under the
// given folder, in file-list order. The folder itself is not an object.
func (m *UploadMetadata) FilesInFolder(folder string) []FileRecord {
	prefix := folder + "/"
	var out []FileRecord
	for _, f := range m.Files {
		if len(f.Name) > len(prefix) && f.Name[:len(prefix)] == prefix {
			out = append(out, f)
		}
	}
	return out
}

// TotalSize returns the sum of all file sizes in bytes.
func (m *UploadMetadata) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}
