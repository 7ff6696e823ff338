// Package objectkey derives blob store keys for upload batches.
//
// Keys are deterministic: issuing a presigned URL twice for the same
// logical file yields the same key, so a retried upload overwrites instead
// of duplicating.
package objectkey

import (
	"errors"
	"strings"
)

// Prefix is the namespace root shared by all upload batches.
const Prefix = "uploads/"

// ErrUnsafePath indicates a relative path that escapes the batch prefix
// or collapses to nothing after sanitization.
var ErrUnsafePath = errors.New("unsafe relative path")

// ForUpload returns the storage key for one file of a batch:
// uploads/{slug}/{sanitized relative path}. Folder segments in the
// relative path are preserved so archives keep the original structure.
func ForUpload(slug, relativePath string) (string, error) {
	clean, err := SanitizeRelativePath(relativePath)
	if err != nil {
		return "", err
	}
	return Prefix + slug + "/" + clean, nil
}

// BatchPrefix returns the key prefix holding every object of a batch,
// including the trailing slash.
func BatchPrefix(slug string) string {
	return Prefix + slug + "/"
}

// SlugFromKey extracts the slug from a full object key, or "" when the key
// is not under the upload namespace.
func SlugFromKey(key string) string {
	rest, ok := strings.CutPrefix(key, Prefix)
	if !ok {
		return ""
	}
	slug, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return slug
}

// SanitizeRelativePath normalizes a client-supplied relative path for use
// inside a key. Backslashes become slashes, empty and dot segments are
// dropped, and problematic characters are replaced per segment. Paths that
// attempt traversal are rejected.
func SanitizeRelativePath(relativePath string) (string, error) {
	p := strings.ReplaceAll(relativePath, "\\", "/")

	var segments []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", ErrUnsafePath
		}
		segments = append(segments, sanitizeSegment(seg))
	}
	if len(segments) == 0 {
		return "", ErrUnsafePath
	}
	return strings.Join(segments, "/"), nil
}

func sanitizeSegment(segment string) string {
	replacer := strings.NewReplacer(
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"#", "_",
	)
	return replacer.Replace(segment)
}
