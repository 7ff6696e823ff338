package shareport

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrUploadNotFound indicates no metadata record exists for the slug
	ErrUploadNotFound = errors.New("upload not found")

	// ErrObjectNotFound indicates an object was not found in the blob store
	ErrObjectNotFound = errors.New("object not found")

	// ErrUploadExpired indicates the metadata record is past its expiry
	ErrUploadExpired = errors.New("upload expired")

	// ErrUnauthorized indicates the caller did not pass the admin gate
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the caller exceeded its request budget
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidSlug indicates a slug that is empty or not URL-safe
	ErrInvalidSlug = errors.New("invalid slug")

	// ErrRatingsDisabled indicates a rating was submitted for a batch that
	// does not accept ratings
	ErrRatingsDisabled = errors.New("ratings disabled")

	// ErrCommitFailed indicates the metadata save of a commit did not succeed
	ErrCommitFailed = errors.New("commit failed")

	// ErrArchiveAborted indicates a mid-stream failure after archive bytes
	// were already sent; the response cannot be retracted
	ErrArchiveAborted = errors.New("archive aborted")
)

// StorageError represents an error from a blob store operation
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// UploadError represents an error related to one upload batch
type UploadError struct {
	Slug string
	Op   string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload operation %s failed for slug %s: %v", e.Op, e.Slug, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ArchiveError carries the slug and file key at which an in-flight archive
// build failed. The transport truncates the stream; the error is only for
// server-side logging.
type ArchiveError struct {
	Slug string
	Key  string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive for slug %s aborted at key %s: %v", e.Slug, e.Key, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrArchiveAborted) match any archive failure
func (e *ArchiveError) Is(target error) bool {
	return target == ErrArchiveAborted
}
