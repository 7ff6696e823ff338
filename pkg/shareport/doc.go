// Package shareport implements the storage and delivery core of a client
// photo delivery service. Uploads are batches of objects in a blob store,
// described by a single metadata record keyed by a URL-safe slug. The
// package provides presigned upload/download URL issuance, the two-phase
// commit of objects-then-metadata, download accounting, and the read
// operations backing the streaming archive and thumbnail endpoints.
//
// The core follows a clean architecture with interfaces for persistence
// (MetadataRepository), blob storage (BlobStore), and outbound
// notifications (Notifier). Implementations live in subpackages:
//
//   - repo/memory, repo/postgres: metadata repositories
//   - storage/memory, storage/fs, storage/s3: blob store backends
//   - archive: streaming zip assembly
//   - lifecycle: expiry sweep and orphan reconciliation
//   - ratelimit: per-client request throttling
//   - api: HTTP handlers
package shareport
