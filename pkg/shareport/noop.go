package shareport

import "context"

// noopNotifier discards all notifications. Useful for library use and
// tests where no mail transport is configured.
type noopNotifier struct{}

// NewNoopNotifier creates a Notifier that does nothing
func NewNoopNotifier() Notifier {
	return noopNotifier{}
}

func (noopNotifier) DownloadOccurred(ctx context.Context, slug string, fileCount int) error {
	return nil
}

func (noopNotifier) UploadCommitted(ctx context.Context, meta *UploadMetadata, recipient string) error {
	return nil
}
