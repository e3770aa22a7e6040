package interfaces

import "context"

// ConfigListener receives the full updated document content when a
// subscribed data id changes.
type ConfigListener func(dataID, content string)

// ConfigClient is the remote contract of the external configuration
// service: get/publish/subscribe over named documents.
type ConfigClient interface {
	// GetConfig fetches a document by data id. Returns "" with no error
	// when the document does not exist.
	GetConfig(ctx context.Context, dataID, group string) (string, error)

	// PublishConfig pushes a document. Returns false when the remote
	// rejected the publication.
	PublishConfig(ctx context.Context, dataID, group, content string) (bool, error)

	// AddListener subscribes to changes of a data id. The callback runs
	// serially per data id, in receive order.
	AddListener(dataID, group string, listener ConfigListener) error

	// RemoveListener drops all listeners for a data id. Best-effort.
	RemoveListener(dataID, group string)

	// Close releases the client and its subscriptions
	Close() error
}
