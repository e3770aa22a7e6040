package configstore

import (
	"context"
	"sync"

	"github.com/ternarybob/cadence/internal/interfaces"
)

// MemoryClient is an in-process config client used when no remote
// address is configured, and by tests. Documents live in a map; change
// listeners fire through the same serial per-data-id dispatcher as the
// remote client.
type MemoryClient struct {
	mu         sync.RWMutex
	documents  map[string]string
	listeners  map[string][]interfaces.ConfigListener
	dispatcher *dispatcher
}

// NewMemoryClient creates an empty in-memory config client
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		documents:  make(map[string]string),
		listeners:  make(map[string][]interfaces.ConfigListener),
		dispatcher: newDispatcher(),
	}
}

func docKey(dataID, group string) string {
	return group + "/" + dataID
}

// GetConfig fetches a document; "" when absent
func (c *MemoryClient) GetConfig(ctx context.Context, dataID, group string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.documents[docKey(dataID, group)], nil
}

// PublishConfig stores a document and notifies subscribers
func (c *MemoryClient) PublishConfig(ctx context.Context, dataID, group, content string) (bool, error) {
	c.mu.Lock()
	c.documents[docKey(dataID, group)] = content
	listeners := append([]interfaces.ConfigListener(nil), c.listeners[docKey(dataID, group)]...)
	c.mu.Unlock()

	c.dispatcher.submit(dataID, content, listeners)
	return true, nil
}

// AddListener subscribes to changes of a data id
func (c *MemoryClient) AddListener(dataID, group string, listener interfaces.ConfigListener) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := docKey(dataID, group)
	c.listeners[key] = append(c.listeners[key], listener)
	return nil
}

// RemoveListener drops all listeners for a data id
func (c *MemoryClient) RemoveListener(dataID, group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, docKey(dataID, group))
}

// Close releases the dispatcher
func (c *MemoryClient) Close() error {
	c.dispatcher.close()
	return nil
}
