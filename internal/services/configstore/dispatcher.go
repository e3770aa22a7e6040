package configstore

import (
	"sync"

	"github.com/ternarybob/cadence/internal/interfaces"
)

// notification is one document change queued for delivery
type notification struct {
	dataID    string
	content   string
	listeners []interfaces.ConfigListener
}

// dispatcher delivers document change callbacks serially per data id and
// in receive order, so two pushes for the same document never race. Each
// data id gets its own queue goroutine; distinct data ids are independent.
type dispatcher struct {
	mu     sync.Mutex
	queues map[string]chan notification
	wg     sync.WaitGroup
	closed bool
}

const dispatchQueueDepth = 64

func newDispatcher() *dispatcher {
	return &dispatcher{
		queues: make(map[string]chan notification),
	}
}

// submit enqueues a change for delivery. Drops silently after close.
func (d *dispatcher) submit(dataID, content string, listeners []interfaces.ConfigListener) {
	if len(listeners) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	queue, ok := d.queues[dataID]
	if !ok {
		queue = make(chan notification, dispatchQueueDepth)
		d.queues[dataID] = queue
		d.wg.Add(1)
		go d.drain(queue)
	}

	// The send stays under the lock: close() closes the channels under
	// the same lock, so a queue can never be closed between the closed
	// check and the send.
	queue <- notification{dataID: dataID, content: content, listeners: listeners}
}

func (d *dispatcher) drain(queue chan notification) {
	defer d.wg.Done()
	for n := range queue {
		for _, listener := range n.listeners {
			listener(n.dataID, n.content)
		}
	}
}

// close stops all queues after draining pending notifications
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	queues := d.queues
	d.queues = make(map[string]chan notification)
	d.mu.Unlock()

	for _, queue := range queues {
		close(queue)
	}
	d.wg.Wait()
}
