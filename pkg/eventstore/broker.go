package eventstore

import (
	"sync"

	"github.com/cuemby/task-registry/pkg/types"
	"github.com/google/uuid"
)

// Subscription is a channel that receives events as they are recorded.
// Receivers must not close it themselves; call Broker.Unsubscribe instead.
type Subscription chan types.TaskEvent

// Broker fans a Store's recorded events out to live subscribers, in
// addition to their durable append to the JSONL log. It never persists
// anything itself and holds no state beyond the current subscriber set;
// a subscriber that joins after an event was recorded never sees it — use
// Store.GetAll for history.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]Subscription
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[string]Subscription)}
}

// Subscribe registers a new listener and returns it along with an id for
// later Unsubscribe calls. The channel is buffered so a slow subscriber
// cannot block Publish; events are dropped for that subscriber once its
// buffer is full.
func (b *Broker) Subscribe() (string, Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	sub := make(Subscription, 64)
	b.subscribers[id] = sub
	return id, sub
}

// Unsubscribe removes and closes the subscription registered under id.
// Unsubscribing an unknown id is a no-op.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub)
	}
}

// Publish delivers event to every current subscriber without blocking.
func (b *Broker) Publish(event types.TaskEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount reports how many listeners are currently attached.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
