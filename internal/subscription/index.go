// Package subscription maintains the topic -> connection index used to route
// events. The index is purely in-memory and derived: it can always be
// rebuilt from the set of currently-open connections.
package subscription

import (
	"sync"

	"github.com/fanstage/live-service/internal/domain"
)

// Index maps topics to the connection ids interested in them. A reverse
// index keeps DropConnection proportional to the number of topics that
// connection joined, not the total number of topics.
type Index struct {
	mu     sync.RWMutex
	topics map[domain.Topic]map[string]struct{}
	conns  map[string]map[domain.Topic]struct{}
}

// NewIndex creates an empty subscription index.
func NewIndex() *Index {
	return &Index{
		topics: make(map[domain.Topic]map[string]struct{}),
		conns:  make(map[string]map[domain.Topic]struct{}),
	}
}

// Subscribe adds a connection to a topic. Re-subscribing an existing pair
// is a no-op.
func (i *Index) Subscribe(topic domain.Topic, connID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	subs, ok := i.topics[topic]
	if !ok {
		subs = make(map[string]struct{})
		i.topics[topic] = subs
	}
	subs[connID] = struct{}{}

	topics, ok := i.conns[connID]
	if !ok {
		topics = make(map[domain.Topic]struct{})
		i.conns[connID] = topics
	}
	topics[topic] = struct{}{}
}

// Unsubscribe removes a connection from a topic. Unknown pairs are no-ops.
func (i *Index) Unsubscribe(topic domain.Topic, connID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.remove(topic, connID)
}

// DropConnection removes the connection from every topic it belongs to.
// Called by the registry's close hook so teardown stays symmetric.
func (i *Index) DropConnection(connID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for topic := range i.conns[connID] {
		i.remove(topic, connID)
	}
}

// SubscribersOf returns a snapshot of the connection ids subscribed to a
// topic. The snapshot is safe to iterate while the index mutates.
func (i *Index) SubscribersOf(topic domain.Topic) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	subs, ok := i.topics[topic]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	return ids
}

// IsSubscribed reports whether the pair is currently in the index.
func (i *Index) IsSubscribed(topic domain.Topic, connID string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.topics[topic][connID]
	return ok
}

// TopicsOf returns a snapshot of the topics a connection joined.
func (i *Index) TopicsOf(connID string) []domain.Topic {
	i.mu.RLock()
	defer i.mu.RUnlock()

	topics, ok := i.conns[connID]
	if !ok {
		return nil
	}
	out := make([]domain.Topic, 0, len(topics))
	for t := range topics {
		out = append(out, t)
	}
	return out
}

// remove deletes one pair from both directions. Caller holds the lock.
func (i *Index) remove(topic domain.Topic, connID string) {
	if subs, ok := i.topics[topic]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(i.topics, topic)
		}
	}
	if topics, ok := i.conns[connID]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(i.conns, connID)
		}
	}
}
