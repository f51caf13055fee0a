// Package notify fans job-status events out to live subscribers.
package notify

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mlopezfr/tenderflow/pkg/models"
)

// Message is one push event. Delivery is at-most-once and non-durable: a
// subscriber connecting after a publish misses it.
type Message struct {
	Type         string           `json:"type"`
	JobID        uuid.UUID        `json:"job_id"`
	TenderID     uuid.UUID        `json:"tender_id"`
	Status       models.JobStatus `json:"status"`
	Result       json.RawMessage  `json:"result,omitempty"`
	ErrorMessage string           `json:"error,omitempty"`
}

// Registry multiplexes push channels by topic (a job id or a user id). It is
// injected everywhere it is needed; there is no package-level instance. A
// single mutex guards topic mutation — contention is low, subscribers are
// few.
type Registry struct {
	mu     sync.Mutex
	topics map[string]map[chan Message]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]map[chan Message]struct{})}
}

// Subscribe registers ch under topic. The channel should be buffered; a
// publish that cannot be delivered immediately treats the subscriber as
// dead.
func (r *Registry) Subscribe(topic string, ch chan Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topics[topic]
	if !ok {
		subs = make(map[chan Message]struct{})
		r.topics[topic] = subs
	}
	subs[ch] = struct{}{}
}

// Unsubscribe removes ch from topic, dropping the topic entirely once its
// last subscriber is gone so the map never grows unbounded.
func (r *Registry) Unsubscribe(topic string, ch chan Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(topic, ch)
}

// Publish delivers msg to every channel subscribed to topic at call time.
// The per-channel send is non-blocking: a full or abandoned channel is
// removed on the spot and never delays delivery to the others.
func (r *Registry) Publish(topic string, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishLocked(topic, msg)
}

// Broadcast publishes msg to every topic.
func (r *Registry) Broadcast(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic := range r.topics {
		r.publishLocked(topic, msg)
	}
}

// SubscriberCount returns how many channels are registered under topic.
func (r *Registry) SubscriberCount(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics[topic])
}

// Shutdown closes every subscriber channel and empties the registry.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic, subs := range r.topics {
		for ch := range subs {
			close(ch)
		}
		delete(r.topics, topic)
	}
}

func (r *Registry) publishLocked(topic string, msg Message) {
	var dead []chan Message
	for ch := range r.topics[topic] {
		select {
		case ch <- msg:
		default:
			dead = append(dead, ch)
		}
	}

	for _, ch := range dead {
		slog.Warn("dropping slow notification subscriber", "topic", topic)
		r.remove(topic, ch)
	}
}

func (r *Registry) remove(topic string, ch chan Message) {
	subs, ok := r.topics[topic]
	if !ok {
		return
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(r.topics, topic)
	}
}
