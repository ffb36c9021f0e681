// Package live delivers ranking and score updates to subscribers.
//
// A Hub is a topic keyed fan-out. Each subscriber remembers the revision of
// the last message it received and drops anything at or below it, so a
// subscriber that joined with a snapshot never sees older updates.
package live

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

const defaultSendBuffer = 64

// Subscriber is one live connection bound to a topic.
type Subscriber struct {
	ID    string
	Topic string

	mu     sync.Mutex
	send   chan []byte
	last   int64
	closed bool
}

// C returns the outgoing message stream. It is closed when the subscriber leaves.
func (s *Subscriber) C() <-chan []byte { return s.send }

// Revision returns the revision of the last delivered message.
func (s *Subscriber) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// offer queues data unless it is stale. It reports false only when the
// buffer is full.
func (s *Subscriber) offer(revision int64, data []byte, force bool) (delivered, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, true
	}
	if !force && revision <= s.last {
		return false, true
	}
	select {
	case s.send <- data:
		if revision > s.last {
			s.last = revision
		}
		return true, true
	default:
		return false, false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// Hub routes messages to subscribers by topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
	total  int

	sendBuffer int
	logger     logger.Logger
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		topics:     make(map[string]map[*Subscriber]struct{}),
		sendBuffer: defaultSendBuffer,
		logger:     logger.Get().Named("live"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join subscribes to topic. Messages with a revision at or below revision are
// dropped; pass the revision of the snapshot the subscriber is primed with.
func (h *Hub) Join(topic string, revision int64) *Subscriber {
	s := &Subscriber{
		ID:    uuid.NewString(),
		Topic: topic,
		send:  make(chan []byte, h.sendBuffer),
		last:  revision,
	}
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
	h.total++
	n := h.total
	h.mu.Unlock()
	metrics.UpdateLiveSubscribers(n)
	return s
}

// Leave unsubscribes s and closes its stream. Calling it twice is harmless.
func (h *Hub) Leave(s *Subscriber) {
	h.mu.Lock()
	if subs, ok := h.topics[s.Topic]; ok {
		if _, member := subs[s]; member {
			delete(subs, s)
			h.total--
			if len(subs) == 0 {
				delete(h.topics, s.Topic)
			}
		}
	}
	n := h.total
	h.mu.Unlock()
	s.close()
	metrics.UpdateLiveSubscribers(n)
}

// Prime delivers the join snapshot to s regardless of its revision.
func (h *Hub) Prime(s *Subscriber, msg types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, ok := s.offer(msg.Revision, data, true); !ok {
		h.drop(context.Background(), s)
	}
	return nil
}

// Publish sends msg to every subscriber of topic whose last revision is older
// than msg.Revision. Subscribers with a full buffer are disconnected. It
// returns the number of subscribers that received the message.
func (h *Hub) Publish(ctx context.Context, topic string, msg types.Message) (int, error) {
	h.mu.RLock()
	subs := h.topics[topic]
	targets := make([]*Subscriber, 0, len(subs))
	for s := range subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0, nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, s := range targets {
		sent, ok := s.offer(msg.Revision, data, false)
		if !ok {
			h.drop(ctx, s)
			continue
		}
		if sent {
			delivered++
			metrics.RecordLiveMessage()
		}
	}
	return delivered, nil
}

func (h *Hub) drop(ctx context.Context, s *Subscriber) {
	h.logger.Warn(ctx, "dropping slow subscriber",
		logger.String("subscriber", s.ID),
		logger.String("topic", s.Topic))
	metrics.RecordLiveDropped()
	h.Leave(s)
}

// Count returns the number of subscribers of topic.
func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Total returns the number of subscribers across topics.
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	all := make([]*Subscriber, 0, h.total)
	for _, subs := range h.topics {
		for s := range subs {
			all = append(all, s)
		}
	}
	h.topics = make(map[string]map[*Subscriber]struct{})
	h.total = 0
	h.mu.Unlock()
	for _, s := range all {
		s.close()
	}
	metrics.UpdateLiveSubscribers(0)
}
