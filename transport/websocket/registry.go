package websocket

import (
	"sync"

	"github.com/google/uuid"
	log15 "github.com/inconshreveable/log15/v3"
)

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// Handler receives the raw body of every frame delivered on a topic.
type Handler func(body []byte)

// UnsubscribeFunc removes one registered handler. Calling it more than once
// is a no-op.
type UnsubscribeFunc func()

// Registry multiplexes one connection across many independent topic
// subscribers. Registration is intent-based: Subscribe always records the
// (topic, handler) pair, and the server-side subscription is issued when the
// connection is (or becomes) live. After a reconnect every registered topic is
// re-issued before further delivery, so consumers never silently stop
// receiving updates after a transient blip.
type Registry struct {
	conn *Conn
	log  log15.Logger

	mu     sync.Mutex
	topics map[string]map[string]Handler // topic -> subscription id -> handler
}

func newRegistry(conn *Conn, logger log15.Logger) *Registry {
	return &Registry{
		conn:   conn,
		log:    logger.New("component", "registry"),
		topics: make(map[string]map[string]Handler),
	}
}

// Subscribe registers a handler for a topic and returns its unsubscribe
// function. Multiple handlers may watch the same topic; each receives every
// message independently and unsubscribing one does not affect the others.
// When the connection is not yet live the registration is queued and applied
// automatically on the transition to Connected.
func (r *Registry) Subscribe(topic string, handler Handler) UnsubscribeFunc {
	id := uuid.NewString()

	r.mu.Lock()
	first := len(r.topics[topic]) == 0
	if r.topics[topic] == nil {
		r.topics[topic] = make(map[string]Handler)
	}
	r.topics[topic][id] = handler
	r.mu.Unlock()

	if first {
		if err := r.conn.sendControl(actionSubscribe, topic); err != nil {
			// Not connected yet: the intent is recorded and replayed by
			// resubscribeAll once the channel comes up.
			r.log.Debug("subscription queued", "topic", topic)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.unsubscribe(topic, id) })
	}
}

func (r *Registry) unsubscribe(topic, id string) {
	r.mu.Lock()
	handlers, ok := r.topics[topic]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(handlers, id)
	last := len(handlers) == 0
	if last {
		delete(r.topics, topic)
	}
	r.mu.Unlock()

	if last {
		if err := r.conn.sendControl(actionUnsubscribe, topic); err != nil {
			r.log.Debug("unsubscribe not sent", "topic", topic, "err", err)
		}
	}
}

// TopicCount reports the number of topics with at least one handler.
func (r *Registry) TopicCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

// resubscribeAll re-issues every registered topic against the current
// connection. The read pump starts delivering only after this returns.
func (r *Registry) resubscribeAll() {
	r.mu.Lock()
	topics := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}
	r.mu.Unlock()

	for _, topic := range topics {
		if err := r.conn.sendControl(actionSubscribe, topic); err != nil {
			r.log.Error("resubscribe failed", "topic", topic, "err", err)
		}
	}
}

// dispatch delivers one frame body to every handler registered for the topic
// at delivery time. A handler that unsubscribed before this frame is skipped,
// and a panicking handler is contained so the others still run.
func (r *Registry) dispatch(topic string, body []byte) {
	r.mu.Lock()
	handlers := r.topics[topic]
	ids := make([]string, 0, len(handlers))
	for id := range handlers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.mu.Lock()
		handler, ok := r.topics[topic][id]
		r.mu.Unlock()
		if !ok {
			continue
		}
		r.invoke(topic, handler, body)
	}
}

func (r *Registry) invoke(topic string, handler Handler, body []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panicked", "topic", topic, "panic", rec)
		}
	}()
	handler(body)
}
