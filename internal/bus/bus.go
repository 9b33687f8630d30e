package bus

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/codecrew/internal/logging"
)

// subscription represents a registered message handler.
type subscription struct {
	id       string
	receiver string
	handler  Handler
}

// Bus is a synchronous publish/subscribe dispatcher with an append-only
// history and an audit-only pull queue.
type Bus struct {
	mu            sync.Mutex
	subscriptions map[string][]subscription // receiver -> subscriptions
	history       []Message
	queue         []Message
	nextID        atomic.Uint64

	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscriptions: make(map[string][]subscription),
		logger:        logging.NopLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for messages addressed to receiverID.
// Subscribing under Broadcast receives every message.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(receiverID string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.subscriptions[receiverID] = append(b.subscriptions[receiverID], subscription{
		id:       id,
		receiver: receiverID,
		handler:  handler,
	})
	return id
}

// SubscribeReceiver registers r.HandleMessage for messages addressed to receiverID.
func (b *Bus) SubscribeReceiver(receiverID string, r Receiver) string {
	return b.Subscribe(receiverID, r.HandleMessage)
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for receiver, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				b.subscriptions[receiver] = slices.Delete(slices.Clone(subs), i, i+1)
				return true
			}
		}
	}
	return false
}

// Publish records msg and delivers it to subscribers. An empty ID is filled
// with a UUID and a zero Timestamp with the current time; the stored message
// is returned.
//
// The message is appended to the history and the pull queue before any
// handler runs. Exact-receiver handlers are then called, followed by wildcard
// handlers, each in registration order. Publishing from inside a handler
// recurses; see the package documentation.
func (b *Bus) Publish(msg Message) Message {
	msg = msg.Clone()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	b.mu.Lock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}
	b.history = append(b.history, msg)
	b.queue = append(b.queue, msg)

	var exact []subscription
	if !msg.IsBroadcast() {
		exact = slices.Clone(b.subscriptions[msg.Receiver])
	}
	wildcard := slices.Clone(b.subscriptions[Broadcast])
	b.mu.Unlock()

	for _, sub := range exact {
		b.safeCall(sub, msg)
	}
	for _, sub := range wildcard {
		b.safeCall(sub, msg)
	}
	return msg.Clone()
}

// safeCall invokes a handler and recovers from any panics so that one
// misbehaving handler cannot block delivery to the others.
func (b *Bus) safeCall(sub subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("message handler panicked",
				"subscription", sub.id,
				"receiver", sub.receiver,
				"message_id", msg.ID,
				"kind", string(msg.Kind),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	sub.handler(msg.Clone())
}

// History returns a copy of every message published so far, oldest first.
func (b *Bus) History() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, len(b.history))
	for i, m := range b.history {
		out[i] = m.Clone()
	}
	return out
}

// Next pops the oldest message from the pull queue.
func (b *Bus) Next() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return Message{}, false
	}
	msg := b.queue[0]
	b.queue[0] = Message{}
	b.queue = b.queue[1:]
	return msg.Clone(), true
}

// Drain empties the pull queue and returns its messages, oldest first.
func (b *Bus) Drain() []Message {
	b.mu.Lock()
	queued := b.queue
	b.queue = nil
	b.mu.Unlock()

	out := make([]Message, len(queued))
	for i, m := range queued {
		out[i] = m.Clone()
	}
	return out
}

// Pending returns the number of messages waiting on the pull queue.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}
