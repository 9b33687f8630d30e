package bus

import (
	"maps"
	"time"
)

// Broadcast is the reserved receiver address that matches every message.
const Broadcast = "*"

// Kind classifies a message.
type Kind string

const (
	KindAssignment   Kind = "assignment"
	KindStatusUpdate Kind = "status_update"
	KindSubmission   Kind = "submission"
	KindReviewResult Kind = "review_result"
	KindError        Kind = "error"
	KindCompletion   Kind = "completion"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Message is a record of inter-component communication. Once published a
// message is never mutated; the bus hands out copies.
type Message struct {
	ID            string         `json:"id"`
	Kind          Kind           `json:"kind"`
	Sender        string         `json:"sender"`
	Receiver      string         `json:"receiver"`
	Content       map[string]any `json:"content,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// Clone returns a copy of m with its own Content map.
func (m Message) Clone() Message {
	m.Content = maps.Clone(m.Content)
	return m
}

// IsBroadcast reports whether the message is addressed to every receiver.
func (m Message) IsBroadcast() bool {
	return m.Receiver == Broadcast
}

// Handler is a function that handles a published message.
type Handler func(Message)

// Receiver is implemented by components that want the messages addressed to
// them. The orchestrator subscribes registered collaborators that implement it.
type Receiver interface {
	HandleMessage(Message)
}
