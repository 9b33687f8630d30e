// Package bus provides the publish/subscribe channel used between the
// orchestrator and its collaborators, and the audit trail of everything that
// was said during a run.
//
// # Main Types
//
//   - [Message]: an immutable record of inter-component communication
//   - [Bus]: synchronous dispatcher with an append-only history
//   - [Handler]: function type for message handlers (func(Message))
//   - [Receiver]: implemented by collaborators that want their messages
//   - [Journal]: optional JSONL sink persisting the history to disk
//
// # Delivery
//
// Publish appends the message to the history before any handler runs, so a
// handler always finds the message it is observing in [Bus.History]. Handlers
// registered for the exact receiver are called first, then wildcard handlers
// registered under [Broadcast], each group in registration order. A message
// addressed to [Broadcast] reaches each wildcard handler exactly once.
//
// # Re-entrancy
//
// Delivery is synchronous within Publish. A handler that publishes again
// recurses into Publish before the outer call returns, and the inner message
// is delivered (and recorded) before the remaining outer handlers run. The bus
// does not guard against this; handlers that publish must tolerate it and
// must not publish unconditionally in response to their own messages.
//
// # Pull Queue
//
// Every published message is also enqueued on a pull queue read through
// [Bus.Next] and [Bus.Drain]. The queue is an audit/replay log only: nothing
// in the orchestrator consumes it to decide what runs next. Dispatch is driven
// by the task graph's ready frontier.
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers are called outside the bus lock
// and protected against panics: a panicking handler is logged and does not
// prevent the remaining handlers from being called.
//
// # Basic Usage
//
//	b := bus.New(bus.WithLogger(logger))
//
//	b.Subscribe("coder", func(m bus.Message) {
//	    fmt.Println("coder got", m.Kind)
//	})
//	b.Subscribe(bus.Broadcast, func(m bus.Message) {
//	    fmt.Println("audit", m.ID)
//	})
//
//	b.Publish(bus.Message{Kind: bus.KindAssignment, Sender: "orchestrator", Receiver: "coder"})
package bus
