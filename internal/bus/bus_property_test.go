package bus

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// TestProperty_HistoryContainsMessageBeforeHandlers verifies that every
// handler, exact or wildcard, observes its message already in history, for
// arbitrary subscription layouts.
func TestProperty_HistoryContainsMessageBeforeHandlers(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b := New()
		receivers := []string{"planner", "coder", "reviewer", Broadcast}

		violations := 0
		observed := 0
		subs := rapid.IntRange(1, 8).Draw(rt, "num_subs")
		for i := 0; i < subs; i++ {
			recv := rapid.SampledFrom(receivers).Draw(rt, "receiver")
			b.Subscribe(recv, func(m Message) {
				observed++
				found := false
				for _, h := range b.History() {
					if h.ID == m.ID {
						found = true
					}
				}
				if !found {
					violations++
				}
			})
		}

		n := rapid.IntRange(1, 20).Draw(rt, "num_msgs")
		for i := 0; i < n; i++ {
			b.Publish(Message{
				Kind:     KindStatusUpdate,
				Receiver: rapid.SampledFrom(receivers).Draw(rt, "to"),
				Content:  map[string]any{"seq": fmt.Sprint(i)},
			})
		}

		if violations > 0 {
			rt.Fatalf("%d of %d deliveries happened before the message was in history", violations, observed)
		}
		history := b.History()
		if len(history) != n {
			rt.Fatalf("len(History()) = %d, want %d", len(history), n)
		}
		for i, m := range history {
			if m.Content["seq"] != fmt.Sprint(i) {
				rt.Fatalf("History()[%d] seq = %v, want %d", i, m.Content["seq"], i)
			}
		}
	})
}
