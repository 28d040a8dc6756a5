// Package bus provides publish/subscribe messaging between orchestrator
// components.
//
// # Overview
//
// The orchestrator announces terminal tasks as messages rather than
// invoking callbacks under its own locks: completion is published on a
// subject, and the notification consumer processes events from its
// subscription at its own pace. A drop-on-full buffer keeps slow
// consumers from ever blocking the completion path.
//
// # Available Implementations
//
//   - MemoryBus: in-memory channels for single-process use and tests
//   - NATSBus: the same contract over a NATS connection, for setups
//     where another process wants to observe task completions
//
// # Usage
//
// Publish and consume terminal-task events:
//
//	b := bus.NewMemoryBus(bus.DefaultConfig())
//
//	sub, _ := b.Subscribe(tasks.SubjectTerminal)
//	go func() {
//	    for msg := range sub.Messages() {
//	        // Handle event
//	    }
//	}()
//
//	data, _ := event.Marshal()
//	b.Publish(tasks.SubjectTerminal, data)
//
// # Delivery Semantics
//
// Delivery is at-most-once: a subscriber with a full buffer loses the
// message. Consumers that must not miss a completion reconcile against
// the task store, which is written before the event is published.
package bus
