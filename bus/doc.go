// # Overview
//
// A Bus connects endpoints that run on their own goroutines. An endpoint
// registers to get a mailbox, subscribes to the topics it handles, and then
// loops on AwaitMessage. Messages never call into an endpoint directly.
//
// # Message kinds
//
// Requests expect exactly one response. A request type embeds Expects[T],
// where T is the response type, and is always sent as a pointer. It must
// carry at least one field of non-zero size, since the pointer is its
// identity:
//
//	type DetectRequest struct {
//	    bus.Expects[DetectResult]
//	    Tick int
//	}
//
//	func (*DetectRequest) Topic() string { return "sim.detect" }
//
// Notifications are fire-and-forget. A notification type embeds Broadcast:
//
//	type TickBroadcast struct {
//	    bus.Broadcast
//	    Tick int
//	}
//
//	func (TickBroadcast) Topic() string { return "sim.tick" }
//
// # Patterns
//
// Request/response, routed round-robin to one subscriber:
//
//	f, err := bus.SendRequest[DetectResult](b, &DetectRequest{Tick: 3})
//	if errors.Is(err, bus.ErrNoSubscribers) {
//	    // nobody handles the topic; no future was created
//	}
//	result, ok := f.GetTimeout(time.Second)
//
//	// On the handling endpoint
//	msg, _ := b.AwaitMessage(ctx, "tracker-1")
//	req := msg.(*DetectRequest)
//	bus.Complete[DetectResult](b, req, DetectResult{Tick: req.Tick})
//
// Broadcast, delivered to every current subscriber:
//
//	n, _ := b.SendNotification(TickBroadcast{Tick: 3})
//
// # Guarantees
//
//   - Each routed request is enqueued in exactly one mailbox.
//   - Subscribers of a request topic are served in rotation; a new
//     subscriber joins at the end of the rotation.
//   - Messages from one sender to one mailbox are taken in send order.
//   - A request is correlated with its future by pointer identity. A second
//     Complete for the same request is ignored.
//   - Unregister discards queued messages, drops every subscription held by
//     the endpoint, and releases a blocked AwaitMessage. Futures it was
//     expected to resolve stay pending; senders use GetTimeout.
package bus
