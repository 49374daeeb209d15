package bus

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vinayprograms/simbus/future"
	"github.com/vinayprograms/simbus/logging"
)

// Bus routes messages between registered endpoints in a single process.
// It is safe for concurrent use. There is no global lock: the endpoint
// directory, each topic's subscriber list, the pending-request table and
// each mailbox are guarded separately.
type Bus struct {
	config Config
	logger *logging.Logger

	mu        sync.RWMutex
	endpoints map[EndpointID]*mailbox
	closed    atomic.Bool

	subs    *subscriptions
	pending *pendingTable

	routed     atomic.Uint64
	unrouted   atomic.Uint64
	notified   atomic.Uint64
	delivered  atomic.Uint64
	completed  atomic.Uint64
	staleCalls atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for lifecycle and routing events.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l.WithComponent("bus")
		}
	}
}

// New creates a message bus.
func New(cfg Config, opts ...Option) *Bus {
	if cfg.MailboxCapacity <= 0 {
		cfg.MailboxCapacity = DefaultConfig().MailboxCapacity
	}

	b := &Bus{
		config:    cfg,
		logger:    logging.Discard(),
		endpoints: make(map[EndpointID]*mailbox),
		subs:      newSubscriptions(),
		pending:   newPendingTable(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register creates an empty mailbox for id. Registering twice is a no-op.
func (b *Bus) Register(id EndpointID) error {
	if id == "" {
		return ErrInvalidEndpoint
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return ErrClosed
	}
	if _, ok := b.endpoints[id]; ok {
		return nil
	}
	b.endpoints[id] = newMailbox(b.config.MailboxCapacity)

	b.logger.Debug("endpoint_registered", map[string]interface{}{
		"endpoint": id,
	})
	return nil
}

// Unregister removes id's mailbox and every subscription it holds.
// Undelivered messages are discarded and a blocked AwaitMessage returns
// ErrNotRegistered. Futures the endpoint was expected to resolve stay
// pending. It returns false if id was not registered.
func (b *Bus) Unregister(id EndpointID) bool {
	b.mu.Lock()
	mb, ok := b.endpoints[id]
	if ok {
		delete(b.endpoints, id)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}

	// Close before sweeping so that concurrent senders holding a stale
	// entry are refused by the mailbox itself.
	dropped := mb.close()
	b.subs.removeEverywhere(id, mb)

	b.logger.Debug("endpoint_unregistered", map[string]interface{}{
		"endpoint": id,
		"dropped":  dropped,
	})
	return true
}

// IsRegistered reports whether id currently has a mailbox.
func (b *Bus) IsRegistered(id EndpointID) bool {
	return b.mailbox(id) != nil
}

func (b *Bus) mailbox(id EndpointID) *mailbox {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.endpoints[id]
}

// SubscribeRequest adds id to topic's round-robin list.
// Subscribing twice is a no-op. The endpoint must be registered.
func (b *Bus) SubscribeRequest(topic string, id EndpointID) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	mb := b.mailbox(id)
	if mb == nil {
		return ErrNotRegistered
	}

	r := b.subs.rotation(topic, true)
	r.add(member{id: id, mb: mb})

	// An Unregister that swept before our add has already closed mb.
	if mb.isClosed() {
		r.remove(id, mb)
		return ErrNotRegistered
	}
	return nil
}

// SubscribeNotification adds id to topic's subscriber set.
// Subscribing twice is a no-op. The endpoint must be registered.
func (b *Bus) SubscribeNotification(topic string, id EndpointID) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	mb := b.mailbox(id)
	if mb == nil {
		return ErrNotRegistered
	}

	l := b.subs.listeners(topic, true)
	l.add(member{id: id, mb: mb})

	if mb.isClosed() {
		l.remove(id, mb)
		return ErrNotRegistered
	}
	return nil
}

// UnsubscribeRequest removes id from topic's round-robin list.
func (b *Bus) UnsubscribeRequest(topic string, id EndpointID) bool {
	r := b.subs.rotation(topic, false)
	if r == nil {
		return false
	}
	return r.remove(id, nil)
}

// UnsubscribeNotification removes id from topic's subscriber set.
func (b *Bus) UnsubscribeNotification(topic string, id EndpointID) bool {
	l := b.subs.listeners(topic, false)
	if l == nil {
		return false
	}
	return l.remove(id, nil)
}

// SendRequest routes req to the next subscriber of its topic and returns
// the future its response will resolve. It returns ErrNoSubscribers, and
// creates no future, when the topic has no live subscriber.
func SendRequest[T any](b *Bus, req Request[T]) (*future.Future[T], error) {
	var f *future.Future[T]
	_, err := b.route(req, func() any {
		f = future.New[T]()
		return f
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// route selects a live subscriber round-robin and enqueues req into its
// mailbox. Selection, pending-table insert and enqueue happen under the
// topic's rotation lock, so concurrent sends on a topic never share a slot.
func (b *Bus) route(req Message, newFuture func() any) (EndpointID, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}
	if err := validateRequest(req); err != nil {
		return "", err
	}

	r := b.subs.rotation(req.Topic(), false)
	if r == nil {
		b.unrouted.Add(1)
		return "", ErrNoSubscribers
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var f any
	n := len(r.members)
	for i := 0; i < n; i++ {
		idx := (r.next + i) % n
		m := r.members[idx]
		if m.mb.isClosed() {
			continue
		}

		if f == nil {
			f = newFuture()
		}
		if !b.pending.insert(req, f) {
			return "", ErrRequestInFlight
		}
		if !m.mb.put(req) {
			// Lost a race with Unregister; try the next candidate.
			b.pending.take(req, nil)
			continue
		}

		r.next = (idx + 1) % n
		b.routed.Add(1)
		return m.id, nil
	}

	b.unrouted.Add(1)
	return "", ErrNoSubscribers
}

// SendNotification delivers n to every endpoint subscribed to its topic at
// the time of the call. It returns the number of mailboxes it reached.
func (b *Bus) SendNotification(n Notification) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	if n == nil {
		return 0, ErrInvalidTopic
	}
	if err := ValidateTopic(n.Topic()); err != nil {
		return 0, err
	}

	b.notified.Add(1)

	l := b.subs.listeners(n.Topic(), false)
	if l == nil {
		return 0, nil
	}

	delivered := 0
	for _, m := range l.snapshot() {
		if m.mb.put(n) {
			delivered++
		}
	}
	b.delivered.Add(uint64(delivered))
	return delivered, nil
}

// Complete resolves the future waiting on req with v and forgets req.
// It returns false, and does nothing else, if req is not pending. An entry
// whose future does not carry T is left pending.
func Complete[T any](b *Bus, req Request[T], v T) bool {
	if validateRequest(req) != nil {
		return false
	}

	var f *future.Future[T]
	raw, ok := b.pending.take(req, func(e any) bool {
		var match bool
		f, match = e.(*future.Future[T])
		return match
	})
	if !ok {
		if raw == nil {
			b.staleCalls.Add(1)
		}
		return false
	}

	b.completed.Add(1)
	return f.Resolve(v)
}

// AwaitMessage blocks until id's mailbox has a message and returns it.
// It returns ErrNotRegistered if id is not registered or is unregistered
// while waiting, and ctx.Err() if ctx ends first.
func (b *Bus) AwaitMessage(ctx context.Context, id EndpointID) (Message, error) {
	mb := b.mailbox(id)
	if mb == nil {
		return nil, ErrNotRegistered
	}
	return mb.wait(ctx)
}

// MailboxLen returns the number of messages waiting for id.
func (b *Bus) MailboxLen(id EndpointID) int {
	mb := b.mailbox(id)
	if mb == nil {
		return 0
	}
	return mb.len()
}

// Subscribers lists the live request subscribers of topic in rotation order.
func (b *Bus) Subscribers(topic string) []EndpointID {
	r := b.subs.rotation(topic, false)
	if r == nil {
		return nil
	}
	return r.ids()
}

// Listeners lists the live notification subscribers of topic.
func (b *Bus) Listeners(topic string) []EndpointID {
	l := b.subs.listeners(topic, false)
	if l == nil {
		return nil
	}
	return l.ids()
}

// Endpoints lists registered endpoints in sorted order.
func (b *Bus) Endpoints() []EndpointID {
	b.mu.RLock()
	ids := make([]EndpointID, 0, len(b.endpoints))
	for id := range b.endpoints {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Pending returns the number of requests awaiting completion.
func (b *Bus) Pending() int {
	return b.pending.len()
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	registered := len(b.endpoints)
	b.mu.RUnlock()

	return Stats{
		RequestsRouted:         b.routed.Load(),
		RequestsUnrouted:       b.unrouted.Load(),
		NotificationsSent:      b.notified.Load(),
		NotificationsDelivered: b.delivered.Load(),
		Completions:            b.completed.Load(),
		StaleCompletions:       b.staleCalls.Load(),
		Registered:             registered,
		Pending:                b.pending.len(),
	}
}

// Close unregisters every endpoint. Later registrations and sends fail with
// ErrClosed. Pending futures are left as they are.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed.Swap(true) {
		b.mu.Unlock()
		return nil
	}
	ids := make([]EndpointID, 0, len(b.endpoints))
	for id := range b.endpoints {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Unregister(id)
	}
	return nil
}
