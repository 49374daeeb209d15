// Package endpoint runs the message loop of a bus endpoint.
//
// An endpoint registers on the bus, binds handlers during a single-threaded
// init phase, and then processes its mailbox one message at a time on its
// own goroutine. A handler may reply to the request it is handling, send
// further traffic, or call Terminate to end the loop after it returns.
package endpoint

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vinayprograms/simbus/bus"
	simerrors "github.com/vinayprograms/simbus/errors"
	"github.com/vinayprograms/simbus/logging"
	"github.com/vinayprograms/simbus/telemetry"
)

// ErrAlreadyRunning is returned when handlers are bound outside the init
// phase or Run is called twice.
var ErrAlreadyRunning = simerrors.FromCode(simerrors.ErrCodeAlreadyRunning)

// Handler processes one message on the endpoint's goroutine.
type Handler func(ctx context.Context, msg bus.Message) error

// TraceCarrier is implemented by messages that carry trace context from
// sender to handler.
type TraceCarrier interface {
	TraceContext() telemetry.MapCarrier
}

const (
	stateIdle int32 = iota
	stateInit
	stateRunning
	stateStopped
)

// Endpoint is a named participant on a bus.
type Endpoint struct {
	id       bus.EndpointID
	instance string
	bus      *bus.Bus
	logger   *logging.Logger
	tracer   *telemetry.Tracer

	stopOnError bool

	state         atomic.Int32
	requests      map[string]Handler
	notifications map[string]Handler

	terminate atomic.Bool
	ready     chan struct{}
	done      chan struct{}

	processed atomic.Int64
	failures  atomic.Int64

	mu      sync.Mutex
	lastErr error
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithLogger sets the logger. The endpoint logs under its own name.
func WithLogger(l *logging.Logger) Option {
	return func(e *Endpoint) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer used for bus and handler spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Endpoint) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithStopOnError ends the loop on the first handler failure.
// By default failures are logged and the loop continues.
func WithStopOnError(stop bool) Option {
	return func(e *Endpoint) {
		e.stopOnError = stop
	}
}

// New creates an endpoint named id on b. It is not registered until Run.
func New(id bus.EndpointID, b *bus.Bus, opts ...Option) *Endpoint {
	e := &Endpoint{
		id:            id,
		instance:      uuid.NewString(),
		bus:           b,
		logger:        logging.Discard(),
		tracer:        telemetry.GetTracer(),
		requests:      make(map[string]Handler),
		notifications: make(map[string]Handler),
		ready:         make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent(string(id)).WithTraceID(e.instance)
	return e
}

// ID returns the endpoint's bus identity.
func (e *Endpoint) ID() bus.EndpointID { return e.id }

// Instance returns the unique id of this endpoint instance.
func (e *Endpoint) Instance() string { return e.instance }

// Bus returns the bus the endpoint is attached to.
func (e *Endpoint) Bus() *bus.Bus { return e.bus }

// Logger returns the endpoint's logger.
func (e *Endpoint) Logger() *logging.Logger { return e.logger }

// Ready is closed once init has finished and the loop is consuming.
func (e *Endpoint) Ready() <-chan struct{} { return e.ready }

// Done is closed when Run returns.
func (e *Endpoint) Done() <-chan struct{} { return e.done }

// Processed returns the number of messages taken from the mailbox.
func (e *Endpoint) Processed() int64 { return e.processed.Load() }

// Failures returns the number of handler failures.
func (e *Endpoint) Failures() int64 { return e.failures.Load() }

// LastError returns the most recent handler failure.
func (e *Endpoint) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Terminate asks the loop to stop after the message being handled.
// The flag is checked after each message, so calling it from outside a
// handler takes effect only once another message arrives; cancel Run's
// context to stop an idle endpoint.
func (e *Endpoint) Terminate() {
	e.terminate.Store(true)
}

// OnRequest binds h to request topic and subscribes to it. It may only be
// called from the init function passed to Run.
func (e *Endpoint) OnRequest(topic string, h Handler) error {
	if e.state.Load() != stateInit {
		return ErrAlreadyRunning
	}
	if err := e.bus.SubscribeRequest(topic, e.id); err != nil {
		return err
	}
	e.requests[topic] = h
	return nil
}

// OnNotification binds h to notification topic and subscribes to it. It
// may only be called from the init function passed to Run.
func (e *Endpoint) OnNotification(topic string, h Handler) error {
	if e.state.Load() != stateInit {
		return ErrAlreadyRunning
	}
	if err := e.bus.SubscribeNotification(topic, e.id); err != nil {
		return err
	}
	e.notifications[topic] = h
	return nil
}

// Run registers the endpoint, calls init to bind handlers, and then
// processes messages until the endpoint terminates, is unregistered, or
// ctx ends. It returns nil on Terminate or external unregister, ctx.Err()
// on cancellation, and the handler failure when WithStopOnError is set.
func (e *Endpoint) Run(ctx context.Context, init func(*Endpoint) error) error {
	if !e.state.CompareAndSwap(stateIdle, stateInit) {
		return ErrAlreadyRunning
	}
	defer close(e.done)
	defer e.state.Store(stateStopped)

	if err := e.bus.Register(e.id); err != nil {
		return err
	}

	if init != nil {
		if err := init(e); err != nil {
			e.bus.Unregister(e.id)
			e.logger.EndpointStopped(string(e.id), 0, "init_failed")
			return simerrors.Wrap(err, "endpoint "+string(e.id)+" init", simerrors.WithEndpoint(string(e.id)))
		}
	}

	e.state.Store(stateRunning)
	e.logger.EndpointStarted(string(e.id), keys(e.requests), keys(e.notifications))
	close(e.ready)

	reason, err := e.loop(ctx)
	e.logger.EndpointStopped(string(e.id), int(e.processed.Load()), reason)
	return err
}

func (e *Endpoint) loop(ctx context.Context) (string, error) {
	for {
		msg, err := e.bus.AwaitMessage(ctx, e.id)
		if err != nil {
			if errors.Is(err, bus.ErrNotRegistered) {
				return "unregistered", nil
			}
			e.bus.Unregister(e.id)
			return "canceled", err
		}

		e.processed.Add(1)
		if err := e.dispatch(ctx, msg); err != nil {
			e.recordFailure(msg.Topic(), err)
			if e.stopOnError {
				e.bus.Unregister(e.id)
				if simerrors.Is(err, simerrors.ErrCodePanic) {
					return "panicked", err
				}
				return "handler_failed", err
			}
		}

		if e.terminate.Load() {
			e.bus.Unregister(e.id)
			return "terminated", nil
		}
	}
}

// dispatch runs the handler bound to msg's topic. A panic in the handler is
// recovered and returned as an error.
func (e *Endpoint) dispatch(ctx context.Context, msg bus.Message) (err error) {
	topic := msg.Topic()

	kind, h := "request", e.requests[topic]
	if _, ok := msg.(bus.Notification); ok {
		kind, h = "notification", e.notifications[topic]
	}
	if h == nil {
		e.logger.MessageUnhandled(string(e.id), topic)
		return nil
	}

	if tc, ok := msg.(TraceCarrier); ok && tc.TraceContext() != nil {
		ctx = telemetry.ExtractContext(ctx, tc.TraceContext())
	}
	ctx, span := e.tracer.StartHandleSpan(ctx, string(e.id), topic)
	defer func() {
		if r := recover(); r != nil {
			err = simerrors.RecoverPanic(r, simerrors.WithEndpoint(string(e.id)), simerrors.WithTopic(topic))
		}
		e.tracer.EndHandleSpan(span, telemetry.HandleSpanOptions{Kind: kind, Payload: msg}, err)
	}()

	if herr := h(ctx, msg); herr != nil {
		return simerrors.HandlerFailed(string(e.id), topic, herr)
	}
	return nil
}

func (e *Endpoint) recordFailure(topic string, err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
	e.logger.HandlerFailed(string(e.id), topic, err)
	e.failures.Add(1)
}

// Broadcast sends n to every subscriber of its topic.
func (e *Endpoint) Broadcast(ctx context.Context, n bus.Notification) (int, error) {
	ctx, span := e.tracer.StartNotifySpan(ctx, string(e.id), n.Topic())
	if tc, ok := n.(TraceCarrier); ok && tc.TraceContext() != nil {
		telemetry.InjectContext(ctx, tc.TraceContext())
	}
	delivered, err := e.bus.SendNotification(n)
	e.tracer.EndNotifySpan(span, delivered, err)
	return delivered, err
}

func keys(m map[string]Handler) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
