package endpoint

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/vinayprograms/simbus/bus"
	simerrors "github.com/vinayprograms/simbus/errors"
	"github.com/vinayprograms/simbus/future"
	"github.com/vinayprograms/simbus/telemetry"
)

// HandleRequest binds fn to the topic of request type R. When fn returns
// without error its result completes the request. On error the request is
// left pending and the sender sees a timeout.
func HandleRequest[T any, R bus.Request[T]](e *Endpoint, fn func(ctx context.Context, req R) (T, error)) error {
	return e.OnRequest(topicOf[R](), func(ctx context.Context, msg bus.Message) error {
		req, ok := msg.(R)
		if !ok {
			return simerrors.InvalidInput(fmt.Sprintf("unexpected request type %T", msg))
		}
		v, err := fn(ctx, req)
		if err != nil {
			return err
		}
		Reply[T](ctx, e, req, v)
		return nil
	})
}

// HandleNotification binds fn to the topic of notification type N.
func HandleNotification[N bus.Notification](e *Endpoint, fn func(ctx context.Context, n N) error) error {
	return e.OnNotification(topicOf[N](), func(ctx context.Context, msg bus.Message) error {
		n, ok := msg.(N)
		if !ok {
			return simerrors.InvalidInput(fmt.Sprintf("unexpected notification type %T", msg))
		}
		return fn(ctx, n)
	})
}

// Send routes req to one subscriber of its topic and returns the future of
// its response. A topic without subscribers yields (nil, bus.ErrNoSubscribers).
func Send[T any](ctx context.Context, e *Endpoint, req bus.Request[T]) (*future.Future[T], error) {
	topic := req.Topic()
	ctx, span := e.tracer.StartRequestSpan(ctx, string(e.id), topic)
	if tc, ok := req.(TraceCarrier); ok && tc.TraceContext() != nil {
		telemetry.InjectContext(ctx, tc.TraceContext())
	}

	f, err := bus.SendRequest[T](e.bus, req)
	if errors.Is(err, bus.ErrNoSubscribers) {
		e.logger.RequestDropped(string(e.id), topic)
	}
	e.tracer.EndRequestSpan(span, telemetry.RequestSpanOptions{Routed: err == nil, Payload: req}, err)
	return f, err
}

// Reply completes req with v. It reports false if req was not pending.
func Reply[T any](ctx context.Context, e *Endpoint, req bus.Request[T], v T) bool {
	_, span := e.tracer.StartCompleteSpan(ctx, string(e.id), req.Topic())
	resolved := bus.Complete[T](e.bus, req, v)
	e.tracer.EndCompleteSpan(span, resolved)
	return resolved
}

// topicOf returns the topic of message type M. Pointer types are
// instantiated so that Topic is never called on a nil receiver.
func topicOf[M bus.Message]() string {
	var zero M
	t := reflect.TypeOf(&zero).Elem()
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface().(M).Topic()
	}
	return zero.Topic()
}
