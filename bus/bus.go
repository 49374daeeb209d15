// Package bus provides an in-process message bus for independently scheduled
// endpoints.
//
// Endpoints exchange typed messages instead of calling each other. Requests are
// routed round-robin to exactly one subscriber and answered through a
// future.Future; notifications are fanned out to every current subscriber.
// Each endpoint owns a FIFO mailbox that it drains with AwaitMessage.
package bus

import (
	"errors"
	"fmt"
	"reflect"
)

// Common errors.
var (
	ErrClosed          = errors.New("bus closed")
	ErrNoSubscribers   = errors.New("no subscribers")
	ErrNotRegistered   = errors.New("endpoint not registered")
	ErrInvalidTopic    = errors.New("invalid topic")
	ErrInvalidEndpoint = errors.New("invalid endpoint id")
	ErrInvalidRequest  = errors.New("request must be a non-nil pointer")
	ErrRequestInFlight = errors.New("request already in flight")

	// ErrZeroSizeRequest is returned for request types without a field of
	// non-zero size. Distinct zero-size values may share an address, so they
	// cannot be told apart. It matches ErrInvalidRequest.
	ErrZeroSizeRequest = fmt.Errorf("%w: request type has zero size", ErrInvalidRequest)
)

// EndpointID identifies a registered endpoint. It must stay stable for as
// long as the endpoint is registered.
type EndpointID string

// Message is anything that can travel over the bus.
// Topic is the type tag used for subscriptions and handler dispatch.
type Message interface {
	Topic() string
}

// Request is a message that expects exactly one response of type T.
// Concrete request types embed Expects[T] and are sent as pointers; the
// pointer itself correlates the request with its future. A request type
// needs at least one field of non-zero size: Go may place distinct
// zero-size values at the same address, and such requests are rejected
// with ErrZeroSizeRequest.
type Request[T any] interface {
	Message
	expects(T)
}

// Expects marks a message type as a Request[T].
type Expects[T any] struct{}

func (Expects[T]) expects(T) {}

// Notification is a fire-and-forget message delivered to every subscriber.
// Concrete notification types embed Broadcast.
type Notification interface {
	Message
	broadcast()
}

// Broadcast marks a message type as a Notification.
type Broadcast struct{}

func (Broadcast) broadcast() {}

// Config holds bus configuration.
type Config struct {
	// MailboxCapacity is the initial capacity of each mailbox.
	// Mailboxes are unbounded and grow past it.
	// Default: 16
	MailboxCapacity int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MailboxCapacity: 16,
	}
}

// Stats is a snapshot of bus counters.
type Stats struct {
	RequestsRouted         uint64 `json:"requests_routed"`
	RequestsUnrouted       uint64 `json:"requests_unrouted"`
	NotificationsSent      uint64 `json:"notifications_sent"`
	NotificationsDelivered uint64 `json:"notifications_delivered"`
	Completions            uint64 `json:"completions"`
	StaleCompletions       uint64 `json:"stale_completions"`
	Registered             int    `json:"registered"`
	Pending                int    `json:"pending"`
}

// ValidateTopic checks if a topic is valid.
func ValidateTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	return nil
}

// validateRequest checks that req can serve as an identity key.
func validateRequest(req Message) error {
	if req == nil {
		return ErrInvalidRequest
	}
	v := reflect.ValueOf(req)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return ErrInvalidRequest
	}
	if v.Type().Elem().Size() == 0 {
		return ErrZeroSizeRequest
	}
	return ValidateTopic(req.Topic())
}
