package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Error is a failure raised by an endpoint or the simulation runner. It
// records which endpoint was involved, the topic it was handling, and the
// error that caused it. The category, and with it whether the failure is
// worth retrying, follows from the code.
type Error struct {
	code     ErrorCode
	message  string
	cause    error
	endpoint string
	topic    string
	meta     map[string]string
	at       time.Time
}

var _ json.Marshaler = (*Error)(nil)

func (e *Error) Error() string {
	if e.cause == nil {
		return e.message
	}
	return e.message + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// Code identifies the failure.
func (e *Error) Code() ErrorCode { return e.code }

// Category is derived from the code.
func (e *Error) Category() ErrorCategory { return e.code.DefaultCategory() }

// Retryable reports whether the failure may clear on a later tick.
func (e *Error) Retryable() bool { return e.Category().IsRetryable() }

// Endpoint is the endpoint that raised the error, or "".
func (e *Error) Endpoint() string { return e.endpoint }

// Topic is the topic being handled when the error was raised, or "".
func (e *Error) Topic() string { return e.topic }

// Timestamp is when the error was first raised.
func (e *Error) Timestamp() time.Time { return e.at }

// Metadata returns a copy of the error's key-value context.
func (e *Error) Metadata() map[string]string {
	out := make(map[string]string, len(e.meta))
	for k, v := range e.meta {
		out[k] = v
	}
	return out
}

// MarshalJSON renders the error the way the simulation report records it.
func (e *Error) MarshalJSON() ([]byte, error) {
	rec := struct {
		Code      ErrorCode         `json:"code"`
		Category  ErrorCategory     `json:"category"`
		Message   string            `json:"message"`
		Cause     string            `json:"cause,omitempty"`
		Endpoint  string            `json:"endpoint,omitempty"`
		Topic     string            `json:"topic,omitempty"`
		Metadata  map[string]string `json:"metadata,omitempty"`
		Retryable bool              `json:"retryable"`
		Timestamp string            `json:"timestamp,omitempty"`
	}{
		Code:      e.code,
		Category:  e.Category(),
		Message:   e.message,
		Endpoint:  e.endpoint,
		Topic:     e.topic,
		Metadata:  e.meta,
		Retryable: e.Retryable(),
	}
	if e.cause != nil {
		rec.Cause = e.cause.Error()
	}
	if !e.at.IsZero() {
		rec.Timestamp = e.at.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(rec)
}

// Option sets context on an Error as it is built.
type Option func(*Error)

// WithEndpoint names the endpoint that raised the error.
func WithEndpoint(id string) Option {
	return func(e *Error) { e.endpoint = id }
}

// WithTopic names the topic being handled.
func WithTopic(topic string) Option {
	return func(e *Error) { e.topic = topic }
}

// WithMetadata attaches one key-value pair. Later pairs overwrite earlier
// ones with the same key.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.meta == nil {
			e.meta = make(map[string]string)
		}
		e.meta[key] = value
	}
}

// WithCause sets the wrapped error.
func WithCause(cause error) Option {
	return func(e *Error) { e.cause = cause }
}

func build(code ErrorCode, message string, opts []Option) *Error {
	e := &Error{code: code, message: message, at: time.Now()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// New returns an Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	return build(code, message, opts)
}

// FromCode returns an Error whose message is the code's description.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return build(code, code.Description(), opts)
}

// InvalidInput reports a message or argument an endpoint cannot accept.
func InvalidInput(message string, opts ...Option) *Error {
	return build(ErrCodeInvalidInput, message, opts)
}

// InvalidConfig reports a configuration that failed validation.
func InvalidConfig(message string, opts ...Option) *Error {
	return build(ErrCodeInvalidConfig, message, opts)
}

// HandlerFailed reports that endpoint's handler for topic returned cause.
func HandlerFailed(endpoint, topic string, cause error) *Error {
	return build(ErrCodeHandlerFailed,
		fmt.Sprintf("endpoint %s: handler for %s failed", endpoint, topic),
		[]Option{WithEndpoint(endpoint), WithTopic(topic), WithCause(cause)})
}

// SensorCrashed reports that sensor stopped producing detections.
func SensorCrashed(sensor, reason string, opts ...Option) *Error {
	opts = append([]Option{WithEndpoint(sensor)}, opts...)
	return build(ErrCodeSensorCrashed, fmt.Sprintf("sensor %s crashed: %s", sensor, reason), opts)
}
