package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates failures that may clear on a later tick.
	// Examples: a response that missed its deadline, a topic with no
	// subscriber yet.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid configuration, an unregistered endpoint.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates handler bugs or unexpected failures.
	// Examples: recovered panics, handler errors.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for bus and simulation failures.
const (
	// Transient errors
	ErrCodeTimeout       ErrorCode = "TIMEOUT"        // Response did not arrive in time
	ErrCodeNoSubscribers ErrorCode = "NO_SUBSCRIBERS" // Request topic has no live subscriber

	// Permanent errors
	ErrCodeNotRegistered  ErrorCode = "NOT_REGISTERED"  // Endpoint has no mailbox
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"   // Malformed message or argument
	ErrCodeInvalidConfig  ErrorCode = "INVALID_CONFIG"  // Configuration failed validation
	ErrCodeAlreadyRunning ErrorCode = "ALREADY_RUNNING" // Endpoint loop already started
	ErrCodeCanceled       ErrorCode = "CANCELED"        // Operation was canceled
	ErrCodeSensorCrashed  ErrorCode = "SENSOR_CRASHED"  // A sensor reported a crash

	// Internal errors
	ErrCodeInternal      ErrorCode = "INTERNAL"       // Unexpected internal error
	ErrCodeHandlerFailed ErrorCode = "HANDLER_FAILED" // Message handler returned an error
	ErrCodePanic         ErrorCode = "PANIC"          // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeNoSubscribers:
		return CategoryTransient

	case ErrCodeNotRegistered, ErrCodeInvalidInput, ErrCodeInvalidConfig,
		ErrCodeAlreadyRunning, ErrCodeCanceled, ErrCodeSensorCrashed:
		return CategoryPermanent

	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:        "response timed out",
	ErrCodeNoSubscribers:  "no subscriber for topic",
	ErrCodeNotRegistered:  "endpoint not registered",
	ErrCodeInvalidInput:   "invalid input provided",
	ErrCodeInvalidConfig:  "invalid configuration",
	ErrCodeAlreadyRunning: "endpoint already running",
	ErrCodeCanceled:       "operation canceled",
	ErrCodeSensorCrashed:  "sensor crashed",
	ErrCodeInternal:       "internal error",
	ErrCodeHandlerFailed:  "handler failed",
	ErrCodePanic:          "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
