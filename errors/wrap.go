package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap returns an Error that adds message to err. It returns nil for a nil
// err. The code is taken from the first Error in err's chain, along with
// its endpoint, topic, metadata and timestamp; otherwise context deadline
// and cancellation map to TIMEOUT and CANCELED, and anything else is
// INTERNAL. opts apply on top of what was inherited.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	e := build(codeOf(err), message, []Option{WithCause(err)})
	var inner *Error
	if errors.As(err, &inner) {
		e.endpoint, e.topic, e.at = inner.endpoint, inner.topic, inner.at
		if len(inner.meta) > 0 {
			e.meta = inner.Metadata()
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WrapWithCode is Wrap with an explicit code and no inherited context.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return build(code, message, append(opts, WithCause(err)))
}

func codeOf(err error) ErrorCode {
	var inner *Error
	switch {
	case errors.As(err, &inner):
		return inner.code
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrCodeCanceled
	default:
		return ErrCodeInternal
	}
}

// Code returns the code of the first Error in err's chain, or "".
func Code(err error) ErrorCode {
	var inner *Error
	if errors.As(err, &inner) {
		return inner.code
	}
	return ""
}

// Is reports whether the first Error in err's chain has code.
func Is(err error, code ErrorCode) bool {
	c := Code(err)
	return c != "" && c == code
}

// RecoverPanic turns a value returned by recover into a PANIC error. The
// dynamic type of the value is kept as "panic_value" metadata. It returns
// nil for a nil value.
func RecoverPanic(recovered any, opts ...Option) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprint(v)
	}
	opts = append([]Option{WithMetadata("panic_value", fmt.Sprintf("%T", recovered))}, opts...)
	return build(ErrCodePanic, message, opts)
}
