// Package errors provides the structured error taxonomy used by endpoints
// and the simulation runner.
//
// The bus itself reports plain sentinel errors (bus.ErrNoSubscribers and
// friends). Code above the bus wraps them here so that failures carry an
// endpoint, a topic and a category that the runner can act on.
//
// # Error Categories
//
//   - Transient: may clear on a later tick (timeouts, no subscriber yet)
//   - Permanent: retry will not help (bad config, unregistered endpoint)
//   - Internal: handler errors and recovered panics
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.ErrCodeTimeout, "detect response timed out")
//
// Wrap a handler failure:
//
//	err := errors.HandlerFailed("tracker-1", "sim.detect", cause)
//
// Check a code anywhere in the chain:
//
//	if errors.Is(err, errors.ErrCodePanic) {
//	    // stop the endpoint
//	}
//
// # JSON Serialization
//
// Errors marshal to JSON so the simulation report can record them. The
// report is write-only; nothing decodes it back into an Error.
package errors
