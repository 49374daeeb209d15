package shutdown

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	// ErrAlreadyStopping indicates Stop was already called.
	ErrAlreadyStopping = errors.New("shutdown already initiated")

	// ErrTimeout indicates the deadline passed before every phase finished.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrStepFailed indicates one or more steps returned an error.
	ErrStepFailed = errors.New("one or more shutdown steps failed")
)

// Phases used by the simulation runner. Lower phases stop first.
const (
	PhaseClock    = 10
	PhaseSensors  = 20
	PhaseTrackers = 30
	PhaseBus      = 40
)

// Handler stops one component.
type Handler interface {
	// Stop is called once during shutdown. The context ends at the shutdown
	// deadline; a handler called with an expired context must stop its
	// component immediately instead of waiting for it to drain.
	Stop(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// Stop implements Handler.
func (f HandlerFunc) Stop(ctx context.Context) error {
	return f(ctx)
}

// Step is the outcome of one handler.
type Step struct {
	Name     string
	Phase    int
	Duration time.Duration

	// Forced is set when the phase started after the deadline.
	Forced bool

	Err error
}

// Result is the outcome of a complete shutdown.
type Result struct {
	Duration time.Duration
	Steps    []Step
	Err      error
}

// Failed reports whether any step failed or the deadline passed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedSteps returns the names of steps that returned an error.
func (r *Result) FailedSteps() []string {
	var failed []string
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

// Config configures a Coordinator.
type Config struct {
	// Timeout is used by StopWithTimeout when called with zero.
	// Default: 5 seconds
	Timeout time.Duration

	// ContinueOnError runs the remaining phases after a step fails.
	// Default: true
	ContinueOnError bool

	// OnProgress is called as each step completes.
	OnProgress func(step Step)
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         5 * time.Second,
		ContinueOnError: true,
	}
}

type registration struct {
	name    string
	phase   int
	handler Handler
}
