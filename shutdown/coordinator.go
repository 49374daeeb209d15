package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Coordinator stops registered components phase by phase.
type Coordinator struct {
	config Config

	mu       sync.Mutex
	handlers []registration

	started atomic.Bool
	done    chan struct{}
	err     error
	result  *Result
}

// NewCoordinator creates a coordinator.
func NewCoordinator(config Config) *Coordinator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Coordinator{
		config: config,
		done:   make(chan struct{}),
	}
}

// Register adds h to phase. Handlers in the same phase stop concurrently.
func (c *Coordinator) Register(name string, phase int, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, phase: phase, handler: h})
}

// RegisterFunc registers fn as a handler.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.Register(name, phase, HandlerFunc(fn))
}

// Stop runs every phase in ascending order. Once ctx ends the remaining
// phases still run, with the expired context, so that each component is
// forced down. A second call returns ErrAlreadyStopping.
func (c *Coordinator) Stop(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStopping
	}
	c.result = c.run(ctx)
	c.err = c.result.Err
	close(c.done)
	return c.err
}

// StopWithTimeout calls Stop with a deadline. Zero uses the configured
// timeout.
func (c *Coordinator) StopWithTimeout(timeout time.Duration) error {
	if timeout == 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Stop(ctx)
}

// Done is closed when Stop returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown error once Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Result returns the detailed outcome once Done is closed.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Result {
	start := time.Now()

	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	result := &Result{Steps: make([]Step, 0, len(handlers))}
	var failures []error

	for _, group := range groupByPhase(handlers) {
		forced := ctx.Err() != nil
		steps := c.runPhase(ctx, group, forced)
		result.Steps = append(result.Steps, steps...)

		stop := false
		for _, s := range steps {
			if s.Err != nil {
				failures = append(failures, fmt.Errorf("%s: %w", s.Name, s.Err))
				stop = stop || !c.config.ContinueOnError
			}
		}
		if stop {
			break
		}
	}

	switch {
	case ctx.Err() != nil:
		result.Err = errors.Join(append([]error{ErrTimeout}, failures...)...)
	case len(failures) > 0:
		result.Err = errors.Join(append([]error{ErrStepFailed}, failures...)...)
	}
	result.Duration = time.Since(start)
	return result
}

func (c *Coordinator) runPhase(ctx context.Context, group []registration, forced bool) []Step {
	steps := make([]Step, len(group))
	var wg sync.WaitGroup

	for i, reg := range group {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()

			start := time.Now()
			err := r.handler.Stop(ctx)
			steps[idx] = Step{
				Name:     r.name,
				Phase:    r.phase,
				Duration: time.Since(start),
				Forced:   forced,
				Err:      err,
			}
			if c.config.OnProgress != nil {
				c.config.OnProgress(steps[idx])
			}
		}(i, reg)
	}

	wg.Wait()
	return steps
}

// groupByPhase splits handlers sorted by phase into one slice per phase.
func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for i := 0; i < len(handlers); {
		j := i + 1
		for j < len(handlers) && handlers[j].phase == handlers[i].phase {
			j++
		}
		groups = append(groups, handlers[i:j])
		i = j
	}
	return groups
}
