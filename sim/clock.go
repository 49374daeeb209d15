package sim

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/simbus/bus"
	"github.com/vinayprograms/simbus/endpoint"
	"github.com/vinayprograms/simbus/telemetry"
)

// ClockID is the bus identity of the time service.
const ClockID bus.EndpointID = "clock"

// Clock is the time service. It receives its own ticks, so a crash
// broadcast queued between two ticks stops it before the next one.
type Clock struct {
	ep       *endpoint.Endpoint
	interval time.Duration
	duration int
	stats    *Statistics
	exporter telemetry.Exporter

	finished atomic.Bool
}

func newClock(b *bus.Bus, interval time.Duration, duration int, stats *Statistics, exporter telemetry.Exporter, opts ...endpoint.Option) *Clock {
	return &Clock{
		ep:       endpoint.New(ClockID, b, opts...),
		interval: interval,
		duration: duration,
		stats:    stats,
		exporter: exporter,
	}
}

// Finished reports whether the clock reached its last tick and announced
// termination.
func (c *Clock) Finished() bool {
	return c.finished.Load()
}

func (c *Clock) init(ctx context.Context) func(*endpoint.Endpoint) error {
	return func(e *endpoint.Endpoint) error {
		if err := endpoint.HandleNotification(e, c.onTick); err != nil {
			return err
		}
		if err := endpoint.HandleNotification(e, c.onCrashed); err != nil {
			return err
		}
		_, err := e.Broadcast(ctx, TickBroadcast{Tick: 1})
		return err
	}
}

func (c *Clock) onTick(ctx context.Context, t TickBroadcast) error {
	last := t.Tick >= c.duration
	c.stats.Tick(t.Tick)
	c.ep.Logger().Tick(t.Tick, last)
	c.exporter.LogSample(c.stats.Sample(t.Tick, c.ep.Bus()))

	if c.stats.Crashed() {
		c.ep.Terminate()
		return nil
	}
	if last {
		if _, err := c.ep.Broadcast(ctx, TerminatedBroadcast{Sender: ClockID}); err != nil {
			return err
		}
		c.finished.Store(true)
		c.ep.Terminate()
		return nil
	}

	timer := time.NewTimer(c.interval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil
	}
	_, err := c.ep.Broadcast(ctx, TickBroadcast{Tick: t.Tick + 1})
	return err
}

func (c *Clock) onCrashed(_ context.Context, _ CrashedBroadcast) error {
	c.ep.Terminate()
	return nil
}
