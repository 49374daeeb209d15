package sim

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/vinayprograms/simbus/bus"
	"github.com/vinayprograms/simbus/endpoint"
)

// Tracker is a worker serving detect requests. Trackers share the detect
// topic, so the bus spreads requests over them in rotation.
type Tracker struct {
	ep *endpoint.Endpoint

	// live is the number of sensors still sending. Only touched on the
	// tracker's own goroutine.
	live int

	handled atomic.Int64
}

// TrackerID names the i-th tracker.
func TrackerID(i int) bus.EndpointID {
	return bus.EndpointID(fmt.Sprintf("tracker-%d", i))
}

func newTracker(id bus.EndpointID, b *bus.Bus, sensors int, opts ...endpoint.Option) *Tracker {
	return &Tracker{
		ep:   endpoint.New(id, b, opts...),
		live: sensors,
	}
}

// Handled returns the number of detect requests this tracker answered.
func (t *Tracker) Handled() int64 {
	return t.handled.Load()
}

func (t *Tracker) init(e *endpoint.Endpoint) error {
	if err := endpoint.HandleRequest(e, t.onDetect); err != nil {
		return err
	}
	if err := endpoint.HandleNotification(e, t.onTerminated); err != nil {
		return err
	}
	return endpoint.HandleNotification(e, t.onCrashed)
}

func (t *Tracker) onDetect(_ context.Context, req *DetectRequest) (DetectResult, error) {
	t.handled.Add(1)
	return DetectResult{
		ID:      req.ID,
		Tracker: t.ep.ID(),
		Tracked: len(req.Objects),
	}, nil
}

// onTerminated stops the tracker once every sensor has finished. A
// sensor's requests precede its termination in the mailbox, so none are
// left unanswered.
func (t *Tracker) onTerminated(_ context.Context, n TerminatedBroadcast) error {
	if n.Sender == ClockID {
		return nil
	}
	t.live--
	if t.live <= 0 {
		t.ep.Terminate()
	}
	return nil
}

func (t *Tracker) onCrashed(_ context.Context, _ CrashedBroadcast) error {
	t.ep.Terminate()
	return nil
}
