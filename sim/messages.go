package sim

import (
	"github.com/vinayprograms/simbus/bus"
	"github.com/vinayprograms/simbus/telemetry"
)

// Topics used by the simulation.
const (
	TopicTick       = "sim.tick"
	TopicTerminated = "sim.terminated"
	TopicCrashed    = "sim.crashed"
	TopicDetect     = "sim.detect"
)

// TickBroadcast advances simulated time.
type TickBroadcast struct {
	bus.Broadcast
	Tick int
}

func (TickBroadcast) Topic() string { return TopicTick }

// TerminatedBroadcast announces that Sender has finished. Every service
// stops when the clock sends it.
type TerminatedBroadcast struct {
	bus.Broadcast
	Sender bus.EndpointID
}

func (TerminatedBroadcast) Topic() string { return TopicTerminated }

// CrashedBroadcast announces that Sender failed. Every service stops.
type CrashedBroadcast struct {
	bus.Broadcast
	Sender bus.EndpointID
	Reason string
}

func (CrashedBroadcast) Topic() string { return TopicCrashed }

// DetectRequest carries the objects a sensor detected at one tick to a
// tracker.
type DetectRequest struct {
	bus.Expects[DetectResult]

	ID      string
	Sensor  bus.EndpointID
	Tick    int
	Objects []string

	Trace telemetry.MapCarrier
}

func (*DetectRequest) Topic() string { return TopicDetect }

// TraceContext returns the carrier the sender's span is injected into.
func (r *DetectRequest) TraceContext() telemetry.MapCarrier { return r.Trace }

// DetectResult is a tracker's answer to a DetectRequest.
type DetectResult struct {
	ID      string
	Tracker bus.EndpointID
	Tracked int
}
