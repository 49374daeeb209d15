package sim

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/simbus/bus"
	"github.com/vinayprograms/simbus/endpoint"
	simerrors "github.com/vinayprograms/simbus/errors"
	"github.com/vinayprograms/simbus/future"
	"github.com/vinayprograms/simbus/telemetry"
)

// Sensor sends detect requests on every tick and waits for the trackers to
// answer them.
type Sensor struct {
	ep *endpoint.Endpoint

	requests int
	objects  int
	timeout  time.Duration
	crashAt  int

	stats *Statistics
}

// SensorID names the i-th sensor.
func SensorID(i int) bus.EndpointID {
	return bus.EndpointID(fmt.Sprintf("sensor-%d", i))
}

func newSensor(id bus.EndpointID, b *bus.Bus, requests, objects int, timeout time.Duration, crashAt int, stats *Statistics, opts ...endpoint.Option) *Sensor {
	return &Sensor{
		ep:       endpoint.New(id, b, opts...),
		requests: requests,
		objects:  objects,
		timeout:  timeout,
		crashAt:  crashAt,
		stats:    stats,
	}
}

func (s *Sensor) init(e *endpoint.Endpoint) error {
	if err := endpoint.HandleNotification(e, s.onTick); err != nil {
		return err
	}
	if err := endpoint.HandleNotification(e, s.onTerminated); err != nil {
		return err
	}
	return endpoint.HandleNotification(e, s.onCrashed)
}

func (s *Sensor) onTick(ctx context.Context, t TickBroadcast) error {
	if s.crashAt > 0 && t.Tick == s.crashAt {
		return s.crash(ctx, t.Tick)
	}

	futures := make([]*future.Future[DetectResult], 0, s.requests)
	for i := 0; i < s.requests; i++ {
		req := &DetectRequest{
			ID:      uuid.NewString(),
			Sensor:  s.ep.ID(),
			Tick:    t.Tick,
			Objects: detections(s.ep.ID(), t.Tick, i, s.objects),
			Trace:   telemetry.MapCarrier{},
		}
		f, err := endpoint.Send[DetectResult](ctx, s.ep, req)
		if errors.Is(err, bus.ErrNoSubscribers) {
			s.stats.RequestDropped()
			continue
		}
		if err != nil {
			return err
		}
		s.stats.RequestSent(len(req.Objects))
		futures = append(futures, f)
	}

	deadline := time.Now().Add(s.timeout)
	for _, f := range futures {
		res, ok := f.GetTimeout(time.Until(deadline))
		if !ok {
			s.stats.Timeout()
			continue
		}
		s.stats.ResponseReceived(res.Tracked)
	}
	return nil
}

// crash records the failure, tells every service to stop, and ends the
// sensor's loop.
func (s *Sensor) crash(ctx context.Context, tick int) error {
	id := s.ep.ID()
	reason := "sensor disconnected"
	err := simerrors.SensorCrashed(string(id), reason,
		simerrors.WithEndpoint(string(id)),
		simerrors.WithMetadata("tick", strconv.Itoa(tick)))
	if s.stats.Crash(id, tick, err) {
		s.ep.Logger().SimulationCrashed(string(id), reason, tick)
	}

	s.ep.Terminate()
	_, berr := s.ep.Broadcast(ctx, CrashedBroadcast{Sender: id, Reason: reason})
	return berr
}

func (s *Sensor) onTerminated(ctx context.Context, n TerminatedBroadcast) error {
	if n.Sender != ClockID {
		return nil
	}
	s.ep.Terminate()
	_, err := s.ep.Broadcast(ctx, TerminatedBroadcast{Sender: s.ep.ID()})
	return err
}

func (s *Sensor) onCrashed(_ context.Context, _ CrashedBroadcast) error {
	s.ep.Terminate()
	return nil
}

func detections(sensor bus.EndpointID, tick, request, n int) []string {
	objects := make([]string, n)
	for i := range objects {
		objects[i] = fmt.Sprintf("%s/%d/%d/%d", sensor, tick, request, i)
	}
	return objects
}
