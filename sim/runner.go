package sim

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/simbus/bus"
	"github.com/vinayprograms/simbus/config"
	"github.com/vinayprograms/simbus/endpoint"
	simerrors "github.com/vinayprograms/simbus/errors"
	"github.com/vinayprograms/simbus/logging"
	"github.com/vinayprograms/simbus/shutdown"
	"github.com/vinayprograms/simbus/telemetry"
)

// StatusFailed marks a run whose services could not start.
const StatusFailed = "failed"

// Runner wires a bus, a clock, sensors and trackers into one simulation.
type Runner struct {
	cfg      *config.Config
	runID    string
	logger   *logging.Logger
	tracer   *telemetry.Tracer
	exporter telemetry.Exporter
	stats    *Statistics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger shared by the bus and every service.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracer sets the tracer used for the run and bus spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithExporter sets the exporter receiving per-tick samples.
func WithExporter(e telemetry.Exporter) Option {
	return func(r *Runner) {
		if e != nil {
			r.exporter = e
		}
	}
}

// NewRunner creates a runner for cfg. cfg must be valid.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	runID := uuid.NewString()
	r := &Runner{
		cfg:      cfg,
		runID:    runID,
		logger:   logging.Discard(),
		tracer:   telemetry.GetTracer(),
		exporter: telemetry.NewNoopExporter(),
		stats:    NewStatistics(runID),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID returns the unique id of this run.
func (r *Runner) RunID() string { return r.runID }

// Stats returns the live statistics of the run.
func (r *Runner) Stats() *Statistics { return r.stats }

// service is an endpoint running on its own goroutine.
type service struct {
	ep     *endpoint.Endpoint
	cancel context.CancelFunc
	exited chan struct{}
	err    error
}

func startService(ctx context.Context, ep *endpoint.Endpoint, init func(*endpoint.Endpoint) error) *service {
	ctx, cancel := context.WithCancel(ctx)
	s := &service{ep: ep, cancel: cancel, exited: make(chan struct{})}
	go func() {
		defer close(s.exited)
		s.err = ep.Run(ctx, init)
	}()
	return s
}

// awaitReady waits until the service is consuming its mailbox. A service
// that exits first returns its Run error.
func (s *service) awaitReady(ctx context.Context) error {
	select {
	case <-s.ep.Ready():
		return nil
	case <-s.exited:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop waits for the service to finish on its own and cancels it once ctx
// ends.
func (s *service) stop(ctx context.Context) error {
	select {
	case <-s.exited:
	case <-ctx.Done():
		s.cancel()
		<-s.exited
	}
	s.cancel()
	return s.runErr()
}

func (s *service) runErr() error {
	if errors.Is(s.err, context.Canceled) {
		return nil
	}
	return s.err
}

// Run executes the simulation until the clock finishes, a sensor crashes,
// or ctx ends, then shuts every service down in phases. Crashes and
// interruptions are reported in the snapshot status; the error is set when
// services fail to start or to stop.
func (r *Runner) Run(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	ctx, span := r.tracer.StartSpan(ctx, "simulation.run",
		trace.WithAttributes(attribute.String("simulation.run_id", r.runID)))
	defer span.End()

	logger := r.logger.WithComponent("runner").WithTraceID(r.runID)
	sim := r.cfg.Simulation

	b := bus.New(r.cfg.BusConfig(), bus.WithLogger(r.logger))
	opts := []endpoint.Option{endpoint.WithLogger(r.logger), endpoint.WithTracer(r.tracer)}

	trackers := make([]*Tracker, sim.Workers)
	for i := range trackers {
		trackers[i] = newTracker(TrackerID(i), b, sim.Sensors, opts...)
	}
	sensors := make([]*Sensor, sim.Sensors)
	for i := range sensors {
		crashAt := 0
		if i == 0 {
			crashAt = sim.CrashAtTick
		}
		sensors[i] = newSensor(SensorID(i), b, sim.RequestsPerTick, sim.ObjectsPerRequest, sim.RequestTimeout, crashAt, r.stats, opts...)
	}
	clock := newClock(b, sim.TickInterval, sim.Duration, r.stats, r.exporter, opts...)

	// Service lifetimes belong to the shutdown phases, not to ctx.
	base := context.WithoutCancel(ctx)

	trackerSvcs := make([]*service, len(trackers))
	for i, t := range trackers {
		trackerSvcs[i] = startService(base, t.ep, t.init)
	}
	sensorSvcs := make([]*service, len(sensors))
	for i, s := range sensors {
		sensorSvcs[i] = startService(base, s.ep, s.init)
	}

	started := append(append([]*service{}, trackerSvcs...), sensorSvcs...)
	for _, s := range started {
		if err := s.awaitReady(ctx); err != nil {
			return r.abort(b, started, start, err)
		}
	}

	clockSvc := startService(base, clock.ep, clock.init(base))
	select {
	case <-clockSvc.exited:
	case <-ctx.Done():
	}
	if ctx.Err() != nil {
		r.stats.Finish(StatusInterrupted)
	} else {
		r.stats.Finish(StatusCompleted)
	}

	coord := shutdown.NewCoordinator(shutdown.Config{
		Timeout:         sim.ShutdownTimeout,
		ContinueOnError: true,
		OnProgress: func(s shutdown.Step) {
			logger.ShutdownStep(s.Name, s.Phase, s.Duration, s.Err)
		},
	})
	coord.RegisterFunc(string(ClockID), shutdown.PhaseClock, func(context.Context) error {
		clockSvc.cancel()
		<-clockSvc.exited
		if !clock.Finished() && !r.stats.Crashed() {
			// Sensors drain on the clock's termination; announce it on
			// the clock's behalf.
			if _, err := b.SendNotification(TerminatedBroadcast{Sender: ClockID}); err != nil {
				return err
			}
		}
		return clockSvc.runErr()
	})
	for i, s := range sensorSvcs {
		coord.RegisterFunc(string(SensorID(i)), shutdown.PhaseSensors, s.stop)
	}
	for i, s := range trackerSvcs {
		coord.RegisterFunc(string(TrackerID(i)), shutdown.PhaseTrackers, s.stop)
	}
	coord.RegisterFunc("bus", shutdown.PhaseBus, func(context.Context) error {
		return b.Close()
	})

	stopErr := coord.StopWithTimeout(0)
	if stopErr != nil {
		r.stats.RecordError(simerrors.Wrap(stopErr, "shutdown incomplete"))
	}

	snap := r.finish(b, trackers, start)
	logger.SimulationComplete(r.runID, time.Since(start), snap.SystemRuntime, snap.Status)
	if stopErr != nil {
		span.RecordError(stopErr)
	}
	return snap, stopErr
}

// abort stops services that did start after one failed to initialize.
func (r *Runner) abort(b *bus.Bus, started []*service, start time.Time, cause error) (Snapshot, error) {
	for _, s := range started {
		s.cancel()
	}
	for _, s := range started {
		<-s.exited
	}
	_ = b.Close()

	err := simerrors.Wrap(cause, "simulation failed to start")
	r.stats.RecordError(err)
	r.stats.Finish(StatusFailed)
	return r.finish(b, nil, start), err
}

func (r *Runner) finish(b *bus.Bus, trackers []*Tracker, start time.Time) Snapshot {
	snap := r.stats.Snapshot()
	snap.Duration = time.Since(start).String()
	if len(trackers) > 0 {
		snap.Workers = make(map[string]int64, len(trackers))
		for _, t := range trackers {
			snap.Workers[string(t.ep.ID())] = t.Handled()
		}
	}
	bs := b.Stats()
	snap.Bus = &bs

	r.exporter.LogEvent("simulation_complete", map[string]interface{}{
		"run_id":   r.runID,
		"status":   snap.Status,
		"ticks":    snap.SystemRuntime,
		"detected": snap.Detected,
		"tracked":  snap.Tracked,
		"timeouts": snap.Timeouts,
	})
	if err := r.exporter.Flush(); err != nil {
		r.logger.Warn("event export failed", map[string]interface{}{"error": err.Error()})
	}
	return snap
}
