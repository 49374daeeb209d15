// Package shutdown stops the components of a simulation in phases.
//
// # Overview
//
// A Coordinator holds named handlers, each assigned to a phase. Stop runs
// the phases in ascending order and the handlers inside one phase
// concurrently. The simulation runner uses four phases:
//
//	PhaseClock (10) → PhaseSensors (20) → PhaseTrackers (30) → PhaseBus (40)
//
// so the clock stops producing ticks before the sensors that consume them,
// the sensors stop sending before the trackers that serve them, and the bus
// closes last.
//
// # Usage
//
//	coord := shutdown.NewCoordinator(shutdown.Config{
//	    Timeout: 5 * time.Second,
//	    ContinueOnError: true,
//	    OnProgress: func(s shutdown.Step) {
//	        logger.ShutdownStep(s.Name, s.Phase, s.Duration, s.Err)
//	    },
//	})
//
//	coord.RegisterFunc("clock", shutdown.PhaseClock, stopClock)
//	coord.RegisterFunc("bus", shutdown.PhaseBus, func(context.Context) error {
//	    return b.Close()
//	})
//
//	if err := coord.StopWithTimeout(0); err != nil {
//	    log.Printf("shutdown incomplete: %v", err)
//	}
//
// # Deadlines
//
// A handler should wait for its component to drain until the context ends
// and then force it down. When the deadline passes mid-shutdown the
// remaining phases still run with the expired context, their steps are
// marked Forced, and Stop returns an error matching ErrTimeout.
//
// Step failures are joined into the returned error, which matches
// ErrStepFailed (or ErrTimeout) and each individual cause via errors.Is.
//
// OnProgress is called from the goroutine running the step, so it may be
// called concurrently for handlers in the same phase.
package shutdown
