// Package sim runs a tick-driven sensor simulation on top of the bus.
//
// A Clock broadcasts TickBroadcast messages. On every tick each Sensor
// sends DetectRequest messages that the bus spreads over the Tracker
// workers in rotation, then waits a bounded time for the DetectResult
// futures. When the clock reaches its last tick it broadcasts a
// TerminatedBroadcast; sensors finish and announce their own termination,
// and trackers stop once every sensor has. A sensor configured to crash
// broadcasts a CrashedBroadcast instead, which stops every service.
//
// Runner wires these services together, waits until every consumer is
// ready before starting the clock, and stops them in phases through the
// shutdown package. Statistics collects the counters reported at the end
// of a run and sampled on every tick.
package sim
