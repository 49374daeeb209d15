package sim

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/simbus/bus"
	simerrors "github.com/vinayprograms/simbus/errors"
	"github.com/vinayprograms/simbus/telemetry"
)

// Run status values.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusCrashed     = "crashed"
	StatusInterrupted = "interrupted"
)

// Statistics aggregates counters shared by every service of a run.
type Statistics struct {
	runID string

	ticks     atomic.Int64
	detected  atomic.Uint64
	tracked   atomic.Uint64
	requests  atomic.Uint64
	responses atomic.Uint64
	timeouts  atomic.Uint64
	dropped   atomic.Uint64

	mu           sync.Mutex
	status       string
	faultySensor bus.EndpointID
	crashTick    int
	lastErr      error
}

// NewStatistics creates an empty statistics folder for runID.
func NewStatistics(runID string) *Statistics {
	return &Statistics{runID: runID, status: StatusRunning}
}

// Tick records that the clock reached tick.
func (s *Statistics) Tick(tick int) {
	s.ticks.Store(int64(tick))
}

// Ticks returns the last tick the clock reached.
func (s *Statistics) Ticks() int {
	return int(s.ticks.Load())
}

// RequestSent records a routed detect request carrying objects.
func (s *Statistics) RequestSent(objects int) {
	s.requests.Add(1)
	s.detected.Add(uint64(objects))
}

// RequestDropped records a detect request with no tracker to serve it.
func (s *Statistics) RequestDropped() {
	s.dropped.Add(1)
}

// ResponseReceived records a resolved detect request.
func (s *Statistics) ResponseReceived(tracked int) {
	s.responses.Add(1)
	s.tracked.Add(uint64(tracked))
}

// Timeout records a detect request whose response did not arrive in time.
func (s *Statistics) Timeout() {
	s.timeouts.Add(1)
}

// Crash records that sensor failed at tick. Only the first crash is kept.
func (s *Statistics) Crash(sensor bus.EndpointID, tick int, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusCrashed {
		return false
	}
	s.status = StatusCrashed
	s.faultySensor = sensor
	s.crashTick = tick
	s.lastErr = err
	return true
}

// Crashed reports whether any sensor crashed.
func (s *Statistics) Crashed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusCrashed
}

// RecordError keeps err as the run's last error.
func (s *Statistics) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Finish sets the final status unless a crash was already recorded.
func (s *Statistics) Finish(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning {
		s.status = status
	}
}

// Sample returns the per-tick sample exported to the event stream.
func (s *Statistics) Sample(tick int, b *bus.Bus) telemetry.Sample {
	mailboxes := make(map[string]int)
	for _, id := range b.Endpoints() {
		mailboxes[string(id)] = b.MailboxLen(id)
	}
	return telemetry.Sample{
		RunID:     s.runID,
		Tick:      tick,
		Detected:  s.detected.Load(),
		Tracked:   s.tracked.Load(),
		Timeouts:  s.timeouts.Load(),
		Pending:   b.Pending(),
		Mailboxes: mailboxes,
		Timestamp: time.Now(),
	}
}

// Snapshot is the report written at the end of a run.
type Snapshot struct {
	RunID    string `json:"run_id"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`

	SystemRuntime int    `json:"system_runtime"`
	Detected      uint64 `json:"num_detected_objects"`
	Tracked       uint64 `json:"num_tracked_objects"`
	Requests      uint64 `json:"requests"`
	Responses     uint64 `json:"responses"`
	Timeouts      uint64 `json:"timeouts"`
	Dropped       uint64 `json:"dropped"`

	FaultySensor string           `json:"faulty_sensor,omitempty"`
	CrashTick    int              `json:"crash_tick,omitempty"`
	Error        *simerrors.Error `json:"error,omitempty"`

	Workers map[string]int64 `json:"workers,omitempty"`
	Bus     *bus.Stats       `json:"bus,omitempty"`
}

// Snapshot copies the current counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	status, faulty, crashTick, lastErr := s.status, s.faultySensor, s.crashTick, s.lastErr
	s.mu.Unlock()

	snap := Snapshot{
		RunID:         s.runID,
		Status:        status,
		SystemRuntime: int(s.ticks.Load()),
		Detected:      s.detected.Load(),
		Tracked:       s.tracked.Load(),
		Requests:      s.requests.Load(),
		Responses:     s.responses.Load(),
		Timeouts:      s.timeouts.Load(),
		Dropped:       s.dropped.Load(),
		FaultySensor:  string(faulty),
		CrashTick:     crashTick,
	}
	if lastErr != nil {
		var se *simerrors.Error
		if errors.As(lastErr, &se) {
			snap.Error = se
		} else {
			snap.Error = simerrors.Wrap(lastErr, "simulation")
		}
	}
	return snap
}

// WriteReport writes snap as indented JSON to path, creating parent
// directories as needed.
func WriteReport(path string, snap Snapshot) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return simerrors.Wrap(err, "failed to create report directory", simerrors.WithMetadata("path", path))
		}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return simerrors.Wrap(err, "failed to encode report")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return simerrors.Wrap(err, "failed to write report", simerrors.WithMetadata("path", path))
	}
	return nil
}
