// Package telemetry exports simulation events and bus tracing.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// Exporter is the interface for simulation event exporters.
type Exporter interface {
	// LogEvent logs an event with the given name and data.
	LogEvent(name string, data map[string]interface{})
	// LogSample logs a per-tick statistics sample.
	LogSample(s Sample)
	// Flush sends any buffered data.
	Flush() error
	// Close closes the exporter.
	Close() error
}

// Sample is a statistics snapshot taken at one clock tick.
type Sample struct {
	RunID     string         `json:"run_id"`
	Tick      int            `json:"tick"`
	Detected  uint64         `json:"detected"`
	Tracked   uint64         `json:"tracked"`
	Timeouts  uint64         `json:"timeouts"`
	Pending   int            `json:"pending"`
	Mailboxes map[string]int `json:"mailboxes,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Event represents a telemetry event.
type Event struct {
	Name      string                 `json:"name"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewExporter creates a new exporter based on protocol.
func NewExporter(protocol, endpoint string) (Exporter, error) {
	switch protocol {
	case "http":
		return NewHTTPExporter(endpoint), nil
	case "file":
		return NewFileExporter(endpoint)
	case "noop", "":
		return NewNoopExporter(), nil
	default:
		return nil, fmt.Errorf("unknown telemetry protocol: %s", protocol)
	}
}

// --- HTTP Exporter ---

const (
	// httpBatchTicks is how many per-tick samples one POST carries. Events
	// are rare (crashes, completion) and ride along with whatever samples
	// are buffered; the runner flushes after the completion event.
	httpBatchTicks = 100

	// httpMaxBuffered bounds the samples kept while the collector is
	// failing. The oldest are dropped first and counted in the next batch.
	httpMaxBuffered = 10 * httpBatchTicks
)

// Batch is the body of one POST to the collector. FirstTick and LastTick
// span the samples it carries.
type Batch struct {
	FirstTick int      `json:"first_tick"`
	LastTick  int      `json:"last_tick"`
	Samples   []Sample `json:"samples"`
	Events    []Event  `json:"events,omitempty"`
	Dropped   int      `json:"dropped_samples,omitempty"`
}

// HTTPExporter posts tick-range batches to an HTTP collector.
type HTTPExporter struct {
	endpoint string
	client   *http.Client

	mu      sync.Mutex
	samples []Sample
	events  []Event
	dropped int
	// lastErr holds a failed batch-size flush until the next Flush.
	lastErr error
}

// NewHTTPExporter creates a new HTTP exporter.
func NewHTTPExporter(endpoint string) *HTTPExporter {
	return &HTTPExporter{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		samples: make([]Sample, 0, httpBatchTicks),
	}
}

func (e *HTTPExporter) LogEvent(name string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, Event{Name: name, Timestamp: time.Now(), Data: data})
}

func (e *HTTPExporter) LogSample(s Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = append(e.samples, s)
	if len(e.samples)%httpBatchTicks == 0 {
		if err := e.flush(); err != nil {
			e.lastErr = err
		}
	}
}

// Flush posts whatever is buffered. It also reports a failure from an
// earlier flush triggered by a full batch.
func (e *HTTPExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := errors.Join(e.lastErr, e.flush())
	e.lastErr = nil
	return err
}

func (e *HTTPExporter) flush() error {
	if len(e.samples) == 0 && len(e.events) == 0 {
		return nil
	}

	batch := Batch{Samples: e.samples, Events: e.events, Dropped: e.dropped}
	if n := len(e.samples); n > 0 {
		batch.FirstTick, batch.LastTick = e.samples[0].Tick, e.samples[n-1].Tick
	}
	if err := e.post(batch); err != nil {
		if over := len(e.samples) - httpMaxBuffered; over > 0 {
			e.samples = append(e.samples[:0], e.samples[over:]...)
			e.dropped += over
		}
		return err
	}

	e.samples = e.samples[:0]
	e.events = nil
	e.dropped = 0
	return nil
}

func (e *HTTPExporter) post(batch Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("telemetry endpoint returned %d for ticks %d-%d", resp.StatusCode, batch.FirstTick, batch.LastTick)
	}
	return nil
}

func (e *HTTPExporter) Close() error {
	return e.Flush()
}

// --- File Exporter ---

// FileExporter appends events to a JSONL file, one object per line.
type FileExporter struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileExporter creates a new file exporter.
func NewFileExporter(path string) (*FileExporter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry file: %w", err)
	}
	return &FileExporter{file: file}, nil
}

func (e *FileExporter) LogEvent(name string, data map[string]interface{}) {
	e.write(Event{
		Name:      name,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (e *FileExporter) LogSample(s Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	e.write(s)
}

func (e *FileExporter) write(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	e.file.Write(data)
}

func (e *FileExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Sync()
}

func (e *FileExporter) Close() error {
	e.Flush()
	return e.file.Close()
}

// --- Noop Exporter ---

// NoopExporter discards all telemetry.
type NoopExporter struct{}

// NewNoopExporter creates a new noop exporter.
func NewNoopExporter() *NoopExporter {
	return &NoopExporter{}
}

func (e *NoopExporter) LogEvent(name string, data map[string]interface{}) {}
func (e *NoopExporter) LogSample(s Sample)                                {}
func (e *NoopExporter) Flush() error                                      { return nil }
func (e *NoopExporter) Close() error                                      { return nil }
