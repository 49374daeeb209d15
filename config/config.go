// Package config loads simulation settings from TOML.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/simbus/bus"
	simerrors "github.com/vinayprograms/simbus/errors"
	"github.com/vinayprograms/simbus/logging"
	"github.com/vinayprograms/simbus/telemetry"
)

// Config is the complete simulation configuration.
type Config struct {
	Simulation SimulationConfig `toml:"simulation"`
	Bus        BusConfig        `toml:"bus"`
	Logging    LoggingConfig    `toml:"logging"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Output     OutputConfig     `toml:"output"`
}

// SimulationConfig controls the clock and the endpoints it drives.
type SimulationConfig struct {
	// TickInterval is the wall-clock time between ticks.
	TickInterval time.Duration `toml:"tick_interval"`

	// Duration is the number of ticks before the clock terminates.
	Duration int `toml:"duration"`

	// Sensors is the number of sensor endpoints.
	Sensors int `toml:"sensors"`

	// Workers is the number of tracker endpoints sharing detect requests.
	Workers int `toml:"workers"`

	// RequestsPerTick is the number of detect requests each sensor sends
	// per tick.
	RequestsPerTick int `toml:"requests_per_tick"`

	// ObjectsPerRequest is the number of detected objects in each request.
	ObjectsPerRequest int `toml:"objects_per_request"`

	// RequestTimeout bounds how long a sensor waits for each response.
	RequestTimeout time.Duration `toml:"request_timeout"`

	// CrashAtTick makes the first sensor report a crash at that tick.
	// Zero disables the crash.
	CrashAtTick int `toml:"crash_at_tick"`

	// ShutdownTimeout bounds the whole shutdown sequence.
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// BusConfig mirrors bus.Config.
type BusConfig struct {
	MailboxCapacity int `toml:"mailbox_capacity"`
}

// LoggingConfig controls console logging.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Protocol    string `toml:"protocol"` // grpc, http
	Endpoint    string `toml:"endpoint"`
	ServiceName string `toml:"service_name"`
	Insecure    bool   `toml:"insecure"`
	Debug       bool   `toml:"debug"`
}

// OutputConfig controls the report and the per-tick event stream.
type OutputConfig struct {
	// Report is the path of the JSON report. Empty disables it.
	Report string `toml:"report"`

	// EventsProtocol is file, http or noop.
	EventsProtocol string `toml:"events_protocol"`

	// Events is the JSONL path or HTTP collector URL for the event stream.
	Events string `toml:"events"`
}

// Default returns a configuration that runs a short simulation.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			TickInterval:      10 * time.Millisecond,
			Duration:          20,
			Sensors:           2,
			Workers:           3,
			RequestsPerTick:   2,
			ObjectsPerRequest: 4,
			RequestTimeout:    100 * time.Millisecond,
			ShutdownTimeout:   5 * time.Second,
		},
		Bus: BusConfig{
			MailboxCapacity: bus.DefaultConfig().MailboxCapacity,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: telemetry.DefaultServiceName,
		},
		Output: OutputConfig{
			EventsProtocol: "noop",
		},
	}
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, simerrors.WrapWithCode(err, simerrors.ErrCodeInvalidConfig, "failed to read config file",
			simerrors.WithMetadata("path", path))
	}
	return Parse(string(content))
}

// Parse parses TOML content over the defaults, applies environment
// overrides and validates the result. Unknown keys are rejected.
func Parse(content string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(content, cfg)
	if err != nil {
		return nil, simerrors.WrapWithCode(err, simerrors.ErrCodeInvalidConfig, "failed to parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, simerrors.InvalidConfig("unknown config keys: " + strings.Join(keys, ", "))
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides.
// OTEL_EXPORTER_OTLP_ENDPOINT fills an empty telemetry endpoint and
// OTEL_SERVICE_NAME replaces the default service name.
func (c *Config) ApplyEnv() {
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" && c.Telemetry.ServiceName == telemetry.DefaultServiceName {
		c.Telemetry.ServiceName = name
	}
}

// Validate checks the configuration for values the runner cannot use.
func (c *Config) Validate() error {
	s := c.Simulation
	switch {
	case s.TickInterval <= 0:
		return invalid("simulation.tick_interval", "must be positive")
	case s.Duration <= 0:
		return invalid("simulation.duration", "must be at least one tick")
	case s.Sensors <= 0:
		return invalid("simulation.sensors", "must be at least 1")
	case s.Workers <= 0:
		return invalid("simulation.workers", "must be at least 1")
	case s.RequestsPerTick < 0:
		return invalid("simulation.requests_per_tick", "must not be negative")
	case s.ObjectsPerRequest < 0:
		return invalid("simulation.objects_per_request", "must not be negative")
	case s.RequestTimeout <= 0:
		return invalid("simulation.request_timeout", "must be positive")
	case s.CrashAtTick < 0 || s.CrashAtTick > s.Duration:
		return invalid("simulation.crash_at_tick", fmt.Sprintf("must be between 0 and %d", s.Duration))
	case s.ShutdownTimeout <= 0:
		return invalid("simulation.shutdown_timeout", "must be positive")
	}

	if c.Bus.MailboxCapacity < 0 {
		return invalid("bus.mailbox_capacity", "must not be negative")
	}

	if level := strings.ToUpper(strings.TrimSpace(c.Logging.Level)); level != "" && logging.ParseLevel(level) != logging.Level(level) {
		return invalid("logging.level", "must be debug, info, warn or error")
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Protocol {
		case "grpc", "http":
		default:
			return invalid("telemetry.protocol", "must be grpc or http")
		}
		if c.Telemetry.Endpoint == "" {
			return invalid("telemetry.endpoint", "required when telemetry is enabled")
		}
	}

	switch c.Output.EventsProtocol {
	case "", "noop":
	case "file", "http":
		if c.Output.Events == "" {
			return invalid("output.events", "required for "+c.Output.EventsProtocol+" events")
		}
	default:
		return invalid("output.events_protocol", "must be file, http or noop")
	}
	return nil
}

func invalid(field, reason string) error {
	return simerrors.InvalidConfig(field+" "+reason, simerrors.WithMetadata("field", field))
}

// BusConfig returns the bus settings.
func (c *Config) BusConfig() bus.Config {
	return bus.Config{MailboxCapacity: c.Bus.MailboxCapacity}
}

// ProviderConfig returns the OpenTelemetry provider settings.
func (c *Config) ProviderConfig() telemetry.ProviderConfig {
	return telemetry.ProviderConfig{
		ServiceName: c.Telemetry.ServiceName,
		Endpoint:    c.Telemetry.Endpoint,
		Protocol:    c.Telemetry.Protocol,
		Insecure:    c.Telemetry.Insecure,
		Debug:       c.Telemetry.Debug,
	}
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Logging.Level)
}
