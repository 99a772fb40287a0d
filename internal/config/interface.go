package config

import (
	"context"

	"github.com/spf13/pflag"
)

// Provider defines the interface for accessing the values a running
// daemon may pick up again after a configuration reload
type Provider interface {
	// GetInterval returns the tick interval in seconds
	GetInterval() int

	// GetHysteresis returns the minimum percent change before a fan is re-driven
	GetHysteresis() int

	// GetTemperatureWindow returns the number of samples averaged per fan
	GetTemperatureWindow() int

	// IsMonitorMode returns whether monitor-only mode is enabled
	IsMonitorMode() bool

	// GetLogLevel returns the configured logging level
	GetLogLevel() string

	// IsMetricsEnabled returns whether metrics collection is enabled
	IsMetricsEnabled() bool

	// GetMetricsDBPath returns the path to the metrics database
	GetMetricsDBPath() string
}

// Watcher enables live configuration updates
type Watcher interface {
	// Watch blocks until ctx is done, calling callback with the reloaded
	// configuration whenever the configuration file changes
	Watch(ctx context.Context, callback func(Provider)) error
}

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

// options holds internal configuration options
type options struct {
	configPath string
	envPrefix  string
	flags      *pflag.FlagSet
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "HANDHELDCTL"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithFlags binds parsed command line flags registered with RegisterFlags.
// Flags that were set override file and environment values.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(o *options) error {
		o.flags = fs
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
