package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
	ErrWatchConfig     ErrorCode = "watch_config_failed"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Hardware and tool errors
	ErrHardwareIO      ErrorCode = "hardware_io_failed"
	ErrExternalTool    ErrorCode = "external_tool_failed"
	ErrToolUnavailable ErrorCode = "tool_unavailable"

	// Persistence errors
	ErrPersistence ErrorCode = "persistence_failed"

	// Application errors
	ErrMainLoop    ErrorCode = "main_loop_failed"
	ErrReleaseFans ErrorCode = "release_fans_failed"

	// Operation errors
	ErrTimeout ErrorCode = "operation_timeout"

	// Metrics errors
	ErrInitMetrics    ErrorCode = "init_metrics_failed"
	ErrCollectMetrics ErrorCode = "collect_metrics_failed"
	ErrCloseMetrics   ErrorCode = "close_metrics_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrUnavailable:     "Service unavailable",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrInvalidConfig:   "Invalid configuration",
	ErrReadConfig:      "Failed to read config file",
	ErrBindFlags:       "Failed to bind flags",
	ErrInvalidInterval: "Invalid interval value",
	ErrInvalidLogLevel: "Invalid log level",
	ErrWatchConfig:     "Failed to watch configuration",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrHardwareIO:      "Hardware read or write failed",
	ErrExternalTool:    "External tool failed",
	ErrToolUnavailable: "External tool not available",
	ErrPersistence:     "Settings persistence failed",
	ErrMainLoop:        "Error in main loop",
	ErrReleaseFans:     "Failed to release fans to firmware control",
	ErrTimeout:         "Operation timed out",
	ErrInitMetrics:     "Failed to initialize metrics",
	ErrCollectMetrics:  "Failed to collect metrics data",
	ErrCloseMetrics:    "Failed to close metrics connection",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
