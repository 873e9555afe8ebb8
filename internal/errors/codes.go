package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"
	ErrUnavailable     ErrorCode = "service_unavailable"
	ErrUnsupported     ErrorCode = "unsupported_platform"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Resource errors
	ErrResourceNotFound ErrorCode = "resource_not_found"

	// Snapshot errors
	ErrSnapshotFailed ErrorCode = "snapshot_failed"
	ErrCPUTimes       ErrorCode = "cpu_times_failed"
	ErrLoadAverage    ErrorCode = "load_average_failed"
	ErrNetCounters    ErrorCode = "net_counters_failed"
	ErrMemoryStats    ErrorCode = "memory_stats_failed"
	ErrSensorRead     ErrorCode = "sensor_read_failed"
	ErrPowerSupply    ErrorCode = "power_supply_failed"
	ErrFilesystem     ErrorCode = "filesystem_failed"
	ErrBootTime       ErrorCode = "boot_time_failed"

	// Application errors
	ErrInitApp  ErrorCode = "init_app_failed"
	ErrMainLoop ErrorCode = "main_loop_failed"
	ErrExporter ErrorCode = "exporter_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"

	// Recorder errors
	ErrInitRecorder  ErrorCode = "init_recorder_failed"
	ErrRecordSamples ErrorCode = "record_samples_failed"
	ErrCloseRecorder ErrorCode = "close_recorder_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrNotImplemented:   "Operation not implemented",
	ErrUnavailable:      "Service unavailable",
	ErrUnsupported:      "Not supported on this platform",
	ErrInvalidConfig:    "Invalid configuration",
	ErrBindFlags:        "Failed to bind flags",
	ErrReadConfig:       "Failed to read configuration",
	ErrInvalidInterval:  "Invalid interval value",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrAlreadyRunning:   "Another instance is already running",
	ErrResourceNotFound: "Resource not found",
	ErrSnapshotFailed:   "Failed to take snapshot",
	ErrCPUTimes:         "Failed to read CPU times",
	ErrLoadAverage:      "Failed to read load average",
	ErrNetCounters:      "Failed to read network counters",
	ErrMemoryStats:      "Failed to read memory statistics",
	ErrSensorRead:       "Failed to read sensor",
	ErrPowerSupply:      "Failed to read power supply",
	ErrFilesystem:       "Failed to read filesystem",
	ErrBootTime:         "Failed to read boot time",
	ErrInitApp:          "Failed to initialize application",
	ErrMainLoop:         "Error in main loop",
	ErrExporter:         "Metrics exporter failed",
	ErrOperationFailed:  "Operation failed",
	ErrTimeout:          "Operation timed out",
	ErrInitRecorder:     "Failed to initialize recorder",
	ErrRecordSamples:    "Failed to record samples",
	ErrCloseRecorder:    "Failed to close recorder",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
