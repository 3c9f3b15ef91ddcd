package logger

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity
	FieldRunID = "run_id"

	// Components
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldRunner    = "runner"

	// Pipeline
	FieldBackend  = "backend"
	FieldTopic    = "topic"
	FieldEndpoint = "endpoint"
	FieldShape    = "shape"
	FieldKey      = "key"
	FieldFormat   = "format"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Counts and sizes
	FieldCount = "count"
	FieldSize  = "size"

	// Status
	FieldState = "state"

	// Network
	FieldAddress = "address"
	FieldPort    = "port"

	FieldSymbol = "symbol"
)
