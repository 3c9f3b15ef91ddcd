package am

import "time"

// Config represents the valstream configuration
type Config struct {
	Source     SourceConfig     `mapstructure:"source" toml:"source"`
	Validation ValidationConfig `mapstructure:"validation" toml:"validation"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" toml:"pipeline"`
	Output     OutputConfig     `mapstructure:"output" toml:"output"`
	Server     ServerConfig     `mapstructure:"server" toml:"server"`
}

// SourceConfig configures the SPARQL endpoint the query and validator talk to
type SourceConfig struct {
	Endpoint             string  `mapstructure:"endpoint" toml:"endpoint"`
	InternalEndpoint     string  `mapstructure:"internal_endpoint" toml:"internal_endpoint"`         // used for the initial query when UseInternalEndpoint is set
	UseInternalEndpoint  bool    `mapstructure:"use_internal_endpoint" toml:"use_internal_endpoint"` // route the initial query to InternalEndpoint
	TimeoutSeconds       int     `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second" toml:"max_requests_per_second"` // 0 = unlimited
	AllowPrivateHosts    bool    `mapstructure:"allow_private_hosts" toml:"allow_private_hosts"`
}

// ValidationConfig configures shape loading and the validator
type ValidationConfig struct {
	SchemaDir            string            `mapstructure:"schema_dir" toml:"schema_dir"`
	TargetShape          string            `mapstructure:"target_shape" toml:"target_shape"`
	TargetVar            string            `mapstructure:"target_var" toml:"target_var"`
	ShapeVars            map[string]string `mapstructure:"shape_vars" toml:"shape_vars"` // query variable -> shape id
	PruneShapeNetwork    bool              `mapstructure:"prune_shape_network" toml:"prune_shape_network"`
	RemoveConstraints    bool              `mapstructure:"remove_constraints" toml:"remove_constraints"`
	StartWithTargetShape bool              `mapstructure:"start_with_target_shape" toml:"start_with_target_shape"`
}

// Channel backends
const (
	BackendQueue = "queue"
	BackendPipe  = "pipe"
)

// PipelineConfig configures runners and channels
type PipelineConfig struct {
	Backend             string `mapstructure:"backend" toml:"backend"`             // queue (unbounded) or pipe (bounded)
	PipeCapacity        int    `mapstructure:"pipe_capacity" toml:"pipe_capacity"` // buffer size for pipe channels
	Serial              bool   `mapstructure:"serial" toml:"serial"`               // run stages one after another in the caller
	QueueTimeoutSeconds int    `mapstructure:"queue_timeout_seconds" toml:"queue_timeout_seconds"`
	PollIntervalMS      int    `mapstructure:"poll_interval_ms" toml:"poll_interval_ms"`     // XJoin non-blocking poll timeout
	RestartSettleMS     int    `mapstructure:"restart_settle_ms" toml:"restart_settle_ms"`   // pause between stop and start
	StopTimeoutSeconds  int    `mapstructure:"stop_timeout_seconds" toml:"stop_timeout_seconds"`
}

// Output formats
const (
	FormatTest   = "test"
	FormatSimple = "simple"
	FormatStats  = "stats"
)

// OutputConfig configures the result document and statistics artifacts
type OutputConfig struct {
	Format         string `mapstructure:"format" toml:"format"`
	Directory      string `mapstructure:"directory" toml:"directory"` // trace.csv and stats.csv land here for the stats format
	TestIdentifier string `mapstructure:"test_identifier" toml:"test_identifier"`
	ApproachName   string `mapstructure:"approach_name" toml:"approach_name"`
}

// ServerConfig configures the HTTP front end
type ServerConfig struct {
	Port               int `mapstructure:"port" toml:"port"`
	ReadTimeoutSeconds int `mapstructure:"read_timeout_seconds" toml:"read_timeout_seconds"`
}

// DefaultServerPort is used when server.port is omitted
const DefaultServerPort = 9090

// QueueTimeout returns the queue read timeout as a duration
func (p PipelineConfig) QueueTimeout() time.Duration {
	return time.Duration(p.QueueTimeoutSeconds) * time.Second
}

// PollInterval returns the XJoin poll timeout as a duration
func (p PipelineConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

// RestartSettle returns the pause between stop and start during restart
func (p PipelineConfig) RestartSettle() time.Duration {
	return time.Duration(p.RestartSettleMS) * time.Millisecond
}

// StopTimeout returns how long Stop waits for a worker before giving up
func (p PipelineConfig) StopTimeout() time.Duration {
	return time.Duration(p.StopTimeoutSeconds) * time.Second
}

// Timeout returns the HTTP timeout for source requests
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// QueryEndpoint returns the endpoint the initial query is sent to
func (s SourceConfig) QueryEndpoint() string {
	if s.UseInternalEndpoint && s.InternalEndpoint != "" {
		return s.InternalEndpoint
	}
	return s.Endpoint
}
