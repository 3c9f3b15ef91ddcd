package am

import (
	"github.com/spf13/viper"
)

// Default file permissions for config artifacts
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.endpoint", "http://localhost:8890/sparql")
	v.SetDefault("source.internal_endpoint", "")
	v.SetDefault("source.use_internal_endpoint", false)
	v.SetDefault("source.timeout_seconds", 60)
	v.SetDefault("source.max_requests_per_second", 0)
	v.SetDefault("source.allow_private_hosts", true) // endpoints usually live on localhost

	// Validation defaults
	v.SetDefault("validation.schema_dir", "shapes")
	v.SetDefault("validation.target_var", "x")
	v.SetDefault("validation.prune_shape_network", true)
	v.SetDefault("validation.remove_constraints", false)
	v.SetDefault("validation.start_with_target_shape", true)

	// Pipeline defaults
	v.SetDefault("pipeline.backend", BackendQueue)
	v.SetDefault("pipeline.pipe_capacity", 1024)
	v.SetDefault("pipeline.serial", false)
	v.SetDefault("pipeline.queue_timeout_seconds", 30)
	v.SetDefault("pipeline.poll_interval_ms", 10)
	v.SetDefault("pipeline.restart_settle_ms", 500)
	v.SetDefault("pipeline.stop_timeout_seconds", 5)

	// Output defaults
	v.SetDefault("output.format", FormatSimple)
	v.SetDefault("output.directory", "output")
	v.SetDefault("output.test_identifier", "")
	v.SetDefault("output.approach_name", "valstream")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.read_timeout_seconds", 30)
}

// BindSensitiveEnvVars binds values that are commonly injected by the environment
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("source.endpoint", "VALSTREAM_SOURCE_ENDPOINT", "SPARQL_ENDPOINT")
	v.BindEnv("source.internal_endpoint", "VALSTREAM_SOURCE_INTERNAL_ENDPOINT", "INTERNAL_SPARQL_ENDPOINT")
}
