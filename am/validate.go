package am

import "github.com/teranos/valstream/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Source.Endpoint == "" {
		return errors.New("source.endpoint cannot be empty")
	}
	if c.Source.UseInternalEndpoint && c.Source.InternalEndpoint == "" {
		return errors.New("source.internal_endpoint cannot be empty when use_internal_endpoint is set")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return errors.Newf("source.timeout_seconds must be > 0, got %d", c.Source.TimeoutSeconds)
	}
	if c.Source.MaxRequestsPerSecond < 0 {
		return errors.Newf("source.max_requests_per_second must be >= 0, got %f", c.Source.MaxRequestsPerSecond)
	}

	switch c.Pipeline.Backend {
	case BackendQueue:
	case BackendPipe:
		if c.Pipeline.PipeCapacity <= 0 {
			return errors.Newf("pipeline.pipe_capacity must be > 0 for the pipe backend, got %d", c.Pipeline.PipeCapacity)
		}
		// a bounded pipe blocks its producer until a consumer reads; in serial
		// mode the consumer only starts after the producer returns
		if c.Pipeline.Serial {
			return errors.WithHint(
				errors.New("pipeline.serial cannot be combined with the pipe backend"),
				"use backend = \"queue\" for serial runs")
		}
	default:
		return errors.Newf("pipeline.backend must be %q or %q, got %q", BackendQueue, BackendPipe, c.Pipeline.Backend)
	}

	if c.Pipeline.QueueTimeoutSeconds <= 0 {
		return errors.Newf("pipeline.queue_timeout_seconds must be > 0, got %d", c.Pipeline.QueueTimeoutSeconds)
	}
	if c.Pipeline.PollIntervalMS <= 0 {
		return errors.Newf("pipeline.poll_interval_ms must be > 0, got %d", c.Pipeline.PollIntervalMS)
	}
	if c.Pipeline.RestartSettleMS < 0 {
		return errors.Newf("pipeline.restart_settle_ms must be >= 0, got %d", c.Pipeline.RestartSettleMS)
	}
	if c.Pipeline.StopTimeoutSeconds <= 0 {
		return errors.Newf("pipeline.stop_timeout_seconds must be > 0, got %d", c.Pipeline.StopTimeoutSeconds)
	}

	switch c.Output.Format {
	case FormatTest, FormatSimple, FormatStats:
	default:
		return errors.Newf("output.format must be one of test, simple, stats; got %q", c.Output.Format)
	}
	if c.Output.Format == FormatStats && c.Output.Directory == "" {
		return errors.New("output.directory cannot be empty for the stats format")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be in 1..65535, got %d", c.Server.Port)
	}

	return nil
}
