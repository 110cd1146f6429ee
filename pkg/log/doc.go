/*
Package log provides structured logging for popsync using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers and configurable levels. The agent runs on
driver devices where log volume matters, so the default level is info and
debug is opt-in via configuration.

# Usage

Initialize once at startup:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
	})

Component loggers:

	logger := log.WithComponent("flush")
	logger.Info().Str("action_id", a.ID).Msg("Action delivered")

Domain-scoped loggers:

	log.WithJobID(job.ID).Warn().Msg("Status update queued offline")
*/
package log
