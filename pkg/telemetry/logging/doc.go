// Package logging builds the process-wide slog logger from configuration.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	slog.SetDefault(logger)
//
// Components derive their own loggers with logger.With("component", name).
package logging
