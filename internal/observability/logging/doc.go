// Package logging builds the notifier's slog loggers and carries them
// through contexts.
//
// Example usage:
//
//	logger := logging.New(os.Stdout, cfg.LogLevel, logging.FormatJSON)
//	slog.SetDefault(logger)
//
//	func handle(ctx context.Context) {
//	    logging.WithRequestID(ctx, logger).Info("dispatching event")
//	}
package logging
