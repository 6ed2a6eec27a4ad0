// Package logging builds the zap loggers used by the chat client and relay.
//
// Production logs are JSON; development logs are coloured console lines at
// debug level. FromSettings maps the LOG_LEVEL / LOG_DEV configuration onto
// one of the two and falls back to info on an unknown level. The chat client
// logs to stderr so the transcript on stdout stays readable.
//
// Components receive a *zap.Logger and name themselves with Named, so a line
// logged by the session manager carries "logger":"session".
//
// Example Usage:
//
//	logger := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development, "stderr")
//	defer logger.Sync()
//	logger.Info("relay listening", zap.String("addr", srv.Addr()))
package logging
