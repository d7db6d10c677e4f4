// Package logger builds the zap logger used across the service.
//
// The debug level selects zap's development config (ISO8601 timestamps, stack
// traces on warnings); every other level uses the production config. Format
// picks json or console encoding.
//
// WithRayID attaches the request's ray id (set by the rayid middleware) to a
// logger, so every line logged while handling an upload can be correlated.
//
// # Usage
//
//	log, _ := logger.New(&cfg.Log)
//	log.Info("Server started")
//
//	// In a request handler:
//	l := logger.WithRayID(log, c)
//	l.Error("Upload failed", zap.Error(err))
package logger
