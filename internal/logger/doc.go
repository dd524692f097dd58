// Package logger provides a simple, thread-safe logging facility.
//
// The logger supports four levels: Debug, Info, Warn, and Error.
// Each log entry includes a timestamp, level, an optional subject (a virtual
// player ID or scenario name), and the message.
//
// # Basic Usage
//
//	logger.Info("", "Suite started")
//	logger.Info("mm-accuracy-3f2a-12", "Match found after %v", wait)
//	logger.Warn("mm-accuracy-3f2a-12", "Connect attempt %d failed: %v", n, err)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("player-1", "Queue position %d", pos)
//
// # Log Levels
//
// Messages below the configured level are filtered:
//   - LevelDebug: all messages
//   - LevelInfo: Info, Warn, Error
//   - LevelWarn: Warn, Error
//   - LevelError: Error only
//
// ParseLevel converts the CLI spelling ("debug", "info", "warn", "error").
package logger
