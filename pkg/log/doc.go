// Package log provides the logging abstraction shared by the controller and
// the worker.
//
// The worker's stdout carries protocol frames, so every implementation here
// must write somewhere else (stderr by default).
//
// # Usage
//
//	logger := log.NewZerologAdapter()
//	epochLog := logger.With(log.String("backend", "mmap-raw"), log.Int("epoch", 3))
//	epochLog.Info("state match")
//
// Tests use the no-op logger:
//
//	logger := log.NewNoopLogger()
package log
