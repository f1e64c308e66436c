// Package logging provides a minimal logging interface and adapters for agentengine.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the runner, the remote client and the emulator server use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - EngineLogger with contextual helpers (component, user/session, invocation)
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	client := remote.New(project, location, func(o *remote.Options) { o.Logger = logger })
//
// Key/value arguments follow slog conventions: messages are dotted event
// names ("remote.register.start") and args are alternating keys and values.
package logging
