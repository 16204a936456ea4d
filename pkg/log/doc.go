/*
Package log provides structured logging for quilldb using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

quilldb's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("query-engine")             │          │
	│  │  - WithTable("notes")                        │          │
	│  │  - WithDevice("device-abc123")               │          │
	│  │  - WithAdapter("grpc-adapter")                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "query-engine",             │          │
	│  │    "time": "2024-10-13T10:30:00Z",         │          │
	│  │    "message": "row inserted"                 │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2024-10-13T10:30:00Z INF row inserted ...  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all quilldb packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithTable: Add table name context (query engine, index manager)
  - WithDevice: Add device ID context (sync, key rotation)
  - WithAdapter: Add sync adapter name context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "evaluating where-clause predicate tree"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "table 'notes' opened, 1204 rows"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "embedder failed for row, stored without vector (lenient mode)"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "sync adapter push failed: connection refused"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to open key-value store"

# Usage

Initializing the Logger:

	import "github.com/quilldb/quilldb/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("database opened")
	log.Debug("evaluating query")
	log.Warn("cache disabled: maxEntries <= 0")
	log.Error("failed to decrypt sensitive column")
	log.Fatal("cannot start without a key-value store") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("table", "notes").
		Int("rows", 42).
		Msg("bulk insert complete")

	log.Logger.Error().
		Err(err).
		Str("device_id", "device-abc").
		Msg("sync push failed")

Context Loggers:

	// Table-scoped logs
	tableLog := log.WithTable("notes")
	tableLog.Info().Msg("vector index rebuilt")

	// Sync adapter logs
	adapterLog := log.WithAdapter("grpc-adapter")
	adapterLog.Warn().Msg("backoff scheduled after transport failure")

# Integration Points

This package integrates with:

  - pkg/quilldb: Logs database open
  - pkg/sync: Logs push failures and resolved conflicts
  - pkg/sync/grpcadapter: Logs received sync records
  - cmd/quilldb-cli: Logs CLI command execution

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"query-engine","table":"notes","time":"2024-10-13T10:30:00Z","message":"row inserted"}
	{"level":"warn","component":"sync","adapter":"grpc-adapter","time":"2024-10-13T10:30:01Z","message":"backoff scheduled"}
	{"level":"error","component":"security","device_id":"device-abc","error":"decrypt failed","time":"2024-10-13T10:30:02Z","message":"rotation step failed"}

Console Format (Development):

	2024-10-13T10:30:00Z INF row inserted component=query-engine table=notes
	2024-10-13T10:30:01Z WRN backoff scheduled component=sync adapter=grpc-adapter
	2024-10-13T10:30:02Z ERR rotation step failed component=security device_id=device-abc error="decrypt failed"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

# Performance Characteristics

Logging Overhead:
  - Disabled level: 0ns (compile-time optimization)
  - JSON encode: ~500ns per log line
  - Console format: ~1µs per log line

Log Level Impact:
  - Debug: High volume, use in development only
  - Info: Moderate volume, suitable for production
  - Warn/Error: Low volume, minimal impact

# Security

Log Content:
  - Never log decrypted sensitive-column plaintext
  - Never log raw key material (only key-ids)
  - Redact tokens and credentials before logging
  - Use typed fields (.Str, .Int) for user data, never string interpolation

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
*/
package log
