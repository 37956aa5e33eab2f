// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package obslog wires up structured logging and per-stage metrics for the
// pipeline. Logging is log/slog with a redacting handler wrapper; metrics
// are Prometheus counters/histograms, one set per pipeline stage.
package obslog

import (
	"fmt"
	"log/slog"
	"os"
)

const (
	LogFileEnvVar   = "KBRAG_LOG_FILE"
	LogLevelEnvVar  = "KBRAG_LOG_LEVEL"
	LogFormatEnvVar = "KBRAG_LOG_FORMAT"
)

// ParseLevel parses a textual log level into a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// Init installs the global slog logger, wrapped with PHI/secret redaction,
// writing to output in the requested format ("json" or "text").
func Init(level slog.Level, output *os.File, format string) {
	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if format == "json" {
		base = slog.NewJSONHandler(output, opts)
	} else {
		base = slog.NewTextHandler(output, opts)
	}

	slog.SetDefault(slog.New(NewRedactingHandler(base)))
}

// OpenLogFile opens (creating if necessary) a log file for appending, and
// returns a cleanup function that closes it.
func OpenLogFile(path string) (*os.File, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

// InitFromEnv initializes logging purely from environment variables, for use
// by callers (tests, short-lived tools) that don't go through cmd/kbragd's
// CLI flag parsing.
func InitFromEnv() error {
	levelStr := os.Getenv(LogLevelEnvVar)
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}

	format := os.Getenv(LogFormatEnvVar)
	if format == "" {
		format = "text"
	}

	output := os.Stderr
	if path := os.Getenv(LogFileEnvVar); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", path, err)
		}
		output = f
	}

	Init(level, output, format)
	return nil
}
