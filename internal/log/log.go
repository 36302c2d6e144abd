// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package log centralizes the subsystem logger table used across the
// mining orchestrator. Each subsystem owns its own slog.Logger so that
// log levels can be tuned independently, mirroring the convention used
// throughout the decred family of daemons this module is descended from.
package log

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Eacred/slog"
	"github.com/jrick/logrotate/rotator"
)

// subsystem tags, used both as map keys and as the log-line prefix.
const (
	SubsystemOrchestrator = "ORCH"
	SubsystemWorkerPool   = "WRKR"
	SubsystemPoller       = "POLL"
	SubsystemDevFee       = "FEE "
	SubsystemReceipts     = "RCPT"
	SubsystemHashEngine   = "HASH"
	SubsystemRegistrar    = "REGR"
	SubsystemConfig       = "CFG "
	SubsystemStatus       = "STAT"
)

var subsystems = []string{
	SubsystemOrchestrator,
	SubsystemWorkerPool,
	SubsystemPoller,
	SubsystemDevFee,
	SubsystemReceipts,
	SubsystemHashEngine,
	SubsystemRegistrar,
	SubsystemConfig,
	SubsystemStatus,
}

// backendLog is the logging backend used to create all subsystem loggers.
// Its writer discards output until InitLogRotator installs a rotator, so
// packages never crash on a nil logger before InitLogRotator is called.
var backendLog = slog.NewBackend(logWriter{})

// logRotator is the rotating file writer installed by InitLogRotator.
var logRotator *rotator.Rotator

// loggers holds one slog.Logger per subsystem tag.
var loggers = make(map[string]slog.Logger, len(subsystems))

func init() {
	for _, tag := range subsystems {
		loggers[tag] = backendLog.Logger(tag)
	}
}

// Logger returns the logger for the named subsystem, or a disabled
// logger if tag is unknown.
func Logger(tag string) slog.Logger {
	if l, ok := loggers[tag]; ok {
		return l
	}
	return slog.Disabled
}

// SetLogLevels sets every subsystem's logger to the given level string
// (e.g. "trace", "debug", "info", "warn", "error", "critical", "off").
func SetLogLevels(levelStr string) error {
	level, ok := slog.LevelFromString(levelStr)
	if !ok {
		return fmt.Errorf("unknown log level %q", levelStr)
	}
	for _, tag := range subsystems {
		loggers[tag].SetLevel(level)
	}
	return nil
}

// logWriter couples stdout with a rotating file writer the way the
// decred-family daemons do, so every log line lands in both places.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if logRotator == nil {
		return len(p), nil
	}
	os.Stdout.Write(p)
	return logRotator.Write(p)
}

// InitLogRotator initializes the rolling file logger at logFile and
// routes every subsystem logger's output to it (together with stdout),
// including loggers handed out before this call. maxRolls bounds how many
// rotated files are retained.
func InitLogRotator(logFile string, maxRolls int) error {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, maxRolls)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	logRotator = r
	return nil
}
