// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/explorercharts/chartdata/charts"
	"github.com/explorercharts/chartdata/cmd/chartdata/internal/api"
	"github.com/explorercharts/chartdata/cmd/chartdata/internal/middleware"
	"github.com/explorercharts/chartdata/cmd/chartdata/internal/pubsub"
	"github.com/explorercharts/chartdata/dataset"
	"github.com/explorercharts/chartdata/sampler"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

// Write writes the data in p to standard out and the log rotator.
func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator == nil {
		return len(p), nil
	}
	return logRotator.Write(p)
}

// Loggers per subsystem. A single backend logger is created and all subsytem
// loggers created from it will write to the backend. When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Loggers only write to the log file after the log rotator has been
// initialized with initLogRotator.
var (
	// backendLog is the logging backend used to create all subsystem loggers.
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	samplerLog = backendLog.Logger("SMPL")
	datasetLog = backendLog.Logger("DSET")
	chartsLog  = backendLog.Logger("CHRT")
	apiLog     = backendLog.Logger("JAPI")
	pubsubLog  = backendLog.Logger("PUBS")
	log        = backendLog.Logger("CHDT")
)

// Initialize package-global logger variables.
func init() {
	sampler.UseLogger(samplerLog)
	dataset.UseLogger(datasetLog)
	charts.UseLogger(chartsLog)
	api.UseLogger(apiLog)
	middleware.UseLogger(apiLog)
	pubsub.UseLogger(pubsubLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"SMPL": samplerLog,
	"DSET": datasetLog,
	"CHRT": chartsLog,
	"JAPI": apiLog,
	"PUBS": pubsubLog,
	"CHDT": log,
}

// initLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory. It must be called before the
// package-global log rotater variables are used.
func initLogRotator(logFile string, maxRolls int) error {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 32*1024, false, maxRolls)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	if logRotator != nil {
		logRotator.Close()
	}
	logRotator = r
	return nil
}

// setLogLevel sets the logging level for provided subsystem. Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := slog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}
