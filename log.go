package main

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLog configures the default logger from flags and config:
// stderr at Info by default, Error when quiet, and rotated-file output
// when a log file is configured. The returned closer flushes the file
// writer.
func setupLog() (func() error, error) {
	closer := func() error { return nil }

	level := log.InfoLevel
	if viper.GetBool("quiet") {
		level = log.ErrorLevel
	}
	if viper.GetBool("debug") {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetReportTimestamp(false)

	if path := viper.GetString("log-file"); path != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		}
		log.SetOutput(io.Writer(rotator))
		log.SetReportTimestamp(true)
		closer = rotator.Close
	} else {
		log.SetOutput(os.Stderr)
	}
	return closer, nil
}
