/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, nil)
}

// SetupWithWriter logs human-readable lines to stderr and, when extra is set,
// JSON lines to extra (the --log-file).
func SetupWithWriter(environment string, extra io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	if extra != nil {
		out = zerolog.MultiLevelWriter(out, extra)
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(levelFor(environment))
	log.Logger = logger
	return logger
}

// WithLevel overrides the logger's level with a zerolog level name such as
// "debug" or "warn". An empty name leaves it unchanged.
func WithLevel(logger zerolog.Logger, name string) (zerolog.Logger, error) {
	if name == "" {
		return logger, nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return logger, fmt.Errorf("log level %q: %w", name, err)
	}
	logger = logger.Level(level)
	log.Logger = logger
	return logger, nil
}

func levelFor(environment string) zerolog.Level {
	if environment == "development" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
