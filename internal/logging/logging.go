// Package logging sets up the process logger and keeps the training
// audit trail: one row per retraining attempt, whether it published a
// checkpoint, was refused, or failed.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// #region setup

// Setup builds the root logger. Unknown level names fall back to info.
func Setup(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

// #endregion setup
