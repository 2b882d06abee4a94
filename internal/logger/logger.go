package logger

import (
	"os"

	"github.com/rs/zerolog"
)

func New() zerolog.Logger {
	// Keep the level field named "severity" so hosted log collectors can
	// parse the log level without extra configuration.
	zerolog.LevelFieldName = "severity"

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Use ConsoleWriter for local development for more readable logs.
	if os.Getenv("ENV") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	return logger.Level(zerolog.InfoLevel)
}
