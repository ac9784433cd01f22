package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Config holds the configuration for the logger.
type Config struct {
	Level  string
	Pretty bool // Enable pretty logging for development
}

// Init initializes the global logger.
func Init(cfg Config) {
	once.Do(func() {
		level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339Nano

		if cfg.Pretty {
			logger = zerolog.New(zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: "2006-01-02 15:04:05",
			})
		} else {
			logger = zerolog.New(os.Stdout)
		}

		logger = logger.With().Timestamp().Logger()
		zerolog.DefaultContextLogger = &logger
	})
}

// Get returns the logger instance.
func Get() *zerolog.Logger {
	return &logger
}
