package obs

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

var (
	loggerOnce sync.Once
	logger     zerolog.Logger
)

// InitLogger configures the process-wide structured logger. In development the
// output is human readable; everywhere else it is one JSON object per line.
func InitLogger(env, level string) {
	loggerOnce.Do(func() {
		var w io.Writer = os.Stdout
		if env == "development" {
			w = zerolog.ConsoleWriter{Out: os.Stdout}
		}
		logger = zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
		zlog.Logger = logger
	})
}

// Logger returns the shared structured logger used across the service.
func Logger() *zerolog.Logger {
	loggerOnce.Do(func() {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		zlog.Logger = logger
	})
	return &logger
}

// SetOutputForTests redirects the shared logger. Only intended for test use.
func SetOutputForTests(w io.Writer) {
	logger = logger.Output(w)
}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
