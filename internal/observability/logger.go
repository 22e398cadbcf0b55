package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// InitLogger builds a console logger tagged with app. Unlike the process
// logger it always writes to stdout so request logs can be piped separately.
func InitLogger(app string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Str("app", app).Logger()
}
