// README: Root zerolog logger; human-readable in development, JSON elsewhere.
package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func NewLogger(development bool) zerolog.Logger {
	var w io.Writer = os.Stdout
	level := zerolog.InfoLevel
	if development {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "streeteats-api").Logger()
}
