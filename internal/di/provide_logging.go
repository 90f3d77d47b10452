package di

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// ProvideLogger creates a new zerolog.Logger configured for the runtime environment.
// On a terminal it uses console format with pretty printing; everywhere else
// (CI, redirected output) it uses JSON format.
func ProvideLogger() zerolog.Logger {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.InfoLevel).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(os.Stderr).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}
