package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a console logger writing to stdout
func New(verbose bool) zerolog.Logger {
	return NewWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}, verbose)
}

// NewWriter creates a logger that writes JSON lines to the provided writer
func NewWriter(w io.Writer, verbose bool) zerolog.Logger {
	return zerolog.New(w).Level(level(verbose)).With().Timestamp().Logger()
}

// Open returns a JSON logger appending to path, or a console logger when path is
// empty. The returned closer must be called on shutdown.
func Open(path string, verbose bool) (zerolog.Logger, io.Closer, error) {
	if path == "" {
		return New(verbose), nopCloser{}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return NewWriter(file, verbose), file, nil
}

func level(verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
