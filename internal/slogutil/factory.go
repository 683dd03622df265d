package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Options describes where kmerge logs go.
type Options struct {
	// Console receives records at ConsoleLevel. Defaults to os.Stderr.
	Console      io.Writer
	ConsoleLevel slog.Level
	Format       Format

	// File, when set, also receives records at FileLevel.
	File       string
	FileLevel  slog.Level
	MaxSize    string
	MaxBackups int
}

// Setup builds the process logger. The returned closer releases the log
// file and is never nil.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	handlers := []slog.Handler{NewHandler(console, opts.ConsoleLevel, opts.Format)}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		size, err := ParseSize(opts.MaxSize)
		if err != nil {
			return nil, closer, fmt.Errorf("log file rotation: %w", err)
		}
		rf, err := OpenRotatingFile(opts.File, size, opts.MaxBackups)
		if err != nil {
			return nil, closer, fmt.Errorf("opening log file: %w", err)
		}
		handlers = append(handlers, NewHandler(rf, opts.FileLevel, opts.Format))
		closer = rf
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closer, nil
	}
	return slog.New(NewTeeHandler(handlers...)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
