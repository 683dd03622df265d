package slogutil

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLineHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Warn("incorrect order, skipping line", "file", "a.txt", "line", 4)

	out := buf.String()
	for _, want := range []string{"[warn]", "incorrect order, skipping line", " | file=a.txt line=4"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("record not newline terminated: %q", out)
	}
}

func TestLineHandler_NoAttrsNoSeparator(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo).Info("done")
	if strings.Contains(buf.String(), "|") {
		t.Errorf("unexpected separator in %q", buf.String())
	}
}

func TestLineHandler_QuotesValues(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo).Info("x", "path", "my file.txt", "error", errors.New("boom"))

	out := buf.String()
	if !strings.Contains(out, `path="my file.txt"`) {
		t.Errorf("path not quoted: %q", out)
	}
	if !strings.Contains(out, `error="boom"`) {
		t.Errorf("error not rendered: %q", out)
	}
}

func TestLineHandler_Levels(t *testing.T) {
	tests := []struct {
		log  func(*slog.Logger)
		want string
	}{
		{func(l *slog.Logger) { l.Debug("m") }, "[debug]"},
		{func(l *slog.Logger) { l.Info("m") }, "[info]"},
		{func(l *slog.Logger) { l.Warn("m") }, "[warn]"},
		{func(l *slog.Logger) { l.Error("m") }, "[error]"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewLogger(&buf, slog.LevelDebug))
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %s in %q", tt.want, buf.String())
			}
		})
	}
}

func TestLineHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("records below warn leaked: %q", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestLineHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).With("run", "r1").WithGroup("src")
	logger.Info("x", "id", "a.txt")

	out := buf.String()
	if !strings.Contains(out, "| run=r1 src.id=a.txt") {
		t.Errorf("unexpected attrs in %q", out)
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LevelFromString(tt.in); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		quiet     bool
		want      slog.Level
	}{
		{0, false, slog.LevelWarn},
		{1, false, slog.LevelInfo},
		{2, false, slog.LevelDebug},
		{5, false, slog.LevelDebug},
		{2, true, LevelSilent},
	}
	for _, tt := range tests {
		if got := LevelFromVerbosity(tt.verbosity, tt.quiet); got != tt.want {
			t.Errorf("LevelFromVerbosity(%d, %v) = %v, want %v", tt.verbosity, tt.quiet, got, tt.want)
		}
	}
}

func TestNewDiscardLogger(t *testing.T) {
	logger := NewDiscardLogger()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger should not be enabled at error")
	}
}

func TestTeeHandler(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(NewTeeHandler(
		NewLineHandler(&a, &slog.HandlerOptions{Level: slog.LevelWarn}),
		NewLineHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}),
	))

	logger.Info("only b")
	logger.Warn("both")

	if strings.Contains(a.String(), "only b") {
		t.Errorf("a received info record: %q", a.String())
	}
	if !strings.Contains(a.String(), "both") || !strings.Contains(b.String(), "both") {
		t.Errorf("warn record not fanned out: a=%q b=%q", a.String(), b.String())
	}
	if !strings.Contains(b.String(), "only b") {
		t.Errorf("b missing info record: %q", b.String())
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}
