package util

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerFromContextFallsBackToDefault(t *testing.T) {
	if got := LoggerFromContext(context.Background()); got != slog.Default() {
		t.Fatal("expected default logger without a request-scoped one")
	}
	if got := LoggerFromContext(ContextWithLogger(context.Background(), nil)); got != slog.Default() {
		t.Fatal("nil logger should not be stored")
	}
}

func TestContextWithLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil)).With("request_id", "req-1")
	ctx := ContextWithLogger(context.Background(), logger)

	LoggerFromContext(ctx).Info("hello")
	if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"req-1"`)) {
		t.Fatalf("expected request id attribute, got %s", buf.String())
	}
}
