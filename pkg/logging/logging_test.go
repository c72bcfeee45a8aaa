package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelWarn,
		"bogus": slog.LevelWarn,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelWarn))

	logger.Info("Invoice created", "invoice_id", "abc")
	assert.Empty(t, buf.String(), "info is below warn")

	logger.Warn("Payment failed validation", "payment_id", "p-1")
	assert.Contains(t, buf.String(), "Payment failed validation")
	assert.Contains(t, buf.String(), "payment_id=p-1")
	assert.NotContains(t, buf.String(), "\x1b[", "no ANSI colors outside stderr")
}

func TestSetup(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	ctx := context.Background()

	t.Setenv("LOG_LEVEL", "debug")
	Setup()
	assert.True(t, slog.Default().Enabled(ctx, slog.LevelDebug))

	t.Setenv("LOG_LEVEL", "")
	Setup()
	assert.False(t, slog.Default().Enabled(ctx, slog.LevelInfo))
	assert.True(t, slog.Default().Enabled(ctx, slog.LevelWarn))
}
