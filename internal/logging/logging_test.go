package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLevelFollowsEnvironment(t *testing.T) {
	if got := Setup("development").GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("expected debug level in development, got %s", got)
	}
	if got := Setup("production").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("expected info level in production, got %s", got)
	}
}

func TestSetupWithWriterTeesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", &buf)

	logger.Info().Str("component", "gefs").Msg("download complete")
	logger.Debug().Msg("hidden")

	out := buf.String()
	if !strings.Contains(out, `"component":"gefs"`) {
		t.Fatalf("expected JSON line with component field, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered at info level: %q", out)
	}
}

func TestWithLevel(t *testing.T) {
	logger := Setup("production")

	got, err := WithLevel(logger, "warn")
	if err != nil {
		t.Fatalf("with level: %v", err)
	}
	if got.GetLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %s", got.GetLevel())
	}

	if same, _ := WithLevel(logger, ""); same.GetLevel() != zerolog.InfoLevel {
		t.Errorf("empty level should keep info, got %s", same.GetLevel())
	}
	if _, err := WithLevel(logger, "loud"); err == nil {
		t.Error("expected an unknown level to fail")
	}
}
