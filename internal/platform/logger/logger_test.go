package logger

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		configured string
		want       slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo}, // unrecognized falls back
	}
	for _, tc := range tests {
		l := Setup(tc.configured)
		if l == nil {
			t.Fatalf("Setup(%q) returned nil", tc.configured)
		}
		if !l.Enabled(context.Background(), tc.want) {
			t.Errorf("Setup(%q): expected level %v enabled", tc.configured, tc.want)
		}
		if tc.want > slog.LevelDebug && l.Enabled(context.Background(), tc.want-4) {
			t.Errorf("Setup(%q): expected level below %v disabled", tc.configured, tc.want)
		}
	}
}

func TestSetupSetsDefault(t *testing.T) {
	l := Setup("info")
	if slog.Default() != l {
		t.Error("Expected Setup to install the process default logger")
	}
}

func TestFromContextRoundTrip(t *testing.T) {
	l := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("run_id", "r-1")
	ctx := WithLogger(context.Background(), l)

	if got := FromContext(ctx); got != l {
		t.Error("Expected the attached logger back")
	}
	if got := FromContext(context.Background()); got != slog.Default() {
		t.Error("Expected the process default for a bare context")
	}
}
