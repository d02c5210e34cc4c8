package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		level string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		logger, err := NewLogger(LoggingConfig{Level: tc.level, Format: "json", Output: "stderr"})
		if err != nil {
			t.Fatalf("NewLogger(%q) failed: %v", tc.level, err)
		}
		if logger.GetLevel() != tc.want {
			t.Errorf("level %q: got %v, want %v", tc.level, logger.GetLevel(), tc.want)
		}
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planvisor.log")
	logger, err := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Info().Str("plan_name", "balance").Msg("plan finished")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"plan_name":"balance"`) {
		t.Errorf("log file missing structured field: %s", data)
	}
}

func TestNewLoggerRejectsUnwritablePath(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: "/nonexistent-dir/planvisor.log"}); err == nil {
		t.Fatal("expected error for unwritable log path")
	}
}

func TestNewBuildsAllComponents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracing.Enabled = false
	cfg.Metrics.Enabled = false

	tel, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tel.Tracer == nil || tel.Metrics == nil {
		t.Fatal("expected tracer and metrics to be constructed")
	}
	if err := tel.StartMetricsServer(); err != nil {
		t.Errorf("StartMetricsServer failed: %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
}
