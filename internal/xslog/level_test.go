package xslog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{input: "debug", want: LevelDebug},
		{input: "INFO", want: LevelInfo},
		{input: " warn ", want: LevelWarn},
		{input: "error", want: LevelError},
		{input: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvKey, "debug")
	if got := FromEnv(); got != LevelDebug {
		t.Errorf("FromEnv = %q, want debug", got)
	}

	t.Setenv(EnvKey, "nonsense")
	if got := FromEnv(); got != Default {
		t.Errorf("FromEnv with invalid level = %q, want %q", got, Default)
	}
}

func TestNewLoggerFiltersByLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelWarn)
	logger.Info("hidden")
	logger.Warn("shown", Section("projects"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"section":"projects"`) {
		t.Errorf("missing section attr: %s", out)
	}
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithAttrs(WithLogger(context.Background(), logger), PageID("abc"))

	FromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), `"page_id":"abc"`) {
		t.Errorf("context attrs not applied: %s", buf.String())
	}

	if FromContext(context.Background()) != slog.Default() {
		t.Error("empty context should fall back to slog.Default")
	}
}
