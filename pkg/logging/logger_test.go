package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/Tributary-ai-services/sitengine/pkg/config"
)

func TestNewWithSink(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{name: "json", cfg: config.LoggingConfig{Level: "info", Format: "json"}},
		{name: "text", cfg: config.LoggingConfig{Level: "debug", Format: "text"}},
		{name: "defaults", cfg: config.LoggingConfig{}},
		{name: "invalid level", cfg: config.LoggingConfig{Level: "verbose"}, wantErr: true},
		{name: "invalid format", cfg: config.LoggingConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger, err := NewWithSink(tt.cfg, zapcore.AddSync(buf))
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWithSink() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			logger.Info("classification run completed")
			if !strings.Contains(buf.String(), "classification run completed") {
				t.Errorf("Expected message in output, got %q", buf.String())
			}
		})
	}
}

func TestNewWithSink_LevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewWithSink(config.LoggingConfig{Level: "warn", Format: "json"}, zapcore.AddSync(buf))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	logger.Info("dropped")
	WithComponent(logger, "pipeline").Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output: %v", err)
	}
	if entry["msg"] != "kept" {
		t.Errorf("Expected msg kept, got %v", entry["msg"])
	}
	if entry["component"] != "pipeline" {
		t.Errorf("Expected component pipeline, got %v", entry["component"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("Expected timestamp key")
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitengine.log")
	logger, err := New(config.LoggingConfig{Output: "file", File: config.LogFileConfig{Path: path}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	logger.Info("written")
	_ = logger.Sync()

	if _, err := New(config.LoggingConfig{Output: "syslog"}); err == nil {
		t.Error("Expected error for unknown output")
	}
}
