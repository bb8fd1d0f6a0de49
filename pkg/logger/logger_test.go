package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

// captureLogOutput captures log output to a buffer for testing
func captureLogOutput(t *testing.T, fn func()) string {
	t.Helper()

	originalStdout := os.Stdout
	defer func() { os.Stdout = originalStdout }()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}

	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = originalStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)

	return buf.String()
}

// parseLogLine parses a JSON log line into a map
func parseLogLine(t *testing.T, line string) map[string]interface{} {
	t.Helper()

	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(line), &result); err != nil {
		t.Fatalf("Failed to parse log line: %v\nLine: %s", err, line)
	}

	return result
}

func TestDefaultConfig(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("LOG_FORMAT")

	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("Expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("Expected default format 'json', got '%s'", cfg.Format)
	}
	if cfg.TimeFormat != time.RFC3339 {
		t.Errorf("Expected time format RFC3339, got '%s'", cfg.TimeFormat)
	}
}

func TestDefaultConfig_EnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name           string
		envLevel       string
		envFormat      string
		expectedLevel  string
		expectedFormat string
	}{
		{name: "Debug level", envLevel: "debug", expectedLevel: "debug", expectedFormat: "json"},
		{name: "Console format", envFormat: "console", expectedLevel: "info", expectedFormat: "console"},
		{name: "Both overridden", envLevel: "error", envFormat: "console", expectedLevel: "error", expectedFormat: "console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("LOG_LEVEL")
			os.Unsetenv("LOG_FORMAT")
			if tt.envLevel != "" {
				os.Setenv("LOG_LEVEL", tt.envLevel)
				defer os.Unsetenv("LOG_LEVEL")
			}
			if tt.envFormat != "" {
				os.Setenv("LOG_FORMAT", tt.envFormat)
				defer os.Unsetenv("LOG_FORMAT")
			}

			cfg := DefaultConfig()

			if cfg.Level != tt.expectedLevel {
				t.Errorf("Expected level '%s', got '%s'", tt.expectedLevel, cfg.Level)
			}
			if cfg.Format != tt.expectedFormat {
				t.Errorf("Expected format '%s', got '%s'", tt.expectedFormat, cfg.Format)
			}
		})
	}
}

func TestInit_JSONFormat(t *testing.T) {
	output := captureLogOutput(t, func() {
		Init(Config{
			Level:      "info",
			Format:     "json",
			TimeFormat: time.RFC3339,
		})
		Log.Info().Msg("test message")
	})

	logEntry := parseLogLine(t, output)
	if logEntry == nil {
		t.Fatal("Expected log output, got none")
	}

	if logEntry["level"] != "info" {
		t.Errorf("Expected level 'info', got '%v'", logEntry["level"])
	}
	if logEntry["message"] != "test message" {
		t.Errorf("Expected message 'test message', got '%v'", logEntry["message"])
	}
	if logEntry["service"] != "leadflow" {
		t.Errorf("Expected service 'leadflow', got '%v'", logEntry["service"])
	}
	if _, ok := logEntry["time"]; !ok {
		t.Error("Expected 'time' field in log output")
	}
}

func TestInit_ConsoleFormat(t *testing.T) {
	output := captureLogOutput(t, func() {
		Init(Config{
			Level:      "info",
			Format:     "console",
			TimeFormat: time.RFC3339,
		})
		Log.Info().Msg("test message")
	})

	if !strings.Contains(output, "test message") {
		t.Errorf("Expected 'test message' in output, got: %s", output)
	}
	if !strings.Contains(output, "INF") {
		t.Errorf("Expected 'INF' log level indicator in output, got: %s", output)
	}
}

func TestInit_LogLevels(t *testing.T) {
	tests := []struct {
		level     string
		shouldLog map[string]bool
	}{
		{level: "debug", shouldLog: map[string]bool{"debug": true, "info": true, "warn": true, "error": true}},
		{level: "info", shouldLog: map[string]bool{"debug": false, "info": true, "warn": true, "error": true}},
		{level: "warn", shouldLog: map[string]bool{"debug": false, "info": false, "warn": true, "error": true}},
		{level: "error", shouldLog: map[string]bool{"debug": false, "info": false, "warn": false, "error": true}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			output := captureLogOutput(t, func() {
				Init(Config{Level: tt.level, Format: "json", TimeFormat: time.RFC3339})

				Log.Debug().Msg("debug message")
				Log.Info().Msg("info message")
				Log.Warn().Msg("warn message")
				Log.Error().Msg("error message")
			})

			lines := strings.Split(strings.TrimSpace(output), "\n")

			for levelName, shouldLog := range tt.shouldLog {
				found := false
				for _, line := range lines {
					if line == "" {
						continue
					}
					logEntry := parseLogLine(t, line)
					if logEntry != nil && logEntry["level"] == levelName {
						found = true
						break
					}
				}

				if shouldLog && !found {
					t.Errorf("Expected %s message to be logged with level %s, but it wasn't", levelName, tt.level)
				}
				if !shouldLog && found {
					t.Errorf("Expected %s message NOT to be logged with level %s, but it was", levelName, tt.level)
				}
			}
		})
	}
}

func TestInit_InvalidLevel(t *testing.T) {
	output := captureLogOutput(t, func() {
		Init(Config{Level: "invalid", Format: "json", TimeFormat: time.RFC3339})

		// With invalid level, should default to InfoLevel
		Log.Debug().Msg("debug message")
		Log.Info().Msg("info message")
	})

	lines := strings.Split(strings.TrimSpace(output), "\n")

	debugFound := false
	infoFound := false
	for _, line := range lines {
		if line == "" {
			continue
		}
		logEntry := parseLogLine(t, line)
		if logEntry != nil {
			if logEntry["level"] == "debug" {
				debugFound = true
			}
			if logEntry["level"] == "info" {
				infoFound = true
			}
		}
	}

	if debugFound {
		t.Error("Debug message should not be logged with invalid level (defaults to info)")
	}
	if !infoFound {
		t.Error("Info message should be logged with invalid level (defaults to info)")
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "job-12345")

	value := ctx.Value(RequestIDKey)
	if value == nil {
		t.Fatal("Expected request ID in context, got nil")
	}
	if value.(string) != "job-12345" {
		t.Errorf("Expected request ID 'job-12345', got '%s'", value.(string))
	}
}

func TestFromContext_WithLeadID(t *testing.T) {
	ctx := WithLeadID(context.Background(), "lead-67890")

	output := captureLogOutput(t, func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		logger := FromContext(ctx)
		logger.Info().Msg("test message")
	})

	logEntry := parseLogLine(t, output)
	if logEntry == nil {
		t.Fatal("Expected log output, got none")
	}
	if logEntry["lead_id"] != "lead-67890" {
		t.Errorf("Expected lead_id 'lead-67890', got '%v'", logEntry["lead_id"])
	}
}

func TestFromContext_WithBothIDs(t *testing.T) {
	ctx := WithRequestID(context.Background(), "job-12345")
	ctx = WithLeadID(ctx, "lead-67890")

	output := captureLogOutput(t, func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		logger := FromContext(ctx)
		logger.Info().Msg("test message")
	})

	logEntry := parseLogLine(t, output)
	if logEntry == nil {
		t.Fatal("Expected log output, got none")
	}
	if logEntry["request_id"] != "job-12345" {
		t.Errorf("Expected request_id 'job-12345', got '%v'", logEntry["request_id"])
	}
	if logEntry["lead_id"] != "lead-67890" {
		t.Errorf("Expected lead_id 'lead-67890', got '%v'", logEntry["lead_id"])
	}
}

func TestFromContext_Empty(t *testing.T) {
	output := captureLogOutput(t, func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		logger := FromContext(context.Background())
		logger.Info().Msg("test message")
	})

	logEntry := parseLogLine(t, output)
	if logEntry == nil {
		t.Fatal("Expected log output, got none")
	}
	if _, ok := logEntry["request_id"]; ok {
		t.Error("Expected no request_id in empty context")
	}
	if _, ok := logEntry["lead_id"]; ok {
		t.Error("Expected no lead_id in empty context")
	}
	if logEntry["service"] != "leadflow" {
		t.Errorf("Expected service 'leadflow', got '%v'", logEntry["service"])
	}
}

func TestLead(t *testing.T) {
	output := captureLogOutput(t, func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		logger := Lead("lead-12345")
		logger.Info().Msg("lead event")
	})

	logEntry := parseLogLine(t, output)
	if logEntry == nil {
		t.Fatal("Expected log output, got none")
	}
	if logEntry["lead_id"] != "lead-12345" {
		t.Errorf("Expected lead_id 'lead-12345', got '%v'", logEntry["lead_id"])
	}
}

func TestBuyer(t *testing.T) {
	output := captureLogOutput(t, func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		logger := Buyer("acme-home-services")
		logger.Info().Msg("buyer event")
	})

	logEntry := parseLogLine(t, output)
	if logEntry == nil {
		t.Fatal("Expected log output, got none")
	}
	if logEntry["buyer"] != "acme-home-services" {
		t.Errorf("Expected buyer 'acme-home-services', got '%v'", logEntry["buyer"])
	}
}

func TestQueue(t *testing.T) {
	output := captureLogOutput(t, func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		logger := Queue()
		logger.Info().Msg("queue event")
	})

	logEntry := parseLogLine(t, output)
	if logEntry == nil {
		t.Fatal("Expected log output, got none")
	}
	if logEntry["component"] != "queue" {
		t.Errorf("Expected component 'queue', got '%v'", logEntry["component"])
	}
}
