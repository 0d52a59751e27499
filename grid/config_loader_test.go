package grid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Valid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `grid:
  resolution: 10
  displayScale: 4
mqtt:
  broker: "mqtt://localhost:1883"
  observationTopic: "robot/obs"
  publishPrefix: "maps"
serial:
  port: /dev/ttyUSB0
  baudRate: 57600
rebuild:
  minInterval: 2s
logLevel: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Grid.Resolution != 10 || config.Grid.DisplayScale != 4 {
		t.Errorf("grid = %+v, want resolution 10 scale 4", config.Grid)
	}
	if config.MQTT.Broker != "mqtt://localhost:1883" {
		t.Errorf("Expected broker mqtt://localhost:1883, got %s", config.MQTT.Broker)
	}
	if config.MQTT.ObservationTopic != "robot/obs" {
		t.Errorf("observationTopic = %q", config.MQTT.ObservationTopic)
	}
	if config.MQTT.ClientID != "occugrid" {
		t.Errorf("clientId default lost: %q", config.MQTT.ClientID)
	}
	if config.Serial.BaudRate != 57600 {
		t.Errorf("baudRate = %d", config.Serial.BaudRate)
	}
	if config.Rebuild.MinInterval != 2*time.Second {
		t.Errorf("minInterval = %v, want 2s", config.Rebuild.MinInterval)
	}
	if config.HTTP.Port != 8080 {
		t.Errorf("http.port default lost: %d", config.HTTP.Port)
	}
	if config.Render.Occupied != "#000000" {
		t.Errorf("render default lost: %q", config.Render.Occupied)
	}
	if config.LogLevel != "debug" {
		t.Errorf("logLevel = %q", config.LogLevel)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Expected error for nonexistent file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantSub string
	}{
		{"bad yaml", "grid: [", "parsing config YAML"},
		{"zero resolution", "grid:\n  resolution: 0\n", "grid.resolution"},
		{"negative scale", "grid:\n  displayScale: -1\n", "grid.displayScale"},
		{"bad color", "render:\n  occupied: black\n", "render.occupied"},
		{"bad parity", "serial:\n  parity: X\n", "serial.parity"},
		{"bad port", "http:\n  port: 70000\n", "http.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Grid.Resolution = 7
	cfg.MQTT.Broker = "tcp://broker:1883"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Grid.Resolution != 7 || got.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.Rebuild.MinInterval != 500*time.Millisecond {
		t.Errorf("minInterval = %v", got.Rebuild.MinInterval)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("OCCUGRID_RESOLUTION", "15")
	t.Setenv("OCCUGRID_DISPLAY_SCALE", "3")
	t.Setenv("MQTT_BROKER", "tcp://env:1883")
	t.Setenv("SERIAL_PORT", "/dev/ttyACM0")
	t.Setenv("STORE_PATH", "/tmp/obs.db")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Grid.Resolution != 15 || cfg.Grid.DisplayScale != 3 {
		t.Errorf("grid = %+v", cfg.Grid)
	}
	if cfg.MQTT.Broker != "tcp://env:1883" || cfg.Serial.Port != "/dev/ttyACM0" || cfg.Store.Path != "/tmp/obs.db" {
		t.Errorf("string overrides not applied: %+v", cfg)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}

	t.Setenv("HTTP_PORT", "eighty")
	if err := ApplyEnv(DefaultConfig()); err == nil || !strings.Contains(err.Error(), "HTTP_PORT") {
		t.Errorf("expected HTTP_PORT parse error, got %v", err)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("OCCUGRID_TEST_VALUE=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OCCUGRID_TEST_VALUE", "")
	_ = os.Unsetenv("OCCUGRID_TEST_VALUE")

	if err := LoadEnvFiles(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	if got := os.Getenv("OCCUGRID_TEST_VALUE"); got != "from-file" {
		t.Errorf("OCCUGRID_TEST_VALUE = %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		l, err := NewLogger(lvl, true)
		if err != nil {
			t.Fatalf("NewLogger(%q): %v", lvl, err)
		}
		_ = l.Sync()
	}
	if _, err := NewLogger("loud", false); err == nil {
		t.Error("expected error for unknown level")
	}
}
