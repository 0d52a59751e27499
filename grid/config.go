package grid

import (
	"fmt"
	"strings"
	"time"
)

// Config is the unified occugrid configuration.
type Config struct {
	Grid     GridConfig    `yaml:"grid" json:"grid"`
	Render   RenderConfig  `yaml:"render" json:"render"`
	MQTT     MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	Serial   SerialConfig  `yaml:"serial" json:"serial"`
	Store    StoreConfig   `yaml:"store" json:"store"`
	HTTP     HTTPConfig    `yaml:"http" json:"http"`
	Rebuild  RebuildConfig `yaml:"rebuild" json:"rebuild"`
	LogLevel string        `yaml:"logLevel,omitempty" json:"logLevel,omitempty"`
}

// GridConfig holds the two user-facing settings.
type GridConfig struct {
	Resolution   int `yaml:"resolution" json:"resolution"`     // world units per cell
	DisplayScale int `yaml:"displayScale" json:"displayScale"` // pixels per cell
}

// RenderConfig holds hex colors ("#RRGGBB") per class.
type RenderConfig struct {
	Occupied       string `yaml:"occupied" json:"occupied"`
	LikelyOccupied string `yaml:"likelyOccupied" json:"likelyOccupied"`
	Uncertain      string `yaml:"uncertain" json:"uncertain"`
	Free           string `yaml:"free" json:"free"`
	Background     string `yaml:"background" json:"background"`
	Legend         bool   `yaml:"legend" json:"legend"`
}

// MQTTConfig holds MQTT connection settings. An empty Broker disables MQTT.
type MQTTConfig struct {
	Broker           string `yaml:"broker" json:"broker"`
	ClientID         string `yaml:"clientId" json:"clientId"`
	Username         string `yaml:"username,omitempty" json:"username,omitempty"`
	Password         string `yaml:"password,omitempty" json:"password,omitempty"`
	ObservationTopic string `yaml:"observationTopic" json:"observationTopic"`
	PublishPrefix    string `yaml:"publishPrefix" json:"publishPrefix"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// SerialConfig describes the serial link to the robot. An empty Port
// disables it.
type SerialConfig struct {
	Port     string `yaml:"port" json:"port"`
	BaudRate int    `yaml:"baudRate,omitempty" json:"baudRate,omitempty"`
	DataBits int    `yaml:"dataBits,omitempty" json:"dataBits,omitempty"`
	StopBits int    `yaml:"stopBits,omitempty" json:"stopBits,omitempty"`
	Parity   string `yaml:"parity,omitempty" json:"parity,omitempty"`
}

// PortOptions converts the serial settings into normalised PortOptions.
func (s SerialConfig) PortOptions() (PortOptions, error) {
	return PortOptions{
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		StopBits: s.StopBits,
		Parity:   s.Parity,
	}.Normalize()
}

// StoreConfig points at the sqlite observation log. Empty disables it.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Port           int     `yaml:"port" json:"port"`
	RateLimitRPS   float64 `yaml:"rateLimitRps" json:"rateLimitRps"`
	RateLimitBurst int     `yaml:"rateLimitBurst" json:"rateLimitBurst"`
}

// RebuildConfig bounds how often live updates trigger a rebuild.
type RebuildConfig struct {
	MinInterval time.Duration `yaml:"minInterval" json:"minInterval"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Grid: GridConfig{
			Resolution:   DefaultResolution,
			DisplayScale: DefaultDisplayScale,
		},
		Render: RenderConfig{
			Occupied:       "#000000",
			LikelyOccupied: "#404040",
			Uncertain:      "#808080",
			Free:           "#FFFFFF",
			Background:     "#C0C0C0",
			Legend:         true,
		},
		MQTT: MQTTConfig{
			ClientID:         "occugrid",
			ObservationTopic: "occugrid/observations",
			PublishPrefix:    "occugrid",
		},
		HTTP: HTTPConfig{
			Port:           8080,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Rebuild:  RebuildConfig{MinInterval: 500 * time.Millisecond},
		LogLevel: "info",
	}
}

// Validate checks every field that has a constrained range.
func (c *Config) Validate() error {
	if c.Grid.Resolution <= 0 {
		return fmt.Errorf("grid.resolution must be positive, got %d", c.Grid.Resolution)
	}
	if c.Grid.DisplayScale <= 0 {
		return fmt.Errorf("grid.displayScale must be positive, got %d", c.Grid.DisplayScale)
	}
	colors := map[string]string{
		"render.occupied":       c.Render.Occupied,
		"render.likelyOccupied": c.Render.LikelyOccupied,
		"render.uncertain":      c.Render.Uncertain,
		"render.free":           c.Render.Free,
		"render.background":     c.Render.Background,
	}
	for name, v := range colors {
		if _, err := parseHexColor(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.MQTT.Enabled() && c.MQTT.ObservationTopic == "" && c.MQTT.PublishPrefix == "" {
		return fmt.Errorf("mqtt.observationTopic or mqtt.publishPrefix is required when mqtt.broker is set")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		return fmt.Errorf("http rate limit must not be negative")
	}
	if c.Rebuild.MinInterval < 0 {
		return fmt.Errorf("rebuild.minInterval must not be negative")
	}
	switch strings.ToUpper(c.Serial.Parity) {
	case "", "N", "E", "O":
	default:
		return fmt.Errorf("serial.parity must be N, E or O, got %q", c.Serial.Parity)
	}
	return nil
}
