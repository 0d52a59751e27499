package grid

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from a YAML file. Fields missing from
// the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// LoadEnvFiles loads .env style files into the process environment.
// Missing files are skipped; variables already set are not overwritten.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides config fields from environment variables.
func ApplyEnv(config *Config) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"OCCUGRID_RESOLUTION", &config.Grid.Resolution},
		{"OCCUGRID_DISPLAY_SCALE", &config.Grid.DisplayScale},
		{"HTTP_PORT", &config.HTTP.Port},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"MQTT_BROKER", &config.MQTT.Broker},
		{"MQTT_CLIENT_ID", &config.MQTT.ClientID},
		{"MQTT_USERNAME", &config.MQTT.Username},
		{"MQTT_PASSWORD", &config.MQTT.Password},
		{"MQTT_OBSERVATION_TOPIC", &config.MQTT.ObservationTopic},
		{"MQTT_PUBLISH_PREFIX", &config.MQTT.PublishPrefix},
		{"SERIAL_PORT", &config.Serial.Port},
		{"STORE_PATH", &config.Store.Path},
		{"LOG_LEVEL", &config.LogLevel},
	}
	for _, e := range strs {
		if v := os.Getenv(e.key); v != "" {
			*e.dst = v
		}
	}
	return nil
}
