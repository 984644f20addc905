package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cctvwall/cctvwall/models"
)

// Viewport gating policies.
const (
	ViewportContinuous = "continuous"
	ViewportOnce       = "once"
)

// Config represents the complete configuration.
type Config struct {
	Backend  BackendConfig   `yaml:"backend"`
	Player   PlayerConfig    `yaml:"player"`
	Viewport ViewportConfig  `yaml:"viewport"`
	Web      WebConfig       `yaml:"web"`
	Log      LogConfig       `yaml:"log"`
	Cameras  []models.Camera `yaml:"cameras"`
}

// BackendConfig points at the CCTV REST backend.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	RequestTimeout int    `yaml:"request_timeout_seconds"`
}

// PlayerConfig selects playback behaviour.
type PlayerConfig struct {
	Substream     bool `yaml:"substream"`
	WebRTC        bool `yaml:"webrtc"`
	Talk          bool `yaml:"talk"`
	AutoReconnect bool `yaml:"auto_reconnect"`
}

// ViewportConfig selects the tile visibility policy.
type ViewportConfig struct {
	Policy string `yaml:"policy"`
}

// WebConfig defines the HTTP listener.
type WebConfig struct {
	Port int `yaml:"port"`
}

// LogConfig defines logging.
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 10,
		},
		Player: PlayerConfig{
			Substream:     true,
			WebRTC:        true,
			AutoReconnect: true,
		},
		Viewport: ViewportConfig{Policy: ViewportContinuous},
		Web:      WebConfig{Port: 8090},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads the configuration file, applies environment overrides and validates.
// An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Backend.BaseURL = getEnv("CCTVWALL_BACKEND_URL", c.Backend.BaseURL)
	c.Backend.Token = getEnv("CCTVWALL_BACKEND_TOKEN", c.Backend.Token)
	c.Log.Level = getEnv("CCTVWALL_LOG_LEVEL", c.Log.Level)
	c.Log.Dir = getEnv("CCTVWALL_LOG_DIR", c.Log.Dir)
	if port, err := strconv.Atoi(getEnv("CCTVWALL_PORT", "")); err == nil {
		c.Web.Port = port
	}
}

// Validate checks if configuration is valid.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	if c.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("backend.request_timeout_seconds must be positive")
	}

	switch c.Viewport.Policy {
	case ViewportContinuous, ViewportOnce:
	default:
		return fmt.Errorf("viewport.policy must be %q or %q", ViewportContinuous, ViewportOnce)
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port %d out of range", c.Web.Port)
	}

	seen := make(map[string]bool)
	for _, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("camera %q: id is required", cam.Name)
		}
		if seen[cam.ID] {
			return fmt.Errorf("camera %s: duplicate id", cam.ID)
		}
		seen[cam.ID] = true
		if cam.StreamURL == "" && cam.NVRID == "" {
			return fmt.Errorf("camera %s: stream_url or nvr_id is required", cam.ID)
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
