// Package config handles sky-viewer configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all viewer settings.
type Config struct {
	Window  WindowConfig  `yaml:"window"`
	Sky     SkyConfig     `yaml:"sky"`
	Clouds  CloudsConfig  `yaml:"clouds"`
	Logging LoggingConfig `yaml:"logging"`
}

// WindowConfig holds display settings.
type WindowConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
}

// SkyConfig holds the astronomical and dome settings.
type SkyConfig struct {
	LatitudeDegrees float64 `yaml:"latitude_degrees"`
	Month           int     `yaml:"month"`
	Day             int     `yaml:"day"`
	Hour            float64 `yaml:"hour"`
	// HoursPerSecond scales wall-clock time into simulated hours.
	HoursPerSecond  float64 `yaml:"hours_per_second"`
	Phase           string  `yaml:"phase"`
	StarMotion      bool    `yaml:"star_motion"`
	BottomDome      bool    `yaml:"bottom_dome"`
	RimSamples      int     `yaml:"rim_samples"`
	QuadrantSamples int     `yaml:"quadrant_samples"`
	SolarDiameter   float64 `yaml:"solar_diameter"`
	LunarDiameter   float64 `yaml:"lunar_diameter"`
}

// CloudsConfig holds the cloud deck settings.
type CloudsConfig struct {
	Cloudiness    float64       `yaml:"cloudiness"`
	Flattening    float64       `yaml:"flattening"`
	RelativeSpeed float64       `yaml:"relative_speed"`
	Modulation    bool          `yaml:"modulation"`
	Layers        []LayerConfig `yaml:"layers"`
}

// LayerConfig holds one generated cloud layer.
type LayerConfig struct {
	Seed    int64   `yaml:"seed"`
	Density float64 `yaml:"density"`
	Size    int     `yaml:"size"`
	Scale   float64 `yaml:"scale"`
	DriftU  float64 `yaml:"drift_u"` // cycles per second
	DriftV  float64 `yaml:"drift_v"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Width:  1280,
			Height: 720,
			Title:  "Celestial3D",
		},
		Sky: SkyConfig{
			LatitudeDegrees: 51.1788,
			Month:           6,
			Day:             21,
			Hour:            12,
			HoursPerSecond:  0.25,
			Phase:           "full",
			StarMotion:      true,
			BottomDome:      false,
			RimSamples:      60,
			QuadrantSamples: 16,
			SolarDiameter:   0.12,
			LunarDiameter:   0.12,
		},
		Clouds: CloudsConfig{
			Cloudiness:    0.5,
			Flattening:    0.1,
			RelativeSpeed: 1,
			Modulation:    true,
			Layers: []LayerConfig{
				{Seed: 11, Density: 0.5, Size: 256, Scale: 2, DriftU: 0.004, DriftV: 0.001},
				{Seed: 23, Density: 0.35, Size: 256, Scale: 3, DriftU: -0.002, DriftV: 0.003},
			},
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	if c.Window.Width < 1 || c.Window.Height < 1 {
		return fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if c.Sky.LatitudeDegrees < -90 || c.Sky.LatitudeDegrees > 90 {
		return fmt.Errorf("latitude %g outside [-90, 90]", c.Sky.LatitudeDegrees)
	}
	if c.Sky.Month < 1 || c.Sky.Month > 12 {
		return fmt.Errorf("month %d outside [1, 12]", c.Sky.Month)
	}
	if c.Sky.Day < 1 || c.Sky.Day > 31 {
		return fmt.Errorf("day %d outside [1, 31]", c.Sky.Day)
	}
	if c.Sky.Hour < 0 || c.Sky.Hour > 24 {
		return fmt.Errorf("hour %g outside [0, 24]", c.Sky.Hour)
	}
	if c.Clouds.Cloudiness < 0 || c.Clouds.Cloudiness > 1 {
		return fmt.Errorf("cloudiness %g outside [0, 1]", c.Clouds.Cloudiness)
	}
	if c.Clouds.Flattening < 0 || c.Clouds.Flattening >= 1 {
		return fmt.Errorf("cloud flattening %g outside [0, 1)", c.Clouds.Flattening)
	}
	for i, layer := range c.Clouds.Layers {
		if layer.Size < 1 {
			return fmt.Errorf("cloud layer %d: size %d must be positive", i, layer.Size)
		}
		if layer.Density < 0 || layer.Density > 1 {
			return fmt.Errorf("cloud layer %d: density %g outside [0, 1]", i, layer.Density)
		}
		if layer.Scale <= 0 {
			return fmt.Errorf("cloud layer %d: scale %g must be positive", i, layer.Scale)
		}
	}
	return nil
}

// Load loads configuration with priority: defaults < file. An empty path
// searches the standard locations; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./skyviewer.yaml",
		filepath.Join(configDir(), "skyviewer.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// configDir returns the OS-appropriate config directory.
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "celestial3d")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "celestial3d")
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// SaveTo writes the config to a specific path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
