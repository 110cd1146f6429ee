package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the agent configuration. Values come from the YAML config
// file, overridden by POPSYNC_* environment variables.
type Config struct {
	// APIBaseURL is the backend base URL, e.g. "https://api.parcelops.io"
	APIBaseURL string `yaml:"api_base_url"`

	// DataDir is where the local queue database lives
	DataDir string `yaml:"data_dir"`

	// HTTPTimeout bounds each backend call
	HTTPTimeout Duration `yaml:"http_timeout"`

	// ProbeInterval is the reachability probe period
	ProbeInterval Duration `yaml:"probe_interval"`

	// ProbePath is the backend path probed for reachability
	ProbePath string `yaml:"probe_path"`

	// MetricsAddr, when set, exposes /metrics and /healthz on this address
	// while the agent runs (e.g. "127.0.0.1:9464")
	MetricsAddr string `yaml:"metrics_addr"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		APIBaseURL:    "http://localhost:8000",
		DataDir:       filepath.Join(home, ".popsync"),
		HTTPTimeout:   Duration(15 * time.Second),
		ProbeInterval: Duration(15 * time.Second),
		ProbePath:     "/healthz",
		LogLevel:      "info",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".popsync", "config.yaml")
}

// Load reads configuration from path, falling back to defaults when the
// file is absent, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(&cfg)

	if cfg.APIBaseURL == "" {
		return cfg, fmt.Errorf("api_base_url must not be empty")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("POPSYNC_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("POPSYNC_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("POPSYNC_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("POPSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("POPSYNC_PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ProbeInterval = Duration(d)
		}
	}
}

// EnsureDataDir creates the data directory if needed.
func (c Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0700)
}

// ProbeURL returns the full reachability probe URL.
func (c Config) ProbeURL() string {
	return c.APIBaseURL + c.ProbePath
}
