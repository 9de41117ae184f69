// Package config loads and validates the poolwatch configuration.
//
// DESIGN: Configuration comes from an optional YAML file plus the
// environment. The YAML supports ${VAR:-default} expansion; the
// documented environment variables then override whatever the file
// said, so a container deployment can run with no file at all (FromEnv).
// The result is an immutable value passed explicitly into the engine
// and dispatcher — no component reads ambient process state directly.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/backendim/poolwatch/internal/monitor"
	"github.com/backendim/poolwatch/internal/notify"
	"github.com/backendim/poolwatch/internal/tail"
)

// Config is the root configuration for poolwatch.
type Config struct {
	Watcher    tail.Config          `yaml:"watcher"`    // Log tailing settings
	Alerting   monitor.EngineConfig `yaml:"alerting"`   // Thresholds, cooldown, maintenance
	Notify     notify.Config        `yaml:"notify"`     // Webhook delivery settings
	Monitoring MonitoringConfig     `yaml:"monitoring"` // Logging and metrics
	History    HistoryConfig        `yaml:"history"`    // Optional alert journal
}

// MonitoringConfig contains logging and metrics settings.
type MonitoringConfig struct {
	LogLevel    string `yaml:"log_level"`    // debug, info, warn, error
	LogFormat   string `yaml:"log_format"`   // json, console, or "" for auto
	LogOutput   string `yaml:"log_output"`   // stdout, stderr, or file path
	MetricsAddr string `yaml:"metrics_addr"` // Listen address for /metrics; "" disables
}

// HistoryConfig contains alert journal settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"` // SQLite file path
}

// Default returns the configuration matching a bare environment,
// mirroring the watcher's documented defaults.
func Default() *Config {
	return &Config{
		Watcher: tail.Config{
			Path:         "/var/log/nginx/access.log",
			PollInterval: tail.DefaultPollInterval,
			ReadExisting: true,
		},
		Alerting: monitor.EngineConfig{
			PrimaryPool:    "blue",
			ErrorThreshold: 2.0,
			WindowSize:     200,
			MinSample:      10,
			Cooldown:       300 * time.Second,
		},
		Monitoring: MonitoringConfig{
			LogLevel:  "info",
			LogOutput: "stdout",
		},
	}
}

// expandEnvWithDefaults expands environment variables with support for
// default values. Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file, then applies environment
// overrides and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a configuration from defaults plus environment
// variables only. This is how the watcher runs in containers, where no
// config file is mounted.
func FromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies the documented environment variables on top
// of the current values. Unset variables leave values untouched;
// malformed numeric values are ignored, matching the original
// deployment's tolerance.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NGINX_LOG_PATH"); v != "" {
		c.Watcher.Path = v
	}
	if v, ok := envBool("READ_EXISTING_LOGS"); ok {
		c.Watcher.ReadExisting = v
	}
	if v, ok := envFloat("ERROR_RATE_THRESHOLD"); ok {
		c.Alerting.ErrorThreshold = v
	}
	if v, ok := envInt("WINDOW_SIZE"); ok {
		c.Alerting.WindowSize = v
	}
	if v, ok := envInt("MIN_SAMPLE"); ok {
		c.Alerting.MinSample = v
	}
	if v, ok := envInt("ALERT_COOLDOWN_SEC"); ok {
		c.Alerting.Cooldown = time.Duration(v) * time.Second
	}
	if v, ok := envBool("MAINTENANCE_MODE"); ok {
		c.Alerting.MaintenanceMode = v
	}
	if v := os.Getenv("PRIMARY_POOL"); v != "" {
		c.Alerting.PrimaryPool = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Monitoring.LogLevel = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Monitoring.MetricsAddr = v
	}
	if v := os.Getenv("HISTORY_DB_PATH"); v != "" {
		c.History.Enabled = true
		c.History.DBPath = v
	}
}

// Validate checks if the configuration is valid. Configuration errors
// are fatal at startup; the watcher cannot run safely without them.
func (c *Config) Validate() error {
	if c.Watcher.Path == "" {
		return fmt.Errorf("watcher.path is required")
	}
	if c.Watcher.PollInterval < 0 {
		return fmt.Errorf("invalid watcher.poll_interval: %s", c.Watcher.PollInterval)
	}

	if c.Notify.WebhookURL == "" {
		return fmt.Errorf("notify.webhook_url is required (SLACK_WEBHOOK_URL)")
	}
	if !strings.HasPrefix(c.Notify.WebhookURL, "http://") && !strings.HasPrefix(c.Notify.WebhookURL, "https://") {
		return fmt.Errorf("invalid notify.webhook_url: %s", c.Notify.WebhookURL)
	}

	if c.Alerting.PrimaryPool == "" {
		return fmt.Errorf("alerting.primary_pool is required (PRIMARY_POOL)")
	}
	if c.Alerting.ErrorThreshold <= 0 || c.Alerting.ErrorThreshold > 100 {
		return fmt.Errorf("invalid alerting.error_threshold: %g (must be in (0, 100])", c.Alerting.ErrorThreshold)
	}
	if c.Alerting.WindowSize < 1 {
		return fmt.Errorf("invalid alerting.window_size: %d (must be >= 1)", c.Alerting.WindowSize)
	}
	if c.Alerting.MinSample < 1 || c.Alerting.MinSample > c.Alerting.WindowSize {
		return fmt.Errorf("invalid alerting.min_sample: %d (must be in [1, window_size])", c.Alerting.MinSample)
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("invalid alerting.cooldown: %s", c.Alerting.Cooldown)
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path is required when history is enabled")
	}

	return nil
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	return strings.EqualFold(v, "true") || v == "1", true
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(name string) (float64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
