package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable that points at an optional
// YAML file. Values in the file replace defaults; environment variables
// replace both.
const ConfigFileEnv = "SONOS_DIAL_CONFIG"

const minStatusSecretLength = 32

// Config holds the plugin configuration.
type Config struct {
	SonosPort           int `yaml:"sonos_port"`
	SonosTimeoutMs      int `yaml:"sonos_timeout_ms"`
	ZoneCacheTTLSeconds int `yaml:"zone_cache_ttl_seconds"`

	// Dial timing
	PollIntervalMs int `yaml:"poll_interval_ms"`
	DebounceMs     int `yaml:"debounce_ms"`

	SQLiteDBPath string `yaml:"sqlite_db_path"`

	// Status API
	StatusAPIEnabled bool   `yaml:"status_api_enabled"`
	StatusAPIHost    string `yaml:"status_api_host"`
	StatusAPIPort    int    `yaml:"status_api_port"`
	StatusAPISecret  string `yaml:"status_api_secret"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// DogStatsD; metrics are disabled when DDAgentAddr is empty.
	DDAgentAddr string `yaml:"dd_agent_addr"`
	DDNamespace string `yaml:"dd_namespace"`

	CommandLogRetentionHours int    `yaml:"command_log_retention_hours"`
	CommandLogPruneSchedule  string `yaml:"command_log_prune_schedule"`

	MDNSTimeoutMs int `yaml:"mdns_timeout_ms"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		SonosPort:                1400,
		SonosTimeoutMs:           5000,
		ZoneCacheTTLSeconds:      30,
		PollIntervalMs:           3000,
		DebounceMs:               500,
		SQLiteDBPath:             "./data/sonos-dial.db",
		StatusAPIEnabled:         true,
		StatusAPIHost:            "127.0.0.1",
		StatusAPIPort:            9310,
		LogLevel:                 "info",
		DDNamespace:              "sonos_dial.",
		CommandLogRetentionHours: 72,
		CommandLogPruneSchedule:  "@hourly",
		MDNSTimeoutMs:            3000,
	}
}

// Load reads configuration from the optional YAML file and environment
// variables on top of the defaults.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.SonosPort = envInt("SONOS_PORT", cfg.SonosPort)
	cfg.SonosTimeoutMs = envInt("SONOS_TIMEOUT_MS", cfg.SonosTimeoutMs)
	cfg.ZoneCacheTTLSeconds = envInt("ZONE_CACHE_TTL_SECONDS", cfg.ZoneCacheTTLSeconds)
	cfg.PollIntervalMs = envInt("POLL_INTERVAL_MS", cfg.PollIntervalMs)
	cfg.DebounceMs = envInt("DEBOUNCE_MS", cfg.DebounceMs)
	cfg.SQLiteDBPath = envString("SQLITE_DB_PATH", cfg.SQLiteDBPath)
	cfg.StatusAPIEnabled = envBool("STATUS_API_ENABLED", cfg.StatusAPIEnabled)
	cfg.StatusAPIHost = envString("STATUS_API_HOST", cfg.StatusAPIHost)
	cfg.StatusAPIPort = envInt("STATUS_API_PORT", cfg.StatusAPIPort)
	cfg.StatusAPISecret = envString("STATUS_API_SECRET", cfg.StatusAPISecret)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = envString("LOG_FILE", cfg.LogFile)
	cfg.DDAgentAddr = envString("DD_AGENT_ADDR", cfg.DDAgentAddr)
	cfg.DDNamespace = envString("DD_NAMESPACE", cfg.DDNamespace)
	cfg.CommandLogRetentionHours = envInt("COMMAND_LOG_RETENTION_HOURS", cfg.CommandLogRetentionHours)
	cfg.CommandLogPruneSchedule = envString("COMMAND_LOG_PRUNE_SCHEDULE", cfg.CommandLogPruneSchedule)
	cfg.MDNSTimeoutMs = envInt("MDNS_TIMEOUT_MS", cfg.MDNSTimeoutMs)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []string

	if c.SonosPort <= 0 || c.SonosPort > 65535 {
		errs = append(errs, "SONOS_PORT must be between 1 and 65535")
	}
	if c.SonosTimeoutMs <= 0 {
		errs = append(errs, "SONOS_TIMEOUT_MS must be positive")
	}
	if c.ZoneCacheTTLSeconds < 0 {
		errs = append(errs, "ZONE_CACHE_TTL_SECONDS must not be negative")
	}
	if c.PollIntervalMs <= 0 {
		errs = append(errs, "POLL_INTERVAL_MS must be positive")
	}
	if c.DebounceMs <= 0 {
		errs = append(errs, "DEBOUNCE_MS must be positive")
	}
	if c.StatusAPIEnabled && (c.StatusAPIPort <= 0 || c.StatusAPIPort > 65535) {
		errs = append(errs, "STATUS_API_PORT must be between 1 and 65535")
	}
	if c.StatusAPISecret != "" && len(strings.TrimSpace(c.StatusAPISecret)) < minStatusSecretLength {
		errs = append(errs, fmt.Sprintf("STATUS_API_SECRET must be at least %d characters", minStatusSecretLength))
	}
	if c.CommandLogRetentionHours <= 0 {
		errs = append(errs, "COMMAND_LOG_RETENTION_HOURS must be positive")
	}
	if c.MDNSTimeoutMs <= 0 {
		errs = append(errs, "MDNS_TIMEOUT_MS must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c Config) SonosTimeout() time.Duration {
	return time.Duration(c.SonosTimeoutMs) * time.Millisecond
}

func (c Config) ZoneCacheTTL() time.Duration {
	return time.Duration(c.ZoneCacheTTLSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c Config) CommandLogRetention() time.Duration {
	return time.Duration(c.CommandLogRetentionHours) * time.Hour
}

func (c Config) MDNSTimeout() time.Duration {
	return time.Duration(c.MDNSTimeoutMs) * time.Millisecond
}

// StatusAPIAddr is the listen address of the status API.
func (c Config) StatusAPIAddr() string {
	return c.StatusAPIHost + ":" + strconv.Itoa(c.StatusAPIPort)
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}
