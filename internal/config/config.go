package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the botgate API configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Quota    QuotaConfig    `yaml:"quota"`
	Chat     ChatConfig     `yaml:"chat"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys   []string `yaml:"api_keys"`
	AdminKeys []string `yaml:"admin_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// QuotaConfig holds the daily quota ledger settings.
type QuotaConfig struct {
	DefaultLimit     int      `yaml:"default_limit"`
	Timezone         string   `yaml:"timezone"`
	SweepIntervalSec int      `yaml:"sweep_interval_sec"`
	AdminUserIDs     []string `yaml:"admin_user_ids"`
}

// SweepInterval returns the reset sweeper period.
func (q QuotaConfig) SweepInterval() time.Duration {
	return time.Duration(q.SweepIntervalSec) * time.Second
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// ChatConfig holds providers and the model table.
type ChatConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
	Models          ModelsConfig              `yaml:"models"`
}

// ProviderConfig holds chat provider settings.
type ProviderConfig struct {
	Label   string `yaml:"label"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ModelEntry holds one model table row.
type ModelEntry struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	TopP        float32 `yaml:"top_p"`
}

// ModelsConfig holds the default-scope entries and the per-command entries.
type ModelsConfig struct {
	Default  []ModelEntry            `yaml:"default"`
	Commands map[string][]ModelEntry `yaml:"commands"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Chat completions can take a while to stream back.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Quota.DefaultLimit <= 0 {
		c.Quota.DefaultLimit = 10
	}
	if c.Quota.Timezone == "" {
		c.Quota.Timezone = "Asia/Tokyo"
	}
	if c.Quota.SweepIntervalSec <= 0 {
		c.Quota.SweepIntervalSec = 300
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "botgate:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if _, err := time.LoadLocation(c.Quota.Timezone); err != nil {
		return fmt.Errorf("quota.timezone %q is not a valid IANA zone: %w", c.Quota.Timezone, err)
	}
	if len(c.Chat.Providers) == 0 {
		return fmt.Errorf("chat.providers is required")
	}
	if c.Chat.DefaultProvider == "" {
		return fmt.Errorf("chat.default_provider is required")
	}
	if _, ok := c.Chat.Providers[c.Chat.DefaultProvider]; !ok {
		return fmt.Errorf("chat.default_provider %q is not a configured provider", c.Chat.DefaultProvider)
	}
	for i, m := range c.Chat.Models.Default {
		if err := validateModelEntry(c.Chat.Providers, m); err != nil {
			return fmt.Errorf("chat.models.default[%d]: %w", i, err)
		}
	}
	for cmd, entries := range c.Chat.Models.Commands {
		if cmd == "" {
			return fmt.Errorf("chat.models.commands contains an empty command name")
		}
		for i, m := range entries {
			if err := validateModelEntry(c.Chat.Providers, m); err != nil {
				return fmt.Errorf("chat.models.commands.%s[%d]: %w", cmd, i, err)
			}
		}
	}
	return nil
}

func validateModelEntry(providers map[string]ProviderConfig, m ModelEntry) error {
	if m.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if m.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, ok := providers[m.Provider]; !ok {
		return fmt.Errorf("provider %q is not configured", m.Provider)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
