// Package config loads kmerge settings from .kmerge/config.json (or an
// explicit file) over built-in defaults, then applies KMERGE_* environment
// overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"kmerge/internal/paths"
)

// CurrentVersion is the config schema version this build reads.
const CurrentVersion = 1

// EnvConfigPath names an explicit config file.
const EnvConfigPath = "KMERGE_CONFIG_PATH"

// Config is the complete kmerge configuration.
type Config struct {
	Version int           `json:"version" mapstructure:"version"`
	Merge   MergeConfig   `json:"merge" mapstructure:"merge"`
	Output  OutputConfig  `json:"output" mapstructure:"output"`
	Report  ReportConfig  `json:"report" mapstructure:"report"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Journal JournalConfig `json:"journal" mapstructure:"journal"`
}

// MergeConfig holds defaults for the merge itself. An empty Type means the
// caller must choose one.
type MergeConfig struct {
	Order  string `json:"order" mapstructure:"order"`
	Type   string `json:"type" mapstructure:"type"`
	Reader string `json:"reader" mapstructure:"reader"`
}

type OutputConfig struct {
	Compression string `json:"compression" mapstructure:"compression"`
}

// ReportConfig.Path, when set, receives a run report after every merge.
type ReportConfig struct {
	Path       string `json:"path" mapstructure:"path"`
	MaxNotices int    `json:"maxNotices" mapstructure:"maxNotices"`
}

type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	File       string `json:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
}

// JournalConfig controls the SQLite run history. An empty Path means
// ~/.kmerge/runs.db.
type JournalConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	Path          string `json:"path" mapstructure:"path"`
	RetentionDays int    `json:"retentionDays" mapstructure:"retentionDays"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Merge: MergeConfig{
			Order:  "asc",
			Reader: "cursor",
		},
		Output: OutputConfig{Compression: "auto"},
		Report: ReportConfig{MaxNotices: 1000},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
		Journal: JournalConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
	}
}

// LoadResult is a loaded config plus where its values came from.
type LoadResult struct {
	Config       *Config
	ConfigPath   string // empty when only defaults were used
	UsedDefaults bool
	EnvOverrides []EnvOverride
}

// LoadConfig loads <root>/.kmerge/config.json without environment
// overrides. A missing file yields DefaultConfig.
func LoadConfig(root string) (*Config, error) {
	path := paths.ConfigPath(root)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return loadConfigFromPath(path)
}

// LoadConfigWithDetails resolves the config file (explicit path, then
// $KMERGE_CONFIG_PATH, then <root>/.kmerge/config.json), loads it and
// applies environment overrides. An explicit or env-named file must exist.
func LoadConfigWithDetails(root, explicit string) (*LoadResult, error) {
	result := &LoadResult{}

	path := explicit
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		if p := paths.ConfigPath(root); fileExists(p) {
			path = p
		}
	}

	if path == "" {
		result.Config = DefaultConfig()
		result.UsedDefaults = true
	} else {
		cfg, err := loadConfigFromPath(path)
		if err != nil {
			return nil, err
		}
		result.Config = cfg
		result.ConfigPath = path
	}

	result.EnvOverrides = applyEnvOverrides(result.Config)
	if err := result.Config.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// loadConfigFromPath reads any viper-supported file type, chosen by
// extension, over the defaults.
func loadConfigFromPath(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to <root>/.kmerge/config.json.
func (c *Config) Save(root string) error {
	path := paths.ConfigPath(root)
	if err := paths.EnsureParent(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Validate checks enumerated values. It does not touch the filesystem.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported config version %d", c.Version)}
	}
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"merge.order", c.Merge.Order, []string{"", "a", "asc", "ascending", "d", "desc", "descending"}},
		{"merge.type", c.Merge.Type, []string{"", "s", "string", "strings", "text", "i", "int", "ints", "integer"}},
		{"merge.reader", c.Merge.Reader, []string{"", "cursor", "sequential", "rescan", "naive"}},
		{"output.compression", c.Output.Compression, []string{"", "auto", "none", "plain", "gzip", "gz", "zstd", "zst"}},
		{"logging.level", c.Logging.Level, []string{"", "debug", "info", "warn", "warning", "error"}},
		{"logging.format", c.Logging.Format, []string{"", "text", "json"}},
	}
	for _, ch := range checks {
		if !contains(ch.allowed, strings.ToLower(ch.value)) {
			return &ConfigError{Field: ch.field, Message: fmt.Sprintf("invalid value %q", ch.value)}
		}
	}
	if c.Report.MaxNotices < 0 {
		return &ConfigError{Field: "report.maxNotices", Message: "must not be negative"}
	}
	if c.Logging.MaxBackups < 0 {
		return &ConfigError{Field: "logging.maxBackups", Message: "must not be negative"}
	}
	return nil
}

// ConfigError is a validation failure on one field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
