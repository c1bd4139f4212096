package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/repostats/internal/errors"
)

// EnvPrefix prefixes every environment variable bound to a config key,
// e.g. REPOSTATS_CACHE_BATCH_SIZE for cache.batch_size.
const EnvPrefix = "REPOSTATS"

// Config holds all configuration settings
type Config struct {
	GitHub  GitHubConfig  `mapstructure:"github" yaml:"github"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`

	file string
}

type GitHubConfig struct {
	Token     string  `mapstructure:"token" yaml:"token"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gt=0"` // Requests per second
	PerPage   int     `mapstructure:"per_page" yaml:"per_page" validate:"min=1,max=100"`
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
}

type CacheConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory" validate:"required"`
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size" validate:"min=1"`
	Journal   bool   `mapstructure:"journal" yaml:"journal"`
}

type HistoryConfig struct {
	WatchRoot string `mapstructure:"watch_root" yaml:"watch_root" validate:"required"`
	Project   string `mapstructure:"project" yaml:"project" validate:"required"`
	Backend   string `mapstructure:"backend" yaml:"backend" validate:"oneof=gogit cli"`
	Mailmap   string `mapstructure:"mailmap" yaml:"mailmap"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory" validate:"required"`
	Width     int    `mapstructure:"width" yaml:"width" validate:"min=200,max=10000"`
	Height    int    `mapstructure:"height" yaml:"height" validate:"min=100,max=10000"`
}

type StorageConfig struct {
	// DSN is a SQLite file path or a postgres:// URL. Empty disables storage.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
	File  string `mapstructure:"file" yaml:"file"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			RateLimit: 5,
			PerPage:   100,
		},
		Cache: CacheConfig{
			Directory: ".",
			BatchSize: 100,
		},
		History: HistoryConfig{
			WatchRoot: "multiqc/modules",
			Project:   "MultiQC",
			Backend:   "gogit",
		},
		Output: OutputConfig{
			Directory: ".",
			Width:     1000,
			Height:    500,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// defaults flattens Default into dotted viper keys so every key can be
// overridden from the environment.
func defaults() map[string]interface{} {
	cfg := Default()
	return map[string]interface{}{
		"github.token":       cfg.GitHub.Token,
		"github.rate_limit":  cfg.GitHub.RateLimit,
		"github.per_page":    cfg.GitHub.PerPage,
		"github.base_url":    cfg.GitHub.BaseURL,
		"cache.directory":    cfg.Cache.Directory,
		"cache.batch_size":   cfg.Cache.BatchSize,
		"cache.journal":      cfg.Cache.Journal,
		"history.watch_root": cfg.History.WatchRoot,
		"history.project":    cfg.History.Project,
		"history.backend":    cfg.History.Backend,
		"history.mailmap":    cfg.History.Mailmap,
		"output.directory":   cfg.Output.Directory,
		"output.width":       cfg.Output.Width,
		"output.height":      cfg.Output.Height,
		"storage.dsn":        cfg.Storage.DSN,
		"log.level":          cfg.Log.Level,
		"log.json":           cfg.Log.JSON,
		"log.file":           cfg.Log.File,
	}
}

// Load loads configuration from file. An empty path searches
// .repostats/config.yaml, ./config.yaml and ~/.repostats/config.yaml.
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	// Load from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to find config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".repostats")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".repostats"))
		}
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ConfigErrorf("failed to read config: %v", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.ConfigErrorf("failed to unmarshal config: %v", err)
	}

	cfg.file = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.file); err != nil {
		cfg.file = ""
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// File returns the config file that was read, or "" when only defaults and
// the environment apply.
func (c *Config) File() string { return c.file }

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides variables that are already set, so earlier files win.
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(homeDir, ".repostats", ".env"))
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
}

// applyEnvOverrides applies the unprefixed environment variables
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	} else if token := os.Getenv("GH_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}

	if dir := os.Getenv(EnvPrefix + "_CACHE_DIR"); dir != "" {
		cfg.Cache.Directory = dir
	}

	cfg.Cache.Directory = expandPath(cfg.Cache.Directory)
	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.History.Mailmap = expandPath(cfg.History.Mailmap)
	cfg.Log.File = expandPath(cfg.Log.File)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// YAML renders the configuration with the token masked.
func (c *Config) YAML() ([]byte, error) {
	shown := *c
	if shown.GitHub.Token != "" {
		shown.GitHub.Token = MaskToken(shown.GitHub.Token)
	}
	shown.Storage.DSN = maskDSN(shown.Storage.DSN)
	return yaml.Marshal(&shown)
}

// Save saves configuration to file. The file may hold a token, so it is
// readable by the owner only.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.InternalErrorf("failed to encode config: %v", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.FileSystemErrorf(err, "failed to create config directory %s", dir)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.FileSystemErrorf(err, "failed to write config %s", path)
	}

	return nil
}

// maskDSN hides the password of a postgres URL.
func maskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	if user, _, hasPassword := strings.Cut(userinfo, ":"); hasPassword {
		return scheme + "://" + user + ":***@" + host
	}
	return dsn
}
