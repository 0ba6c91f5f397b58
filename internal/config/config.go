// Package config loads atomic's configuration: channel defaults,
// remotes, and substrate/log tuning. The core packages never import
// this package (per the spec's scope, configuration is an external
// collaborator); only cmd/atomic reads it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the CLI.
type Config struct {
	Storage StorageConfig           `yaml:"storage"`
	Channel ChannelConfig           `yaml:"channel"`
	Log     LogConfig               `yaml:"log"`
	Remotes map[string]RemoteConfig `yaml:"remotes"`
}

// StorageConfig tunes the transactional substrate.
type StorageConfig struct {
	PageCacheSize int `yaml:"page_cache_size"` // pages kept hot in the reader cache
}

// ChannelConfig holds channel-related defaults.
type ChannelConfig struct {
	Default string `yaml:"default"`
}

// LogConfig mirrors logging.Config in a serializable shape.
type LogConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	JSONFormat bool   `yaml:"json_format"`
	OutputFile string `yaml:"output_file"`
}

// RemoteConfig names a remote repository this one can push/pull with.
type RemoteConfig struct {
	Carrier string `yaml:"carrier"` // "local", "http", "ssh"
	Address string `yaml:"address"`
}

// Default returns the configuration used when no config file is found.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{PageCacheSize: 4096},
		Channel: ChannelConfig{Default: "main"},
		Log: LogConfig{
			Level:      "info",
			JSONFormat: false,
		},
		Remotes: map[string]RemoteConfig{},
	}
}

// Load reads configuration from path (if non-empty) or the standard
// search locations (./.atomic/config.yaml, ./config.yaml, ~/.atomic/config.yaml),
// merging in ATOMIC_-prefixed environment variables on top, in the same
// layering order the teacher's config loader uses: .env files, then
// defaults, then file, then environment.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("channel", cfg.Channel)
	v.SetDefault("log", cfg.Log)

	v.SetEnvPrefix("ATOMIC")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".atomic")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".atomic"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path in YAML form, the same direct
// gopkg.in/yaml.v3 marshal/write the teacher's credentials.go uses
// (viper itself has no portable "write struct as new file" path). The
// path conventionally ends in `.toml` (spec §6's repository layout
// names the file `config.toml`); the core treats the file as opaque,
// so the on-disk format follows the teacher's YAML convention rather
// than the literal extension.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	buf, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// loadEnvFiles loads .env files in order of precedence, same as the
// teacher's config loader: local overrides first, then the main file.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		homeEnvFile := filepath.Join(homeDir, ".atomic", ".env")
		if _, err := os.Stat(homeEnvFile); err == nil {
			_ = godotenv.Load(homeEnvFile)
		}
	}
}
