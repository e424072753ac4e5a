// Package config loads stordb settings from defaults, an optional
// stordb.yaml, STORDB_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vrwmiller/stordb/pkg/audit"
	"github.com/vrwmiller/stordb/pkg/store"
	"github.com/vrwmiller/stordb/pkg/vault"
)

// EnvPrefix prefixes every environment override, e.g. STORDB_DB_PATH.
const EnvPrefix = "stordb"

// FileName is the config file name without extension.
const FileName = "stordb"

// Config is the effective stordb configuration.
type Config struct {
	DBPath string      `mapstructure:"db_path" yaml:"db_path"`
	Debug  bool        `mapstructure:"debug" yaml:"debug"`
	Log    LogConfig   `mapstructure:"log" yaml:"log"`
	Vault  VaultConfig `mapstructure:"vault" yaml:"vault"`
}

// LogConfig controls the audit log file.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// VaultConfig controls encrypted export and import.
type VaultConfig struct {
	Path        string `mapstructure:"path" yaml:"path"`
	Cipher      string `mapstructure:"cipher" yaml:"cipher"`
	Tool        string `mapstructure:"tool" yaml:"tool"`
	PasswordEnv string `mapstructure:"password_env" yaml:"password_env"`
}

// Defaults returns the built-in settings.
func Defaults() map[string]any {
	return map[string]any{
		"db_path":            store.DefaultPath,
		"debug":              false,
		"log.file":           audit.DefaultFilename,
		"log.max_size_mb":    audit.DefaultMaxSizeMB,
		"log.max_backups":    audit.DefaultMaxBackups,
		"log.max_age_days":   audit.DefaultMaxAgeDays,
		"vault.path":         vault.DefaultPath,
		"vault.cipher":       vault.CipherAnsible,
		"vault.tool":         vault.DefaultTool,
		"vault.password_env": vault.DefaultPassphraseEnv,
	}
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"db":     "db_path",
	"debug":  "debug",
	"cipher": "vault.cipher",
}

// UserConfigPath returns the per-user config file location.
func UserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: could not get user config directory: %w", err)
	}
	return filepath.Join(dir, "stordb", FileName+".yaml"), nil
}

// Load builds the configuration. configFile, when set, replaces the search
// of the current directory and the user config directory. cmd may be nil.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	// 1. Defaults
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	// 2. Config file
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		if path, err := UserConfigPath(); err == nil {
			v.AddConfigPath(filepath.Dir(path))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	// 3. Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Flags
	if cmd != nil {
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to parse configuration: %w", err)
	}
	return &c, nil
}

// SinkConfig converts the log settings for audit.NewZapLogger.
func (c *Config) SinkConfig() audit.SinkConfig {
	return audit.SinkConfig{
		Debug:      c.Debug,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

// WriteFile writes c as YAML to path, creating parent directories.
func WriteFile(c *Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: could not create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}
	return nil
}
