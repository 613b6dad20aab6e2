// Package config loads ev's settings from flags, the environment, .env files
// and an optional config.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"ev/internal/history"
	"ev/internal/version"
)

// ConfigFileName is the name of the config file inside the config directory
const ConfigFileName = "config.yaml"

// Keys understood by Load. Flags are bound to the same names.
const (
	KeyDataDir          = "data-dir"
	KeyCacheDir         = "cache-dir"
	KeyConfigDir        = "config-dir"
	KeyLogLevel         = "log.level"
	KeyLogFile          = "log.file"
	KeyHistorySize      = "history.size"
	KeyMatrixUsername   = "matrix.username"
	KeyMatrixPassword   = "matrix.password"
	KeyMatrixHomeserver = "matrix.homeserver"
	KeyDebug            = "debug"
	KeyNoMatrix         = "no-matrix"
)

// Config is the resolved configuration of one ev run.
type Config struct {
	DataDir   string `yaml:"data_dir"`
	CacheDir  string `yaml:"cache_dir"`
	ConfigDir string `yaml:"config_dir"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file,omitempty"`

	HistorySize int `yaml:"history_size"`

	Matrix MatrixConfig `yaml:"matrix"`

	Debug DebugFlags `yaml:"-"`

	// ConfigFile is the config.yaml that was read, if any.
	ConfigFile string `yaml:"config_file,omitempty"`
}

// MatrixConfig holds the account the Matrix component logs in with.
type MatrixConfig struct {
	Username   string `yaml:"username,omitempty"`
	Password   string `yaml:"password,omitempty"`
	Homeserver string `yaml:"homeserver,omitempty"`
}

// HistoryPath is where the command history is persisted.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.CacheDir, "history")
}

// DatabasePath is where the Matrix component keeps its database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "matrix.db")
}

// MatrixEnabled reports whether the Matrix component should start.
func (c *Config) MatrixEnabled() bool {
	return !c.Debug.Has(DebugNoMatrix)
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHistorySize, history.DefaultCapacity)
	v.SetDefault(KeyLogLevel, "info")
}

// Load resolves the configuration. The .env files of the config directory
// and of the working directory are applied to the process environment
// first, without overriding variables that are already set; then
// config.yaml is read and EV_* variables are bound.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("EV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	configDir, err := dir(v.GetString(KeyConfigDir), os.UserConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := LoadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}

	v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s: %w", ConfigFileName, err)
		}
	}

	dataDir, err := dir(v.GetString(KeyDataDir), userDataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to locate data directory: %w", err)
	}
	cacheDir, err := dir(v.GetString(KeyCacheDir), os.UserCacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to locate cache directory: %w", err)
	}

	cfg := &Config{
		DataDir:     dataDir,
		CacheDir:    cacheDir,
		ConfigDir:   configDir,
		LogLevel:    v.GetString(KeyLogLevel),
		LogFile:     v.GetString(KeyLogFile),
		HistorySize: v.GetInt(KeyHistorySize),
		Matrix: MatrixConfig{
			Username:   v.GetString(KeyMatrixUsername),
			Password:   v.GetString(KeyMatrixPassword),
			Homeserver: v.GetString(KeyMatrixHomeserver),
		},
		Debug:      ParseDebugFlags(v.GetString(KeyDebug)),
		ConfigFile: v.ConfigFileUsed(),
	}
	if v.GetBool(KeyNoMatrix) {
		cfg.Debug |= DebugNoMatrix
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = history.DefaultCapacity
	}

	return cfg, nil
}

// dir returns override, or the program's subdirectory of the base
// directory reported by base.
func dir(override string, base func() (string, error)) (string, error) {
	if override != "" {
		return override, nil
	}
	root, err := base()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, version.Project), nil
}

// userDataDir follows the XDG base directory layout.
func userDataDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return dataHome, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share"), nil
}
