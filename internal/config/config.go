// ABOUTME: Gym configuration loading with viper: defaults, config file, .env, environment and flags.
// ABOUTME: Resolves the storage driver/DSN, the acting user and runtime timeouts.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (GYM_DSN, GYM_USER_ID, ...).
const EnvPrefix = "GYM"

// Config stores gym tool configuration.
type Config struct {
	// Driver selects the storage backend: "sqlite" (default) or "postgres".
	Driver string `mapstructure:"driver"`

	// DSN is the data source name. For sqlite it defaults to <data_dir>/gym.db.
	DSN string `mapstructure:"dsn"`

	// DataDir is the root directory for local data. Supports ~ expansion.
	// Defaults to ~/.local/share/gym.
	DataDir string `mapstructure:"data_dir"`

	// UserID is the acting user for every tool call and CLI command.
	UserID int64 `mapstructure:"user_id"`

	Timezone string `mapstructure:"timezone"`
	Locale   string `mapstructure:"locale"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// MetricsListen is the address for the Prometheus endpoint. Empty disables it.
	MetricsListen string `mapstructure:"metrics_listen"`

	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	ReaperInterval time.Duration `mapstructure:"reaper_interval"`
	TxTimeout      time.Duration `mapstructure:"tx_timeout"`
}

// LoadOptions controls where Load looks for settings.
type LoadOptions struct {
	// ConfigFile overrides the default config file lookup.
	ConfigFile string
	// Flags are bound over every other source. Flag names use dashes (log-level).
	Flags *pflag.FlagSet
	// EnvFiles are loaded into the process environment first; missing files are skipped.
	EnvFiles []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("driver", "sqlite")
	v.SetDefault("dsn", "")
	v.SetDefault("data_dir", "")
	v.SetDefault("user_id", 1)
	v.SetDefault("timezone", "")
	v.SetDefault("locale", "en")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("metrics_listen", "")
	v.SetDefault("session_timeout", 6*time.Hour)
	v.SetDefault("reaper_interval", 15*time.Minute)
	v.SetDefault("tx_timeout", 30*time.Second)
}

// Load reads configuration. Precedence: flags > environment > config file > defaults.
func Load(opts LoadOptions) (*Config, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(ExpandPath(opts.ConfigFile))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(GetConfigDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !knownKeys[key] {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

var knownKeys = map[string]bool{
	"driver": true, "dsn": true, "data_dir": true, "user_id": true,
	"timezone": true, "locale": true, "log_level": true, "log_format": true,
	"metrics_listen": true, "session_timeout": true, "reaper_interval": true,
	"tx_timeout": true,
}

// Validate rejects settings the runtime cannot start with.
func (c *Config) Validate() error {
	switch c.GetDriver() {
	case "sqlite":
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown driver: %q", c.Driver)
	}
	if c.UserID <= 0 {
		return fmt.Errorf("user_id must be positive, got %d", c.UserID)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format: %q", c.LogFormat)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	if c.TxTimeout < 0 || c.SessionTimeout < 0 || c.ReaperInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// GetDriver returns the configured driver, defaulting to "sqlite".
func (c *Config) GetDriver() string {
	if c.Driver == "" {
		return "sqlite"
	}
	return strings.ToLower(c.Driver)
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return DataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetDSN returns the DSN to open. SQLite falls back to gym.db in the data directory.
func (c *Config) GetDSN() string {
	if c.DSN != "" {
		if c.GetDriver() == "sqlite" {
			return ExpandPath(c.DSN)
		}
		return c.DSN
	}
	if c.GetDriver() == "sqlite" {
		return filepath.Join(c.GetDataDir(), "gym.db")
	}
	return ""
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DataDir returns the default data directory under XDG_DATA_HOME.
func DataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "gym")
}

// GetConfigDir returns the directory searched for config.{yaml,json,toml}.
func GetConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "gym")
}
