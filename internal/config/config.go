package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Theme     ThemeConfig     `mapstructure:"theme"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path          string        `mapstructure:"path"`
	SchemaDir     string        `mapstructure:"schema_dir"`
	MigrationsDir string        `mapstructure:"migrations_dir"`
	OpenRetry     time.Duration `mapstructure:"open_retry"`
}

// BootstrapConfig controls startup phase supervision.
type BootstrapConfig struct {
	Critical       []string                 `mapstructure:"critical"`
	FastTimeout    time.Duration            `mapstructure:"fast_timeout"`
	SlowTimeout    time.Duration            `mapstructure:"slow_timeout"`
	Timeouts       map[string]time.Duration `mapstructure:"timeouts"`
	SchemaPolicy   string                   `mapstructure:"schema_policy"`
	ProgressBuffer int                      `mapstructure:"progress_buffer"`
	ShutdownGrace  time.Duration            `mapstructure:"shutdown_grace"`
}

// CacheConfig sizes the in-memory preference cache.
type CacheConfig struct {
	Size int `mapstructure:"size"`
}

// TasksConfig sizes the background task runner.
type TasksConfig struct {
	Workers   int     `mapstructure:"workers"`
	QueueSize int     `mapstructure:"queue_size"`
	RatePerS  float64 `mapstructure:"rate_per_second"`
}

// ThemeConfig selects the palette and where extra palettes live.
type ThemeConfig struct {
	Name string `mapstructure:"name"`
	Dir  string `mapstructure:"dir"`
}

// LogConfig holds log sink settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// TimeoutFor returns the configured timeout for a phase, or zero when the
// phase should use the fast/slow default.
func (b BootstrapConfig) TimeoutFor(name string) time.Duration {
	if b.Timeouts == nil {
		return 0
	}
	return b.Timeouts[strings.ToLower(name)]
}

// Load reads configuration from file and env. Env var overrides use prefix LAUNCHPAD_.
// An explicit path wins over LAUNCHPAD_CONFIG.
func Load(path string) (Config, error) {
	v := viper.New()

	dataDir := filepath.Join(os.Getenv("HOME"), ".local", "share", "launchpad")

	// default values
	v.SetDefault("database.path", filepath.Join(dataDir, "launchpad.db"))
	v.SetDefault("database.schema_dir", "")
	v.SetDefault("database.migrations_dir", "")
	v.SetDefault("database.open_retry", "3s")
	v.SetDefault("bootstrap.critical", []string{"storage"})
	v.SetDefault("bootstrap.fast_timeout", "5s")
	v.SetDefault("bootstrap.slow_timeout", "10s")
	v.SetDefault("bootstrap.schema_policy", "lenient")
	v.SetDefault("bootstrap.progress_buffer", 256)
	v.SetDefault("bootstrap.shutdown_grace", "5s")
	v.SetDefault("cache.size", 512)
	v.SetDefault("tasks.workers", 2)
	v.SetDefault("tasks.queue_size", 64)
	v.SetDefault("tasks.rate_per_second", 20.0)
	v.SetDefault("theme.name", "mocha")
	v.SetDefault("theme.dir", filepath.Join(configDir(), "themes"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(dataDir, "launchpad.log"))

	v.SetConfigType("toml")

	cfgPath := path
	if cfgPath == "" {
		cfgPath = os.Getenv("LAUNCHPAD_CONFIG")
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LAUNCHPAD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// an explicit file that cannot be read is a user error; a missing default is not
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the bootstrap cannot work with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("config: database.path is required")
	}
	switch c.Bootstrap.SchemaPolicy {
	case "strict", "lenient":
	default:
		return fmt.Errorf("config: bootstrap.schema_policy must be strict or lenient, got %q", c.Bootstrap.SchemaPolicy)
	}
	if c.Bootstrap.FastTimeout <= 0 || c.Bootstrap.SlowTimeout <= 0 {
		return fmt.Errorf("config: bootstrap timeouts must be positive")
	}
	for name, d := range c.Bootstrap.Timeouts {
		if d <= 0 {
			return fmt.Errorf("config: bootstrap.timeouts.%s must be positive", name)
		}
	}
	if c.Tasks.Workers < 1 {
		return fmt.Errorf("config: tasks.workers must be at least 1")
	}
	return nil
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "launchpad")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "launchpad")
}
