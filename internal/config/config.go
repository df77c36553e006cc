package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/lokcaldev/internal/cron"
)

// Defaults mirror a fresh install.
const (
	DefaultTLD               = "test"
	DefaultPHPVersion        = "8.3"
	DefaultNginxPort         = 80
	DefaultMariaDBPort       = 3306
	DefaultPHPFPMBasePort    = 9081
	DefaultServerListen      = "127.0.0.1:7780"
	DefaultServerBasePath    = "/api"
	DefaultMetricsListen     = "127.0.0.1:7781"
	DefaultElevationMode     = ElevationAuto
	DefaultTailPollInterval  = 500 * time.Millisecond
	DefaultElevationPIDDelay = 500 * time.Millisecond
	DefaultPruneSchedule     = "@daily"
	DefaultTokenTTL          = 24 * time.Hour
	minJWTSecretLen          = 16
	appDirName               = "lokcaldev"
	envPrefix                = "LOKCALDEV"
)

// DefaultPHPVersions lists the PHP-FPM runtimes known to the supervisor.
var DefaultPHPVersions = []string{"8.1", "8.2", "8.3", "8.4"}

// Elevation modes decide when the web server is started through the OS
// privilege-elevation helper.
const (
	ElevationAuto   = "auto"
	ElevationAlways = "always"
	ElevationNever  = "never"
)

// Config is the top-level settings.toml structure.
type Config struct {
	DataDir           string          `toml:"data_dir" mapstructure:"data_dir"`
	TLD               string          `toml:"tld" mapstructure:"tld"`
	DefaultPHPVersion string          `toml:"default_php_version" mapstructure:"default_php_version"`
	SitesDirectory    string          `toml:"sites_directory" mapstructure:"sites_directory"`
	NginxPort         int             `toml:"nginx_port" mapstructure:"nginx_port"`
	MariaDBPort       int             `toml:"mariadb_port" mapstructure:"mariadb_port"`
	PHPFPMBasePort    int             `toml:"php_fpm_base_port" mapstructure:"php_fpm_base_port"`
	PHPVersions       []string        `toml:"php_versions" mapstructure:"php_versions"`
	AutoStartServices bool            `toml:"auto_start_services" mapstructure:"auto_start_services"`
	AutoStartList     []string        `toml:"auto_start_list" mapstructure:"auto_start_list"`
	Env               []string        `toml:"env" mapstructure:"env"`
	EnvFiles          []string        `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv          bool            `toml:"use_os_env" mapstructure:"use_os_env"`
	Log               LogConfig       `toml:"log" mapstructure:"log"`
	Server            ServerConfig    `toml:"server" mapstructure:"server"`
	Metrics           MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	History           HistoryConfig   `toml:"history" mapstructure:"history"`
	Elevation         ElevationConfig `toml:"elevation" mapstructure:"elevation"`
	Tail              TailConfig      `toml:"tail" mapstructure:"tail"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Listen   string     `toml:"listen" mapstructure:"listen"`
	BasePath string     `toml:"base_path" mapstructure:"base_path"`
	Auth     AuthConfig `toml:"auth" mapstructure:"auth"`
}

// AuthConfig protects the API. PasswordHash is a bcrypt hash as printed by
// "lokcaldev auth hash"; tokens issued at login are HS256 JWTs signed with
// JWTSecret.
type AuthConfig struct {
	Enabled      bool          `toml:"enabled" mapstructure:"enabled"`
	PasswordHash string        `toml:"password_hash" mapstructure:"password_hash"`
	JWTSecret    string        `toml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `toml:"token_ttl" mapstructure:"token_ttl"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// HistoryConfig lists DSNs of lifecycle history sinks
// (sqlite://, postgres://, clickhouse://, opensearch://).
// Events older than Retention are pruned on PruneSchedule; zero keeps them.
type HistoryConfig struct {
	Enabled       bool          `toml:"enabled" mapstructure:"enabled"`
	Sinks         []string      `toml:"sinks" mapstructure:"sinks"`
	Retention     time.Duration `toml:"retention" mapstructure:"retention"`
	PruneSchedule string        `toml:"prune_schedule" mapstructure:"prune_schedule"`
}

type ElevationConfig struct {
	Mode string `toml:"mode" mapstructure:"mode"`
	// PIDDelay is how long to wait before reading back the PID file of an
	// elevated start.
	PIDDelay time.Duration `toml:"pid_delay" mapstructure:"pid_delay"`
}

type TailConfig struct {
	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
}

// DefaultDataDir returns the per-user application data directory.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDirName)
	case "windows":
		if d := os.Getenv("LOCALAPPDATA"); d != "" {
			return filepath.Join(d, appDirName)
		}
		return filepath.Join(home, "AppData", "Local", appDirName)
	default:
		if d := os.Getenv("XDG_DATA_HOME"); d != "" {
			return filepath.Join(d, appDirName)
		}
		return filepath.Join(home, ".local", "share", appDirName)
	}
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("tld", DefaultTLD)
	v.SetDefault("default_php_version", DefaultPHPVersion)
	v.SetDefault("sites_directory", filepath.Join(home, "Sites"))
	v.SetDefault("nginx_port", DefaultNginxPort)
	v.SetDefault("mariadb_port", DefaultMariaDBPort)
	v.SetDefault("php_fpm_base_port", DefaultPHPFPMBasePort)
	v.SetDefault("php_versions", DefaultPHPVersions)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.listen", DefaultServerListen)
	v.SetDefault("server.base_path", DefaultServerBasePath)
	v.SetDefault("server.auth.token_ttl", DefaultTokenTTL)
	v.SetDefault("metrics.listen", DefaultMetricsListen)
	v.SetDefault("history.prune_schedule", DefaultPruneSchedule)
	v.SetDefault("elevation.mode", DefaultElevationMode)
	v.SetDefault("elevation.pid_delay", DefaultElevationPIDDelay)
	v.SetDefault("tail.poll_interval", DefaultTailPollInterval)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Default returns the configuration used when no settings file exists.
func Default() *Config {
	var c Config
	// Unmarshal of defaults only cannot fail.
	_ = newViper().Unmarshal(&c)
	return &c
}

// Load reads a TOML settings file. An empty path resolves to
// <data_dir>/config/settings.toml; a missing default file is not an error.
func Load(path string) (*Config, error) {
	v := newViper()
	explicit := path != ""
	if !explicit {
		path = filepath.Join(v.GetString("data_dir"), "config", "settings.toml")
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the supervisor cannot work with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.NginxPort <= 0 || c.NginxPort > 65535 {
		return fmt.Errorf("nginx_port out of range: %d", c.NginxPort)
	}
	if c.MariaDBPort <= 0 || c.MariaDBPort > 65535 {
		return fmt.Errorf("mariadb_port out of range: %d", c.MariaDBPort)
	}
	if c.PHPFPMBasePort <= 0 || c.PHPFPMBasePort > 65535-len(c.PHPVersions) {
		return fmt.Errorf("php_fpm_base_port out of range: %d", c.PHPFPMBasePort)
	}
	if a := c.Server.Auth; a.Enabled {
		if a.PasswordHash == "" {
			return fmt.Errorf("server.auth.password_hash is required when auth is enabled")
		}
		if len(a.JWTSecret) < minJWTSecretLen {
			return fmt.Errorf("server.auth.jwt_secret must be at least %d characters", minJWTSecretLen)
		}
		if a.TokenTTL <= 0 {
			return fmt.Errorf("server.auth.token_ttl must be positive: %s", a.TokenTTL)
		}
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative: %s", c.History.Retention)
	}
	if c.History.Retention > 0 {
		if _, err := cron.Parser.Parse(c.History.PruneSchedule); err != nil {
			return fmt.Errorf("history.prune_schedule %q: %w", c.History.PruneSchedule, err)
		}
	}
	switch c.Elevation.Mode {
	case ElevationAuto, ElevationAlways, ElevationNever:
	default:
		return fmt.Errorf("elevation.mode must be one of auto, always, never: %q", c.Elevation.Mode)
	}
	return nil
}

// Paths returns the on-disk layout rooted at DataDir.
func (c *Config) Paths() Paths { return NewPaths(c.DataDir) }

// PHPFPMPort maps a PHP version to its FPM listen port: the known versions
// take consecutive ports from the base, anything else takes the next one.
func (c *Config) PHPFPMPort(version string) int {
	for i, v := range DefaultPHPVersions {
		if v == version {
			return c.PHPFPMBasePort + i
		}
	}
	return c.PHPFPMBasePort + len(DefaultPHPVersions)
}

// KnownPHPVersions returns configured versions, falling back to the defaults.
func (c *Config) KnownPHPVersions() []string {
	if len(c.PHPVersions) == 0 {
		return append([]string(nil), DefaultPHPVersions...)
	}
	return append([]string(nil), c.PHPVersions...)
}
