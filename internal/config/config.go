// Package config loads mpsd settings from TOML files, a .env file and MPSD_*
// environment variables, layered over defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
)

// EnvPrefix marks environment variables overriding file settings, e.g.
// MPSD_MPD_HOST for mpd.host.
const EnvPrefix = "MPSD_"

type Config struct {
	MPD      MPDConfig      `koanf:"mpd"`
	Database DatabaseConfig `koanf:"database"`
	Tracking TrackingConfig `koanf:"tracking"`
	Log      LogConfig      `koanf:"log"`
	Stats    StatsConfig    `koanf:"stats"`
	Daemon   DaemonConfig   `koanf:"daemon"`

	// Last.fm scrobbling (enables scrobbling when configured)
	Lastfm LastfmConfig `koanf:"lastfm"`
}

// MPDConfig locates the player.
type MPDConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"` // empty disables authentication
}

// DatabaseConfig locates the history database.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// TrackingConfig tunes when a song counts as listened.
type TrackingConfig struct {
	PollInterval int     `koanf:"poll_interval"` // seconds between polls
	AddThreshold float64 `koanf:"add_threshold"` // fraction of the duration (0.0-1.0)
}

// LogConfig selects the log destination.
type LogConfig struct {
	File  string `koanf:"file"`  // empty logs to stderr
	Level string `koanf:"level"` // logrus level name
}

// StatsConfig configures the external stats generator.
type StatsConfig struct {
	Script   string `koanf:"script"`
	Template string `koanf:"template"`
}

// DaemonConfig configures background mode.
type DaemonConfig struct {
	PIDFile string `koanf:"pid_file"`
}

// LastfmConfig holds Last.fm scrobbling configuration.
type LastfmConfig struct {
	APIKey    string `koanf:"api_key"`
	APISecret string `koanf:"api_secret"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		MPD: MPDConfig{
			Host: "localhost",
			Port: 6600,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(xdg.DataHome, "mpsd", "mpsd.db"),
		},
		Tracking: TrackingConfig{
			PollInterval: 1,
			AddThreshold: 0.2,
		},
		Log: LogConfig{
			Level: "info",
		},
		Stats: StatsConfig{
			Script:   "sqltd",
			Template: filepath.Join(xdg.ConfigHome, "mpsd", "template.html"),
		},
		Daemon: DaemonConfig{
			PIDFile: filepath.Join(xdg.RuntimeDir, "mpsd", "mpsd.pid"),
		},
	}
}

// Load reads the configuration. When path is empty the default locations
// are searched; otherwise only path is read and must exist. A .env file in
// the working directory and MPSD_* variables are applied on top.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	configPaths := getConfigPaths()
	if path != "" {
		configPaths = []string{path}
	}

	for _, p := range configPaths {
		if _, err := os.Stat(p); err != nil {
			if path != "" {
				return nil, fmt.Errorf("config file: %w", err)
			}
			continue
		}
		if err := k.Load(file.Provider(p), toml.Parser()); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(k, os.Environ()); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.Stats.Template = expandPath(cfg.Stats.Template)
	cfg.Daemon.PIDFile = expandPath(cfg.Daemon.PIDFile)

	return cfg, nil
}

// applyEnv copies MPSD_SECTION_KEY variables into k as section.key.
func applyEnv(k *koanf.Koanf, environ []string) error {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		section, key, ok := strings.Cut(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "_")
		if !ok || section == "" || key == "" {
			continue
		}
		if err := k.Set(section+"."+key, value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func getConfigPaths() []string {
	return []string{
		// 1. $XDG_CONFIG_HOME/mpsd/config.toml
		filepath.Join(xdg.ConfigHome, "mpsd", "config.toml"),
		// 2. ./config.toml (pwd, highest priority)
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Tracking.PollInterval < 1 {
		errs = append(errs, fmt.Errorf("tracking.poll_interval must be at least 1, got %d", c.Tracking.PollInterval))
	}
	if c.Tracking.AddThreshold < 0 || c.Tracking.AddThreshold > 1 {
		errs = append(errs, fmt.Errorf("tracking.add_threshold must be within [0, 1], got %g", c.Tracking.AddThreshold))
	}
	if c.MPD.Port < 1 || c.MPD.Port > 65535 {
		errs = append(errs, fmt.Errorf("mpd.port must be within 1-65535, got %d", c.MPD.Port))
	}
	if c.MPD.Host == "" {
		errs = append(errs, errors.New("mpd.host must not be empty"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must not be empty"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// PollInterval returns the poll period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Tracking.PollInterval) * time.Second
}

// HasLastfmConfig returns true if Last.fm scrobbling is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}
