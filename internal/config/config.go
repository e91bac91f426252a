package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/nexus/internal/logger"
	"github.com/loykin/nexus/internal/server"
	"github.com/loykin/nexus/internal/supervisor"
	"github.com/loykin/nexus/internal/watch"
	"github.com/loykin/nexus/internal/worker"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "NEXUS_CONFIG"

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "nexus.toml"

// Config represents the top-level config file.
type Config struct {
	Prefix            string        `toml:"prefix" mapstructure:"prefix"`
	Environment       string        `toml:"environment" mapstructure:"environment"`
	Connection        string        `toml:"connection" mapstructure:"connection"`
	AutoRestart       bool          `toml:"auto_restart" mapstructure:"auto_restart"`
	RestartSignalFile string        `toml:"restart_signal_file" mapstructure:"restart_signal_file"`
	StoragePath       string        `toml:"storage_path" mapstructure:"storage_path"`
	BasePath          string        `toml:"base_path" mapstructure:"base_path"`
	Registry          string        `toml:"registry" mapstructure:"registry"`
	PIDFile           string        `toml:"pid_file" mapstructure:"pid_file"`
	Command           []string      `toml:"command" mapstructure:"command"`
	Env               []string      `toml:"env" mapstructure:"env"`
	EnvFiles          []string      `toml:"env_files" mapstructure:"env_files"`
	StopGrace         time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	StartProbe        time.Duration `toml:"start_probe" mapstructure:"start_probe"`
	SignalInterval    time.Duration `toml:"signal_interval" mapstructure:"signal_interval"`
	CrashThreshold    int           `toml:"crash_threshold" mapstructure:"crash_threshold"`
	CrashWindow       time.Duration `toml:"crash_window" mapstructure:"crash_window"`
	MaxBackoff        time.Duration `toml:"max_backoff" mapstructure:"max_backoff"`

	Watch   WatchConfig              `toml:"watch" mapstructure:"watch"`
	Log     logger.Config            `toml:"log" mapstructure:"log"`
	Metrics MetricsConfig            `toml:"metrics" mapstructure:"metrics"`
	HTTP    HTTPConfig               `toml:"http" mapstructure:"http"`
	History []string                 `toml:"history" mapstructure:"history"`
	Workers map[string]worker.Fields `toml:"workers" mapstructure:"workers"`

	// Path of the file the config was read from, empty when none was found.
	Path string `toml:"-" mapstructure:"-"`
}

type WatchConfig struct {
	Paths      []string      `toml:"paths" mapstructure:"paths"`
	Extensions []string      `toml:"extensions" mapstructure:"extensions"`
	Interval   time.Duration `toml:"interval" mapstructure:"interval"`
	Notify     bool          `toml:"notify" mapstructure:"notify"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

// HTTPConfig is the [http] table: listen address, base path, [http.auth]
// and [http.tls].
type HTTPConfig = server.Config

// Load reads the config file at path. An empty path falls back to
// $NEXUS_CONFIG and then ./nexus.toml; when neither exists the defaults are
// returned with no workers. An explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range map[string]string{
		"prefix":          "NEXUS_PREFIX",
		"environment":     "APP_ENV",
		"connection":      "QUEUE_CONNECTION",
		"http.auth.token": "NEXUS_HTTP_TOKEN",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if !explicit {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.Path = path
	c.resolvePaths()
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("prefix", supervisor.DefaultPrefix)
	v.SetDefault("environment", supervisor.DefaultEnvironment)
	v.SetDefault("connection", worker.DefaultConnection)
	v.SetDefault("auto_restart", true)
	v.SetDefault("storage_path", "storage")
	v.SetDefault("base_path", ".")
	v.SetDefault("stop_grace", supervisor.DefaultStopGrace)
	v.SetDefault("start_probe", supervisor.DefaultStartProbe)
	v.SetDefault("signal_interval", supervisor.DefaultSignalInterval)
	v.SetDefault("crash_threshold", supervisor.DefaultCrashThreshold)
	v.SetDefault("crash_window", supervisor.DefaultCrashWindow)
	v.SetDefault("max_backoff", supervisor.DefaultMaxBackoff)
	v.SetDefault("watch.interval", supervisor.DefaultWatchInterval)
	v.SetDefault("watch.notify", true)
	v.SetDefault("log.level", "info")
}

// resolvePaths anchors storage_path to base_path and derives the registry,
// pid file and restart signal file from it when they are not set.
func (c *Config) resolvePaths() {
	if c.BasePath == "" {
		c.BasePath = "."
	}
	if !filepath.IsAbs(c.StoragePath) {
		c.StoragePath = filepath.Join(c.BasePath, c.StoragePath)
	}
	if c.Registry == "" {
		c.Registry = filepath.Join(c.StoragePath, "app", "nexus.pids")
	}
	if c.PIDFile == "" {
		c.PIDFile = filepath.Join(c.StoragePath, "app", "nexus.pid")
	}
	if c.RestartSignalFile == "" {
		c.RestartSignalFile = filepath.Join(c.StoragePath, "framework", "cache", "laravel-queue-restart")
	}
	if c.HTTP.TLS.Dir == "" && c.HTTP.TLS.AutoGenerate {
		c.HTTP.TLS.Dir = filepath.Join(c.StoragePath, "app", "nexus-tls")
	} else if c.HTTP.TLS.Dir != "" && !filepath.IsAbs(c.HTTP.TLS.Dir) {
		c.HTTP.TLS.Dir = filepath.Join(c.BasePath, c.HTTP.TLS.Dir)
	}
}

// Definitions builds one worker.Definition per [workers.<name>] table,
// sorted by name. Each warning names a worker whose missing fields were
// filled with defaults.
func (c *Config) Definitions() ([]worker.Definition, []string, error) {
	names := make([]string, 0, len(c.Workers))
	for name := range c.Workers {
		names = append(names, name)
	}
	sort.Strings(names)

	defaults := worker.Defaults{Connection: c.Connection, Command: c.Command}
	var (
		defs     []worker.Definition
		warnings []string
		errs     []error
	)
	for _, name := range names {
		def, missing, err := worker.NewDefinition(name, c.Workers[name], defaults)
		if err != nil {
			errs = append(errs, fmt.Errorf("worker %q: %w", name, err))
			continue
		}
		if len(missing) > 0 {
			warnings = append(warnings, fmt.Sprintf("worker %q: using defaults for %s", name, strings.Join(missing, ", ")))
		}
		defs = append(defs, def)
	}
	return defs, warnings, errors.Join(errs...)
}

// GlobalEnv returns the variables every worker gets on top of the
// supervisor's own environment: env_files in order, then the env list.
func (c *Config) GlobalEnv() ([]string, error) {
	var out []string
	for _, p := range c.EnvFiles {
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.BasePath, p)
		}
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		out = append(out, pairs...)
	}
	return append(out, c.Env...), nil
}

// Options maps the config onto supervisor options. Runtime collaborators
// (logger, registry, history, output, env) are left for the caller.
func (c *Config) Options() supervisor.Options {
	return supervisor.Options{
		Prefix:          c.Prefix,
		Environment:     c.Environment,
		AutoRestart:     c.AutoRestart,
		SignalFile:      c.RestartSignalFile,
		BasePath:        c.BasePath,
		WatchPaths:      c.Watch.Paths,
		WatchExtensions: c.Watch.Extensions,
		WatchNotify:     c.Watch.Notify,
		SignalInterval:  c.SignalInterval,
		WatchInterval:   c.Watch.Interval,
		StopGrace:       c.StopGrace,
		StartProbe:      c.StartProbe,
		CrashThreshold:  c.CrashThreshold,
		CrashWindow:     c.CrashWindow,
		MaxBackoff:      c.MaxBackoff,
		PIDFile:         c.PIDFile,
		LogFiles:        c.Log,
	}
}

// WatchDefaults reports the effective watch paths and extensions.
func (c *Config) WatchDefaults() ([]string, []string) {
	s := watch.NewScanner(c.BasePath, c.Watch.Paths, c.Watch.Extensions)
	return s.Paths, s.Extensions
}

// LoadEnvFile parses a simple .env file and returns "KEY=VALUE" entries in
// file order. Blank lines and lines starting with # are ignored, an
// "export " prefix is accepted and matching outer quotes are stripped.
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		out = append(out, k+"="+val)
	}
	return out, nil
}
