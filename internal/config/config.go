package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/tomography/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval     = time.Second
	DefaultLogLevel     = string(LogLevelInfo)
	DefaultDBPath       = "/var/lib/tomography/samples.db"
	DefaultBatchSize    = 30
	DefaultBatchTimeout = 30 * time.Second
	DefaultPIDFile      = "tomography.pid"

	MinInterval = 10 * time.Millisecond

	defaultEnvPrefix = "TOMOGRAPHY"
	configName       = "tomography"
)

type Config struct {
	Interval time.Duration  `mapstructure:"interval"`
	LogLevel string         `mapstructure:"log_level"`
	Once     bool           `mapstructure:"once"`
	Listen   string         `mapstructure:"listen"`
	GPU      bool           `mapstructure:"gpu"`
	PIDFile  string         `mapstructure:"pid_file"`
	Recorder RecorderConfig `mapstructure:"recorder"`
}

type RecorderConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// Load reads configuration from flags, environment and an optional TOML file.
// Flags take precedence over the environment, which takes precedence over the file.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		configPath: os.Getenv(defaultEnvPrefix + "_CONFIG"),
		envPrefix:  defaultEnvPrefix,
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	fs.Duration("interval", DefaultInterval, "Sampling interval")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("once", false, "Print one set of readings and exit")
	fs.String("listen", "", "Address to serve Prometheus metrics on")
	fs.Bool("gpu", false, "Read GPU sensors through NVML")
	fs.String("pid-file", DefaultPIDFile, "PID file name, relative to the temp dir")
	fs.Bool("record", false, "Record rates to the sample database")
	fs.String("db-path", DefaultDBPath, "Path to the sample database")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("recorder.batch_size", DefaultBatchSize)
	v.SetDefault("recorder.batch_timeout", DefaultBatchTimeout)

	bindings := map[string]string{
		"interval":         "interval",
		"log_level":        "log-level",
		"once":             "once",
		"listen":           "listen",
		"gpu":              "gpu",
		"pid_file":         "pid-file",
		"recorder.enabled": "record",
		"recorder.db_path": "db-path",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("toml")
	if o.configPath != "" {
		v.SetConfigFile(o.configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath("/etc")
		v.AddConfigPath("$HOME/.config/tomography")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval < MinInterval {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Recorder.Enabled {
		if c.Recorder.DBPath == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "recorder database path is empty")
		}
		if c.Recorder.BatchSize < 1 {
			return errFactory.WithData(errors.ErrInvalidConfig, "recorder batch size must be positive")
		}
	}

	return nil
}
