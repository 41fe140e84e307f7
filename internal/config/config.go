package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/amaresga/simtemp/internal/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigName   = "simtempctl"
	DefaultConfigDir    = "/etc"
	DefaultEnvPrefix    = "SIMTEMPCTL"
	DefaultLogLevel     = string(LogLevelWarning)
	DefaultCommand      = "monitor"
	DefaultHistoryLimit = 20
	DefaultTestTimeout  = 5 * time.Second
)

var defaults = map[string]any{
	"device":                  "",
	"sysfs_root":              "",
	"poll_interval_ms":        500,
	"buffer_capacity":         100,
	"recheck_seconds":         2,
	"log_level":               DefaultLogLevel,
	"telemetry":               false,
	"telemetry_db":            "/var/lib/simtempctl/history.db",
	"telemetry_batch_size":    50,
	"telemetry_batch_timeout": 5 * time.Second,
	"metrics_addr":            "",
	"kafka_brokers":           []string{},
	"kafka_topic":             "simtemp-alerts",
	"kafka_cooldown":          time.Duration(0),
	"dbus":                    false,
}

// Config is the merged configuration: defaults, TOML file, environment
// and flags, in increasing precedence.
type Config struct {
	Device                string        `mapstructure:"device"`
	SysfsRoot             string        `mapstructure:"sysfs_root"`
	PollIntervalMs        int           `mapstructure:"poll_interval_ms"`
	BufferCapacity        int           `mapstructure:"buffer_capacity"`
	RecheckSeconds        int           `mapstructure:"recheck_seconds"`
	LogLevel              string        `mapstructure:"log_level"`
	Telemetry             bool          `mapstructure:"telemetry"`
	TelemetryDB           string        `mapstructure:"telemetry_db"`
	TelemetryBatchSize    int           `mapstructure:"telemetry_batch_size"`
	TelemetryBatchTimeout time.Duration `mapstructure:"telemetry_batch_timeout"`
	MetricsAddr           string        `mapstructure:"metrics_addr"`
	KafkaBrokers          []string      `mapstructure:"kafka_brokers"`
	KafkaTopic            string        `mapstructure:"kafka_topic"`
	KafkaCooldown         time.Duration `mapstructure:"kafka_cooldown"`
	DBus                  bool          `mapstructure:"dbus"`

	// Command is the first positional argument; Args are the rest.
	Command string   `mapstructure:"-"`
	Args    []string `mapstructure:"-"`

	// Overrides holds the command-specific flags.
	Overrides Overrides `mapstructure:"-"`

	v *viper.Viper
}

// Overrides are one-shot values for the set, history and test commands.
// Pointer fields are nil unless the flag was given.
type Overrides struct {
	SamplingMs  *int
	ThresholdMC *int
	Mode        string
	Enable      bool
	Disable     bool
	Limit       int
	Timeout     time.Duration
}

// Empty reports whether no configuration override was given.
func (o Overrides) Empty() bool {
	return o.SamplingMs == nil && o.ThresholdMC == nil && o.Mode == "" && !o.Enable && !o.Disable
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) RecheckPeriod() time.Duration {
	return time.Duration(c.RecheckSeconds) * time.Second
}

// ConfigFile returns the file the configuration was read from, if any.
func (c *Config) ConfigFile() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(DefaultConfigName, pflag.ContinueOnError)

	fs.String("config", "", "Configuration file (TOML)")
	fs.String("device", "", "Device node, probed when empty")
	fs.String("sysfs-root", "", "Attribute directory, probed when empty")
	fs.Int("poll-interval-ms", 500, "Read timeout per poll in milliseconds")
	fs.Int("buffer-capacity", 100, "Samples kept in memory")
	fs.Int("recheck-seconds", 2, "Seconds between sampling period checks")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning, error")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Bool("telemetry", false, "Store samples in the history database")
	fs.String("telemetry-db", "/var/lib/simtempctl/history.db", "History database path")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.StringSlice("kafka-brokers", nil, "Publish alerts to these brokers")
	fs.String("kafka-topic", "simtemp-alerts", "Alert topic")
	fs.Bool("dbus", false, "Export the session on the D-Bus session bus")

	fs.Int("sampling-ms", 0, "set: sampling period in milliseconds")
	fs.Int("threshold-mc", 0, "set: alert threshold in milli-degrees Celsius")
	fs.String("mode", "", "set: generator mode (normal, noisy, ramp)")
	fs.Bool("enable", false, "set: start sampling")
	fs.Bool("disable", false, "set: stop sampling")
	fs.Int("limit", DefaultHistoryLimit, "history: number of samples to show")
	fs.Duration("timeout", DefaultTestTimeout, "test: how long to wait for an alert")

	return fs
}

// Load reads the configuration from all sources and validates it.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}
	if !o.argsSet {
		o.args = os.Args[1:]
	}

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key := range defaults {
		flag := fs.Lookup(strings.ReplaceAll(key, "_", "-"))
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	if err := readConfigFile(v, fs, o); err != nil {
		return nil, err
	}

	// --debug and --verbose are shortcuts for --log-level
	if debug, _ := fs.GetBool("debug"); debug {
		v.Set("log_level", string(LogLevelDebug))
	} else if verbose, _ := fs.GetBool("verbose"); verbose {
		v.Set("log_level", string(LogLevelInfo))
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	cfg.Command = DefaultCommand
	if fs.NArg() > 0 {
		cfg.Command = fs.Arg(0)
		cfg.Args = fs.Args()[1:]
	}
	cfg.Overrides = readOverrides(fs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// readConfigFile picks the file from --config, WithConfigFile or the
// environment, in that order, falling back to /etc/simtempctl.toml. Only
// the fallback may be absent.
func readConfigFile(v *viper.Viper, fs *pflag.FlagSet, o options) error {
	path, _ := fs.GetString("config")
	if path == "" {
		path = o.configPath
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(DefaultConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			return nil
		}
		return errors.New().Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

func readOverrides(fs *pflag.FlagSet) Overrides {
	var o Overrides

	if fs.Changed("sampling-ms") {
		v, _ := fs.GetInt("sampling-ms")
		o.SamplingMs = &v
	}
	if fs.Changed("threshold-mc") {
		v, _ := fs.GetInt("threshold-mc")
		o.ThresholdMC = &v
	}
	o.Mode, _ = fs.GetString("mode")
	o.Enable, _ = fs.GetBool("enable")
	o.Disable, _ = fs.GetBool("disable")
	o.Limit, _ = fs.GetInt("limit")
	o.Timeout, _ = fs.GetDuration("timeout")

	return o
}

// Validate checks value ranges that do not depend on the device.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.PollIntervalMs <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Field string
			Value int
		}{
			Field: "poll_interval_ms",
			Value: c.PollIntervalMs,
		})
	}
	if c.RecheckSeconds <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Field string
			Value int
		}{
			Field: "recheck_seconds",
			Value: c.RecheckSeconds,
		})
	}
	if c.BufferCapacity <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{
			Field: "buffer_capacity",
			Value: c.BufferCapacity,
		})
	}
	if c.Telemetry && c.TelemetryDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "telemetry_db is required when telemetry is enabled")
	}
	if c.Overrides.Enable && c.Overrides.Disable {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "--enable and --disable are mutually exclusive")
	}
	if c.Overrides.Limit < 0 || c.Overrides.Timeout < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "--limit and --timeout must not be negative")
	}

	return nil
}

// Watch reloads the configuration file whenever it changes. Flags and
// environment keep their precedence. Reloads that fail validation are
// dropped. Without a configuration file Watch does nothing.
func (c *Config) Watch(ctx context.Context, callback func(*Config)) error {
	if c.ConfigFile() == "" {
		return nil
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil || e.Has(fsnotify.Remove) {
			return
		}

		next := &Config{
			v:         c.v,
			Command:   c.Command,
			Args:      c.Args,
			Overrides: c.Overrides,
		}
		if err := c.v.Unmarshal(next); err != nil {
			return
		}
		if err := next.Validate(); err != nil {
			return
		}
		callback(next)
	})
	c.v.WatchConfig()

	return nil
}
