package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "HANDHELDCTL"
	DefaultConfigName = "handheldctl"
	DefaultLogLevel   = "info"

	defaultInterval          = 2
	defaultHysteresis        = 3
	defaultTemperatureWindow = 3
	defaultPWMMax            = 255
	defaultManualEnable      = 1
	defaultAutoEnable        = 2
	defaultMinTDP            = 3
	defaultMaxTDP            = 25
	defaultTDP               = 15
	defaultToolTimeout       = 800 * time.Millisecond
)

// Settings backends
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

type Config struct {
	Interval          int          `mapstructure:"interval"`
	Hysteresis        int          `mapstructure:"hysteresis"`
	TemperatureWindow int          `mapstructure:"temperature_window"`
	Monitor           bool         `mapstructure:"monitor"`
	LogLevel          string       `mapstructure:"log_level"`
	PIDFile           string       `mapstructure:"pid_file"`
	HwmonPath         string       `mapstructure:"hwmon_path"`
	Curve             []CurvePoint `mapstructure:"curve"`
	Fans              []FanDevice  `mapstructure:"fans"`
	Power             Power        `mapstructure:"power"`
	Settings          Settings     `mapstructure:"settings"`
	Metrics           Metrics      `mapstructure:"metrics"`

	file string
}

// CurvePoint maps a temperature in °C to a fan speed percentage
type CurvePoint struct {
	Temperature float64 `mapstructure:"temperature"`
	Speed       int     `mapstructure:"speed"`
}

// FanDevice describes where a physical fan lives in sysfs
type FanDevice struct {
	Name         string `mapstructure:"name"`
	Hwmon        string `mapstructure:"hwmon"`
	Channel      int    `mapstructure:"channel"`
	MaxRPM       int    `mapstructure:"max_rpm"`
	PWMMax       int    `mapstructure:"pwm_max"`
	ManualEnable int    `mapstructure:"manual_enable"`
	AutoEnable   *int   `mapstructure:"auto_enable"`
	TempHwmon    string `mapstructure:"temp_hwmon"`
	TempInput    string `mapstructure:"temp_input"`
}

// AutoEnableValue returns the pwm_enable value that hands the fan back to firmware
func (d FanDevice) AutoEnableValue() int {
	if d.AutoEnable == nil {
		return defaultAutoEnable
	}

	return *d.AutoEnable
}

type Power struct {
	ToolPath      string        `mapstructure:"tool_path"`
	FallbackPaths []string      `mapstructure:"fallback_paths"`
	MinTDP        int           `mapstructure:"min_tdp"`
	MaxTDP        int           `mapstructure:"max_tdp"`
	DefaultTDP    int           `mapstructure:"default_tdp"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Verify        bool          `mapstructure:"verify"`
	SMTControl    string        `mapstructure:"smt_control"`
}

type Settings struct {
	Backend string `mapstructure:"backend"`
	// Path is the database file for the sqlite backend and the directory
	// holding one JSON file per key for the file backend.
	Path string `mapstructure:"path"`
	Key  string `mapstructure:"key"`
}

type Metrics struct {
	Enabled      bool   `mapstructure:"enabled"`
	DBPath       string `mapstructure:"database"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
}

// RegisterFlags adds the command line flags understood by Load to fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to configuration file")
	fs.Int("interval", defaultInterval, "Seconds between control ticks")
	fs.Int("hysteresis", defaultHysteresis, "Minimum fan percent change before re-driving a fan")
	fs.Bool("monitor", false, "Only read sensors, never drive fans")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("metrics", false, "Record tick samples to the metrics database")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("hysteresis", defaultHysteresis)
	v.SetDefault("temperature_window", defaultTemperatureWindow)
	v.SetDefault("monitor", false)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("pid_file", filepath.Join(os.TempDir(), "handheldctl.pid"))
	v.SetDefault("hwmon_path", "/sys/class/hwmon")
	v.SetDefault("curve", []map[string]any{
		{"temperature": 40, "speed": 20},
		{"temperature": 50, "speed": 30},
		{"temperature": 60, "speed": 50},
		{"temperature": 70, "speed": 70},
		{"temperature": 80, "speed": 100},
	})
	v.SetDefault("fans", []map[string]any{
		{
			"name":       "Fan",
			"hwmon":      "oxpec",
			"channel":    1,
			"max_rpm":    5000,
			"temp_hwmon": "k10temp",
			"temp_input": "temp1_input",
		},
	})

	v.SetDefault("power.tool_path", "/usr/local/bin/ryzenadj")
	v.SetDefault("power.fallback_paths", []string{"/usr/bin/ryzenadj"})
	v.SetDefault("power.min_tdp", defaultMinTDP)
	v.SetDefault("power.max_tdp", defaultMaxTDP)
	v.SetDefault("power.default_tdp", defaultTDP)
	v.SetDefault("power.timeout", defaultToolTimeout)
	v.SetDefault("power.verify", false)
	v.SetDefault("power.smt_control", "/sys/devices/system/cpu/smt/control")

	v.SetDefault("settings.backend", BackendSQLite)
	v.SetDefault("settings.path", "/var/lib/handheldctl/settings.db")
	v.SetDefault("settings.key", "handheldctl")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.database", "/var/lib/handheldctl/metrics.db")
	v.SetDefault("metrics.batch_size", 30)
	v.SetDefault("metrics.batch_timeout", 60)
}

// Load reads configuration from defaults, the configuration file, the
// environment and flags, in increasing order of precedence
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		if err := bindFlags(v, o.flags); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
		if o.configPath == "" {
			if f := o.flags.Lookup("config"); f != nil && f.Changed {
				o.configPath = f.Value.String()
			}
		}
	}

	if o.configPath == "" {
		o.configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	v.SetConfigType("toml")
	if o.configPath != "" {
		v.SetConfigFile(o.configPath)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath("/etc")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.file = v.ConfigFileUsed()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bindings := map[string]string{
		"interval":        "interval",
		"hysteresis":      "hysteresis",
		"monitor":         "monitor",
		"log_level":       "log-level",
		"metrics.enabled": "metrics",
	}

	for key, name := range bindings {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) normalize() {
	for i := range c.Fans {
		if c.Fans[i].PWMMax <= 0 {
			c.Fans[i].PWMMax = defaultPWMMax
		}
		if c.Fans[i].ManualEnable <= 0 {
			c.Fans[i].ManualEnable = defaultManualEnable
		}
		if c.Fans[i].Channel <= 0 {
			c.Fans[i].Channel = 1
		}
		if c.Fans[i].TempHwmon == "" {
			c.Fans[i].TempHwmon = c.Fans[i].Hwmon
		}
		if c.Fans[i].TempInput == "" {
			c.Fans[i].TempInput = "temp1_input"
		}
	}
	if c.TemperatureWindow <= 0 {
		c.TemperatureWindow = 1
	}
}

// Validate checks the loaded values for consistency
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Hysteresis < 0 || c.Hysteresis > 100 {
		return errFactory.WithData(errors.ErrInvalidConfig, "hysteresis must be within 0..100")
	}

	for i := 1; i < len(c.Curve); i++ {
		if c.Curve[i].Temperature <= c.Curve[i-1].Temperature {
			return errFactory.WithData(errors.ErrInvalidConfig, "curve temperatures must be strictly increasing")
		}
	}

	if c.Power.MinTDP <= 0 || c.Power.MinTDP > c.Power.MaxTDP {
		return errFactory.WithData(errors.ErrInvalidConfig, "power.min_tdp must be positive and not above power.max_tdp")
	}

	switch c.Settings.Backend {
	case BackendSQLite, BackendFile:
	default:
		return errFactory.WithData(errors.ErrInvalidConfig, "unknown settings backend "+c.Settings.Backend)
	}

	if c.Settings.Key == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "settings.key must not be empty")
	}

	if c.Metrics.Enabled && c.Metrics.DBPath == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "metrics.database is required when metrics are enabled")
	}

	return nil
}

// File returns the configuration file that was read, if any
func (c *Config) File() string {
	return c.file
}

func (c *Config) GetInterval() int          { return c.Interval }
func (c *Config) GetHysteresis() int        { return c.Hysteresis }
func (c *Config) GetTemperatureWindow() int { return c.TemperatureWindow }
func (c *Config) IsMonitorMode() bool       { return c.Monitor }
func (c *Config) GetLogLevel() string       { return c.LogLevel }
func (c *Config) IsMetricsEnabled() bool    { return c.Metrics.Enabled }
func (c *Config) GetMetricsDBPath() string  { return c.Metrics.DBPath }
