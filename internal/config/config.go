package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configName = "powerbar"
	envPrefix  = "POWERBAR"
)

// Config holds the application configuration
type Config struct {
	Source     string        `mapstructure:"source" default:"power" validate:"oneof=power power_3s power_10s heart_rate none"`
	Location   string        `mapstructure:"location" default:"bottom" validate:"oneof=top bottom"`
	ResetOnGap bool          `mapstructure:"reset_on_gap"`
	Mock       bool          `mapstructure:"mock"`
	Device     DeviceConfig  `mapstructure:"device"`
	Profile    ProfileConfig `mapstructure:"profile"`
	Log        LogConfig     `mapstructure:"log"`
	Metrics    MetricsConfig `mapstructure:"metrics"`

	// ConfigFile is the file that was read, empty when running on defaults and flags.
	ConfigFile string `mapstructure:"-"`
}

type DeviceConfig struct {
	// Address of the sensor to connect to. Empty picks the first sensor that
	// advertises the service needed by the selected source.
	Address     string        `mapstructure:"address"`
	ScanTimeout time.Duration `mapstructure:"scan_timeout" default:"30s" validate:"gt=0"`
	StaleAfter  time.Duration `mapstructure:"stale_after" default:"5s" validate:"gt=0"`
}

type ProfileConfig struct {
	DBPath       string        `mapstructure:"db_path" default:"powerbar.db" validate:"required"`
	FTP          int           `mapstructure:"ftp" default:"200" validate:"gt=0,lte=2000"`
	RestingHR    int           `mapstructure:"resting_hr" default:"60" validate:"gt=0,lt=250"`
	MaxHR        int           `mapstructure:"max_hr" default:"185" validate:"gtfield=RestingHR,lte=250"`
	PollInterval time.Duration `mapstructure:"poll_interval" default:"0s" validate:"gte=0"`

	// Explicit is set when ftp, resting_hr or max_hr came from a config file,
	// the environment or a flag rather than the defaults. The zones derived
	// from them then replace the stored profile.
	Explicit bool `mapstructure:"-"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" default:"info" validate:"oneof=trace debug info warn error"`
	File       string `mapstructure:"file" default:"powerbar.log" validate:"required"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" default:"10" validate:"gt=0"`
	MaxBackups int    `mapstructure:"max_backups" default:"3" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" default:"28" validate:"gte=0"`
}

type MetricsConfig struct {
	// Addr of the /metrics listener. Empty disables it.
	Addr string `mapstructure:"addr"`
}

// flagBinding ties a command line flag to its viper key.
type flagBinding struct {
	key  string
	flag string
}

var bindings = []flagBinding{
	{"source", "source"},
	{"location", "location"},
	{"reset_on_gap", "reset-on-gap"},
	{"mock", "mock"},
	{"device.address", "device-address"},
	{"device.scan_timeout", "scan-timeout"},
	{"device.stale_after", "stale-after"},
	{"profile.db_path", "db"},
	{"profile.ftp", "ftp"},
	{"profile.resting_hr", "resting-hr"},
	{"profile.max_hr", "max-hr"},
	{"profile.poll_interval", "profile-poll"},
	{"log.level", "log-level"},
	{"log.file", "log-file"},
	{"log.max_size_mb", "log-max-size"},
	{"log.max_backups", "log-max-backups"},
	{"log.max_age_days", "log-max-age"},
	{"metrics.addr", "metrics-addr"},
}

// profileKeys are the settings the rider profile is derived from.
var profileKeys = []string{"profile.ftp", "profile.resting_hr", "profile.max_hr"}

var validate = validator.New()

// Defaults returns the configuration used when nothing overrides it.
func Defaults() (Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, fmt.Errorf("could not apply defaults: %w", err)
	}
	return cfg, nil
}

// Load resolves the configuration from, in increasing precedence, defaults, the
// config file, POWERBAR_* environment variables and command line flags.
func Load(args []string) (*Config, error) {
	base, err := Defaults()
	if err != nil {
		return nil, err
	}

	fs := newFlagSet(base)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, base)
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, fs.Lookup(b.flag)); err != nil {
			return nil, fmt.Errorf("could not bind flag %q: %w", b.flag, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile, _ := fs.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".powerbar"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := base
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	cfg.Profile.Explicit = explicitlySet(v, fs, profileKeys)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and reports every failing field.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "gtfield":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

// explicitlySet reports whether any of keys was given by a flag, the config
// file or a POWERBAR_* variable.
func explicitlySet(v *viper.Viper, fs *pflag.FlagSet, keys []string) bool {
	for _, key := range keys {
		if v.InConfig(key) {
			return true
		}
		envName := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, ok := os.LookupEnv(envName); ok {
			return true
		}
		for _, b := range bindings {
			if b.key == key && fs.Changed(b.flag) {
				return true
			}
		}
	}
	return false
}

func newFlagSet(base Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("powerbar", pflag.ContinueOnError)
	fs.String("config", "", "Path to a config file (default: powerbar.yaml in . or ~/.powerbar)")
	fs.String("source", base.Source, "Telemetry source: power, power_3s, power_10s, heart_rate or none")
	fs.String("location", base.Location, "Bar location: top or bottom")
	fs.Bool("reset-on-gap", base.ResetOnGap, "Forget the last reading when the sensor stops streaming")
	fs.Bool("mock", base.Mock, "Use a simulated sensor instead of Bluetooth")
	fs.String("device-address", base.Device.Address, "Bluetooth address of the sensor")
	fs.Duration("scan-timeout", base.Device.ScanTimeout, "How long to scan for the sensor")
	fs.Duration("stale-after", base.Device.StaleAfter, "Silence after which the sensor counts as not streaming")
	fs.String("db", base.Profile.DBPath, "Path to the rider profile database")
	fs.Int("ftp", base.Profile.FTP, "Functional threshold power used to seed power zones")
	fs.Int("resting-hr", base.Profile.RestingHR, "Resting heart rate used to seed heart rate zones")
	fs.Int("max-hr", base.Profile.MaxHR, "Maximum heart rate used to seed heart rate zones")
	fs.Duration("profile-poll", base.Profile.PollInterval, "Reload interval for external profile edits (0 disables)")
	fs.String("log-level", base.Log.Level, "Log level: trace, debug, info, warn or error")
	fs.String("log-file", base.Log.File, "Log file path, - for stderr")
	fs.Int("log-max-size", base.Log.MaxSizeMB, "Maximum log file size in megabytes before rotation")
	fs.Int("log-max-backups", base.Log.MaxBackups, "Rotated log files to keep")
	fs.Int("log-max-age", base.Log.MaxAgeDays, "Days to keep rotated log files")
	fs.String("metrics-addr", base.Metrics.Addr, "Listen address for Prometheus metrics, empty disables")
	return fs
}

func setDefaults(v *viper.Viper, base Config) {
	v.SetDefault("source", base.Source)
	v.SetDefault("location", base.Location)
	v.SetDefault("reset_on_gap", base.ResetOnGap)
	v.SetDefault("mock", base.Mock)
	v.SetDefault("device.address", base.Device.Address)
	v.SetDefault("device.scan_timeout", base.Device.ScanTimeout)
	v.SetDefault("device.stale_after", base.Device.StaleAfter)
	v.SetDefault("profile.db_path", base.Profile.DBPath)
	v.SetDefault("profile.ftp", base.Profile.FTP)
	v.SetDefault("profile.resting_hr", base.Profile.RestingHR)
	v.SetDefault("profile.max_hr", base.Profile.MaxHR)
	v.SetDefault("profile.poll_interval", base.Profile.PollInterval)
	v.SetDefault("log.level", base.Log.Level)
	v.SetDefault("log.file", base.Log.File)
	v.SetDefault("log.max_size_mb", base.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", base.Log.MaxBackups)
	v.SetDefault("log.max_age_days", base.Log.MaxAgeDays)
	v.SetDefault("metrics.addr", base.Metrics.Addr)
}
