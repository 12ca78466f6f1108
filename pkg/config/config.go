package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/kubescape/process-monitor/pkg/exporters"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const ConfigDirEnvVar = "CONFIG_DIR"

const (
	EventSourceWMI      = "wmi"
	EventSourceNetlink  = "netlink"
	EventSourceProcScan = "procscan"
)

const (
	DecodeFailureSkip  = "skip"
	DecodeFailureAbort = "abort"
)

type ReconnectConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	InitialInterval time.Duration `mapstructure:"initialInterval"`
	MaxInterval     time.Duration `mapstructure:"maxInterval"`
	MaxRetries      uint64        `mapstructure:"maxRetries"`
}

type Config struct {
	Exporters                exporters.ExportersConfig `mapstructure:"exporters"`
	EventSource              string                    `mapstructure:"eventSource"`
	ChannelCapacity          int                       `mapstructure:"channelCapacity"`
	PullTimeout              time.Duration             `mapstructure:"pullTimeout"`
	IdleInterval             time.Duration             `mapstructure:"idleInterval"`
	SendTimeout              time.Duration             `mapstructure:"sendTimeout"`
	ConsumerPollInterval     time.Duration             `mapstructure:"consumerPollInterval"`
	DecodeFailurePolicy      string                    `mapstructure:"decodeFailurePolicy"`
	OneShot                  bool                      `mapstructure:"oneShot"`
	Reconnect                ReconnectConfig           `mapstructure:"reconnect"`
	EnablePrometheusExporter bool                      `mapstructure:"prometheusExporterEnabled"`
	PrometheusPort           int                       `mapstructure:"prometheusPort"`
	HealthPort               int                       `mapstructure:"healthPort"`
}

// DefaultEventSource is the native creation-event backend of the running OS.
func DefaultEventSource() string {
	if runtime.GOOS == "windows" {
		return EventSourceWMI
	}
	return EventSourceNetlink
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	return LoadConfigFs(afero.NewOsFs(), path)
}

// LoadConfigFs is LoadConfig over an arbitrary filesystem. A missing config file is not an
// error: defaults and environment variables apply.
func LoadConfigFs(fs afero.Fs, path string) (Config, error) {
	v := viper.New()
	v.SetFs(fs)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetDefault("eventSource", DefaultEventSource())
	v.SetDefault("channelCapacity", 10)
	v.SetDefault("pullTimeout", time.Second)
	v.SetDefault("idleInterval", 100*time.Millisecond)
	v.SetDefault("sendTimeout", time.Duration(0))
	v.SetDefault("consumerPollInterval", 250*time.Millisecond)
	v.SetDefault("decodeFailurePolicy", DecodeFailureSkip)
	v.SetDefault("oneShot", false)
	v.SetDefault("reconnect.enabled", true)
	v.SetDefault("reconnect.initialInterval", time.Second)
	v.SetDefault("reconnect.maxInterval", 30*time.Second)
	v.SetDefault("reconnect.maxRetries", 0)
	v.SetDefault("prometheusPort", 8080)
	v.SetDefault("healthPort", 7888)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading %s: %w", filepath.Join(path, "config.json"), err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, err
	}
	return config, config.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{EventSourceWMI, EventSourceNetlink, EventSourceProcScan}, c.EventSource) {
		errs = append(errs, fmt.Errorf("unknown eventSource %q", c.EventSource))
	}
	if c.ChannelCapacity < 1 {
		errs = append(errs, fmt.Errorf("channelCapacity must be positive, got %d", c.ChannelCapacity))
	}
	if c.PullTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pullTimeout must be positive, got %s", c.PullTimeout))
	}
	if c.IdleInterval < 0 {
		errs = append(errs, fmt.Errorf("idleInterval must not be negative, got %s", c.IdleInterval))
	}
	if c.SendTimeout < 0 {
		errs = append(errs, fmt.Errorf("sendTimeout must not be negative, got %s", c.SendTimeout))
	}
	if c.ConsumerPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("consumerPollInterval must be positive, got %s", c.ConsumerPollInterval))
	}
	if c.DecodeFailurePolicy != DecodeFailureSkip && c.DecodeFailurePolicy != DecodeFailureAbort {
		errs = append(errs, fmt.Errorf("unknown decodeFailurePolicy %q", c.DecodeFailurePolicy))
	}
	if c.Reconnect.Enabled && c.Reconnect.InitialInterval <= 0 {
		errs = append(errs, fmt.Errorf("reconnect.initialInterval must be positive, got %s", c.Reconnect.InitialInterval))
	}
	return errors.Join(errs...)
}

// AbortOnDecodeFailure reports whether a malformed event ends the pull instead of being skipped.
func (c *Config) AbortOnDecodeFailure() bool {
	return c.DecodeFailurePolicy == DecodeFailureAbort
}
