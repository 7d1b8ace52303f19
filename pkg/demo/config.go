// Process configuration: defaults, optional YAML file, environment overrides.
// Precedence is defaults < config file < environment; flags are applied by the CLI.
package demo

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Sreejareddy7683/Otel/pkg/telemetry"
)

const defaultServiceName = "otel-sample-app"

// Config holds everything the serve command needs to run the service.
type Config struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	ServiceName    string        `mapstructure:"service_name"`
	ServiceVersion string        `mapstructure:"service_version"`
	Environment    string        `mapstructure:"environment"`
	Endpoint       string        `mapstructure:"endpoint"`
	Protocol       string        `mapstructure:"protocol"`
	Insecure       bool          `mapstructure:"insecure"`
	Stdout         bool          `mapstructure:"stdout"`
	SampleRatio    float64       `mapstructure:"sample_ratio"`
	MetricInterval time.Duration `mapstructure:"metric_interval"`
	UsersFile      string        `mapstructure:"users_file"`
	BaseLatency    time.Duration `mapstructure:"base_latency"`
	ProfileAddr    string        `mapstructure:"profile_addr"`
}

// LoadConfig merges defaults, an optional YAML file, and OTELSAMPLE_* env
// vars. OTEL_COLLECTOR_ENDPOINT is honored as an endpoint alias.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OTELSAMPLE")
	v.AutomaticEnv()
	if err := v.BindEnv("endpoint", "OTELSAMPLE_ENDPOINT", "OTEL_COLLECTOR_ENDPOINT"); err != nil {
		return Config{}, fmt.Errorf("binding endpoint env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":5000")
	v.SetDefault("service_name", defaultServiceName)
	v.SetDefault("service_version", "1.0.0")
	v.SetDefault("environment", "production")
	v.SetDefault("endpoint", "otel-collector:4317")
	v.SetDefault("protocol", telemetry.ProtocolGRPC)
	v.SetDefault("insecure", true)
	v.SetDefault("stdout", false)
	v.SetDefault("sample_ratio", 1.0)
	v.SetDefault("metric_interval", 10*time.Second)
	v.SetDefault("users_file", "")
	v.SetDefault("base_latency", 20*time.Millisecond)
	v.SetDefault("profile_addr", "")
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.BaseLatency < 0 {
		return fmt.Errorf("base latency must not be negative, got %s", c.BaseLatency)
	}
	return c.Telemetry().Validate()
}

// Telemetry maps the export-related fields onto the telemetry package config.
func (c Config) Telemetry() telemetry.Config {
	return telemetry.Config{
		Endpoint:       c.Endpoint,
		Protocol:       c.Protocol,
		Insecure:       c.Insecure,
		Stdout:         c.Stdout,
		SampleRatio:    c.SampleRatio,
		MetricInterval: c.MetricInterval,
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
	}
}
