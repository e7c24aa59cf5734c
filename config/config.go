package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Address  string `mapstructure:"address"`
		HTTPPort string `mapstructure:"http_port"`
	} `mapstructure:"server"`

	Database struct {
		// "postgres" | "mysql" | "sqlite" | "" (no DB, in-memory dev mode)
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // "text" | "json"
		File   string `mapstructure:"file"`
	} `mapstructure:"logging"`

	MQTT struct {
		Enabled     bool   `mapstructure:"enabled"`
		Broker      string `mapstructure:"broker"`
		ClientID    string `mapstructure:"client_id"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		TopicPrefix string `mapstructure:"topic_prefix"`
	} `mapstructure:"mqtt"`

	Gateway GatewayConfig `mapstructure:"gateway"`
}

// GatewayConfig — tuning knobs for the command/telemetry core.
type GatewayConfig struct {
	// retrieve batch sizing
	RetrieveLimit    int `mapstructure:"retrieve_limit"`
	RetrieveMaxLimit int `mapstructure:"retrieve_max_limit"`

	// timeout sweep: in_progress longer than estimate*TimeoutFactor -> timeout
	TimeoutFactor    float64 `mapstructure:"timeout_factor"`
	SweepIntervalSec int     `mapstructure:"sweep_interval_sec"`

	Presence PresenceConfig `mapstructure:"presence"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
}

// PresenceConfig — freshness buckets in seconds (live < recent < stale).
type PresenceConfig struct {
	LiveWithinSec   int `mapstructure:"live_within_sec"`
	RecentWithinSec int `mapstructure:"recent_within_sec"`
	StaleWithinSec  int `mapstructure:"stale_within_sec"`
}

type AlertsConfig struct {
	MoistureCriticalBelow float64 `mapstructure:"moisture_critical_below"`
	TemperatureHighAbove  float64 `mapstructure:"temperature_high_above"`
	HumidityLowBelow      float64 `mapstructure:"humidity_low_below"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8080")

	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", "sproutd")
	v.SetDefault("mqtt.topic_prefix", "sprout")

	v.SetDefault("gateway.retrieve_limit", 5)
	v.SetDefault("gateway.retrieve_max_limit", 25)
	v.SetDefault("gateway.timeout_factor", 3.0)
	v.SetDefault("gateway.sweep_interval_sec", 30)

	v.SetDefault("gateway.presence.live_within_sec", 60)
	v.SetDefault("gateway.presence.recent_within_sec", 300)
	v.SetDefault("gateway.presence.stale_within_sec", 900)

	v.SetDefault("gateway.alerts.moisture_critical_below", 20)
	v.SetDefault("gateway.alerts.temperature_high_above", 35)
	v.SetDefault("gateway.alerts.humidity_low_below", 30)
}

// Load reads sprout.yaml (cwd, ./config, /etc/sprout) with SPROUT_* env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SPROUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sprout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sprout")
	}

	if err := v.ReadInConfig(); err != nil {
		// config file is optional; env+defaults are enough to boot
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration (no file, no env).
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
