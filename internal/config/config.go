// Package config loads and validates the proxy's process configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration object, unmarshalled by viper from
// a config file, environment variables, or flags.
type Config struct {
	Debug bool `mapstructure:"debug"`

	// ProfilesFile points at the externally-maintained profile/ownership
	// store (§1); the core never writes to it.
	ProfilesFile string `mapstructure:"profilesFile"`
	DumpDir      string `mapstructure:"dumpDir"`

	Upstream UpstreamConfig `mapstructure:"upstream"`
	Bind     BindConfig     `mapstructure:"bind"`
	Status   StatusConfig   `mapstructure:"status"`
	Ops      OpsConfig      `mapstructure:"ops"`

	ReadTimeout       int `mapstructure:"readTimeout"`       // ms
	ConnectionTimeout int `mapstructure:"connectionTimeout"` // ms

	Compression   CompressionConfig   `mapstructure:"compression"`
	AutoReconnect AutoReconnectConfig `mapstructure:"autoReconnect"`
	RateLimit     RateLimitConfig     `mapstructure:"rateLimit"`
}

// AutoReconnectConfig is decoded from the config file but not read by the
// session manager, which takes reconnect settings from each profile.
type AutoReconnectConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Delay   time.Duration `mapstructure:"delay"`
}

// RateLimitConfig bounds both the downstream accept rate per remote IP and
// the session manager's reconnect attempt rate per profile.
type RateLimitConfig struct {
	AcceptPerSecond    float64 `mapstructure:"acceptPerSecond"`
	AcceptBurst        int     `mapstructure:"acceptBurst"`
	ReconnectPerMinute float64 `mapstructure:"reconnectPerMinute"`
	ReconnectBurst     int     `mapstructure:"reconnectBurst"`
}

// UpstreamConfig describes the single remote game server the proxy
// maintains sessions against.
type UpstreamConfig struct {
	Host string `mapstructure:"host"`
	Port uint16 `mapstructure:"port"`

	// AuthServer is the base URL of the remote session-join endpoint used
	// to verify the shared secret during login (§4.2).
	AuthServer string `mapstructure:"authServer"`

	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

// BindConfig describes where the downstream listener accepts clients.
type BindConfig struct {
	Host string `mapstructure:"host"`
	Port uint16 `mapstructure:"port"`
}

// StatusConfig configures the status-ping response (§9 Open Question b).
type StatusConfig struct {
	MOTD    string `mapstructure:"motd"`
	Favicon string `mapstructure:"favicon"` // path to a PNG, resized to 64x64
}

// OpsConfig configures the ambient health/metrics HTTP surface.
type OpsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// CompressionConfig mirrors §4.1's threshold/level knobs.
type CompressionConfig struct {
	Threshold int `mapstructure:"threshold"`
	Level     int `mapstructure:"level"`
}

// Default returns a Config populated with the proxy's fixed defaults,
// suitable as a viper SetDefault seed.
func Default() Config {
	return Config{
		ProfilesFile:      "profiles.yaml",
		ReadTimeout:       30000,
		ConnectionTimeout: 5000,
		Bind: BindConfig{
			Host: "0.0.0.0",
			Port: 25565,
		},
		Status: StatusConfig{
			MOTD: "2b2t Proxy",
		},
		Ops: OpsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9090",
		},
		Compression: CompressionConfig{
			Threshold: 256,
			Level:     6,
		},
		AutoReconnect: AutoReconnectConfig{
			Enabled: true,
			Delay:   5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			AcceptPerSecond:    1,
			AcceptBurst:        5,
			ReconnectPerMinute: 4,
			ReconnectBurst:     2,
		},
	}
}

// Validate checks a loaded Config for obviously broken values before the
// proxy starts accepting connections.
func Validate(c *Config) error {
	if c.Upstream.Host == "" {
		return fmt.Errorf("upstream.host must be set")
	}
	if c.Upstream.Port == 0 {
		return fmt.Errorf("upstream.port must be set")
	}
	if c.Bind.Port == 0 {
		return fmt.Errorf("bind.port must be set")
	}
	if c.Compression.Threshold < 0 {
		return fmt.Errorf("compression.threshold must be >= 0")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("readTimeout must be positive")
	}
	return nil
}
