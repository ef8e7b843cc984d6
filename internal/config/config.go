// Package config loads the service configuration. Values come from an
// optional TOML file plus environment variables, with defaults for
// everything so a bare binary still runs against a public DEM source.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config is the root configuration for the slope tile service.
type Config struct {
	Listen      string  `mapstructure:"listen"`
	DemURL      string  `mapstructure:"dem_url"`
	DemEncoding string  `mapstructure:"dem_encoding"`
	CachePath   string  `mapstructure:"cache_path"`
	LogLevel    string  `mapstructure:"log_level"`
	TimingLog   string  `mapstructure:"timing_log"`
	MaxAngle    float64 `mapstructure:"max_angle"`
	PixelSize   float64 `mapstructure:"pixel_size"`
}

// Load reads configuration from path. An empty path loads pure defaults; a
// missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("slopetiles")
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("dem_url", "https://elevation-tiles-prod.s3.amazonaws.com/terrarium/{z}/{x}/{y}.png")
	v.SetDefault("dem_encoding", "terrarium")
	v.SetDefault("cache_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("timing_log", "")
	v.SetDefault("max_angle", 45.0)
	v.SetDefault("pixel_size", 0.0) // 0 = derive from tile latitude

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.DemURL == "" {
		return fmt.Errorf("config: dem_url is required")
	}
	switch c.DemEncoding {
	case "terrarium", "mapbox":
	default:
		return fmt.Errorf("config: dem_encoding must be terrarium or mapbox, got %q", c.DemEncoding)
	}
	if c.MaxAngle < 0 || c.MaxAngle > 90 {
		return fmt.Errorf("config: max_angle must be within [0,90], got %g", c.MaxAngle)
	}
	if c.PixelSize < 0 {
		return fmt.Errorf("config: pixel_size must be non-negative, got %g", c.PixelSize)
	}
	return nil
}
