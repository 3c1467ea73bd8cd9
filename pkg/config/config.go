// Package config loads poimap settings from defaults, an optional YAML
// file, a .env file and POIMAP_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/NERVsystems/poimap/pkg/coords"
	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: POIMAP_DATASET_URL → dataset.url.
const EnvPrefix = "POIMAP"

// Config holds all application configuration.
type Config struct {
	Dataset     DatasetConfig     `mapstructure:"dataset"`
	Tiles       TilesConfig       `mapstructure:"tiles"`
	Viewport    ViewportConfig    `mapstructure:"viewport"`
	Positioning PositioningConfig `mapstructure:"positioning"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	MCP         MCPConfig         `mapstructure:"mcp"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Log         LogConfig         `mapstructure:"log"`
}

type DatasetConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TilesConfig struct {
	URLTemplate string        `mapstructure:"url_template"`
	Retina      bool          `mapstructure:"retina"`
	RPS         float64       `mapstructure:"rps"`
	Burst       int           `mapstructure:"burst"`
	CacheSize   int           `mapstructure:"cache_size"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	Debounce    time.Duration `mapstructure:"debounce"`
}

type ViewportConfig struct {
	MinZoom       float64       `mapstructure:"min_zoom"`
	MaxZoom       float64       `mapstructure:"max_zoom"`
	StageDelay    time.Duration `mapstructure:"stage_delay"`
	ReassertDelay time.Duration `mapstructure:"reassert_delay"`
}

type PositioningConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// StaticFix is the position reported by the headless platform, as
	// "lat,lng" or MGRS. Empty means location services are off.
	StaticFix string `mapstructure:"static_fix"`
}

type MonitoringConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// MCPConfig selects how the tool surface is exposed. An empty transport
// means stdio.
type MCPConfig struct {
	Transport      string  `mapstructure:"transport"`
	Addr           string  `mapstructure:"addr"`
	BaseURL        string  `mapstructure:"base_url"`
	AuthToken      string  `mapstructure:"auth_token"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateBurst      int     `mapstructure:"rate_burst"`
	MaxRequestSize int64   `mapstructure:"max_request_size"`
}

// TracingConfig configures the OTLP exporter. An empty endpoint disables
// tracing.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	Environment string  `mapstructure:"environment"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataset.url", "")
	v.SetDefault("dataset.timeout", 20*time.Second)
	v.SetDefault("tiles.url_template", "https://tile.openstreetmap.org/{z}/{x}/{y}{r}.png")
	v.SetDefault("tiles.retina", false)
	v.SetDefault("tiles.rps", 10.0)
	v.SetDefault("tiles.burst", 20)
	v.SetDefault("tiles.cache_size", 512)
	v.SetDefault("tiles.cache_ttl", 24*time.Hour)
	v.SetDefault("tiles.debounce", 500*time.Millisecond)
	v.SetDefault("viewport.min_zoom", 3.0)
	v.SetDefault("viewport.max_zoom", 19.0)
	v.SetDefault("viewport.stage_delay", 250*time.Millisecond)
	v.SetDefault("viewport.reassert_delay", 220*time.Millisecond)
	v.SetDefault("positioning.timeout", 12*time.Second)
	v.SetDefault("positioning.static_fix", "")
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.addr", "localhost:9090")
	v.SetDefault("mcp.transport", "stdio")
	v.SetDefault("mcp.addr", "localhost:7082")
	v.SetDefault("mcp.base_url", "")
	v.SetDefault("mcp.auth_token", "")
	v.SetDefault("mcp.rate_limit", 10.0)
	v.SetDefault("mcp.rate_burst", 20)
	v.SetDefault("mcp.max_request_size", 1<<20)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. When path is empty an optional poimap.yaml is
// looked up in the working directory and ./configs; a missing file is not
// an error. A .env file in the working directory is applied to the
// environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	} else if err != nil {
		slog.Debug("no .env file found, using the process environment")
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("poimap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the collector conventions used outside poimap still apply
	_ = v.BindEnv("tracing.endpoint", EnvPrefix+"_TRACING_ENDPOINT", "OTLP_ENDPOINT")
	_ = v.BindEnv("tracing.environment", EnvPrefix+"_TRACING_ENVIRONMENT", "ENVIRONMENT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	if c.Dataset.URL == "" {
		errs = append(errs, "dataset.url is required")
	} else if u, err := url.Parse(c.Dataset.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("dataset.url must be an http(s) URL, got %q", c.Dataset.URL))
	}
	if c.Dataset.Timeout <= 0 {
		errs = append(errs, "dataset.timeout must be positive")
	}

	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(c.Tiles.URLTemplate, p) {
			errs = append(errs, fmt.Sprintf("tiles.url_template must contain %s", p))
		}
	}
	if c.Tiles.RPS <= 0 {
		errs = append(errs, "tiles.rps must be positive")
	}
	if c.Tiles.Burst <= 0 {
		errs = append(errs, "tiles.burst must be positive")
	}
	if c.Tiles.CacheSize <= 0 {
		errs = append(errs, "tiles.cache_size must be positive")
	}
	if c.Tiles.Debounce <= 0 {
		errs = append(errs, "tiles.debounce must be positive")
	}

	if c.Viewport.MinZoom < 0 || c.Viewport.MaxZoom > 22 || c.Viewport.MinZoom >= c.Viewport.MaxZoom {
		errs = append(errs, fmt.Sprintf("viewport zoom range [%g, %g] is invalid", c.Viewport.MinZoom, c.Viewport.MaxZoom))
	}

	if c.Positioning.Timeout <= 0 {
		errs = append(errs, "positioning.timeout must be positive")
	}
	if c.Positioning.StaticFix != "" {
		if _, err := coords.Parse(c.Positioning.StaticFix); err != nil {
			errs = append(errs, fmt.Sprintf("positioning.static_fix: %v", err))
		}
	}

	if c.Monitoring.Enabled && c.Monitoring.Addr == "" {
		errs = append(errs, "monitoring.addr is required when monitoring is enabled")
	}

	switch c.MCP.Transport {
	case "", "stdio":
	case "http":
		if c.MCP.Addr == "" {
			errs = append(errs, "mcp.addr is required for the http transport")
		}
		if c.MCP.AuthToken != "" {
			if err := core.ValidateAuthToken(c.MCP.AuthToken); err != nil {
				errs = append(errs, fmt.Sprintf("mcp.auth_token: %v", err))
			}
		}
		if c.MCP.RateLimit <= 0 || c.MCP.RateBurst <= 0 {
			errs = append(errs, "mcp.rate_limit and mcp.rate_burst must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("mcp.transport must be stdio or http, got %q", c.MCP.Transport))
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_ratio must be between 0 and 1, got %g", c.Tracing.SampleRatio))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
