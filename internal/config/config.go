package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ReferenceConfig locates the reference boundary files and mapping tables.
// Boundary files may be GeoJSON or ESRI shapefiles.
type ReferenceConfig struct {
	ITLBoundaries string `yaml:"itl_boundaries" mapstructure:"itl_boundaries"`
	LABoundaries  string `yaml:"la_boundaries" mapstructure:"la_boundaries"`
	ITLMapping    string `yaml:"itl_mapping" mapstructure:"itl_mapping"`
	MCAMapping    string `yaml:"mca_mapping" mapstructure:"mca_mapping"`
	// CodeProperty and NameProperty override attribute detection.
	CodeProperty string `yaml:"code_property" mapstructure:"code_property"`
	NameProperty string `yaml:"name_property" mapstructure:"name_property"`
}

// RenderConfig holds default presentation settings.
type RenderConfig struct {
	Units             string  `yaml:"units" mapstructure:"units"`
	DecimalPlaces     int     `yaml:"decimal_places" mapstructure:"decimal_places"`
	NumColours        int     `yaml:"num_colours" mapstructure:"num_colours"`
	Palette           string  `yaml:"palette" mapstructure:"palette"`
	Mode              string  `yaml:"mode" mapstructure:"mode"`
	MapHeight         float64 `yaml:"map_height" mapstructure:"map_height"`
	Width             int     `yaml:"width" mapstructure:"width"`
	TitleWidth        int     `yaml:"title_width" mapstructure:"title_width"`
	SimplifyTolerance float64 `yaml:"simplify_tolerance" mapstructure:"simplify_tolerance"`
	Steps             int     `yaml:"steps" mapstructure:"steps"`
	ShowMissingValues bool    `yaml:"show_missing_values" mapstructure:"show_missing_values"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	SessionTTLMinutes int      `yaml:"session_ttl_minutes" mapstructure:"session_ttl_minutes"`
	RateLimit         float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst         int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB       int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REGIONMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("reference.itl_boundaries", "")
	v.SetDefault("reference.la_boundaries", "")
	v.SetDefault("reference.itl_mapping", "")
	v.SetDefault("reference.mca_mapping", "")
	v.SetDefault("reference.code_property", "")
	v.SetDefault("reference.name_property", "")
	v.SetDefault("render.units", "")
	v.SetDefault("render.decimal_places", 1)
	v.SetDefault("render.num_colours", 5)
	v.SetDefault("render.palette", "viridis_r")
	v.SetDefault("render.mode", "discrete")
	v.SetDefault("render.map_height", 1.0)
	v.SetDefault("render.width", 800)
	v.SetDefault("render.title_width", 60)
	v.SetDefault("render.simplify_tolerance", 1e-4)
	v.SetDefault("render.steps", 10)
	v.SetDefault("render.show_missing_values", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.session_ttl_minutes", 60)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Mode is one of
// "render", "boundaries" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "render", "boundaries":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.SessionTTLMinutes <= 0 {
			errs = append(errs, "server.session_ttl_minutes must be > 0")
		}
		if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
			errs = append(errs, "server.rate_limit and server.rate_burst must be > 0")
		}
		if c.Server.MaxUploadMB <= 0 {
			errs = append(errs, "server.max_upload_mb must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Reference.ITLBoundaries == "" && c.Reference.LABoundaries == "" {
		errs = append(errs, "reference.itl_boundaries or reference.la_boundaries is required")
	}
	if c.Render.DecimalPlaces < 0 || c.Render.DecimalPlaces > 5 {
		errs = append(errs, "render.decimal_places must be between 0 and 5")
	}
	if c.Render.NumColours < 2 || c.Render.NumColours > 6 {
		errs = append(errs, "render.num_colours must be between 2 and 6")
	}
	if c.Render.MapHeight <= 0 {
		errs = append(errs, "render.map_height must be > 0")
	}
	if c.Render.SimplifyTolerance < 0 {
		errs = append(errs, "render.simplify_tolerance must be >= 0")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: invalid for %s: %s", mode, strings.Join(errs, "; ")))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
