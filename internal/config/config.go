// Package config loads pointcast settings from a YAML file and POINTCAST_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go.ngs.io/pointcast/internal/adapter/interp"
	"go.ngs.io/pointcast/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig
	Log           LogConfig
	Data          DataConfig
	Remote        RemoteConfig
	Interpolation InterpolationConfig
	Batch         BatchConfig
	Validation    ValidationConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port               int
	GinMode            string // debug, release, test
	CORSAllowedOrigins []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	File   string // Optional rotated log file.
}

// DataConfig locates local data.
type DataConfig struct {
	CacheDir    string
	HHLSnapshot string // msgpack+zstd half-level snapshot; empty disables it.
	GeoidPath   string // EGM2008 NetCDF; empty disables ellipsoidal input.
	CullAge     time.Duration
	Wgrib2      string
}

// RemoteConfig configures the remote sources.
type RemoteConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MirrorBucket string // GCS bucket tried before the open-data server.
	MirrorPrefix string
}

// InterpolationConfig selects the interpolation passes.
type InterpolationConfig struct {
	Strategy   string // sequential, combined
	Horizontal string // idw, nearest, bilinear
	Vertical   bool
	Temporal   bool
	Neighbors  int
	Epsilon    float64
}

// BatchConfig configures batch runs.
type BatchConfig struct {
	Workers      int
	Variables    []string
	Points       []PointConfig
	PointsFile   string
	OutputDir    string
	OutputPrefix string
	DatabaseURL  string // Optional Postgres sink.
}

// PointConfig is a query point as written in the config file.
type PointConfig struct {
	Lat         float64
	Lon         float64
	Alt         float64
	Time        string // RFC 3339; empty means now.
	AltitudeRef string
}

// QueryPoints converts the configured points.
func (b BatchConfig) QueryPoints() ([]domain.QueryPoint, error) {
	out := make([]domain.QueryPoint, 0, len(b.Points))
	for i, pc := range b.Points {
		p := domain.QueryPoint{
			Lat:         pc.Lat,
			Lon:         pc.Lon,
			Alt:         pc.Alt,
			AltitudeRef: domain.AltitudeReference(strings.ToLower(pc.AltitudeRef)),
		}
		if pc.Time != "" {
			t, err := time.Parse(time.RFC3339, pc.Time)
			if err != nil {
				return nil, fmt.Errorf("batch.points[%d]: invalid time %q: %w", i, pc.Time, err)
			}
			t = t.UTC()
			p.Time = &t
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("batch.points[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ValidationConfig enables validation mode.
type ValidationConfig struct {
	Enabled      bool
	MaxLeadHours int
}

// Load reads configuration from file and environment variables. An empty
// path searches pointcast.yaml in the usual places.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pointcast")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.pointcast")
	}

	setDefaults(v)

	v.SetEnvPrefix("POINTCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist, we have defaults
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Batch.Variables = domain.NormalizeVariables(cfg.Batch.Variables)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.ginMode", "release")
	v.SetDefault("server.corsAllowedOrigins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("data.cacheDir", "./data/cache")
	v.SetDefault("data.cullAge", 4*time.Hour)
	v.SetDefault("data.wgrib2", "wgrib2")
	v.SetDefault("remote.baseURL", domain.DefaultBaseURL)
	v.SetDefault("remote.timeout", time.Minute)
	v.SetDefault("remote.mirrorPrefix", "icon")
	v.SetDefault("interpolation.strategy", string(interp.StrategySequential))
	v.SetDefault("interpolation.horizontal", string(interp.HorizontalIDW))
	v.SetDefault("interpolation.vertical", true)
	v.SetDefault("interpolation.temporal", true)
	v.SetDefault("interpolation.neighbors", 4)
	v.SetDefault("interpolation.epsilon", interp.DefaultEpsilon)
	v.SetDefault("batch.workers", 1)
	v.SetDefault("batch.variables", domain.DefaultVariables)
	v.SetDefault("batch.outputDir", "./output")
	v.SetDefault("batch.outputPrefix", "pointcast_")
	v.SetDefault("validation.maxLeadHours", domain.ValidationMaxLeadHours)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := interp.ParseStrategy(c.Interpolation.Strategy); err != nil {
		return fmt.Errorf("interpolation.strategy: %w", err)
	}
	if _, err := interp.ParseHorizontalMethod(c.Interpolation.Horizontal); err != nil {
		return fmt.Errorf("interpolation.horizontal: %w", err)
	}
	if c.Interpolation.Neighbors < 1 {
		return fmt.Errorf("interpolation.neighbors must be at least 1, got %d", c.Interpolation.Neighbors)
	}
	if c.Interpolation.Epsilon <= 0 {
		return fmt.Errorf("interpolation.epsilon must be positive, got %g", c.Interpolation.Epsilon)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1, got %d", c.Batch.Workers)
	}
	if len(c.Batch.Variables) == 0 {
		return fmt.Errorf("batch.variables must not be empty")
	}
	if c.Data.CacheDir == "" {
		return fmt.Errorf("data.cacheDir must be set")
	}
	if _, err := c.Batch.QueryPoints(); err != nil {
		return err
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive, got %s", c.Remote.Timeout)
	}
	return nil
}

// GetServerAddr returns the server address in the format ":port"
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// Interpolator returns the configured interpolation kernel.
func (c *Config) Interpolator() interp.Interpolator {
	strategy, _ := interp.ParseStrategy(c.Interpolation.Strategy)
	horizontal, _ := interp.ParseHorizontalMethod(c.Interpolation.Horizontal)
	return interp.Interpolator{
		Strategy:   strategy,
		Horizontal: horizontal,
		Epsilon:    c.Interpolation.Epsilon,
	}
}

// CycleResolver returns the cycle resolver for the configured mode.
func (c *Config) CycleResolver() domain.CycleResolver {
	return domain.CycleResolver{Validation: c.Validation.Enabled, MaxLeadHours: c.Validation.MaxLeadHours}
}
