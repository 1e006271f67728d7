package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config for the whole application
type Config struct {
	App     AppConfig
	Mesh    MeshConfig
	Solver  SolverConfig
	Greeks  GreeksConfig
	Job     JobConfig
	Metrics MetricsConfig
}

// General application configuration
type AppConfig struct {
	Name        string
	Environment string
	LogLevel    string `mapstructure:"log_level"`
}

// Mesh sizing and bunching for the time and space axes
type MeshConfig struct {
	TimeNodes       int     `mapstructure:"time_nodes"`
	SpaceNodes      int     `mapstructure:"space_nodes"`
	TimeBunching    float64 `mapstructure:"time_bunching"`
	SpaceBunching   float64 `mapstructure:"space_bunching"`
	MaxMoneyness    float64 `mapstructure:"max_moneyness"`
	MaxSpotMultiple float64 `mapstructure:"max_spot_multiple"`
}

// Time-marching parameters
type SolverConfig struct {
	Theta float64
}

// Bump sizes and parallelism for Greek extraction
type GreeksConfig struct {
	ForwardShift    float64 `mapstructure:"forward_shift"`
	VolShift        float64 `mapstructure:"vol_shift"`
	BucketVegaShift float64 `mapstructure:"bucket_vega_shift"`
	Workers         int
}

// The option and flat market the engine entry point prices
type JobConfig struct {
	Forward float64
	Rate    float64
	FlatVol float64 `mapstructure:"flat_vol"`
	Expiry  float64
	Strike  float64
	IsCall  bool `mapstructure:"is_call"`
}

// Configuration for metrics
type MetricsConfig struct {
	Prometheus PrometheusConfig
}

// Configuration for Prometheus metrics
type PrometheusConfig struct {
	Enabled bool
	Port    int
}

// Load reads the configuration from ./config/config.yaml and PDE_ prefixed
// environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	if path := os.Getenv("PDE_CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

// IsNotFound reports whether Load failed only because no config file was
// found on the search path
func IsNotFound(err error) bool {
	return errors.As(err, &viper.ConfigFileNotFoundError{})
}

// Default returns the configuration made of defaults and environment
// overrides only
func Default() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("PDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the configuration before any numerical work is attempted
func (c *Config) Validate() error {
	switch {
	case c.Mesh.TimeNodes < 2:
		return fmt.Errorf("mesh.time_nodes must be at least 2, got %d", c.Mesh.TimeNodes)
	case c.Mesh.SpaceNodes < 3:
		return fmt.Errorf("mesh.space_nodes must be at least 3, got %d", c.Mesh.SpaceNodes)
	case c.Mesh.SpaceBunching <= 0:
		return fmt.Errorf("mesh.space_bunching must be positive, got %g", c.Mesh.SpaceBunching)
	case c.Mesh.MaxMoneyness <= 1:
		return fmt.Errorf("mesh.max_moneyness must exceed 1, got %g", c.Mesh.MaxMoneyness)
	case c.Mesh.MaxSpotMultiple <= 1:
		return fmt.Errorf("mesh.max_spot_multiple must exceed 1, got %g", c.Mesh.MaxSpotMultiple)
	case c.Solver.Theta == 0:
		return fmt.Errorf("solver.theta must be positive; the explicit scheme is pde.ExplicitSolver")
	case c.Solver.Theta < 0 || c.Solver.Theta > 1:
		return fmt.Errorf("solver.theta must lie in (0,1], got %g", c.Solver.Theta)
	case c.Greeks.ForwardShift < 0 || c.Greeks.VolShift <= 0 || c.Greeks.BucketVegaShift <= 0:
		return fmt.Errorf("greeks shifts must be positive")
	case c.Greeks.Workers <= 0:
		return fmt.Errorf("greeks.workers must be positive, got %d", c.Greeks.Workers)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "localvol-pde")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Mesh defaults
	v.SetDefault("mesh.time_nodes", 100)
	v.SetDefault("mesh.space_nodes", 100)
	v.SetDefault("mesh.time_bunching", 5.0)
	v.SetDefault("mesh.space_bunching", 0.05)
	v.SetDefault("mesh.max_moneyness", 3.5)
	v.SetDefault("mesh.max_spot_multiple", 4.0)

	// Solver defaults
	v.SetDefault("solver.theta", 0.55)

	// Greeks defaults
	v.SetDefault("greeks.forward_shift", 5e-3)
	v.SetDefault("greeks.vol_shift", 1e-3)
	v.SetDefault("greeks.bucket_vega_shift", 1e-4)
	v.SetDefault("greeks.workers", 4)

	// Job defaults
	v.SetDefault("job.forward", 100.0)
	v.SetDefault("job.rate", 0.0)
	v.SetDefault("job.flat_vol", 0.2)
	v.SetDefault("job.expiry", 1.0)
	v.SetDefault("job.strike", 100.0)
	v.SetDefault("job.is_call", true)

	// Metrics defaults
	v.SetDefault("metrics.prometheus.enabled", false)
	v.SetDefault("metrics.prometheus.port", 9090)
}
