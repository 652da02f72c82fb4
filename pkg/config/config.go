// Package config loads service settings from an optional YAML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/pkg/store"
)

const DefaultFile = "featsel.yaml"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Paths   PathsConfig   `yaml:"paths"`
	Run     RunConfig     `yaml:"run"`
	Store   store.Config  `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Tracing TracingConfig `yaml:"tracing"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	CORSOrigin   string        `yaml:"cors_origin"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
	Output string `yaml:"output"` // stdout, stderr or a file path
}

type PathsConfig struct {
	UploadDir string `yaml:"upload_dir"`
	OutputDir string `yaml:"output_dir"`
}

// RunConfig holds the run ceiling and the defaults applied to API requests
// that leave a field out.
type RunConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	Workers   int           `yaml:"workers"`
	ModelType string        `yaml:"model_type"`
	GAVersion string        `yaml:"ga_version"`
	Mode      string        `yaml:"mode"`
	Seed      uint64        `yaml:"seed"`
	GA        core.Params   `yaml:"ga"`
}

type CacheConfig struct {
	Size int           `yaml:"size"` // 0 disables the result cache
	TTL  time.Duration `yaml:"ttl"`
}

type FetchConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	RPS        float64       `yaml:"rps"`
	Burst      int           `yaml:"burst"`
	AllowHosts []string      `yaml:"allow_hosts"`
}

type TracingConfig struct {
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
	ServiceName    string `yaml:"service_name"`
}

// Default returns the built-in settings.
func Default() *Config {
	ga := core.DefaultParams()
	ga.PopSize = 40
	ga.Generations = 12
	ga.CV = 3
	return &Config{
		Server: ServerConfig{
			Port:         "8000",
			CORSOrigin:   "*",
			ReadTimeout:  time.Minute,
			WriteTimeout: 15 * time.Minute,
		},
		Log:   LogConfig{Level: "info", Format: "json", Output: "stdout"},
		Paths: PathsConfig{UploadDir: "uploads", OutputDir: "outputs"},
		Run: RunConfig{
			Timeout:   10 * time.Minute,
			ModelType: "linear",
			GAVersion: "optimized",
			Mode:      "all",
			Seed:      42,
			GA:        ga,
		},
		Store:   store.Config{Driver: "memory"},
		Cache:   CacheConfig{Size: 32, TTL: time.Hour},
		Fetch:   FetchConfig{Timeout: 30 * time.Second, RPS: 2, Burst: 4},
		Tracing: TracingConfig{ServiceName: "featsel"},
	}
}

// Load applies, in order: defaults, the YAML file, environment overrides.
// path may be empty; CONFIG overrides it and a missing default file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if p := os.Getenv("CONFIG"); p != "" {
		path, explicit = p, true
	}
	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if cfg, err = decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromBytes parses YAML over the defaults without consulting the
// environment.
func FromBytes(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// decode parses YAML over the defaults.
func decode(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("FEATSEL_PORT", c.Server.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Paths.UploadDir = getEnv("UPLOAD_DIR", c.Paths.UploadDir)
	c.Paths.OutputDir = getEnv("OUTPUT_DIR", c.Paths.OutputDir)
	c.Run.Timeout = getEnvDuration("RUN_TIMEOUT", c.Run.Timeout)
	c.Run.Workers = getEnvInt("WORKERS", c.Run.Workers)
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnv("STORE_DSN", c.Store.DSN)
	c.Tracing.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", c.Tracing.JaegerEndpoint)
	c.Cache.Size = getEnvInt("CACHE_SIZE", c.Cache.Size)
	c.Fetch.RPS = getEnvFloat("FETCH_RPS", c.Fetch.RPS)
	if v := os.Getenv("FETCH_ALLOW_HOSTS"); v != "" {
		c.Fetch.AllowHosts = parseCommaSeparated(v)
	}
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	if c.Run.Timeout <= 0 {
		return fmt.Errorf("run timeout must be positive, got %s", c.Run.Timeout)
	}
	if c.Paths.UploadDir == "" || c.Paths.OutputDir == "" {
		return errors.New("upload and output directories are required")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache size must not be negative, got %d", c.Cache.Size)
	}
	if err := core.ValidateParams(c.Run.GA); err != nil {
		return fmt.Errorf("run.ga: %w", err)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
