// Package config loads service settings from an optional YAML file,
// PLANTDX_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Brownie44l1/plant-disease-api/internal/classifier"
	"github.com/Brownie44l1/plant-disease-api/internal/model"
	"github.com/Brownie44l1/plant-disease-api/internal/treatment"
)

const envPrefix = "PLANTDX"

// Config holds all service configuration.
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Model    ModelConfig      `mapstructure:"model"`
	Severity treatment.Policy `mapstructure:"severity"`
	Catalog  CatalogConfig    `mapstructure:"catalog"`
	Log      LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP listener and upload settings.
type ServerConfig struct {
	Port              string        `mapstructure:"port"`
	CORSAllowOrigins  []string      `mapstructure:"cors_allow_origins"`
	MaxUploadBytes    int64         `mapstructure:"max_upload_bytes"`
	AllowedExtensions []string      `mapstructure:"allowed_extensions"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxConcurrent     int           `mapstructure:"max_concurrent_predictions"`
	RateLimit         RateLimit     `mapstructure:"rate_limit"`
}

// RateLimit is the per-client limit on prediction endpoints. Zero disables it.
type RateLimit struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ModelConfig selects the classifier backend.
type ModelConfig struct {
	Backend        string `mapstructure:"backend"`
	Path           string `mapstructure:"path"`
	MetadataPath   string `mapstructure:"metadata_path"`
	RuntimeLibrary string `mapstructure:"runtime_library"`
	Threads        int    `mapstructure:"threads"`
	MaxImagePixels int64  `mapstructure:"max_image_pixels"`
}

// CatalogConfig points at a catalog override; empty uses the built-in one.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "auto", "text", "json"
}

// ModelOptions converts the model section to loader options.
func (c Config) ModelOptions() model.Options {
	return model.Options{
		Backend:        c.Model.Backend,
		ModelPath:      c.Model.Path,
		MetadataPath:   c.Model.MetadataPath,
		RuntimeLibrary: c.Model.RuntimeLibrary,
		Threads:        c.Model.Threads,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cors_allow_origins", []string{"http://localhost:3000", "http://localhost:3001"})
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.allowed_extensions", []string{"png", "jpg", "jpeg", "gif"})
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_concurrent_predictions", 4)
	v.SetDefault("server.rate_limit.requests_per_second", 5.0)
	v.SetDefault("server.rate_limit.burst", 10)

	v.SetDefault("model.backend", model.BackendONNX)
	v.SetDefault("model.path", "models/plant_disease.onnx")
	v.SetDefault("model.metadata_path", "models/model_metadata.json")
	v.SetDefault("model.runtime_library", "")
	v.SetDefault("model.threads", 0)
	v.SetDefault("model.max_image_pixels", classifier.DefaultMaxPixels)

	def := treatment.DefaultPolicy()
	v.SetDefault("severity.moderate_at", def.ModerateAt)
	v.SetDefault("severity.severe_at", def.SevereAt)

	v.SetDefault("catalog.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
}

// Load reads configuration. path may be empty, in which case config.yaml
// is looked up in the working directory and ./config; a missing file is
// not an error. Environment variables override file values, e.g.
// PLANTDX_MODEL_BACKEND=tflite. PORT is honoured when PLANTDX_SERVER_PORT
// is unset.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if os.Getenv(envPrefix+"_SERVER_PORT") == "" {
		if port := os.Getenv("PORT"); port != "" {
			v.Set("server.port", port)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at runtime.
func (c Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(strings.TrimPrefix(c.Server.Port, ":")); err != nil || port < 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %q is not a valid port", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be positive"))
	}
	if c.Server.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("server.max_concurrent_predictions must not be negative"))
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit values must not be negative"))
	}
	if len(c.Server.AllowedExtensions) == 0 {
		errs = append(errs, fmt.Errorf("server.allowed_extensions must not be empty"))
	}

	switch strings.ToLower(c.Model.Backend) {
	case model.BackendONNX, model.BackendTFLite:
		if c.Model.Path == "" {
			errs = append(errs, fmt.Errorf("model.path is required for backend %q", c.Model.Backend))
		}
	case model.BackendNone:
	default:
		errs = append(errs, fmt.Errorf("model.backend %q must be one of onnx, tflite, none", c.Model.Backend))
	}

	if c.Model.MaxImagePixels <= 0 {
		errs = append(errs, fmt.Errorf("model.max_image_pixels must be positive"))
	}

	if err := c.Severity.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("severity: %w", err))
	}

	switch strings.ToLower(c.Log.Format) {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be one of auto, text, json", c.Log.Format))
	}

	return errors.Join(errs...)
}
