package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/classifier"
	"github.com/MeKo-Tech/leafcheck/internal/connectivity"
	"github.com/MeKo-Tech/leafcheck/internal/models"
	"github.com/MeKo-Tech/leafcheck/internal/onnx"
	"github.com/MeKo-Tech/leafcheck/internal/preprocess"
	"github.com/MeKo-Tech/leafcheck/internal/remote"
)

// Config represents the complete configuration for leafcheck. It covers
// every command (analyze, serve, probe) and is loaded from configuration
// files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Classifier   ClassifierConfig   `mapstructure:"classifier" yaml:"classifier" json:"classifier"`
	Preprocess   PreprocessConfig   `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Interpreter  InterpreterConfig  `mapstructure:"interpreter" yaml:"interpreter" json:"interpreter"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity" yaml:"connectivity" json:"connectivity"`
	Remote       RemoteConfig       `mapstructure:"remote" yaml:"remote" json:"remote"`
	Output       OutputConfig       `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	GPU GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// ClassifierConfig selects the on-device models.
type ClassifierConfig struct {
	PrimaryModel  string `mapstructure:"primary_model" yaml:"primary_model" json:"primary_model"`
	FallbackModel string `mapstructure:"fallback_model" yaml:"fallback_model" json:"fallback_model"`
	LabelsPath    string `mapstructure:"labels_path" yaml:"labels_path" json:"labels_path"`
	TopK          int    `mapstructure:"top_k" yaml:"top_k" json:"top_k"`
	NumThreads    int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	Warmup        bool   `mapstructure:"warmup" yaml:"warmup" json:"warmup"`
}

// PreprocessConfig controls image shrinking before local inference.
type PreprocessConfig struct {
	ThresholdBytes int `mapstructure:"threshold_bytes" yaml:"threshold_bytes" json:"threshold_bytes"`
	TargetEdge     int `mapstructure:"target_edge" yaml:"target_edge" json:"target_edge"`
	Quality        int `mapstructure:"quality" yaml:"quality" json:"quality"`
}

// InterpreterConfig overrides the embedded keyword tables.
type InterpreterConfig struct {
	KeywordsFile string `mapstructure:"keywords_file" yaml:"keywords_file" json:"keywords_file"`
}

// ConnectivityConfig configures the connectivity probe.
type ConnectivityConfig struct {
	Endpoints      []string      `mapstructure:"endpoints" yaml:"endpoints" json:"endpoints"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout" json:"attempt_timeout"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
}

// RemoteConfig configures the prediction service client.
type RemoteConfig struct {
	PredictURL string        `mapstructure:"predict_url" yaml:"predict_url" json:"predict_url"`
	FieldName  string        `mapstructure:"field_name" yaml:"field_name" json:"field_name"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	Retries    int           `mapstructure:"retries" yaml:"retries" json:"retries"`
	Backoff    time.Duration `mapstructure:"backoff" yaml:"backoff" json:"backoff"`
	MaxBackoff time.Duration `mapstructure:"max_backoff" yaml:"max_backoff" json:"max_backoff"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig holds per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int  `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int  `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	pre := preprocess.DefaultConfig()
	probe := connectivity.DefaultConfig()
	rem := remote.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Classifier: ClassifierConfig{
			PrimaryModel:  models.ViTBase,
			FallbackModel: models.MobileNetV3Small,
			LabelsPath:    models.ImageNetLabels,
			TopK:          classifier.DefaultTopK,
		},
		Preprocess: PreprocessConfig{
			ThresholdBytes: pre.ThresholdBytes,
			TargetEdge:     pre.TargetEdge,
			Quality:        pre.Quality,
		},
		Connectivity: ConnectivityConfig{
			Endpoints:      probe.Endpoints,
			MaxRetries:     probe.MaxRetries,
			AttemptTimeout: probe.AttemptTimeout,
			RetryDelay:     probe.RetryDelay,
		},
		Remote: RemoteConfig{
			PredictURL: rem.URL,
			FieldName:  rem.FieldName,
			Timeout:    rem.Timeout,
			Retries:    rem.Retries,
			Backoff:    rem.Backoff,
			MaxBackoff: rem.MaxBackoff,
		},
		Output: OutputConfig{Format: "text"},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     20,
			TimeoutSec:      60,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 30,
				RequestsPerHour:   600,
			},
		},
		GPU: GPUConfig{MemoryLimit: "auto"},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json"}
	if c.Output.Format != "" && !contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if c.Classifier.PrimaryModel == "" {
		return fmt.Errorf("classifier.primary_model must be set")
	}
	if c.Classifier.TopK < 1 {
		return fmt.Errorf("invalid classifier.top_k: %d (must be positive)", c.Classifier.TopK)
	}
	if c.Classifier.NumThreads < 0 {
		return fmt.Errorf("invalid classifier.num_threads: %d (must not be negative)", c.Classifier.NumThreads)
	}

	if c.Preprocess.ThresholdBytes < 0 {
		return fmt.Errorf("invalid preprocess.threshold_bytes: %d", c.Preprocess.ThresholdBytes)
	}
	if c.Preprocess.TargetEdge <= 0 {
		return fmt.Errorf("invalid preprocess.target_edge: %d (must be positive)", c.Preprocess.TargetEdge)
	}
	if c.Preprocess.Quality < 1 || c.Preprocess.Quality > 100 {
		return fmt.Errorf("invalid preprocess.quality: %d (must be between 1 and 100)", c.Preprocess.Quality)
	}

	if err := c.ToConnectivityConfig().Validate(); err != nil {
		return fmt.Errorf("invalid connectivity config: %w", err)
	}
	if err := c.ToRemoteConfig().Validate(); err != nil {
		return fmt.Errorf("invalid remote config: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	if c.GPU.MemoryLimit != "auto" && c.GPU.MemoryLimit != "" {
		if _, err := ParseMemoryLimit(c.GPU.MemoryLimit); err != nil {
			return fmt.Errorf("invalid GPU memory limit: %w", err)
		}
	}
	if c.GPU.Device < 0 {
		return fmt.Errorf("invalid GPU device: %d", c.GPU.Device)
	}

	return nil
}

// ToGPUConfig converts to onnx.GPUConfig.
func (c *Config) ToGPUConfig() onnx.GPUConfig {
	cfg := onnx.DefaultGPUConfig()
	cfg.UseGPU = c.GPU.Enabled
	cfg.DeviceID = c.GPU.Device
	if limit, err := ParseMemoryLimit(c.GPU.MemoryLimit); err == nil {
		cfg.GPUMemLimit = limit
	}
	return cfg
}

// ToClassifierConfig resolves model and label files under ModelsDir.
func (c *Config) ToClassifierConfig() classifier.Config {
	modelsDir := models.GetModelsDir(c.ModelsDir)
	gpu := c.ToGPUConfig()
	labels := models.LabelsPath(modelsDir, c.Classifier.LabelsPath)

	spec := func(file string) classifier.ModelSpec {
		if file == "" {
			return classifier.ModelSpec{}
		}
		return classifier.ModelSpec{
			Name:       strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)),
			ModelPath:  models.ClassifierPath(modelsDir, file),
			LabelsPath: labels,
			NumThreads: c.Classifier.NumThreads,
			GPU:        gpu,
		}
	}
	return classifier.Config{
		Primary:  spec(c.Classifier.PrimaryModel),
		Fallback: spec(c.Classifier.FallbackModel),
		TopK:     c.Classifier.TopK,
		Warmup:   c.Classifier.Warmup,
	}
}

// ToPreprocessConfig converts to preprocess.Config.
func (c *Config) ToPreprocessConfig() preprocess.Config {
	return preprocess.Config{
		ThresholdBytes: c.Preprocess.ThresholdBytes,
		TargetEdge:     c.Preprocess.TargetEdge,
		Quality:        c.Preprocess.Quality,
	}
}

// ToConnectivityConfig converts to connectivity.Config.
func (c *Config) ToConnectivityConfig() connectivity.Config {
	return connectivity.Config{
		Endpoints:      c.Connectivity.Endpoints,
		MaxRetries:     c.Connectivity.MaxRetries,
		AttemptTimeout: c.Connectivity.AttemptTimeout,
		RetryDelay:     c.Connectivity.RetryDelay,
	}
}

// ToRemoteConfig converts to remote.Config.
func (c *Config) ToRemoteConfig() remote.Config {
	return remote.Config{
		URL:        c.Remote.PredictURL,
		FieldName:  c.Remote.FieldName,
		Timeout:    c.Remote.Timeout,
		Retries:    c.Remote.Retries,
		Backoff:    c.Remote.Backoff,
		MaxBackoff: c.Remote.MaxBackoff,
	}
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// ParseMemoryLimit parses a GPU memory limit such as "512MB" or "2GB" into
// bytes. "auto" and "" mean unlimited (0).
func ParseMemoryLimit(limit string) (uint64, error) {
	if limit == "" || limit == "auto" {
		return 0, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(limit))
	units := []struct {
		suffix string
		mult   float64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if !strings.HasSuffix(upper, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(upper, u.suffix)), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * u.mult), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB")
}
