// Package config resolves the server settings.
//
// Values are layered in increasing priority: built-in defaults, an optional
// YAML file, environment variables, and finally command-line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = "8080"
	DefaultModelPath       = "models/melanoma_nevus.onnx"
	DefaultMetadataPath    = "models/model_metadata.yaml"
	DefaultMaxUploadBytes  = 10 << 20
	DefaultMaxImagePixels  = 40_000_000
	DefaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	// Port the HTTP server listens on.
	Port string `yaml:"port"`

	// ModelPath is the exported ONNX model.
	ModelPath string `yaml:"model_path"`

	// MetadataPath describes the model inputs; see model.Metadata.
	MetadataPath string `yaml:"metadata_path"`

	// ORTLibraryPath is the onnxruntime shared library. Empty uses the
	// platform default.
	ORTLibraryPath string `yaml:"ort_library_path"`

	// MaxUploadBytes caps the multipart body of a prediction request.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// MaxImagePixels caps width*height of an uploaded image, checked
	// before the image is decoded.
	MaxImagePixels int64 `yaml:"max_image_pixels"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func Default() *Config {
	return &Config{
		Port:            DefaultPort,
		ModelPath:       DefaultModelPath,
		MetadataPath:    DefaultMetadataPath,
		MaxUploadBytes:  DefaultMaxUploadBytes,
		MaxImagePixels:  DefaultMaxImagePixels,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the
// file keep their current value.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return nil
}

// LoadEnv overlays the environment onto c.
func (c *Config) LoadEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.MetadataPath = getEnv("METADATA_PATH", c.MetadataPath)
	c.ORTLibraryPath = getEnv("ORT_LIBRARY_PATH", c.ORTLibraryPath)

	if err := getEnvInt64("MAX_UPLOAD_BYTES", &c.MaxUploadBytes); err != nil {
		return err
	}
	return getEnvInt64("MAX_IMAGE_PIXELS", &c.MaxImagePixels)
}

// AddFlags registers the flags that override c. Their defaults are the
// values c holds at registration time.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Port, "port", c.Port, "port to listen on (env PORT)")
	fs.StringVar(&c.ModelPath, "model", c.ModelPath, "path to the ONNX model (env MODEL_PATH)")
	fs.StringVar(&c.MetadataPath, "metadata", c.MetadataPath, "path to the model metadata file (env METADATA_PATH)")
	fs.StringVar(&c.ORTLibraryPath, "ort-library", c.ORTLibraryPath, "path to the onnxruntime shared library (env ORT_LIBRARY_PATH)")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", c.MaxUploadBytes, "maximum size of a prediction request body (env MAX_UPLOAD_BYTES)")
	fs.Int64Var(&c.MaxImagePixels, "max-image-pixels", c.MaxImagePixels, "maximum width*height of an uploaded image (env MAX_IMAGE_PIXELS)")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "grace period for in-flight requests on shutdown")
}

// Load builds the effective configuration. fs must have been set up with
// AddFlags; only the flags the user actually set take precedence over the
// file and the environment.
func Load(fs *pflag.FlagSet, file string) (*Config, error) {
	cfg := Default()
	if file != "" {
		if err := cfg.LoadFile(file); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}

	overrides := pflag.NewFlagSet("overrides", pflag.ContinueOnError)
	cfg.AddFlags(overrides)

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil || overrides.Lookup(f.Name) == nil {
			return
		}
		err = overrides.Set(f.Name, f.Value.String())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := strconv.ParseUint(c.Port, 10, 16); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if c.MetadataPath == "" {
		return fmt.Errorf("metadata path is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("max image pixels must be positive, got %d", c.MaxImagePixels)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt64(key string, dst *int64) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	*dst = n
	return nil
}
