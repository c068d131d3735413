package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pegut0/ClassificadorSomIA/internal/classifier"
	"github.com/pegut0/ClassificadorSomIA/internal/gate"
	"github.com/pegut0/ClassificadorSomIA/internal/labels"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Config represents the complete service configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Audio    AudioConfig    `yaml:"audio"`
	Features FeaturesConfig `yaml:"features"`
	Gates    GatesConfig    `yaml:"gates"`
	Model    ModelConfig    `yaml:"model"`
	Labels   LabelsConfig   `yaml:"labels"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port         int    `yaml:"port" validate:"min=1,max=65535"`
	Address      string `yaml:"address" validate:"required"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" validate:"min=1"`
	ReadTimeout  int    `yaml:"read_timeout" validate:"min=1"`  // seconds
	WriteTimeout int    `yaml:"write_timeout" validate:"min=1"` // seconds
}

// AudioConfig contains the normalized waveform shape
type AudioConfig struct {
	SampleRate int     `yaml:"sample_rate" validate:"min=8000,max=192000"`
	Duration   float64 `yaml:"duration" validate:"gt=0,lte=60"` // seconds
}

// FeaturesConfig contains mel spectrogram parameters
type FeaturesConfig struct {
	FFTSize   int     `yaml:"fft_size" validate:"min=16"`
	HopLength int     `yaml:"hop_length" validate:"min=1"`
	NumMels   int     `yaml:"num_mels" validate:"min=1,max=512"`
	LowFreq   float64 `yaml:"low_freq" validate:"gte=0"`
	HighFreq  float64 `yaml:"high_freq" validate:"gte=0"` // 0 means Nyquist
	TopDB     float64 `yaml:"top_db" validate:"gte=0"`
}

// GatesConfig contains the rejection thresholds
type GatesConfig struct {
	Silence        float64 `yaml:"silence" validate:"gte=0"`
	Stationarity   float64 `yaml:"stationarity" validate:"gte=0"`
	Clarity        float64 `yaml:"clarity" validate:"gte=0,lte=1"`
	RMSFrameLength int     `yaml:"rms_frame_length" validate:"min=1"`
	RMSHopLength   int     `yaml:"rms_hop_length" validate:"min=1"`
}

// ModelConfig contains the model server connection and class list
type ModelConfig struct {
	Endpoint       string   `yaml:"endpoint" validate:"required,url"`
	Name           string   `yaml:"name" validate:"required"`
	SignatureName  string   `yaml:"signature_name"`
	Timeout        int      `yaml:"timeout" validate:"min=1"` // seconds
	MaxRetries     int      `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryBackoff   int      `yaml:"retry_backoff_ms" validate:"gte=0"`
	MaxConcurrent  int      `yaml:"max_concurrent" validate:"min=1"`
	FailFast       bool     `yaml:"fail_fast"`
	VerifyInterval int      `yaml:"verify_interval" validate:"gte=0"` // seconds, 0 disables
	Classes        []string `yaml:"classes" validate:"min=2,unique,dive,required"`
}

// LabelsConfig contains the display translation table
type LabelsConfig struct {
	Unrecognized string            `yaml:"unrecognized" validate:"required"`
	Translations map[string]string `yaml:"translations" validate:"dive,keys,required,endkeys,required"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
	Output string `yaml:"output" validate:"required"`
}

// Default returns the configuration the model was trained and tuned with
func Default() *Config {
	thresholds := gate.DefaultThresholds()

	return &Config{
		HTTP: HTTPConfig{
			Port:         5000,
			Address:      "0.0.0.0",
			MaxBodyBytes: 2 << 20,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Audio: AudioConfig{
			SampleRate: 22050,
			Duration:   5,
		},
		Features: FeaturesConfig{
			FFTSize:   2048,
			HopLength: 512,
			NumMels:   128,
			TopDB:     80,
		},
		Gates: GatesConfig{
			Silence:        thresholds.Silence,
			Stationarity:   thresholds.Stationarity,
			Clarity:        thresholds.Clarity,
			RMSFrameLength: 2048,
			RMSHopLength:   512,
		},
		Model: ModelConfig{
			Endpoint:      "http://localhost:8501",
			Name:          "sound_classifier",
			Timeout:       10,
			RetryBackoff:  500,
			MaxConcurrent: 4,
			FailFast:      true,
			Classes:       slices.Clone(classifier.DefaultLabels),
		},
		Labels: LabelsConfig{
			Unrecognized: labels.Unrecognized,
			Translations: maps.Clone(labels.DefaultTranslations),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file over the defaults and validates it.
// Translation entries in the file are merged into the default table.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.Features.Validate(); err != nil {
		return fmt.Errorf("features config: %w", err)
	}

	if nyquist := float64(c.Audio.SampleRate) / 2; c.Features.HighFreq > nyquist {
		return fmt.Errorf("features config: high_freq %.0f exceeds nyquist frequency %.0f", c.Features.HighFreq, nyquist)
	}

	if err := c.Gates.Validate(); err != nil {
		return fmt.Errorf("gates config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates feature extraction parameters
func (f *FeaturesConfig) Validate() error {
	if f.HopLength > f.FFTSize {
		return fmt.Errorf("hop_length (%d) cannot exceed fft_size (%d)", f.HopLength, f.FFTSize)
	}

	if f.HighFreq > 0 && f.LowFreq >= f.HighFreq {
		return fmt.Errorf("low_freq (%f) must be below high_freq (%f)", f.LowFreq, f.HighFreq)
	}

	return nil
}

// Validate validates gate parameters
func (g *GatesConfig) Validate() error {
	if g.RMSHopLength > g.RMSFrameLength {
		return fmt.Errorf("rms_hop_length (%d) cannot exceed rms_frame_length (%d)", g.RMSHopLength, g.RMSFrameLength)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	if strings.TrimSpace(l.Output) == "" {
		return fmt.Errorf("output must be stdout, stderr or a file path")
	}

	return nil
}

// formatValidationErrors joins validator errors into one readable error
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		msgs = append(msgs, field+" "+formatValidationMessage(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "unique":
		return "must not contain duplicates"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// GetReadTimeoutDuration returns the HTTP read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the HTTP write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// GetTimeoutDuration returns the model request timeout as a time.Duration
func (m *ModelConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(m.Timeout) * time.Second
}

// GetRetryBackoffDuration returns the first retry delay as a time.Duration
func (m *ModelConfig) GetRetryBackoffDuration() time.Duration {
	return time.Duration(m.RetryBackoff) * time.Millisecond
}

// GetVerifyIntervalDuration returns the model re-verification interval
func (m *ModelConfig) GetVerifyIntervalDuration() time.Duration {
	return time.Duration(m.VerifyInterval) * time.Second
}
