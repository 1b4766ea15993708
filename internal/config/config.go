// File: internal/config/config.go
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
)

// Config is the root configuration for the whole application.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Solver      SolverConfig      `mapstructure:"solver"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
}

// ColorConfig maps log levels to console colors.
type ColorConfig struct {
	Debug string `mapstructure:"debug"`
	Info  string `mapstructure:"info"`
	Warn  string `mapstructure:"warn"`
	Error string `mapstructure:"error"`
	Fatal string `mapstructure:"fatal"`
}

// LoggerConfig holds all logger settings.
type LoggerConfig struct {
	Level       string      `mapstructure:"level"`
	Format      string      `mapstructure:"format"`
	AddSource   bool        `mapstructure:"add_source"`
	ServiceName string      `mapstructure:"service_name"`
	LogFile     string      `mapstructure:"log_file"`
	MaxSize     int         `mapstructure:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups"`
	MaxAge      int         `mapstructure:"max_age"`
	Compress    bool        `mapstructure:"compress"`
	Colors      ColorConfig `mapstructure:"colors"`
}

// BrowserConfig holds settings for the headless browser driver.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors"`
	Args            []string       `mapstructure:"args"`
	UserAgent       string         `mapstructure:"user_agent"`
	Viewport        map[string]int `mapstructure:"viewport"`
}

// SolverConfig carries the default resolution budgets. CLI flags and
// per-call options override these.
type SolverConfig struct {
	MaxAttempts         int           `mapstructure:"max_attempts"`
	MaxRounds           int           `mapstructure:"max_rounds"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	PreferLocal         bool          `mapstructure:"prefer_local"`
	PreferredModality   string        `mapstructure:"preferred_modality"`
	ScratchDir          string        `mapstructure:"scratch_dir"`
}

// RecognitionConfig wires the backends behind the recognition gateway.
// Empty paths/keys leave the corresponding backend unconfigured; the gateway
// treats that as Unavailable and falls through to the next one.
type RecognitionConfig struct {
	LocalModel  LocalModelConfig  `mapstructure:"local_model"`
	CloudVision CloudVisionConfig `mapstructure:"cloud_vision"`
	Speech      SpeechConfig      `mapstructure:"speech"`
	OCR         OCRConfig         `mapstructure:"ocr"`
}

// LocalModelConfig configures the on-disk ONNX object detector.
type LocalModelConfig struct {
	ModelPath   string  `mapstructure:"model_path"`
	LibraryPath string  `mapstructure:"library_path"`
	InputSize   int     `mapstructure:"input_size"`
	ScoreFloor  float64 `mapstructure:"score_floor"`
	LabelsPath  string  `mapstructure:"labels_path"`
}

// CloudVisionConfig configures the hosted yes/no vision classifier.
type CloudVisionConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SpeechConfig configures the local speech-to-text CLI.
type SpeechConfig struct {
	Binary   string        `mapstructure:"binary"`
	Model    string        `mapstructure:"model"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// OCRConfig configures the local OCR CLI.
type OCRConfig struct {
	Binary     string        `mapstructure:"binary"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Preprocess bool          `mapstructure:"preprocess"`
}

// Validate fills defaults and rejects nonsensical values.
func (c *Config) Validate() error {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
	if c.Logger.ServiceName == "" {
		c.Logger.ServiceName = "gatecrash"
	}
	if c.Solver.MaxAttempts < 0 || c.Solver.MaxRounds < 0 {
		return fmt.Errorf("solver budgets must be non-negative")
	}
	if c.Solver.ConfidenceThreshold < 0 || c.Solver.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0,1], got %v", c.Solver.ConfidenceThreshold)
	}
	switch c.Solver.PreferredModality {
	case "", "image", "audio":
	default:
		return fmt.Errorf("preferred_modality must be 'image' or 'audio', got %q", c.Solver.PreferredModality)
	}
	if c.Recognition.CloudVision.Timeout <= 0 {
		c.Recognition.CloudVision.Timeout = 30 * time.Second
	}
	if c.Recognition.Speech.Timeout <= 0 {
		c.Recognition.Speech.Timeout = 60 * time.Second
	}
	if c.Recognition.OCR.Timeout <= 0 {
		c.Recognition.OCR.Timeout = 20 * time.Second
	}
	if c.Recognition.LocalModel.InputSize <= 0 {
		c.Recognition.LocalModel.InputSize = 320
	}
	if c.Recognition.LocalModel.ScoreFloor <= 0 {
		c.Recognition.LocalModel.ScoreFloor = 0.25
	}
	return nil
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	var loadErr error
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			loadErr = err
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("configuration not initialized; call config.Load() in the root command")
	}
	return instance
}
