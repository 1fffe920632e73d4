package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Inference  InferenceConfig  `yaml:"inference" mapstructure:"inference"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the claim store backend.
type StoreConfig struct {
	Driver      string       `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string       `yaml:"database_url" mapstructure:"database_url"`
	Dynamo      DynamoConfig `yaml:"dynamo" mapstructure:"dynamo"`
}

// DynamoConfig configures the DynamoDB backend.
type DynamoConfig struct {
	Table       string `yaml:"table" mapstructure:"table"`
	Region      string `yaml:"region" mapstructure:"region"`
	EndpointURL string `yaml:"endpoint_url" mapstructure:"endpoint_url"`
	AccessKey   string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey   string `yaml:"secret_key" mapstructure:"secret_key"`
}

// ValidationConfig configures the pre-scoring image gates.
type ValidationConfig struct {
	MaxFileSizeMB  float64  `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`
	MinDimension   int      `yaml:"min_dimension" mapstructure:"min_dimension"`
	AllowedFormats []string `yaml:"allowed_formats" mapstructure:"allowed_formats"`
}

// QualityConfig configures image usability scoring. The weights are policy,
// not law — they live here so changing them never touches scoring code.
type QualityConfig struct {
	Threshold        float64 `yaml:"threshold" mapstructure:"threshold"`
	SharpnessWeight  float64 `yaml:"sharpness_weight" mapstructure:"sharpness_weight"`
	BrightnessWeight float64 `yaml:"brightness_weight" mapstructure:"brightness_weight"`
	ContrastWeight   float64 `yaml:"contrast_weight" mapstructure:"contrast_weight"`
	SharpnessCeiling float64 `yaml:"sharpness_ceiling" mapstructure:"sharpness_ceiling"`
	BrightnessLow    float64 `yaml:"brightness_low" mapstructure:"brightness_low"`
	BrightnessHigh   float64 `yaml:"brightness_high" mapstructure:"brightness_high"`
	ContrastCeiling  float64 `yaml:"contrast_ceiling" mapstructure:"contrast_ceiling"`
	ContrastLow      float64 `yaml:"contrast_low" mapstructure:"contrast_low"`
}

// InferenceConfig configures the damage classifier.
type InferenceConfig struct {
	ModelPath           string  `yaml:"model_path" mapstructure:"model_path"`
	ModelVersion        string  `yaml:"model_version" mapstructure:"model_version"`
	InputSize           int     `yaml:"input_size" mapstructure:"input_size"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// BatchConfig configures the batch submit command.
type BatchConfig struct {
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
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
	v.SetEnvPrefix("CLAIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "claims.db")
	v.SetDefault("store.dynamo.table", "claims")
	v.SetDefault("store.dynamo.region", "us-east-1")
	v.SetDefault("validation.max_file_size_mb", 10.0)
	v.SetDefault("validation.min_dimension", 320)
	v.SetDefault("validation.allowed_formats", []string{"jpeg", "png"})
	v.SetDefault("quality.threshold", 0.4)
	v.SetDefault("quality.sharpness_weight", 0.5)
	v.SetDefault("quality.brightness_weight", 0.3)
	v.SetDefault("quality.contrast_weight", 0.2)
	v.SetDefault("quality.sharpness_ceiling", 500.0)
	v.SetDefault("quality.brightness_low", 0.3)
	v.SetDefault("quality.brightness_high", 0.7)
	v.SetDefault("quality.contrast_ceiling", 128.0)
	v.SetDefault("quality.contrast_low", 0.3)
	v.SetDefault("inference.model_path", "models/car_damage_v1.json")
	v.SetDefault("inference.model_version", "v1.0")
	v.SetDefault("inference.input_size", 224)
	v.SetDefault("inference.confidence_threshold", 0.7)
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.rate_per_sec", 10.0)
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
