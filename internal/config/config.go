package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Vision    VisionConfig    `yaml:"vision" mapstructure:"vision"`
	Consensus ConsensusConfig `yaml:"consensus" mapstructure:"consensus"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// VisionConfig holds credentials and call settings for the inference endpoint.
type VisionConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	Model            string `yaml:"model" mapstructure:"model"`
	MaxTokens        int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ProbeTimeoutSecs int    `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
}

// Timeout returns the per-call inference timeout.
func (c VisionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ProbeTimeout returns the accessibility-probe timeout.
func (c VisionConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSecs) * time.Second
}

// ConsensusConfig configures multi-run consensus analysis.
type ConsensusConfig struct {
	Runs            int `yaml:"runs" mapstructure:"runs"`
	LaunchStaggerMs int `yaml:"launch_stagger_ms" mapstructure:"launch_stagger_ms"`
}

// LaunchStagger returns the delay between successive attempt launches.
func (c ConsensusConfig) LaunchStagger() time.Duration {
	return time.Duration(c.LaunchStaggerMs) * time.Millisecond
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	PacingMs            int `yaml:"pacing_ms" mapstructure:"pacing_ms"`
	MaxConcurrentInputs int `yaml:"max_concurrent_inputs" mapstructure:"max_concurrent_inputs"`
}

// Pacing returns the delay between dispatching successive inputs.
func (c BatchConfig) Pacing() time.Duration {
	return time.Duration(c.PacingMs) * time.Millisecond
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP analysis server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("SIGHTLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. The empty key default registers vision.key with viper so
	// AutomaticEnv resolves SIGHTLINE_VISION_KEY during Unmarshal.
	v.SetDefault("vision.key", "")
	v.SetDefault("vision.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("vision.model", "qwen/qwen-2.5-vl-72b-instruct")
	v.SetDefault("vision.max_tokens", 300)
	v.SetDefault("vision.timeout_secs", 90)
	v.SetDefault("vision.probe_timeout_secs", 10)
	v.SetDefault("consensus.runs", 3)
	v.SetDefault("consensus.launch_stagger_ms", 500)
	v.SetDefault("batch.pacing_ms", 1000)
	v.SetDefault("batch.max_concurrent_inputs", 3)
	v.SetDefault("store.path", "sightline.db")
	v.SetDefault("server.port", 8080)
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

// Validate checks the startup-fatal preconditions. A missing credential or
// endpoint aborts the whole invocation before any per-item work begins.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vision.Key) == "" {
		return eris.New("config: vision api key is not configured (set SIGHTLINE_VISION_KEY)")
	}
	if strings.TrimSpace(c.Vision.BaseURL) == "" {
		return eris.New("config: vision base url is not configured (set SIGHTLINE_VISION_BASE_URL)")
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
