package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	LLM       LLMConfig
	Templates TemplatesConfig
	Pipeline  PipelineConfig
	Log       LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr        string
	HTTPAddr        string
	ShutdownTimeout time.Duration
}

// LLMConfig holds document-analysis provider configuration
type LLMConfig struct {
	Provider      string // gemini | openai | offline
	Model         string
	APIKey        string
	BaseURL       string
	Temperature   float32
	Timeout       time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	RatePerSecond float64
	Burst         int
	MaxImageBytes int64
}

// TemplatesConfig points at an external catalog; empty means the built-in one.
type TemplatesConfig struct {
	Path string
}

// PipelineConfig tunes parsing and batch extraction
type PipelineConfig struct {
	DescriptorPatterns bool
	Workers            int
	QueueSize          int
	JobTimeout         time.Duration
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string
	Format string // text | json
}

const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderOffline = "offline"
)

// SetDefaults registers every key with its default on v. Keys are the
// environment variable names, lowercased.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db_url", "")
	v.SetDefault("db_max_conns", 20)
	v.SetDefault("db_min_conns", 5)
	v.SetDefault("db_max_conn_lifetime", 30*time.Minute)
	v.SetDefault("db_max_conn_idle_time", 5*time.Minute)
	v.SetDefault("db_dial_timeout", 3*time.Second)
	v.SetDefault("db_statement_timeout", time.Duration(0))

	v.SetDefault("grpc_addr", ":8080")
	v.SetDefault("http_addr", ":8081")
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetDefault("llm_provider", ProviderGemini)
	v.SetDefault("llm_model", "")
	v.SetDefault("llm_api_key", "")
	v.SetDefault("llm_base_url", "")
	v.SetDefault("llm_temperature", 0.0)
	v.SetDefault("llm_timeout", 60*time.Second)
	v.SetDefault("llm_max_retries", 2)
	v.SetDefault("llm_retry_backoff", 500*time.Millisecond)
	v.SetDefault("llm_rate_per_sec", 2.0)
	v.SetDefault("llm_burst", 4)
	v.SetDefault("max_image_mb", 10)

	v.SetDefault("templates_path", "")

	v.SetDefault("parser_descriptor_patterns", false)
	v.SetDefault("batch_workers", 2)
	v.SetDefault("batch_queue_size", 64)
	v.SetDefault("batch_job_timeout", 2*time.Minute)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// NewViper returns a viper instance reading defaults, the optional
// CONFIG_FILE and the environment.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError(CodeConfig, "read "+file, err)
		}
	}
	return v, nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v, err := NewViper()
	if err != nil {
		return nil, err
	}
	return FromViper(v), nil
}

// FromViper materializes a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			DSN:              v.GetString("db_url"),
			MaxConns:         v.GetInt32("db_max_conns"),
			MinConns:         v.GetInt32("db_min_conns"),
			MaxConnLifetime:  v.GetDuration("db_max_conn_lifetime"),
			MaxConnIdleTime:  v.GetDuration("db_max_conn_idle_time"),
			DialTimeout:      v.GetDuration("db_dial_timeout"),
			StatementTimeout: v.GetDuration("db_statement_timeout"),
		},
		Server: ServerConfig{
			GRPCAddr:        v.GetString("grpc_addr"),
			HTTPAddr:        v.GetString("http_addr"),
			ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(strings.TrimSpace(v.GetString("llm_provider"))),
			Model:         v.GetString("llm_model"),
			APIKey:        v.GetString("llm_api_key"),
			BaseURL:       v.GetString("llm_base_url"),
			Temperature:   float32(v.GetFloat64("llm_temperature")),
			Timeout:       v.GetDuration("llm_timeout"),
			MaxRetries:    v.GetInt("llm_max_retries"),
			RetryBackoff:  v.GetDuration("llm_retry_backoff"),
			RatePerSecond: v.GetFloat64("llm_rate_per_sec"),
			Burst:         v.GetInt("llm_burst"),
			MaxImageBytes: v.GetInt64("max_image_mb") << 20,
		},
		Templates: TemplatesConfig{
			Path: v.GetString("templates_path"),
		},
		Pipeline: PipelineConfig{
			DescriptorPatterns: v.GetBool("parser_descriptor_patterns"),
			Workers:            v.GetInt("batch_workers"),
			QueueSize:          v.GetInt("batch_queue_size"),
			JobTimeout:         v.GetDuration("batch_job_timeout"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log_level")),
			Format: strings.ToLower(v.GetString("log_format")),
		},
	}

	// Provider-specific key variables are accepted when LLM_API_KEY is unset.
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case ProviderGemini:
			cfg.LLM.APIKey = firstNonEmpty(v.GetString("google_api_key"), v.GetString("gemini_api_key"))
		case ProviderOpenAI:
			cfg.LLM.APIKey = v.GetString("openai_api_key")
		}
	}
	return cfg
}

// ValidateConfig validates the loaded configuration. requireDB is false for
// commands that never touch the record store.
func (c *Config) Validate(requireDB bool) error {
	if requireDB && c.Database.DSN == "" {
		return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
		if c.LLM.APIKey == "" {
			return NewAppError(CodeConfig, fmt.Sprintf("an API key is required for provider %q", c.LLM.Provider), ErrInvalidInput)
		}
	case ProviderOffline:
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown LLM_PROVIDER %q", c.LLM.Provider), ErrInvalidInput)
	}
	if c.LLM.MaxRetries < 0 {
		return NewAppError(CodeConfig, "LLM_MAX_RETRIES must not be negative", ErrInvalidInput)
	}
	if c.LLM.MaxImageBytes <= 0 {
		return NewAppError(CodeConfig, "MAX_IMAGE_MB must be positive", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" && c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "GRPC_ADDR or HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s != "" {
			return s
		}
	}
	return ""
}
