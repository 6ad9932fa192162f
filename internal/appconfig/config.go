package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/codebench/httpapi"
	"pkt.systems/codebench/internal/inference"
	"pkt.systems/codebench/internal/piston"
	"pkt.systems/codebench/internal/tracex"
	"pkt.systems/codebench/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	Service       ServiceConfig   `mapstructure:"service" yaml:"service"`
	Execution     ExecutionConfig `mapstructure:"execution" yaml:"execution"`
	Inference     InferenceConfig `mapstructure:"inference" yaml:"inference"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
	Tracing       TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ServiceConfig controls session defaults and limits.
type ServiceConfig struct {
	DefaultLanguage         string   `mapstructure:"default_language" yaml:"default_language"`
	DefaultTheme            string   `mapstructure:"default_theme" yaml:"default_theme"`
	OperationTimeoutSeconds int      `mapstructure:"operation_timeout_seconds" yaml:"operation_timeout_seconds"`
	MaxImportBytes          int64    `mapstructure:"max_import_bytes" yaml:"max_import_bytes"`
	AllowedExtensions       []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
	DefaultGeneratePrompt   string   `mapstructure:"default_generate_prompt" yaml:"default_generate_prompt"`
	MaxNotices              int      `mapstructure:"max_notices" yaml:"max_notices"`
	MaxChatTurns            int      `mapstructure:"max_chat_turns" yaml:"max_chat_turns"`
}

// ExecutionConfig configures the remote execution service.
type ExecutionConfig struct {
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// InferenceConfig configures the remote inference service.
type InferenceConfig struct {
	CodeModelURL   string        `mapstructure:"code_model_url" yaml:"code_model_url"`
	ChatModelURL   string        `mapstructure:"chat_model_url" yaml:"chat_model_url"`
	Token          string        `mapstructure:"token" yaml:"token"`
	TokenEnv       string        `mapstructure:"token_env" yaml:"token_env"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Breaker        BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
}

// BreakerConfig configures the inference circuit breaker.
type BreakerConfig struct {
	Enabled         bool `mapstructure:"enabled" yaml:"enabled"`
	MaxFailures     int  `mapstructure:"max_failures" yaml:"max_failures"`
	TimeoutSeconds  int  `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	IntervalSeconds int  `mapstructure:"interval_seconds" yaml:"interval_seconds"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr          string  `mapstructure:"addr" yaml:"addr"`
	BasePath      string  `mapstructure:"base_path" yaml:"base_path"`
	RatePerMinute float64 `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
	StreamHistory int     `mapstructure:"stream_history" yaml:"stream_history"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Exporter string `mapstructure:"exporter" yaml:"exporter"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Service: ServiceConfig{
			DefaultLanguage:         string(schema.DefaultLanguage),
			DefaultTheme:            string(schema.DefaultTheme),
			OperationTimeoutSeconds: int(schema.DefaultOperationTimeout / time.Second),
			MaxImportBytes:          schema.DefaultMaxImportBytes,
			AllowedExtensions:       schema.DefaultAllowedExtensions(),
			DefaultGeneratePrompt:   schema.DefaultGeneratePrompt,
			MaxNotices:              schema.DefaultMaxNotices,
			MaxChatTurns:            schema.DefaultMaxChatTurns,
		},
		Execution: ExecutionConfig{
			Endpoint:       piston.DefaultEndpoint,
			TimeoutSeconds: int(piston.DefaultTimeout / time.Second),
		},
		Inference: InferenceConfig{
			CodeModelURL:   inference.DefaultCodeModelURL,
			ChatModelURL:   inference.DefaultChatModelURL,
			Token:          "",
			TokenEnv:       inference.DefaultTokenEnv,
			TimeoutSeconds: int(inference.DefaultTimeout / time.Second),
			Breaker: BreakerConfig{
				Enabled:         true,
				MaxFailures:     int(inference.DefaultBreakerMaxFailures),
				TimeoutSeconds:  int(inference.DefaultBreakerTimeout / time.Second),
				IntervalSeconds: int(inference.DefaultBreakerInterval / time.Second),
			},
		},
		HTTP: HTTPConfig{
			Addr:          ":27490",
			BasePath:      "",
			RatePerMinute: 120,
			Burst:         20,
			StreamHistory: 64,
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Exporter: "stdout",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".codebench", "config.yaml"), nil
}

// ServiceConfig converts the service section for the core service.
func (c Config) ServiceConfig() schema.ServiceConfig {
	return schema.ServiceConfig{
		DefaultLanguage:       schema.Language(c.Service.DefaultLanguage),
		DefaultTheme:          schema.ThemeName(c.Service.DefaultTheme),
		OperationTimeout:      seconds(c.Service.OperationTimeoutSeconds),
		MaxImportBytes:        c.Service.MaxImportBytes,
		AllowedExtensions:     append([]string(nil), c.Service.AllowedExtensions...),
		DefaultGeneratePrompt: c.Service.DefaultGeneratePrompt,
		MaxNotices:            c.Service.MaxNotices,
		MaxChatTurns:          c.Service.MaxChatTurns,
	}
}

// PistonConfig converts the execution section for the execution client.
func (c Config) PistonConfig() piston.Config {
	return piston.Config{
		Endpoint: c.Execution.Endpoint,
		Timeout:  seconds(c.Execution.TimeoutSeconds),
	}
}

// InferenceClientConfig converts the inference section for the generation
// client, resolving the credential.
func (c Config) InferenceClientConfig() inference.Config {
	return inference.Config{
		CodeModelURL: c.Inference.CodeModelURL,
		ChatModelURL: c.Inference.ChatModelURL,
		Token:        c.InferenceToken(),
		Timeout:      seconds(c.Inference.TimeoutSeconds),
	}
}

// BreakerSettings converts the breaker section.
func (c Config) BreakerSettings() inference.BreakerConfig {
	maxFailures := c.Inference.Breaker.MaxFailures
	if maxFailures < 0 {
		maxFailures = 0
	}
	return inference.BreakerConfig{
		MaxFailures: uint32(maxFailures),
		Timeout:     seconds(c.Inference.Breaker.TimeoutSeconds),
		Interval:    seconds(c.Inference.Breaker.IntervalSeconds),
	}
}

// HTTPAPIConfig converts the http section for the HTTP API server.
func (c Config) HTTPAPIConfig() httpapi.Config {
	return httpapi.Config{
		Addr:           c.HTTP.Addr,
		BasePath:       c.HTTP.BasePath,
		RatePerMinute:  c.HTTP.RatePerMinute,
		Burst:          c.HTTP.Burst,
		StreamHistory:  c.HTTP.StreamHistory,
		MaxImportBytes: c.Service.MaxImportBytes,
	}
}

// TracingSettings converts the tracing section.
func (c Config) TracingSettings() tracex.Config {
	return tracex.Config{
		Enabled:  c.Tracing.Enabled,
		Exporter: c.Tracing.Exporter,
	}
}

// InferenceToken returns the configured token, falling back to the
// environment variable named by token_env.
func (c Config) InferenceToken() string {
	if token := strings.TrimSpace(c.Inference.Token); token != "" {
		return token
	}
	name := strings.TrimSpace(c.Inference.TokenEnv)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
