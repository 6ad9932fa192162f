package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/codebench/schema"
)

// EnvPrefix prefixes environment overrides, e.g. CODEBENCH_HTTP_ADDR.
const EnvPrefix = "CODEBENCH"

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults with environment overrides applied.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("service.default_language", cfg.Service.DefaultLanguage)
	v.SetDefault("service.default_theme", cfg.Service.DefaultTheme)
	v.SetDefault("service.operation_timeout_seconds", cfg.Service.OperationTimeoutSeconds)
	v.SetDefault("service.max_import_bytes", cfg.Service.MaxImportBytes)
	v.SetDefault("service.allowed_extensions", cfg.Service.AllowedExtensions)
	v.SetDefault("service.default_generate_prompt", cfg.Service.DefaultGeneratePrompt)
	v.SetDefault("service.max_notices", cfg.Service.MaxNotices)
	v.SetDefault("service.max_chat_turns", cfg.Service.MaxChatTurns)
	v.SetDefault("execution.endpoint", cfg.Execution.Endpoint)
	v.SetDefault("execution.timeout_seconds", cfg.Execution.TimeoutSeconds)
	v.SetDefault("inference.code_model_url", cfg.Inference.CodeModelURL)
	v.SetDefault("inference.chat_model_url", cfg.Inference.ChatModelURL)
	v.SetDefault("inference.token", cfg.Inference.Token)
	v.SetDefault("inference.token_env", cfg.Inference.TokenEnv)
	v.SetDefault("inference.timeout_seconds", cfg.Inference.TimeoutSeconds)
	v.SetDefault("inference.breaker.enabled", cfg.Inference.Breaker.Enabled)
	v.SetDefault("inference.breaker.max_failures", cfg.Inference.Breaker.MaxFailures)
	v.SetDefault("inference.breaker.timeout_seconds", cfg.Inference.Breaker.TimeoutSeconds)
	v.SetDefault("inference.breaker.interval_seconds", cfg.Inference.Breaker.IntervalSeconds)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.rate_per_minute", cfg.HTTP.RatePerMinute)
	v.SetDefault("http.burst", cfg.HTTP.Burst)
	v.SetDefault("http.stream_history", cfg.HTTP.StreamHistory)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.exporter", cfg.Tracing.Exporter)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if _, err := schema.NormalizeServiceConfig(cfg.ServiceConfig()); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	if cfg.Service.OperationTimeoutSeconds < 0 {
		return fmt.Errorf("service.operation_timeout_seconds must not be negative")
	}
	if err := validateURL("execution.endpoint", cfg.Execution.Endpoint); err != nil {
		return err
	}
	if err := validateURL("inference.code_model_url", cfg.Inference.CodeModelURL); err != nil {
		return err
	}
	if err := validateURL("inference.chat_model_url", cfg.Inference.ChatModelURL); err != nil {
		return err
	}
	if cfg.Execution.TimeoutSeconds < 0 || cfg.Inference.TimeoutSeconds < 0 {
		return fmt.Errorf("client timeouts must not be negative")
	}
	switch cfg.Tracing.Exporter {
	case "", "stdout", "noop":
	default:
		return fmt.Errorf("unsupported tracing.exporter %q", cfg.Tracing.Exporter)
	}
	return validateHTTPConfig(cfg.HTTP)
}

func validateURL(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must include scheme and host (e.g. https://example.com)", key)
	}
	return nil
}

func validateHTTPConfig(cfg HTTPConfig) error {
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	if cfg.RatePerMinute < 0 || cfg.Burst < 0 {
		return fmt.Errorf("http.rate_per_minute and http.burst must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Execution.Endpoint = expandEnv(cfg.Execution.Endpoint)
	cfg.Inference.CodeModelURL = expandEnv(cfg.Inference.CodeModelURL)
	cfg.Inference.ChatModelURL = expandEnv(cfg.Inference.ChatModelURL)
	cfg.Inference.Token = expandEnv(cfg.Inference.Token)
	cfg.HTTP.Addr = expandEnv(cfg.HTTP.Addr)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
