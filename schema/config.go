package schema

import (
	"errors"
	"strings"
	"time"
)

// ServiceConfig defines defaults and limits for the session service.
type ServiceConfig struct {
	DefaultLanguage       Language
	DefaultTheme          ThemeName
	OperationTimeout      time.Duration
	MaxImportBytes        int64
	AllowedExtensions     []string
	DefaultGeneratePrompt string
	MaxNotices            int
	MaxChatTurns          int
}

const (
	// DefaultOperationTimeout bounds every remote call.
	DefaultOperationTimeout = 30 * time.Second
	// DefaultMaxImportBytes caps imported file size.
	DefaultMaxImportBytes int64 = 1 << 20
	// DefaultMaxNotices caps the notices kept per session.
	DefaultMaxNotices = 5
	// DefaultMaxChatTurns caps the chat history kept per session.
	DefaultMaxChatTurns = 500
	// DefaultGeneratePrompt is used when a generate intent carries no prompt.
	DefaultGeneratePrompt = "Write a program to check if something is palindrome"
)

// DefaultAllowedExtensions returns the import allow-list.
func DefaultAllowedExtensions() []string {
	return []string{"js", "ts", "py", "java", "cs", "php"}
}

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = DefaultLanguage
	}
	lang, err := NormalizeLanguage(string(cfg.DefaultLanguage))
	if err != nil {
		return ServiceConfig{}, err
	}
	cfg.DefaultLanguage = lang
	if cfg.DefaultTheme == "" {
		cfg.DefaultTheme = DefaultTheme
	}
	theme, ok := NormalizeThemeName(string(cfg.DefaultTheme))
	if !ok {
		return ServiceConfig{}, ErrInvalidTheme
	}
	cfg.DefaultTheme = theme
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}
	if cfg.MaxImportBytes <= 0 {
		cfg.MaxImportBytes = DefaultMaxImportBytes
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultAllowedExtensions()
	}
	for _, ext := range cfg.AllowedExtensions {
		if strings.TrimSpace(ext) == "" || strings.Contains(ext, ".") {
			return ServiceConfig{}, errors.New("allowed extensions must be bare, non-empty names")
		}
	}
	if strings.TrimSpace(cfg.DefaultGeneratePrompt) == "" {
		cfg.DefaultGeneratePrompt = DefaultGeneratePrompt
	}
	if cfg.MaxNotices <= 0 {
		cfg.MaxNotices = DefaultMaxNotices
	}
	if cfg.MaxChatTurns <= 0 {
		cfg.MaxChatTurns = DefaultMaxChatTurns
	}
	return cfg, nil
}
