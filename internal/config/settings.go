package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/handiism/attachment-downloader/internal/download"
	"github.com/handiism/attachment-downloader/internal/http"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ATTACHMENTS_API_KEY.
const EnvPrefix = "ATTACHMENTS"

const appName = "attachment-downloader"

// Settings holds all configuration options.
type Settings struct {
	API       APIConfig       `mapstructure:"api"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// APIConfig holds the remote file API settings.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Key       string        `mapstructure:"key"`
	UserID    int64         `mapstructure:"user_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"` // bytes per second, 0 = unlimited
}

// DownloadsConfig holds download behaviour settings.
type DownloadsConfig struct {
	Path             string  `mapstructure:"path"`
	MaxConcurrent    int     `mapstructure:"max_concurrent"`
	MaxRetries       int     `mapstructure:"max_retries"`
	RetryCooldown    float64 `mapstructure:"retry_cooldown"`
	RetryExponent    float64 `mapstructure:"retry_exponent"`
	SubscriberBuffer int     `mapstructure:"subscriber_buffer"`
	Thumbnails       bool    `mapstructure:"thumbnails"`
	ThumbnailSize    int     `mapstructure:"thumbnail_size"`
}

// StoreConfig holds the attachment database settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
// An empty File logs to stderr.
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	dataDir := DefaultDataPath()
	return &Settings{
		API: APIConfig{
			BaseURL: "https://api.zotero.org",
			Timeout: 60 * time.Second,
		},
		Downloads: DownloadsConfig{
			Path:             filepath.Join(dataDir, "storage"),
			MaxConcurrent:    4,
			MaxRetries:       7,
			RetryCooldown:    0.2,
			RetryExponent:    4.0,
			SubscriberBuffer: 64,
			Thumbnails:       false,
			ThumbnailSize:    256,
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "attachments.db"),
		},
		Logging: LoggingConfig{
			File:  filepath.Join(dataDir, appName+".log"),
			Level: "INFO",
		},
	}
}

// DefaultConfigDir returns the directory searched for config.yaml.
func DefaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), appName)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataPath returns the directory for downloads, the database and logs.
func DefaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), appName)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", appName)
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func newViper(defaults *Settings) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv can override it.
	for key, value := range defaults.values() {
		v.SetDefault(key, value)
	}
	return v
}

func (s *Settings) values() map[string]any {
	return map[string]any{
		"api.base_url":                s.API.BaseURL,
		"api.key":                     s.API.Key,
		"api.user_id":                 s.API.UserID,
		"api.timeout":                 s.API.Timeout.String(),
		"api.rate_limit":              s.API.RateLimit,
		"downloads.path":              s.Downloads.Path,
		"downloads.max_concurrent":    s.Downloads.MaxConcurrent,
		"downloads.max_retries":       s.Downloads.MaxRetries,
		"downloads.retry_cooldown":    s.Downloads.RetryCooldown,
		"downloads.retry_exponent":    s.Downloads.RetryExponent,
		"downloads.subscriber_buffer": s.Downloads.SubscriberBuffer,
		"downloads.thumbnails":        s.Downloads.Thumbnails,
		"downloads.thumbnail_size":    s.Downloads.ThumbnailSize,
		"store.path":                  s.Store.Path,
		"logging.file":                s.Logging.File,
		"logging.level":               s.Logging.Level,
	}
}

// Load reads settings from a YAML file, applying ATTACHMENTS_* environment overrides.
// An empty path searches the default config directory and the working directory.
// A missing file is not an error; defaults are used.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()
	v := newViper(settings)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(DefaultConfigDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case path != "" && os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	settings.Downloads.Path = expandHome(settings.Downloads.Path)
	settings.Store.Path = expandHome(settings.Store.Path)
	settings.Logging.File = expandHome(settings.Logging.File)

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Save writes settings to a YAML file.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range s.values() {
		v.Set(key, value)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the settings can drive a download session.
func (s *Settings) Validate() error {
	switch {
	case s.API.BaseURL == "":
		return errors.New("api.base_url must be set")
	case s.Downloads.Path == "":
		return errors.New("downloads.path must be set")
	case s.Downloads.MaxConcurrent < 0:
		return fmt.Errorf("downloads.max_concurrent must not be negative, got %d", s.Downloads.MaxConcurrent)
	case s.Downloads.MaxRetries < 0:
		return fmt.Errorf("downloads.max_retries must not be negative, got %d", s.Downloads.MaxRetries)
	case s.API.RateLimit < 0:
		return fmt.Errorf("api.rate_limit must not be negative, got %d", s.API.RateLimit)
	}
	return nil
}

// IsConfigured returns true if the API key and user are set.
func (s *Settings) IsConfigured() bool {
	return s.API.Key != "" && s.API.UserID != 0
}

// ToClientConfig converts settings to the HTTP client configuration.
func (s *Settings) ToClientConfig() http.Config {
	return http.Config{
		BaseURL:   s.API.BaseURL,
		APIKey:    s.API.Key,
		Timeout:   s.API.Timeout,
		RateLimit: s.API.RateLimit,
	}
}

// ToRetryPolicy converts settings to a retry policy using retryable to classify errors.
func (s *Settings) ToRetryPolicy(retryable func(error) bool) download.RetryPolicy {
	return download.RetryPolicy{
		MaxRetries: s.Downloads.MaxRetries,
		Cooldown:   s.Downloads.RetryCooldown,
		Exponent:   s.Downloads.RetryExponent,
		Retryable:  retryable,
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
