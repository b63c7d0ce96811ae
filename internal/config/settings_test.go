package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	if s.Downloads.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want 4", s.Downloads.MaxConcurrent)
	}
	if s.Downloads.MaxRetries != 7 || s.Downloads.RetryCooldown != 0.2 || s.Downloads.RetryExponent != 4.0 {
		t.Errorf("retry defaults = %d, %v, %v", s.Downloads.MaxRetries, s.Downloads.RetryCooldown, s.Downloads.RetryExponent)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if s.IsConfigured() {
		t.Error("defaults have no credentials")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if s.Downloads.MaxConcurrent != DefaultSettings().Downloads.MaxConcurrent {
		t.Errorf("MaxConcurrent = %d, want default", s.Downloads.MaxConcurrent)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  base_url: https://files.example.org
  key: secret
  user_id: 12345
  timeout: 30s
downloads:
  path: /tmp/attachments
  max_concurrent: 2
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if s.API.BaseURL != "https://files.example.org" || s.API.Key != "secret" || s.API.UserID != 12345 {
		t.Errorf("API = %+v", s.API)
	}
	if s.API.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", s.API.Timeout)
	}
	if s.Downloads.Path != "/tmp/attachments" || s.Downloads.MaxConcurrent != 2 {
		t.Errorf("Downloads = %+v", s.Downloads)
	}
	// Unset keys keep their defaults.
	if s.Downloads.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want default 7", s.Downloads.MaxRetries)
	}
	if !s.IsConfigured() {
		t.Error("IsConfigured should be true")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ATTACHMENTS_API_KEY", "from-env")
	t.Setenv("ATTACHMENTS_DOWNLOADS_MAX_CONCURRENT", "9")

	s, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if s.API.Key != "from-env" {
		t.Errorf("API.Key = %q, want from-env", s.API.Key)
	}
	if s.Downloads.MaxConcurrent != 9 {
		t.Errorf("MaxConcurrent = %d, want 9", s.Downloads.MaxConcurrent)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("downloads:\n  max_concurrent: -1\n"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	s := DefaultSettings()
	s.API.Key = "k"
	s.API.UserID = 7
	s.API.Timeout = 90 * time.Second
	s.Downloads.Thumbnails = true

	if err := s.Save(path); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded.API.Key != "k" || loaded.API.UserID != 7 || loaded.API.Timeout != 90*time.Second {
		t.Errorf("API = %+v", loaded.API)
	}
	if !loaded.Downloads.Thumbnails {
		t.Error("Thumbnails not persisted")
	}
}

func TestToRetryPolicy(t *testing.T) {
	errTransient := errors.New("transient")
	s := DefaultSettings()

	policy := s.ToRetryPolicy(func(err error) bool { return errors.Is(err, errTransient) })
	if policy.MaxRetries != 7 || policy.Cooldown != 0.2 || policy.Exponent != 4.0 {
		t.Errorf("policy = %+v", policy)
	}
	if !policy.Retryable(errTransient) {
		t.Error("Retryable should use the classifier")
	}

	cc := s.ToClientConfig()
	if cc.BaseURL != s.API.BaseURL || cc.Timeout != s.API.Timeout {
		t.Errorf("client config = %+v", cc)
	}
}
