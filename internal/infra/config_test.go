package infra

import (
	"os"
	"testing"
	"time"
)

// unsetEnv clears keys for the duration of the test. envconfig treats a set
// but empty variable as an explicit value, so defaults need them unset.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	unsetEnv(t, "API_BASE_URL", "PORT", "POLL_INTERVAL", "STUCK_THRESHOLD", "MINIO_ENDPOINT",
		"IMAGE_MAX_MB", "VIDEO_MAX_MB", "DEV_INITIAL_CREDITS", "CORS_ALLOWED_ORIGINS")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.APIBase != "http://localhost:8080" {
		t.Fatalf("APIBase mismatch: got %q", cfg.APIBase)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Fatalf("PollInterval mismatch: got %s want 3s", cfg.PollInterval)
	}
	if cfg.StuckThreshold != 30*time.Second {
		t.Fatalf("StuckThreshold mismatch: got %s want 30s", cfg.StuckThreshold)
	}
	if cfg.ImageMaxMB != 10 || cfg.VideoMaxMB != 100 {
		t.Fatalf("upload ceilings mismatch: %d/%d", cfg.ImageMaxMB, cfg.VideoMaxMB)
	}
	if cfg.MinioEnabled() {
		t.Fatal("minio should be disabled without endpoint")
	}
	if cfg.DevInitialCredits != 100 || len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("dev api defaults mismatch: credits=%d origins=%v", cfg.DevInitialCredits, cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigInheritsPortInAPIBase(t *testing.T) {
	unsetEnv(t, "API_BASE_URL", "POLL_INTERVAL", "STUCK_THRESHOLD")
	t.Setenv("PORT", "1919")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.APIBase != "http://localhost:1919" {
		t.Fatalf("APIBase mismatch: got %q", cfg.APIBase)
	}
}

func TestLoadConfigHonorsExplicitValues(t *testing.T) {
	unsetEnv(t, "STUCK_THRESHOLD")
	t.Setenv("API_BASE_URL", "https://studio.example.com/")
	t.Setenv("POLL_INTERVAL", "1500ms")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,https://studio.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.APIBase != "https://studio.example.com" {
		t.Fatalf("APIBase mismatch: got %q", cfg.APIBase)
	}
	if cfg.PollInterval != 1500*time.Millisecond {
		t.Fatalf("PollInterval mismatch: got %s", cfg.PollInterval)
	}
	if !cfg.MinioEnabled() {
		t.Fatal("minio should be enabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://studio.example.com" {
		t.Fatalf("CORS origins mismatch: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigRejectsBadBaseURL(t *testing.T) {
	unsetEnv(t, "POLL_INTERVAL", "STUCK_THRESHOLD")
	t.Setenv("API_BASE_URL", "ftp://example.com")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for non-http base url")
	}
}

func TestLoadConfigRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://localhost:8080")
	t.Setenv("POLL_INTERVAL", "0s")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for zero poll interval")
	}
}
