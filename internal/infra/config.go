package infra

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config represents client configuration loaded from environment variables.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	APIBase  string `envconfig:"API_BASE_URL"`
	APIToken string `envconfig:"API_TOKEN"`

	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`
	StuckThreshold time.Duration `envconfig:"STUCK_THRESHOLD" default:"30s"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	UploadTimeout  time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"10m"`

	ImageMaxMB  int64  `envconfig:"IMAGE_MAX_MB" default:"10"`
	VideoMaxMB  int64  `envconfig:"VIDEO_MAX_MB" default:"100"`
	FFprobePath string `envconfig:"FFPROBE_PATH" default:"ffprobe"`

	ArchiveDir              string `envconfig:"ARCHIVE_DIR" default:"./downloads"`
	ArchiveFetchConcurrency int    `envconfig:"ARCHIVE_FETCH_CONCURRENCY" default:"4"`

	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"generations"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// Dev API server settings.
	Port             string        `envconfig:"PORT" default:"8080"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	HTTPIdleTimeout  time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	RateLimitPerMin  int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	DevInitialCredits  int      `envconfig:"DEV_INITIAL_CREDITS" default:"100"`
	DevStoragePath     string   `envconfig:"DEV_STORAGE_PATH" default:"./devapi-data"`
}

// LoadConfig reads optional .env files, decodes the environment and validates
// the result.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.APIBase = strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if cfg.APIBase == "" {
		cfg.APIBase = "http://localhost:" + cfg.Port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the rest of the client relies on.
func (c *Config) Validate() error {
	parsed, err := url.Parse(c.APIBase)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an http(s) url, got %q", c.APIBase)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.StuckThreshold <= 0 {
		return fmt.Errorf("STUCK_THRESHOLD must be positive")
	}
	if c.ImageMaxMB <= 0 || c.VideoMaxMB <= 0 {
		return fmt.Errorf("IMAGE_MAX_MB and VIDEO_MAX_MB must be positive")
	}
	if c.ArchiveFetchConcurrency <= 0 {
		c.ArchiveFetchConcurrency = 1
	}
	return nil
}

// MinioEnabled reports whether archives should be published to object storage.
func (c *Config) MinioEnabled() bool {
	return strings.TrimSpace(c.MinioEndpoint) != ""
}
