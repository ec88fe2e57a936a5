package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`
	LogFile     string `envconfig:"LOG_FILE"`

	// Security: client name -> SHA-256 hex of its API key
	APIClients       map[string]string `envconfig:"API_CLIENTS" required:"true"`
	RateLimitMax     int               `envconfig:"RATE_LIMIT_MAX" default:"1000"`
	ResultSigningKey string            `envconfig:"RESULT_SIGNING_KEY" required:"true"`
	ResultTokenTTL   time.Duration     `envconfig:"RESULT_TOKEN_TTL" default:"5m"`

	// Session store
	SessionStore   string        `envconfig:"SESSION_STORE" default:"memory"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" default:"10m"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	RedisNamespace string        `envconfig:"REDIS_NAMESPACE" default:"liveness"`

	// Detector
	DetectorType string `envconfig:"DETECTOR" default:"mock"`
	AWSRegion    string `envconfig:"AWS_REGION" default:"us-east-1"`
	InvertYaw    bool   `envconfig:"DETECTOR_INVERT_YAW" default:"false"`

	// Liveness
	PreviewMinX       float64       `envconfig:"PREVIEW_MIN_X" default:"25"`
	PreviewMinY       float64       `envconfig:"PREVIEW_MIN_Y" default:"50"`
	PreviewSize       float64       `envconfig:"PREVIEW_SIZE" default:"325"`
	Framing           string        `envconfig:"FRAMING" default:"containment"`
	EdgeMargin        float64       `envconfig:"EDGE_MARGIN" default:"50"`
	TooCloseMargin    float64       `envconfig:"TOO_CLOSE_MARGIN" default:"90"`
	CatalogFile       string        `envconfig:"CATALOG_FILE"`
	ShuffleChallenges bool          `envconfig:"SHUFFLE_CHALLENGES" default:"false"`
	FrameMinInterval  time.Duration `envconfig:"FRAME_MIN_INTERVAL" default:"0s"`
	CompletionDelay   time.Duration `envconfig:"COMPLETION_DELAY" default:"500ms"`

	// Webhook
	WebhookURL    string `envconfig:"WEBHOOK_URL"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.SessionStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("SESSION_STORE must be memory or redis, got %q", c.SessionStore)
	}
	switch c.DetectorType {
	case "mock", "rekognition", "none":
	default:
		return fmt.Errorf("DETECTOR must be mock, rekognition or none, got %q", c.DetectorType)
	}
	if c.PreviewSize <= 0 {
		return fmt.Errorf("PREVIEW_SIZE must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
	}
	return nil
}

// Preview is the default square target region new sessions frame against.
func (c *Config) Preview() liveness.Rect {
	return liveness.Rect{MinX: c.PreviewMinX, MinY: c.PreviewMinY, Width: c.PreviewSize, Height: c.PreviewSize}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
