package app

import (
	"errors"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	BackendURL     string        `envconfig:"BACKEND_URL" required:"true"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"20s"`
	// BackendMethodOverride sends PUT and DELETE as POST with _method for
	// backends behind proxies that only pass GET and POST.
	BackendMethodOverride bool `envconfig:"BACKEND_METHOD_OVERRIDE" default:"false"`

	ListSearchDebounce time.Duration `envconfig:"LIST_SEARCH_DEBOUNCE" default:"500ms"`
	CategoryCacheTTL   time.Duration `envconfig:"CATEGORY_CACHE_TTL" default:"10m"`
	ExportTTL          time.Duration `envconfig:"EXPORT_TTL" default:"1h"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"300"`
	LoginRateLimit     int `envconfig:"LOGIN_RATE_LIMIT" default:"10"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SessionSecret == "" {
		return errors.New("session secret must be provided")
	}
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("backend url must be an absolute http(s) url")
	}
	if c.ListSearchDebounce <= 0 {
		return errors.New("list search debounce must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
