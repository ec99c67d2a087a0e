package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env        string `env:"APP_ENV, default=development"`
	ListenAddr string `env:"APP_LISTEN_ADDR, default=:8080"`
	BaseURL    string `env:"APP_BASE_URL, default=http://localhost:8080"`

	DB struct {
		DSN      string `env:"DSN"`
		Host     string `env:"HOST"`
		Name     string `env:"NAME"`
		User     string `env:"USER"`
		Password string `env:"PASSWORD"`
		Port     string `env:"PORT, default=5432"`
		SSLMode  string `env:"SSLMODE, default=disable"`
	} `env:", prefix=APP_DB_"`

	Google struct {
		ClientID     string `env:"CLIENT_ID"`
		ClientSecret string `env:"CLIENT_SECRET"`
		RedirectURL  string `env:"REDIRECT_URL"`
	} `env:", prefix=APP_GOOGLE_"`

	OpenAI struct {
		APIKey      string `env:"API_KEY"`
		Model       string `env:"MODEL, default=gpt-3.5-turbo"`
		AssistantID string `env:"ASSISTANT_ID"`
	} `env:", prefix=APP_OPENAI_"`

	Session struct {
		Secret string `env:"SECRET"`
	} `env:", prefix=APP_SESSION_"`

	DefaultTimezone   string   `env:"APP_DEFAULT_TIMEZONE, default=America/Chicago"`
	PrometheusEnabled bool     `env:"APP_PROMETHEUS_ENDPOINT_ENABLED, default=false"`
	TrustedProxies    []string `env:"APP_TRUSTED_PROXIES"`
	AutoMigrate       bool     `env:"APP_AUTO_MIGRATE, default=true"`

	location *time.Location
}

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith resolves configuration from the given lookuper and validates it.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if cfg.DB.DSN == "" {
		var missing []string
		if cfg.DB.Host == "" {
			missing = append(missing, "APP_DB_HOST")
		}
		if cfg.DB.Name == "" {
			missing = append(missing, "APP_DB_NAME")
		}
		if cfg.DB.User == "" {
			missing = append(missing, "APP_DB_USER")
		}
		if cfg.DB.Password == "" {
			missing = append(missing, "APP_DB_PASSWORD")
		}
		if len(missing) == 0 {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
				url.QueryEscape(cfg.DB.User), url.QueryEscape(cfg.DB.Password),
				cfg.DB.Host, cfg.DB.Port, cfg.DB.Name, cfg.DB.SSLMode)
		}
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Google.RedirectURL == "" {
		cfg.Google.RedirectURL = cfg.BaseURL + "/api/auth/callback"
	}

	if cfg.DB.DSN == "" {
		return nil, errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
		return nil, errors.New("APP_GOOGLE_CLIENT_ID and APP_GOOGLE_CLIENT_SECRET are required")
	}
	if cfg.Session.Secret == "" {
		return nil, errors.New("APP_SESSION_SECRET is required")
	}
	if len(cfg.Session.Secret) < 32 {
		return nil, fmt.Errorf("APP_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.Session.Secret))
	}

	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("APP_DEFAULT_TIMEZONE %q: %w", cfg.DefaultTimezone, err)
	}
	cfg.location = loc

	return cfg, nil
}

// Location returns the timezone used to interpret chat phrases.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// SecureCookies reports whether cookies should carry the Secure flag.
func (c *Config) SecureCookies() bool {
	base, err := url.Parse(c.BaseURL)
	return err == nil && base.Scheme == "https"
}

// AssistantEnabled reports whether an OpenAI key is configured.
func (c *Config) AssistantEnabled() bool {
	return c.OpenAI.APIKey != ""
}
