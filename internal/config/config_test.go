package config

import (
	"context"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func baseEnv() map[string]string {
	return map[string]string{
		"APP_DB_DSN":               "postgres://u:p@localhost:5432/pewcal",
		"APP_GOOGLE_CLIENT_ID":     "client",
		"APP_GOOGLE_CLIENT_SECRET": "secret",
		"APP_SESSION_SECRET":       testSecret,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "http://localhost:8080/api/auth/callback", cfg.Google.RedirectURL)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAI.Model)
	assert.Equal(t, "America/Chicago", cfg.Location().String())
	assert.True(t, cfg.AutoMigrate)
	assert.False(t, cfg.PrometheusEnabled)
	assert.False(t, cfg.SecureCookies())
	assert.False(t, cfg.AssistantEnabled())
}

func TestLoadBuildsDSNFromParts(t *testing.T) {
	env := baseEnv()
	delete(env, "APP_DB_DSN")
	env["APP_DB_HOST"] = "db"
	env["APP_DB_NAME"] = "pewcal"
	env["APP_DB_USER"] = "app"
	env["APP_DB_PASSWORD"] = "p@ss"

	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:p%40ss@db:5432/pewcal?sslmode=disable", cfg.DB.DSN)
}

func TestLoadParsesListsAndFlags(t *testing.T) {
	env := baseEnv()
	env["APP_BASE_URL"] = "https://pewcal.example.com/"
	env["APP_TRUSTED_PROXIES"] = "10.0.0.0/8,127.0.0.1"
	env["APP_PROMETHEUS_ENDPOINT_ENABLED"] = "true"
	env["APP_OPENAI_API_KEY"] = "sk-test"

	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.TrustedProxies)
	assert.True(t, cfg.PrometheusEnabled)
	assert.True(t, cfg.SecureCookies())
	assert.True(t, cfg.AssistantEnabled())
	assert.Equal(t, "https://pewcal.example.com/api/auth/callback", cfg.Google.RedirectURL)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantErr string
	}{
		{
			name:    "missing dsn",
			mutate:  func(env map[string]string) { delete(env, "APP_DB_DSN") },
			wantErr: "APP_DB_DSN is required",
		},
		{
			name:    "missing google client",
			mutate:  func(env map[string]string) { delete(env, "APP_GOOGLE_CLIENT_ID") },
			wantErr: "APP_GOOGLE_CLIENT_ID",
		},
		{
			name:    "missing session secret",
			mutate:  func(env map[string]string) { delete(env, "APP_SESSION_SECRET") },
			wantErr: "APP_SESSION_SECRET is required",
		},
		{
			name:    "short session secret",
			mutate:  func(env map[string]string) { env["APP_SESSION_SECRET"] = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "bad timezone",
			mutate:  func(env map[string]string) { env["APP_DEFAULT_TIMEZONE"] = "Mars/Olympus" },
			wantErr: "APP_DEFAULT_TIMEZONE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			tt.mutate(env)
			_, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
