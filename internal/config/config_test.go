package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: 0123456789abcdef
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", c.Listen)
	assert.Equal(t, "http://localhost:3000", c.ClientURL)
	assert.Equal(t, []string{"*"}, c.CORSOrigins)
	assert.Equal(t, DatabaseDriverSQLite, c.Database.Driver)
	assert.Equal(t, "./data/chartwise.db", c.Database.Path)
	assert.Equal(t, uint64(5), c.Database.ConnectRetries)
	assert.Equal(t, 24*time.Hour, c.Auth.TokenTTL)
	assert.Equal(t, time.Hour, c.Auth.ResetTokenTTL)
	assert.False(t, c.Auth.AllowAdminSignup)
	assert.Equal(t, int64(50<<20), c.Upload.MaxSize)
	assert.Equal(t, "50 MiB", c.MaxUploadSize())
	assert.Equal(t, InsightProviderNone, c.Insight.Provider)
	assert.Equal(t, "gpt-3.5-turbo", c.Insight.Model)
	assert.Equal(t, MaxInsightRows, c.Insight.MaxRows)
	assert.InDelta(t, 0.7, c.Insight.Temperature, 0.0001)
	assert.Equal(t, 100, c.Insight.MaxTokens)
	assert.Equal(t, "0 * * * *", c.Janitor.Schedule)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHARTWISE_AUTH_JWT_SECRET", "env-secret-0123456789")
	t.Setenv("CHARTWISE_INSIGHT_PROVIDER", "OpenAI")
	t.Setenv("CHARTWISE_INSIGHT_API_KEY", "sk-test")
	t.Setenv("CHARTWISE_CLIENT_URL", "https://charts.example.com/")

	c, err := Load(writeConfig(t, "listen: 127.0.0.1:8080\n"))
	require.NoError(t, err)

	assert.Equal(t, "env-secret-0123456789", c.Auth.JWTSecret)
	assert.Equal(t, InsightProviderOpenAI, c.Insight.Provider)
	assert.Equal(t, "sk-test", c.Insight.APIKey)
	assert.Equal(t, "https://charts.example.com", c.ClientURL)
	assert.Equal(t, "127.0.0.1:8080", c.Listen)
}

func TestLoadClampsInsightRows(t *testing.T) {
	c, err := Load(writeConfig(t, `
auth:
  jwt_secret: 0123456789abcdef
insight:
  max_rows: 500
`))
	require.NoError(t, err)
	assert.Equal(t, MaxInsightRows, c.Insight.MaxRows)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name   string
		config string
		errMsg string
	}{
		{
			name:   "missing secret",
			config: "listen: 0.0.0.0:5000\n",
			errMsg: "auth.jwt_secret is required",
		},
		{
			name:   "short secret",
			config: "auth:\n  jwt_secret: short\n",
			errMsg: "at least 16 characters",
		},
		{
			name:   "postgres without dsn",
			config: "auth:\n  jwt_secret: 0123456789abcdef\ndatabase:\n  driver: postgres\n",
			errMsg: "database.dsn is required",
		},
		{
			name:   "unknown driver",
			config: "auth:\n  jwt_secret: 0123456789abcdef\ndatabase:\n  driver: mysql\n",
			errMsg: "unknown database driver",
		},
		{
			name:   "openai without key",
			config: "auth:\n  jwt_secret: 0123456789abcdef\ninsight:\n  provider: openai\n",
			errMsg: "insight.api_key is required",
		},
		{
			name:   "unknown provider",
			config: "auth:\n  jwt_secret: 0123456789abcdef\ninsight:\n  provider: llamas\n",
			errMsg: "unknown insight provider",
		},
		{
			name:   "federated without issuer",
			config: "auth:\n  jwt_secret: 0123456789abcdef\n  federated:\n    enabled: true\n",
			errMsg: "auth.federated.issuer",
		},
		{
			name:   "email without sender",
			config: "auth:\n  jwt_secret: 0123456789abcdef\nemail:\n  enabled: true\n  smtp_host: smtp.example.com\n",
			errMsg: "email.from_email is invalid",
		},
		{
			name:   "zero upload size",
			config: "auth:\n  jwt_secret: 0123456789abcdef\nupload:\n  max_size: 0\n",
			errMsg: "upload.max_size must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.config))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestURLSanitize(t *testing.T) {
	assert.Equal(t, "http://a.b", urlSanitize(" http://a.b/ "))
	assert.Equal(t, "", urlSanitize(""))
}
