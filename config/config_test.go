package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENV", "test")

	c := LoadConfig()

	assert.Equal(t, 8080, c.ServerPort)
	assert.Equal(t, "localhost", c.Database.Host)
	assert.Equal(t, 5432, c.Database.Port)
	assert.False(t, c.Database.UseSSL)
	assert.Equal(t, 60*time.Minute, c.Auth.TokenTTL)
	assert.Equal(t, 10*time.Minute, c.Auth.OTPTTL)
	assert.Equal(t, "bookfinder", c.Auth.JWTIssuer)
	assert.Equal(t, "log", c.Mail.Backend)
	assert.Equal(t, "none", c.Queue.Backend)
	assert.Equal(t, "none", c.Storage.Backend)
	assert.Equal(t, []string{"http://localhost:3000"}, c.CORSOrigins)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("JWT_SECRET", "  s3cret  ")
	t.Setenv("JWT_TOKEN_TTL", "120")
	t.Setenv("OTP_TTL", "5m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RABBITMQ_PREFETCH", "not-a-number")

	c := LoadConfig()

	assert.Equal(t, 9090, c.ServerPort)
	assert.True(t, c.Database.UseSSL)
	assert.Equal(t, "s3cret", c.Auth.JWTSecret)
	assert.Equal(t, 120*time.Minute, c.Auth.TokenTTL)
	assert.Equal(t, 5*time.Minute, c.Auth.OTPTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
	assert.Equal(t, 10, c.Queue.RabbitMQ.PrefetchCount)
}

func TestValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	c := LoadConfig()
	require.EqualError(t, c.Validate(), "JWT_SECRET is required")

	c.Auth.JWTSecret = "secret"
	require.NoError(t, c.Validate())

	c.Auth.OTPTTL = 0
	require.Error(t, c.Validate())
}
