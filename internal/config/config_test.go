package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	c := Default()
	c.JWTSecret = strings.Repeat("k", 32)
	return c
}

func TestDefaultNeedsSecret(t *testing.T) {
	err := Default().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvJWTSecret)

	require.NoError(t, validConfig().Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvJWTSecret:    "from-env",
		EnvSMTPPassword: "smtp-pass",
		EnvDatabaseDSN:  "postgres://localhost/drivelocker",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	c := Default()
	c.JWTSecret = "from-flag"
	c.ApplyEnv(lookup)
	assert.Equal(t, "from-flag", c.JWTSecret, "flags win")
	assert.Equal(t, "smtp-pass", c.SMTPPassword)
	assert.Equal(t, "postgres://localhost/drivelocker", c.DatabaseDSN)
	assert.Empty(t, c.S3SecretKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad env", func(c *Config) { c.Env = "staging" }, "env must be one of"},
		{"bad port", func(c *Config) { c.Port = 0 }, "port 0"},
		{"unknown storage", func(c *Config) { c.Storage = "mongo" }, "storage must be one of"},
		{"postgres without dsn", func(c *Config) { c.Storage = "postgres" }, "--database-dsn"},
		{"s3 without bucket", func(c *Config) { c.Blob = "s3" }, "--s3-bucket"},
		{"smtp without sender", func(c *Config) { c.SMTPHost = "smtp.example.com" }, "--mail-from"},
		{"half tls", func(c *Config) { c.TLSCert = "cert.pem" }, "--tls-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("redis without addr", func(t *testing.T) {
		c := validConfig()
		c.Storage = "redis"
		c.RedisAddr = ""
		require.ErrorContains(t, c.Validate(), "--redis-addr")
	})

	t.Run("reports all problems", func(t *testing.T) {
		c := validConfig()
		c.Env = "staging"
		c.Blob = "gcs"
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "env must be one of")
		assert.Contains(t, err.Error(), "blob must be one of")
	})
}
