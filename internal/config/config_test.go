package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:         "8560",
			JWTSecret:    "secure-secret-at-least-32-chars-long",
			JWTExpiresIn: "24h",
			DBPassword:   "secure-password",
			DBSSLMode:    "require",
			RedisURL:     "localhost:6379",
			Env:          "development",
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"Valid development", func(c *Config) {}, false},
		{"Missing port", func(c *Config) { c.Port = "" }, true},
		{"Missing JWT secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"Bad JWT expiry", func(c *Config) { c.JWTExpiresIn = "soon" }, true},
		{"Bad sweep interval", func(c *Config) { c.SweepInterval = "hourly" }, true},
		{"Valid sweep interval", func(c *Config) { c.SweepInterval = "30m" }, false},
		{"Production with default JWT secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "your-secret-key-change-in-production"
		}, true},
		{"Production with short JWT secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "short"
		}, true},
		{"Production with default DB password", func(c *Config) {
			c.Env = "production"
			c.DBPassword = "password"
		}, true},
		{"Prod alias enforces checks", func(c *Config) {
			c.Env = "prod"
			c.DBPassword = ""
		}, true},
		{"Production fully configured", func(c *Config) { c.Env = "production" }, false},
		{"Development with weak secret only warns", func(c *Config) { c.JWTSecret = "weak" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_JWTExpiry(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 24*time.Hour, (&Config{}).JWTExpiry())
	assert.Equal(t, 15*time.Minute, (&Config{JWTExpiresIn: "15m"}).JWTExpiry())
	assert.Equal(t, 24*time.Hour, (&Config{JWTExpiresIn: "nonsense"}).JWTExpiry())
}

func TestConfig_StorySweepInterval(t *testing.T) {
	t.Parallel()
	assert.Equal(t, time.Hour, (&Config{}).StorySweepInterval())
	assert.Equal(t, 10*time.Minute, (&Config{SweepInterval: "10m"}).StorySweepInterval())
	assert.Equal(t, time.Hour, (&Config{SweepInterval: "often"}).StorySweepInterval())
}
