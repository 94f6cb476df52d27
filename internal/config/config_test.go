// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("UNLOCK_UNIT_PRICE", "4.50")
	t.Setenv("MAX_SELECTION", "3")
	t.Setenv("BATCH_RATE_LIMIT_BACKOFF", "90s")
	t.Setenv("BATCH_ALLOW_WEB_CONTEXT", "TRUE")
	t.Setenv("MATCH_MIN_SCORE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, decimal.RequireFromString("4.5").Equal(cfg.Payment.UnitPrice))
	assert.Equal(t, 3, cfg.Payment.MaxSelection)
	assert.Equal(t, 90*time.Second, cfg.Batch.RateLimitBackoff)
	assert.True(t, cfg.Batch.AllowWebContext)
	assert.Equal(t, 50, cfg.Matching.MinMatchScore)
	assert.Equal(t, cfg.Database.SQLitePath, cfg.Database.DSN())
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Database:    DatabaseConfig{Driver: "postgres", Host: "db", Port: "5432", User: "u", Password: "p", Database: "vm", SSLMode: "disable"},
		JWT:         JWTConfig{SecretKey: "your-secret-key-change-in-production"},
		Payment: PaymentConfig{
			UnitPrice:           decimal.NewFromInt(5),
			SimilarityUnitPrice: decimal.NewFromInt(3),
			MaxSelection:        5,
		},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	cases := map[string]func(c *Config){
		"default jwt secret in production": func(c *Config) { c.Environment = "production"; c.Payment.WebhookSecret = "whsec" },
		"missing webhook secret":           func(c *Config) { c.Environment = "production"; c.JWT.SecretKey = "strong" },
		"missing db password":              func(c *Config) { c.Environment = "production"; c.JWT.SecretKey = "strong"; c.Payment.WebhookSecret = "whsec"; c.Database.Password = "" },
		"zero selection":                   func(c *Config) { c.Payment.MaxSelection = 0 },
		"free unlocks":                     func(c *Config) { c.Payment.UnitPrice = decimal.Zero },
		"unknown driver":                   func(c *Config) { c.Database.Driver = "mysql" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	c := validConfig()
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=vm sslmode=disable", c.Database.DSN())
}
