package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.App.IsDevelopment())
	assert.Equal(t, []string{".paypal.com"}, cfg.PayPal.CertHostSuffixes)
	assert.Equal(t, 45*time.Second, cfg.PayPal.RequestTimeout)
	assert.Equal(t, "0 */6 * * *", cfg.Jobs.ReconcileCron)
	// falls back to the JWT secret outside production
	assert.Equal(t, cfg.JWT.Secret, cfg.TokenCache.Secret)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAYPAL_CERT_HOST_SUFFIXES", " .paypal.com, certs.example.test ,")
	t.Setenv("PAYPAL_REQUEST_TIMEOUT", "20s")
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("QUEUE_ENABLED", "false")
	t.Setenv("MERCHANT_ALERT_RECIPIENTS", "ops@example.com,finance@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{".paypal.com", "certs.example.test"}, cfg.PayPal.CertHostSuffixes)
	assert.Equal(t, 20*time.Second, cfg.PayPal.RequestTimeout)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.False(t, cfg.Queue.Enabled)
	assert.Len(t, cfg.Email.Recipients, 2)
}

func TestValidate_Production(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:        AppConfig{Environment: "production"},
			Database:   DatabaseConfig{Password: "pw"},
			JWT:        JWTConfig{Secret: "real-secret"},
			PayPal:     PayPalConfig{ClientID: "id", ClientSecret: "secret", WebhookID: "WH-1", CertHostSuffixes: []string{".paypal.com"}},
			TokenCache: TokenCacheConfig{Secret: "token-secret"},
			Jobs:       JobConfig{ReconcileMinAgeDays: 3, ReconcileBatchSize: 10},
		}
	}
	require.NoError(t, valid().Validate())

	for name, mutate := range map[string]func(*Config){
		"default jwt secret":  func(c *Config) { c.JWT.Secret = defaultJWTSecret },
		"no db password":      func(c *Config) { c.Database.Password = "" },
		"no paypal creds":     func(c *Config) { c.PayPal.ClientSecret = "" },
		"no webhook id":       func(c *Config) { c.PayPal.WebhookID = "" },
		"no token secret":     func(c *Config) { c.TokenCache.Secret = "" },
		"no cert hosts":       func(c *Config) { c.PayPal.CertHostSuffixes = nil },
		"zero reconcile size": func(c *Config) { c.Jobs.ReconcileBatchSize = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
