package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("TX_MAX_RETRIES", "")
	t.Setenv("CACHE_TTL_SECONDS", "")
	t.Setenv("NOTIFY_EXCHANGE", "")
	t.Setenv("SYNC_API_URL", "")
	t.Setenv("DOCUMENT_PREFIX", "")

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, 3, cfg.TxMaxRetries)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL)
	assert.Equal(t, "storefront_events", cfg.NotifyExchange)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.SyncAPIURL)
	assert.Equal(t, "userdoc:", cfg.DocumentPrefix)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("TX_MAX_RETRIES", "not-a-number")
	t.Setenv("IS_PROD", "true")
	t.Setenv("SYNC_ACCOUNT_ID", "7")

	cfg := LoadConfig()

	assert.Equal(t, "9000", cfg.AppPort)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 3, cfg.TxMaxRetries) // bad value falls back
	assert.True(t, cfg.IsProd)
	assert.Equal(t, 7, cfg.SyncAccountID)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "shop", DBPassword: "secret", DBHost: "db", DBPort: "3306", DBName: "store"}
	assert.Equal(t, "shop:secret@tcp(db:3306)/store?parseTime=true&loc=UTC", cfg.DSN())
}
