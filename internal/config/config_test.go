package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"REDEMPTION_TTL", "ELECTION_PERIOD_DAYS", "WALLET_CACHE_TTL", "AUTO_MIGRATE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	require.NotNil(t, cfg)

	assert.Equal(t, 72*time.Hour, cfg.RedemptionTTL)
	assert.Equal(t, 1460, cfg.ElectionPeriodDays)
	assert.Equal(t, time.Minute, cfg.WalletCacheTTL)
	assert.False(t, cfg.AutoMigrate)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDEMPTION_TTL", "24h")
	t.Setenv("ELECTION_PERIOD_DAYS", "1825")
	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.org, https://b.example.org,")
	t.Setenv("ENV", "production")

	cfg := Load()

	assert.Equal(t, 24*time.Hour, cfg.RedemptionTTL)
	assert.Equal(t, 1825, cfg.ElectionPeriodDays)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.AllowedOrigins)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}

func TestParseIntRejectsNonPositive(t *testing.T) {
	assert.Equal(t, 1460, parseInt("0", 1460))
	assert.Equal(t, 1460, parseInt("-5", 1460))
	assert.Equal(t, 1460, parseInt("abc", 1460))
	assert.Equal(t, 7, parseInt("7", 1460))
}
