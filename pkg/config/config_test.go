package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLoanDefaults(t *testing.T) {
	t.Setenv("LOANS_PERSONAL_QUOTA", "0")
	t.Setenv("LOANS_DUE_HOUR", "42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"15-12", "15-03", "15-06"}, cfg.Loans.TrimesterCutoffs)
	assert.Equal(t, 5, cfg.Loans.PersonalQuota)
	assert.Equal(t, 9, cfg.Loans.DueHour)
	assert.Equal(t, 10*time.Second, cfg.Loans.TxTimeout)
	assert.False(t, cfg.Loans.SoftCancel)
}

func TestLoadLoanOverrides(t *testing.T) {
	t.Setenv("LOANS_TRIMESTER_CUTOFFS", "20-12, 20-03 ,30-06")
	t.Setenv("LOANS_SOFT_CANCEL", "true")
	t.Setenv("LOANS_TX_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"20-12", "20-03", "30-06"}, cfg.Loans.TrimesterCutoffs)
	assert.True(t, cfg.Loans.SoftCancel)
	assert.Equal(t, 3*time.Second, cfg.Loans.TxTimeout)
}

func TestLoansConfigLocationFallback(t *testing.T) {
	assert.Equal(t, time.UTC, LoansConfig{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, time.UTC, LoansConfig{}.Location())
}

func TestLoadNestedKeys(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("NOTIFICATIONS_WORKERS", "4")
	t.Setenv("CACHE_QUOTA_TTL", "30s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 4, cfg.Notifications.Workers)
	assert.Equal(t, 30*time.Second, cfg.Cache.QuotaTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadRejectsDevSecretInProduction(t *testing.T) {
	t.Setenv("ENV", EnvProduction)

	_, err := Load()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.Env)
}
