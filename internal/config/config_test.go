package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("PORT", "")
	t.Setenv("RECONCILE_TIMEOUT", "")
	t.Setenv("TIMEZONE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8111", cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Server.ReconcileTimeout)
	assert.False(t, cfg.Engine.BucketDangling)
	assert.False(t, cfg.Engine.ReconcileLegacyToUncategorized)

	loc, err := cfg.Engine.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("SUMMARY_BUCKET_DANGLING", "true")
	t.Setenv("RECONCILE_LEGACY_TO_UNCATEGORIZED", "1")
	t.Setenv("TIMEZONE", "Australia/Melbourne")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.True(t, cfg.Engine.BucketDangling)
	assert.True(t, cfg.Engine.ReconcileLegacyToUncategorized)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("backend", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "redis")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("firestore without project", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "firestore")
		t.Setenv("GOOGLE_CLOUD_PROJECT", "")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("timezone", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "memory")
		t.Setenv("TIMEZONE", "Mars/Olympus")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "app", Password: "p@ss", DBName: "spending", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/spending?sslmode=disable", d.DSN())

	d.URL = "postgres://override"
	assert.Equal(t, "postgres://override", d.DSN())
}
