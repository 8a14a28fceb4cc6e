package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "5")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOriginList())
	assert.False(t, cfg.UsePostgres())
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MAIL_FROM_NAME=Cone Crew\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MAIL_FROM_NAME") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Cone Crew", cfg.MailFromName)
}

func TestValidate(t *testing.T) {
	cfg := &Config{PlacesRPS: 1, PublicBaseURL: "http://x", SupabaseServiceKey: "k"}
	assert.Error(t, cfg.Validate())

	cfg.SupabaseURL = "https://project.supabase.co"
	assert.NoError(t, cfg.Validate())
}

func TestLoadCatalog(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)
	require.Len(t, cat.Badges, 2)
	require.Len(t, cat.Quests, 1)
	assert.Equal(t, "choc-lover", cat.Quests[0].Badge)
	assert.Equal(t, "chocolate", cat.Quests[0].Objectives[1].Category)
	require.NotNil(t, cat.Quests[0].EndsAt)
}

func TestLoadCatalog_UnknownBadge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quests:\n  - title: x\n    badge: nope\n"), 0o600))
	_, err := LoadCatalog(path)
	assert.Error(t, err)
}
