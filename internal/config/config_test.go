package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":2525", cfg.SMTP.BindAddr)
	assert.Equal(t, int64(10<<20), cfg.SMTP.MaxMessageSize)
	assert.Equal(t, 24*time.Hour, cfg.Inbox.Lifetime)
	assert.Equal(t, int64(5<<20), cfg.Attachment.MaxSize)
	assert.Equal(t, time.Hour, cfg.Reclaim.Interval)
	assert.Empty(t, cfg.Database.Type)
	assert.Empty(t, cfg.Redis.Address)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("POSTDROP_INBOX_LIFETIME_HOURS", "2")
	t.Setenv("POSTDROP_SMTP_MAX_MESSAGE_MB", "1")
	t.Setenv("POSTDROP_ATTACHMENT_MAX_SIZE_MB", "3")
	t.Setenv("POSTDROP_RECLAIM_INTERVAL_MINUTES", "15")
	t.Setenv("POSTDROP_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.Inbox.Lifetime)
	assert.Equal(t, int64(1<<20), cfg.SMTP.MaxMessageSize)
	assert.Equal(t, int64(3<<20), cfg.Attachment.MaxSize)
	assert.Equal(t, 15*time.Minute, cfg.Reclaim.Interval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadRejectsNonPositiveCeilings(t *testing.T) {
	t.Setenv("POSTDROP_SMTP_MAX_MESSAGE_MB", "0")

	_, err := Load()
	assert.Error(t, err)
}
