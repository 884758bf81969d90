package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("CHAT_HISTORY_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 20, cfg.Chat.HistoryLimit)
	assert.Equal(t, "log", cfg.Notify.Sink)
	assert.Equal(t, 10*time.Second, cfg.Notify.FCMTimeout)
	assert.Equal(t, "https://fcm.googleapis.com", cfg.Notify.FCMEndpoint)
	assert.Contains(t, cfg.DB.GetDSN(), "host=db.internal")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("NOTIFY_SINK", "redis")
	t.Setenv("DB_LOG_LEVEL", "silent")
	t.Setenv("OPENAI_TEMPERATURE", "0.7")
	t.Setenv("FCM_TIMEOUT", "3s")
	t.Setenv("FCM_PROJECT_ID", "gate-prod")
	t.Setenv("FCM_CREDENTIALS_FILE", "/etc/gate/fcm.json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Notify.Sink)
	assert.Equal(t, logger.Silent, cfg.DB.LogLevel)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 0.0001)
	assert.Equal(t, 3*time.Second, cfg.Notify.FCMTimeout)
	assert.Equal(t, "gate-prod", cfg.Notify.FCMProjectID)
	assert.Equal(t, "/etc/gate/fcm.json", cfg.Notify.FCMCredentialsFile)
}

func TestLoad_EmptySigningKey(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLocation_FallsBackToLocal(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Timezone: "Not/AZone"}}
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Server.Timezone = "UTC"
	assert.Equal(t, time.UTC, cfg.Location())
}
