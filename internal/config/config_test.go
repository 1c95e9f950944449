package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"TODOCLAW_TELEGRAM_TOKEN",
	"TELEGRAM_BOT_TOKEN",
	"TODOCLAW_TELEGRAM_PROXY",
	"TODOCLAW_TELEGRAM_ENABLED",
	"TODOCLAW_WEB_ENABLED",
	"TODOCLAW_GATEWAY_PORT",
	"TODOCLAW_STORE_PATH",
	"TODOCLAW_DAILY_TIME",
	"TODOCLAW_TIMEZONE",
	"TODOCLAW_OVERDUE_THRESHOLD",
	"TODOCLAW_RETENTION_DAYS",
	"TODOCLAW_LOG_LEVEL",
	"TODOCLAW_LOG_FORMAT",
}

// isolate points HOME at a temp dir and unsets every override. t.Setenv
// restores the original values when the test ends.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	return home
}

func writeConfig(t *testing.T, home string, v any) {
	t.Helper()
	dir := filepath.Join(home, ".todoclaw")
	require.NoError(t, os.MkdirAll(dir, 0755))
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), data, 0644))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultHost, cfg.Gateway.Host)
	assert.Equal(t, DefaultPort, cfg.Gateway.Port)
	assert.Equal(t, "09:00", cfg.Reminders.DailyTime)
	assert.Equal(t, "Local", cfg.Reminders.Timezone)
	assert.Equal(t, 5, cfg.Reminders.OverdueThreshold)
	assert.Equal(t, 30, cfg.Reminders.RetentionDays)
	assert.Equal(t, "0 * * * *", cfg.Reminders.SnoozeCheck)
	assert.Equal(t, "0 2 * * 0", cfg.Reminders.Cleanup)
	assert.Equal(t, 50, cfg.Tasks.ListLimit)
	assert.Equal(t, 20, cfg.Tasks.DefaultLimit)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_NoFile(t *testing.T) {
	home := isolate(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".todoclaw", "data", "todoclaw.db"), cfg.Store.Path)
	assert.Equal(t, DefaultDailyTime, cfg.Reminders.DailyTime)
}

func TestLoadConfig_FromFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, home, map[string]any{
		"channels": map[string]any{
			"telegram": map[string]any{"enabled": true, "token": "123:abc", "allowFrom": []string{"42"}},
		},
		"reminders": map[string]any{
			"dailyTime":        "08:30",
			"timezone":         "UTC",
			"overdueThreshold": 3,
		},
		"tasks": map[string]any{"listLimit": 10},
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Channels.Telegram.Enabled)
	assert.Equal(t, "123:abc", cfg.Channels.Telegram.Token)
	assert.Equal(t, []string{"42"}, cfg.Channels.Telegram.AllowFrom)
	assert.Equal(t, "08:30", cfg.Reminders.DailyTime)
	assert.Equal(t, 3, cfg.Reminders.OverdueThreshold)
	// unspecified fields keep their defaults
	assert.Equal(t, 30, cfg.Reminders.RetentionDays)
	assert.Equal(t, 10, cfg.Tasks.ListLimit)
	assert.Equal(t, DefaultTaskLimit, cfg.Tasks.DefaultLimit)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("TODOCLAW_TELEGRAM_TOKEN", "env-token")
	t.Setenv("TODOCLAW_TELEGRAM_ENABLED", "true")
	t.Setenv("TODOCLAW_STORE_PATH", "/tmp/tasks.db")
	t.Setenv("TODOCLAW_TIMEZONE", "UTC")
	t.Setenv("TODOCLAW_OVERDUE_THRESHOLD", "7")
	t.Setenv("TODOCLAW_RETENTION_DAYS", "14")
	t.Setenv("TODOCLAW_GATEWAY_PORT", "9000")
	t.Setenv("TODOCLAW_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Channels.Telegram.Token)
	assert.True(t, cfg.Channels.Telegram.Enabled)
	assert.Equal(t, "/tmp/tasks.db", cfg.Store.Path)
	assert.Equal(t, "UTC", cfg.Reminders.Timezone)
	assert.Equal(t, 7, cfg.Reminders.OverdueThreshold)
	assert.Equal(t, 14, cfg.Reminders.RetentionDays)
	assert.Equal(t, 9000, cfg.Gateway.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_TokenPriority(t *testing.T) {
	isolate(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "fallback")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "fallback", cfg.Channels.Telegram.Token)

	t.Setenv("TODOCLAW_TELEGRAM_TOKEN", "primary")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Channels.Telegram.Token)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".todoclaw")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("TODOCLAW_TELEGRAM_TOKEN=from-dotenv\nTODOCLAW_DAILY_TIME=07:15\n"), 0644))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Channels.Telegram.Token)
	assert.Equal(t, "07:15", cfg.Reminders.DailyTime)
}

func TestLoadConfig_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".todoclaw")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TODOCLAW_TIMEZONE=Asia/Tokyo\n"), 0644))
	t.Setenv("TODOCLAW_TIMEZONE", "UTC")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Reminders.Timezone)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".todoclaw")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{invalid"), 0644))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	home := isolate(t)
	writeConfig(t, home, map[string]any{
		"reminders": map[string]any{"dailyTime": "25:99", "timezone": "Mars/Olympus"},
	})

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dailyTime")
	assert.Contains(t, err.Error(), "timezone")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Reminders.OverdueThreshold = 0 }},
		{"negative retention", func(c *Config) { c.Reminders.RetentionDays = -1 }},
		{"bad snooze schedule", func(c *Config) { c.Reminders.SnoozeCheck = "every hour" }},
		{"bad cleanup schedule", func(c *Config) { c.Reminders.Cleanup = "* *" }},
		{"telegram without token", func(c *Config) { c.Channels.Telegram.Enabled = true }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRemindersConfig_Helpers(t *testing.T) {
	r := RemindersConfig{DailyTime: "08:05", Timezone: "UTC", RetentionDays: 30}

	spec, err := r.DailySchedule()
	require.NoError(t, err)
	assert.Equal(t, "5 8 * * *", spec)

	loc, err := r.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	assert.Equal(t, 30*24*time.Hour, r.Retention())

	local, err := RemindersConfig{Timezone: "Local"}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, local)
}

func TestSaveConfig(t *testing.T) {
	home := isolate(t)

	cfg := DefaultConfig()
	cfg.Reminders.DailyTime = "10:00"
	require.NoError(t, SaveConfig(cfg))

	data, err := os.ReadFile(filepath.Join(home, ".todoclaw", "config.json"))
	require.NoError(t, err)

	var loaded Config
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, "10:00", loaded.Reminders.DailyTime)
}

func TestCronStatePath(t *testing.T) {
	home := isolate(t)
	assert.Equal(t, filepath.Join(home, ".todoclaw", "data", "cron", "state.json"), CronStatePath())
}
