package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 18790
	DefaultBufSize          = 100
	DefaultDailyTime        = "09:00"
	DefaultTimezone         = "Local"
	DefaultOverdueThreshold = 5
	DefaultRetentionDays    = 30
	DefaultSnoozeCheck      = "0 * * * *"
	DefaultCleanup          = "0 2 * * 0"
	DefaultListLimit        = 50
	DefaultTaskLimit        = 20
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
)

type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	Gateway   GatewayConfig   `json:"gateway"`
	Store     StoreConfig     `json:"store"`
	Reminders RemindersConfig `json:"reminders"`
	Tasks     TasksConfig     `json:"tasks"`
	Log       LogConfig       `json:"log"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Web      WebConfig      `json:"web"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type WebConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type StoreConfig struct {
	Path string `json:"path"`
}

type RemindersConfig struct {
	DailyTime        string `json:"dailyTime"`
	Timezone         string `json:"timezone"`
	OverdueThreshold int    `json:"overdueThreshold"`
	RetentionDays    int    `json:"retentionDays"`
	SnoozeCheck      string `json:"snoozeCheck"`
	Cleanup          string `json:"cleanup"`
}

type TasksConfig struct {
	ListLimit    int `json:"listLimit"`
	DefaultLimit int `json:"defaultLimit"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "console" or "json"
}

func DefaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Store: StoreConfig{
			Path: filepath.Join(DataDir(), "todoclaw.db"),
		},
		Reminders: RemindersConfig{
			DailyTime:        DefaultDailyTime,
			Timezone:         DefaultTimezone,
			OverdueThreshold: DefaultOverdueThreshold,
			RetentionDays:    DefaultRetentionDays,
			SnoozeCheck:      DefaultSnoozeCheck,
			Cleanup:          DefaultCleanup,
		},
		Tasks: TasksConfig{
			ListLimit:    DefaultListLimit,
			DefaultLimit: DefaultTaskLimit,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".todoclaw")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func DataDir() string {
	return filepath.Join(ConfigDir(), "data")
}

// CronStatePath is where the scheduler keeps per-job run state.
func CronStatePath() string {
	return filepath.Join(DataDir(), "cron", "state.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	fillDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv reads .env from the working directory and the config dir.
// Variables already present in the environment win.
func loadDotEnv() error {
	for _, path := range []string{".env", filepath.Join(ConfigDir(), ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if token := os.Getenv("TODOCLAW_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" && cfg.Channels.Telegram.Token == "" {
		cfg.Channels.Telegram.Token = token
	}
	if proxy := os.Getenv("TODOCLAW_TELEGRAM_PROXY"); proxy != "" {
		cfg.Channels.Telegram.Proxy = proxy
	}
	if enabled := os.Getenv("TODOCLAW_TELEGRAM_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Channels.Telegram.Enabled = parsed
		}
	}
	if enabled := os.Getenv("TODOCLAW_WEB_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Channels.Web.Enabled = parsed
		}
	}
	if port := os.Getenv("TODOCLAW_GATEWAY_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	}
	if path := os.Getenv("TODOCLAW_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if daily := os.Getenv("TODOCLAW_DAILY_TIME"); daily != "" {
		cfg.Reminders.DailyTime = daily
	}
	if tz := os.Getenv("TODOCLAW_TIMEZONE"); tz != "" {
		cfg.Reminders.Timezone = tz
	}
	if threshold := os.Getenv("TODOCLAW_OVERDUE_THRESHOLD"); threshold != "" {
		if parsed, err := strconv.Atoi(threshold); err == nil {
			cfg.Reminders.OverdueThreshold = parsed
		}
	}
	if days := os.Getenv("TODOCLAW_RETENTION_DAYS"); days != "" {
		if parsed, err := strconv.Atoi(days); err == nil {
			cfg.Reminders.RetentionDays = parsed
		}
	}
	if level := os.Getenv("TODOCLAW_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := os.Getenv("TODOCLAW_LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
}

func fillDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = def.Store.Path
	}
	if cfg.Reminders.DailyTime == "" {
		cfg.Reminders.DailyTime = DefaultDailyTime
	}
	if cfg.Reminders.Timezone == "" {
		cfg.Reminders.Timezone = DefaultTimezone
	}
	if cfg.Reminders.SnoozeCheck == "" {
		cfg.Reminders.SnoozeCheck = DefaultSnoozeCheck
	}
	if cfg.Reminders.Cleanup == "" {
		cfg.Reminders.Cleanup = DefaultCleanup
	}
	if cfg.Tasks.ListLimit <= 0 {
		cfg.Tasks.ListLimit = DefaultListLimit
	}
	if cfg.Tasks.DefaultLimit <= 0 {
		cfg.Tasks.DefaultLimit = DefaultTaskLimit
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func (c *Config) Validate() error {
	var errs []error
	if _, _, err := parseClock(c.Reminders.DailyTime); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Reminders.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Reminders.OverdueThreshold <= 0 {
		errs = append(errs, fmt.Errorf("reminders.overdueThreshold must be positive, got %d", c.Reminders.OverdueThreshold))
	}
	if c.Reminders.RetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("reminders.retentionDays must be positive, got %d", c.Reminders.RetentionDays))
	}
	if _, err := rcron.ParseStandard(c.Reminders.SnoozeCheck); err != nil {
		errs = append(errs, fmt.Errorf("reminders.snoozeCheck: %w", err))
	}
	if _, err := rcron.ParseStandard(c.Reminders.Cleanup); err != nil {
		errs = append(errs, fmt.Errorf("reminders.cleanup: %w", err))
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		errs = append(errs, errors.New("channels.telegram.token is required when telegram is enabled"))
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Location resolves the reminder timezone. "Local" and "" mean the host zone.
func (r RemindersConfig) Location() (*time.Location, error) {
	if r.Timezone == "" || strings.EqualFold(r.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}
	return loc, nil
}

// DailySchedule turns dailyTime into a cron expression.
func (r RemindersConfig) DailySchedule() (string, error) {
	h, m, err := parseClock(r.DailyTime)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

func (r RemindersConfig) Retention() time.Duration {
	return time.Duration(r.RetentionDays) * 24 * time.Hour
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("reminders.dailyTime %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
