package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/volunteerbot/core/config"
	coredatabase "github.com/m3rciful/volunteerbot/core/database"
)

const sampleYAML = `
telegram:
  token: "yaml-token"
logging:
  level: debug
database:
  driver: sqlite
  path: ":memory:"
sessions:
  backend: database
bot:
  admins: [10, 20]
  rewards:
    small: 2
    medium: 4
    big: 8
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesYAMLAndEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("PRE_DEFINED_ADMINS", "7,8")
	t.Setenv("BIG_REWARD", "11")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, coreconfig.RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, []int64{7, 8}, cfg.Bot.Admins)
	assert.Equal(t, RewardsConfig{Small: 2, Medium: 4, Big: 11}, cfg.Bot.Rewards)
	assert.Equal(t, coredatabase.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, SessionsDatabase, cfg.Sessions.Backend)
	assert.Equal(t, CacheLRU, cfg.Cache.Backend)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{
		Config:   coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t"}},
		Database: coredatabase.Config{Driver: "sqlite", Path: "bot.db"},
	}
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, SessionsMemory, cfg.Sessions.Backend)
	assert.Equal(t, 1024, cfg.Cache.Size)
	assert.Equal(t, 500*time.Millisecond, cfg.Cache.Timeout())
	assert.Equal(t, RewardsConfig{Small: 1, Medium: 3, Big: 5}, cfg.Bot.Rewards)
	assert.Equal(t, 100, cfg.Bot.BroadcastPage)
	assert.Zero(t, cfg.Bot.FeedbackDelay())
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	base := func() *Config {
		return &Config{
			Config:   coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t"}},
			Database: coredatabase.Config{Driver: "sqlite", Path: "bot.db"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sessions backend", func(c *Config) { c.Sessions.Backend = "redis" }},
		{"cache backend", func(c *Config) { c.Cache.Backend = "disk" }},
		{"memcached without servers", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"negative reward", func(c *Config) { c.Bot.Rewards.Small = -1 }},
		{"negative delay", func(c *Config) { c.Bot.FeedbackDelayMS = -5 }},
		{"negative sender workers", func(c *Config) { c.Sender.Workers = -1 }},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
		{"missing sqlite path", func(c *Config) { c.Database.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, Normalize(cfg))
		})
	}
}

func TestSenderOptions(t *testing.T) {
	opts := SenderConfig{Workers: 2, QueueSize: 16, MaxRetries: 3, RetryBackoffMS: 250}.Options()
	assert.Equal(t, 2, opts.Workers)
	assert.Equal(t, 16, opts.QueueSize)
	assert.Equal(t, 3, opts.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, opts.RetryBackoff)
}
