package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/volunteerbot/core/config"
	coredatabase "github.com/m3rciful/volunteerbot/core/database"
	tgsender "github.com/m3rciful/volunteerbot/core/telegram/sender"
)

const (
	// SessionsMemory keeps conversation sessions in process memory.
	SessionsMemory = "memory"
	// SessionsDatabase keeps conversation sessions in the sessions table.
	SessionsDatabase = "database"

	// CacheLRU selects the in-process cache.
	CacheLRU = "lru"
	// CacheMemcached selects memcached.
	CacheMemcached = "memcached"
)

// SessionsConfig selects the conversation session backend.
type SessionsConfig struct {
	Backend string `yaml:"backend" envconfig:"SESSIONS_BACKEND"`
}

// CacheConfig configures the shared cache used by stores and the renderer.
type CacheConfig struct {
	Backend   string   `yaml:"backend" envconfig:"CACHE_BACKEND"`
	Servers   []string `yaml:"servers" envconfig:"MEMCACHED_HOSTS"`
	Prefix    string   `yaml:"prefix" envconfig:"CACHE_PREFIX"`
	TimeoutMS int      `yaml:"timeout_ms" envconfig:"CACHE_TIMEOUT_MS"`
	Size      int      `yaml:"size" envconfig:"CACHE_SIZE"`
}

// Timeout returns the memcached I/O timeout.
func (c CacheConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// RewardsConfig holds the balance granted per confirmed report size.
type RewardsConfig struct {
	Small  int64 `yaml:"small" envconfig:"SMALL_REWARD"`
	Medium int64 `yaml:"medium" envconfig:"MEDIUM_REWARD"`
	Big    int64 `yaml:"big" envconfig:"BIG_REWARD"`
}

// BotConfig holds volunteer bot behaviour settings.
type BotConfig struct {
	// Admins are Telegram user ids granted the admin role on first contact.
	Admins  []int64       `yaml:"admins" envconfig:"PRE_DEFINED_ADMINS"`
	Rewards RewardsConfig `yaml:"rewards"`
	// FeedbackDelayMS spaces out feedback messages sent to each admin.
	FeedbackDelayMS int `yaml:"feedback_delay_ms" envconfig:"FEEDBACK_DELAY_MS"`
	// BroadcastPage is how many volunteers are read per broadcast query.
	BroadcastPage int `yaml:"broadcast_page" envconfig:"BROADCAST_PAGE"`
}

// FeedbackDelay returns the pause between feedback deliveries.
func (b BotConfig) FeedbackDelay() time.Duration {
	return time.Duration(b.FeedbackDelayMS) * time.Millisecond
}

// SenderConfig tunes the outbound message dispatcher. Zero values take the dispatcher defaults.
type SenderConfig struct {
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
}

// Options converts the config into dispatcher options.
func (s SenderConfig) Options() tgsender.Options {
	return tgsender.Options{
		Workers:      s.Workers,
		QueueSize:    s.QueueSize,
		MaxRetries:   s.MaxRetries,
		RetryBackoff: time.Duration(s.RetryBackoffMS) * time.Millisecond,
	}
}

// Config is the volunteer bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Sessions SessionsConfig      `yaml:"sessions"`
	Cache    CacheConfig         `yaml:"cache"`
	Sender   SenderConfig        `yaml:"sender"`
	Bot      BotConfig           `yaml:"bot"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads the YAML file at path, applies the environment and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}
	if err := cfg.Database.Normalize(); err != nil {
		return err
	}

	cfg.Sessions.Backend = strings.ToLower(strings.TrimSpace(cfg.Sessions.Backend))
	switch cfg.Sessions.Backend {
	case "":
		cfg.Sessions.Backend = SessionsMemory
	case SessionsMemory, SessionsDatabase:
	default:
		return fmt.Errorf("invalid sessions.backend %q; allowed: memory, database", cfg.Sessions.Backend)
	}

	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	switch cfg.Cache.Backend {
	case "":
		cfg.Cache.Backend = CacheLRU
	case CacheLRU:
	case CacheMemcached:
		if len(cfg.Cache.Servers) == 0 {
			return fmt.Errorf("cache.servers is required when cache.backend is 'memcached'")
		}
	default:
		return fmt.Errorf("invalid cache.backend %q; allowed: lru, memcached", cfg.Cache.Backend)
	}
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Size = 1024
	}
	if cfg.Cache.TimeoutMS <= 0 {
		cfg.Cache.TimeoutMS = 500
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "volunteerbot:"
	}

	r := &cfg.Bot.Rewards
	if r.Small < 0 || r.Medium < 0 || r.Big < 0 {
		return fmt.Errorf("bot.rewards must not be negative")
	}
	if r.Small == 0 && r.Medium == 0 && r.Big == 0 {
		r.Small, r.Medium, r.Big = 1, 3, 5
	}
	if cfg.Bot.FeedbackDelayMS < 0 {
		return fmt.Errorf("bot.feedback_delay_ms must be >= 0")
	}
	if cfg.Sender.Workers < 0 || cfg.Sender.QueueSize < 0 || cfg.Sender.MaxRetries < 0 {
		return fmt.Errorf("sender settings must not be negative")
	}
	if cfg.Bot.BroadcastPage <= 0 {
		cfg.Bot.BroadcastPage = 100
	}
	return nil
}
