// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultUpstreamURL = "https://grangy.ru/api"
	DefaultBotUsername = "maxvpn_offbot"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type UpstreamConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Secret   string        `yaml:"secret"`
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"` // multiplied by the attempt number
	Timeout  time.Duration `yaml:"timeout"`
}

type BotConfig struct {
	Token    string `yaml:"token"` // also signs mini-app init data
	Username string `yaml:"username"`
	Workers  int    `yaml:"workers"` // async notification workers
}

type ContactConfig struct {
	BotToken  string        `yaml:"bot_token"`
	ChatID    int64         `yaml:"chat_id"`
	RateLimit int           `yaml:"rate_limit"`
	Window    time.Duration `yaml:"window"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // plan cache
}

type CheckoutConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollDuration time.Duration `yaml:"max_poll_duration"` // negative polls until the page goes away
	PendingTTL      time.Duration `yaml:"pending_ttl"`
	SessionIdleTTL  time.Duration `yaml:"session_idle_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	AllowAnonymous  *bool         `yaml:"allow_anonymous"`
	Locale          string        `yaml:"locale"`
}

func (c CheckoutConfig) Anonymous() bool { return c.AllowAnonymous == nil || *c.AllowAnonymous }

type SessionConfig struct {
	Secret     string        `yaml:"secret"`
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Bot      BotConfig      `yaml:"bot"`
	Contact  ContactConfig  `yaml:"contact"`
	Redis    RedisConfig    `yaml:"redis"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Session  SessionConfig  `yaml:"session"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config and -dev and loads the file they point to.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Load(configPath, dev)
}

// Load reads a YAML file, applies environment overrides and defaults, then validates.
// A missing file is allowed when the environment carries everything required.
func Load(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Upstream.Attempts < 1 {
		return nil, errors.New("upstream.attempts must be at least 1")
	}
	if cfg.Session.Secret == "" && !dev {
		return nil, errors.New("session.secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	str(&cfg.Upstream.BaseURL, "API_URL")
	str(&cfg.Upstream.Secret, "API_SECRET")
	str(&cfg.Bot.Token, "BOT_TOKEN")
	str(&cfg.Contact.BotToken, "TELEGRAM_BOT_TOKEN")
	str(&cfg.Session.Secret, "SESSION_SECRET")
	str(&cfg.Redis.URL, "REDIS_URL")

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Contact.ChatID = id
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultUpstreamURL
	}
	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")
	if cfg.Upstream.Attempts == 0 {
		cfg.Upstream.Attempts = 3
	}
	if cfg.Upstream.Backoff <= 0 {
		cfg.Upstream.Backoff = time.Second
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = 15 * time.Second
	}
	if cfg.Bot.Username == "" {
		cfg.Bot.Username = DefaultBotUsername
	}
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 4
	}
	if cfg.Contact.BotToken == "" {
		cfg.Contact.BotToken = cfg.Bot.Token
	}
	if cfg.Contact.RateLimit <= 0 {
		cfg.Contact.RateLimit = 5
	}
	if cfg.Contact.Window <= 0 {
		cfg.Contact.Window = 10 * time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL, 5*time.Minute)
	if cfg.Checkout.PollInterval <= 0 {
		cfg.Checkout.PollInterval = 3 * time.Second
	}
	if cfg.Checkout.MaxPollDuration < 0 {
		cfg.Checkout.MaxPollDuration = 0
	} else if cfg.Checkout.MaxPollDuration == 0 {
		cfg.Checkout.MaxPollDuration = 30 * time.Minute
	}
	cfg.Checkout.PendingTTL = normalizeTTL(cfg.Checkout.PendingTTL, 24*time.Hour)
	cfg.Checkout.SessionIdleTTL = normalizeTTL(cfg.Checkout.SessionIdleTTL, time.Hour)
	if cfg.Checkout.JanitorInterval <= 0 {
		cfg.Checkout.JanitorInterval = time.Minute
	}
	if cfg.Checkout.Locale == "" {
		cfg.Checkout.Locale = "ru"
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "tg_session"
	}
	cfg.Session.TTL = normalizeTTL(cfg.Session.TTL, 7*24*time.Hour)
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
