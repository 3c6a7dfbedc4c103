package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"course-access-bot/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token             string   `yaml:"token"`
	Mode              string   `yaml:"mode"` // polling only
	Username          string   `yaml:"username"`
	Workers           int      `yaml:"workers"`
	ApproverIDs       []int64  `yaml:"approver_ids"`
	ApproverUsernames []string `yaml:"approver_usernames"`
	PaymentInfo       string   `yaml:"payment_info"` // may contain {price}
	ActivationSite    string   `yaml:"activation_site"`
	RateLimit         int      `yaml:"rate_limit"`   // per user per command per minute
	MetricsPort       int      `yaml:"metrics_port"` // 0 disables the bot's /metrics listener
}

type APIConfig struct {
	Port           int           `yaml:"port"`
	AdminSecret    string        `yaml:"admin_secret"`
	AdminTokenTTL  time.Duration `yaml:"admin_token_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	StateTTL time.Duration `yaml:"state_ttl"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type StoreConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type SchedulerConfig struct {
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	AbandonAfter    time.Duration `yaml:"abandon_after"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Courses   []model.Course  `yaml:"courses"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads .env (if present), the YAML file at path, then applies
// environment overrides and defaults. A missing file is not an error so the
// services can run from environment alone.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("ADMIN_SECRET"); v != "" {
		cfg.API.AdminSecret = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("APPROVER_USERNAMES"); v != "" {
		cfg.Bot.ApproverUsernames = splitList(v)
	}
	if v := os.Getenv("APPROVER_IDS"); v != "" {
		ids := make([]int64, 0)
		for _, s := range splitList(v) {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("APPROVER_IDS: %w", err)
			}
			ids = append(ids, id)
		}
		cfg.Bot.ApproverIDs = ids
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "polling"
	}
	if cfg.Bot.RateLimit <= 0 {
		cfg.Bot.RateLimit = 20
	}
	if cfg.Bot.PaymentInfo == "" {
		cfg.Bot.PaymentInfo = defaultPaymentInfo
	}
	if cfg.Bot.ActivationSite == "" {
		cfg.Bot.ActivationSite = defaultActivationSite
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 5000
	}
	if cfg.API.AdminTokenTTL <= 0 {
		cfg.API.AdminTokenTTL = 30 * time.Minute
	}
	if cfg.API.RequestTimeout <= 0 {
		cfg.API.RequestTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.StateTTL <= 0 {
		cfg.Redis.StateTTL = 15 * time.Minute
	}
	if cfg.Redis.CacheTTL <= 0 {
		cfg.Redis.CacheTTL = time.Hour
	}
	if cfg.Store.Timeout <= 0 {
		cfg.Store.Timeout = 5 * time.Second
	}
	if cfg.Scheduler.JanitorInterval <= 0 {
		cfg.Scheduler.JanitorInterval = 30 * time.Minute
	}
	if cfg.Scheduler.AbandonAfter <= 0 {
		cfg.Scheduler.AbandonAfter = 24 * time.Hour
	}
	if len(cfg.Courses) == 0 {
		cfg.Courses = DefaultCourses()
	}
}

// ValidateBot checks what the Telegram process needs.
func (c *Config) ValidateBot() error {
	if c.Bot.Token == "" && !c.Runtime.Dev {
		return errors.New("bot.token is required")
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if len(c.Bot.ApproverIDs) == 0 && len(c.Bot.ApproverUsernames) == 0 {
		return errors.New("at least one of bot.approver_ids or bot.approver_usernames is required")
	}
	return nil
}

// ValidateAPI checks what the HTTP process needs.
func (c *Config) ValidateAPI() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	return nil
}

// Catalogue builds the immutable course table.
func (c *Config) Catalogue() (*model.Catalogue, error) {
	return model.NewCatalogue(c.Courses)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
