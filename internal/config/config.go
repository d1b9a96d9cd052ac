package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultModel         = "gemini-3-flash-preview"
	DefaultServerAddress = ":8090"
	DefaultWorkspace     = "default"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	// APIKeyEnv names the environment variable holding the credential. The
	// credential itself never lives in the config file.
	APIKeyEnv string `json:"api_key_env"`
}

type BasicConfig struct {
	ServerAddress  string `json:"server_address"`
	Storage        string `json:"storage"`
	Workspace      string `json:"workspace"`
	ChatProvider   string `json:"chat_provider"`
	LogLevel       string `json:"log_level"`
	MaxWorkers     int    `json:"max_workers"`
	QueueSize      int    `json:"queue_size"`
	NewsCacheTTL   int    `json:"news_cache_ttl"` // minutes
	MaxUploadBytes int64  `json:"max_upload_bytes"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// Default returns a configuration that runs against a local SQLite file and Gemini.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:  DefaultServerAddress,
			Storage:        "sqlite3",
			Workspace:      DefaultWorkspace,
			ChatProvider:   "gemini",
			LogLevel:       "info",
			MaxWorkers:     4,
			QueueSize:      16,
			NewsCacheTTL:   60,
			MaxUploadBytes: 10 << 20,
		},
		Providers: map[string]ProviderConfig{
			"gemini": {Model: DefaultModel, APIKeyEnv: "GEMINI_API_KEY"},
			"openai": {Model: "gpt-4o-mini", APIKeyEnv: "OPENAI_API_KEY"},
			"claude": {Model: "claude-3-5-haiku-latest", APIKeyEnv: "ANTHROPIC_API_KEY"},
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "./data/arbejdsret.db"},
		},
		Redis: RedisConfig{Host: "127.0.0.1", Port: 6379, KeyPrefix: "arbejdsret"},
	}
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error; defaults are used instead.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		Logger.Debugf("no config file at %s, using defaults", absPath)
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.fillDefaults()

	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) && explicit {
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases["sqlite3"] = db
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the fields needed at startup are usable.
func (c *Config) Validate() error {
	switch strings.ToLower(c.BasicConfig.Storage) {
	case "sqlite", "sqlite3", "mysql":
		if _, ok := c.Databases[c.storageKey()]; !ok {
			return fmt.Errorf("database config for %s not found", c.BasicConfig.Storage)
		}
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported storage: %s", c.BasicConfig.Storage)
	}
	if _, ok := c.Providers["gemini"]; !ok {
		return errors.New("gemini provider must be configured")
	}
	if _, ok := c.Providers[c.BasicConfig.ChatProvider]; !ok {
		return fmt.Errorf("chat provider %s not configured", c.BasicConfig.ChatProvider)
	}
	if c.BasicConfig.MaxWorkers <= 0 {
		return errors.New("max_workers must be > 0")
	}
	if c.BasicConfig.QueueSize < 0 {
		return errors.New("queue_size cannot be negative")
	}
	return nil
}

// Provider returns the configuration for a provider name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	return p, ok
}

func (c *Config) storageKey() string {
	if strings.EqualFold(c.BasicConfig.Storage, "sqlite") {
		return "sqlite3"
	}
	return strings.ToLower(c.BasicConfig.Storage)
}

func (c *Config) applyEnv() {
	if v := getEnv("ARBEJDSRET_STORAGE", ""); v != "" {
		c.BasicConfig.Storage = v
	}
	if v := getEnv("ARBEJDSRET_WORKSPACE", ""); v != "" {
		c.BasicConfig.Workspace = v
	}
	if v := getEnv("ARBEJDSRET_ADDR", ""); v != "" {
		c.BasicConfig.ServerAddress = v
	}
	if v := getEnv("ARBEJDSRET_CHAT_PROVIDER", ""); v != "" {
		c.BasicConfig.ChatProvider = v
	}
	if v := getEnv("ARBEJDSRET_LOG_LEVEL", ""); v != "" {
		c.BasicConfig.LogLevel = v
	}
	if v := getEnv("ARBEJDSRET_MODEL", ""); v != "" {
		p := c.Providers["gemini"]
		p.Model = v
		c.Providers["gemini"] = p
	}
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if c.BasicConfig.Workspace == "" {
		c.BasicConfig.Workspace = DefaultWorkspace
	}
	if c.BasicConfig.Storage == "" {
		c.BasicConfig.Storage = def.BasicConfig.Storage
	}
	if c.BasicConfig.ChatProvider == "" {
		c.BasicConfig.ChatProvider = "gemini"
	}
	if c.BasicConfig.NewsCacheTTL <= 0 {
		c.BasicConfig.NewsCacheTTL = def.BasicConfig.NewsCacheTTL
	}
	if c.BasicConfig.MaxUploadBytes <= 0 {
		c.BasicConfig.MaxUploadBytes = def.BasicConfig.MaxUploadBytes
	}
	if c.Providers == nil {
		c.Providers = def.Providers
	}
	for name, p := range c.Providers {
		if p.Model == "" {
			p.Model = def.Providers[name].Model
		}
		if p.APIKeyEnv == "" {
			p.APIKeyEnv = def.Providers[name].APIKeyEnv
		}
		c.Providers[name] = p
	}
	if c.Databases == nil {
		c.Databases = def.Databases
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = def.Redis.KeyPrefix
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}
