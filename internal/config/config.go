package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvConfigPath = "MENTORGO_CONFIG"
	EnvDBType     = "MENTORGO_DB"
	EnvStore      = "MENTORGO_STORE"
	EnvLLMAPIKey  = "MENTORGO_LLM_API_KEY"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	LLM         LLMConfig                 `json:"llm"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// Store selects the persistence backend: "sql" or "memory".
	Store string `json:"store"`
	// DBType picks the entry in Databases used by the sql store.
	DBType              string `json:"db_type"`
	LogFile             string `json:"log_file"`
	Debug               bool   `json:"debug"`
	HistoryLimit        int    `json:"history_limit"`
	TokenTTLHours       int    `json:"token_ttl_hours"`
	RateLimit           string `json:"rate_limit"`
	LoginMaxAttempts    int    `json:"login_max_attempts"`
	LoginLockoutMinutes int    `json:"login_lockout_minutes"`
	EnableHSTS          bool   `json:"enable_hsts"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// LLMConfig selects which provider backs reply generation, intent
// classification and session summaries. An empty provider disables the
// model path and every caller uses its deterministic fallback.
type LLMConfig struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

const (
	defaultServerAddress    = ":8090"
	defaultHistoryLimit     = 20
	defaultTokenTTLHours    = 24
	defaultRateLimit        = "100-H"
	defaultLoginMaxAttempts = 5
	defaultLoginLockout     = 15
	defaultLLMTimeout       = 30
)

// Load reads configuration from the provided path (defaults to config.json).
// A .env file next to the working directory is loaded first so that the
// environment overrides below can come from it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.BasicConfig.Store == "sql" {
		dbCfg, ok := cfg.Databases[cfg.BasicConfig.DBType]
		if !ok {
			return nil, fmt.Errorf("database config for %s not found", cfg.BasicConfig.DBType)
		}
		if isSQLite(cfg.BasicConfig.DBType) && dbCfg.DSN != "" && dbCfg.DSN != ":memory:" && !filepath.IsAbs(dbCfg.DSN) {
			dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
			cfg.Databases[cfg.BasicConfig.DBType] = dbCfg
		}
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvDBType)); v != "" {
		c.BasicConfig.DBType = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStore)); v != "" {
		c.BasicConfig.Store = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLLMAPIKey)); v != "" && c.LLM.Provider != "" {
		prov := c.Providers[c.LLM.Provider]
		prov.APIKey = v
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		c.Providers[c.LLM.Provider] = prov
	}
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = defaultServerAddress
	}
	b.Store = strings.ToLower(strings.TrimSpace(b.Store))
	if b.Store == "" {
		b.Store = "sql"
	}
	if b.DBType == "" {
		b.DBType = "sqlite3"
	}
	if b.HistoryLimit <= 0 {
		b.HistoryLimit = defaultHistoryLimit
	}
	if b.TokenTTLHours <= 0 {
		b.TokenTTLHours = defaultTokenTTLHours
	}
	if b.RateLimit == "" {
		b.RateLimit = defaultRateLimit
	}
	if b.LoginMaxAttempts <= 0 {
		b.LoginMaxAttempts = defaultLoginMaxAttempts
	}
	if b.LoginLockoutMinutes <= 0 {
		b.LoginLockoutMinutes = defaultLoginLockout
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
}

// Default returns a configuration suitable for tests and local runs: the
// in-memory store, no redis and no model provider.
func Default() *Config {
	cfg := &Config{
		BasicConfig: BasicConfig{Store: "memory"},
		Databases:   map[string]DatabaseConfig{"sqlite3": {DSN: ":memory:"}},
	}
	cfg.applyDefaults()
	return cfg
}

func isSQLite(dbType string) bool {
	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
