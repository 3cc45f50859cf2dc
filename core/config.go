package core

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for the API process.
type Config struct {
	Port                     string   `yaml:"port"`                        // HTTP listen port (e.g., "8080")
	LogDir                   string   `yaml:"log_dir"`                     // Directory to write application logs
	LogLevel                 string   `yaml:"log_level"`                   // zerolog level name
	DatabaseURL              string   `yaml:"database_url"`                // PostgreSQL DSN; empty uses the in-memory store
	DBMaxConns               int      `yaml:"db_max_conns"`                // pgx pool size
	DBConnectTimeoutMs       int      `yaml:"db_connect_timeout_ms"`       // connect and ping deadline in milliseconds
	RedisURL                 string   `yaml:"redis_url"`                   // Redis URL for the identity cache; empty disables it
	JWTSecret                string   `yaml:"jwt_secret"`                  // base64 HS256 signing secret (>= 32 bytes decoded)
	TokenValidityMs          int      `yaml:"token_validity_ms"`           // access token lifetime in milliseconds
	TokenCookieName          string   `yaml:"token_cookie_name"`           // cookie checked when no bearer header is sent
	TokenCookieEnabled       bool     `yaml:"token_cookie_enabled"`        // set the token cookie on register/login
	CookieSecure             bool     `yaml:"cookie_secure"`               // Secure flag on token and CSRF cookies
	CookieSameSite           string   `yaml:"cookie_samesite"`             // SameSite policy: Strict/Lax/None
	SessionKey               string   `yaml:"session_key"`                 // CSRF session cookie signing key
	AllowedOrigins           []string `yaml:"allowed_origins"`             // allowed origins for CORS/CSRF origin check
	BcryptCost               int      `yaml:"bcrypt_cost"`                 // bcrypt work factor
	IdentityCacheTTLMs       int      `yaml:"identity_cache_ttl_ms"`       // redis identity cache TTL in milliseconds
	BootstrapAdminEnabled    bool     `yaml:"bootstrap_admin"`             // create an ADMIN identity at startup when none exists
	InitialAdminPasswordPath string   `yaml:"initial_admin_password_path"` // where to write generated admin password (if empty -> log output)
}

func defaultConfig() Config {
	return Config{
		Port:                  "8080",
		LogDir:                "./logs",
		LogLevel:              "info",
		DBMaxConns:            10,
		DBConnectTimeoutMs:    5000,
		TokenValidityMs:       int(DefaultTokenValidity / time.Millisecond),
		TokenCookieName:       DefaultTokenCookieName,
		CookieSameSite:        "Strict",
		SessionKey:            "change-this-session-key",
		BcryptCost:            10,
		IdentityCacheTTLMs:    60000,
		BootstrapAdminEnabled: true,
	}
}

// Load builds Config from defaults, then the YAML file named by CONFIG_FILE
// (if any), then environment variables.
func Load() (Config, error) {
	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = firstNonEmpty(os.Getenv("PORT"), cfg.Port)
	cfg.LogDir = firstNonEmpty(os.Getenv("LOG_DIR"), cfg.LogDir)
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), cfg.LogLevel)
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_URL"), cfg.DatabaseURL)
	cfg.DBMaxConns = intFromEnv("DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.DBConnectTimeoutMs = intFromEnv("DB_CONNECT_TIMEOUT_MS", cfg.DBConnectTimeoutMs)
	cfg.RedisURL = firstNonEmpty(os.Getenv("REDIS_URL"), cfg.RedisURL)
	cfg.JWTSecret = firstNonEmpty(os.Getenv("JWT_SECRET"), cfg.JWTSecret)
	cfg.TokenValidityMs = intFromEnv("TOKEN_VALIDITY_MS", cfg.TokenValidityMs)
	cfg.TokenCookieName = firstNonEmpty(os.Getenv("TOKEN_COOKIE_NAME"), cfg.TokenCookieName)
	cfg.TokenCookieEnabled = boolFromEnv("TOKEN_COOKIE_ENABLED", cfg.TokenCookieEnabled)
	cfg.CookieSecure = boolFromEnv("COOKIE_SECURE", cfg.CookieSecure)
	cfg.CookieSameSite = firstNonEmpty(os.Getenv("COOKIE_SAMESITE"), cfg.CookieSameSite)
	cfg.SessionKey = firstNonEmpty(os.Getenv("SESSION_KEY"), cfg.SessionKey)
	if origins := parseCSV(os.Getenv("ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	cfg.BcryptCost = intFromEnv("BCRYPT_COST", cfg.BcryptCost)
	cfg.IdentityCacheTTLMs = intFromEnv("IDENTITY_CACHE_TTL_MS", cfg.IdentityCacheTTLMs)
	cfg.BootstrapAdminEnabled = boolFromEnv("BOOTSTRAP_ADMIN", cfg.BootstrapAdminEnabled)
	cfg.InitialAdminPasswordPath = firstNonEmpty(os.Getenv("INITIAL_ADMIN_PASSWORD_PATH"), cfg.InitialAdminPasswordPath)
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if _, err := decodeSecret(c.JWTSecret); err != nil {
		return fmt.Errorf("JWT_SECRET: %w", err)
	}
	if c.TokenValidityMs <= 0 {
		return errors.New("TOKEN_VALIDITY_MS must be positive")
	}
	if strings.TrimSpace(c.TokenCookieName) == "" {
		return errors.New("TOKEN_COOKIE_NAME must not be empty")
	}
	if c.DatabaseURL != "" && (c.DBMaxConns <= 0 || c.DBConnectTimeoutMs <= 0) {
		return errors.New("DB_MAX_CONNS and DB_CONNECT_TIMEOUT_MS must be positive")
	}
	return nil
}

// TokenValidity is the access token lifetime.
func (c Config) TokenValidity() time.Duration {
	return time.Duration(c.TokenValidityMs) * time.Millisecond
}

// DBConnectTimeout bounds the initial database connect and ping.
func (c Config) DBConnectTimeout() time.Duration {
	return time.Duration(c.DBConnectTimeoutMs) * time.Millisecond
}

// TokenCookie is the cookie the principal resolver falls back to, or "" when
// token cookies are disabled.
func (c Config) TokenCookie() string {
	if !c.TokenCookieEnabled {
		return ""
	}
	return c.TokenCookieName
}

// IdentityCacheTTL is how long resolved identities stay in redis.
func (c Config) IdentityCacheTTL() time.Duration {
	return time.Duration(c.IdentityCacheTTLMs) * time.Millisecond
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// boolFromEnv reads a boolean from env var name, falling back to defaultVal when empty or invalid.
func boolFromEnv(name string, defaultVal bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// intFromEnv reads an int from env var name, falling back to defaultVal when empty or invalid.
func intFromEnv(name string, defaultVal int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// parseCSV splits comma-separated list and trims spaces; empty entries are skipped.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
