package core

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CONFIG_FILE", "PORT", "JWT_SECRET", "TOKEN_VALIDITY_MS", "TOKEN_COOKIE_NAME",
		"TOKEN_COOKIE_ENABLED", "ALLOWED_ORIGINS", "BCRYPT_COST", "DATABASE_URL", "POSTGRES_URL",
		"DB_MAX_CONNS", "DB_CONNECT_TIMEOUT_MS"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.TokenCookieName != "token" || cfg.BcryptCost != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TokenValidity() != 1440*time.Second {
		t.Fatalf("TokenValidity = %v", cfg.TokenValidity())
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("config without JWT_SECRET validated")
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
port: "9090"
jwt_secret: "` + testSecret + `"
token_validity_ms: 60000
token_cookie_enabled: true
allowed_origins:
  - https://app.example.com
bcrypt_cost: 12
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	clearConfigEnv(t)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("TOKEN_COOKIE_ENABLED", "not-a-bool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("env should override file port, got %q", cfg.Port)
	}
	if cfg.BcryptCost != 12 || cfg.TokenValidity() != time.Minute {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if !cfg.TokenCookieEnabled {
		t.Fatalf("invalid env bool should keep the file value")
	}
	if want := []string{"https://a.example.com", "https://b.example.com"}; !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [unterminated"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatalf("malformed yaml accepted")
	}
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.JWTSecret = testSecret
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cfg.TokenValidityMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero validity accepted")
	}
	cfg = defaultConfig()
	cfg.JWTSecret = "c2hvcnQ="
	if err := cfg.Validate(); err == nil {
		t.Fatalf("short secret accepted")
	}
}

func TestConfigDatabaseSettings(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBMaxConns != 10 || cfg.DBConnectTimeout() != 5*time.Second {
		t.Fatalf("db defaults: max=%d timeout=%v", cfg.DBMaxConns, cfg.DBConnectTimeout())
	}

	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("DB_CONNECT_TIMEOUT_MS", "1500")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBMaxConns != 4 || cfg.DBConnectTimeout() != 1500*time.Millisecond {
		t.Fatalf("db env: max=%d timeout=%v", cfg.DBMaxConns, cfg.DBConnectTimeout())
	}

	cfg.JWTSecret = testSecret
	cfg.DatabaseURL = "postgres://app@localhost/finance"
	cfg.DBMaxConns = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero pool size accepted with a database url")
	}
}

func TestConfigTokenCookie(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.TokenCookie(); got != "" {
		t.Fatalf("disabled cookie name = %q", got)
	}
	cfg.TokenCookieEnabled = true
	cfg.TokenCookieName = "ft_token"
	if got := cfg.TokenCookie(); got != "ft_token" {
		t.Fatalf("enabled cookie name = %q", got)
	}
}
