package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Backend（ホスト型認証サービス）
	SupabaseURL       string        `env:"SUPABASE_URL,required,notEmpty"`
	SupabaseAnonKey   string        `env:"SUPABASE_ANON_KEY,required,notEmpty"`
	BackendTimeout    time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
	BackendMaxRetries int           `env:"BACKEND_MAX_RETRIES" envDefault:"2"`
	OAuthProviders    []string      `env:"OAUTH_PROVIDERS" envSeparator:"," envDefault:"google,facebook"`

	// Session
	SessionSecret         string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionMaxAge         int           `env:"SESSION_MAX_AGE" envDefault:"604800"`
	SessionInitTimeout    time.Duration `env:"SESSION_INIT_TIMEOUT" envDefault:"10s"`
	SessionInitMaxRetries int           `env:"SESSION_INIT_MAX_RETRIES" envDefault:"3"`
	StoreIdleTTL          time.Duration `env:"STORE_IDLE_TTL" envDefault:"30m"`
	StoreSweepInterval    time.Duration `env:"STORE_SWEEP_INTERVAL" envDefault:"5m"`

	// Rate Limit（req/min/ブラウザセッション）
	RateLimitGeneral  int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitAuthForm int `env:"RATE_LIMIT_AUTH_FORM" envDefault:"10"`

	// FIPE
	FipeBaseURL   string        `env:"FIPE_BASE_URL" envDefault:"https://parallelum.com.br/fipe/api/v1"`
	FipeTimeout   time.Duration `env:"FIPE_TIMEOUT" envDefault:"10s"`
	FipeRateLimit float64       `env:"FIPE_RATE_LIMIT" envDefault:"5"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	// PORTはホスティング環境が割り当てるポート。設定されている場合はSERVER_PORTより優先する。
	Port            string        `env:"PORT"`
	ServerPort      string        `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL         string        `env:"BASE_URL,required,notEmpty"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`

	// Cookie
	// CookieSecureはBASE_URLがhttpsの場合にtrueになる。
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込むが、既に設定済みの環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if cfg.Port != "" {
		cfg.ServerPort = cfg.Port
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.SupabaseURL = strings.TrimRight(cfg.SupabaseURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は値の組み合わせを検証する。
func (c *Config) validate() error {
	for name, raw := range map[string]string{"BASE_URL": c.BaseURL, "SUPABASE_URL": c.SupabaseURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL: %q", name, raw)
		}
	}
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitAuthForm <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.SessionInitMaxRetries < 0 || c.BackendMaxRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	return nil
}
