package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all environment-sourced settings. Values are parsed and
// validated once at startup; components receive what they need at
// construction time and never read the environment themselves.
type Config struct {
	AppPort       string `env:"APP_PORT" envDefault:"3000"`
	BaseURL       string `env:"BASE_URL,required,notEmpty"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"*"`

	GoogleClientID     string `env:"GOOGLE_OAUTH_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_OAUTH_REDIRECT_URL"`

	WeChatAppID       string `env:"WECHAT_OAUTH_CLIENT_ID,required,notEmpty"`
	WeChatAppSecret   string `env:"WECHAT_OAUTH_CLIENT_SECRET,required,notEmpty"`
	WeChatLang        string `env:"WECHAT_LANG" envDefault:"cn"`
	WeChatEmailDomain string `env:"WECHAT_SYNTHETIC_EMAIL_DOMAIN" envDefault:"wechat.local"`
	WeChatDebug       bool   `env:"WECHAT_DEBUG" envDefault:"false"`

	AuthStateSecret string `env:"AUTH_STATE_SECRET,required,notEmpty"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	DatabaseDSN string `env:"DATABASE_DSN,required,notEmpty"`
}

func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if cfg.WeChatLang != "cn" && cfg.WeChatLang != "en" {
		return Config{}, fmt.Errorf("config: WECHAT_LANG must be cn or en, got %q", cfg.WeChatLang)
	}

	return cfg, nil
}
