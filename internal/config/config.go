// Package config は環境変数からサービスの設定を読み込む。
// カレントディレクトリに.envがあれば先に読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// devJWTSecret は開発時に使うデフォルトのJWTシークレット。
const devJWTSecret = "dev-secret-key"

// RetentionOff をNOTIFICATION_RETENTION_SCHEDULEに指定すると定期削除を無効にする。
// 空の値はデフォルトの"@daily"になるため、無効化には明示的な値が必要。
const RetentionOff = "off"

// Config はサービス全体の設定。
type Config struct {
	// Port はHTTPサーバーの待ち受けポート。
	Port string `env:"PORT" envDefault:"8080"`
	// DatabaseDriver は "sqlite" または "postgres"。
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	// DatabaseURL はドライバに渡すDSN。
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:crm.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"`
	// JWTSecret はHS256トークンの共有シークレット。
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-key"`
	// CORSAllowedOrigins はCORSを許可するオリジンの一覧。
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	// RateLimit はulule/limiter書式のIPごとのレート制限。
	RateLimit string `env:"RATE_LIMIT" envDefault:"100-M"`
	// RetentionDays より古い既読通知を定期削除の対象にする。
	RetentionDays int `env:"NOTIFICATION_RETENTION_DAYS" envDefault:"30"`
	// RetentionSchedule は定期削除のcron式。"off"なら定期削除しない。
	RetentionSchedule string `env:"NOTIFICATION_RETENTION_SCHEDULE" envDefault:"@daily"`
	// SideEffectTimeout はステージ変更後の通知処理全体のタイムアウト。
	SideEffectTimeout time.Duration `env:"SIDE_EFFECT_TIMEOUT" envDefault:"10s"`
	// WSSendBuffer は接続ごとの送信キューの長さ。
	WSSendBuffer int `env:"WS_SEND_BUFFER" envDefault:"64"`
	// LogLevel はdebug/info/warn/error。
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は.envと環境変数から設定を読み込み、検証する。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(".envの読み込みに失敗: %w", err)
	}

	cfg, err := parse(env.Options{})
	if err != nil {
		return nil, err
	}
	if cfg.JWTSecret == devJWTSecret {
		log.Warn("開発用のJWTシークレットを使用しています。本番ではJWT_SECRETを設定してください")
	}
	return cfg, nil
}

// parse はoptsに従って設定を解析する。
// opts.Environmentを指定するとプロセスの環境変数の代わりに使う。
func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("環境変数の解析に失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVERが不正です: %q", c.DatabaseDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRETが空です")
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFERは1以上が必要です: %d", c.WSSendBuffer)
	}
	if c.SideEffectTimeout <= 0 {
		return fmt.Errorf("SIDE_EFFECT_TIMEOUTは正の値が必要です: %s", c.SideEffectTimeout)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVELが不正です: %q", c.LogLevel)
	}
	return nil
}

// RetentionEnabled は定期削除を動かすかどうかを返す。
func (c *Config) RetentionEnabled() bool {
	return c.RetentionSchedule != "" && !strings.EqualFold(c.RetentionSchedule, RetentionOff)
}

// ApplyLogLevel は設定されたログレベルをデフォルトロガーに反映する。
func (c *Config) ApplyLogLevel() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return
	}
	log.SetLevel(level)
}
