package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("未設定の場合はデフォルト値になること", func(t *testing.T) {
		t.Parallel()

		cfg, err := parse(env.Options{Environment: map[string]string{}})
		if err != nil {
			t.Fatalf("parse()でエラーが発生: %v", err)
		}
		if cfg.Port != "8080" {
			t.Errorf("Port = %q, want %q", cfg.Port, "8080")
		}
		if cfg.DatabaseDriver != "sqlite" {
			t.Errorf("DatabaseDriver = %q, want %q", cfg.DatabaseDriver, "sqlite")
		}
		if cfg.RetentionDays != 30 {
			t.Errorf("RetentionDays = %d, want 30", cfg.RetentionDays)
		}
		if cfg.SideEffectTimeout != 10*time.Second {
			t.Errorf("SideEffectTimeout = %s, want 10s", cfg.SideEffectTimeout)
		}
		if cfg.RateLimit != "100-M" {
			t.Errorf("RateLimit = %q, want %q", cfg.RateLimit, "100-M")
		}
		if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "http://localhost:3000" {
			t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
		}
	})

	t.Run("環境変数で上書きできること", func(t *testing.T) {
		t.Parallel()

		cfg, err := parse(env.Options{Environment: map[string]string{
			"PORT":                 "9090",
			"DATABASE_DRIVER":      "postgres",
			"DATABASE_URL":         "postgres://crm@localhost/crm?sslmode=disable",
			"CORS_ALLOWED_ORIGINS": "https://a.example.com,https://b.example.com",
			"SIDE_EFFECT_TIMEOUT":  "3s",
			"WS_SEND_BUFFER":       "8",
			"LOG_LEVEL":            "debug",
		}})
		if err != nil {
			t.Fatalf("parse()でエラーが発生: %v", err)
		}
		if cfg.Port != "9090" || cfg.DatabaseDriver != "postgres" {
			t.Errorf("Port/DatabaseDriver = %q/%q", cfg.Port, cfg.DatabaseDriver)
		}
		if len(cfg.CORSAllowedOrigins) != 2 {
			t.Errorf("CORSAllowedOrigins = %v, want 2件", cfg.CORSAllowedOrigins)
		}
		if cfg.SideEffectTimeout != 3*time.Second {
			t.Errorf("SideEffectTimeout = %s, want 3s", cfg.SideEffectTimeout)
		}
		if cfg.WSSendBuffer != 8 {
			t.Errorf("WSSendBuffer = %d, want 8", cfg.WSSendBuffer)
		}
	})

	t.Run("保持期間スイープの有効・無効", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name     string
			env      map[string]string
			schedule string
			want     bool
		}{
			{name: "未設定なら毎日", env: map[string]string{}, schedule: "@daily", want: true},
			{name: "空の値はデフォルトの毎日", env: map[string]string{"NOTIFICATION_RETENTION_SCHEDULE": ""}, schedule: "@daily", want: true},
			{name: "offで無効", env: map[string]string{"NOTIFICATION_RETENTION_SCHEDULE": "off"}, schedule: "off", want: false},
			{name: "大文字のOFFでも無効", env: map[string]string{"NOTIFICATION_RETENTION_SCHEDULE": "OFF"}, schedule: "OFF", want: false},
			{name: "cron式はそのまま", env: map[string]string{"NOTIFICATION_RETENTION_SCHEDULE": "0 3 * * *"}, schedule: "0 3 * * *", want: true},
		}
		for _, tt := range tests {
			cfg, err := parse(env.Options{Environment: tt.env})
			if err != nil {
				t.Fatalf("%s: parse()でエラーが発生: %v", tt.name, err)
			}
			if cfg.RetentionSchedule != tt.schedule {
				t.Errorf("%s: RetentionSchedule = %q, want %q", tt.name, cfg.RetentionSchedule, tt.schedule)
			}
			if got := cfg.RetentionEnabled(); got != tt.want {
				t.Errorf("%s: RetentionEnabled() = %v, want %v", tt.name, got, tt.want)
			}
		}
	})

	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "未対応のドライバ", env: map[string]string{"DATABASE_DRIVER": "mysql"}},
		{name: "送信キュー長が0", env: map[string]string{"WS_SEND_BUFFER": "0"}},
		{name: "不正なログレベル", env: map[string]string{"LOG_LEVEL": "verbose"}},
		{name: "数値でない保持日数", env: map[string]string{"NOTIFICATION_RETENTION_DAYS": "ten"}},
	}
	for _, tt := range tests {
		t.Run(tt.name+"はエラー", func(t *testing.T) {
			t.Parallel()

			if _, err := parse(env.Options{Environment: tt.env}); err == nil {
				t.Fatal("エラーにならなかった")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{
		DatabaseDriver:    "sqlite",
		JWTSecret:         "",
		WSSendBuffer:      1,
		SideEffectTimeout: time.Second,
		LogLevel:          "info",
	}
	if err := cfg.Validate(); err == nil {
		t.Error("空のJWTシークレットでエラーにならなかった")
	}

	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate()でエラーが発生: %v", err)
	}
}
