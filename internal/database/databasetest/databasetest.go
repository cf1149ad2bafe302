// Package databasetest はテスト用のインメモリSQLiteデータベースを提供する。
package databasetest

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nao1215/crmpipeline/internal/database"
)

// New はマイグレーション適用済みのインメモリSQLiteを生成する。
// テスト終了時に自動でクローズされる。
func New(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.OpenAndMigrate(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("テスト用DBの初期化に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SeedUser はテスト用ユーザーを直接挿入する。
func SeedUser(t *testing.T, db *sqlx.DB, id, name string) {
	t.Helper()

	_, err := db.Exec(db.Rebind(`INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`),
		id, name, id+"@example.com", time.Now().UTC())
	if err != nil {
		t.Fatalf("テスト用ユーザーの挿入に失敗: %v", err)
	}
}

// SeedClient はテスト用顧客を直接挿入する。
func SeedClient(t *testing.T, db *sqlx.DB, id, name string) {
	t.Helper()

	_, err := db.Exec(db.Rebind(`INSERT INTO clients (id, name, company, email, created_at) VALUES (?, ?, ?, ?, ?)`),
		id, name, name+" Inc.", id+"@client.example.com", time.Now().UTC())
	if err != nil {
		t.Fatalf("テスト用顧客の挿入に失敗: %v", err)
	}
}

// SeedDeal はテスト用商談を直接挿入する。closedAtはnil可。
func SeedDeal(t *testing.T, db *sqlx.DB, id, title, stage, ownerID, clientID string, closedAt *time.Time) {
	t.Helper()

	now := time.Now().UTC()
	_, err := db.Exec(db.Rebind(`
		INSERT INTO deals (id, title, value, currency, stage, probability, actual_close_date, owner_id, client_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, title, 1000.0, "USD", stage, 10, closedAt, ownerID, clientID, now, now)
	if err != nil {
		t.Fatalf("テスト用商談の挿入に失敗: %v", err)
	}
}
