// Package database はストアが共有するデータベース接続を開き、
// 方言ごとに埋め込まれたマイグレーションを適用する。
package database

import (
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/nao1215/crmpipeline/pkg/migration"
)

// サポートするドライバ名。
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations
var migrationFS embed.FS

// Open は指定ドライバでデータベースに接続し、疎通を確認する。
// マイグレーションは適用しない。
func Open(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("未対応のデータベースドライバ: %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if driver == DriverSQLite {
		// SQLiteは書き込みが直列化されるため、接続を1本に絞ってSQLITE_BUSYを避ける。
		// :memory: の場合はこれによりDBが接続ごとに分裂しない。
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへのpingに失敗: %w", err)
	}
	return db, nil
}

// Migrate はドライバに対応するマイグレーションを適用する。
func Migrate(db *sqlx.DB) error {
	dir := "migrations/" + db.DriverName()
	if err := migration.Run(db, migrationFS, dir); err != nil {
		return fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	return nil
}

// OpenAndMigrate はOpenとMigrateをまとめて行う。
func OpenAndMigrate(driver, dsn string) (*sqlx.DB, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
