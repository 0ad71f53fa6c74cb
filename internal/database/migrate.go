package database

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// セッションストアのスキーマ定義。バイナリに埋め込み、
// migrateサブコマンドから適用する。
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations は埋め込みマイグレーションを未適用分だけ順番に適用する。
// sessionsテーブルが既に最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply session store migrations: %w", err)
	}

	return nil
}
