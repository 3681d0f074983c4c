// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RequiredSchemaVersion はこのバイナリが前提とするprofilesテーブルのスキーマバージョン。
const RequiredSchemaVersion uint = 1

// ErrSchemaOutdated はスキーマが未適用、古い、またはdirtyな場合に返される。
var ErrSchemaOutdated = errors.New("profile schema is not up to date")

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、適用後のバージョンを返す。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) (uint, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// SchemaVersion は現在のスキーマバージョンを返す。
// 一度もマイグレーションしていない場合は0を返す。
func SchemaVersion(databaseURL string) (version uint, dirty bool, err error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

// CheckSchema はserve起動前にスキーマが適用済みであることを確認する。
func CheckSchema(databaseURL string) error {
	version, dirty, err := SchemaVersion(databaseURL)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("%w: version %d is dirty", ErrSchemaOutdated, version)
	}
	if version < RequiredSchemaVersion {
		return fmt.Errorf("%w: have %d, need %d (run the migrate command)", ErrSchemaOutdated, version, RequiredSchemaVersion)
	}
	return nil
}
