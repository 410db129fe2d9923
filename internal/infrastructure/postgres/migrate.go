package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationSource fuente embebida con los scripts NNN_nombre.{up,down}.sql.
func migrationSource() (source.Driver, error) {
	return iofs.New(migrationsFS, "migrations")
}

// Migrate lleva el esquema a la última versión embebida y devuelve la versión resultante.
// Usa una conexión propia (no del pool) que se cierra al terminar.
func Migrate(ctx context.Context, connConfig *pgx.ConnConfig) (uint, error) {
	db := stdlib.OpenDB(*connConfig)
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("ping migraciones: %w", err)
	}

	src, err := migrationSource()
	if err != nil {
		return 0, fmt.Errorf("leer migraciones: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		DatabaseName: connConfig.Database,
		SchemaName:   "public",
	})
	if err != nil {
		return 0, fmt.Errorf("driver de migraciones: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, connConfig.Database, driver)
	if err != nil {
		return 0, fmt.Errorf("crear migrador: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return 0, fmt.Errorf("esquema en versión %d marcada como dirty: %w", dirty.Version, err)
		}
		return 0, fmt.Errorf("aplicar migraciones: %w", err)
	}
	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("versión del esquema: %w", err)
	}
	return version, nil
}
