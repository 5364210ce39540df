// Package dbtest starts a throwaway Postgres container with the backoffice
// schema applied, for integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/fjod/go_storefront/internal/db"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MigrationsDir is the absolute path of the backoffice migrations.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "migrations")
}

// Postgres returns a migrated database and its credentials. The container is
// terminated when the test ends. Skipped with -short.
func Postgres(t *testing.T) (*sql.DB, *db.Credentials) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &db.Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: MigrationsDir(),
	}

	conn, err := db.Connect(creds)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(conn, creds.MigrationsDirPath))

	t.Cleanup(func() {
		conn.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return conn, creds
}

// SeedCatalog inserts a small catalog: a sized shirt, an unsized mug and a
// sold out poster.
func SeedCatalog(t *testing.T, conn *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO categories (id, name, slug) VALUES ('apparel', 'Apparel', 'apparel')`,
		`INSERT INTO products (id, name, price, category_id, stock) VALUES ('shirt', 'Shirt', 20.00, 'apparel', 0)`,
		`INSERT INTO product_sizes (product_id, size, stock, sort_order) VALUES ('shirt', 'S', 1, 0), ('shirt', 'M', 2, 1), ('shirt', 'L', 0, 2)`,
		`INSERT INTO products (id, name, price, category_id, stock) VALUES ('mug', 'Mug', 8.50, 'kitchen', 10)`,
		`INSERT INTO products (id, name, price, stock) VALUES ('poster', 'Poster', 5.00, 0)`,
	}
	for _, s := range stmts {
		_, err := conn.Exec(s)
		require.NoError(t, err)
	}
}
