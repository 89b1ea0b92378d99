// Package dbtest starts throwaway PostgreSQL instances for integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"storefront-checkout/internal/database"
	"storefront-checkout/internal/domain"
)

// Postgres returns a migrated database, or skips the test when Docker is not
// available or -short is set.
func Postgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("storefront"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.NewPostgres(ctx, dsn, database.Options{MaxOpenConns: 10})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

// SeedProducts inserts catalogue rows. Parents must come before their
// variations.
func SeedProducts(t *testing.T, db *sql.DB, products ...domain.Product) {
	t.Helper()
	for _, p := range products {
		var parent sql.NullInt64
		if p.ParentID != 0 {
			parent = sql.NullInt64{Int64: p.ParentID, Valid: true}
		}
		_, err := db.Exec(`INSERT INTO products (id, parent_id, name, price_minor) VALUES ($1, $2, $3, $4)`,
			p.ID, parent, p.Name, p.PriceMinor)
		require.NoError(t, err)
	}
}
