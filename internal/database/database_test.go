package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/database"
	"storefront-checkout/internal/database/dbtest"
	"storefront-checkout/internal/logging"
)

func TestMigrateIsRepeatableAndHealthReportsUp(t *testing.T) {
	db := dbtest.Postgres(t)
	ctx := context.Background()

	require.NoError(t, database.Migrate(ctx, db))

	svc := database.New(db, logging.Discard())
	stats := svc.Health(ctx)
	assert.Equal(t, "up", stats["status"])
	assert.Contains(t, stats, "open_connections")
}
