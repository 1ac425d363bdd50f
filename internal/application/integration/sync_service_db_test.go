package integration

import (
	"context"
	"testing"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/persistence"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupMirrorDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.IntegrationModels()...))
	return db
}

// TestSyncOrders_MirrorDatabase runs the ML-1 resync scenario against the GORM repositories
func TestSyncOrders_MirrorDatabase(t *testing.T) {
	db := setupMirrorDB(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := newTestKey()
	api := newFakeMarketplace()
	api.addOrder(newRemoteOrder("ML-1", "paid", clock.Add(-time.Hour)))

	svc := NewSyncService(
		map[integration.MarketplaceCode]integration.MarketplaceAPI{integration.MarketplaceMercadoLibre: api},
		newMemCredentials(newTestCredential(t, key)),
		persistence.NewGormMirrorRepository(db),
		persistence.NewGormCursorRepository(db),
		unpacedConfig(),
		nil,
		WithSyncClock(func() time.Time { return clock }),
	)
	ctx := context.Background()

	_, err := svc.SyncOrders(ctx, key.TenantID, key.Marketplace, time.Time{})
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	other := newRemoteOrder("ML-2", "paid", clock.Add(-time.Minute))
	other.Buyer.Email = " A@B.COM "
	api.addOrder(other)

	result, err := svc.SyncOrders(ctx, key.TenantID, key.Marketplace, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Updated)

	var orders, customers int64
	require.NoError(t, db.Model(&models.MarketplaceOrderModel{}).Count(&orders).Error)
	require.NoError(t, db.Model(&models.MarketplaceCustomerModel{}).Count(&customers).Error)
	assert.Equal(t, int64(2), orders)
	assert.Equal(t, int64(1), customers, "buyer email matches case-insensitively")

	mirror := persistence.NewGormMirrorRepository(db)
	stored, err := mirror.GetOrder(ctx, integration.IdempotencyKey{TenantID: key.TenantID, Marketplace: key.Marketplace, ExternalID: "ML-1"})
	require.NoError(t, err)
	assert.Equal(t, integration.OrderStatusPaid, stored.Status)
	assert.True(t, decimal.RequireFromString("100.00").Equal(stored.Total))
	assert.WithinDuration(t, clock, stored.LastSyncAt, time.Millisecond)

	cursors := persistence.NewGormCursorRepository(db)
	cursor, err := cursors.Get(ctx, key, integration.ResourceOrders)
	require.NoError(t, err)
	assert.WithinDuration(t, clock.Add(-time.Minute), cursor.LastSyncedAt, time.Millisecond)
	assert.Empty(t, cursor.PageToken)
}
