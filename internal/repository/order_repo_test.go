package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vivanti/ordersync/internal/domain"
	"github.com/vivanti/ordersync/internal/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Order{}, &domain.SyncJob{}))
	return db
}

func newTestOrderRepo(t *testing.T) *OrderRepository {
	log := logger.New(&logger.Config{Level: "error", Output: io.Discard})
	return NewOrderRepository(newTestDB(t), log)
}

func sampleOrder(shopifyID, legacyID string) domain.Order {
	return domain.Order{
		ShopifyID:              shopifyID,
		Name:                   "#" + legacyID,
		LegacyResourceID:       legacyID,
		Customer:               domain.Customer{Email: legacyID + "@example.com"},
		DisplayFinancialStatus: "PAID",
		OrderCreatedAt:         time.Now().Add(-24 * time.Hour).UTC(),
		Fulfillments: domain.Fulfillments{
			{Events: []domain.FulfillmentEvent{{Status: "IN_TRANSIT", Message: "moving"}}},
		},
	}
}

func TestUpsertFromShopifyCreatesThenUpdates(t *testing.T) {
	repo := newTestOrderRepo(t)
	ctx := context.Background()

	order := sampleOrder("gid-1", "100")
	created, err := repo.UpsertFromShopify(ctx, &order)
	require.NoError(t, err)
	assert.True(t, created)

	order.DisplayFinancialStatus = "REFUNDED"
	created, err = repo.UpsertFromShopify(ctx, &order)
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := repo.GetByShopifyID(ctx, "gid-1")
	require.NoError(t, err)
	assert.Equal(t, "REFUNDED", stored.DisplayFinancialStatus)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUpsertPreservesAirtableBackReference(t *testing.T) {
	repo := newTestOrderRepo(t)
	ctx := context.Background()

	order := sampleOrder("gid-1", "100")
	_, err := repo.UpsertFromShopify(ctx, &order)
	require.NoError(t, err)
	require.NoError(t, repo.SetAirtableRef(ctx, "gid-1", "recXYZ", "ORDER TRACKING"))

	// A fresh upstream fetch knows nothing about Airtable. Its upsert must
	// replace the upstream fields without touching the back-reference.
	refetched := sampleOrder("gid-1", "100")
	refetched.DisplayFulfillmentStatus = "FULFILLED"
	_, err = repo.UpsertFromShopify(ctx, &refetched)
	require.NoError(t, err)

	stored, err := repo.GetByShopifyID(ctx, "gid-1")
	require.NoError(t, err)
	assert.Equal(t, "FULFILLED", stored.DisplayFulfillmentStatus)
	require.NotNil(t, stored.AirtableRecordID)
	assert.Equal(t, "recXYZ", *stored.AirtableRecordID)
	require.NotNil(t, stored.AirtableTableName)
	assert.Equal(t, "ORDER TRACKING", *stored.AirtableTableName)
}

func TestUpsertBatchAggregates(t *testing.T) {
	repo := newTestOrderRepo(t)
	ctx := context.Background()

	first, err := repo.UpsertBatch(ctx, []domain.Order{
		sampleOrder("gid-1", "100"),
		sampleOrder("gid-2", "101"),
		sampleOrder("gid-3", "102"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)
	assert.Equal(t, 0, first.Updated)
	assert.Equal(t, 3, first.UpsertedCount())

	second, err := repo.UpsertBatch(ctx, []domain.Order{
		sampleOrder("gid-2", "101"),
		sampleOrder("gid-4", "103"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Created)
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, 0, second.Errors)
}

func TestSetAirtableRefMissingOrder(t *testing.T) {
	repo := newTestOrderRepo(t)
	err := repo.SetAirtableRef(context.Background(), "gid-missing", "rec1", "Orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGetByLegacyResourceID(t *testing.T) {
	repo := newTestOrderRepo(t)
	ctx := context.Background()

	order := sampleOrder("gid-7", "777")
	_, err := repo.UpsertFromShopify(ctx, &order)
	require.NoError(t, err)

	stored, err := repo.GetByLegacyResourceID(ctx, "777")
	require.NoError(t, err)
	assert.Equal(t, "gid-7", stored.ShopifyID)

	// JSON columns survive the round trip.
	require.Len(t, stored.Fulfillments, 1)
	assert.Equal(t, "IN_TRANSIT", stored.Fulfillments[0].Events[0].Status)
	assert.Equal(t, "777@example.com", stored.Customer.Email)
}

func TestListPagination(t *testing.T) {
	repo := newTestOrderRepo(t)
	ctx := context.Background()

	for _, o := range []domain.Order{
		sampleOrder("gid-1", "100"),
		sampleOrder("gid-2", "101"),
		sampleOrder("gid-3", "102"),
	} {
		order := o
		_, err := repo.UpsertFromShopify(ctx, &order)
		require.NoError(t, err)
	}

	page, total, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)

	rest, _, err := repo.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
