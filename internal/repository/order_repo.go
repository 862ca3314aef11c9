package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/vivanti/ordersync/internal/domain"
	"github.com/vivanti/ordersync/internal/logger"
	"gorm.io/gorm"
)

// UpsertOutcome aggregates a batch upsert. Per-record failures are absorbed
// here rather than aborting the batch.
type UpsertOutcome struct {
	Created    int                `json:"created"`
	Updated    int                `json:"updated"`
	Errors     int                `json:"errors"`
	ErrorsList []OrderUpsertError `json:"errors_list,omitempty"`
}

// OrderUpsertError records one failed record in a batch upsert.
type OrderUpsertError struct {
	ShopifyID string `json:"shopify_id"`
	OrderName string `json:"order_name"`
	Error     string `json:"error"`
}

// UpsertedCount is the number of records written, created plus updated.
func (o *UpsertOutcome) UpsertedCount() int {
	return o.Created + o.Updated
}

// OrderRepository handles order data operations against the intermediate store.
type OrderRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewOrderRepository creates a new OrderRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//   - log: logger instance.
// Returns:
//   - *OrderRepository: repository instance bound to db.
func NewOrderRepository(db *gorm.DB, log *logger.Logger) *OrderRepository {
	return &OrderRepository{db: db, log: log}
}

// upstreamColumns are the fields an upstream-driven upsert may replace. The
// Airtable back-reference columns are deliberately absent: a fresh fetch must
// never clobber them.
var upstreamColumns = []string{
	"name",
	"legacy_resource_id",
	"customer",
	"display_financial_status",
	"display_fulfillment_status",
	"order_created_at",
	"status_page_url",
	"fulfillments",
	"metafields",
	"updated_at",
}

// UpsertFromShopify merges one upstream order into the store, keyed by the
// immutable Shopify id. Existing rows get a full replace of all
// upstream-sourced fields; the Airtable back-reference is left untouched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - order: upstream order to merge.
// Returns:
//   - bool: true if a new row was created, false if an existing row was updated.
//   - error: non-nil if the write fails.
func (r *OrderRepository) UpsertFromShopify(ctx context.Context, order *domain.Order) (bool, error) {
	var existing domain.Order
	err := r.db.WithContext(ctx).First(&existing, "shopify_id = ?", order.ShopifyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	err = r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("shopify_id = ?", order.ShopifyID).
		Select(upstreamColumns).
		Updates(order).Error
	if err != nil {
		return false, err
	}
	return false, nil
}

// UpsertBatch processes a sequence of upstream orders as independent
// per-record upserts. A failure on one record is recorded in the outcome and
// does not abort the rest.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - orders: upstream orders to merge.
// Returns:
//   - *UpsertOutcome: created/updated/error aggregate.
//   - error: non-nil only if the batch itself cannot proceed (cancelled context).
func (r *OrderRepository) UpsertBatch(ctx context.Context, orders []domain.Order) (*UpsertOutcome, error) {
	outcome := &UpsertOutcome{}

	for i := range orders {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		order := orders[i]
		created, err := r.UpsertFromShopify(ctx, &order)
		if err != nil {
			outcome.Errors++
			outcome.ErrorsList = append(outcome.ErrorsList, OrderUpsertError{
				ShopifyID: order.ShopifyID,
				OrderName: order.Name,
				Error:     err.Error(),
			})
			r.log.WithFields(logger.Fields{
				logger.FieldOrderID: order.ShopifyID,
			}).WithError(err).Error("Failed to upsert order")
			continue
		}
		if created {
			outcome.Created++
		} else {
			outcome.Updated++
		}
	}

	r.log.WithFields(logger.Fields{
		"created": outcome.Created,
		"updated": outcome.Updated,
		"errors":  outcome.Errors,
	}).Info("Order batch upsert completed")

	return outcome, nil
}

// SetAirtableRef stores the downstream record id for an order. Used only by
// the push stage after a successful create.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - shopifyID: immutable upstream order id.
//   - recordID: Airtable record id to back-reference.
//   - tableName: Airtable table the record lives in.
// Returns:
//   - error: non-nil if the order does not exist or the write fails.
func (r *OrderRepository) SetAirtableRef(ctx context.Context, shopifyID, recordID, tableName string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("shopify_id = ?", shopifyID).
		Updates(map[string]interface{}{
			"airtable_record_id":  recordID,
			"airtable_table_name": tableName,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %s not found", shopifyID)
	}
	return nil
}

// GetByShopifyID retrieves an order by its immutable upstream id.
func (r *OrderRepository) GetByShopifyID(ctx context.Context, shopifyID string) (*domain.Order, error) {
	var order domain.Order
	if err := r.db.WithContext(ctx).First(&order, "shopify_id = ?", shopifyID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByLegacyResourceID retrieves an order by the numeric legacy id embedded
// in the composed Airtable order number.
func (r *OrderRepository) GetByLegacyResourceID(ctx context.Context, legacyID string) (*domain.Order, error) {
	var order domain.Order
	if err := r.db.WithContext(ctx).First(&order, "legacy_resource_id = ?", legacyID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListAll retrieves every stored order. The push stage partitions this set
// into create and update batches.
func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	if err := r.db.WithContext(ctx).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// List retrieves orders newest-first with pagination.
func (r *OrderRepository) List(ctx context.Context, limit, offset int) ([]domain.Order, int64, error) {
	var orders []domain.Order
	if err := r.db.WithContext(ctx).
		Order("order_created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Order{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Count returns the number of stored orders.
func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Order{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
