package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// defaultStaleLimit bounds ListStaleOrders when the caller passes no limit
const defaultStaleLimit = 100

var errMissingExternalID = errors.New("mirror: external id is required")

// orderMutableColumns are overwritten when an existing order is synced again
var orderMutableColumns = []string{
	"status", "remote_status", "total", "paid_amount", "currency", "customer_id",
	"tracking_number", "shipment_id", "placed_at", "remote_updated", "last_sync_at", "updated_at",
}

var productMutableColumns = []string{
	"title", "sku", "price", "currency", "available_quantity", "status", "permalink",
	"last_sync_at", "updated_at",
}

// GormMirrorRepository implements integration.MirrorStore using GORM.
// Orders and products are keyed by (tenant_id, marketplace, external_id); writing the same remote
// record twice updates the row in place.
type GormMirrorRepository struct {
	db *gorm.DB
}

// NewGormMirrorRepository creates a new GormMirrorRepository
func NewGormMirrorRepository(db *gorm.DB) *GormMirrorRepository {
	return &GormMirrorRepository{db: db}
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// UpsertOrder inserts or updates the order and replaces its items
func (r *GormMirrorRepository) UpsertOrder(ctx context.Context, order *integration.CanonicalOrder) (integration.UpsertOutcome, error) {
	if order.ExternalID == "" {
		return "", integration.NewPersistenceError("upsert order", errMissingExternalID)
	}
	if order.LastSyncAt.IsZero() {
		order.LastSyncAt = time.Now().UTC()
	}

	outcome := integration.UpsertCreated
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		key := order.IdempotencyKey()
		existingID, err := lookupID(tx, &models.MarketplaceOrderModel{}, key)
		if err != nil {
			return err
		}

		model := models.MarketplaceOrderModelFromDomain(order)
		if existingID != uuid.Nil {
			outcome = integration.UpsertUpdated
			model.ID = existingID
		}

		if err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   idempotencyColumns(),
				DoUpdates: clause.AssignmentColumns(orderMutableColumns),
			}).
			Create(model).Error; err != nil {
			return err
		}

		// A concurrent writer may have inserted first; the stored id wins.
		storedID, err := lookupID(tx, &models.MarketplaceOrderModel{}, key)
		if err != nil {
			return err
		}
		order.ID = storedID
		return replaceOrderItems(tx, storedID, order.Items, order.LastSyncAt)
	})
	if err != nil {
		return "", integration.NewPersistenceError("upsert order", err)
	}
	return outcome, nil
}

func replaceOrderItems(tx *gorm.DB, orderID uuid.UUID, items []integration.CanonicalOrderItem, now time.Time) error {
	keep := make([]string, 0, len(items))
	if len(items) > 0 {
		rows := make([]*models.MarketplaceOrderItemModel, 0, len(items))
		for _, item := range items {
			rows = append(rows, models.MarketplaceOrderItemModelFromDomain(orderID, item, now))
			keep = append(keep, item.ExternalItemID)
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "external_item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "sku", "quantity", "unit_price", "updated_at"}),
		}).Create(&rows).Error; err != nil {
			return err
		}
	}

	del := tx.Where("order_id = ?", orderID)
	if len(keep) > 0 {
		del = del.Where("external_item_id NOT IN ?", keep)
	}
	return del.Delete(&models.MarketplaceOrderItemModel{}).Error
}

// GetOrder loads a mirrored order with its items, or integration.ErrNotFound
func (r *GormMirrorRepository) GetOrder(ctx context.Context, key integration.IdempotencyKey) (*integration.CanonicalOrder, error) {
	var model models.MarketplaceOrderModel
	err := r.db.WithContext(ctx).
		Preload("Items", orderItemsByID).
		Where("tenant_id = ? AND marketplace = ? AND external_id = ?", key.TenantID, key.Marketplace, key.ExternalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrNotFound
		}
		return nil, integration.NewPersistenceError("get order", err)
	}
	return model.ToDomain(), nil
}

// ListStaleOrders returns orders of key not synced since olderThan, least recently synced first
func (r *GormMirrorRepository) ListStaleOrders(ctx context.Context, key integration.Key, olderThan time.Time, limit int) ([]*integration.CanonicalOrder, error) {
	if limit <= 0 {
		limit = defaultStaleLimit
	}

	var rows []models.MarketplaceOrderModel
	err := r.db.WithContext(ctx).
		Preload("Items", orderItemsByID).
		Where("tenant_id = ? AND marketplace = ? AND last_sync_at < ?", key.TenantID, key.Marketplace, olderThan.UTC()).
		Order("last_sync_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, integration.NewPersistenceError("list stale orders", err)
	}

	orders := make([]*integration.CanonicalOrder, 0, len(rows))
	for i := range rows {
		orders = append(orders, rows[i].ToDomain())
	}
	return orders, nil
}

func orderItemsByID(db *gorm.DB) *gorm.DB {
	return db.Order("external_item_id ASC")
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// UpsertProduct inserts or updates a mirrored listing
func (r *GormMirrorRepository) UpsertProduct(ctx context.Context, product *integration.CanonicalProduct) (integration.UpsertOutcome, error) {
	if product.ExternalID == "" {
		return "", integration.NewPersistenceError("upsert product", errMissingExternalID)
	}
	if product.LastSyncAt.IsZero() {
		product.LastSyncAt = time.Now().UTC()
	}

	outcome := integration.UpsertCreated
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		key := product.IdempotencyKey()
		existingID, err := lookupID(tx, &models.MarketplaceProductModel{}, key)
		if err != nil {
			return err
		}

		model := models.MarketplaceProductModelFromDomain(product)
		if existingID != uuid.Nil {
			outcome = integration.UpsertUpdated
			model.ID = existingID
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   idempotencyColumns(),
			DoUpdates: clause.AssignmentColumns(productMutableColumns),
		}).Create(model).Error; err != nil {
			return err
		}

		product.ID, err = lookupID(tx, &models.MarketplaceProductModel{}, key)
		return err
	})
	if err != nil {
		return "", integration.NewPersistenceError("upsert product", err)
	}
	return outcome, nil
}

// GetProduct loads a mirrored listing, or integration.ErrNotFound
func (r *GormMirrorRepository) GetProduct(ctx context.Context, key integration.IdempotencyKey) (*integration.CanonicalProduct, error) {
	var model models.MarketplaceProductModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND marketplace = ? AND external_id = ?", key.TenantID, key.Marketplace, key.ExternalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrNotFound
		}
		return nil, integration.NewPersistenceError("get product", err)
	}
	return model.ToDomain(), nil
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

// ResolveCustomer finds the tenant's customer by email, then by tax id, creating it when neither
// matches. Empty name, phone and identity fields of an existing customer are filled from the
// candidate.
func (r *GormMirrorRepository) ResolveCustomer(ctx context.Context, candidate *integration.CanonicalCustomer) (*integration.CanonicalCustomer, error) {
	if !candidate.HasIdentity() {
		return nil, integration.ErrCustomerIdentityEmpty
	}

	var resolved *models.MarketplaceCustomerModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := findCustomer(tx, candidate)
		if err != nil {
			return err
		}
		if found != nil {
			resolved = found
			return backfillCustomer(tx, found, candidate)
		}

		model := models.MarketplaceCustomerModelFromDomain(candidate, time.Now())
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(model).Error; err != nil {
			return err
		}
		// DoNothing leaves the row of a concurrent insert in place; read back whichever won.
		found, err = findCustomer(tx, candidate)
		if err != nil {
			return err
		}
		if found == nil {
			return gorm.ErrRecordNotFound
		}
		resolved = found
		return nil
	})
	if err != nil {
		return nil, integration.NewPersistenceError("resolve customer", err)
	}
	return resolved.ToDomain(), nil
}

// findCustomer returns nil, nil when no customer matches
func findCustomer(tx *gorm.DB, candidate *integration.CanonicalCustomer) (*models.MarketplaceCustomerModel, error) {
	lookups := []struct {
		column string
		value  string
	}{
		{"email", candidate.Email},
		{"tax_id", candidate.TaxID},
	}
	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		var model models.MarketplaceCustomerModel
		err := tx.Where("tenant_id = ? AND "+l.column+" = ?", candidate.TenantID, l.value).Take(&model).Error
		if err == nil {
			return &model, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func backfillCustomer(tx *gorm.DB, found *models.MarketplaceCustomerModel, candidate *integration.CanonicalCustomer) error {
	updates := map[string]any{}
	if found.Name == "" && candidate.Name != "" {
		updates["name"] = candidate.Name
		found.Name = candidate.Name
	}
	if found.Phone == "" && candidate.Phone != "" {
		updates["phone"] = candidate.Phone
		found.Phone = candidate.Phone
	}
	if found.Email == "" && candidate.Email != "" && !identityTaken(tx, found.TenantID, "email", candidate.Email) {
		updates["email"] = candidate.Email
		found.Email = candidate.Email
	}
	if found.TaxID == "" && candidate.TaxID != "" && !identityTaken(tx, found.TenantID, "tax_id", candidate.TaxID) {
		updates["tax_id"] = candidate.TaxID
		found.TaxID = candidate.TaxID
	}
	if len(updates) == 0 {
		return nil
	}
	now := time.Now().UTC()
	updates["updated_at"] = now
	found.UpdatedAt = now
	return tx.Model(&models.MarketplaceCustomerModel{}).Where("id = ?", found.ID).Updates(updates).Error
}

func identityTaken(tx *gorm.DB, tenantID uuid.UUID, column, value string) bool {
	var count int64
	if err := tx.Model(&models.MarketplaceCustomerModel{}).
		Where("tenant_id = ? AND "+column+" = ?", tenantID, value).
		Count(&count).Error; err != nil {
		return true
	}
	return count > 0
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func idempotencyColumns() []clause.Column {
	return []clause.Column{{Name: "tenant_id"}, {Name: "marketplace"}, {Name: "external_id"}}
}

// lookupID returns the id stored for key in model's table, or uuid.Nil
func lookupID(tx *gorm.DB, model any, key integration.IdempotencyKey) (uuid.UUID, error) {
	var ids []uuid.UUID
	err := tx.Model(model).
		Where("tenant_id = ? AND marketplace = ? AND external_id = ?", key.TenantID, key.Marketplace, key.ExternalID).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return uuid.Nil, err
	}
	return ids[0], nil
}

var _ integration.MirrorStore = (*GormMirrorRepository)(nil)
