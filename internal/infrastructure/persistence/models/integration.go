package models

import (
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IntegrationCredentialModel is the persistence model for marketplace OAuth credentials.
// AccessToken and RefreshToken hold the sealed form when a cipher is configured.
type IntegrationCredentialModel struct {
	BaseModel
	TenantID       uuid.UUID                    `gorm:"type:uuid;not null;uniqueIndex:idx_credential_key,priority:1"`
	Marketplace    integration.MarketplaceCode  `gorm:"type:varchar(32);not null;uniqueIndex:idx_credential_key,priority:2;index:idx_credential_external_user,priority:1"`
	AccessToken    string                       `gorm:"type:text;not null"`
	RefreshToken   string                       `gorm:"type:text;not null"`
	ExpiresAt      time.Time                    `gorm:"not null"`
	ExternalUserID string                       `gorm:"type:varchar(64);index:idx_credential_external_user,priority:2"`
	Status         integration.CredentialStatus `gorm:"type:varchar(16);not null;default:'active';index"`
	InvalidReason  string                       `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (IntegrationCredentialModel) TableName() string {
	return "integration_credentials"
}

// ToDomain converts the persistence model to a domain credential.
func (m *IntegrationCredentialModel) ToDomain() *integration.IntegrationCredential {
	return &integration.IntegrationCredential{
		ID:             m.ID,
		TenantID:       m.TenantID,
		Marketplace:    m.Marketplace,
		AccessToken:    m.AccessToken,
		RefreshToken:   m.RefreshToken,
		ExpiresAt:      m.ExpiresAt,
		ExternalUserID: m.ExternalUserID,
		Status:         m.Status,
		InvalidReason:  m.InvalidReason,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain credential.
func (m *IntegrationCredentialModel) FromDomain(c *integration.IntegrationCredential) {
	m.ID = c.ID
	m.CreatedAt = utc(c.CreatedAt)
	m.UpdatedAt = utc(c.UpdatedAt)
	m.TenantID = c.TenantID
	m.Marketplace = c.Marketplace
	m.AccessToken = c.AccessToken
	m.RefreshToken = c.RefreshToken
	m.ExpiresAt = utc(c.ExpiresAt)
	m.ExternalUserID = c.ExternalUserID
	m.Status = c.Status
	m.InvalidReason = c.InvalidReason
	m.ensureID()
	m.stamp(c.UpdatedAt)
}

// IntegrationCredentialModelFromDomain creates a new persistence model from a domain credential.
func IntegrationCredentialModelFromDomain(c *integration.IntegrationCredential) *IntegrationCredentialModel {
	m := &IntegrationCredentialModel{}
	m.FromDomain(c)
	return m
}

// SyncCursorModel stores the incremental sync position per (tenant, marketplace, resource).
type SyncCursorModel struct {
	TenantID     uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	Marketplace  integration.MarketplaceCode `gorm:"type:varchar(32);primaryKey"`
	Resource     integration.ResourceKind    `gorm:"type:varchar(16);primaryKey"`
	LastSyncedAt time.Time                   `gorm:"not null"`
	PageToken    string                      `gorm:"type:varchar(255);not null;default:''"`
	UpdatedAt    time.Time                   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncCursorModel) TableName() string {
	return "sync_cursors"
}

// ToDomain converts the persistence model to a domain cursor.
func (m *SyncCursorModel) ToDomain() *integration.SyncCursor {
	return &integration.SyncCursor{
		TenantID:     m.TenantID,
		Marketplace:  m.Marketplace,
		Resource:     m.Resource,
		LastSyncedAt: m.LastSyncedAt,
		PageToken:    m.PageToken,
		UpdatedAt:    m.UpdatedAt,
	}
}

// SyncCursorModelFromDomain creates a persistence model from a domain cursor.
func SyncCursorModelFromDomain(c *integration.SyncCursor) *SyncCursorModel {
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return &SyncCursorModel{
		TenantID:     c.TenantID,
		Marketplace:  c.Marketplace,
		Resource:     c.Resource,
		LastSyncedAt: utc(c.LastSyncedAt),
		PageToken:    c.PageToken,
		UpdatedAt:    updated.UTC(),
	}
}

// MarketplaceOrderModel mirrors a marketplace order. (tenant_id, marketplace, external_id) is the
// idempotency key.
type MarketplaceOrderModel struct {
	BaseModel
	TenantID       uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex:idx_mkt_order_key,priority:1;index:idx_mkt_order_stale,priority:1"`
	Marketplace    integration.MarketplaceCode `gorm:"type:varchar(32);not null;uniqueIndex:idx_mkt_order_key,priority:2;index:idx_mkt_order_stale,priority:2"`
	ExternalID     string                      `gorm:"type:varchar(64);not null;uniqueIndex:idx_mkt_order_key,priority:3"`
	Status         integration.OrderStatus     `gorm:"type:varchar(16);not null;index"`
	RemoteStatus   string                      `gorm:"type:varchar(64)"`
	Total          decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	PaidAmount     decimal.Decimal             `gorm:"type:decimal(18,4);not null;default:0"`
	Currency       string                      `gorm:"type:varchar(8)"`
	CustomerID     *uuid.UUID                  `gorm:"type:uuid;index"`
	TrackingNumber string                      `gorm:"type:varchar(128)"`
	ShipmentID     string                      `gorm:"type:varchar(64)"`
	PlacedAt       time.Time                   `gorm:"not null"`
	RemoteUpdated  time.Time                   `gorm:"not null"`
	LastSyncAt     time.Time                   `gorm:"not null;index:idx_mkt_order_stale,priority:3"`
	Items          []MarketplaceOrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (MarketplaceOrderModel) TableName() string {
	return "marketplace_orders"
}

// ToDomain converts the persistence model to a canonical order.
func (m *MarketplaceOrderModel) ToDomain() *integration.CanonicalOrder {
	order := &integration.CanonicalOrder{
		ID:             m.ID,
		TenantID:       m.TenantID,
		Marketplace:    m.Marketplace,
		ExternalID:     m.ExternalID,
		Status:         m.Status,
		RemoteStatus:   m.RemoteStatus,
		Total:          m.Total,
		PaidAmount:     m.PaidAmount,
		Currency:       m.Currency,
		CustomerID:     m.CustomerID,
		TrackingNumber: m.TrackingNumber,
		ShipmentID:     m.ShipmentID,
		PlacedAt:       m.PlacedAt,
		RemoteUpdated:  m.RemoteUpdated,
		LastSyncAt:     m.LastSyncAt,
		Items:          make([]integration.CanonicalOrderItem, 0, len(m.Items)),
	}
	for i := range m.Items {
		order.Items = append(order.Items, m.Items[i].ToDomain())
	}
	return order
}

// MarketplaceOrderModelFromDomain creates a persistence model from a canonical order.
// Items are converted separately because they need the stored order id.
func MarketplaceOrderModelFromDomain(o *integration.CanonicalOrder) *MarketplaceOrderModel {
	m := &MarketplaceOrderModel{
		TenantID:       o.TenantID,
		Marketplace:    o.Marketplace,
		ExternalID:     o.ExternalID,
		Status:         o.Status,
		RemoteStatus:   o.RemoteStatus,
		Total:          o.Total,
		PaidAmount:     o.PaidAmount,
		Currency:       o.Currency,
		CustomerID:     o.CustomerID,
		TrackingNumber: o.TrackingNumber,
		ShipmentID:     o.ShipmentID,
		PlacedAt:       utc(o.PlacedAt),
		RemoteUpdated:  utc(o.RemoteUpdated),
		LastSyncAt:     utc(o.LastSyncAt),
	}
	m.ID = o.ID
	m.ensureID()
	m.stamp(o.LastSyncAt)
	return m
}

// MarketplaceOrderItemModel is one line of a mirrored order.
type MarketplaceOrderItemModel struct {
	BaseModel
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_mkt_order_item,priority:1"`
	ExternalItemID string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_mkt_order_item,priority:2"`
	Title          string          `gorm:"type:varchar(255)"`
	SKU            string          `gorm:"type:varchar(100)"`
	Quantity       int             `gorm:"not null"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (MarketplaceOrderItemModel) TableName() string {
	return "marketplace_order_items"
}

// ToDomain converts the persistence model to a canonical order item.
func (m *MarketplaceOrderItemModel) ToDomain() integration.CanonicalOrderItem {
	return integration.CanonicalOrderItem{
		ExternalItemID: m.ExternalItemID,
		Title:          m.Title,
		SKU:            m.SKU,
		Quantity:       m.Quantity,
		UnitPrice:      m.UnitPrice,
	}
}

// MarketplaceOrderItemModelFromDomain creates an item model attached to orderID.
func MarketplaceOrderItemModelFromDomain(orderID uuid.UUID, item integration.CanonicalOrderItem, now time.Time) *MarketplaceOrderItemModel {
	m := &MarketplaceOrderItemModel{
		OrderID:        orderID,
		ExternalItemID: item.ExternalItemID,
		Title:          item.Title,
		SKU:            item.SKU,
		Quantity:       item.Quantity,
		UnitPrice:      item.UnitPrice,
	}
	m.ensureID()
	m.stamp(now)
	return m
}

// MarketplaceProductModel mirrors a marketplace listing.
type MarketplaceProductModel struct {
	BaseModel
	TenantID          uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex:idx_mkt_product_key,priority:1"`
	Marketplace       integration.MarketplaceCode `gorm:"type:varchar(32);not null;uniqueIndex:idx_mkt_product_key,priority:2"`
	ExternalID        string                      `gorm:"type:varchar(64);not null;uniqueIndex:idx_mkt_product_key,priority:3"`
	Title             string                      `gorm:"type:varchar(255);not null"`
	SKU               string                      `gorm:"type:varchar(100);index"`
	Price             decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	Currency          string                      `gorm:"type:varchar(8)"`
	AvailableQuantity int                         `gorm:"not null;default:0"`
	Status            string                      `gorm:"type:varchar(32)"`
	Permalink         string                      `gorm:"type:varchar(512)"`
	LastSyncAt        time.Time                   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceProductModel) TableName() string {
	return "marketplace_products"
}

// ToDomain converts the persistence model to a canonical product.
func (m *MarketplaceProductModel) ToDomain() *integration.CanonicalProduct {
	return &integration.CanonicalProduct{
		ID:                m.ID,
		TenantID:          m.TenantID,
		Marketplace:       m.Marketplace,
		ExternalID:        m.ExternalID,
		Title:             m.Title,
		SKU:               m.SKU,
		Price:             m.Price,
		Currency:          m.Currency,
		AvailableQuantity: m.AvailableQuantity,
		Status:            m.Status,
		Permalink:         m.Permalink,
		LastSyncAt:        m.LastSyncAt,
	}
}

// MarketplaceProductModelFromDomain creates a persistence model from a canonical product.
func MarketplaceProductModelFromDomain(p *integration.CanonicalProduct) *MarketplaceProductModel {
	m := &MarketplaceProductModel{
		TenantID:          p.TenantID,
		Marketplace:       p.Marketplace,
		ExternalID:        p.ExternalID,
		Title:             p.Title,
		SKU:               p.SKU,
		Price:             p.Price,
		Currency:          p.Currency,
		AvailableQuantity: p.AvailableQuantity,
		Status:            p.Status,
		Permalink:         p.Permalink,
		LastSyncAt:        utc(p.LastSyncAt),
	}
	m.ID = p.ID
	m.ensureID()
	m.stamp(p.LastSyncAt)
	return m
}

// MarketplaceCustomerModel is a buyer resolved from marketplace orders. Email and tax id are each
// unique per tenant when present.
type MarketplaceCustomerModel struct {
	BaseModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_mkt_customer_email,priority:1,where:email <> '';uniqueIndex:idx_mkt_customer_tax,priority:1,where:tax_id <> ''"`
	Email    string    `gorm:"type:varchar(255);not null;default:'';uniqueIndex:idx_mkt_customer_email,priority:2,where:email <> ''"`
	TaxID    string    `gorm:"type:varchar(64);not null;default:'';uniqueIndex:idx_mkt_customer_tax,priority:2,where:tax_id <> ''"`
	Name     string    `gorm:"type:varchar(200)"`
	Phone    string    `gorm:"type:varchar(50)"`
}

// TableName returns the table name for GORM
func (MarketplaceCustomerModel) TableName() string {
	return "marketplace_customers"
}

// ToDomain converts the persistence model to a canonical customer.
func (m *MarketplaceCustomerModel) ToDomain() *integration.CanonicalCustomer {
	return &integration.CanonicalCustomer{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Email:     m.Email,
		TaxID:     m.TaxID,
		Name:      m.Name,
		Phone:     m.Phone,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// MarketplaceCustomerModelFromDomain creates a persistence model from a canonical customer.
func MarketplaceCustomerModelFromDomain(c *integration.CanonicalCustomer, now time.Time) *MarketplaceCustomerModel {
	m := &MarketplaceCustomerModel{
		TenantID: c.TenantID,
		Email:    c.Email,
		TaxID:    c.TaxID,
		Name:     c.Name,
		Phone:    c.Phone,
	}
	m.ID = c.ID
	m.CreatedAt = utc(c.CreatedAt)
	m.ensureID()
	m.stamp(now)
	return m
}

// IntegrationModels lists every model owned by the integration engine, in dependency order.
func IntegrationModels() []any {
	return []any{
		&IntegrationCredentialModel{},
		&SyncCursorModel{},
		&MarketplaceCustomerModel{},
		&MarketplaceOrderModel{},
		&MarketplaceOrderItemModel{},
		&MarketplaceProductModel{},
	}
}
