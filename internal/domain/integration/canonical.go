package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// OrderStatus is the internal order status; marketplace strings never leak past the mapper
// ---------------------------------------------------------------------------

// OrderStatus is the internal order status enum
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// AllOrderStatuses lists every internal status
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// IsValid returns true if the status is one of the internal enum values
func (s OrderStatus) IsValid() bool {
	for _, v := range AllOrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// IsFinal returns true if the status is terminal
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Idempotency key
// ---------------------------------------------------------------------------

// IdempotencyKey uniquely identifies a remote resource within a tenant
type IdempotencyKey struct {
	TenantID    uuid.UUID
	Marketplace MarketplaceCode
	ExternalID  string
}

// String returns "tenant:marketplace:external_id"
func (k IdempotencyKey) String() string {
	return k.TenantID.String() + ":" + string(k.Marketplace) + ":" + k.ExternalID
}

// UpsertOutcome tells whether an upsert inserted a new row or updated an existing one
type UpsertOutcome string

const (
	UpsertCreated UpsertOutcome = "created"
	UpsertUpdated UpsertOutcome = "updated"
)

// ---------------------------------------------------------------------------
// Canonical records
// ---------------------------------------------------------------------------

// CanonicalOrder is the local mirror of a marketplace order
type CanonicalOrder struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Marketplace MarketplaceCode
	ExternalID  string
	Status      OrderStatus
	// RemoteStatus is kept for operators only; business logic reads Status
	RemoteStatus   string
	Total          decimal.Decimal
	PaidAmount     decimal.Decimal
	Currency       string
	CustomerID     *uuid.UUID
	TrackingNumber string
	ShipmentID     string
	Items          []CanonicalOrderItem
	PlacedAt       time.Time
	RemoteUpdated  time.Time
	LastSyncAt     time.Time
}

// IdempotencyKey returns the upsert key of the order
func (o *CanonicalOrder) IdempotencyKey() IdempotencyKey {
	return IdempotencyKey{TenantID: o.TenantID, Marketplace: o.Marketplace, ExternalID: o.ExternalID}
}

// CanonicalOrderItem is one line of a mirrored order
type CanonicalOrderItem struct {
	ExternalItemID string
	Title          string
	SKU            string
	Quantity       int
	UnitPrice      decimal.Decimal
}

// CanonicalProduct is the local mirror of a marketplace listing
type CanonicalProduct struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Marketplace       MarketplaceCode
	ExternalID        string
	Title             string
	SKU               string
	Price             decimal.Decimal
	Currency          string
	AvailableQuantity int
	Status            string
	Permalink         string
	LastSyncAt        time.Time
}

// IdempotencyKey returns the upsert key of the product
func (p *CanonicalProduct) IdempotencyKey() IdempotencyKey {
	return IdempotencyKey{TenantID: p.TenantID, Marketplace: p.Marketplace, ExternalID: p.ExternalID}
}

// CanonicalCustomer is a tenant customer created or matched by the sync engine.
// Customers are matched by email or tax id so repeated syncs never duplicate them.
type CanonicalCustomer struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Email     string
	TaxID     string
	Name      string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasIdentity reports whether the customer can be matched at all
func (c *CanonicalCustomer) HasIdentity() bool {
	return c.Email != "" || c.TaxID != ""
}

// MirrorStore is the local relational mirror. Upserts are keyed by IdempotencyKey
// and enforced by the store's unique constraint.
type MirrorStore interface {
	// UpsertOrder inserts or updates the order and its items, bumping last_sync_at
	UpsertOrder(ctx context.Context, order *CanonicalOrder) (UpsertOutcome, error)
	// UpsertProduct inserts or updates the product, bumping last_sync_at
	UpsertProduct(ctx context.Context, product *CanonicalProduct) (UpsertOutcome, error)
	// ResolveCustomer returns the customer matching email or tax id, creating it when absent
	ResolveCustomer(ctx context.Context, candidate *CanonicalCustomer) (*CanonicalCustomer, error)
	// GetOrder returns the mirrored order or ErrNotFound
	GetOrder(ctx context.Context, key IdempotencyKey) (*CanonicalOrder, error)
	// ListStaleOrders returns orders whose last_sync_at is older than olderThan
	ListStaleOrders(ctx context.Context, key Key, olderThan time.Time, limit int) ([]*CanonicalOrder, error)
}
