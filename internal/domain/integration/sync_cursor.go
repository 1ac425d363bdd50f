package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ResourceKind is the remote collection a cursor tracks
type ResourceKind string

const (
	// ResourceOrders is the marketplace order collection
	ResourceOrders ResourceKind = "orders"
	// ResourceProducts is the marketplace catalog (listings)
	ResourceProducts ResourceKind = "products"
)

// IsValid returns true if the resource kind is valid
func (k ResourceKind) IsValid() bool {
	return k == ResourceOrders || k == ResourceProducts
}

// String returns the string representation of ResourceKind
func (k ResourceKind) String() string {
	return string(k)
}

// ParseResourceKind parses "orders" or "products"
func ParseResourceKind(s string) (ResourceKind, error) {
	k := ResourceKind(s)
	if !k.IsValid() {
		return "", ErrInvalidResourceKind
	}
	return k, nil
}

// SyncCursor is the durable progress marker for one (tenant, marketplace, resource kind).
type SyncCursor struct {
	TenantID     uuid.UUID
	Marketplace  MarketplaceCode
	Resource     ResourceKind
	LastSyncedAt time.Time
	// PageToken is the opaque position inside a listing that was interrupted; empty means start over
	PageToken string
	UpdatedAt time.Time
}

// NewSyncCursor creates a cursor that starts at since
func NewSyncCursor(key Key, resource ResourceKind, since time.Time) *SyncCursor {
	return &SyncCursor{
		TenantID:     key.TenantID,
		Marketplace:  key.Marketplace,
		Resource:     resource,
		LastSyncedAt: since,
	}
}

// Key returns the (tenant, marketplace) key of the cursor
func (c *SyncCursor) Key() Key {
	return Key{TenantID: c.TenantID, Marketplace: c.Marketplace}
}

// AdvancePage records that every item of a page was attempted and the listing continues at next.
func (c *SyncCursor) AdvancePage(next string, now time.Time) {
	c.PageToken = next
	c.UpdatedAt = now
}

// Complete records that the whole listing was consumed up to watermark.
// The watermark never moves backward.
func (c *SyncCursor) Complete(watermark time.Time, now time.Time) {
	if watermark.After(c.LastSyncedAt) {
		c.LastSyncedAt = watermark
	}
	c.PageToken = ""
	c.UpdatedAt = now
}

// CursorStore reads and writes sync cursors
type CursorStore interface {
	// Get returns the cursor or ErrNotFound
	Get(ctx context.Context, key Key, resource ResourceKind) (*SyncCursor, error)
	// Save inserts or updates the cursor
	Save(ctx context.Context, cursor *SyncCursor) error
}
