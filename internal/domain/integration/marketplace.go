package integration

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// MarketplaceCode identifies an external marketplace
// ---------------------------------------------------------------------------

// MarketplaceCode identifies an external marketplace
type MarketplaceCode string

const (
	// MarketplaceMercadoLibre is the MercadoLibre marketplace
	MarketplaceMercadoLibre MarketplaceCode = "MERCADOLIBRE"
)

// IsValid returns true if the marketplace code is known
func (c MarketplaceCode) IsValid() bool {
	switch c {
	case MarketplaceMercadoLibre:
		return true
	default:
		return false
	}
}

// String returns the string representation of MarketplaceCode
func (c MarketplaceCode) String() string {
	return string(c)
}

// DisplayName returns a human-readable name for the marketplace
func (c MarketplaceCode) DisplayName() string {
	switch c {
	case MarketplaceMercadoLibre:
		return "Mercado Libre"
	default:
		return string(c)
	}
}

// ParseMarketplaceCode parses a case-insensitive marketplace name such as "mercadolibre".
func ParseMarketplaceCode(s string) (MarketplaceCode, error) {
	code := MarketplaceCode(strings.ToUpper(strings.TrimSpace(s)))
	if !code.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMarketplace, s)
	}
	return code, nil
}

// ---------------------------------------------------------------------------
// Key scopes all integration state to one tenant and marketplace
// ---------------------------------------------------------------------------

// Key identifies the (tenant, marketplace) pair that owns a credential,
// a rate-limit window, sync cursors and the per-key execution lane.
type Key struct {
	TenantID    uuid.UUID
	Marketplace MarketplaceCode
}

// NewKey creates a Key
func NewKey(tenantID uuid.UUID, marketplace MarketplaceCode) Key {
	return Key{TenantID: tenantID, Marketplace: marketplace}
}

// String returns "tenant:marketplace"
func (k Key) String() string {
	return k.TenantID.String() + ":" + string(k.Marketplace)
}

// Validate checks that both parts of the key are set
func (k Key) Validate() error {
	if k.TenantID == uuid.Nil {
		return ErrInvalidTenantID
	}
	if !k.Marketplace.IsValid() {
		return ErrInvalidMarketplace
	}
	return nil
}
