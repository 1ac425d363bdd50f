package integration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Typed remote shapes produced by the adapter's parse boundary
// ---------------------------------------------------------------------------

// RemoteOrderSummary is one entry of a remote order listing
type RemoteOrderSummary struct {
	ExternalID  string
	LastUpdated time.Time
}

// OrderPage is one page of a remote order listing
type OrderPage struct {
	Orders []RemoteOrderSummary
	// NextPageToken is empty on the last page
	NextPageToken string
	Total         int
}

// RemoteOrder is the validated detail of one marketplace order
type RemoteOrder struct {
	ExternalID string
	// Status is the raw marketplace status string
	Status         string
	StatusDetail   string
	Total          decimal.Decimal
	PaidAmount     decimal.Decimal
	Currency       string
	Buyer          RemoteBuyer
	Items          []RemoteOrderItem
	ShipmentID     string
	TrackingNumber string
	// Tags carries marketplace flags such as "delivered" that refine the status
	Tags        []string
	CreatedAt   time.Time
	LastUpdated time.Time
	Raw         []byte
}

// RemoteBuyer is the buyer block of a remote order
type RemoteBuyer struct {
	ExternalID string
	Nickname   string
	FirstName  string
	LastName   string
	Email      string
	TaxID      string
	Phone      string
}

// RemoteOrderItem is one line of a remote order
type RemoteOrderItem struct {
	ExternalItemID string
	Title          string
	SKU            string
	Quantity       int
	UnitPrice      decimal.Decimal
}

// ProductPage is one page of a remote catalog listing (ids only)
type ProductPage struct {
	ProductIDs    []string
	NextPageToken string
	Total         int
}

// RemoteProduct is the validated detail of one marketplace listing
type RemoteProduct struct {
	ExternalID        string
	Title             string
	SKU               string
	Price             decimal.Decimal
	Currency          string
	AvailableQuantity int
	Status            string
	Permalink         string
	LastUpdated       time.Time
	Raw               []byte
}

// MarketplaceAPI is the port for the marketplace's listing and detail endpoints.
// Implementations route every call through the rate-limited retrying client and
// return *MappingError for payloads they cannot parse.
type MarketplaceAPI interface {
	// ListOrders lists orders of sellerID updated since, starting at pageToken
	ListOrders(ctx context.Context, key Key, sellerID string, since time.Time, pageToken string) (*OrderPage, error)
	// GetOrder fetches the full detail of one order
	GetOrder(ctx context.Context, key Key, orderID string) (*RemoteOrder, error)
	// ListProducts lists listing ids of sellerID starting at pageToken
	ListProducts(ctx context.Context, key Key, sellerID string, pageToken string) (*ProductPage, error)
	// GetProduct fetches the full detail of one listing
	GetProduct(ctx context.Context, key Key, productID string) (*RemoteProduct, error)
}

// PayloadQuarantine keeps unmappable remote payloads for later inspection
type PayloadQuarantine interface {
	Quarantine(ctx context.Context, key Key, resource ResourceKind, externalID string, payload []byte, reason string) error
}
