package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/marketsync/internal/domain/integration"
)

// mlTimeLayout is the timestamp format MercadoLibre accepts in search filters
const mlTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Doer sends a marketplace request for a tenant; implemented by RetryingClient
type Doer interface {
	Do(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, req *Request) (*Response, error)
}

// MercadoLibreAdapter implements integration.MarketplaceAPI for MercadoLibre.
// Every call goes through the retrying client; every payload crosses a typed parse
// boundary and comes out either as a validated remote shape or a *MappingError.
type MercadoLibreAdapter struct {
	client Doer
	config *MercadoLibreConfig
}

// NewMercadoLibreAdapter creates a new MercadoLibre adapter
func NewMercadoLibreAdapter(client Doer, config *MercadoLibreConfig) (*MercadoLibreAdapter, error) {
	if client == nil {
		return nil, fmt.Errorf("mercadolibre: client is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &MercadoLibreAdapter{client: client, config: config}, nil
}

// Marketplace returns the marketplace this adapter handles
func (a *MercadoLibreAdapter) Marketplace() integration.MarketplaceCode {
	return integration.MarketplaceMercadoLibre
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// ListOrders lists the seller's orders updated since the given time, oldest first
func (a *MercadoLibreAdapter) ListOrders(ctx context.Context, key integration.Key, sellerID string, since time.Time, pageToken string) (*integration.OrderPage, error) {
	offset := parseOffset(pageToken)

	q := url.Values{}
	q.Set("seller", sellerID)
	q.Set("sort", "date_asc")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(a.config.PageSize))
	if !since.IsZero() {
		q.Set("order.date_last_updated.from", since.UTC().Format(mlTimeLayout))
	}

	resp, err := a.client.Do(ctx, key.TenantID, key.Marketplace, NewGetRequest("/orders/search", q))
	if err != nil {
		return nil, err
	}

	var body MLOrderSearchResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &integration.MappingError{
			Resource: integration.ResourceOrders,
			Reason:   "invalid order search response: " + err.Error(),
			Payload:  resp.Body,
		}
	}

	page := &integration.OrderPage{
		Orders: make([]integration.RemoteOrderSummary, 0, len(body.Results)),
		Total:  body.Paging.Total,
	}
	for _, r := range body.Results {
		if r.ID == "" {
			continue
		}
		summary := integration.RemoteOrderSummary{ExternalID: string(r.ID)}
		if t, err := parseMLTime(r.DateLastUpdated); err == nil {
			summary.LastUpdated = t
		}
		page.Orders = append(page.Orders, summary)
	}
	page.NextPageToken = nextOffset(offset, len(body.Results), body.Paging.Total)
	return page, nil
}

// GetOrder retrieves a single order
func (a *MercadoLibreAdapter) GetOrder(ctx context.Context, key integration.Key, orderID string) (*integration.RemoteOrder, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, &integration.MappingError{Resource: integration.ResourceOrders, Field: "id", Reason: "empty order id"}
	}
	resp, err := a.client.Do(ctx, key.TenantID, key.Marketplace, NewGetRequest("/orders/"+url.PathEscape(orderID), nil))
	if err != nil {
		return nil, err
	}
	return parseMLOrder(orderID, resp.Body)
}

// ---------------------------------------------------------------------------
// Item (Product) Operations
// ---------------------------------------------------------------------------

// ListProducts lists the seller's listing ids
func (a *MercadoLibreAdapter) ListProducts(ctx context.Context, key integration.Key, sellerID string, pageToken string) (*integration.ProductPage, error) {
	offset := parseOffset(pageToken)

	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(a.config.PageSize))

	path := "/users/" + url.PathEscape(sellerID) + "/items/search"
	resp, err := a.client.Do(ctx, key.TenantID, key.Marketplace, NewGetRequest(path, q))
	if err != nil {
		return nil, err
	}

	var body MLItemSearchResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &integration.MappingError{
			Resource: integration.ResourceProducts,
			Reason:   "invalid item search response: " + err.Error(),
			Payload:  resp.Body,
		}
	}

	page := &integration.ProductPage{
		ProductIDs: make([]string, 0, len(body.Results)),
		Total:      body.Paging.Total,
	}
	for _, id := range body.Results {
		if id = strings.TrimSpace(id); id != "" {
			page.ProductIDs = append(page.ProductIDs, id)
		}
	}
	page.NextPageToken = nextOffset(offset, len(body.Results), body.Paging.Total)
	return page, nil
}

// GetProduct retrieves a single listing
func (a *MercadoLibreAdapter) GetProduct(ctx context.Context, key integration.Key, productID string) (*integration.RemoteProduct, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, &integration.MappingError{Resource: integration.ResourceProducts, Field: "id", Reason: "empty item id"}
	}
	resp, err := a.client.Do(ctx, key.TenantID, key.Marketplace, NewGetRequest("/items/"+url.PathEscape(productID), nil))
	if err != nil {
		return nil, err
	}
	return parseMLItem(productID, resp.Body)
}

// ---------------------------------------------------------------------------
// Parse boundary
// ---------------------------------------------------------------------------

func parseMLOrder(requestedID string, raw []byte) (*integration.RemoteOrder, error) {
	fail := func(field, reason string) error {
		return &integration.MappingError{
			Resource:   integration.ResourceOrders,
			ExternalID: requestedID,
			Field:      field,
			Reason:     reason,
			Payload:    raw,
		}
	}

	var o MLOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fail("", "invalid json: "+err.Error())
	}
	if o.ID == "" {
		return nil, fail("id", "missing")
	}
	if strings.TrimSpace(o.Status) == "" {
		return nil, fail("status", "missing")
	}

	total, err := parseAmount(o.TotalAmount, true)
	if err != nil {
		return nil, fail("total_amount", err.Error())
	}
	paid, err := parseAmount(o.PaidAmount, false)
	if err != nil {
		return nil, fail("paid_amount", err.Error())
	}

	order := &integration.RemoteOrder{
		ExternalID: string(o.ID),
		Status:     strings.TrimSpace(o.Status),
		Total:      total,
		PaidAmount: paid,
		Currency:   strings.ToUpper(strings.TrimSpace(o.CurrencyID)),
		Tags:       o.Tags,
		Items:      make([]integration.RemoteOrderItem, 0, len(o.OrderItems)),
		Raw:        raw,
	}
	if o.StatusDetail != nil {
		order.StatusDetail = *o.StatusDetail
	}

	if order.CreatedAt, err = parseOptionalMLTime(o.DateCreated); err != nil {
		return nil, fail("date_created", err.Error())
	}
	updated := o.DateLastUpdated
	if updated == "" {
		updated = o.LastUpdated
	}
	if order.LastUpdated, err = parseOptionalMLTime(updated); err != nil {
		return nil, fail("date_last_updated", err.Error())
	}

	if o.Buyer != nil {
		order.Buyer = integration.RemoteBuyer{
			ExternalID: string(o.Buyer.ID),
			Nickname:   o.Buyer.Nickname,
			FirstName:  strings.TrimSpace(o.Buyer.FirstName),
			LastName:   strings.TrimSpace(o.Buyer.LastName),
			Email:      strings.TrimSpace(o.Buyer.Email),
		}
		if o.Buyer.BillingInfo != nil {
			order.Buyer.TaxID = strings.TrimSpace(o.Buyer.BillingInfo.DocNumber)
		}
		if o.Buyer.Phone != nil && o.Buyer.Phone.Number != "" {
			order.Buyer.Phone = strings.TrimSpace(o.Buyer.Phone.AreaCode + " " + o.Buyer.Phone.Number)
		}
	}

	for i, line := range o.OrderItems {
		if line.Item.ID == "" {
			return nil, fail(fmt.Sprintf("order_items[%d].item.id", i), "missing")
		}
		if line.Quantity <= 0 {
			return nil, fail(fmt.Sprintf("order_items[%d].quantity", i), "must be positive")
		}
		price, err := parseAmount(line.UnitPrice, true)
		if err != nil {
			return nil, fail(fmt.Sprintf("order_items[%d].unit_price", i), err.Error())
		}
		order.Items = append(order.Items, integration.RemoteOrderItem{
			ExternalItemID: string(line.Item.ID),
			Title:          line.Item.Title,
			SKU:            line.Item.SellerSKU,
			Quantity:       line.Quantity,
			UnitPrice:      price,
		})
	}

	if o.Shipping != nil {
		order.ShipmentID = string(o.Shipping.ID)
		order.TrackingNumber = o.Shipping.TrackingNumber
	}
	return order, nil
}

func parseMLItem(requestedID string, raw []byte) (*integration.RemoteProduct, error) {
	fail := func(field, reason string) error {
		return &integration.MappingError{
			Resource:   integration.ResourceProducts,
			ExternalID: requestedID,
			Field:      field,
			Reason:     reason,
			Payload:    raw,
		}
	}

	var item MLItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fail("", "invalid json: "+err.Error())
	}
	if item.ID == "" {
		return nil, fail("id", "missing")
	}
	if strings.TrimSpace(item.Title) == "" {
		return nil, fail("title", "missing")
	}
	price, err := parseAmount(item.Price, true)
	if err != nil {
		return nil, fail("price", err.Error())
	}
	if item.AvailableQuantity < 0 {
		return nil, fail("available_quantity", "negative")
	}
	updated, err := parseOptionalMLTime(item.LastUpdated)
	if err != nil {
		return nil, fail("last_updated", err.Error())
	}

	return &integration.RemoteProduct{
		ExternalID:        string(item.ID),
		Title:             strings.TrimSpace(item.Title),
		SKU:               item.SellerSKU(),
		Price:             price,
		Currency:          strings.ToUpper(strings.TrimSpace(item.CurrencyID)),
		AvailableQuantity: item.AvailableQuantity,
		Status:            item.Status,
		Permalink:         item.Permalink,
		LastUpdated:       updated,
		Raw:               raw,
	}, nil
}

// parseAmount parses a non-negative money amount
func parseAmount(n *json.Number, required bool) (decimal.Decimal, error) {
	if n == nil || n.String() == "" {
		if required {
			return decimal.Zero, fmt.Errorf("missing")
		}
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %s", n.String())
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %s", d.String())
	}
	return d, nil
}

func parseMLTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(s))
}

func parseOptionalMLTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := parseMLTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

// parseOffset decodes an offset page token; anything unreadable restarts the listing
func parseOffset(token string) int {
	if token == "" {
		return 0
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func nextOffset(offset, count, total int) string {
	next := offset + count
	if count == 0 || next >= total {
		return ""
	}
	return strconv.Itoa(next)
}

// Ensure MercadoLibreAdapter implements MarketplaceAPI interface
var _ integration.MarketplaceAPI = (*MercadoLibreAdapter)(nil)
