package ecommerce

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Common MercadoLibre API Types
// ---------------------------------------------------------------------------

// mlID accepts ids sent either as JSON numbers or strings
type mlID string

// UnmarshalJSON implements json.Unmarshaler
func (id *mlID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = mlID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return err
	}
	*id = mlID(n.String())
	return nil
}

// MLPaging is the paging block of search responses
type MLPaging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ---------------------------------------------------------------------------
// Order Related Types
// ---------------------------------------------------------------------------

// MLOrderSearchResponse is the response of GET /orders/search
type MLOrderSearchResponse struct {
	Results []MLOrderSummary `json:"results"`
	Paging  MLPaging         `json:"paging"`
}

// MLOrderSummary is one element of an order search
type MLOrderSummary struct {
	ID              mlID   `json:"id"`
	Status          string `json:"status"`
	DateLastUpdated string `json:"date_last_updated"`
}

// MLOrder is the response of GET /orders/{id}
type MLOrder struct {
	ID              mlID           `json:"id"`
	Status          string         `json:"status"`
	StatusDetail    *string        `json:"status_detail"`
	DateCreated     string         `json:"date_created"`
	DateLastUpdated string         `json:"date_last_updated"`
	LastUpdated     string         `json:"last_updated"`
	TotalAmount     *json.Number   `json:"total_amount"`
	PaidAmount      *json.Number   `json:"paid_amount"`
	CurrencyID      string         `json:"currency_id"`
	Buyer           *MLBuyer       `json:"buyer"`
	OrderItems      []MLOrderItem  `json:"order_items"`
	Shipping        *MLShippingRef `json:"shipping"`
	Tags            []string       `json:"tags"`
}

// MLBuyer is the buyer block of an order
type MLBuyer struct {
	ID          mlID           `json:"id"`
	Nickname    string         `json:"nickname"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	Email       string         `json:"email"`
	Phone       *MLPhone       `json:"phone"`
	BillingInfo *MLBillingInfo `json:"billing_info"`
}

// MLPhone is a buyer phone
type MLPhone struct {
	AreaCode string `json:"area_code"`
	Number   string `json:"number"`
}

// MLBillingInfo carries the buyer's tax document
type MLBillingInfo struct {
	DocType   string `json:"doc_type"`
	DocNumber string `json:"doc_number"`
}

// MLOrderItem is one line of an order
type MLOrderItem struct {
	Item      MLOrderItemRef `json:"item"`
	Quantity  int            `json:"quantity"`
	UnitPrice *json.Number   `json:"unit_price"`
}

// MLOrderItemRef identifies the listing sold in an order line
type MLOrderItemRef struct {
	ID        mlID   `json:"id"`
	Title     string `json:"title"`
	SellerSKU string `json:"seller_sku"`
}

// MLShippingRef links an order to its shipment
type MLShippingRef struct {
	ID             mlID   `json:"id"`
	TrackingNumber string `json:"tracking_number"`
}

// ---------------------------------------------------------------------------
// Item (Product) Related Types
// ---------------------------------------------------------------------------

// MLItemSearchResponse is the response of GET /users/{seller}/items/search
type MLItemSearchResponse struct {
	Results []string `json:"results"`
	Paging  MLPaging `json:"paging"`
}

// MLItem is the response of GET /items/{id}
type MLItem struct {
	ID                mlID          `json:"id"`
	Title             string        `json:"title"`
	Price             *json.Number  `json:"price"`
	CurrencyID        string        `json:"currency_id"`
	AvailableQuantity int           `json:"available_quantity"`
	Status            string        `json:"status"`
	Permalink         string        `json:"permalink"`
	SellerCustomField string        `json:"seller_custom_field"`
	LastUpdated       string        `json:"last_updated"`
	Attributes        []MLAttribute `json:"attributes"`
}

// MLAttribute is one listing attribute
type MLAttribute struct {
	ID        string `json:"id"`
	ValueName string `json:"value_name"`
}

// SellerSKU returns the seller SKU attribute, falling back to the custom field
func (i *MLItem) SellerSKU() string {
	for _, attr := range i.Attributes {
		if attr.ID == "SELLER_SKU" && attr.ValueName != "" {
			return attr.ValueName
		}
	}
	return i.SellerCustomField
}
