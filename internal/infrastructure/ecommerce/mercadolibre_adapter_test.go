package ecommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/marketsync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const mlOrderFixture = `{
	"id": 2000003508419013,
	"status": "paid",
	"status_detail": null,
	"date_created": "2026-02-27T10:15:00.000-04:00",
	"date_last_updated": "2026-02-28T08:00:00.000-04:00",
	"total_amount": 150.50,
	"paid_amount": 150.50,
	"currency_id": "ars",
	"buyer": {
		"id": 123456,
		"nickname": "COMPRADOR1",
		"first_name": "Ana",
		"last_name": "Pérez",
		"email": "Ana.Perez@Example.com",
		"phone": {"area_code": "11", "number": "5555-1234"},
		"billing_info": {"doc_type": "DNI", "doc_number": "30111222"}
	},
	"order_items": [
		{"item": {"id": "MLA686791111", "title": "Mate de calabaza", "seller_sku": "MATE-01"}, "quantity": 2, "unit_price": 75.25}
	],
	"shipping": {"id": 40123456789},
	"tags": ["paid", "not_delivered"]
}`

const mlItemFixture = `{
	"id": "MLA686791111",
	"title": "Mate de calabaza",
	"price": 75.25,
	"currency_id": "ARS",
	"available_quantity": 12,
	"status": "active",
	"permalink": "https://articulo.mercadolibre.com.ar/MLA-686791111",
	"seller_custom_field": "CUSTOM",
	"last_updated": "2026-02-28T09:00:00.000Z",
	"attributes": [{"id": "BRAND", "value_name": "Gaucho"}, {"id": "SELLER_SKU", "value_name": "MATE-01"}]
}`

func newMLTestAdapter(t *testing.T, handler http.HandlerFunc) *MercadoLibreAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewRetryingClient(DefaultClientConfig(server.URL), &fakeTokenSource{}, nil,
		WithClientClock(nil, newFakeClock().Sleep))
	require.NoError(t, err)

	cfg := NewMercadoLibreConfig("app", "secret", "")
	cfg.PageSize = 2
	adapter, err := NewMercadoLibreAdapter(client, cfg)
	require.NoError(t, err)
	return adapter
}

func mlKey() integration.Key {
	return integration.NewKey(testTenant, integration.MarketplaceMercadoLibre)
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestMercadoLibreConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *MercadoLibreConfig
		wantErr error
	}{
		{"valid config", &MercadoLibreConfig{ClientID: "id", ClientSecret: "secret"}, nil},
		{"missing client id", &MercadoLibreConfig{ClientSecret: "secret"}, ErrMercadoLibreConfigMissingClientID},
		{"missing client secret", &MercadoLibreConfig{ClientID: "id"}, ErrMercadoLibreConfigMissingClientSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, MercadoLibreAPIURL, tt.config.APIBaseURL)
			assert.Equal(t, MercadoLibreTokenURL, tt.config.TokenURL)
			assert.Equal(t, MercadoLibreDefaultPageSize, tt.config.PageSize)
		})
	}
}

// ---------------------------------------------------------------------------
// Order Tests
// ---------------------------------------------------------------------------

func TestMercadoLibreAdapter_ListOrders(t *testing.T) {
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	adapter := newMLTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/search", r.URL.Path)
		assert.Equal(t, "468424240", r.URL.Query().Get("seller"))
		assert.Equal(t, "2026-02-01T00:00:00.000Z", r.URL.Query().Get("order.date_last_updated.from"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		switch r.URL.Query().Get("offset") {
		case "0":
			_, _ = w.Write([]byte(`{"results":[{"id":1,"date_last_updated":"2026-02-02T00:00:00.000Z"},{"id":"2"}],"paging":{"total":3,"offset":0,"limit":2}}`))
		case "2":
			_, _ = w.Write([]byte(`{"results":[{"id":3}],"paging":{"total":3,"offset":2,"limit":2}}`))
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
		}
	})

	page, err := adapter.ListOrders(context.Background(), mlKey(), "468424240", since, "")
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, "1", page.Orders[0].ExternalID)
	assert.Equal(t, "2", page.Orders[1].ExternalID)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, "2", page.NextPageToken)

	page, err = adapter.ListOrders(context.Background(), mlKey(), "468424240", since, page.NextPageToken)
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Empty(t, page.NextPageToken)
}

func TestMercadoLibreAdapter_ListOrders_InvalidResponse(t *testing.T) {
	adapter := newMLTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := adapter.ListOrders(context.Background(), mlKey(), "1", time.Time{}, "")
	assert.ErrorIs(t, err, integration.ErrMapping)
}

func TestMercadoLibreAdapter_GetOrder(t *testing.T) {
	adapter := newMLTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/2000003508419013", r.URL.Path)
		assert.Equal(t, "Bearer token-0", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(mlOrderFixture))
	})

	order, err := adapter.GetOrder(context.Background(), mlKey(), "2000003508419013")
	require.NoError(t, err)

	assert.Equal(t, "2000003508419013", order.ExternalID)
	assert.Equal(t, "paid", order.Status)
	assert.True(t, decimal.RequireFromString("150.50").Equal(order.Total))
	assert.Equal(t, "ARS", order.Currency)
	assert.Equal(t, "Ana.Perez@Example.com", order.Buyer.Email)
	assert.Equal(t, "30111222", order.Buyer.TaxID)
	assert.Equal(t, "11 5555-1234", order.Buyer.Phone)
	assert.Equal(t, "123456", order.Buyer.ExternalID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "MLA686791111", order.Items[0].ExternalItemID)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, "40123456789", order.ShipmentID)
	assert.Equal(t, []string{"paid", "not_delivered"}, order.Tags)
	assert.False(t, order.CreatedAt.IsZero())
	assert.NotEmpty(t, order.Raw)
}

func TestParseMLOrder_MappingErrors(t *testing.T) {
	base := func() map[string]any {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(mlOrderFixture), &m))
		return m
	}
	encode := func(m map[string]any) []byte {
		b, err := json.Marshal(m)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name  string
		raw   func() []byte
		field string
	}{
		{"not json", func() []byte { return []byte(`{"id":`) }, ""},
		{"missing id", func() []byte { m := base(); delete(m, "id"); return encode(m) }, "id"},
		{"missing status", func() []byte { m := base(); m["status"] = ""; return encode(m) }, "status"},
		{"missing total", func() []byte { m := base(); delete(m, "total_amount"); return encode(m) }, "total_amount"},
		{"negative total", func() []byte { m := base(); m["total_amount"] = -1; return encode(m) }, "total_amount"},
		{"bad date", func() []byte { m := base(); m["date_created"] = "yesterday"; return encode(m) }, "date_created"},
		{"zero quantity", func() []byte {
			m := base()
			m["order_items"] = []any{map[string]any{"item": map[string]any{"id": "MLA1"}, "quantity": 0, "unit_price": 1}}
			return encode(m)
		}, "order_items[0].quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.raw()
			_, err := parseMLOrder("ML-9", raw)
			require.Error(t, err)

			var me *integration.MappingError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, integration.ResourceOrders, me.Resource)
			assert.Equal(t, "ML-9", me.ExternalID)
			assert.Equal(t, tt.field, me.Field)
			assert.Equal(t, raw, me.Payload)
		})
	}
}

func TestParseMLOrder_StringID(t *testing.T) {
	order, err := parseMLOrder("ML-1", []byte(`{"id":"ML-1","status":"paid","total_amount":100.00,"buyer":{"email":"a@b.com"}}`))
	require.NoError(t, err)
	assert.Equal(t, "ML-1", order.ExternalID)
	assert.True(t, decimal.NewFromInt(100).Equal(order.Total))
	assert.Empty(t, order.Items)
}

// ---------------------------------------------------------------------------
// Item Tests
// ---------------------------------------------------------------------------

func TestMercadoLibreAdapter_Products(t *testing.T) {
	adapter := newMLTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/468424240/items/search":
			_, _ = w.Write([]byte(`{"results":["MLA686791111"," "],"paging":{"total":2,"offset":0,"limit":2}}`))
		case "/items/MLA686791111":
			_, _ = w.Write([]byte(mlItemFixture))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	page, err := adapter.ListProducts(context.Background(), mlKey(), "468424240", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"MLA686791111"}, page.ProductIDs)
	assert.Empty(t, page.NextPageToken)

	product, err := adapter.GetProduct(context.Background(), mlKey(), "MLA686791111")
	require.NoError(t, err)
	assert.Equal(t, "Mate de calabaza", product.Title)
	assert.Equal(t, "MATE-01", product.SKU)
	assert.Equal(t, 12, product.AvailableQuantity)
	assert.True(t, decimal.RequireFromString("75.25").Equal(product.Price))

	_, err = adapter.GetProduct(context.Background(), mlKey(), "MLA404")
	var reqErr *integration.RequestError
	assert.ErrorAs(t, err, &reqErr)
}

func TestParseMLItem_MappingErrors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing title", `{"id":"MLA1","price":1}`, "title"},
		{"missing price", `{"id":"MLA1","title":"x"}`, "price"},
		{"negative stock", `{"id":"MLA1","title":"x","price":1,"available_quantity":-1}`, "available_quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseMLItem("MLA1", []byte(tt.raw))
			var me *integration.MappingError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.field, me.Field)
			assert.Equal(t, integration.ResourceProducts, me.Resource)
		})
	}
}

func TestPaging(t *testing.T) {
	assert.Equal(t, 0, parseOffset(""))
	assert.Equal(t, 0, parseOffset("garbage"))
	assert.Equal(t, 0, parseOffset("-4"))
	assert.Equal(t, 50, parseOffset("50"))

	assert.Equal(t, "50", nextOffset(0, 50, 120))
	assert.Equal(t, "", nextOffset(100, 20, 120))
	assert.Equal(t, "", nextOffset(0, 0, 120))
}
