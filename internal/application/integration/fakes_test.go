package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeMarketplace serves orders and products from memory
type fakeMarketplace struct {
	mu       sync.Mutex
	pageSize int
	orders   map[string]*integration.RemoteOrder
	order    []string
	products map[string]*integration.RemoteProduct

	listErr   error
	detailErr map[string]error
	listCalls int
	getCalls  []string
	getTimes  []time.Time
	onGet     func(id string)
}

func newFakeMarketplace() *fakeMarketplace {
	return &fakeMarketplace{
		pageSize:  50,
		orders:    make(map[string]*integration.RemoteOrder),
		products:  make(map[string]*integration.RemoteProduct),
		detailErr: make(map[string]error),
	}
}

func (f *fakeMarketplace) addOrder(o *integration.RemoteOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[o.ExternalID]; !ok {
		f.order = append(f.order, o.ExternalID)
	}
	f.orders[o.ExternalID] = o
}

func (f *fakeMarketplace) addProduct(p *integration.RemoteProduct) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ExternalID] = p
}

func (f *fakeMarketplace) failDetail(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailErr[id] = err
}

func (f *fakeMarketplace) page(ids []string, pageToken string) ([]string, string, error) {
	start := 0
	if pageToken != "" {
		if _, err := fmt.Sscanf(pageToken, "offset-%d", &start); err != nil {
			return nil, "", err
		}
	}
	if start > len(ids) {
		start = len(ids)
	}
	end := start + f.pageSize
	if end > len(ids) {
		end = len(ids)
	}
	next := ""
	if end < len(ids) {
		next = fmt.Sprintf("offset-%d", end)
	}
	return ids[start:end], next, nil
}

func (f *fakeMarketplace) ListOrders(_ context.Context, _ integration.Key, _ string, since time.Time, pageToken string) (*integration.OrderPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var ids []string
	for _, id := range f.order {
		if !f.orders[id].LastUpdated.Before(since) {
			ids = append(ids, id)
		}
	}
	ids, next, err := f.page(ids, pageToken)
	if err != nil {
		return nil, err
	}
	page := &integration.OrderPage{NextPageToken: next}
	for _, id := range ids {
		page.Orders = append(page.Orders, integration.RemoteOrderSummary{ExternalID: id, LastUpdated: f.orders[id].LastUpdated})
	}
	return page, nil
}

func (f *fakeMarketplace) GetOrder(_ context.Context, _ integration.Key, orderID string) (*integration.RemoteOrder, error) {
	f.mu.Lock()
	f.getCalls = append(f.getCalls, orderID)
	f.getTimes = append(f.getTimes, time.Now())
	hook := f.onGet
	err := f.detailErr[orderID]
	o, ok := f.orders[orderID]
	f.mu.Unlock()
	if hook != nil {
		hook(orderID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &integration.RequestError{StatusCode: 404, Body: "order not found"}
	}
	cp := *o
	return &cp, nil
}

func (f *fakeMarketplace) ListProducts(_ context.Context, _ integration.Key, _ string, pageToken string) (*integration.ProductPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]string, 0, len(f.products))
	for id := range f.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ids, next, err := f.page(ids, pageToken)
	if err != nil {
		return nil, err
	}
	return &integration.ProductPage{ProductIDs: ids, NextPageToken: next}, nil
}

func (f *fakeMarketplace) GetProduct(_ context.Context, _ integration.Key, productID string) (*integration.RemoteProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls = append(f.getCalls, productID)
	if err := f.detailErr[productID]; err != nil {
		return nil, err
	}
	p, ok := f.products[productID]
	if !ok {
		return nil, &integration.RequestError{StatusCode: 404, Body: "item not found"}
	}
	cp := *p
	return &cp, nil
}

// memCredentials is an in-memory CredentialStore
type memCredentials struct {
	mu    sync.Mutex
	creds map[integration.Key]*integration.IntegrationCredential
}

func newMemCredentials(creds ...*integration.IntegrationCredential) *memCredentials {
	m := &memCredentials{creds: make(map[integration.Key]*integration.IntegrationCredential)}
	for _, c := range creds {
		m.creds[c.Key()] = c
	}
	return m
}

func (m *memCredentials) Get(_ context.Context, key integration.Key) (*integration.IntegrationCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[key]
	if !ok {
		return nil, integration.ErrCredentialNotFound
	}
	return c.Clone(), nil
}

func (m *memCredentials) Save(_ context.Context, cred *integration.IntegrationCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.Key()] = cred.Clone()
	return nil
}

func (m *memCredentials) MarkInvalid(_ context.Context, key integration.Key, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[key]
	if !ok {
		return integration.ErrCredentialNotFound
	}
	c.MarkInvalid(reason, time.Now())
	return nil
}

func (m *memCredentials) FindByExternalUserID(_ context.Context, marketplace integration.MarketplaceCode, externalUserID string) (*integration.IntegrationCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if c.Marketplace == marketplace && c.ExternalUserID == externalUserID {
			return c.Clone(), nil
		}
	}
	return nil, integration.ErrCredentialNotFound
}

func (m *memCredentials) ListActive(context.Context) ([]*integration.IntegrationCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*integration.IntegrationCredential
	for _, c := range m.creds {
		if c.IsActive() {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// memCursors is an in-memory CursorStore
type memCursors struct {
	mu      sync.Mutex
	cursors map[string]integration.SyncCursor
	saves   int
	saveErr error
}

func newMemCursors() *memCursors {
	return &memCursors{cursors: make(map[string]integration.SyncCursor)}
}

func (m *memCursors) Get(_ context.Context, key integration.Key, resource integration.ResourceKind) (*integration.SyncCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[key.String()+"/"+resource.String()]
	if !ok {
		return nil, integration.ErrNotFound
	}
	return &c, nil
}

func (m *memCursors) Save(_ context.Context, cursor *integration.SyncCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.cursors[cursor.Key().String()+"/"+cursor.Resource.String()] = *cursor
	return nil
}

func (m *memCursors) get(key integration.Key, resource integration.ResourceKind) (integration.SyncCursor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[key.String()+"/"+resource.String()]
	return c, ok
}

// memMirror is an in-memory MirrorStore
type memMirror struct {
	mu        sync.Mutex
	orders    map[integration.IdempotencyKey]*integration.CanonicalOrder
	products  map[integration.IdempotencyKey]*integration.CanonicalProduct
	customers []*integration.CanonicalCustomer
	upsertErr map[string]error
}

func newMemMirror() *memMirror {
	return &memMirror{
		orders:    make(map[integration.IdempotencyKey]*integration.CanonicalOrder),
		products:  make(map[integration.IdempotencyKey]*integration.CanonicalProduct),
		upsertErr: make(map[string]error),
	}
}

func (m *memMirror) UpsertOrder(_ context.Context, order *integration.CanonicalOrder) (integration.UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.upsertErr[order.ExternalID]; err != nil {
		return "", err
	}
	cp := *order
	if existing, ok := m.orders[order.IdempotencyKey()]; ok {
		cp.ID = existing.ID
		m.orders[order.IdempotencyKey()] = &cp
		return integration.UpsertUpdated, nil
	}
	cp.ID = uuid.New()
	m.orders[order.IdempotencyKey()] = &cp
	return integration.UpsertCreated, nil
}

func (m *memMirror) UpsertProduct(_ context.Context, product *integration.CanonicalProduct) (integration.UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *product
	if existing, ok := m.products[product.IdempotencyKey()]; ok {
		cp.ID = existing.ID
		m.products[product.IdempotencyKey()] = &cp
		return integration.UpsertUpdated, nil
	}
	cp.ID = uuid.New()
	m.products[product.IdempotencyKey()] = &cp
	return integration.UpsertCreated, nil
}

func (m *memMirror) ResolveCustomer(_ context.Context, candidate *integration.CanonicalCustomer) (*integration.CanonicalCustomer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.customers {
		if c.TenantID != candidate.TenantID {
			continue
		}
		if (candidate.Email != "" && c.Email == candidate.Email) || (candidate.TaxID != "" && c.TaxID == candidate.TaxID) {
			return c, nil
		}
	}
	cp := *candidate
	cp.ID = uuid.New()
	m.customers = append(m.customers, &cp)
	return &cp, nil
}

func (m *memMirror) GetOrder(_ context.Context, key integration.IdempotencyKey) (*integration.CanonicalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[key]
	if !ok {
		return nil, integration.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memMirror) ListStaleOrders(_ context.Context, key integration.Key, olderThan time.Time, limit int) ([]*integration.CanonicalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*integration.CanonicalOrder
	for _, o := range m.orders {
		if o.TenantID == key.TenantID && o.Marketplace == key.Marketplace && o.LastSyncAt.Before(olderThan) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSyncAt.Before(out[j].LastSyncAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMirror) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// memQuarantine records quarantined payloads
type memQuarantine struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (q *memQuarantine) Quarantine(_ context.Context, _ integration.Key, resource integration.ResourceKind, externalID string, payload []byte, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.entries == nil {
		q.entries = make(map[string][]byte)
	}
	q.entries[resource.String()+"/"+externalID] = payload
	return nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const testSellerID = "468424240"

func newTestKey() integration.Key {
	return integration.NewKey(uuid.New(), integration.MarketplaceMercadoLibre)
}

func newTestCredential(t *testing.T, key integration.Key) *integration.IntegrationCredential {
	t.Helper()
	cred, err := integration.NewIntegrationCredential(key, integration.TokenGrant{
		AccessToken:    "APP_USR-access",
		RefreshToken:   "TG-refresh",
		ExpiresIn:      6 * time.Hour,
		ExternalUserID: testSellerID,
	}, time.Now())
	require.NoError(t, err)
	return cred
}

func newRemoteOrder(id, status string, updated time.Time) *integration.RemoteOrder {
	return &integration.RemoteOrder{
		ExternalID:  id,
		Status:      status,
		Total:       decimal.RequireFromString("100.00"),
		PaidAmount:  decimal.RequireFromString("100.00"),
		Currency:    "ARS",
		Buyer:       integration.RemoteBuyer{ExternalID: "9001", Nickname: "BUYER", Email: "a@b.com"},
		Items:       []integration.RemoteOrderItem{{ExternalItemID: "MLA1", Title: "Mate", Quantity: 1, UnitPrice: decimal.RequireFromString("100.00")}},
		CreatedAt:   updated.Add(-time.Hour),
		LastUpdated: updated,
		Raw:         []byte(fmt.Sprintf(`{"id":%q,"status":%q}`, id, status)),
	}
}

// syncFixture wires a SyncServiceImpl over in-memory stores
type syncFixture struct {
	key        integration.Key
	api        *fakeMarketplace
	creds      *memCredentials
	cursors    *memCursors
	mirror     *memMirror
	quarantine *memQuarantine
	service    *SyncServiceImpl
}

func newSyncFixture(t *testing.T, cfg SyncServiceConfig, opts ...SyncServiceOption) *syncFixture {
	t.Helper()
	key := newTestKey()
	f := &syncFixture{
		key:        key,
		api:        newFakeMarketplace(),
		creds:      newMemCredentials(newTestCredential(t, key)),
		cursors:    newMemCursors(),
		mirror:     newMemMirror(),
		quarantine: &memQuarantine{},
	}
	opts = append([]SyncServiceOption{WithQuarantine(f.quarantine)}, opts...)
	f.service = NewSyncService(
		map[integration.MarketplaceCode]integration.MarketplaceAPI{integration.MarketplaceMercadoLibre: f.api},
		f.creds, f.mirror, f.cursors, cfg, nil, opts...,
	)
	return f
}

// unpacedConfig disables detail pacing so tests run fast
func unpacedConfig() SyncServiceConfig {
	cfg := DefaultSyncServiceConfig()
	cfg.DetailRate = 0
	cfg.RunBudget = 0
	return cfg
}
