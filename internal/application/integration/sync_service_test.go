package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncOrders_ResyncIsIdempotent(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, unpacedConfig(), WithSyncClock(func() time.Time { return clock }))
	f.api.addOrder(newRemoteOrder("ML-1", "paid", clock.Add(-time.Hour)))
	ctx := context.Background()

	first, err := f.service.SyncOrders(ctx, f.key.TenantID, f.key.Marketplace, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)
	assert.Equal(t, 0, first.Updated)

	clock = clock.Add(time.Hour)
	second, err := f.service.SyncOrders(ctx, f.key.TenantID, f.key.Marketplace, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 1, second.Updated)

	require.Equal(t, 1, f.mirror.orderCount())
	order, err := f.mirror.GetOrder(ctx, integration.IdempotencyKey{TenantID: f.key.TenantID, Marketplace: f.key.Marketplace, ExternalID: "ML-1"})
	require.NoError(t, err)
	assert.Equal(t, integration.OrderStatusPaid, order.Status)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, clock, order.LastSyncAt, "last_sync_at is bumped by the second run")

	require.Len(t, f.mirror.customers, 1)
	assert.Equal(t, "a@b.com", f.mirror.customers[0].Email)
	require.NotNil(t, order.CustomerID)
	assert.Equal(t, f.mirror.customers[0].ID, *order.CustomerID)
}

func TestSyncOrders_PartialFailureAdvancesCursor(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, unpacedConfig(), WithSyncClock(func() time.Time { return clock }))
	for i := 1; i <= 10; i++ {
		o := newRemoteOrder(fmt.Sprintf("ML-%d", i), "paid", clock.Add(-time.Duration(20-i)*time.Minute))
		if i == 5 {
			o.Currency = ""
		}
		f.api.addOrder(o)
	}

	result, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 9, result.Imported)
	assert.Equal(t, 9, result.Succeeded())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "ML-5", result.Errors[0].ExternalID)
	assert.Equal(t, "mapping", result.Errors[0].Kind)
	assert.True(t, result.CursorAdvanced)
	assert.Equal(t, 1, result.Pages)

	cursor, ok := f.cursors.get(f.key, integration.ResourceOrders)
	require.True(t, ok)
	assert.Empty(t, cursor.PageToken)
	assert.Equal(t, clock.Add(-10*time.Minute), cursor.LastSyncedAt, "watermark is the newest order seen")

	assert.Contains(t, f.quarantine.entries, "orders/ML-5", "unmappable payload is quarantined")
	assert.Equal(t, 9, f.mirror.orderCount())
}

func TestSyncOrders_RunAbortKeepsCursor(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"transient", &integration.TransientNetworkError{Attempts: 3, StatusCode: 503}, integration.ErrTransientNetwork},
		{"rate limit", &integration.RateLimitExceededError{Attempts: 3, RetryAfter: time.Minute}, integration.ErrRateLimitExceeded},
		{"authentication", &integration.AuthenticationError{Reason: "unauthorized after refresh"}, integration.ErrAuthentication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture(t, unpacedConfig(), WithSyncClock(func() time.Time { return clock }))
			f.api.pageSize = 3
			for i := 1; i <= 6; i++ {
				f.api.addOrder(newRemoteOrder(fmt.Sprintf("ML-%d", i), "paid", clock.Add(-time.Duration(10-i)*time.Minute)))
			}
			f.api.failDetail("ML-5", tt.err)

			result, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 4, result.Imported)
			assert.Empty(t, result.Errors, "run-level failures are not item errors")
			assert.Equal(t, 1, result.Pages)

			cursor, ok := f.cursors.get(f.key, integration.ResourceOrders)
			require.True(t, ok)
			assert.Equal(t, "offset-3", cursor.PageToken, "only the completed page moved the cursor")

			f.api.failDetail("ML-5", nil)
			f.api.getCalls = nil
			result, err = f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
			require.NoError(t, err)
			assert.Equal(t, []string{"ML-4", "ML-5", "ML-6"}, f.api.getCalls, "the next run resumes at the interrupted page")
			assert.Equal(t, 2, result.Imported)
			assert.Equal(t, 1, result.Updated)

			cursor, _ = f.cursors.get(f.key, integration.ResourceOrders)
			assert.Empty(t, cursor.PageToken)
			assert.Equal(t, clock.Add(-4*time.Minute), cursor.LastSyncedAt)
		})
	}
}

func TestSyncOrders_ListingFailureKeepsCursor(t *testing.T) {
	f := newSyncFixture(t, unpacedConfig())
	f.api.listErr = &integration.TransientNetworkError{Attempts: 4, Err: errors.New("connection reset")}

	result, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
	assert.ErrorIs(t, err, integration.ErrTransientNetwork)
	assert.False(t, result.CursorAdvanced)
	assert.Zero(t, f.cursors.saves)
}

func TestSyncOrders_CursorSaveFailure(t *testing.T) {
	f := newSyncFixture(t, unpacedConfig())
	f.api.addOrder(newRemoteOrder("ML-1", "paid", time.Now().Add(-time.Hour)))
	f.cursors.saveErr = errors.New("disk full")

	result, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
	assert.ErrorIs(t, err, integration.ErrPersistence)
	assert.False(t, result.CursorAdvanced)
	assert.Equal(t, 1, result.Imported, "upserts are kept; the page is simply retried next run")
}

func TestSyncOrders_CredentialChecks(t *testing.T) {
	t.Run("not authorized", func(t *testing.T) {
		f := newSyncFixture(t, unpacedConfig())
		other := newTestKey()

		_, err := f.service.SyncOrders(context.Background(), other.TenantID, other.Marketplace, time.Time{})
		assert.ErrorIs(t, err, integration.ErrAuthentication)
		assert.ErrorIs(t, err, integration.ErrCredentialNotFound)
		assert.Zero(t, f.api.listCalls)
	})

	t.Run("invalid credential", func(t *testing.T) {
		f := newSyncFixture(t, unpacedConfig())
		require.NoError(t, f.creds.MarkInvalid(context.Background(), f.key, "invalid_grant"))

		_, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
		assert.ErrorIs(t, err, integration.ErrAuthentication)
		assert.ErrorIs(t, err, integration.ErrCredentialInvalid)
		assert.Zero(t, f.api.listCalls, "no remote call with an invalid credential")
	})

	t.Run("marketplace not configured", func(t *testing.T) {
		f := newSyncFixture(t, unpacedConfig())
		f.service.apis = nil

		_, err := f.service.SyncProducts(context.Background(), f.key.TenantID, f.key.Marketplace)
		assert.ErrorIs(t, err, ErrMarketplaceNotConfigured)
	})
}

func TestSyncOrders_UnknownStatusWarns(t *testing.T) {
	f := newSyncFixture(t, unpacedConfig())
	f.api.addOrder(newRemoteOrder("ML-9", "under_review", time.Now().Add(-time.Hour)))

	result, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "under_review")

	order, err := f.mirror.GetOrder(context.Background(), integration.IdempotencyKey{TenantID: f.key.TenantID, Marketplace: f.key.Marketplace, ExternalID: "ML-9"})
	require.NoError(t, err)
	assert.Equal(t, integration.OrderStatusPending, order.Status)
	assert.Equal(t, "under_review", order.RemoteStatus)
}

func TestSyncOrders_BuyerWithoutIdentity(t *testing.T) {
	f := newSyncFixture(t, unpacedConfig())
	o := newRemoteOrder("ML-2", "paid", time.Now().Add(-time.Hour))
	o.Buyer = integration.RemoteBuyer{Nickname: "ANON"}
	f.api.addOrder(o)

	result, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Len(t, result.Warnings, 1)
	assert.Empty(t, f.mirror.customers)
}

func TestSyncOrders_ExplicitSinceRestartsListing(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, unpacedConfig(), WithSyncClock(func() time.Time { return clock }))
	f.api.pageSize = 2
	for i := 1; i <= 4; i++ {
		f.api.addOrder(newRemoteOrder(fmt.Sprintf("ML-%d", i), "paid", clock.Add(-time.Duration(i)*time.Hour)))
	}
	stale := integration.NewSyncCursor(f.key, integration.ResourceOrders, clock)
	stale.AdvancePage("offset-2", clock)
	require.NoError(t, f.cursors.Save(context.Background(), stale))

	since := clock.Add(-150 * time.Minute)
	result, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, since)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported, "only ML-1 and ML-2 were updated after since")
	assert.Equal(t, []string{"ML-1", "ML-2"}, f.api.getCalls)
}

func TestSyncOrders_MaxPagesBoundsRun(t *testing.T) {
	cfg := unpacedConfig()
	cfg.MaxPages = 2
	f := newSyncFixture(t, cfg)
	f.api.pageSize = 2
	for i := 1; i <= 6; i++ {
		f.api.addOrder(newRemoteOrder(fmt.Sprintf("ML-%d", i), "paid", time.Now().Add(-time.Hour)))
	}

	result, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 4, result.Imported)
	require.Len(t, result.Warnings, 1)

	cursor, _ := f.cursors.get(f.key, integration.ResourceOrders)
	assert.Equal(t, "offset-4", cursor.PageToken)
}

func TestSyncOrders_RunBudget(t *testing.T) {
	cfg := unpacedConfig()
	cfg.RunBudget = 50 * time.Millisecond
	f := newSyncFixture(t, cfg)
	for i := 1; i <= 10; i++ {
		f.api.addOrder(newRemoteOrder(fmt.Sprintf("ML-%d", i), "paid", time.Now().Add(-time.Hour)))
	}
	f.api.onGet = func(string) { time.Sleep(30 * time.Millisecond) }

	result, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, result.CursorAdvanced)
	assert.Less(t, result.Succeeded(), 10)
	assert.Zero(t, f.cursors.saves)
}

func TestSyncOrders_DetailFetchesArePaced(t *testing.T) {
	cfg := unpacedConfig()
	cfg.DetailRate = 20
	cfg.DetailBurst = 1
	f := newSyncFixture(t, cfg)
	for i := 1; i <= 5; i++ {
		f.api.addOrder(newRemoteOrder(fmt.Sprintf("ML-%d", i), "paid", time.Now().Add(-time.Hour)))
	}

	_, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
	require.NoError(t, err)

	require.Len(t, f.api.getTimes, 5)
	for i := 1; i < len(f.api.getTimes); i++ {
		assert.False(t, f.api.getTimes[i].Before(f.api.getTimes[i-1]), "detail fetches are sequential")
	}
	elapsed := f.api.getTimes[4].Sub(f.api.getTimes[0])
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond, "4 intervals at 20 rps")
}

func TestSyncProducts(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, unpacedConfig(), WithSyncClock(func() time.Time { return clock }))
	f.api.pageSize = 2
	for _, id := range []string{"MLA1", "MLA2", "MLA3"} {
		f.api.addProduct(&integration.RemoteProduct{
			ExternalID: id, Title: "Item " + id, Price: decimal.RequireFromString("10.50"),
			Currency: "ARS", AvailableQuantity: 3, Status: "Active",
		})
	}
	f.api.addProduct(&integration.RemoteProduct{ExternalID: "MLA4", Price: decimal.RequireFromString("-1"), Raw: []byte(`{"id":"MLA4"}`)})

	result, err := f.service.SyncProducts(context.Background(), f.key.TenantID, f.key.Marketplace)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "MLA4", result.Errors[0].ExternalID)
	assert.Equal(t, 2, result.Pages)
	assert.Contains(t, f.quarantine.entries, "products/MLA4")

	cursor, ok := f.cursors.get(f.key, integration.ResourceProducts)
	require.True(t, ok)
	assert.Empty(t, cursor.PageToken)
	assert.Equal(t, clock, cursor.LastSyncedAt)

	p := f.mirror.products[integration.IdempotencyKey{TenantID: f.key.TenantID, Marketplace: f.key.Marketplace, ExternalID: "MLA1"}]
	require.NotNil(t, p)
	assert.Equal(t, "active", p.Status)
}

func TestSyncOrder_Single(t *testing.T) {
	f := newSyncFixture(t, unpacedConfig())
	f.api.addOrder(newRemoteOrder("ML-1", "cancelled", time.Now()))

	result, err := f.service.SyncOrder(context.Background(), f.key, "ML-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Zero(t, f.cursors.saves, "single-resource sync leaves the cursor alone")

	result, err = f.service.SyncOrder(context.Background(), f.key, "ML-404")
	require.Error(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "unknown", result.Errors[0].Kind)

	f.api.failDetail("ML-1", &integration.TransientNetworkError{Attempts: 3})
	result, err = f.service.SyncOrder(context.Background(), f.key, "ML-1")
	assert.ErrorIs(t, err, integration.ErrTransientNetwork)
	assert.Empty(t, result.Errors)
}

func TestSyncProduct_Single(t *testing.T) {
	f := newSyncFixture(t, unpacedConfig())
	f.api.addProduct(&integration.RemoteProduct{ExternalID: "MLA7", Price: decimal.RequireFromString("1"), Currency: "ARS"})

	result, err := f.service.SyncProduct(context.Background(), f.key, "MLA7")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	result, err = f.service.SyncProduct(context.Background(), f.key, "MLA7")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
}

func TestListStaleOrders(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, unpacedConfig(), WithSyncClock(func() time.Time { return clock }))
	ctx := context.Background()

	for i, age := range []time.Duration{time.Hour, 30 * time.Hour, 72 * time.Hour} {
		_, err := f.mirror.UpsertOrder(ctx, &integration.CanonicalOrder{
			TenantID: f.key.TenantID, Marketplace: f.key.Marketplace,
			ExternalID: fmt.Sprintf("ML-%d", i), Status: integration.OrderStatusPaid,
			LastSyncAt: clock.Add(-age),
		})
		require.NoError(t, err)
	}

	stale, err := f.service.ListStaleOrders(ctx, f.key.TenantID, f.key.Marketplace, 0)
	require.NoError(t, err)
	require.Len(t, stale, 2, "default threshold is StaleAfter")
	assert.Equal(t, "ML-2", stale[0].ExternalID, "oldest first")

	stale, err = f.service.ListStaleOrders(ctx, f.key.TenantID, f.key.Marketplace, 48*time.Hour)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	_, err = f.service.ListStaleOrders(ctx, f.key.TenantID, "EBAY", time.Hour)
	assert.ErrorIs(t, err, integration.ErrInvalidMarketplace)
}

type recordingSyncObserver struct {
	results []*integration.SyncResult
	errs    []error
}

func (o *recordingSyncObserver) RecordSyncRun(_ context.Context, result *integration.SyncResult, err error) {
	o.results = append(o.results, result)
	o.errs = append(o.errs, err)
}

func TestSyncService_ObserverSeesEveryRun(t *testing.T) {
	obs := &recordingSyncObserver{}
	f := newSyncFixture(t, unpacedConfig(), WithSyncObserver(obs))
	f.api.addOrder(newRemoteOrder("ML-1", "paid", time.Now().Add(-time.Hour)))

	_, err := f.service.SyncOrders(context.Background(), f.key.TenantID, f.key.Marketplace, time.Time{})
	require.NoError(t, err)
	_, err = f.service.SyncOrder(context.Background(), newTestKey(), "ML-1")
	require.NoError(t, err, "single sync does not require a stored credential")

	require.Len(t, obs.results, 2)
	assert.NoError(t, obs.errs[0])
	assert.False(t, obs.results[0].FinishedAt.IsZero())
}
