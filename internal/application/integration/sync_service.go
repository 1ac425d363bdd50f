package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrMarketplaceNotConfigured is returned when no adapter is registered for a marketplace
var ErrMarketplaceNotConfigured = errors.New("integration: marketplace not configured")

// SyncService is the sync reconciliation engine
type SyncService interface {
	// SyncOrders mirrors every order updated since the cursor (or since, when non-zero)
	SyncOrders(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, since time.Time) (*integration.SyncResult, error)
	// SyncProducts mirrors the seller's catalog, resuming an interrupted listing
	SyncProducts(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.SyncResult, error)
	// SyncOrder resyncs a single order
	SyncOrder(ctx context.Context, key integration.Key, orderID string) (*integration.SyncResult, error)
	// SyncProduct resyncs a single listing
	SyncProduct(ctx context.Context, key integration.Key, itemID string) (*integration.SyncResult, error)
	// ListStaleOrders returns mirrored orders not synced within olderThan
	ListStaleOrders(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, olderThan time.Duration) ([]*integration.CanonicalOrder, error)
}

// SyncObserver receives one call per finished run (metrics)
type SyncObserver interface {
	RecordSyncRun(ctx context.Context, result *integration.SyncResult, err error)
}

// SyncServiceConfig holds sync engine settings
type SyncServiceConfig struct {
	// DetailRate is the per-key detail fetch rate in requests per second; zero disables pacing
	DetailRate float64
	// DetailBurst is the limiter burst
	DetailBurst int
	// InitialLookback is how far back the first order sync of a key starts
	InitialLookback time.Duration
	// MaxPages bounds the pages consumed by one run; the cursor keeps the rest for the next run
	MaxPages int
	// StaleAfter is the default staleness threshold
	StaleAfter time.Duration
	// RunBudget bounds one run; zero means only the caller's context applies
	RunBudget time.Duration
	// StaleLimit bounds the staleness query
	StaleLimit int
}

// DefaultSyncServiceConfig returns the default configuration
func DefaultSyncServiceConfig() SyncServiceConfig {
	return SyncServiceConfig{
		DetailRate:      5,
		DetailBurst:     1,
		InitialLookback: 30 * 24 * time.Hour,
		MaxPages:        100,
		StaleAfter:      24 * time.Hour,
		RunBudget:       10 * time.Minute,
		StaleLimit:      100,
	}
}

// SyncServiceImpl implements SyncService
type SyncServiceImpl struct {
	apis        map[integration.MarketplaceCode]integration.MarketplaceAPI
	credentials integration.CredentialStore
	mirror      integration.MirrorStore
	cursors     integration.CursorStore
	quarantine  integration.PayloadQuarantine
	observer    SyncObserver
	config      SyncServiceConfig
	logger      *zap.Logger
	now         func() time.Time

	pacersMu sync.Mutex
	pacers   map[integration.Key]*rate.Limiter
}

// SyncServiceOption configures a SyncServiceImpl
type SyncServiceOption func(*SyncServiceImpl)

// WithQuarantine stores unmappable payloads
func WithQuarantine(q integration.PayloadQuarantine) SyncServiceOption {
	return func(s *SyncServiceImpl) {
		s.quarantine = q
	}
}

// WithSyncObserver reports finished runs
func WithSyncObserver(o SyncObserver) SyncServiceOption {
	return func(s *SyncServiceImpl) {
		s.observer = o
	}
}

// WithSyncClock overrides time.Now
func WithSyncClock(now func() time.Time) SyncServiceOption {
	return func(s *SyncServiceImpl) {
		s.now = now
	}
}

// NewSyncService creates a SyncServiceImpl
func NewSyncService(
	apis map[integration.MarketplaceCode]integration.MarketplaceAPI,
	credentials integration.CredentialStore,
	mirror integration.MirrorStore,
	cursors integration.CursorStore,
	config SyncServiceConfig,
	log *zap.Logger,
	opts ...SyncServiceOption,
) *SyncServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultSyncServiceConfig().MaxPages
	}
	if config.DetailBurst <= 0 {
		config.DetailBurst = 1
	}
	s := &SyncServiceImpl{
		apis:        apis,
		credentials: credentials,
		mirror:      mirror,
		cursors:     cursors,
		config:      config,
		logger:      log.Named("sync_service"),
		now:         time.Now,
		pacers:      make(map[integration.Key]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------------------------------------------------------------------------
// Listing runs
// ---------------------------------------------------------------------------

// listingPage is one listing page reduced to what the run loop needs
type listingPage struct {
	ids       []string
	next      string
	watermark time.Time
}

// listingRun describes one resource listing
type listingRun struct {
	key      integration.Key
	resource integration.ResourceKind
	cursor   *integration.SyncCursor
	// completeAt is the watermark used when pages carry no timestamps
	completeAt time.Time
	list       func(ctx context.Context, pageToken string) (*listingPage, error)
	syncItem   func(ctx context.Context, id string, result *integration.SyncResult) error
}

// SyncOrders mirrors orders updated since the cursor watermark
func (s *SyncServiceImpl) SyncOrders(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, since time.Time) (*integration.SyncResult, error) {
	key := integration.NewKey(tenantID, marketplace)
	startedAt := s.now().UTC()
	result := integration.NewSyncResult(key, integration.ResourceOrders, startedAt)

	api, sellerID, err := s.prepare(ctx, key)
	if err != nil {
		return s.finish(ctx, result, err)
	}
	cursor, err := s.loadCursor(ctx, key, integration.ResourceOrders, startedAt.Add(-s.config.InitialLookback))
	if err != nil {
		return s.finish(ctx, result, err)
	}
	if !since.IsZero() {
		cursor.LastSyncedAt = since.UTC()
		cursor.PageToken = ""
	}
	since = cursor.LastSyncedAt

	run := &listingRun{
		key:      key,
		resource: integration.ResourceOrders,
		cursor:   cursor,
		list: func(ctx context.Context, pageToken string) (*listingPage, error) {
			page, err := api.ListOrders(ctx, key, sellerID, since, pageToken)
			if err != nil {
				return nil, err
			}
			lp := &listingPage{ids: make([]string, 0, len(page.Orders)), next: page.NextPageToken}
			for _, o := range page.Orders {
				lp.ids = append(lp.ids, o.ExternalID)
				if o.LastUpdated.After(lp.watermark) {
					lp.watermark = o.LastUpdated
				}
			}
			return lp, nil
		},
		syncItem: func(ctx context.Context, id string, result *integration.SyncResult) error {
			return s.syncOrder(ctx, api, key, id, result)
		},
	}
	return s.finish(ctx, result, s.runListing(ctx, run, result))
}

// SyncProducts mirrors the seller's catalog
func (s *SyncServiceImpl) SyncProducts(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.SyncResult, error) {
	key := integration.NewKey(tenantID, marketplace)
	startedAt := s.now().UTC()
	result := integration.NewSyncResult(key, integration.ResourceProducts, startedAt)

	api, sellerID, err := s.prepare(ctx, key)
	if err != nil {
		return s.finish(ctx, result, err)
	}
	cursor, err := s.loadCursor(ctx, key, integration.ResourceProducts, time.Time{})
	if err != nil {
		return s.finish(ctx, result, err)
	}

	run := &listingRun{
		key:        key,
		resource:   integration.ResourceProducts,
		cursor:     cursor,
		completeAt: startedAt,
		list: func(ctx context.Context, pageToken string) (*listingPage, error) {
			page, err := api.ListProducts(ctx, key, sellerID, pageToken)
			if err != nil {
				return nil, err
			}
			return &listingPage{ids: page.ProductIDs, next: page.NextPageToken}, nil
		},
		syncItem: func(ctx context.Context, id string, result *integration.SyncResult) error {
			return s.syncProduct(ctx, api, key, id, result)
		},
	}
	return s.finish(ctx, result, s.runListing(ctx, run, result))
}

// runListing walks the listing page by page. Item failures are recorded and skipped;
// run-level failures stop the walk before the current page's cursor is saved.
func (s *SyncServiceImpl) runListing(ctx context.Context, run *listingRun, result *integration.SyncResult) error {
	if s.config.RunBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunBudget)
		defer cancel()
	}
	log := logger.WithLogger(ctx, s.logger).With(
		zap.String("tenant_id", run.key.TenantID.String()),
		zap.String("marketplace", run.key.Marketplace.String()),
		zap.String("resource", run.resource.String()),
	)
	pacer := s.pacer(run.key)
	watermark := run.completeAt

	for pages := 0; pages < s.config.MaxPages; pages++ {
		if err := ctx.Err(); err != nil {
			return abortError(run, err)
		}

		page, err := run.list(ctx, run.cursor.PageToken)
		if err != nil {
			log.Warn("Listing page failed, cursor left in place",
				zap.String("page_token", run.cursor.PageToken),
				zap.Error(err),
			)
			return err
		}

		for _, id := range page.ids {
			if err := pacer.Wait(ctx); err != nil {
				return abortError(run, err)
			}
			err := run.syncItem(ctx, id, result)
			if err == nil {
				continue
			}
			if integration.IsRunAbort(err) || ctx.Err() != nil {
				log.Warn("Sync aborted mid-page, cursor left in place",
					zap.String("external_id", id),
					zap.Error(err),
				)
				if ctx.Err() != nil && !integration.IsRunAbort(err) {
					return abortError(run, ctx.Err())
				}
				return err
			}
			result.RecordError(id, err)
			log.Warn("Item sync failed",
				zap.String("external_id", id),
				zap.String("kind", integration.ErrorKind(err)),
				zap.Error(err),
			)
		}

		result.Pages++
		if page.watermark.After(watermark) {
			watermark = page.watermark
		}
		now := s.now().UTC()
		last := page.next == "" || len(page.ids) == 0
		if last {
			run.cursor.Complete(watermark, now)
		} else {
			run.cursor.AdvancePage(page.next, now)
		}
		if err := s.cursors.Save(ctx, run.cursor); err != nil {
			return integration.NewPersistenceError("save cursor", err)
		}
		result.CursorAdvanced = true

		log.Debug("Page synced",
			zap.Int("page", result.Pages),
			zap.Int("items", len(page.ids)),
			zap.String("next_page_token", page.next),
		)
		if last {
			return nil
		}
	}

	result.Warnings = append(result.Warnings, fmt.Sprintf("stopped after %d pages; the next run resumes at page token %q", s.config.MaxPages, run.cursor.PageToken))
	return nil
}

// abortError wraps a cancellation or budget expiry of a run
func abortError(run *listingRun, err error) error {
	return fmt.Errorf("sync %s %s aborted: %w", run.resource, run.key, err)
}

// ---------------------------------------------------------------------------
// Single-resource resync
// ---------------------------------------------------------------------------

// SyncOrder resyncs one order, e.g. after a webhook. The cursor is not touched.
func (s *SyncServiceImpl) SyncOrder(ctx context.Context, key integration.Key, orderID string) (*integration.SyncResult, error) {
	result := integration.NewSyncResult(key, integration.ResourceOrders, s.now().UTC())
	api, err := s.api(key)
	if err != nil {
		return s.finish(ctx, result, err)
	}
	if err := s.syncOrder(ctx, api, key, orderID, result); err != nil {
		if !integration.IsRunAbort(err) {
			result.RecordError(orderID, err)
		}
		return s.finish(ctx, result, err)
	}
	return s.finish(ctx, result, nil)
}

// SyncProduct resyncs one listing
func (s *SyncServiceImpl) SyncProduct(ctx context.Context, key integration.Key, itemID string) (*integration.SyncResult, error) {
	result := integration.NewSyncResult(key, integration.ResourceProducts, s.now().UTC())
	api, err := s.api(key)
	if err != nil {
		return s.finish(ctx, result, err)
	}
	if err := s.syncProduct(ctx, api, key, itemID, result); err != nil {
		if !integration.IsRunAbort(err) {
			result.RecordError(itemID, err)
		}
		return s.finish(ctx, result, err)
	}
	return s.finish(ctx, result, nil)
}

// syncOrder fetches, maps and upserts one order
func (s *SyncServiceImpl) syncOrder(ctx context.Context, api integration.MarketplaceAPI, key integration.Key, orderID string, result *integration.SyncResult) error {
	remote, err := api.GetOrder(ctx, key, orderID)
	if err != nil {
		s.quarantineMapping(ctx, key, integration.ResourceOrders, orderID, err)
		return err
	}

	order, warnings, err := MapOrder(key, orderID, remote, s.now())
	if err != nil {
		s.quarantineMapping(ctx, key, integration.ResourceOrders, orderID, err)
		return err
	}

	candidate := CustomerFromBuyer(key.TenantID, remote.Buyer)
	if candidate.HasIdentity() {
		customer, err := s.mirror.ResolveCustomer(ctx, candidate)
		if err != nil {
			return err
		}
		order.CustomerID = &customer.ID
	} else {
		warnings = append(warnings, fmt.Sprintf("order %s: buyer has neither email nor tax id; stored without customer", orderID))
	}

	outcome, err := s.mirror.UpsertOrder(ctx, order)
	if err != nil {
		return err
	}
	result.RecordOutcome(outcome)
	result.Warnings = append(result.Warnings, warnings...)
	for _, w := range warnings {
		s.logger.Warn("Order mapped with warning",
			zap.String("tenant_id", key.TenantID.String()),
			zap.String("external_id", orderID),
			zap.String("warning", w),
		)
	}
	return nil
}

// syncProduct fetches, maps and upserts one listing
func (s *SyncServiceImpl) syncProduct(ctx context.Context, api integration.MarketplaceAPI, key integration.Key, itemID string, result *integration.SyncResult) error {
	remote, err := api.GetProduct(ctx, key, itemID)
	if err != nil {
		s.quarantineMapping(ctx, key, integration.ResourceProducts, itemID, err)
		return err
	}
	product, err := MapProduct(key, itemID, remote, s.now())
	if err != nil {
		s.quarantineMapping(ctx, key, integration.ResourceProducts, itemID, err)
		return err
	}
	outcome, err := s.mirror.UpsertProduct(ctx, product)
	if err != nil {
		return err
	}
	result.RecordOutcome(outcome)
	return nil
}

// ListStaleOrders returns orders whose last sync is older than olderThan (StaleAfter when zero)
func (s *SyncServiceImpl) ListStaleOrders(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, olderThan time.Duration) ([]*integration.CanonicalOrder, error) {
	key := integration.NewKey(tenantID, marketplace)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if olderThan <= 0 {
		olderThan = s.config.StaleAfter
	}
	return s.mirror.ListStaleOrders(ctx, key, s.now().UTC().Add(-olderThan), s.config.StaleLimit)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *SyncServiceImpl) api(key integration.Key) (integration.MarketplaceAPI, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	api, ok := s.apis[key.Marketplace]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarketplaceNotConfigured, key.Marketplace)
	}
	return api, nil
}

// prepare resolves the adapter and the seller account of key.
// An invalid credential fails the run before any remote call.
func (s *SyncServiceImpl) prepare(ctx context.Context, key integration.Key) (integration.MarketplaceAPI, string, error) {
	api, err := s.api(key)
	if err != nil {
		return nil, "", err
	}
	cred, err := s.credentials.Get(ctx, key)
	if err != nil {
		if errors.Is(err, integration.ErrCredentialNotFound) {
			return nil, "", &integration.AuthenticationError{Key: key, Reason: "not authorized", Err: err}
		}
		return nil, "", integration.NewPersistenceError("load credential", err)
	}
	if !cred.IsActive() {
		return nil, "", &integration.AuthenticationError{Key: key, Reason: cred.InvalidReason, Err: integration.ErrCredentialInvalid}
	}
	return api, cred.ExternalUserID, nil
}

func (s *SyncServiceImpl) loadCursor(ctx context.Context, key integration.Key, resource integration.ResourceKind, initial time.Time) (*integration.SyncCursor, error) {
	cursor, err := s.cursors.Get(ctx, key, resource)
	if errors.Is(err, integration.ErrNotFound) {
		return integration.NewSyncCursor(key, resource, initial), nil
	}
	if err != nil {
		return nil, integration.NewPersistenceError("load cursor", err)
	}
	return cursor, nil
}

// pacer returns the detail-fetch limiter of key
func (s *SyncServiceImpl) pacer(key integration.Key) *rate.Limiter {
	s.pacersMu.Lock()
	defer s.pacersMu.Unlock()
	if l, ok := s.pacers[key]; ok {
		return l
	}
	limit := rate.Inf
	if s.config.DetailRate > 0 {
		limit = rate.Limit(s.config.DetailRate)
	}
	l := rate.NewLimiter(limit, s.config.DetailBurst)
	s.pacers[key] = l
	return l
}

// quarantineMapping keeps the payload of a MappingError; quarantine failures are only logged
func (s *SyncServiceImpl) quarantineMapping(ctx context.Context, key integration.Key, resource integration.ResourceKind, externalID string, err error) {
	var me *integration.MappingError
	if s.quarantine == nil || !errors.As(err, &me) || len(me.Payload) == 0 {
		return
	}
	if qerr := s.quarantine.Quarantine(ctx, key, resource, externalID, me.Payload, me.Error()); qerr != nil {
		s.logger.Warn("Failed to quarantine payload",
			zap.String("tenant_id", key.TenantID.String()),
			zap.String("resource", resource.String()),
			zap.String("external_id", externalID),
			zap.Error(qerr),
		)
	}
}

func (s *SyncServiceImpl) finish(ctx context.Context, result *integration.SyncResult, err error) (*integration.SyncResult, error) {
	result.Finish(s.now().UTC())
	fields := []zap.Field{
		zap.String("tenant_id", result.Key.TenantID.String()),
		zap.String("marketplace", result.Key.Marketplace.String()),
		zap.String("resource", result.Resource.String()),
		zap.Int("imported", result.Imported),
		zap.Int("updated", result.Updated),
		zap.Int("failed", len(result.Errors)),
		zap.Int("pages", result.Pages),
		zap.Bool("cursor_advanced", result.CursorAdvanced),
		zap.Duration("duration", result.Duration()),
	}
	if err != nil {
		logger.WithLogger(ctx, s.logger).Warn("Sync run ended with error", append(fields, zap.Error(err))...)
	} else {
		logger.WithLogger(ctx, s.logger).Info("Sync run completed", fields...)
	}
	if s.observer != nil {
		s.observer.RecordSyncRun(ctx, result, err)
	}
	return result, err
}

// Ensure SyncServiceImpl implements SyncService
var _ SyncService = (*SyncServiceImpl)(nil)
