package oauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Refresh outcomes reported to RefreshObserver
const (
	RefreshOutcomeSuccess   = "success"
	RefreshOutcomeRejected  = "rejected"
	RefreshOutcomeTransient = "transient"
	RefreshOutcomePersist   = "persist_failed"
)

// TokenManagerConfig holds token lifecycle settings
type TokenManagerConfig struct {
	// RefreshSkew renews a token this long before it expires
	RefreshSkew time.Duration
	// RefreshAttempts bounds provider calls per refresh (first call included)
	RefreshAttempts int
	// RefreshInitialBackoff is the first backoff delay between refresh attempts
	RefreshInitialBackoff time.Duration
	// RefreshMaxBackoff caps a single backoff delay
	RefreshMaxBackoff time.Duration
	// RefreshTimeout bounds the whole refresh, including waits of callers sharing it
	RefreshTimeout time.Duration
}

// DefaultTokenManagerConfig returns the default configuration
func DefaultTokenManagerConfig() TokenManagerConfig {
	return TokenManagerConfig{
		RefreshSkew:           integration.DefaultRefreshSkew,
		RefreshAttempts:       4,
		RefreshInitialBackoff: 500 * time.Millisecond,
		RefreshMaxBackoff:     10 * time.Second,
		RefreshTimeout:        45 * time.Second,
	}
}

// Validate validates the configuration
func (c TokenManagerConfig) Validate() error {
	if c.RefreshSkew < 0 {
		return errors.New("oauth: refresh skew cannot be negative")
	}
	if c.RefreshAttempts < 1 {
		return errors.New("oauth: refresh attempts must be at least 1")
	}
	if c.RefreshTimeout <= 0 {
		return errors.New("oauth: refresh timeout must be positive")
	}
	return nil
}

// RefreshObserver receives one call per provider refresh flight
type RefreshObserver interface {
	RecordTokenRefresh(ctx context.Context, key integration.Key, outcome string, duration time.Duration)
}

// TokenManager owns the token state of every (tenant, marketplace) key.
//
// State per key: Unauthenticated -> Authorized(expires_at) -> Refreshing -> Authorized | Invalid.
// Refreshes for one key are single-flight, and a refreshed token is persisted
// before any caller receives it.
type TokenManager struct {
	store    integration.CredentialStore
	provider ProviderClient
	config   TokenManagerConfig
	logger   *zap.Logger
	observer RefreshObserver
	now      func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	states map[integration.Key]*integration.IntegrationCredential
}

// TokenManagerOption configures a TokenManager
type TokenManagerOption func(*TokenManager)

// WithRefreshObserver reports refresh outcomes (metrics)
func WithRefreshObserver(o RefreshObserver) TokenManagerOption {
	return func(m *TokenManager) {
		m.observer = o
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// NewTokenManager creates a TokenManager
func NewTokenManager(
	store integration.CredentialStore,
	provider ProviderClient,
	config TokenManagerConfig,
	logger *zap.Logger,
	opts ...TokenManagerOption,
) (*TokenManager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &TokenManager{
		store:    store,
		provider: provider,
		config:   config,
		logger:   logger.Named("token_manager"),
		now:      time.Now,
		states:   make(map[integration.Key]*integration.IntegrationCredential),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// GetValidToken returns an access token that stays valid for at least the refresh skew,
// refreshing proactively when needed.
func (m *TokenManager) GetValidToken(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (string, error) {
	key := integration.NewKey(tenantID, marketplace)
	if err := key.Validate(); err != nil {
		return "", err
	}

	cred, err := m.current(ctx, key)
	if err != nil {
		return "", err
	}
	if !cred.IsActive() {
		return "", invalidCredentialError(key, cred.InvalidReason)
	}
	if !cred.NeedsRefresh(m.now(), m.config.RefreshSkew) {
		return cred.AccessToken, nil
	}

	cred, err = m.refresh(ctx, key, "")
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// Invalidate marks the cached access token of the key as unusable so the next
// GetValidToken refreshes it. The stored refresh token is kept.
func (m *TokenManager) Invalidate(_ context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) {
	key := integration.NewKey(tenantID, marketplace)
	m.mu.Lock()
	defer m.mu.Unlock()
	if cred, ok := m.states[key]; ok {
		cp := cred.Clone()
		cp.ExpiresAt = time.Time{}
		m.states[key] = cp
	}
}

// invalidateIf expires the cached token only while it is still the rejected one,
// so a token rotated in the meantime is not thrown away.
func (m *TokenManager) invalidateIf(key integration.Key, rejectedToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cred, ok := m.states[key]; ok && cred.AccessToken == rejectedToken {
		cp := cred.Clone()
		cp.ExpiresAt = time.Time{}
		m.states[key] = cp
	}
}

// RefreshAfterUnauthorized is the reactive path taken after a 401. The token that was
// rejected is passed in: if another caller already rotated it, the rotated token is
// returned without a new provider call; otherwise it is invalidated and refreshed once.
func (m *TokenManager) RefreshAfterUnauthorized(ctx context.Context, key integration.Key, rejectedToken string) (string, error) {
	cred, err := m.current(ctx, key)
	if err != nil {
		return "", err
	}
	if !cred.IsActive() {
		return "", invalidCredentialError(key, cred.InvalidReason)
	}
	if cred.AccessToken != rejectedToken && !cred.NeedsRefresh(m.now(), m.config.RefreshSkew) {
		return cred.AccessToken, nil
	}

	m.invalidateIf(key, rejectedToken)
	cred, err = m.refresh(ctx, key, rejectedToken)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// Reject moves the credential to the terminal invalid state. Used when a freshly
// refreshed token is still refused by the marketplace.
func (m *TokenManager) Reject(ctx context.Context, key integration.Key, reason string) error {
	m.mu.Lock()
	if cred, ok := m.states[key]; ok {
		cp := cred.Clone()
		cp.MarkInvalid(reason, m.now())
		m.states[key] = cp
	}
	m.mu.Unlock()

	if err := m.store.MarkInvalid(ctx, key, reason); err != nil {
		return integration.NewPersistenceError("mark credential invalid", err)
	}
	m.logger.Warn("Credential marked invalid",
		zap.String("key", key.String()),
		zap.String("reason", reason),
	)
	return nil
}

// Authorize completes the authorization-code flow for key, replacing any previous
// credential (including an invalid one). The credential is persisted before it is cached.
func (m *TokenManager) Authorize(ctx context.Context, key integration.Key, code, redirectURI string) (*integration.IntegrationCredential, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	grant, err := m.provider.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		if errors.Is(err, ErrGrantRejected) {
			return nil, &integration.AuthenticationError{Key: key, Reason: "authorization code rejected", Err: err}
		}
		return nil, &integration.TransientNetworkError{Key: key, Attempts: 1, Err: err}
	}

	now := m.now()
	cred, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		cred.Rotate(*grant, now)
	case errors.Is(err, integration.ErrCredentialNotFound):
		cred, err = integration.NewIntegrationCredential(key, *grant, now)
		if err != nil {
			return nil, err
		}
	default:
		return nil, integration.NewPersistenceError("load credential", err)
	}

	if err := m.store.Save(ctx, cred); err != nil {
		return nil, integration.NewPersistenceError("save credential", err)
	}
	m.remember(cred)

	m.logger.Info("Marketplace account authorized",
		zap.String("key", key.String()),
		zap.String("external_user_id", cred.ExternalUserID),
		zap.Time("expires_at", cred.ExpiresAt),
	)
	return cred.Clone(), nil
}

// Forget drops the in-memory state of key (explicit disconnect).
func (m *TokenManager) Forget(key integration.Key) {
	m.mu.Lock()
	delete(m.states, key)
	m.mu.Unlock()
}

// current returns the cached credential or loads it once from the store
func (m *TokenManager) current(ctx context.Context, key integration.Key) (*integration.IntegrationCredential, error) {
	m.mu.RLock()
	cred, ok := m.states[key]
	m.mu.RUnlock()
	if ok {
		return cred.Clone(), nil
	}

	v, err, _ := m.group.Do("load:"+key.String(), func() (any, error) {
		stored, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		m.remember(stored)
		return stored, nil
	})
	if err != nil {
		if errors.Is(err, integration.ErrCredentialNotFound) {
			return nil, &integration.AuthenticationError{Key: key, Reason: "no credential for key", Err: err}
		}
		return nil, integration.NewPersistenceError("load credential", err)
	}
	return v.(*integration.IntegrationCredential).Clone(), nil
}

func (m *TokenManager) remember(cred *integration.IntegrationCredential) {
	m.mu.Lock()
	m.states[cred.Key()] = cred.Clone()
	m.mu.Unlock()
}

// refresh joins or starts the single refresh flight of key and waits for it, bounded
// by the caller's context and RefreshTimeout.
func (m *TokenManager) refresh(ctx context.Context, key integration.Key, rejectedToken string) (*integration.IntegrationCredential, error) {
	ch := m.group.DoChan("refresh:"+key.String(), func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.RefreshTimeout)
		defer cancel()
		return m.runRefresh(flightCtx, key, rejectedToken)
	})

	timer := time.NewTimer(m.config.RefreshTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*integration.IntegrationCredential).Clone(), nil
	case <-ctx.Done():
		return nil, &integration.TransientNetworkError{Key: key, Err: fmt.Errorf("waiting for token refresh: %w", ctx.Err())}
	case <-timer.C:
		return nil, &integration.TransientNetworkError{Key: key, Err: errors.New("token refresh wait timed out")}
	}
}

// runRefresh executes inside the single flight of key
func (m *TokenManager) runRefresh(ctx context.Context, key integration.Key, rejectedToken string) (*integration.IntegrationCredential, error) {
	cred, err := m.current(ctx, key)
	if err != nil {
		return nil, err
	}
	if !cred.IsActive() {
		return nil, invalidCredentialError(key, cred.InvalidReason)
	}
	// A flight that finished just before this one may already have produced a usable token.
	if !cred.NeedsRefresh(m.now(), m.config.RefreshSkew) && cred.AccessToken != rejectedToken {
		return cred, nil
	}

	start := m.now()
	attempts := 0
	var grant *integration.TokenGrant
	operation := func() error {
		attempts++
		g, err := m.provider.RefreshToken(ctx, cred.RefreshToken)
		if err != nil {
			if errors.Is(err, ErrGrantRejected) {
				return backoff.Permanent(err)
			}
			m.logger.Warn("Token refresh attempt failed",
				zap.String("key", key.String()),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return err
		}
		grant = g
		return nil
	}

	err = backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(m.newBackoff(), uint64(m.config.RefreshAttempts-1)),
		ctx,
	))
	if err != nil {
		if errors.Is(err, ErrGrantRejected) {
			m.observe(ctx, key, RefreshOutcomeRejected, start)
			if rejectErr := m.Reject(ctx, key, "refresh token rejected"); rejectErr != nil {
				m.logger.Error("Failed to persist invalid credential", zap.String("key", key.String()), zap.Error(rejectErr))
			}
			return nil, &integration.AuthenticationError{Key: key, Reason: "refresh token rejected", Err: err}
		}
		m.observe(ctx, key, RefreshOutcomeTransient, start)
		return nil, &integration.TransientNetworkError{Key: key, Attempts: attempts, Err: err}
	}

	next := cred.Clone()
	next.Rotate(*grant, m.now())
	if err := m.store.Save(ctx, next); err != nil {
		m.observe(ctx, key, RefreshOutcomePersist, start)
		m.logger.Error("Refreshed token could not be persisted; discarding it",
			zap.String("key", key.String()),
			zap.Error(err),
		)
		return nil, integration.NewPersistenceError("save refreshed credential", err)
	}
	m.remember(next)
	m.observe(ctx, key, RefreshOutcomeSuccess, start)

	m.logger.Info("Token refreshed",
		zap.String("key", key.String()),
		zap.Int("attempts", attempts),
		zap.Time("expires_at", next.ExpiresAt),
	)
	return next, nil
}

func (m *TokenManager) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.config.RefreshInitialBackoff
	if m.config.RefreshMaxBackoff > 0 {
		b.MaxInterval = m.config.RefreshMaxBackoff
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (m *TokenManager) observe(ctx context.Context, key integration.Key, outcome string, start time.Time) {
	if m.observer != nil {
		m.observer.RecordTokenRefresh(ctx, key, outcome, m.now().Sub(start))
	}
}

func invalidCredentialError(key integration.Key, reason string) error {
	if reason == "" {
		reason = "credential invalid"
	}
	return &integration.AuthenticationError{Key: key, Reason: reason, Err: integration.ErrCredentialInvalid}
}
