package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultRefreshSkew is how long before expiry a token is renewed proactively
const DefaultRefreshSkew = time.Hour

// CredentialStatus is the lifecycle state of a stored credential
type CredentialStatus string

const (
	// CredentialStatusActive credential can be used and refreshed
	CredentialStatusActive CredentialStatus = "active"
	// CredentialStatusInvalid credential was rejected by the provider; terminal until re-authorized
	CredentialStatusInvalid CredentialStatus = "invalid"
)

// IsValid returns true if the status is valid
func (s CredentialStatus) IsValid() bool {
	return s == CredentialStatusActive || s == CredentialStatusInvalid
}

// IntegrationCredential is the OAuth credential owned by one (tenant, marketplace) key.
// It is mutated only by the token lifecycle manager and the authorization callback.
type IntegrationCredential struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Marketplace    MarketplaceCode
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
	ExternalUserID string
	Status         CredentialStatus
	InvalidReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewIntegrationCredential creates an active credential from a freshly exchanged grant.
func NewIntegrationCredential(key Key, grant TokenGrant, now time.Time) (*IntegrationCredential, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return &IntegrationCredential{
		ID:             uuid.New(),
		TenantID:       key.TenantID,
		Marketplace:    key.Marketplace,
		AccessToken:    grant.AccessToken,
		RefreshToken:   grant.RefreshToken,
		ExpiresAt:      grant.ExpiresAt(now),
		ExternalUserID: grant.ExternalUserID,
		Status:         CredentialStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Key returns the (tenant, marketplace) key of the credential
func (c *IntegrationCredential) Key() Key {
	return Key{TenantID: c.TenantID, Marketplace: c.Marketplace}
}

// IsActive reports whether the credential may be used
func (c *IntegrationCredential) IsActive() bool {
	return c.Status == CredentialStatusActive
}

// NeedsRefresh reports whether now is inside the refresh skew before expiry.
func (c *IntegrationCredential) NeedsRefresh(now time.Time, skew time.Duration) bool {
	if c.AccessToken == "" {
		return true
	}
	return !now.Before(c.ExpiresAt.Add(-skew))
}

// Rotate applies a refreshed grant. Providers may omit a new refresh token,
// in which case the current one stays in use.
func (c *IntegrationCredential) Rotate(grant TokenGrant, now time.Time) {
	c.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		c.RefreshToken = grant.RefreshToken
	}
	if grant.ExternalUserID != "" {
		c.ExternalUserID = grant.ExternalUserID
	}
	c.ExpiresAt = grant.ExpiresAt(now)
	c.Status = CredentialStatusActive
	c.InvalidReason = ""
	c.UpdatedAt = now
}

// MarkInvalid moves the credential to the terminal invalid state
func (c *IntegrationCredential) MarkInvalid(reason string, now time.Time) {
	c.Status = CredentialStatusInvalid
	c.InvalidReason = reason
	c.UpdatedAt = now
}

// Clone returns a copy safe to hand to another goroutine
func (c *IntegrationCredential) Clone() *IntegrationCredential {
	cp := *c
	return &cp
}

// TokenGrant is the token endpoint response for both grant types
type TokenGrant struct {
	AccessToken    string
	RefreshToken   string
	ExpiresIn      time.Duration
	ExternalUserID string
	Scope          string
}

// ExpiresAt converts the relative lifetime to an absolute timestamp
func (g TokenGrant) ExpiresAt(now time.Time) time.Time {
	return now.Add(g.ExpiresIn)
}

// CredentialStore is the durable storage the token manager depends on.
type CredentialStore interface {
	// Get returns the credential for key or ErrCredentialNotFound
	Get(ctx context.Context, key Key) (*IntegrationCredential, error)
	// Save inserts or replaces the credential for its key
	Save(ctx context.Context, cred *IntegrationCredential) error
	// MarkInvalid persists the terminal invalid state
	MarkInvalid(ctx context.Context, key Key, reason string) error
	// FindByExternalUserID resolves the owner of a marketplace account (webhook routing)
	FindByExternalUserID(ctx context.Context, marketplace MarketplaceCode, externalUserID string) (*IntegrationCredential, error)
	// ListActive returns all active credentials (scheduler fan-out)
	ListActive(ctx context.Context) ([]*IntegrationCredential, error)
}
