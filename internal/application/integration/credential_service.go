package integration

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/marketsync/internal/domain/integration"
	"go.uber.org/zap"
)

// ErrAuthorizationCodeRequired is returned when an OAuth callback carries no code
var ErrAuthorizationCodeRequired = errors.New("authorization code is required")

// Authorizer completes the OAuth authorization-code flow
type Authorizer interface {
	Authorize(ctx context.Context, key integration.Key, code, redirectURI string) (*integration.IntegrationCredential, error)
}

// CredentialService connects marketplace accounts and reports their state
type CredentialService struct {
	authorizer  Authorizer
	credentials integration.CredentialStore
	redirectURI string
	logger      *zap.Logger
}

// NewCredentialService creates a CredentialService. redirectURI may be empty
// when the provider client already carries one.
func NewCredentialService(authorizer Authorizer, credentials integration.CredentialStore, redirectURI string, logger *zap.Logger) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{
		authorizer:  authorizer,
		credentials: credentials,
		redirectURI: redirectURI,
		logger:      logger.Named("credential_service"),
	}
}

// Authorize exchanges an authorization code and stores the resulting credential
func (s *CredentialService) Authorize(ctx context.Context, key integration.Key, code string) (*CredentialStatusResponse, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrAuthorizationCodeRequired
	}

	cred, err := s.authorizer.Authorize(ctx, key, code, s.redirectURI)
	if err != nil {
		s.logger.Warn("Authorization failed", zap.String("key", key.String()), zap.Error(err))
		return nil, err
	}
	resp := ToCredentialStatusResponse(cred)
	return &resp, nil
}

// Status returns the stored credential state of key
func (s *CredentialService) Status(ctx context.Context, key integration.Key) (*CredentialStatusResponse, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	cred, err := s.credentials.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := ToCredentialStatusResponse(cred)
	return &resp, nil
}
