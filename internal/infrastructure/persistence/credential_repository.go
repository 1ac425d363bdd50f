package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/erp/marketsync/internal/infrastructure/secret"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCredentialRepository implements integration.CredentialStore using GORM.
// Tokens are sealed with the configured cipher before they reach the database.
type GormCredentialRepository struct {
	db     *gorm.DB
	cipher *secret.TokenCipher
}

// NewGormCredentialRepository creates a new GormCredentialRepository. A nil cipher stores tokens as is.
func NewGormCredentialRepository(db *gorm.DB, cipher *secret.TokenCipher) *GormCredentialRepository {
	return &GormCredentialRepository{db: db, cipher: cipher}
}

// Get returns the credential for key, or integration.ErrCredentialNotFound
func (r *GormCredentialRepository) Get(ctx context.Context, key integration.Key) (*integration.IntegrationCredential, error) {
	var model models.IntegrationCredentialModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND marketplace = ?", key.TenantID, key.Marketplace).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrCredentialNotFound
		}
		return nil, integration.NewPersistenceError("get credential", err)
	}
	return r.open(&model)
}

// Save inserts or replaces the credential of its key
func (r *GormCredentialRepository) Save(ctx context.Context, cred *integration.IntegrationCredential) error {
	model := models.IntegrationCredentialModelFromDomain(cred)

	var err error
	if model.AccessToken, err = r.cipher.Seal(cred.AccessToken); err != nil {
		return integration.NewPersistenceError("seal access token", err)
	}
	if model.RefreshToken, err = r.cipher.Seal(cred.RefreshToken); err != nil {
		return integration.NewPersistenceError("seal refresh token", err)
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "marketplace"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"access_token", "refresh_token", "expires_at", "external_user_id",
				"status", "invalid_reason", "updated_at",
			}),
		}).
		Create(model).Error
	return integration.NewPersistenceError("save credential", err)
}

// MarkInvalid flags the credential of key as invalid
func (r *GormCredentialRepository) MarkInvalid(ctx context.Context, key integration.Key, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&models.IntegrationCredentialModel{}).
		Where("tenant_id = ? AND marketplace = ?", key.TenantID, key.Marketplace).
		Updates(map[string]any{
			"status":         integration.CredentialStatusInvalid,
			"invalid_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return integration.NewPersistenceError("mark credential invalid", result.Error)
	}
	if result.RowsAffected == 0 {
		return integration.ErrCredentialNotFound
	}
	return nil
}

// FindByExternalUserID resolves the tenant owning a marketplace account
func (r *GormCredentialRepository) FindByExternalUserID(ctx context.Context, marketplace integration.MarketplaceCode, externalUserID string) (*integration.IntegrationCredential, error) {
	var model models.IntegrationCredentialModel
	err := r.db.WithContext(ctx).
		Where("marketplace = ? AND external_user_id = ?", marketplace, externalUserID).
		Order("updated_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrCredentialNotFound
		}
		return nil, integration.NewPersistenceError("find credential by external user", err)
	}
	return r.open(&model)
}

// ListActive returns every active credential, oldest first
func (r *GormCredentialRepository) ListActive(ctx context.Context) ([]*integration.IntegrationCredential, error) {
	var rows []models.IntegrationCredentialModel
	err := r.db.WithContext(ctx).
		Where("status = ?", integration.CredentialStatusActive).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, integration.NewPersistenceError("list active credentials", err)
	}

	creds := make([]*integration.IntegrationCredential, 0, len(rows))
	for i := range rows {
		cred, err := r.open(&rows[i])
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func (r *GormCredentialRepository) open(model *models.IntegrationCredentialModel) (*integration.IntegrationCredential, error) {
	cred := model.ToDomain()
	var err error
	if cred.AccessToken, err = r.cipher.Open(model.AccessToken); err != nil {
		return nil, integration.NewPersistenceError("open access token", fmt.Errorf("%s: %w", cred.Key(), err))
	}
	if cred.RefreshToken, err = r.cipher.Open(model.RefreshToken); err != nil {
		return nil, integration.NewPersistenceError("open refresh token", fmt.Errorf("%s: %w", cred.Key(), err))
	}
	return cred, nil
}

var _ integration.CredentialStore = (*GormCredentialRepository)(nil)
