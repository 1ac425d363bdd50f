package persistence

import (
	"context"
	"errors"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCursorRepository implements integration.CursorStore using GORM
type GormCursorRepository struct {
	db *gorm.DB
}

// NewGormCursorRepository creates a new GormCursorRepository
func NewGormCursorRepository(db *gorm.DB) *GormCursorRepository {
	return &GormCursorRepository{db: db}
}

// Get returns the cursor of (key, resource), or integration.ErrNotFound before the first sync
func (r *GormCursorRepository) Get(ctx context.Context, key integration.Key, resource integration.ResourceKind) (*integration.SyncCursor, error) {
	var model models.SyncCursorModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND marketplace = ? AND resource = ?", key.TenantID, key.Marketplace, resource).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrNotFound
		}
		return nil, integration.NewPersistenceError("get cursor", err)
	}
	return model.ToDomain(), nil
}

// Save upserts the cursor
func (r *GormCursorRepository) Save(ctx context.Context, cursor *integration.SyncCursor) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "marketplace"}, {Name: "resource"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_synced_at", "page_token", "updated_at"}),
		}).
		Create(models.SyncCursorModelFromDomain(cursor)).Error
	return integration.NewPersistenceError("save cursor", err)
}

var _ integration.CursorStore = (*GormCursorRepository)(nil)
