package territories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/pkg/db/models"
)

// Repository defines persistence operations for territories.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, territory *models.Territory) (*models.Territory, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Territory, error)
	// ListActiveOrdered returns active territories in deterministic resolution
	// order: oldest first, id as tiebreaker.
	ListActiveOrdered(ctx context.Context) ([]models.Territory, error)
	ListAll(ctx context.Context) ([]models.Territory, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a territories repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, territory *models.Territory) (*models.Territory, error) {
	if err := r.db.WithContext(ctx).Create(territory).Error; err != nil {
		return nil, err
	}
	return territory, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Territory{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Territory, error) {
	var territory models.Territory
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&territory).Error
	if err != nil {
		return nil, err
	}
	return &territory, nil
}

func (r *repository) ListActiveOrdered(ctx context.Context) ([]models.Territory, error) {
	var rows []models.Territory
	err := r.db.WithContext(ctx).
		Where("active = TRUE").
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListAll(ctx context.Context) ([]models.Territory, error) {
	var rows []models.Territory
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
