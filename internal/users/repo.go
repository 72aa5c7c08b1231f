package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// Repository defines persistence operations for users.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64, territoryID *uuid.UUID) error
	// ListEligibleTechnicians returns active technicians either bound to the
	// territory or unbound (globally available).
	ListEligibleTechnicians(ctx context.Context, territoryID uuid.UUID) ([]models.User, error)
	// ListLocatedCustomersBatch pages through customers that have a resolved
	// location, keyed by id for stable batching.
	ListLocatedCustomersBatch(ctx context.Context, afterID uuid.UUID, limit int) ([]models.User, error)
	UpdateTerritoryBatch(ctx context.Context, userIDs []uuid.UUID, territoryID *uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a users repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("lower(email) = lower(?)", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (r *repository) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64, territoryID *uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"location_lat": lat,
			"location_lng": lng,
			"territory_id": territoryID,
		}).Error
}

func (r *repository) ListEligibleTechnicians(ctx context.Context, territoryID uuid.UUID) ([]models.User, error) {
	var technicians []models.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND active = TRUE", enums.RoleTechnician).
		Where("territory_id = ? OR territory_id IS NULL", territoryID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&technicians).Error
	if err != nil {
		return nil, err
	}
	return technicians, nil
}

func (r *repository) ListLocatedCustomersBatch(ctx context.Context, afterID uuid.UUID, limit int) ([]models.User, error) {
	query := r.db.WithContext(ctx).
		Where("role = ? AND active = TRUE", enums.RoleCustomer).
		Where("location_lat IS NOT NULL AND location_lng IS NOT NULL")
	if afterID != uuid.Nil {
		query = query.Where("id > ?", afterID)
	}
	var customers []models.User
	err := query.Order("id ASC").Limit(limit).Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repository) UpdateTerritoryBatch(ctx context.Context, userIDs []uuid.UUID, territoryID *uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ?", userIDs).
		Update("territory_id", territoryID).Error
}
