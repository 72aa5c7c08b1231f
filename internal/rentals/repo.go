package rentals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	"github.com/aquarent/aquarent-backend/pkg/pagination"
)

// Repository defines persistence operations for rentals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, rental *models.Rental) (*models.Rental, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Rental, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Rental, error)
	ListCustomerRentals(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*RentalList, error)
	ListTerritoryRentals(ctx context.Context, territoryID uuid.UUID, params pagination.Params) (*RentalList, error)
	// ListOverdue returns active rentals whose current period ended before
	// the cutoff, oldest first.
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]models.Rental, error)
	// UpdateStatusGuarded moves the rental to the target status only when its
	// current status is one of the allowed sources. Returns rows affected.
	UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from []enums.RentalStatus, to enums.RentalStatus, extra map[string]any) (int64, error)
	// ExtendPeriodGuarded advances the billing period anchored at the prior
	// period end. The guard on current_period_end makes replays no-ops.
	ExtendPeriodGuarded(ctx context.Context, id uuid.UUID, priorPeriodEnd, newStart, newEnd time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a rentals repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, rental *models.Rental) (*models.Rental, error) {
	if err := r.db.WithContext(ctx).Create(rental).Error; err != nil {
		return nil, err
	}
	return rental, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Rental, error) {
	var rental models.Rental
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rental).Error
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Rental, error) {
	var rental models.Rental
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&rental).Error
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

func (r *repository) ListCustomerRentals(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*RentalList, error) {
	query := r.db.WithContext(ctx).Model(&models.Rental{}).
		Where("customer_id = ?", customerID)
	return r.listRentals(ctx, query, params)
}

func (r *repository) ListTerritoryRentals(ctx context.Context, territoryID uuid.UUID, params pagination.Params) (*RentalList, error) {
	query := r.db.WithContext(ctx).Model(&models.Rental{}).
		Where("territory_id = ?", territoryID)
	return r.listRentals(ctx, query, params)
}

func (r *repository) listRentals(ctx context.Context, query *gorm.DB, params pagination.Params) (*RentalList, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Rental
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit + 1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	list := &RentalList{}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	for _, row := range rows {
		list.Rentals = append(list.Rentals, ToSummary(row))
	}
	if hasMore {
		last := rows[len(rows)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return list, nil
}

func (r *repository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]models.Rental, error) {
	var rows []models.Rental
	err := r.db.WithContext(ctx).
		Where("status = ? AND current_period_end < ?", enums.RentalStatusActive, cutoff).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from []enums.RentalStatus, to enums.RentalStatus, extra map[string]any) (int64, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	for key, value := range extra {
		updates[key] = value
	}
	result := r.db.WithContext(ctx).Model(&models.Rental{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repository) ExtendPeriodGuarded(ctx context.Context, id uuid.UUID, priorPeriodEnd, newStart, newEnd time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Rental{}).
		Where("id = ? AND status = ? AND current_period_end = ?", id, enums.RentalStatusActive, priorPeriodEnd).
		Updates(map[string]any{
			"current_period_start": newStart,
			"current_period_end":   newEnd,
			"updated_at":           time.Now(),
		})
	return result.RowsAffected, result.Error
}
