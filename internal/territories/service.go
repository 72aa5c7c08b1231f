package territories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquarent/aquarent-backend/internal/users"
	"github.com/aquarent/aquarent-backend/pkg/db/models"
	"github.com/aquarent/aquarent-backend/pkg/enums"
	pkgerrors "github.com/aquarent/aquarent-backend/pkg/errors"
	"github.com/aquarent/aquarent-backend/pkg/geo"
	"github.com/aquarent/aquarent-backend/pkg/logger"
	"github.com/aquarent/aquarent-backend/pkg/outbox"
	"github.com/aquarent/aquarent-backend/pkg/outbox/payloads"
)

const defaultReassignBatchSize = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CreateInput carries the fields needed to register a territory.
type CreateInput struct {
	Name        string
	City        string
	Boundary    geo.Ring
	OwnerUserID *uuid.UUID
}

// UpdateInput carries optional territory changes. A non-nil boundary triggers
// the customer reassignment sweep.
type UpdateInput struct {
	Name        *string
	City        *string
	Boundary    geo.Ring
	OwnerUserID *uuid.UUID
	Active      *bool
}

// Service owns territory management, point resolution, and the batched
// customer reassignment sweep.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Territory, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Territory, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Territory, error)
	List(ctx context.Context) ([]models.Territory, error)
	// Resolve returns the first active territory containing the point, in
	// creation order. A miss is a NOT_FOUND error.
	Resolve(ctx context.Context, point geo.Point) (*models.Territory, error)
	// ReassignCustomers re-resolves every located customer in bounded batches.
	// Runs in the worker, detached from the update request.
	ReassignCustomers(ctx context.Context, territoryID uuid.UUID) (int, error)
}

type service struct {
	repo      Repository
	userRepo  users.Repository
	tx        txRunner
	outbox    outboxPublisher
	logg      *logger.Logger
	batchSize int
}

// ServiceParams names the dependencies for the territory service.
type ServiceParams struct {
	Repo      Repository
	UserRepo  users.Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Logger    *logger.Logger
	BatchSize int
}

// NewService builds the territory service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("territories repository required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultReassignBatchSize
	}
	return &service{
		repo:      params.Repo,
		userRepo:  params.UserRepo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		logg:      params.Logger,
		batchSize: batchSize,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Territory, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "territory name required")
	}
	city := strings.TrimSpace(input.City)
	if city == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "territory city required")
	}
	boundary, err := normalizeBoundary(input.Boundary)
	if err != nil {
		return nil, err
	}

	territory := &models.Territory{
		Name:        name,
		City:        city,
		Boundary:    boundary,
		OwnerUserID: input.OwnerUserID,
		Active:      true,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.repo.WithTx(tx).Create(ctx, territory)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create territory")
		}
		territory = created

		// A new polygon can capture customers currently unassigned or held by
		// an overlapping territory, so the sweep runs here too.
		event := outbox.DomainEvent{
			EventType:     enums.EventTerritoryReassign,
			AggregateType: enums.AggregateTerritory,
			AggregateID:   territory.ID,
			Version:       1,
			Data: payloads.TerritoryReassignRequestedEvent{
				TerritoryID: territory.ID,
				RequestedAt: time.Now().UTC(),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue reassignment sweep")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return territory, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Territory, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "territory id required")
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "territory name cannot be empty")
		}
		updates["name"] = name
	}
	if input.City != nil {
		city := strings.TrimSpace(*input.City)
		if city == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "territory city cannot be empty")
		}
		updates["city"] = city
	}
	if input.OwnerUserID != nil {
		updates["owner_user_id"] = *input.OwnerUserID
	}
	if input.Active != nil {
		updates["active"] = *input.Active
	}

	boundaryChanged := false
	if input.Boundary != nil {
		boundary, err := normalizeBoundary(input.Boundary)
		if err != nil {
			return nil, err
		}
		updates["boundary"] = boundary
		boundaryChanged = true
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no updates provided")
	}

	var updated *models.Territory
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByID(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "territory not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load territory")
		}
		if err := repo.Update(ctx, id, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update territory")
		}

		// The sweep runs out of band so boundary edits return quickly.
		if boundaryChanged {
			event := outbox.DomainEvent{
				EventType:     enums.EventTerritoryReassign,
				AggregateType: enums.AggregateTerritory,
				AggregateID:   id,
				Version:       1,
				Data: payloads.TerritoryReassignRequestedEvent{
					TerritoryID: id,
					RequestedAt: time.Now().UTC(),
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue reassignment sweep")
			}
		}

		territory, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload territory")
		}
		updated = territory
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Territory, error) {
	territory, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "territory not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load territory")
	}
	return territory, nil
}

func (s *service) List(ctx context.Context) ([]models.Territory, error) {
	rows, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list territories")
	}
	return rows, nil
}

func (s *service) Resolve(ctx context.Context, point geo.Point) (*models.Territory, error) {
	if !point.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coordinates outside valid range")
	}
	territories, err := s.repo.ListActiveOrdered(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list territories")
	}
	for i := range territories {
		if territories[i].Boundary.Contains(point) {
			return &territories[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no territory covers this location")
}

func (s *service) ReassignCustomers(ctx context.Context, territoryID uuid.UUID) (int, error) {
	territories, err := s.repo.ListActiveOrdered(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list territories")
	}

	reassigned := 0
	afterID := uuid.Nil
	for {
		batch, err := s.userRepo.ListLocatedCustomersBatch(ctx, afterID, s.batchSize)
		if err != nil {
			return reassigned, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customers batch")
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID

		// Group updates per resolved territory so each batch issues a handful
		// of UPDATEs rather than one per customer.
		byTerritory := map[uuid.UUID][]uuid.UUID{}
		var unresolved []uuid.UUID
		for _, customer := range batch {
			point := geo.Point{Lat: *customer.LocationLat, Lng: *customer.LocationLng}
			target := resolveFirst(territories, point)
			switch {
			case target == nil:
				if customer.TerritoryID != nil {
					unresolved = append(unresolved, customer.ID)
				}
			case customer.TerritoryID == nil || *customer.TerritoryID != target.ID:
				byTerritory[target.ID] = append(byTerritory[target.ID], customer.ID)
			}
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			userRepo := s.userRepo.WithTx(tx)
			for targetID, ids := range byTerritory {
				id := targetID
				if err := userRepo.UpdateTerritoryBatch(ctx, ids, &id); err != nil {
					return err
				}
				reassigned += len(ids)
			}
			if err := userRepo.UpdateTerritoryBatch(ctx, unresolved, nil); err != nil {
				return err
			}
			reassigned += len(unresolved)
			return nil
		})
		if err != nil {
			return reassigned, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply reassignment batch")
		}

		if len(batch) < s.batchSize {
			break
		}
	}

	if s.logg != nil {
		fields := map[string]any{"territory_id": territoryID.String(), "reassigned": reassigned}
		s.logg.Info(s.logg.WithFields(ctx, fields), "customer reassignment sweep finished")
	}
	return reassigned, nil
}

func resolveFirst(territories []models.Territory, point geo.Point) *models.Territory {
	for i := range territories {
		if territories[i].Boundary.Contains(point) {
			return &territories[i]
		}
	}
	return nil
}

func normalizeBoundary(ring geo.Ring) (geo.Ring, error) {
	if len(ring) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "territory boundary required")
	}
	if err := ring.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid territory boundary")
	}
	return ring.Closed(), nil
}
