package permissions

import (
	"github.com/google/uuid"

	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// Principal is the authenticated actor extracted from the access token.
type Principal struct {
	UserID      uuid.UUID
	Role        enums.Role
	TerritoryID *uuid.UUID
}

// Action names an operation subject to role checks.
type Action string

const (
	ActionOrderCreate       Action = "order.create"
	ActionOrderView         Action = "order.view"
	ActionOrderAssign       Action = "order.assign"
	ActionOrderUpdateStatus Action = "order.update_status"
	ActionOrderCancel       Action = "order.cancel"

	ActionRentalView      Action = "rental.view"
	ActionRentalPause     Action = "rental.pause"
	ActionRentalResume    Action = "rental.resume"
	ActionRentalTerminate Action = "rental.terminate"
	ActionRentalRenew     Action = "rental.renew"

	ActionTerritoryManage Action = "territory.manage"
	ActionTerritoryView   Action = "territory.view"
)

// Resource carries the ownership and scoping fields a permission check needs.
type Resource struct {
	OwnerUserID  uuid.UUID
	TerritoryID  *uuid.UUID
	TechnicianID *uuid.UUID
}

// CanPerform is the single authority for role checks. It is pure: all context
// comes in through the principal and resource.
func CanPerform(p Principal, action Action, res Resource) bool {
	if p.UserID == uuid.Nil {
		return false
	}
	if p.Role == enums.RoleAdmin {
		return true
	}

	switch action {
	case ActionOrderCreate:
		return p.Role == enums.RoleCustomer

	case ActionOrderView, ActionRentalView:
		switch p.Role {
		case enums.RoleCustomer:
			return res.OwnerUserID == p.UserID
		case enums.RoleTechnician:
			return res.TechnicianID != nil && *res.TechnicianID == p.UserID
		case enums.RoleFranchiseOwner:
			return sameTerritory(p.TerritoryID, res.TerritoryID)
		}
		return false

	case ActionOrderAssign:
		// Franchise owners may only assign within their own territory.
		return p.Role == enums.RoleFranchiseOwner && sameTerritory(p.TerritoryID, res.TerritoryID)

	case ActionOrderUpdateStatus:
		switch p.Role {
		case enums.RoleTechnician:
			return res.TechnicianID != nil && *res.TechnicianID == p.UserID
		case enums.RoleFranchiseOwner:
			return sameTerritory(p.TerritoryID, res.TerritoryID)
		}
		return false

	case ActionOrderCancel:
		return p.Role == enums.RoleCustomer && res.OwnerUserID == p.UserID

	case ActionRentalPause, ActionRentalResume, ActionRentalTerminate, ActionRentalRenew:
		return p.Role == enums.RoleCustomer && res.OwnerUserID == p.UserID

	case ActionTerritoryView:
		return true

	case ActionTerritoryManage:
		return false
	}

	return false
}

func sameTerritory(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}
