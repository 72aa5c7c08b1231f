package enums

import "fmt"

// Role identifies the kind of principal acting against the API.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleFranchiseOwner Role = "franchise_owner"
	RoleTechnician     Role = "technician"
	RoleCustomer       Role = "customer"
)

var validRoles = []Role{
	RoleAdmin,
	RoleFranchiseOwner,
	RoleTechnician,
	RoleCustomer,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
