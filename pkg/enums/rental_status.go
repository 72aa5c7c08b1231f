package enums

import "fmt"

// RentalStatus tracks the recurring-billing lifecycle of a rental.
type RentalStatus string

const (
	RentalStatusActive     RentalStatus = "active"
	RentalStatusPaused     RentalStatus = "paused"
	RentalStatusTerminated RentalStatus = "terminated"
	RentalStatusExpired    RentalStatus = "expired"
)

var validRentalStatuses = []RentalStatus{
	RentalStatusActive,
	RentalStatusPaused,
	RentalStatusTerminated,
	RentalStatusExpired,
}

// String implements fmt.Stringer.
func (r RentalStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RentalStatus.
func (r RentalStatus) IsValid() bool {
	for _, candidate := range validRentalStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRentalStatus converts raw input into a RentalStatus.
func ParseRentalStatus(value string) (RentalStatus, error) {
	for _, candidate := range validRentalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rental status %q", value)
}
