package enums

import "fmt"

// OrderKind distinguishes outright purchases from rentals.
type OrderKind string

const (
	OrderKindPurchase OrderKind = "purchase"
	OrderKindRental   OrderKind = "rental"
)

var validOrderKinds = []OrderKind{
	OrderKindPurchase,
	OrderKindRental,
}

// String implements fmt.Stringer.
func (o OrderKind) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderKind.
func (o OrderKind) IsValid() bool {
	for _, candidate := range validOrderKinds {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderKind converts raw input into an OrderKind.
func ParseOrderKind(value string) (OrderKind, error) {
	for _, candidate := range validOrderKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order kind %q", value)
}
