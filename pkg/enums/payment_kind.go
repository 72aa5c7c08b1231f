package enums

import "fmt"

// PaymentKind categorizes what a payment record covers.
type PaymentKind string

const (
	PaymentKindDeposit  PaymentKind = "deposit"
	PaymentKindPurchase PaymentKind = "purchase"
	PaymentKindRental   PaymentKind = "rental"
	PaymentKindRefund   PaymentKind = "refund"
)

var validPaymentKinds = []PaymentKind{
	PaymentKindDeposit,
	PaymentKindPurchase,
	PaymentKindRental,
	PaymentKindRefund,
}

// String implements fmt.Stringer.
func (p PaymentKind) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentKind.
func (p PaymentKind) IsValid() bool {
	for _, candidate := range validPaymentKinds {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentKind converts raw input into a PaymentKind.
func ParsePaymentKind(value string) (PaymentKind, error) {
	for _, candidate := range validPaymentKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment kind %q", value)
}
