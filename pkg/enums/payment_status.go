package enums

import "fmt"

// PaymentStatus tracks the lifecycle of a payment against the external gateway.
type PaymentStatus string

const (
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusInProcess   PaymentStatus = "in_process"
	PaymentStatusApproved    PaymentStatus = "approved"
	PaymentStatusRejected    PaymentStatus = "rejected"
	PaymentStatusCancelled   PaymentStatus = "cancelled"
	PaymentStatusRefunded    PaymentStatus = "refunded"
	PaymentStatusChargedBack PaymentStatus = "charged_back"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusInProcess,
	PaymentStatusApproved,
	PaymentStatusRejected,
	PaymentStatusCancelled,
	PaymentStatusRefunded,
	PaymentStatusChargedBack,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// IsSuccessful reports whether the gateway accepted the charge.
func (p PaymentStatus) IsSuccessful() bool {
	return p == PaymentStatusApproved
}

// IsPending reports whether the gateway may still settle the charge.
func (p PaymentStatus) IsPending() bool {
	return p == PaymentStatusPending || p == PaymentStatusInProcess
}

// IsRejected reports whether the gateway declined the charge.
func (p PaymentStatus) IsRejected() bool {
	return p == PaymentStatusRejected || p == PaymentStatusCancelled
}

// IsFinal reports whether no further gateway updates move the payment forward.
func (p PaymentStatus) IsFinal() bool {
	return p == PaymentStatusRejected ||
		p == PaymentStatusCancelled ||
		p == PaymentStatusRefunded ||
		p == PaymentStatusChargedBack
}

// CanBeRefunded reports whether a refund request makes sense.
func (p PaymentStatus) CanBeRefunded() bool {
	return p == PaymentStatusApproved
}
