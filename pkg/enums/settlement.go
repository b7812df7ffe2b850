package enums

import "fmt"

// VendorStatus gates whether a vendor participates in payouts.
type VendorStatus string

const (
	VendorStatusPending   VendorStatus = "pending"
	VendorStatusApproved  VendorStatus = "approved"
	VendorStatusSuspended VendorStatus = "suspended"
)

var validVendorStatuses = []VendorStatus{
	VendorStatusPending,
	VendorStatusApproved,
	VendorStatusSuspended,
}

func (s VendorStatus) String() string {
	return string(s)
}

func (s VendorStatus) IsValid() bool {
	for _, candidate := range validVendorStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CommissionStatus is the only mutable field of a commission ledger entry.
type CommissionStatus string

const (
	CommissionStatusRecorded CommissionStatus = "recorded"
	CommissionStatusPaid     CommissionStatus = "paid"
)

func (s CommissionStatus) String() string {
	return string(s)
}

func (s CommissionStatus) IsValid() bool {
	return s == CommissionStatusRecorded || s == CommissionStatusPaid
}

// PayoutStatus tracks a vendor payout; paid is only reached by explicit action.
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPaid    PayoutStatus = "paid"
)

func (s PayoutStatus) String() string {
	return string(s)
}

func (s PayoutStatus) IsValid() bool {
	return s == PayoutStatusPending || s == PayoutStatusPaid
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	status := PayoutStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payout status %q", value)
	}
	return status, nil
}
