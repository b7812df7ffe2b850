package enums

import "fmt"

// OrderStatus tracks the settlement lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusFulfilled  OrderStatus = "fulfilled"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusFulfilled,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// fulfilmentSequence is the forward path an order walks once paid.
var fulfilmentSequence = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusFulfilled,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsPaidOrLater reports whether payment has been confirmed and the order has
// not left the fulfilment path.
func (s OrderStatus) IsPaidOrLater() bool {
	idx := s.sequenceIndex()
	return idx >= 1
}

// NextFulfilmentStatus returns the single forward step after s, if any.
func (s OrderStatus) NextFulfilmentStatus() (OrderStatus, bool) {
	idx := s.sequenceIndex()
	if idx < 0 || idx+1 >= len(fulfilmentSequence) {
		return "", false
	}
	return fulfilmentSequence[idx+1], true
}

// IsCancellable reports whether an order in status s may still be cancelled.
func (s OrderStatus) IsCancellable() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusConfirmed, OrderStatusProcessing:
		return true
	}
	return false
}

func (s OrderStatus) sequenceIndex() int {
	for i, candidate := range fulfilmentSequence {
		if candidate == s {
			return i
		}
	}
	return -1
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
