package domain

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusConfirmed  OrderStatus = "CONFIRMED"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusPaid       OrderStatus = "PAID"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
	StatusRefunded   OrderStatus = "REFUNDED"
)

var statusRank = map[OrderStatus]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusPaid:       3,
	StatusShipped:    4,
	StatusDelivered:  5,
	StatusRefunded:   6,
}

func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == StatusCancelled
}

// CanTransitionTo reports whether an order in s may move to next. PENDING may
// only be confirmed or cancelled, CANCELLED is final, and everything else only
// moves forward. Staying put is allowed so payment or tracking details can change.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !s.Valid() || !next.Valid() || s == StatusCancelled {
		return false
	}
	if s == next {
		return true
	}
	if s == StatusPending {
		return next == StatusConfirmed || next == StatusCancelled
	}
	if next == StatusCancelled {
		return false
	}
	return statusRank[next] > statusRank[s]
}
