package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentProcessing        PaymentStatus = "PROCESSING"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentRefunded, PaymentPartiallyRefunded:
		return true
	}
	return false
}

type Order struct {
	ID             string          `json:"id"`
	OrderNumber    string          `json:"order_number"`
	UserID         string          `json:"user_id"`
	Status         OrderStatus     `json:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Items          []OrderItem     `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	ReservationID string          `json:"reservation_id,omitempty"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewOrder builds a PENDING order and its subtotal. Shipping, tax and total are
// left to a PricingPolicy.
func NewOrder(userID string, items []OrderItem, now time.Time) Order {
	now = now.UTC()
	subtotal := decimal.Zero
	lines := make([]OrderItem, len(items))
	for i, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		lines[i] = item
		subtotal = subtotal.Add(item.LineTotal())
	}
	return Order{
		ID:            uuid.NewString(),
		OrderNumber:   NewOrderNumber(),
		UserID:        userID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Items:         lines,
		Subtotal:      subtotal,
		ShippingCost:  decimal.Zero,
		Tax:           decimal.Zero,
		Total:         subtotal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (o *Order) ApplyQuote(q Quote) {
	o.ShippingCost = q.Shipping
	o.Tax = q.Tax
	o.Total = q.Total
}

// NewOrderNumber returns a human-facing order number such as ORD-1A2B3C4D.
func NewOrderNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(id[:8])
}
