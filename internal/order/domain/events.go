package domain

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCancelled     = "OrderCancelled"

	EventPaymentProcessed = "PaymentProcessed"
	EventPaymentFailed    = "PaymentFailed"
)

type OrderCreated struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      string      `json:"user_id"`
	Total       string      `json:"total"`
	Items       []OrderItem `json:"items"`
}

type OrderStatusChanged struct {
	OrderID       string        `json:"order_id"`
	From          OrderStatus   `json:"from"`
	To            OrderStatus   `json:"to"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}

type OrderCancelled struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

// PaymentProcessedEvent and PaymentFailedEvent arrive from the payment provider's topic.
type PaymentProcessedEvent struct {
	OrderID string `json:"order_id"`
	Amount  string `json:"amount"`
}

type PaymentFailedEvent struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}
