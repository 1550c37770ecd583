package domain_test

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dmehra2102/stock-reservation/internal/order/domain"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to domain.OrderStatus
		ok       bool
	}{
		{domain.StatusPending, domain.StatusConfirmed, true},
		{domain.StatusPending, domain.StatusCancelled, true},
		{domain.StatusPending, domain.StatusShipped, false},
		{domain.StatusPending, domain.StatusPaid, false},
		{domain.StatusConfirmed, domain.StatusProcessing, true},
		{domain.StatusConfirmed, domain.StatusShipped, true},
		{domain.StatusConfirmed, domain.StatusPending, false},
		{domain.StatusConfirmed, domain.StatusCancelled, false},
		{domain.StatusShipped, domain.StatusConfirmed, false},
		{domain.StatusDelivered, domain.StatusRefunded, true},
		{domain.StatusShipped, domain.StatusShipped, true},
		{domain.StatusCancelled, domain.StatusCancelled, false},
		{domain.StatusCancelled, domain.StatusConfirmed, false},
		{domain.StatusPending, domain.OrderStatus("LOST"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestNewOrder(t *testing.T) {
	now := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	o := domain.NewOrder("u1", []domain.OrderItem{
		{ProductID: "a", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")},
		{ProductID: "b", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	}, now)

	assert.NotEmpty(t, o.ID)
	assert.Regexp(t, regexp.MustCompile(`^ORD-[0-9A-F]{8}$`), o.OrderNumber)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, domain.PaymentPending, o.PaymentStatus)
	assert.True(t, o.Subtotal.Equal(decimal.NewFromInt(30)), o.Subtotal.String())
	for _, item := range o.Items {
		assert.NotEmpty(t, item.ID)
	}
}

func TestFlatPricing(t *testing.T) {
	p := domain.DefaultPricing()

	q := p.Quote(decimal.NewFromInt(50))
	assert.True(t, q.Shipping.Equal(decimal.NewFromInt(10)))
	assert.True(t, q.Tax.Equal(decimal.NewFromInt(5)))
	assert.True(t, q.Total.Equal(decimal.NewFromInt(65)))

	q = p.Quote(decimal.NewFromInt(100))
	assert.True(t, q.Shipping.Equal(decimal.NewFromInt(10)), "free shipping starts above the threshold")

	q = p.Quote(decimal.RequireFromString("120.55"))
	assert.True(t, q.Shipping.IsZero())
	assert.Equal(t, "12.06", q.Tax.StringFixed(2))
	assert.Equal(t, "132.61", q.Total.StringFixed(2))
}

func TestStatusErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&domain.StatusError{Msg: "insufficient stock", Err: cause})

	var se *domain.StatusError
	assert.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insufficient stock: boom", err.Error())
	assert.Equal(t, "must contain at least one item", domain.NewStatusError("must contain at least one item").Error())
}
