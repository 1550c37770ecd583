package domain

import "github.com/shopspring/decimal"

type Quote struct {
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

type PricingPolicy interface {
	Quote(subtotal decimal.Decimal) Quote
}

// FlatPricing charges a flat shipping fee unless the subtotal exceeds
// FreeShippingOver, plus a proportional tax on the subtotal.
type FlatPricing struct {
	FreeShippingOver decimal.Decimal
	ShippingFee      decimal.Decimal
	TaxRate          decimal.Decimal
}

func DefaultPricing() FlatPricing {
	return FlatPricing{
		FreeShippingOver: decimal.NewFromInt(100),
		ShippingFee:      decimal.NewFromInt(10),
		TaxRate:          decimal.RequireFromString("0.10"),
	}
}

func (p FlatPricing) Quote(subtotal decimal.Decimal) Quote {
	shipping := p.ShippingFee
	if subtotal.GreaterThan(p.FreeShippingOver) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(p.TaxRate).Round(2)
	return Quote{
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}
}
