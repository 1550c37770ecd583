package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	StockQuantity int
}

// Deduction is one line of an all-or-nothing stock deduction.
type Deduction struct {
	ProductID string
	Quantity  int
}
