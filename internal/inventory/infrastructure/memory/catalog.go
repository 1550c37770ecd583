package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmehra2102/stock-reservation/internal/inventory/domain"
)

// Catalog is an in-process product catalog and stock ledger.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewCatalog(products ...domain.Product) *Catalog {
	c := &Catalog{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *Catalog) Put(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *Catalog) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return p, nil
}

func (c *Catalog) GetStock(ctx context.Context, productID string) (int, error) {
	p, err := c.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.StockQuantity, nil
}

func (c *Catalog) Deduct(ctx context.Context, productID string, quantity int) error {
	return c.DeductBatch(ctx, []domain.Deduction{{ProductID: productID, Quantity: quantity}})
}

func (c *Catalog) DeductBatch(_ context.Context, lines []domain.Deduction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	want := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
		want[l.ProductID] += l.Quantity
	}
	for id, qty := range want {
		p, ok := c.products[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
		}
		if p.StockQuantity < qty {
			return fmt.Errorf("%w: product %s has %d in stock, %d requested", domain.ErrInsufficientStock, id, p.StockQuantity, qty)
		}
	}
	for id, qty := range want {
		p := c.products[id]
		p.StockQuantity -= qty
		c.products[id] = p
	}
	return nil
}

func (c *Catalog) Restock(_ context.Context, lines []domain.Deduction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range lines {
		if l.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
		if _, ok := c.products[l.ProductID]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, l.ProductID)
		}
	}
	for _, l := range lines {
		p := c.products[l.ProductID]
		p.StockQuantity += l.Quantity
		c.products[l.ProductID] = p
	}
	return nil
}

func (c *Catalog) SetStock(_ context.Context, productID string, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	p.StockQuantity = quantity
	c.products[productID] = p
	return nil
}
