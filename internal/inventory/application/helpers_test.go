package application_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/stock-reservation/internal/inventory/application"
	"github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation/internal/inventory/infrastructure/memory"
	"github.com/dmehra2102/stock-reservation/pkg/keylock"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	manager *application.Manager
	catalog *memory.Catalog
	store   *memory.ReservationStore
	clock   *fakeClock
	log     *slog.Logger
}

func newFixture(t testing.TB, stock map[string]int) *fixture {
	t.Helper()
	catalog := memory.NewCatalog()
	for id, qty := range stock {
		catalog.Put(domain.Product{ID: id, Name: id, Price: decimal.NewFromInt(10), StockQuantity: qty})
	}
	store := memory.NewReservationStore()
	clock := newClock()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := application.NewManager(log, catalog, store, keylock.NewMemory(), application.WithClock(clock.Now))
	return &fixture{manager: m, catalog: catalog, store: store, clock: clock, log: log}
}
