package features

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	invapp "github.com/dmehra2102/stock-reservation/internal/inventory/application"
	invdomain "github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	invmemory "github.com/dmehra2102/stock-reservation/internal/inventory/infrastructure/memory"
	"github.com/dmehra2102/stock-reservation/internal/order/application"
	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/infrastructure/memory"
	"github.com/dmehra2102/stock-reservation/pkg/keylock"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

type lifecycleContext struct {
	mu      sync.Mutex
	now     time.Time
	catalog *invmemory.Catalog
	store   *invmemory.ReservationStore
	manager *invapp.Manager
	sweeper *invapp.Sweeper
	svc     *application.Service

	order   domain.Order
	hold    invdomain.Reservation
	results []error
	err     error
}

func (c *lifecycleContext) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *lifecycleContext) reset() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c.now = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	c.catalog = invmemory.NewCatalog()
	c.store = invmemory.NewReservationStore()
	locker := keylock.NewMemory()
	c.manager = invapp.NewManager(log, c.catalog, c.store, locker, invapp.WithClock(c.clock))
	c.sweeper = invapp.NewSweeper(log, c.store, c.manager, time.Minute, 100)
	c.svc = application.NewService(log, memory.NewRepository(outbox.NewMemoryStore()), c.catalog, c.manager, locker,
		application.WithClock(c.clock))
	c.order = domain.Order{}
	c.hold = invdomain.Reservation{}
	c.results = nil
	c.err = nil
}

func (c *lifecycleContext) aProductWithStock(id string, stock int) error {
	c.catalog.Put(invdomain.Product{ID: id, Name: id, Price: decimal.NewFromInt(10), StockQuantity: stock})
	return nil
}

func (c *lifecycleContext) twoBuyersConcurrentlyReserve(qty int, productID string) error {
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = c.manager.Reserve(context.Background(), productID, fmt.Sprintf("buyer-%d", i), qty)
		}(i)
	}
	wg.Wait()
	c.results = results
	return nil
}

func (c *lifecycleContext) exactlyReservationsSucceed(n int) error {
	ok := 0
	for _, err := range c.results {
		if err == nil {
			ok++
		}
	}
	if ok != n {
		return fmt.Errorf("expected %d successful reservations, got %d", n, ok)
	}
	return nil
}

func (c *lifecycleContext) reservationsFailWithInsufficientStock(n int) error {
	failed := 0
	for _, err := range c.results {
		if errors.Is(err, invdomain.ErrInsufficientStock) {
			failed++
		}
	}
	if failed != n {
		return fmt.Errorf("expected %d insufficient stock failures, got %d", n, failed)
	}
	return nil
}

func (c *lifecycleContext) theAvailableStockIs(productID string, want int) error {
	got, err := c.manager.Available(context.Background(), productID)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected %d available for %s, got %d", want, productID, got)
	}
	return nil
}

func (c *lifecycleContext) theStockIs(productID string, want int) error {
	got, err := c.catalog.GetStock(context.Background(), productID)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected stock %d for %s, got %d", want, productID, got)
	}
	return nil
}

func (c *lifecycleContext) userOrders(userID string, qty int, productID string) error {
	o, err := c.svc.CreateOrder(context.Background(), userID, []application.ItemRequest{{ProductID: productID, Quantity: qty}})
	if err != nil {
		return err
	}
	c.order = o
	return nil
}

func (c *lifecycleContext) userOrdersTwoLines(userID string, qtyA int, productA string, qtyB int, productB string) error {
	c.order, c.err = c.svc.CreateOrder(context.Background(), userID, []application.ItemRequest{
		{ProductID: productA, Quantity: qtyA},
		{ProductID: productB, Quantity: qtyB},
	})
	return nil
}

func (c *lifecycleContext) theOrderIsCancelled() error {
	o, err := c.svc.CancelOrder(context.Background(), c.order.ID)
	if err != nil {
		return err
	}
	c.order = o
	return nil
}

func (c *lifecycleContext) theOrderIsConfirmed() error {
	o, err := c.svc.UpdateStatus(context.Background(), c.order.ID, application.StatusUpdate{Status: domain.StatusConfirmed})
	if err != nil {
		return err
	}
	c.order = o
	return nil
}

func (c *lifecycleContext) theOrderStatusIs(want string) error {
	o, err := c.svc.GetOrder(context.Background(), c.order.ID)
	if err != nil {
		return err
	}
	if string(o.Status) != want {
		return fmt.Errorf("expected order status %s, got %s", want, o.Status)
	}
	return nil
}

func (c *lifecycleContext) theOrderReservationIs(want string) error {
	if len(c.order.Items) == 0 {
		return errors.New("order has no items")
	}
	return c.reservationIs(c.order.Items[0].ReservationID, want)
}

func (c *lifecycleContext) userHoldsFor(userID string, qty int, productID string, minutes int) error {
	r, err := c.manager.Reserve(context.Background(), productID, userID, qty, invapp.WithTTL(time.Duration(minutes)*time.Minute))
	if err != nil {
		return err
	}
	c.hold = r
	return nil
}

func (c *lifecycleContext) minutesPass(minutes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Duration(minutes) * time.Minute)
	return nil
}

func (c *lifecycleContext) theExpirationSweeperRuns() error {
	_, err := c.sweeper.SweepOnce(context.Background())
	return err
}

func (c *lifecycleContext) theHoldIs(want string) error {
	return c.reservationIs(c.hold.ID, want)
}

func (c *lifecycleContext) reservationIs(id, want string) error {
	r, err := c.manager.Get(context.Background(), id)
	if err != nil {
		return err
	}
	if string(r.Status) != want {
		return fmt.Errorf("expected reservation %s to be %s, got %s", id, want, r.Status)
	}
	return nil
}

func (c *lifecycleContext) theOrderFailsWithInsufficientStock() error {
	if !errors.Is(c.err, invdomain.ErrInsufficientStock) {
		return fmt.Errorf("expected insufficient stock, got %v", c.err)
	}
	return nil
}

func (c *lifecycleContext) userHasNoOrders(userID string) error {
	orders, err := c.svc.ListUserOrders(context.Background(), userID)
	if err != nil {
		return err
	}
	if len(orders) != 0 {
		return fmt.Errorf("expected no orders for %s, got %d", userID, len(orders))
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &lifecycleContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a product "([^"]*)" with stock (\d+)$`, tc.aProductWithStock)

	// When steps
	ctx.Step(`^two buyers concurrently reserve (\d+) of "([^"]*)"$`, tc.twoBuyersConcurrentlyReserve)
	ctx.Step(`^user "([^"]*)" orders (\d+) of "([^"]*)"$`, tc.userOrders)
	ctx.Step(`^user "([^"]*)" orders (\d+) of "([^"]*)" and (\d+) of "([^"]*)"$`, tc.userOrdersTwoLines)
	ctx.Step(`^the order is cancelled$`, tc.theOrderIsCancelled)
	ctx.Step(`^the order is confirmed$`, tc.theOrderIsConfirmed)
	ctx.Step(`^user "([^"]*)" holds (\d+) of "([^"]*)" for (\d+) minutes$`, tc.userHoldsFor)
	ctx.Step(`^(\d+) minutes pass$`, tc.minutesPass)
	ctx.Step(`^the expiration sweeper runs$`, tc.theExpirationSweeperRuns)

	// Then steps
	ctx.Step(`^exactly (\d+) of the reservations succeed$`, tc.exactlyReservationsSucceed)
	ctx.Step(`^(\d+) of the reservations fail with insufficient stock$`, tc.reservationsFailWithInsufficientStock)
	ctx.Step(`^the available stock of "([^"]*)" is (\d+)$`, tc.theAvailableStockIs)
	ctx.Step(`^the stock of "([^"]*)" is (\d+)$`, tc.theStockIs)
	ctx.Step(`^the order status is "([^"]*)"$`, tc.theOrderStatusIs)
	ctx.Step(`^the order reservation is "([^"]*)"$`, tc.theOrderReservationIs)
	ctx.Step(`^the hold is "([^"]*)"$`, tc.theHoldIs)
	ctx.Step(`^the order fails with insufficient stock$`, tc.theOrderFailsWithInsufficientStock)
	ctx.Step(`^user "([^"]*)" has no orders$`, tc.userHasNoOrders)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"lifecycle.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
