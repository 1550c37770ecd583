package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	invapp "github.com/dmehra2102/stock-reservation/internal/inventory/application"
	invdomain "github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

func OrderKey(orderID string) string { return "order:" + orderID }

type ItemRequest struct {
	ProductID string
	Quantity  int
}

// StatusUpdate is a lifecycle request. An empty Status keeps the current one;
// nil pointers leave the payment status and tracking number unchanged.
type StatusUpdate struct {
	Status         domain.OrderStatus
	PaymentStatus  *domain.PaymentStatus
	TrackingNumber *string
}

type Service struct {
	log          *slog.Logger
	repo         OrderRepository
	catalog      Catalog
	reservations Reservations
	locker       Locker
	tx           TxRunner
	users        UserDirectory
	cache        OrderCache
	pricing      domain.PricingPolicy
	checkoutTTL  time.Duration
	tracer       trace.Tracer
	now          func() time.Time
}

type Option func(*Service)

func WithUsers(users UserDirectory) Option { return func(s *Service) { s.users = users } }

func WithCache(cache OrderCache) Option { return func(s *Service) { s.cache = cache } }

func WithPricing(p domain.PricingPolicy) Option { return func(s *Service) { s.pricing = p } }

func WithCheckoutTTL(ttl time.Duration) Option { return func(s *Service) { s.checkoutTTL = ttl } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithTx runs every status change, with its stock side effects, inside one
// store transaction.
func WithTx(tx TxRunner) Option { return func(s *Service) { s.tx = tx } }

func NewService(log *slog.Logger, repo OrderRepository, catalog Catalog, reservations Reservations, locker Locker, opts ...Option) *Service {
	s := &Service{
		log:          log,
		repo:         repo,
		catalog:      catalog,
		reservations: reservations,
		locker:       locker,
		users:        allowAllUsers{},
		cache:        noCache{},
		pricing:      domain.DefaultPricing(),
		checkoutTTL:  invapp.CheckoutHoldTTL,
		tracer:       otel.Tracer("order-service"),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateOrder(ctx context.Context, userID string, items []ItemRequest) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	o, err := s.createOrder(ctx, userID, items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Order{}, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	return o, nil
}

func (s *Service) createOrder(ctx context.Context, userID string, items []ItemRequest) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, domain.NewStatusError("must contain at least one item")
	}
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}

	lines := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return domain.Order{}, domain.NewStatusError("item quantity for product %s must be positive", item.ProductID)
		}
		p, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		if !p.Price.IsPositive() {
			return domain.Order{}, domain.NewStatusError("product %s has no valid price", item.ProductID)
		}
		lines = append(lines, domain.OrderItem{ProductID: p.ID, Quantity: item.Quantity, UnitPrice: p.Price})
	}

	o := domain.NewOrder(userID, lines, s.now())
	held := make([]string, 0, len(o.Items))
	for i, item := range o.Items {
		r, err := s.reservations.Reserve(ctx, item.ProductID, userID, item.Quantity, invapp.WithTTL(s.checkoutTTL))
		if err != nil {
			s.releaseAll(ctx, held)
			return domain.Order{}, err
		}
		o.Items[i].ReservationID = r.ID
		held = append(held, r.ID)
	}
	o.ApplyQuote(s.pricing.Quote(o.Subtotal))

	ev, err := s.event(ctx, o, domain.EventOrderCreated, domain.OrderCreated{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Total:       o.Total.StringFixed(2),
		Items:       o.Items,
	})
	if err == nil {
		err = s.repo.SaveWithOutbox(ctx, o, ev)
	}
	if err != nil {
		s.releaseAll(ctx, held)
		return domain.Order{}, err
	}

	s.log.Info("order created", "order_id", o.ID, "order_number", o.OrderNumber, "user_id", userID, "total", o.Total.StringFixed(2))
	return o, nil
}

func (s *Service) UpdateStatus(ctx context.Context, orderID string, upd StatusUpdate) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.target_status", string(upd.Status)),
	))
	defer span.End()

	var out domain.Order
	err := s.locker.WithLock(ctx, []string{OrderKey(orderID)}, func(ctx context.Context) error {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return err
		}
		out, err = s.applyLocked(ctx, o, upd)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Order{}, err
	}
	s.invalidate(ctx, orderID)
	return out, nil
}

func (s *Service) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.UpdateStatus(ctx, orderID, StatusUpdate{Status: domain.StatusCancelled})
}

// HandlePaymentResult applies a payment outcome: approval confirms the order,
// a decline only marks the payment failed and leaves the order pending.
func (s *Service) HandlePaymentResult(ctx context.Context, orderID string, approved bool, reason string) (domain.Order, error) {
	if approved {
		completed := domain.PaymentCompleted
		return s.UpdateStatus(ctx, orderID, StatusUpdate{Status: domain.StatusConfirmed, PaymentStatus: &completed})
	}
	s.log.Info("payment declined", "order_id", orderID, "reason", reason)
	failed := domain.PaymentFailed
	return s.UpdateStatus(ctx, orderID, StatusUpdate{PaymentStatus: &failed})
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if o, ok, err := s.cache.Get(ctx, orderID); err != nil {
		s.log.Warn("order cache read failed", "order_id", orderID, "err", err)
	} else if ok {
		return o, nil
	}

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.cache.Put(ctx, o); err != nil {
		s.log.Warn("order cache write failed", "order_id", orderID, "err", err)
	}
	return o, nil
}

func (s *Service) GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return s.repo.GetByNumber(ctx, orderNumber)
}

func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) applyLocked(ctx context.Context, o domain.Order, upd StatusUpdate) (domain.Order, error) {
	if upd.Status == domain.StatusCancelled && o.Status != domain.StatusPending {
		return domain.Order{}, domain.NewStatusError("only pending orders can be cancelled (order %s is %s)", o.ID, o.Status)
	}
	if o.Status == domain.StatusCancelled {
		return domain.Order{}, domain.NewStatusError("order %s is cancelled", o.ID)
	}
	if upd.Status == "" {
		upd.Status = o.Status
	}
	if upd.PaymentStatus != nil && !upd.PaymentStatus.Valid() {
		return domain.Order{}, domain.NewStatusError("unknown payment status %q", *upd.PaymentStatus)
	}
	if !o.Status.CanTransitionTo(upd.Status) {
		return domain.Order{}, domain.NewStatusError("cannot move order from %s to %s", o.Status, upd.Status)
	}

	from := o.Status
	next := o
	next.Status = upd.Status
	if upd.PaymentStatus != nil {
		next.PaymentStatus = *upd.PaymentStatus
	}
	if upd.TrackingNumber != nil {
		next.TrackingNumber = *upd.TrackingNumber
	}
	next.UpdatedAt = s.now()

	eventType := domain.EventOrderStatusChanged
	var payload any = domain.OrderStatusChanged{OrderID: next.ID, From: from, To: next.Status, PaymentStatus: next.PaymentStatus}
	if next.Status == domain.StatusCancelled {
		eventType = domain.EventOrderCancelled
		payload = domain.OrderCancelled{OrderID: next.ID, UserID: next.UserID}
	}
	ev, err := s.event(ctx, next, eventType, payload)
	if err != nil {
		return domain.Order{}, err
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		switch {
		case next.Status == domain.StatusCancelled:
			return s.cancel(ctx, next, ev)
		case next.Status == domain.StatusConfirmed && from == domain.StatusPending:
			return s.confirm(ctx, next, ev)
		default:
			return s.repo.SaveWithOutbox(ctx, next, ev)
		}
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order status updated", "order_id", next.ID, "from", from, "to", next.Status, "payment_status", next.PaymentStatus)
	return next, nil
}

// confirm turns the order's holds into stock deductions and records the new
// status. Without a store transaction a failed save reverts the deduction.
func (s *Service) confirm(ctx context.Context, o domain.Order, ev outbox.Event) error {
	lines := claims(o)
	if err := s.reservations.Commit(ctx, lines); err != nil {
		if errors.Is(err, invdomain.ErrInsufficientStock) {
			return &domain.StatusError{Msg: "insufficient stock", Err: err}
		}
		return err
	}
	err := s.repo.SaveWithOutbox(ctx, o, ev)
	if err != nil && s.tx == nil {
		if uerr := s.reservations.Uncommit(context.WithoutCancel(ctx), lines); uerr != nil {
			s.log.Error("revert stock commit failed", "order_id", o.ID, "err", uerr)
		}
	}
	return err
}

// cancel records the cancellation before touching the holds, so a failed save
// leaves both unchanged. Inside a transaction a failed release rolls the save
// back; otherwise the release is best effort and leftover holds expire.
func (s *Service) cancel(ctx context.Context, o domain.Order, ev outbox.Event) error {
	if err := s.repo.SaveWithOutbox(ctx, o, ev); err != nil {
		return err
	}
	if s.tx != nil {
		return s.releaseItems(ctx, o)
	}
	s.releaseAll(ctx, reservationIDs(o))
	return nil
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.InTx(ctx, fn)
}

func (s *Service) releaseItems(ctx context.Context, o domain.Order) error {
	for _, item := range o.Items {
		if item.ReservationID == "" {
			continue
		}
		if err := s.reservations.Release(ctx, item.ReservationID); err != nil {
			return fmt.Errorf("release reservation %s: %w", item.ReservationID, err)
		}
	}
	return nil
}

// releaseAll is best effort: a hold that cannot be released still expires.
func (s *Service) releaseAll(ctx context.Context, reservationIDs []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range reservationIDs {
		if err := s.reservations.Release(ctx, id); err != nil {
			s.log.Error("release reservation failed", "reservation_id", id, "err", err)
		}
	}
}

func (s *Service) invalidate(ctx context.Context, orderID string) {
	if err := s.cache.Invalidate(ctx, orderID); err != nil {
		s.log.Warn("order cache invalidate failed", "order_id", orderID, "err", err)
	}
}

func (s *Service) event(ctx context.Context, o domain.Order, eventType string, payload any) (outbox.Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: "order",
		AggregateID:   o.ID,
		Type:          eventType,
		Payload:       b,
		Headers:       map[string]string{"source": "order-service"},
		Traceparent:   tracing.Traceparent(ctx),
		CreatedAt:     s.now(),
	}, nil
}

func reservationIDs(o domain.Order) []string {
	out := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if item.ReservationID != "" {
			out = append(out, item.ReservationID)
		}
	}
	return out
}

func claims(o domain.Order) []invapp.Claim {
	out := make([]invapp.Claim, 0, len(o.Items))
	for _, item := range o.Items {
		out = append(out, invapp.Claim{ProductID: item.ProductID, Quantity: item.Quantity, ReservationID: item.ReservationID})
	}
	return out
}
