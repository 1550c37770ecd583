package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	invapp "github.com/dmehra2102/stock-reservation/internal/inventory/application"
	invdomain "github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/application"
	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/pkg/idempotency"
)

type OrderService interface {
	CreateOrder(ctx context.Context, userID string, items []application.ItemRequest) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, upd application.StatusUpdate) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]domain.Order, error)
}

type ReservationService interface {
	Reserve(ctx context.Context, productID, ownerID string, quantity int, opts ...invapp.ReserveOption) (invdomain.Reservation, error)
	Release(ctx context.Context, reservationID string) error
	Get(ctx context.Context, reservationID string) (invdomain.Reservation, error)
	Available(ctx context.Context, productID string) (int, error)
	ListActiveByProduct(ctx context.Context, productID string) ([]invdomain.Reservation, error)
	ListActiveByOwner(ctx context.Context, ownerID string) ([]invdomain.Reservation, error)
	SetStock(ctx context.Context, productID string, quantity int) error
}

type Handler struct {
	log          *slog.Logger
	orders       OrderService
	reservations ReservationService
	holdTTL      time.Duration
	idem         idempotency.Checker
	tracer       trace.Tracer
}

type Option func(*Handler)

// WithIdempotency rejects repeated Idempotency-Key headers on order creation.
func WithIdempotency(c idempotency.Checker) Option { return func(h *Handler) { h.idem = c } }

// WithHoldTTL sets the TTL of holds placed directly through /reservations.
func WithHoldTTL(ttl time.Duration) Option { return func(h *Handler) { h.holdTTL = ttl } }

func NewHandler(log *slog.Logger, orders OrderService, reservations ReservationService, opts ...Option) *Handler {
	h := &Handler{
		log:          log,
		orders:       orders,
		reservations: reservations,
		holdTTL:      invapp.ProductHoldTTL,
		tracer:       otel.Tracer("order-http"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.With(idempotency.HTTP(h.log, h.idem)).Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/number/{number}", h.getOrderByNumber)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/users/{userID}/orders", h.listUserOrders)

	r.Post("/reservations", h.reserve)
	r.Get("/reservations/{id}", h.getReservation)
	r.Delete("/reservations/{id}", h.releaseReservation)
	r.Get("/users/{userID}/reservations", h.listOwnerReservations)

	r.Get("/products/{id}/availability", h.availability)
	r.Get("/products/{id}/reservations", h.listProductReservations)
	r.Put("/products/{id}/stock", h.setStock)

	return r
}

type itemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderReq struct {
	UserID string    `json:"user_id"`
	Items  []itemReq `json:"items"`
}

type updateStatusReq struct {
	Status         domain.OrderStatus    `json:"status"`
	PaymentStatus  *domain.PaymentStatus `json:"payment_status"`
	TrackingNumber *string               `json:"tracking_number"`
}

type reserveReq struct {
	ProductID string `json:"product_id"`
	OwnerID   string `json:"owner_id"`
	Quantity  int    `json:"quantity"`
}

type setStockReq struct {
	Quantity int `json:"quantity"`
}

type reservationResp struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	OwnerID    string    `json:"owner_id"`
	Quantity   int       `json:"quantity"`
	Status     string    `json:"status"`
	ReservedAt time.Time `json:"reserved_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func toReservationResp(r invdomain.Reservation) reservationResp {
	return reservationResp{
		ID:         r.ID,
		ProductID:  r.ProductID,
		OwnerID:    r.OwnerID,
		Quantity:   r.Quantity,
		Status:     string(r.Status),
		ReservedAt: r.ReservedAt,
		ExpiresAt:  r.ExpiresAt,
	}
}

func (h *Handler) start(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return h.tracer.Start(ctx, name)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	items := make([]application.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, application.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, err := h.orders.CreateOrder(ctx, req.UserID, items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "GetOrder")
	defer span.End()

	o, err := h.orders.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "GetOrderByNumber")
	defer span.End()

	o, err := h.orders.GetOrderByNumber(ctx, chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "ListUserOrders")
	defer span.End()

	orders, err := h.orders.ListUserOrders(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "UpdateOrderStatus")
	defer span.End()

	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	o, err := h.orders.UpdateStatus(ctx, chi.URLParam(r, "id"), application.StatusUpdate{
		Status:         req.Status,
		PaymentStatus:  req.PaymentStatus,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "CancelOrder")
	defer span.End()

	o, err := h.orders.CancelOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "Reserve")
	defer span.End()

	var req reserveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" || req.OwnerID == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	res, err := h.reservations.Reserve(ctx, req.ProductID, req.OwnerID, req.Quantity, invapp.WithTTL(h.holdTTL))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationResp(res))
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.reservations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResp(res))
}

func (h *Handler) releaseReservation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "ReleaseReservation")
	defer span.End()

	if err := h.reservations.Release(ctx, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listOwnerReservations(w http.ResponseWriter, r *http.Request) {
	list, err := h.reservations.ListActiveByOwner(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeReservations(w, list)
}

func (h *Handler) listProductReservations(w http.ResponseWriter, r *http.Request) {
	list, err := h.reservations.ListActiveByProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeReservations(w, list)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.reservations.Available(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": id, "available": n})
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "SetStock")
	defer span.End()

	var req setStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.reservations.SetStock(ctx, chi.URLParam(r, "id"), req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeReservations(w http.ResponseWriter, list []invdomain.Reservation) {
	out := make([]reservationResp, 0, len(list))
	for _, r := range list {
		out = append(out, toReservationResp(r))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var statusErr *domain.StatusError
	switch {
	case errors.As(err, &statusErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": statusErr.Error()})
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, invdomain.ErrProductNotFound),
		errors.Is(err, invdomain.ErrReservationNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, invdomain.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, invdomain.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
