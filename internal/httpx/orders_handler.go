package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/adiwidodo/go-marketplace-orders/internal/auth"
	kafkax "github.com/adiwidodo/go-marketplace-orders/internal/kafka"
	"github.com/adiwidodo/go-marketplace-orders/internal/orders"
	"github.com/adiwidodo/go-marketplace-orders/internal/redisx"
)

// OrderStore is the slice of the order core the handlers call.
type OrderStore interface {
	PlaceOrder(ctx context.Context, buyerID string, in orders.PlaceOrderInput) (orders.Order, bool, error)
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	OrdersForBuyer(ctx context.Context, buyerID string) ([]orders.Order, error)
	OrdersForSeller(ctx context.Context, sellerID string) ([]orders.Order, error)
	SalesStats(ctx context.Context, sellerID string, rng orders.StatsRange) ([]orders.StatsBucket, error)
	UpdateStatus(ctx context.Context, orderID string, next orders.Status) error
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type OrdersHandler struct {
	Store         OrderStore
	Placed        Publisher
	StatusChanged Publisher
	Cache         Cache
	Log           *logrus.Logger
	Service       string
}

type PlaceOrderResp struct {
	OrderID    string `json:"order_id"`
	TotalCents int64  `json:"total_cents"`
	Idempotent bool   `json:"idempotent"`
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router, v *auth.Verifier) {
	r.Get("/products", h.listProducts)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(v))
		r.Post("/orders", h.placeOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Put("/orders/{id}", h.updateStatus)
		r.Get("/orders/user/{userId}", h.buyerOrders)
		r.Get("/orders/seller/{sellerId}", h.sellerOrders)
		r.Get("/orders/stats/{sellerId}", h.salesStats)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *OrdersHandler) writeErr(w http.ResponseWriter, err error) {
	var ve *orders.ValidationError
	var oos *orders.OutOfStockError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error()})
	case errors.As(err, &oos):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "out of stock",
			"product_id": oos.ProductID,
			"required":   oos.Required,
			"available":  oos.Available,
		})
	case errors.Is(err, orders.ErrProductNotFound):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.Log.WithError(err).Error("order request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// allow lets the path-addressed identity through only when it matches the
// authenticated principal; admins bypass.
func allow(p auth.Principal, id string) bool {
	return p.Role == auth.RoleAdmin || p.UserID == id
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.PlaceOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	p, _ := auth.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Buyer identity comes from the token, not the body.
	o, replayed, err := h.Store.PlaceOrder(ctx, p.UserID, in)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	if !replayed {
		h.publish(h.Placed, orders.EventOrderPlaced, o.ID,
			middleware.GetReqID(r.Context()), orders.NewOrderPlacedPayload(o))
	}

	code := http.StatusCreated
	if replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, PlaceOrderResp{OrderID: o.ID, TotalCents: o.TotalCents, Idempotent: replayed})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	p, _ := auth.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Store.GetOrder(ctx, orderID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if !allow(p, o.BuyerID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) buyerOrders(w http.ResponseWriter, r *http.Request) {
	buyerID := chi.URLParam(r, "userId")
	p, _ := auth.FromContext(r.Context())
	if !allow(p, buyerID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Store.OrdersForBuyer(ctx, buyerID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) sellerOrders(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	p, _ := auth.FromContext(r.Context())
	if !allow(p, sellerID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Store.OrdersForSeller(ctx, sellerID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) salesStats(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	p, _ := auth.FromContext(r.Context())
	if !allow(p, sellerID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}
	rng := orders.NormalizeRange(r.URL.Query().Get("range"))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyStats, sellerID, rng)
	if h.Cache != nil {
		if s, ok, err := h.Cache.Get(ctx, key); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	buckets, err := h.Store.SalesStats(ctx, sellerID, rng)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	b, _ := json.Marshal(buckets)
	if h.Cache != nil {
		_ = h.Cache.Set(ctx, key, string(b), redisx.TTLStats)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	next, ok := orders.ParseStatus(req.Status)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
		return
	}
	p, _ := auth.FromContext(r.Context())
	if p.Role != auth.RoleSeller && p.Role != auth.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.UpdateStatus(ctx, orderID, next); err != nil {
		h.writeErr(w, err)
		return
	}
	h.publish(h.StatusChanged, orders.EventOrderStatusChanged, orderID,
		middleware.GetReqID(r.Context()),
		orders.OrderStatusChangedPayload{OrderID: orderID, Status: next})
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.ListProducts(ctx)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) publish(pub Publisher, eventType, orderID, traceID string, payload any) {
	if pub == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	pub.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
