package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adiwidodo/go-marketplace-orders/internal/auth"
	"github.com/adiwidodo/go-marketplace-orders/internal/orders"
)

type fakeStore struct {
	placeOrder   func(ctx context.Context, buyerID string, in orders.PlaceOrderInput) (orders.Order, bool, error)
	getOrder     func(ctx context.Context, orderID string) (orders.Order, error)
	forBuyer     func(ctx context.Context, buyerID string) ([]orders.Order, error)
	forSeller    func(ctx context.Context, sellerID string) ([]orders.Order, error)
	salesStats   func(ctx context.Context, sellerID string, rng orders.StatsRange) ([]orders.StatsBucket, error)
	updateStatus func(ctx context.Context, orderID string, next orders.Status) error
	statsCalls   int
}

func (f *fakeStore) PlaceOrder(ctx context.Context, buyerID string, in orders.PlaceOrderInput) (orders.Order, bool, error) {
	return f.placeOrder(ctx, buyerID, in)
}
func (f *fakeStore) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return f.getOrder(ctx, orderID)
}
func (f *fakeStore) OrdersForBuyer(ctx context.Context, buyerID string) ([]orders.Order, error) {
	return f.forBuyer(ctx, buyerID)
}
func (f *fakeStore) OrdersForSeller(ctx context.Context, sellerID string) ([]orders.Order, error) {
	return f.forSeller(ctx, sellerID)
}
func (f *fakeStore) SalesStats(ctx context.Context, sellerID string, rng orders.StatsRange) ([]orders.StatsBucket, error) {
	f.statsCalls++
	return f.salesStats(ctx, sellerID, rng)
}
func (f *fakeStore) UpdateStatus(ctx context.Context, orderID string, next orders.Status) error {
	return f.updateStatus(ctx, orderID, next)
}
func (f *fakeStore) ListProducts(ctx context.Context) ([]orders.Product, error) {
	return []orders.Product{{ID: "p1", SellerID: "s1", Name: "Kopi", PriceCents: 1500, Stock: 3, Active: true}}, nil
}

type fakePublisher struct{ messages [][]byte }

func (f *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	f.messages = append(f.messages, value)
}

type fakeCache struct {
	data map[string]string
	sets int
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	s, ok := f.data[key]
	return s, ok, nil
}
func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.data[key] = value
	f.sets++
	return nil
}

type env struct {
	store    *fakeStore
	placed   *fakePublisher
	status   *fakePublisher
	cache    *fakeCache
	verifier *auth.Verifier
	router   *chi.Mux
}

func newEnv(store *fakeStore) *env {
	e := &env{
		store:    store,
		placed:   &fakePublisher{},
		status:   &fakePublisher{},
		cache:    &fakeCache{data: map[string]string{}},
		verifier: auth.NewVerifier("test-secret"),
		router:   chi.NewRouter(),
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := &OrdersHandler{
		Store:         store,
		Placed:        e.placed,
		StatusChanged: e.status,
		Cache:         e.cache,
		Log:           log,
		Service:       "order-api-test",
	}
	h.Register(e.router, e.verifier)
	return e
}

func (e *env) do(t *testing.T, method, path, body string, p *auth.Principal) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if p != nil {
		tok, err := e.verifier.Sign(*p, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func buyer(id string) *auth.Principal  { return &auth.Principal{UserID: id, Role: auth.RoleBuyer} }
func seller(id string) *auth.Principal { return &auth.Principal{UserID: id, Role: auth.RoleSeller} }
func admin() *auth.Principal           { return &auth.Principal{UserID: "root", Role: auth.RoleAdmin} }

const placeBody = `{
	"order_id": "ord-1",
	"customer_name": "Budi",
	"tax_cents": 100,
	"shipping_cents": 500,
	"total_cents": 3600,
	"shipping_address": {"city": "Jakarta"},
	"items": [{"product_id": "p1", "qty": 2}]
}`

func TestPlaceOrder(t *testing.T) {
	var gotBuyer string
	store := &fakeStore{
		placeOrder: func(ctx context.Context, buyerID string, in orders.PlaceOrderInput) (orders.Order, bool, error) {
			gotBuyer = buyerID
			return orders.Order{
				ID:         in.OrderID,
				BuyerID:    buyerID,
				TotalCents: in.TotalCents,
				Status:     orders.StatusPending,
				Items: []orders.OrderItem{
					{OrderID: in.OrderID, ProductID: "p1", SellerID: "s1", Qty: 2, PriceCents: 1500},
				},
			}, false, nil
		},
	}
	e := newEnv(store)

	rec := e.do(t, http.MethodPost, "/orders", placeBody, buyer("b1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp PlaceOrderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ord-1", resp.OrderID)
	assert.Equal(t, int64(3600), resp.TotalCents)
	assert.False(t, resp.Idempotent)

	// buyer identity comes from the token
	assert.Equal(t, "b1", gotBuyer)

	// one OrderPlaced event published
	require.Len(t, e.placed.messages, 1)
	var ev orders.Envelope
	require.NoError(t, json.Unmarshal(e.placed.messages[0], &ev))
	assert.Equal(t, orders.EventOrderPlaced, ev.EventType)
	assert.Equal(t, "ord-1", ev.CorrelationID)
}

func TestPlaceOrderIdempotentReplay(t *testing.T) {
	store := &fakeStore{
		placeOrder: func(ctx context.Context, buyerID string, in orders.PlaceOrderInput) (orders.Order, bool, error) {
			return orders.Order{ID: in.OrderID, TotalCents: 3600}, true, nil
		},
	}
	e := newEnv(store)

	rec := e.do(t, http.MethodPost, "/orders", placeBody, buyer("b1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PlaceOrderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Idempotent)
	// replay must not re-publish
	assert.Empty(t, e.placed.messages)
}

func TestPlaceOrderErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &orders.ValidationError{Field: "total_cents", Reason: "mismatch"}, http.StatusBadRequest},
		{"out of stock", &orders.OutOfStockError{ProductID: "p1", Required: 2, Available: 1}, http.StatusConflict},
		{"unknown product", orders.ErrProductNotFound, http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			store := &fakeStore{
				placeOrder: func(ctx context.Context, buyerID string, in orders.PlaceOrderInput) (orders.Order, bool, error) {
					return orders.Order{}, false, c.err
				},
			}
			e := newEnv(store)
			rec := e.do(t, http.MethodPost, "/orders", placeBody, buyer("b1"))
			assert.Equal(t, c.code, rec.Code, rec.Body.String())
			assert.Empty(t, e.placed.messages)
		})
	}
}

func TestPlaceOrderBadJSON(t *testing.T) {
	e := newEnv(&fakeStore{})
	rec := e.do(t, http.MethodPost, "/orders", "{", buyer("b1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrdersRequireToken(t *testing.T) {
	e := newEnv(&fakeStore{})
	rec := e.do(t, http.MethodPost, "/orders", placeBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/orders/user/b1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuyerOrders(t *testing.T) {
	store := &fakeStore{
		forBuyer: func(ctx context.Context, buyerID string) ([]orders.Order, error) {
			return []orders.Order{}, nil
		},
	}
	e := newEnv(store)

	t.Run("empty result is a JSON array", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/orders/user/b1", "", buyer("b1"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	})

	t.Run("other buyer is forbidden", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/orders/user/b1", "", buyer("b2"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin may read anyone", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/orders/user/b1", "", admin())
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSellerOrders(t *testing.T) {
	store := &fakeStore{
		forSeller: func(ctx context.Context, sellerID string) ([]orders.Order, error) {
			return []orders.Order{{
				ID: "o1",
				Items: []orders.OrderItem{
					{OrderID: "o1", ProductID: "p1", SellerID: sellerID, Qty: 1, PriceCents: 100},
				},
			}}, nil
		},
	}
	e := newEnv(store)

	rec := e.do(t, http.MethodGet, "/orders/seller/s1", "", seller("s1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Len(t, out[0].Items, 1)
	assert.Equal(t, "s1", out[0].Items[0].SellerID)

	rec = e.do(t, http.MethodGet, "/orders/seller/s1", "", seller("s2"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSalesStatsCaching(t *testing.T) {
	store := &fakeStore{
		salesStats: func(ctx context.Context, sellerID string, rng orders.StatsRange) ([]orders.StatsBucket, error) {
			assert.Equal(t, orders.Range24h, rng)
			return []orders.StatsBucket{{Label: "13:00", RevenueCents: 1500}}, nil
		},
	}
	e := newEnv(store)

	rec := e.do(t, http.MethodGet, "/orders/stats/s1?range=24h", "", seller("s1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.statsCalls)
	assert.Equal(t, 1, e.cache.sets)
	first := rec.Body.String()

	// second read is served from cache
	rec = e.do(t, http.MethodGet, "/orders/stats/s1?range=24h", "", seller("s1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.statsCalls)
	assert.JSONEq(t, first, rec.Body.String())
}

func TestSalesStatsRangeFallback(t *testing.T) {
	store := &fakeStore{
		salesStats: func(ctx context.Context, sellerID string, rng orders.StatsRange) ([]orders.StatsBucket, error) {
			assert.Equal(t, orders.Range15d, rng)
			return []orders.StatsBucket{}, nil
		},
	}
	e := newEnv(store)
	rec := e.do(t, http.MethodGet, "/orders/stats/s1?range=bogus", "", seller("s1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.statsCalls)
}

func TestUpdateStatus(t *testing.T) {
	t.Run("success publishes event", func(t *testing.T) {
		store := &fakeStore{
			updateStatus: func(ctx context.Context, orderID string, next orders.Status) error {
				assert.Equal(t, "o1", orderID)
				assert.Equal(t, orders.StatusShipped, next)
				return nil
			},
		}
		e := newEnv(store)
		rec := e.do(t, http.MethodPut, "/orders/o1", `{"status":"SHIPPED"}`, seller("s1"))
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Len(t, e.status.messages, 1)
		var ev orders.Envelope
		require.NoError(t, json.Unmarshal(e.status.messages[0], &ev))
		assert.Equal(t, orders.EventOrderStatusChanged, ev.EventType)
	})

	t.Run("unknown order", func(t *testing.T) {
		store := &fakeStore{
			updateStatus: func(ctx context.Context, orderID string, next orders.Status) error {
				return orders.ErrOrderNotFound
			},
		}
		e := newEnv(store)
		rec := e.do(t, http.MethodPut, "/orders/nope", `{"status":"SHIPPED"}`, seller("s1"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid transition", func(t *testing.T) {
		store := &fakeStore{
			updateStatus: func(ctx context.Context, orderID string, next orders.Status) error {
				return orders.ErrInvalidTransition
			},
		}
		e := newEnv(store)
		rec := e.do(t, http.MethodPut, "/orders/o1", `{"status":"DELIVERED"}`, seller("s1"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown status string", func(t *testing.T) {
		e := newEnv(&fakeStore{})
		rec := e.do(t, http.MethodPut, "/orders/o1", `{"status":"TELEPORTED"}`, seller("s1"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("buyers may not update status", func(t *testing.T) {
		e := newEnv(&fakeStore{})
		rec := e.do(t, http.MethodPut, "/orders/o1", `{"status":"SHIPPED"}`, buyer("b1"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestListProductsIsPublic(t *testing.T) {
	e := newEnv(&fakeStore{})
	rec := e.do(t, http.MethodGet, "/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ps []orders.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ps))
	require.Len(t, ps, 1)
	assert.Equal(t, "Kopi", ps[0].Name)
}

func TestGetOrder(t *testing.T) {
	store := &fakeStore{
		getOrder: func(ctx context.Context, orderID string) (orders.Order, error) {
			if orderID != "o1" {
				return orders.Order{}, orders.ErrOrderNotFound
			}
			return orders.Order{ID: "o1", BuyerID: "b1", Items: []orders.OrderItem{}}, nil
		},
	}
	e := newEnv(store)

	t.Run("owner reads own order", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/orders/o1", "", buyer("b1"))
		require.Equal(t, http.StatusOK, rec.Code)
		var o orders.Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
		assert.Equal(t, "o1", o.ID)
	})

	t.Run("other buyer is forbidden", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/orders/o1", "", buyer("b2"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/orders/nope", "", buyer("b1"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
