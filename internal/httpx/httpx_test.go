package httpx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safaricrafts/order-core/internal/cart"
	"github.com/safaricrafts/order-core/internal/catalog"
	"github.com/safaricrafts/order-core/internal/checkout"
	"github.com/safaricrafts/order-core/internal/httpx"
	"github.com/safaricrafts/order-core/internal/money"
	"github.com/safaricrafts/order-core/internal/order"
	"github.com/safaricrafts/order-core/internal/payment"
	"github.com/safaricrafts/order-core/internal/pkg/locks"
	"github.com/safaricrafts/order-core/internal/shipping"
	"github.com/safaricrafts/order-core/internal/storage/sqlite"
)

// fakeCache is an in-memory stand-in for the Redis cache.
type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = fmt.Sprint(value)
	return nil
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) GenerateKey(operation, key string) string {
	return fmt.Sprintf("test:%s:%s", operation, key)
}

type stubGateway struct{}

func (stubGateway) Checkout(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutResponse, error) {
	return payment.CheckoutResponse{TransactionID: "chk-001", Message: "accepted"}, nil
}

type env struct {
	store  *sqlite.Store
	sm     *order.StateMachine
	cache  *fakeCache
	router http.Handler
	method shipping.Method
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	method, err := store.CreateShippingMethod(context.Background(), shipping.Method{
		Name:         "Standard",
		Carrier:      "Posta",
		BaseCost:     money.New("TZS", 5000),
		CostPerKg:    money.New("TZS", 1200),
		DomesticOnly: true,
		IsActive:     true,
	})
	require.NoError(t, err)

	orderLocks := locks.NewKeyed()
	sm := order.NewStateMachine(store, orderLocks)
	cartService := cart.NewService(store.Carts(), store)
	shippingService := shipping.NewService(store, sm)
	checkoutService := checkout.NewService(store.Carts(), store, shippingService, store)
	paymentService := payment.NewService(store, sm, stubGateway{}, orderLocks)

	c := newFakeCache()
	handler := httpx.NewHandler(cartService, checkoutService, sm, paymentService, shippingService, c)
	return &env{
		store:  store,
		sm:     sm,
		cache:  c,
		router: httpx.NewRouter(handler),
		method: method,
	}
}

func (e *env) seedArtwork(t *testing.T, title string, price int64, stock int32) catalog.Artwork {
	t.Helper()
	aw, err := e.store.CreateArtwork(context.Background(), catalog.Artwork{
		Title:         title,
		ArtistName:    "E. Saidi",
		Price:         money.New("TZS", price),
		StockQuantity: stock,
	})
	require.NoError(t, err)
	return aw
}

func (e *env) do(t *testing.T, method, path, uid string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if uid != "" {
		req.Header.Set("X-User-ID", uid)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *env) doRaw(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}

func checkoutBody(methodID string) map[string]any {
	addr := map[string]any{
		"full_name": "Asha Juma",
		"line1":     "14 Mbezi Beach Rd",
		"city":      "Dar es Salaam",
		"country":   "TZ",
	}
	return map[string]any{
		"shipping_address":         addr,
		"billing_same_as_shipping": true,
		"shipping_method_id":       methodID,
	}
}

// checkoutOrder carts one item and checks out, returning the created order.
func (e *env) checkoutOrder(t *testing.T, uid string, aw catalog.Artwork, qty int32) httpx.OrderResponse {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/cart/items", uid, map[string]any{"artwork_id": aw.ID, "quantity": qty})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(t, http.MethodPost, "/checkout", uid, checkoutBody(e.method.ID))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[httpx.OrderResponse](t, rr)
}

func TestMissingUserHeader(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decode[httpx.ErrorResponse](t, rr)
	assert.Equal(t, "missing_user", resp.Error)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCartEndpoints(t *testing.T) {
	e := newEnv(t)
	aw := e.seedArtwork(t, "Tingatinga Lion", 120000, 5)

	rr := e.do(t, http.MethodPost, "/cart/items", "user-1", map[string]any{"artwork_id": aw.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	c := decode[httpx.CartResponse](t, rr)
	require.Len(t, c.Items, 1)
	assert.Equal(t, int64(120000), c.Items[0].UnitPrice)
	assert.Equal(t, int32(2), c.TotalItems)

	rr = e.do(t, http.MethodPut, "/cart/items/"+aw.ID, "user-1", map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, rr.Code)
	c = decode[httpx.CartResponse](t, rr)
	assert.Equal(t, int32(3), c.TotalItems)

	rr = e.do(t, http.MethodDelete, "/cart/items/"+aw.ID, "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	c = decode[httpx.CartResponse](t, rr)
	assert.Empty(t, c.Items)

	rr = e.do(t, http.MethodDelete, "/cart", "user-1", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = e.do(t, http.MethodGet, "/cart", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	c = decode[httpx.CartResponse](t, rr)
	assert.Empty(t, c.Items)
}

func TestCartItemUnknownArtwork(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodPost, "/cart/items", "user-1", map[string]any{"artwork_id": "nope", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCheckoutCreatesOrder(t *testing.T) {
	e := newEnv(t)
	aw := e.seedArtwork(t, "Ebony Mask", 120000, 5)

	o := e.checkoutOrder(t, "user-1", aw, 2)
	assert.Equal(t, "SC", o.OrderNumber[:2])
	assert.Equal(t, "pending", o.Status)
	assert.Equal(t, int64(240000), o.Subtotal)
	// base 5000 + 1200 × default 2.5 kg
	assert.Equal(t, int64(8000), o.ShippingCost)
	assert.Equal(t, int64(248000), o.TotalAmount)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Ebony Mask", o.Items[0].Title)

	rr := e.do(t, http.MethodGet, "/orders/"+o.ID, "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodGet, "/orders/"+o.ID+"/history", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decode[[]httpx.HistoryEntryResponse](t, rr)
	require.Len(t, history, 1)
	assert.Equal(t, "pending", history[0].NewStatus)

	// checkout drained the cart
	rr = e.do(t, http.MethodGet, "/cart", "user-1", nil)
	c := decode[httpx.CartResponse](t, rr)
	assert.Empty(t, c.Items)
}

func TestCheckoutEmptyCart(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodPost, "/checkout", "user-1", checkoutBody(e.method.ID))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decode[httpx.ErrorResponse](t, rr)
	assert.Equal(t, "validation_failed", resp.Error)
}

func TestCheckoutSoldOutConflict(t *testing.T) {
	e := newEnv(t)
	aw := e.seedArtwork(t, "Makonde Carving", 90000, 1)

	// both users cart the last piece; the second checkout loses
	rr := e.do(t, http.MethodPost, "/cart/items", "user-1", map[string]any{"artwork_id": aw.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, rr.Code)
	rr = e.do(t, http.MethodPost, "/cart/items", "user-2", map[string]any{"artwork_id": aw.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodPost, "/checkout", "user-1", checkoutBody(e.method.ID))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.do(t, http.MethodPost, "/checkout", "user-2", checkoutBody(e.method.ID))
	assert.Equal(t, http.StatusConflict, rr.Code)
	resp := decode[httpx.ErrorResponse](t, rr)
	assert.Equal(t, "conflict", resp.Error)
}

func TestCancelOrderEndpoint(t *testing.T) {
	e := newEnv(t)
	aw := e.seedArtwork(t, "Kanga Print", 45000, 3)
	o := e.checkoutOrder(t, "user-1", aw, 1)

	rr := e.do(t, http.MethodPost, "/orders/"+o.ID+"/cancel", "user-1", map[string]any{"reason": "changed my mind"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := decode[httpx.OrderResponse](t, rr)
	assert.Equal(t, "cancelled", got.Status)

	rr = e.do(t, http.MethodPost, "/orders/"+o.ID+"/cancel", "user-1", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestWebhookContract(t *testing.T) {
	e := newEnv(t)
	aw := e.seedArtwork(t, "Tingatinga Lion", 120000, 5)
	o := e.checkoutOrder(t, "user-1", aw, 1)

	rr := e.do(t, http.MethodPost, "/payments/initialize", "user-1", map[string]any{
		"order_id": o.ID, "provider": "azampay", "method": "mobile_money",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	p := decode[httpx.PaymentResponse](t, rr)
	assert.Equal(t, "pending", p.Status)
	assert.Equal(t, o.TotalAmount, p.Amount)

	// malformed body
	rr = e.doRaw(t, http.MethodPost, "/webhooks/azampay", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// missing correlation id
	rr = e.doRaw(t, http.MethodPost, "/webhooks/azampay", []byte(`{"transactionId":"TX1","status":"success"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// unknown externalId
	rr = e.doRaw(t, http.MethodPost, "/webhooks/azampay", []byte(`{"transactionId":"TX2","externalId":"nope","status":"success"}`))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// the real callback confirms payment and order
	body := []byte(fmt.Sprintf(`{"transactionId":"TX3","externalId":"%s","status":"success","amount":%d}`, p.ID, p.Amount))
	rr = e.doRaw(t, http.MethodPost, "/webhooks/azampay", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[httpx.WebhookResponse](t, rr)
	assert.True(t, res.Processed)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "completed", res.Status)

	rr = e.do(t, http.MethodGet, "/orders/"+o.ID, "user-1", nil)
	got := decode[httpx.OrderResponse](t, rr)
	assert.Equal(t, "confirmed", got.Status)

	// replay of the same event id acknowledges without re-applying
	rr = e.doRaw(t, http.MethodPost, "/webhooks/azampay", body)
	require.Equal(t, http.StatusOK, rr.Code)
	res = decode[httpx.WebhookResponse](t, rr)
	assert.True(t, res.Duplicate)
	assert.True(t, res.Processed)
}

func TestPaymentStatusCached(t *testing.T) {
	e := newEnv(t)
	aw := e.seedArtwork(t, "Ebony Mask", 120000, 5)
	o := e.checkoutOrder(t, "user-1", aw, 1)

	rr := e.do(t, http.MethodPost, "/payments/initialize", "user-1", map[string]any{
		"order_id": o.ID, "provider": "azampay", "method": "mobile_money",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	p := decode[httpx.PaymentResponse](t, rr)

	rr = e.do(t, http.MethodGet, "/payments/"+p.ID+"/status", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	st := decode[httpx.PaymentStatusResponse](t, rr)
	assert.Equal(t, "pending", st.Status)

	// second read is served from the cache
	key := e.cache.GenerateKey("payment_status", p.ID)
	require.NoError(t, e.cache.Set(context.Background(), key, `{"id":"`+p.ID+`","status":"processing"}`, time.Minute))
	rr = e.do(t, http.MethodGet, "/payments/"+p.ID+"/status", "user-1", nil)
	st = decode[httpx.PaymentStatusResponse](t, rr)
	assert.Equal(t, "processing", st.Status)
}

func TestShippingEndpoints(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	aw := e.seedArtwork(t, "Makonde Carving", 90000, 3)
	o := e.checkoutOrder(t, "user-1", aw, 1)

	_, err := e.sm.Transition(ctx, o.ID, order.StatusConfirmed, "system", "Payment completed")
	require.NoError(t, err)

	rr := e.do(t, http.MethodGet, "/shipping/methods", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	methods := decode[[]httpx.ShippingMethodResponse](t, rr)
	require.Len(t, methods, 1)
	assert.Equal(t, "Posta", methods[0].Carrier)

	rr = e.do(t, http.MethodPost, "/shipments", "", map[string]any{
		"order_id":  o.ID,
		"weight_kg": "2.5",
		"from_address": map[string]any{
			"full_name": "SafariCrafts Warehouse", "line1": "Nyerere Rd",
			"city": "Dar es Salaam", "country": "TZ",
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	sh := decode[httpx.ShipmentResponse](t, rr)
	assert.Equal(t, "pending", sh.Status)
	assert.Equal(t, int64(8000), sh.ShippingCost)

	// booking moved the order to processing
	rr = e.do(t, http.MethodGet, "/orders/"+o.ID, "user-1", nil)
	assert.Equal(t, "processing", decode[httpx.OrderResponse](t, rr).Status)

	// duplicate booking conflicts
	rr = e.do(t, http.MethodPost, "/shipments", "", map[string]any{"order_id": o.ID, "weight_kg": "2.5"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = e.do(t, http.MethodPost, "/shipments/"+sh.TrackingNumber+"/events", "", map[string]any{
		"event_type": "picked_up", "location": "Dar es Salaam Hub",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.do(t, http.MethodGet, "/shipments/"+sh.TrackingNumber, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "picked_up", decode[httpx.ShipmentResponse](t, rr).Status)

	rr = e.do(t, http.MethodPost, "/shipments/"+sh.TrackingNumber+"/events", "", map[string]any{"event_type": "delivered"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = e.do(t, http.MethodGet, "/shipments/"+sh.TrackingNumber+"/events", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	events := decode[[]httpx.ShipmentEventResponse](t, rr)
	assert.Len(t, events, 2)

	rr = e.do(t, http.MethodGet, "/orders/"+o.ID, "user-1", nil)
	assert.Equal(t, "delivered", decode[httpx.OrderResponse](t, rr).Status)

	rr = e.do(t, http.MethodPost, "/orders/"+o.ID+"/complete", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "completed", decode[httpx.OrderResponse](t, rr).Status)
}

func TestRefundEndpoint(t *testing.T) {
	e := newEnv(t)
	aw := e.seedArtwork(t, "Kanga Print", 45000, 3)
	o := e.checkoutOrder(t, "user-1", aw, 1)

	rr := e.do(t, http.MethodPost, "/payments/initialize", "user-1", map[string]any{
		"order_id": o.ID, "provider": "azampay", "method": "mobile_money",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	p := decode[httpx.PaymentResponse](t, rr)

	body := []byte(fmt.Sprintf(`{"transactionId":"TX9","externalId":"%s","status":"success"}`, p.ID))
	rr = e.doRaw(t, http.MethodPost, "/webhooks/azampay", body)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodPost, "/orders/"+o.ID+"/refund", "admin-1", map[string]any{
		"amount": o.TotalAmount, "reason": "damaged in transit",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	ref := decode[httpx.RefundResponse](t, rr)
	assert.Equal(t, "full", ref.Type)
	assert.Equal(t, o.TotalAmount, ref.Amount)

	rr = e.do(t, http.MethodGet, "/orders/"+o.ID, "user-1", nil)
	assert.Equal(t, "refunded", decode[httpx.OrderResponse](t, rr).Status)
}
