package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/domain/orderstore"
	"github.com/coachpo/swapexec/internal/resources"
	"github.com/coachpo/swapexec/pkg/apperr"
)

type fakeStore struct {
	mu     sync.Mutex
	orders map[string]order.Order
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]order.Order)}
}

func (f *fakeStore) CreateOrder(_ context.Context, o order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.orders[o.OrderID]; exists {
		return nil
	}
	f.orders[o.OrderID] = o
	return nil
}

func (f *fakeStore) UpdateOrder(_ context.Context, o order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[o.OrderID]; !ok {
		return apperr.NotFound("fakeStore.UpdateOrder", o.OrderID)
	}
	f.orders[o.OrderID] = o
	return nil
}

func (f *fakeStore) GetOrder(_ context.Context, orderID string) (order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return order.Order{}, apperr.NotFound("fakeStore.GetOrder", orderID)
	}
	return o, nil
}

func (f *fakeStore) ListOrders(_ context.Context, _ orderstore.Query) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]order.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

var _ orderstore.Store = (*fakeStore)(nil)

type fakeResources struct {
	allocated []string
}

func (f *fakeResources) Allocate(orderID string) *resources.Scope {
	f.allocated = append(f.allocated, orderID)
	return &resources.Scope{OrderID: orderID}
}

type fakeEnqueuer struct {
	enqueued []string
	err      error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, orderID string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, orderID)
	return nil
}

func newTestServer() (*Server, *fakeStore, *fakeResources, *fakeEnqueuer) {
	store := newFakeStore()
	res := &fakeResources{}
	enq := &fakeEnqueuer{}
	srv := New(store, res, enq)
	srv.sleep = func(context.Context, time.Duration) error { return nil }
	return srv, store, res, enq
}

func TestCreateOrderValidation(t *testing.T) {
	srv, _, _, _ := newTestServer()

	body, err := json.Marshal(createOrderRequest{TokenIn: "", TokenOut: "USDC", AmountIn: "-1", SlippageTolerance: 200})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/orders/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "Validation error", resp["error"])
	details, ok := resp["details"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, details)
}

func TestCreateOrderSuccess(t *testing.T) {
	srv, store, res, enq := newTestServer()

	body, err := json.Marshal(createOrderRequest{
		TokenIn:           "SOL",
		TokenOut:          "USDC",
		AmountIn:          "10.5",
		SlippageTolerance: 1.0,
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/orders/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 201, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	orderID, ok := resp["orderId"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, orderID)
	assert.Equal(t, "pending", resp["status"])

	assert.Len(t, res.allocated, 1)
	assert.Len(t, enq.enqueued, 1)

	_, err = store.GetOrder(context.Background(), orderID)
	assert.NoError(t, err)
}

func TestGetOrderNotFound(t *testing.T) {
	srv, _, _, _ := newTestServer()

	req := httptest.NewRequest("GET", "/api/orders/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestListOrders(t *testing.T) {
	srv, store, _, _ := newTestServer()
	require.NoError(t, store.CreateOrder(context.Background(), order.Order{
		OrderID: "order-1", TokenIn: "SOL", TokenOut: "USDC", AmountIn: "1",
		Status: order.StatusPending,
	}))

	req := httptest.NewRequest("GET", "/api/orders", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(1), resp["count"])
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := newTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}
