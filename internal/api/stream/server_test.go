package stream

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/domain/orderstore"
	"github.com/coachpo/swapexec/internal/push"
	"github.com/coachpo/swapexec/pkg/apperr"
)

type fakeStore struct {
	orders map[string]order.Order
}

func (f *fakeStore) CreateOrder(context.Context, order.Order) error { return nil }
func (f *fakeStore) UpdateOrder(context.Context, order.Order) error { return nil }

func (f *fakeStore) GetOrder(_ context.Context, orderID string) (order.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return order.Order{}, apperr.NotFound("fakeStore.GetOrder", orderID)
	}
	return o, nil
}

func (f *fakeStore) ListOrders(context.Context, orderstore.Query) ([]order.Order, error) {
	return nil, nil
}

var _ orderstore.Store = (*fakeStore)(nil)

type fakeRegistrar struct {
	registered   []string
	unregistered int
}

func (f *fakeRegistrar) Register(orderID string, _ push.ChannelHandle) {
	f.registered = append(f.registered, orderID)
}

func (f *fakeRegistrar) Unregister(push.ChannelHandle) {
	f.unregistered++
}

func (f *fakeRegistrar) EmitFrame(string, push.Frame) int {
	return 0
}

func TestParseOrderID(t *testing.T) {
	id, ok := parseOrderID("/api/orders/abc-123/stream")
	require.True(t, ok)
	assert.Equal(t, "abc-123", id)

	_, ok = parseOrderID("/api/orders/abc-123")
	assert.False(t, ok)

	_, ok = parseOrderID("/api/orders//stream")
	assert.False(t, ok)

	_, ok = parseOrderID("/api/orders/a/b/stream")
	assert.False(t, ok)
}

func TestHandleStreamUnknownOrderReturnsNotFound(t *testing.T) {
	store := &fakeStore{orders: map[string]order.Order{}}
	registrar := &fakeRegistrar{}
	srv := New(registrar, store)

	req := httptest.NewRequest("GET", "/api/orders/missing/stream", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
	assert.Empty(t, registrar.registered)
}

func TestHandleStreamRejectsNonGet(t *testing.T) {
	store := &fakeStore{orders: map[string]order.Order{
		"order-1": {OrderID: "order-1", Status: order.StatusPending},
	}}
	registrar := &fakeRegistrar{}
	srv := New(registrar, store)

	req := httptest.NewRequest("POST", "/api/orders/order-1/stream", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 405, rec.Code)
}

func TestHandleStreamBadPath(t *testing.T) {
	store := &fakeStore{orders: map[string]order.Order{}}
	registrar := &fakeRegistrar{}
	srv := New(registrar, store)

	req := httptest.NewRequest("GET", "/api/orders/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestIsPingFrame(t *testing.T) {
	assert.True(t, isPingFrame([]byte(`{"type":"ping"}`)))
	assert.True(t, isPingFrame([]byte(`  {"type":"ping"}  `)))
	assert.True(t, isPingFrame([]byte("ping")))
	assert.False(t, isPingFrame([]byte(`{"type":"pong"}`)))
	assert.False(t, isPingFrame([]byte(`not json`)))
}

func TestChanMutexSerializes(t *testing.T) {
	m := newChanMutex()
	done := make(chan struct{})
	m.Lock()
	go func() {
		m.Lock()
		defer m.Unlock()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Lock should not have succeeded while held")
	case <-time.After(20 * time.Millisecond):
	}

	m.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Lock should have succeeded after Unlock")
	}
}
