package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/domain/orderstore"
)

func TestOrderStoreNilPool(t *testing.T) {
	store := NewOrderStore(nil)
	ctx := context.Background()

	o := order.Order{
		OrderID:           "abc",
		TokenIn:           "SOL",
		TokenOut:          "USDC",
		AmountIn:          "1.5",
		SlippageTolerance: 0.5,
		Status:            order.StatusPending,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	_, err := NewOrderStore(nil).ensurePool()
	assert.Error(t, err)

	assert.Error(t, store.CreateOrder(ctx, o))
	assert.Error(t, store.UpdateOrder(ctx, o))
	_, err = store.GetOrder(ctx, o.OrderID)
	assert.Error(t, err)
	_, err = store.ListOrders(ctx, orderstore.Query{Limit: 10})
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultOrderLimit, clampLimit(0, defaultOrderLimit, maxOrderLimit))
	assert.Equal(t, maxOrderLimit, clampLimit(10_000, defaultOrderLimit, maxOrderLimit))
	assert.Equal(t, 25, clampLimit(25, defaultOrderLimit, maxOrderLimit))
}
