package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/domain/orderstore"
	"github.com/coachpo/swapexec/internal/infra/database"
	"github.com/coachpo/swapexec/internal/infra/persistence/migrations"
	pgstore "github.com/coachpo/swapexec/internal/infra/persistence/postgres"
)

// TestOrderStoreContract exercises OrderStore end to end against a real
// Postgres instance: create, read-back, status transition, and listing.
// It mirrors the teacher's own contract test shape
// (tests/contract/persistence/postgres_integration_test.go) but spins the
// database up with the dedicated testcontainers-go postgres module instead
// of a hand-rolled generic container request.
func TestOrderStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed integration test in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("swapexec"),
		postgres.WithUsername("swapexec"),
		postgres.WithPassword("swapexec"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("docker unavailable, skipping integration test: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationsDir, err := migrationsPath()
	require.NoError(t, err)
	require.NoError(t, migrations.Apply(ctx, dsn, migrationsDir, nil))

	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := pgstore.NewOrderStore(pool)

	now := time.Now().UTC()
	o := order.Order{
		OrderID:           "order-contract-1",
		TokenIn:           "SOL",
		TokenOut:          "USDC",
		AmountIn:          "10.5",
		SlippageTolerance: 1.5,
		Status:            order.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	require.NoError(t, store.CreateOrder(ctx, o))
	require.NoError(t, store.CreateOrder(ctx, o), "duplicate create must be a no-op")

	got, err := store.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, got.Status)
	require.Equal(t, o.TokenIn, got.TokenIn)

	dex := order.DexRaydium
	txHash := "0xabc123"
	got.Status = order.StatusRouting
	got.DexType = &dex
	require.NoError(t, store.UpdateOrder(ctx, got))

	routed, err := store.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.Equal(t, order.StatusRouting, routed.Status)
	require.NotNil(t, routed.DexType)
	require.Equal(t, dex, *routed.DexType)

	routed.TxHash = &txHash
	routed.Status = order.StatusSubmitted
	require.NoError(t, store.UpdateOrder(ctx, routed))

	overwritten := *routed.TxHash + "-should-not-apply"
	routed.TxHash = &overwritten
	require.NoError(t, store.UpdateOrder(ctx, routed))

	final, err := store.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.NotNil(t, final.TxHash)
	require.Equal(t, txHash, *final.TxHash, "tx hash must never change once set")

	_, err = store.GetOrder(ctx, "does-not-exist")
	require.Error(t, err)

	listed, err := store.ListOrders(ctx, orderstore.Query{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, listed)
}

func migrationsPath() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/../../db/migrations", wd), nil
}
