package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/domain/orderstore"
	"github.com/coachpo/swapexec/pkg/apperr"
)

// OrderStore persists order lifecycle rows against a single orders table.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore constructs an OrderStore backed by the provided pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const (
	orderInsertSQL = `
INSERT INTO orders (
    id,
    token_in,
    token_out,
    amount_in,
    slippage_tolerance,
    min_amount_out,
    status,
    dex_type,
    executed_price,
    tx_hash,
    error_reason,
    created_at,
    updated_at
) VALUES (
    @id,
    @token_in,
    @token_out,
    @amount_in,
    @slippage_tolerance,
    @min_amount_out,
    @status,
    @dex_type,
    @executed_price,
    @tx_hash,
    @error_reason,
    NOW(),
    NOW()
)
ON CONFLICT (id) DO NOTHING;
`

	orderUpdateSQL = `
UPDATE orders
SET status = @status,
    dex_type = @dex_type,
    executed_price = @executed_price,
    tx_hash = COALESCE(tx_hash, @tx_hash),
    error_reason = @error_reason,
    updated_at = NOW()
WHERE id = @id;
`

	orderSelectBase = `
SELECT
    id,
    token_in,
    token_out,
    amount_in,
    slippage_tolerance,
    min_amount_out,
    status,
    dex_type,
    executed_price,
    tx_hash,
    error_reason,
    created_at,
    updated_at
FROM orders
`

	defaultOrderLimit = 100
	maxOrderLimit      = 500
)

func (s *OrderStore) ensurePool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, apperr.Unavailable("orderStore", "nil pool")
	}
	return s.pool, nil
}

// CreateOrder inserts the initial PENDING row. A duplicate id is silently
// ignored so that a retried createOrder call is idempotent.
func (s *OrderStore) CreateOrder(ctx context.Context, o order.Order) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	args := pgx.NamedArgs{
		"id":                  o.OrderID,
		"token_in":            o.TokenIn,
		"token_out":           o.TokenOut,
		"amount_in":           o.AmountIn,
		"slippage_tolerance":  o.SlippageTolerance,
		"min_amount_out":      o.MinAmountOut,
		"status":              string(o.Status),
		"dex_type":            dexTypeArg(o.DexType),
		"executed_price":      o.ExecutedPrice,
		"tx_hash":             o.TxHash,
		"error_reason":        o.ErrorReason,
	}
	if _, err := pool.Exec(ctx, orderInsertSQL, args); err != nil {
		return fmt.Errorf("order store: insert order: %w", err)
	}
	return nil
}

// UpdateOrder persists a lifecycle transition. txHash, once set, is never
// overwritten (COALESCE against the existing column value).
func (s *OrderStore) UpdateOrder(ctx context.Context, o order.Order) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	args := pgx.NamedArgs{
		"id":             o.OrderID,
		"status":         string(o.Status),
		"dex_type":       dexTypeArg(o.DexType),
		"executed_price": o.ExecutedPrice,
		"tx_hash":        o.TxHash,
		"error_reason":   o.ErrorReason,
	}
	tag, err := pool.Exec(ctx, orderUpdateSQL, args)
	if err != nil {
		return fmt.Errorf("order store: update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("orderStore.updateOrder", fmt.Sprintf("order %s not found", o.OrderID))
	}
	return nil
}

// GetOrder reads a single order row by id.
func (s *OrderStore) GetOrder(ctx context.Context, orderID string) (order.Order, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return order.Order{}, err
	}
	row := pool.QueryRow(ctx, orderSelectBase+" WHERE id = $1", orderID)
	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return order.Order{}, apperr.NotFound("orderStore.getOrder", fmt.Sprintf("order %s not found", orderID))
		}
		return order.Order{}, fmt.Errorf("order store: get order: %w", err)
	}
	return o, nil
}

// ListOrders returns orders newest-first, paginated.
func (s *OrderStore) ListOrders(ctx context.Context, query orderstore.Query) ([]order.Order, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	limit := clampLimit(query.Limit, defaultOrderLimit, maxOrderLimit)
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	var builder strings.Builder
	builder.WriteString(orderSelectBase)
	builder.WriteString(" ORDER BY created_at DESC LIMIT $1 OFFSET $2")

	rows, err := pool.Query(ctx, builder.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("order store: list orders: %w", err)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("order store: scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order store: iterate orders: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (order.Order, error) {
	var (
		id                string
		tokenIn           string
		tokenOut          string
		amountIn          string
		slippageTolerance float64
		minAmountOut      sql.NullString
		status            string
		dexType           sql.NullString
		executedPrice     sql.NullString
		txHash            sql.NullString
		errorReason       sql.NullString
		createdAt         time.Time
		updatedAt         time.Time
	)
	if err := row.Scan(
		&id,
		&tokenIn,
		&tokenOut,
		&amountIn,
		&slippageTolerance,
		&minAmountOut,
		&status,
		&dexType,
		&executedPrice,
		&txHash,
		&errorReason,
		&createdAt,
		&updatedAt,
	); err != nil {
		return order.Order{}, err
	}

	o := order.Order{
		OrderID:           id,
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		SlippageTolerance: slippageTolerance,
		Status:            order.Status(status),
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}
	if minAmountOut.Valid {
		v := minAmountOut.String
		o.MinAmountOut = &v
	}
	if dexType.Valid {
		d := order.DexType(dexType.String)
		o.DexType = &d
	}
	if executedPrice.Valid {
		v := executedPrice.String
		o.ExecutedPrice = &v
	}
	if txHash.Valid {
		v := txHash.String
		o.TxHash = &v
	}
	if errorReason.Valid {
		v := errorReason.String
		o.ErrorReason = &v
	}
	return o, nil
}

func dexTypeArg(d *order.DexType) any {
	if d == nil {
		return nil
	}
	return string(*d)
}

func clampLimit(value, fallback, maximum int) int {
	if value <= 0 {
		return fallback
	}
	if value > maximum {
		return maximum
	}
	return value
}
