// Package http implements SubmissionAPI: the thin HTTP boundary that
// accepts orders, reads them back, and lists them. It never mutates an
// order row itself — creation delegates to OrderStore directly and every
// subsequent transition belongs to OrderLifecycle.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/domain/orderstore"
	"github.com/coachpo/swapexec/internal/jsonutil"
	"github.com/coachpo/swapexec/internal/money"
	"github.com/coachpo/swapexec/internal/observability"
	"github.com/coachpo/swapexec/internal/resources"
	"github.com/coachpo/swapexec/pkg/apperr"
)

const (
	ordersPath        = "/api/orders"
	ordersExecutePath = "/api/orders/execute"
	orderDetailPrefix = "/api/orders/"
	healthPath        = "/health"

	maxJSONBodyBytes int64 = 1 << 20

	defaultListLimit  = 100
	visibilityRetries = 3
)

// visibilityBackoff matches §4.7's documented re-fetch schedule: the API
// retries at 200ms, 500ms, then 1000ms before giving up on returning the
// freshly created row inline.
var visibilityBackoff = []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, 1000 * time.Millisecond}

// ResourceAllocator is the narrow view of PerOrderResourceManager the API
// needs: allocate the per-order queue/worker bundle before enqueueing
// execution.
type ResourceAllocator interface {
	Allocate(orderID string) *resources.Scope
}

// ExecutionEnqueuer is the narrow view of the execution queue the API
// needs to hand a freshly created order off for processing.
type ExecutionEnqueuer interface {
	Enqueue(ctx context.Context, orderID string) error
}

// Server implements SubmissionAPI's HTTP surface: createOrder, getOrder,
// listOrders, and the health check. Subscribing to the push channel is
// handled by the sibling internal/api/stream package.
type Server struct {
	store     orderstore.Store
	resources ResourceAllocator
	exec      ExecutionEnqueuer
	clock     func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// New constructs a Server.
func New(store orderstore.Store, resources ResourceAllocator, exec ExecutionEnqueuer) *Server {
	return &Server{
		store:     store,
		resources: resources,
		exec:      exec,
		clock:     func() time.Time { return time.Now().UTC() },
		sleep:     sleepCtx,
	}
}

// Handler returns the http.Handler serving every SubmissionAPI route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, s.handleHealth)
	mux.HandleFunc(ordersExecutePath, s.handleCreateOrder)
	mux.HandleFunc(ordersPath, s.handleListOrders)
	mux.HandleFunc(orderDetailPrefix, s.handleGetOrder)
	return withCORS(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.clock().Format(time.RFC3339Nano),
	})
}

type createOrderRequest struct {
	TokenIn           string  `json:"tokenIn"`
	TokenOut          string  `json:"tokenOut"`
	AmountIn          string  `json:"amountIn"`
	SlippageTolerance float64 `json:"slippageTolerance"`
	MinAmountOut      *string `json:"minAmountOut,omitempty"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeValidationError(w, []string{"failed to read request body: " + err.Error()})
		return
	}

	var req createOrderRequest
	if err := jsonutil.Decode(body, &req); err != nil {
		writeValidationError(w, []string{"malformed request body: " + err.Error()})
		return
	}

	details := validateCreateOrder(req)
	if len(details) > 0 {
		writeValidationError(w, details)
		return
	}

	now := s.clock()
	o := order.Order{
		OrderID:           uuid.NewString(),
		TokenIn:           strings.TrimSpace(req.TokenIn),
		TokenOut:          strings.TrimSpace(req.TokenOut),
		AmountIn:          strings.TrimSpace(req.AmountIn),
		SlippageTolerance: req.SlippageTolerance,
		MinAmountOut:      req.MinAmountOut,
		Status:            order.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	ctx := r.Context()
	if err := s.store.CreateOrder(ctx, o); err != nil {
		observability.Log().Error("http: create order failed",
			observability.Field{Key: "order_id", Value: o.OrderID},
			observability.Field{Key: "error", Value: err.Error()},
		)
		writeInternalError(w, "failed to persist order", err)
		return
	}

	if s.resources != nil {
		s.resources.Allocate(o.OrderID)
	}
	if s.exec != nil {
		if err := s.exec.Enqueue(ctx, o.OrderID); err != nil {
			observability.Log().Error("http: enqueue execution failed",
				observability.Field{Key: "order_id", Value: o.OrderID},
				observability.Field{Key: "error", Value: err.Error()},
			)
			writeInternalError(w, "failed to enqueue order execution", err)
			return
		}
	}

	visible, ok := s.awaitVisibility(ctx, o.OrderID)
	if !ok {
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"orderId": o.OrderID,
			"status":  string(order.StatusPending),
			"message": "order accepted; row not yet visible, re-fetch shortly",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"orderId": visible.OrderID,
		"status":  string(visible.Status),
		"order":   renderOrder(visible),
		"message": "order accepted",
	})
}

// awaitVisibility re-reads orderID with the §4.7 backoff schedule, in case
// the store has read-after-write lag. A single-node in-process store never
// needs more than the first attempt, but the schedule is carried for
// fidelity to the documented contract.
func (s *Server) awaitVisibility(ctx context.Context, orderID string) (order.Order, bool) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err == nil {
		return o, true
	}
	for _, delay := range visibilityBackoff[:min(visibilityRetries, len(visibilityBackoff))] {
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return order.Order{}, false
		}
		o, err = s.store.GetOrder(ctx, orderID)
		if err == nil {
			return o, true
		}
	}
	return order.Order{}, false
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	orderID := strings.Trim(strings.TrimPrefix(r.URL.Path, orderDetailPrefix), "/")
	if orderID == "" || strings.Contains(orderID, "/") {
		writeError(w, http.StatusNotFound, "order not found", "")
		return
	}

	o, err := s.store.GetOrder(r.Context(), orderID)
	if err != nil {
		var appErr *apperr.E
		if errors.As(err, &appErr) && appErr.Code == apperr.CodeNotFound {
			writeError(w, http.StatusNotFound, "order not found", "")
			return
		}
		writeInternalError(w, "failed to load order", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   renderOrder(o),
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)
	offset := queryInt(r, "offset", 0)

	orders, err := s.store.ListOrders(r.Context(), orderstore.Query{Limit: limit, Offset: offset})
	if err != nil {
		writeInternalError(w, "failed to list orders", err)
		return
	}

	rendered := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		rendered = append(rendered, renderOrder(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  rendered,
		"count":   len(rendered),
	})
}

func validateCreateOrder(req createOrderRequest) []string {
	var details []string
	if strings.TrimSpace(req.TokenIn) == "" {
		details = append(details, "tokenIn is required")
	}
	if strings.TrimSpace(req.TokenOut) == "" {
		details = append(details, "tokenOut is required")
	}
	if _, err := money.ParsePositive(req.AmountIn); err != nil {
		details = append(details, "amountIn must be a positive decimal")
	}
	if req.SlippageTolerance < 0 || req.SlippageTolerance > 100 {
		details = append(details, "slippageTolerance must be within [0, 100]")
	}
	if req.MinAmountOut != nil {
		if _, _, err := money.ParseNonNegative(*req.MinAmountOut); err != nil {
			details = append(details, "minAmountOut must be a non-negative decimal")
		}
	}
	sort.Strings(details)
	return details
}

func renderOrder(o order.Order) map[string]any {
	out := map[string]any{
		"orderId":           o.OrderID,
		"tokenIn":           o.TokenIn,
		"tokenOut":          o.TokenOut,
		"amountIn":          o.AmountIn,
		"slippageTolerance": o.SlippageTolerance,
		"status":            string(o.Status),
		"createdAt":         o.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":         o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if o.MinAmountOut != nil {
		out["minAmountOut"] = *o.MinAmountOut
	}
	if o.DexType != nil {
		out["dexType"] = string(*o.DexType)
	}
	if o.ExecutedPrice != nil {
		out["executedPrice"] = *o.ExecutedPrice
	}
	if o.TxHash != nil {
		out["txHash"] = *o.TxHash
	}
	if o.ErrorReason != nil {
		out["errorReason"] = *o.ErrorReason
	}
	return out
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonutil.Write(w, payload)
}

func writeValidationError(w http.ResponseWriter, details []string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"success": false,
		"error":   "Validation error",
		"details": details,
	})
}

func writeError(w http.ResponseWriter, status int, errMsg, message string) {
	body := map[string]any{"success": false, "error": errMsg}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, status, body)
}

func writeInternalError(w http.ResponseWriter, message string, err error) {
	writeError(w, http.StatusInternalServerError, "internal error", message+": "+err.Error())
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
