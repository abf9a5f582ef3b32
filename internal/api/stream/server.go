// Package stream implements the push-channel endpoint that streams status
// updates for a single order over a WebSocket connection. Connection
// acceptance follows the server-side coder/websocket pattern exercised by
// the teacher's websocket migration tests; the domain's own adapters only
// ever dial outbound, so this package is the first server-side Accept
// caller in the module.
package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/domain/orderstore"
	"github.com/coachpo/swapexec/internal/jsonutil"
	"github.com/coachpo/swapexec/internal/observability"
	"github.com/coachpo/swapexec/internal/push"
	"github.com/coachpo/swapexec/pkg/apperr"
)

const (
	orderStreamPrefix = "/api/orders/"
	orderStreamSuffix = "/stream"

	// snapshotDelay defers the initial row snapshot slightly past the
	// connected frame so a subscriber that connects in the same instant
	// an order is created observes two distinct frames rather than a
	// race between "connected" and "status_update". It is a UX nicety,
	// not load-bearing for correctness.
	snapshotDelay = 300 * time.Millisecond

	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 20 * time.Second
)

// Registrar is the narrow view of push.Registry the stream handler needs.
type Registrar interface {
	Register(orderID string, handle push.ChannelHandle)
	Unregister(handle push.ChannelHandle)
	EmitFrame(orderID string, frame push.Frame) int
}

// Server implements the GET /api/orders/{orderId}/stream push channel.
type Server struct {
	registry Registrar
	store    orderstore.Store
}

// New constructs a Server.
func New(registry Registrar, store orderstore.Store) *Server {
	return &Server{registry: registry, store: store}
}

// Handler returns the http.Handler serving the push-channel route.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleStream)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := s.store.GetOrder(r.Context(), orderID); err != nil {
		var appErr *apperr.E
		if errors.As(err, &appErr) && appErr.Code == apperr.CodeNotFound {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "failed to load order", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		observability.Log().Error("stream: accept failed",
			observability.Field{Key: "order_id", Value: orderID},
			observability.Field{Key: "error", Value: err.Error()},
		)
		return
	}

	conn.SetReadLimit(4096)

	session := newSession(orderID, conn, s.registry, s.store)
	session.run(r.Context())
}

// isPingFrame reports whether data is a client-sent {"type":"ping"} frame
// per §6. A bare "ping" string is also accepted for leniency with simple
// clients that skip the envelope.
func isPingFrame(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == `"ping"` || trimmed == "ping" {
		return true
	}
	var msg struct {
		Type string `json:"type"`
	}
	if err := jsonutil.Decode(data, &msg); err != nil {
		return false
	}
	return msg.Type == "ping"
}

func parseOrderID(path string) (string, bool) {
	if !strings.HasPrefix(path, orderStreamPrefix) || !strings.HasSuffix(path, orderStreamSuffix) {
		return "", false
	}
	orderID := strings.TrimSuffix(strings.TrimPrefix(path, orderStreamPrefix), orderStreamSuffix)
	orderID = strings.Trim(orderID, "/")
	if orderID == "" || strings.Contains(orderID, "/") {
		return "", false
	}
	return orderID, true
}

// session owns one accepted connection's lifetime: registration, the
// connected + snapshot frames, inbound ping handling, and teardown.
type session struct {
	orderID  string
	conn     *websocket.Conn
	registry Registrar
	store    orderstore.Store
	sendMu   chanMutex
}

type chanMutex chan struct{}

func newChanMutex() chanMutex {
	m := make(chanMutex, 1)
	m <- struct{}{}
	return m
}

func (m chanMutex) Lock()   { <-m }
func (m chanMutex) Unlock() { m <- struct{}{} }

func newSession(orderID string, conn *websocket.Conn, registry Registrar, store orderstore.Store) *session {
	return &session{orderID: orderID, conn: conn, registry: registry, store: store, sendMu: newChanMutex()}
}

// Send implements push.ChannelHandle. The registry never calls Send
// concurrently for the same handle, but inbound pong replies are also
// written from this type's own read loop, so writes are still serialized.
func (s *session) Send(frame push.Frame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	data, err := frame.MarshalJSON()
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *session) run(ctx context.Context) {
	defer s.conn.CloseNow()

	s.registry.Register(s.orderID, s)
	defer s.registry.Unregister(s)

	now := time.Now().UTC()
	if err := s.Send(push.ConnectedFrame(s.orderID, now)); err != nil {
		return
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.sendInitialSnapshot(sessionCtx)
	go s.pingLoop(sessionCtx)

	s.readLoop(sessionCtx)
}

func (s *session) sendInitialSnapshot(ctx context.Context) {
	timer := time.NewTimer(snapshotDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	o, err := s.store.GetOrder(ctx, s.orderID)
	if err != nil {
		return
	}
	_ = s.Send(push.StatusUpdateFrame(order.FromOrder(o)))
}

func (s *session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	for {
		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		typ, data, err := s.conn.Read(readCtx)
		cancel()
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if isPingFrame(data) {
			if err := s.Send(push.PongFrame(time.Now().UTC())); err != nil {
				return
			}
		}
	}
}
