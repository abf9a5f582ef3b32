package push

import (
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/swapexec/internal/domain/order"
	"github.com/coachpo/swapexec/internal/observability"
)

// ChannelHandle is a single subscriber connection. Send must be safe to call
// from multiple goroutines serially serialized by the registry (the
// registry never calls Send concurrently for the same handle).
type ChannelHandle interface {
	Send(frame Frame) error
}

// Registry is the PushRegistry: it maps orderId to the set of live
// subscriber channels and fans frames out to them in parallel, with
// per-channel failure isolation.
type Registry struct {
	mu      sync.RWMutex
	byOrder map[string]map[ChannelHandle]struct{}
	orderOf map[ChannelHandle]string

	emitGuard sync.Mutex
	emitLocks map[string]*sync.Mutex
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byOrder:   make(map[string]map[ChannelHandle]struct{}),
		orderOf:   make(map[ChannelHandle]string),
		emitLocks: make(map[string]*sync.Mutex),
	}
}

// Register adds handle to orderId's subscriber set. Multiple concurrent
// registrations for the same orderId are allowed.
func (r *Registry) Register(orderID string, handle ChannelHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byOrder[orderID]
	if !ok {
		set = make(map[ChannelHandle]struct{})
		r.byOrder[orderID] = set
	}
	set[handle] = struct{}{}
	r.orderOf[handle] = orderID
}

// Unregister removes handle from both maps, dropping the orderId's set if
// it becomes empty. Safe to call more than once for the same handle.
func (r *Registry) Unregister(handle ChannelHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	orderID, ok := r.orderOf[handle]
	if !ok {
		return
	}
	delete(r.orderOf, handle)
	if set, ok := r.byOrder[orderID]; ok {
		delete(set, handle)
		if len(set) == 0 {
			delete(r.byOrder, orderID)
		}
	}
}

// SubscriberCount reports how many live channels are registered for
// orderId.
func (r *Registry) SubscriberCount(orderID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byOrder[orderID])
}

// Emit serializes event to a StatusUpdate frame and fans it out to every
// subscriber of orderId, matching the Emitter contract delivery workers
// call through. It returns the number of successful deliveries, which may
// be zero; zero is not an error (subscribers may have disconnected).
func (r *Registry) Emit(orderID string, event order.StatusEvent) int {
	return r.emitFrame(orderID, StatusUpdateFrame(event))
}

// EmitFrame fans an arbitrary frame (connected, pong, status update) out to
// every subscriber of orderId.
func (r *Registry) EmitFrame(orderID string, frame Frame) int {
	return r.emitFrame(orderID, frame)
}

func (r *Registry) emitFrame(orderID string, frame Frame) int {
	lock := r.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	set := r.byOrder[orderID]
	handles := make([]ChannelHandle, 0, len(set))
	for h := range set {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	if len(handles) == 0 {
		return 0
	}

	var delivered atomic.Int64
	p := pool.New().WithMaxGoroutines(len(handles))
	for _, h := range handles {
		handle := h
		p.Go(func() {
			if err := handle.Send(frame); err != nil {
				r.Unregister(handle)
				observability.Log().Info("push: unregistering channel after send failure",
					observability.Field{Key: "order_id", Value: orderID},
					observability.Field{Key: "error", Value: err.Error()},
				)
				return
			}
			delivered.Add(1)
		})
	}
	p.Wait()
	return int(delivered.Load())
}

func (r *Registry) lockFor(orderID string) *sync.Mutex {
	r.emitGuard.Lock()
	defer r.emitGuard.Unlock()
	lock, ok := r.emitLocks[orderID]
	if !ok {
		lock = &sync.Mutex{}
		r.emitLocks[orderID] = lock
	}
	return lock
}
