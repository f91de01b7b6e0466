// Package dispatch implements the two-stage receive/dispatch pipeline of
// SPEC_FULL.md §4.9: a receive goroutine pulls one already-decrypted typed
// packet at a time off the transport and enqueues it; a separate dispatch
// goroutine drains the queue and invokes the registered handler. The two
// stages are decoupled so a slow handler cannot stall the receive goroutine
// and cause the peer's send window to back up.
//
// Grounded structurally on pkg/nest/queue.go's CommandQueue
// (submit-channel feeding a single worker goroutine), simplified from a
// priority heap to a plain buffered channel since §4.9 requires strict
// wire-order dispatch rather than priority reordering.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

// Handler processes one decoded packet. Handlers must not block
// indefinitely; work that takes real time belongs on a component's own
// queue, posted from inside the handler.
type Handler func(kind protocol.Kind, payload []byte)

// packet is one typed message queued between the receive and dispatch
// stages.
type packet struct {
	kind    protocol.Kind
	payload []byte
}

// Dispatcher owns the receive goroutine, the bounded queue, and the
// dispatch goroutine for one connection.
type Dispatcher struct {
	t      transport.Transport
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[protocol.Kind]Handler
	fallback Handler

	queue chan packet

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	disconnected sync.Once
	onDisconnect func(error)
}

// New constructs a Dispatcher bound to t. queueDepth bounds the number of
// packets that may be buffered between receive and dispatch; a value <= 0
// defaults to 256.
func New(t transport.Transport, queueDepth int, onDisconnect func(error), logger *slog.Logger) *Dispatcher {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		t:            t,
		logger:       logger,
		handlers:     make(map[protocol.Kind]Handler),
		queue:        make(chan packet, queueDepth),
		ctx:          ctx,
		cancel:       cancel,
		onDisconnect: onDisconnect,
	}
}

// Handle registers the handler invoked for packets of the given kind. Must
// be called before Start; registering after Start races with dispatch.
func (d *Dispatcher) Handle(kind protocol.Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// HandleUnmatched registers the handler invoked for any kind with no
// specific registration (e.g. to log and drop).
func (d *Dispatcher) HandleUnmatched(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = h
}

// Start launches the receive and dispatch goroutines.
func (d *Dispatcher) Start() {
	d.wg.Add(2)
	go d.receiveLoop()
	go d.dispatchLoop()
}

// Stop cancels both goroutines and waits for them to exit. It does not
// close the underlying transport; the caller owns that lifecycle.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) receiveLoop() {
	defer d.wg.Done()
	for {
		kind, payload, err := d.t.Receive()
		if err != nil {
			d.logger.Debug("dispatcher receive ended", "error", err)
			d.notifyDisconnect(err)
			return
		}

		select {
		case d.queue <- packet{kind: kind, payload: payload}:
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) dispatchLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case p := <-d.queue:
			d.invoke(p.kind, p.payload)
		}
	}
}

func (d *Dispatcher) invoke(kind protocol.Kind, payload []byte) {
	d.mu.RLock()
	h, ok := d.handlers[kind]
	fallback := d.fallback
	d.mu.RUnlock()

	if !ok {
		if fallback != nil {
			fallback(kind, payload)
		} else {
			d.logger.Debug("no handler registered for packet kind", "kind", kind)
		}
		return
	}
	h(kind, payload)
}

func (d *Dispatcher) notifyDisconnect(err error) {
	d.disconnected.Do(func() {
		if d.onDisconnect != nil {
			d.onDisconnect(err)
		}
	})
}
