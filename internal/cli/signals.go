package cli

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ErrInterrupted is returned when a run was stopped by SIGINT or SIGTERM.
var ErrInterrupted = errors.New("interrupted")

// finalizeGrace bounds how long Stop waits for running finalizers.
const finalizeGrace = 100 * time.Millisecond

// SignalHandler runs finalizers when the process is interrupted, so
// temporary build artifacts do not outlive an aborted run.
type SignalHandler struct {
	signals     chan os.Signal
	shutdown    chan struct{} // closed after finalizers ran and the run was cancelled
	stopCh      chan struct{}
	done        chan struct{} // closed when the listener exits
	stopOnce    sync.Once
	interrupted atomic.Bool
	cancel      context.CancelFunc

	mu         sync.Mutex
	finalizers []func()
}

// NewSignalHandler creates a signal handler that cancels the run via cancel.
func NewSignalHandler(cancel context.CancelFunc) *SignalHandler {
	return &SignalHandler{
		signals:  make(chan os.Signal, 1),
		shutdown: make(chan struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
}

// Listen starts watching for SIGINT and SIGTERM. With notify false only
// values sent on the handler's own channel are seen, which keeps tests
// away from process-wide signal state.
func (h *SignalHandler) Listen(notify bool) {
	if notify {
		signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	}
	go h.loop()
}

func (h *SignalHandler) loop() {
	defer close(h.done)

	select {
	case sig := <-h.signals:
		h.interrupted.Store(true)
		log.Printf("received %v, cleaning up", sig)

		// Artifacts go first so they are gone by the time the runtime returns.
		h.finalize()
		if h.cancel != nil {
			h.cancel()
		}
		close(h.shutdown)
	case <-h.stopCh:
	}
}

func (h *SignalHandler) finalize() {
	h.mu.Lock()
	fns := append([]func(){}, h.finalizers...)
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// OnShutdown registers a finalizer to run on interrupt, in registration order.
func (h *SignalHandler) OnShutdown(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finalizers = append(h.finalizers, fn)
}

// Interrupted reports whether a signal has been received.
func (h *SignalHandler) Interrupted() bool {
	return h.interrupted.Load()
}

// Stop detaches the handler from OS signals and ends the listener.
func (h *SignalHandler) Stop() {
	signal.Stop(h.signals)
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	select {
	case <-h.done:
	case <-time.After(finalizeGrace):
	}
}
