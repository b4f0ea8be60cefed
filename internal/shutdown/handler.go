// Package shutdown coordinates signal-driven teardown: a root context
// cancelled on SIGINT/SIGTERM, cleanup functions run in reverse
// registration order, and an in-flight work counter.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

type Handler struct {
	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	mu         sync.Mutex
	cleanupFns []func()
	done       bool
}

func New() *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the root context, cancelled when shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// AddCleanup registers a cleanup function. Cleanups run last-in
// first-out, so dependents registered later tear down before the
// things they depend on.
func (h *Handler) AddCleanup(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupFns = append(h.cleanupFns, fn)
}

// Listen starts watching for interrupt and termination signals. A
// second signal while cleanup is running exits immediately.
func (h *Handler) Listen() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		go func() {
			<-sigChan
			os.Exit(1)
		}()
		h.Shutdown()
	}()
}

// Shutdown cancels the root context and runs cleanups once; later
// calls are no-ops.
func (h *Handler) Shutdown() {
	h.cancel()

	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	fns := h.cleanupFns
	h.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Wait blocks until all tracked work has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Add increments the work counter.
func (h *Handler) Add(delta int) {
	h.wg.Add(delta)
}

// Done decrements the work counter.
func (h *Handler) Done() {
	h.wg.Done()
}
