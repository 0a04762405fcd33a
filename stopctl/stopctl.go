// Package stopctl implements the StopController component: a process-wide
// cooperative shutdown flag with registered callbacks, grounded on
// original_source/app/stop_all.cpp/h.
package stopctl

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// Controller is a thread-safe, process-wide stop flag plus a registry of
// callbacks to run once when StopAll is called. The zero value is ready
// to use.
type Controller struct {
	stopped atomic.Bool

	mu        sync.Mutex
	callbacks []func()
}

// StopAll sets the stop flag and invokes every registered callback, in
// registration order, from the calling goroutine. It is safe to call more
// than once; only the first call invokes callbacks.
func (c *Controller) StopAll() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	callbacks := c.callbacks
	c.callbacks = nil
	c.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// ShouldStopAll reports whether StopAll has been called.
func (c *Controller) ShouldStopAll() bool {
	return c.stopped.Load()
}

// OnStop registers a callback to run when StopAll is called. If StopAll
// has already run, the callback is invoked immediately, from the calling
// goroutine.
func (c *Controller) OnStop(callback func()) {
	c.mu.Lock()
	if c.stopped.Load() {
		c.mu.Unlock()
		callback()
		return
	}
	c.callbacks = append(c.callbacks, callback)
	c.mu.Unlock()
}

// InstallSignalHandler arranges for StopAll to be called on SIGINT or
// SIGTERM. A second signal forces an abrupt exit, matching spec.md §4.4's
// "a second signal forces abrupt termination".
func (c *Controller) InstallSignalHandler() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		c.StopAll()
		<-sigCh
		os.Exit(1)
	}()
}
