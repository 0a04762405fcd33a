// Package worker provides the halt-channel goroutine lifecycle used by
// every long-running component in this module: publisher/subscriber/
// recorder threads, the time-sync server, and the playback thread.
package worker

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Worker is meant to be embedded in any type that owns one or more
// goroutines. Call Go to launch a goroutine tied to the Worker's halt
// channel, and Halt to request and wait for shutdown. Halt is idempotent
// and may be called from any goroutine other than one launched by Go:
// Halt waits for every such goroutine to return, so a call from inside
// one never returns.
//
// Goroutines are joined through an errgroup.Group rather than a bare
// sync.WaitGroup, so the first non-nil error any of them returns surfaces
// from Halt instead of being silently dropped.
type Worker struct {
	haltOnce sync.Once
	haltedCh chan struct{}
	initOnce sync.Once
	group    errgroup.Group
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltedCh = make(chan struct{})
	})
}

// Go launches fn in a new goroutine. fn should select on HaltCh() to learn
// when it should return, and should return nil on a clean shutdown.
func (w *Worker) Go(fn func() error) {
	w.init()
	w.group.Go(fn)
}

// Halt closes the halt channel (waking anything selecting on HaltCh),
// blocks until every goroutine started with Go has returned, and reports
// the first non-nil error any of them returned. Calling Halt more than
// once is safe; only the first call closes the channel, but every call
// waits for and returns the same join result.
func (w *Worker) Halt() error {
	w.init()
	w.haltOnce.Do(func() {
		close(w.haltedCh)
	})
	return w.group.Wait()
}

// HaltCh returns the channel that is closed when Halt is first called.
func (w *Worker) HaltCh() <-chan struct{} {
	w.init()
	return w.haltedCh
}

// IsHalted reports whether Halt has been called, without blocking.
func (w *Worker) IsHalted() bool {
	w.init()
	select {
	case <-w.haltedCh:
		return true
	default:
		return false
	}
}
