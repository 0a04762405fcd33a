// Package slot implements Item[T]: a triple buffered "latest value"
// mailbox for exactly one producer and one consumer, whose writer never
// waits for a value to be read.
//
// Grounded on original_source/concurrency/single_item.h. The source keeps
// three slots and a 6-state transition table walked with a lock-free CAS
// loop so that a writer never blocks behind a reader. This port keeps the
// same three-slot/six-state structure but guards the state with a mutex
// and a sync.Cond instead of an atomic CAS loop: corebus has no hot path
// where a blocked writer is unacceptable, and the mutex form is far easier
// to read correctly than reproducing the CAS retry loop in Go.
package slot

import "sync"

// slotIdxs names which of the three slots is currently playing the role
// of "read head" and "write head" for a given state index; the slot not
// named is the floating handoff slot.
type slotIdxs struct {
	read  uint8
	write uint8
}

var transitionTable = [6]slotIdxs{
	{1, 2}, // 0: 0_R_W
	{0, 2}, // 1: R_0_W
	{0, 1}, // 2: R_W_0
	{2, 1}, // 3: 0_W_R
	{2, 0}, // 4: W_0_R
	{1, 0}, // 5: W_R_0
}

// Item is a single-value mailbox: Write always overwrites whatever the
// reader hasn't yet consumed, and Read always returns the most recently
// written value. The zero value is not usable; construct with New.
type Item[T any] struct {
	mu         sync.Mutex
	cond       *sync.Cond
	slots      [3]T
	haveUnread [3]bool
	state      uint8
	stopped    bool
}

// New constructs a ready-to-use Item.
func New[T any]() *Item[T] {
	it := &Item[T]{}
	it.cond = sync.NewCond(&it.mu)
	return it
}

func (it *Item[T]) advance(isWrite bool) {
	var flag uint8
	if isWrite {
		flag = 1
	}
	if it.state%2 == flag {
		it.state = (it.state + 1) % 6
	} else {
		it.state = (it.state + 5) % 6
	}
}

func (it *Item[T]) readSlot() uint8  { return transitionTable[it.state].read }
func (it *Item[T]) writeSlot() uint8 { return transitionTable[it.state].write }

// Write stores item in the write slot and publishes it to the reader.
func (it *Item[T]) Write(item T) {
	it.mu.Lock()
	defer it.mu.Unlock()
	w := it.writeSlot()
	it.slots[w] = item
	it.haveUnread[w] = true
	it.advance(true)
	it.cond.Signal()
}

// Read retrieves the most recently written, not-yet-read value. If none
// is available and blocking is false, it returns (zero, false)
// immediately. If blocking is true, it waits until a value is written or
// Stop is called.
func (it *Item[T]) Read(blocking bool) (T, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()

	for {
		if it.stopped {
			var zero T
			return zero, false
		}
		it.advance(false)
		r := it.readSlot()
		if it.haveUnread[r] {
			v := it.slots[r]
			it.haveUnread[r] = false
			return v, true
		}
		if !blocking {
			var zero T
			return zero, false
		}
		it.cond.Wait()
	}
}

// Stop wakes any blocked reader; subsequent reads return (zero, false).
func (it *Item[T]) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.stopped = true
	it.cond.Broadcast()
}
