package stopctl

import (
	"sync/atomic"
	"testing"
)

func TestStopAllInvokesCallbacksInOrder(t *testing.T) {
	var c Controller
	var order []int
	c.OnStop(func() { order = append(order, 1) })
	c.OnStop(func() { order = append(order, 2) })
	c.OnStop(func() { order = append(order, 3) })

	c.StopAll()

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("callbacks ran out of order: %v", order)
	}
}

func TestStopAllIsIdempotent(t *testing.T) {
	var c Controller
	var calls atomic.Int32
	c.OnStop(func() { calls.Add(1) })

	c.StopAll()
	c.StopAll()
	c.StopAll()

	if calls.Load() != 1 {
		t.Fatalf("expected callback to run once, ran %d times", calls.Load())
	}
}

func TestOnStopAfterStopAllRunsImmediately(t *testing.T) {
	var c Controller
	c.StopAll()

	ran := false
	c.OnStop(func() { ran = true })

	if !ran {
		t.Fatal("expected late-registered callback to run immediately")
	}
}

func TestShouldStopAll(t *testing.T) {
	var c Controller
	if c.ShouldStopAll() {
		t.Fatal("expected false before StopAll")
	}
	c.StopAll()
	if !c.ShouldStopAll() {
		t.Fatal("expected true after StopAll")
	}
}
