package pclock

import (
	"testing"
	"time"
)

func TestProcessTimeAdvances(t *testing.T) {
	c := New()
	defer c.Close()

	t0 := c.ProcessTimeUs()
	time.Sleep(5 * time.Millisecond)
	t1 := c.ProcessTimeUs()

	if t1 <= t0 {
		t.Fatalf("expected process time to advance, got %d then %d", t0, t1)
	}
}

func TestProcessIDIsNonZeroAndStable(t *testing.T) {
	c := New()
	defer c.Close()

	id := c.ProcessID()
	if id == 0 {
		t.Fatal("expected nonzero process id")
	}
	if c.ProcessID() != id {
		t.Fatal("process id should be stable across reads")
	}
}

func TestForceProcessID(t *testing.T) {
	c := New()
	defer c.Close()

	c.ForceProcessID(42)
	if got := c.ProcessID(); got != 42 {
		t.Fatalf("expected forced process id 42, got %d", got)
	}
}

func TestSafeMinus(t *testing.T) {
	if got := SafeMinus(10, 3); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := SafeMinus(3, 10); got != -7 {
		t.Fatalf("expected -7, got %d", got)
	}
}

func TestClippedMinus(t *testing.T) {
	if got := ClippedMinus(10, 3); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := ClippedMinus(3, 10); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
