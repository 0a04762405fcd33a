package slot

import (
	"testing"
	"time"
)

func TestWriteThenRead(t *testing.T) {
	it := New[int]()
	it.Write(42)
	v, ok := it.Read(false)
	if !ok || v != 42 {
		t.Fatalf("expected 42, got %d (ok=%v)", v, ok)
	}
}

func TestReadEmptyNonBlocking(t *testing.T) {
	it := New[int]()
	if _, ok := it.Read(false); ok {
		t.Fatal("expected no value before any write")
	}
}

func TestWriteOverwritesUnread(t *testing.T) {
	it := New[string]()
	it.Write("stale")
	it.Write("fresh")

	v, ok := it.Read(false)
	if !ok || v != "fresh" {
		t.Fatalf("expected latest write to win, got %q (ok=%v)", v, ok)
	}
	if _, ok := it.Read(false); ok {
		t.Fatal("expected only one value to be readable after overwrite")
	}
}

func TestBlockingReadWakesOnWrite(t *testing.T) {
	it := New[int]()
	done := make(chan int, 1)
	go func() {
		v, ok := it.Read(true)
		if !ok {
			done <- -1
			return
		}
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	it.Write(9)

	select {
	case v := <-done:
		if v != 9 {
			t.Fatalf("expected 9, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("blocking read did not wake up within timeout")
	}
}

func TestStopUnblocksReader(t *testing.T) {
	it := New[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := it.Read(true)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	it.Stop()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected stopped read to return false")
		}
	case <-time.After(time.Second):
		t.Fatal("stop did not unblock reader within timeout")
	}
}

func TestRepeatedWriteReadCycles(t *testing.T) {
	it := New[int]()
	for i := 0; i < 20; i++ {
		it.Write(i)
		v, ok := it.Read(false)
		if !ok || v != i {
			t.Fatalf("cycle %d: expected %d, got %d (ok=%v)", i, i, v, ok)
		}
	}
}
