package transport

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestInprocBindConnectSendRecv(t *testing.T) {
	name := fmt.Sprintf("inproc://test-%d", time.Now().UnixNano())

	pub := New()
	if err := pub.Bind(name); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer pub.Close()

	sub := New()
	if err := sub.Connect(name); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sub.Close()

	time.Sleep(5 * time.Millisecond)
	if err := pub.Send([]byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}

	blob, err := sub.Recv(time.Second)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(blob) != "hello" {
		t.Fatalf("expected hello, got %q", blob)
	}
}

func TestInprocRecvTimesOutWhenEmpty(t *testing.T) {
	name := fmt.Sprintf("inproc://test-empty-%d", time.Now().UnixNano())
	sub := New()
	if err := sub.Connect(name); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sub.Close()

	if _, err := sub.Recv(20 * time.Millisecond); err != ErrRecvTimeout {
		t.Fatalf("expected ErrRecvTimeout, got %v", err)
	}
}

func TestSendWithoutBindFails(t *testing.T) {
	e := New()
	if err := e.Send([]byte("x")); err == nil {
		t.Fatal("expected error sending on unbound endpoint")
	}
}

func TestIPCBindConnectSendRecv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.sock")
	addr := "ipc://" + path

	pub := New()
	if err := pub.Bind(addr); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer pub.Close()

	sub := New()
	if err := sub.Connect(addr); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sub.Close()

	time.Sleep(20 * time.Millisecond)
	if err := pub.Send([]byte("over-ipc")); err != nil {
		t.Fatalf("send: %v", err)
	}

	blob, err := sub.Recv(time.Second)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(blob) != "over-ipc" {
		t.Fatalf("expected over-ipc, got %q", blob)
	}
}

func TestUDPBindConnectSendRecv(t *testing.T) {
	pub := New()
	if err := pub.Bind("udp://127.0.0.1:0"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer pub.Close()

	boundAddr := pub.bound.(*udpPeer).conn.LocalAddr().String()

	sub := New()
	if err := sub.Connect("udp://" + boundAddr); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sub.Close()

	time.Sleep(20 * time.Millisecond)
	if err := pub.Send([]byte("over-udp")); err != nil {
		t.Fatalf("send: %v", err)
	}

	blob, err := sub.Recv(time.Second)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(blob) != "over-udp" {
		t.Fatalf("expected over-udp, got %q", blob)
	}
}
