package bus

import (
	"fmt"
	"testing"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/axbycc/corebus/pclock"
	"github.com/axbycc/corebus/ring"
	"github.com/axbycc/corebus/slot"
	"github.com/axbycc/corebus/wire"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	clock := pclock.New()
	t.Cleanup(clock.Close)
	logger := logging.MustGetLogger(fmt.Sprintf("bus-test-%d", time.Now().UnixNano()))
	logger.SetBackend(logging.NewLogBackend(testWriter{t}, "", 0))

	b := New(clock, logger)
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { b.Cleanup() })
	return b
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := newTestBus(t)

	buf := ring.New[wire.Message](8)
	if err := b.Subscribe("topic_a", buf); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	time.Sleep(30 * time.Millisecond) // let subscribe/connect requests land

	if err := b.PublishFrames("topic_a", 0, [][]byte{[]byte("hello")}, 0); err != nil {
		t.Fatalf("PublishFrames: %v", err)
	}

	msg, ok := buf.Read(true)
	if !ok {
		t.Fatal("expected a delivered message")
	}
	if msg.Topic != "topic_a" {
		t.Fatalf("expected topic_a, got %q", msg.Topic)
	}
	if len(msg.Frames) != 1 || string(msg.Frames[0]) != "hello" {
		t.Fatalf("unexpected frames: %v", msg.Frames)
	}
	if msg.Header.SenderSequenceID != 0 {
		t.Fatalf("expected first sequence id 0, got %d", msg.Header.SenderSequenceID)
	}
	if msg.Header.SenderProcessTimeUs == 0 {
		t.Fatal("expected nonzero process time")
	}
}

func TestPrefixRoutingAndSequenceIncrement(t *testing.T) {
	b := newTestBus(t)

	buf := ring.New[wire.Message](8)
	if err := b.Subscribe("", buf); err != nil { // empty prefix matches everything
		t.Fatalf("Subscribe: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	topics := []string{"x", "y/1", "y/2"}
	payloads := []string{"A", "B", "C"}
	for i, topic := range topics {
		if err := b.PublishFrames(topic, 0, [][]byte{[]byte(payloads[i])}, 0); err != nil {
			t.Fatalf("PublishFrames(%q): %v", topic, err)
		}
	}

	for i := range topics {
		msg, ok := buf.Read(true)
		if !ok {
			t.Fatalf("expected message %d", i)
		}
		if string(msg.Frames[0]) != payloads[i] {
			t.Fatalf("message %d: expected payload %q, got %q", i, payloads[i], msg.Frames[0])
		}
		if msg.Header.SenderSequenceID != uint64(i) {
			t.Fatalf("message %d: expected sequence %d, got %d", i, i, msg.Header.SenderSequenceID)
		}
	}
}

func TestSubscribeLatestDeliversMostRecent(t *testing.T) {
	b := newTestBus(t)

	item := slot.New[wire.Message]()
	if err := b.SubscribeLatest("t", item); err != nil {
		t.Fatalf("SubscribeLatest: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := b.PublishFrames("t", 0, [][]byte{[]byte(fmt.Sprintf("v%d", i))}, 0); err != nil {
			t.Fatalf("PublishFrames: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	msg, ok := item.Read(true)
	if !ok {
		t.Fatal("expected a delivered message")
	}
	if string(msg.Frames[0]) != "v2" {
		t.Fatalf("expected latest value v2, got %q", msg.Frames[0])
	}
}

func TestOperationsBeforeInitFail(t *testing.T) {
	clock := pclock.New()
	defer clock.Close()
	logger := logging.MustGetLogger("bus-test-uninit")

	b := New(clock, logger)
	if err := b.PublishFrames("t", 0, nil, 0); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	b := newTestBus(t)
	if err := b.Cleanup(); err != nil {
		t.Fatalf("first Cleanup: %v", err)
	}
	if err := b.Cleanup(); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
}
