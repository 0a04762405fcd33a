package timesync

import (
	"fmt"
	"testing"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/axbycc/corebus/pclock"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestLogger(t *testing.T, name string) *logging.Logger {
	t.Helper()
	logger := logging.MustGetLogger(fmt.Sprintf("%s-%d", name, time.Now().UnixNano()))
	logger.SetBackend(logging.NewLogBackend(testWriter{t}, "", 0))
	return logger
}

// TestClientEstimatesOffsetAgainstServer mirrors spec.md's time-sync
// testable property: a client blasting against a live echo server
// converges to a small-magnitude offset estimate (the server and client
// run in the same process here, so their process clocks start close
// together and the true offset is near zero).
func TestClientEstimatesOffsetAgainstServer(t *testing.T) {
	serverClock := pclock.New()
	defer serverClock.Close()
	server, err := Listen("127.0.0.1:0", serverClock, newTestLogger(t, "timesync-server"))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	addr := server.conn.LocalAddr().String()

	clientClock := pclock.New()
	defer clientClock.Close()
	opts := Options{WindowDuration: 1250 * time.Millisecond, BlastSize: 5}
	client, err := Dial(addr, opts, clientClock, newTestLogger(t, "timesync-client"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		client.mu.Lock()
		haveSamples := len(client.samples) > 0
		client.mu.Unlock()
		if haveSamples {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	offset := client.EstimateOffsetUs()
	if offset < -int64(time.Second.Microseconds()) || offset > int64(time.Second.Microseconds()) {
		t.Fatalf("expected a small offset between co-located clocks, got %dus", offset)
	}

	serverTs := client.EstimateTimeServerTimestampUs()
	if serverTs == 0 {
		t.Fatal("expected a nonzero estimated server timestamp after samples arrive")
	}
}

func TestForeignOffsetFallsBackToOwnEstimate(t *testing.T) {
	clock := pclock.New()
	defer clock.Close()
	client := StartWithoutServer(clock, newTestLogger(t, "timesync-foreign"))

	// Unknown process: falls back to own offset (0, since no samples).
	got := client.EstimateTimeServerTimestampUsForProcess(999, 5_000_000)
	if got != 5_000_000 {
		t.Fatalf("expected fallback to processTimeUs with zero offset, got %d", got)
	}

	client.SetForeignOffset(999, 2_000)
	got = client.EstimateTimeServerTimestampUsForProcess(999, 5_000_000)
	if got != 5_002_000 {
		t.Fatalf("expected registered offset applied, got %d", got)
	}
}

func TestStartWithoutServerNeverDialsOut(t *testing.T) {
	clock := pclock.New()
	defer clock.Close()
	client := StartWithoutServer(clock, newTestLogger(t, "timesync-playback"))
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if client.EstimateOffsetUs() != 0 {
		t.Fatal("expected zero offset with no samples and no server contact")
	}
}
