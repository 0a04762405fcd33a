package recorder

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/axbycc/corebus/pclock"
	"github.com/axbycc/corebus/wire"
)

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger := logging.MustGetLogger(fmt.Sprintf("recorder-test-%d", time.Now().UnixNano()))
	logger.SetBackend(logging.NewLogBackend(testWriter{t}, "", 0))
	return logger
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) { return len(p), nil }

// TestRecorderRoundTrip mirrors spec.md's testable property 11: publish M
// messages across K topics with known payloads, close, reopen, and check
// that rows = M and every topic/header/frame matches.
func TestRecorderRoundTrip(t *testing.T) {
	clock := pclock.New()
	defer clock.Close()
	logger := newTestLogger(t)

	dir := t.TempDir()
	rec, err := Open(dir, "round-trip.db", clock, logger, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	topics := []string{"a", "b", "a", "c", "b"}
	payloads := [][]byte{[]byte("one"), []byte("two"), []byte("three"), []byte("four"), []byte("five")}

	for i, topic := range topics {
		msg := wire.Message{
			Topic: topic,
			Header: wire.Header{
				SenderProcessID:     clock.ProcessID(),
				SenderSequenceID:    uint64(i),
				SenderProcessTimeUs: clock.ProcessTimeUs(),
				ProtocolVersion:     0,
				MessageVersion:      1,
				Flags:               0,
			},
			Frames: [][]byte{payloads[i]},
		}
		if err := rec.Append(msg); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "round-trip.db")
	reader, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer reader.Close()

	count, err := reader.CountRows()
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if count != len(topics) {
		t.Fatalf("expected %d rows, got %d", len(topics), count)
	}

	var seen []Row
	if err := reader.ForEachInRange(0, ^uint64(0), func(row Row) error {
		seen = append(seen, row)
		return nil
	}); err != nil {
		t.Fatalf("ForEachInRange: %v", err)
	}
	if len(seen) != len(topics) {
		t.Fatalf("expected %d iterated rows, got %d", len(topics), len(seen))
	}

	for i, row := range seen {
		if row.Topic != topics[i] {
			t.Fatalf("row %d: expected topic %q, got %q", i, topics[i], row.Topic)
		}
		if row.SenderSequenceID != uint64(i) {
			t.Fatalf("row %d: expected sequence %d, got %d", i, i, row.SenderSequenceID)
		}
		if len(row.Frames) != 1 || string(row.Frames[0]) != string(payloads[i]) {
			t.Fatalf("row %d: expected payload %q, got %v", i, payloads[i], row.Frames)
		}
		if row.MessageID != uint64(i) {
			t.Fatalf("row %d: expected message id %d, got %d", i, i, row.MessageID)
		}
	}

	meta, err := reader.ReadMetadata()
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.ThisProcessID != clock.ProcessID() {
		t.Fatalf("expected metadata process id %d, got %d", clock.ProcessID(), meta.ThisProcessID)
	}
}

func TestRecorderKeyframeIndexing(t *testing.T) {
	clock := pclock.New()
	defer clock.Close()
	logger := newTestLogger(t)

	dir := t.TempDir()
	rec, err := Open(dir, "keyframes.db", clock, logger, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	mkMsg := func(topic string, seq uint64, keyframe bool) wire.Message {
		var flags uint16
		if keyframe {
			flags = wire.KeyframeFlag
		}
		return wire.Message{
			Topic: topic,
			Header: wire.Header{
				SenderProcessID:     clock.ProcessID(),
				SenderSequenceID:    seq,
				SenderProcessTimeUs: clock.ProcessTimeUs(),
				Flags:               flags,
			},
			Frames: [][]byte{[]byte("payload")},
		}
	}

	if err := rec.Append(mkMsg("video", 0, true)); err != nil {
		t.Fatalf("Append keyframe: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := rec.Append(mkMsg("video", 1, false)); err != nil {
		t.Fatalf("Append delta: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := rec.Append(mkMsg("video", 2, false)); err != nil {
		t.Fatalf("Append delta: %v", err)
	}
	now := clock.ProcessTimeUs()
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader, err := OpenReader(filepath.Join(dir, "keyframes.db"))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer reader.Close()

	key, row, found, err := reader.FindKeyframeAtOrBefore("video", now, uint64(time.Second.Microseconds()))
	if err != nil {
		t.Fatalf("FindKeyframeAtOrBefore: %v", err)
	}
	if !found {
		t.Fatal("expected a keyframe to be found")
	}
	if row.SenderSequenceID != 0 {
		t.Fatalf("expected keyframe sequence 0, got %d", row.SenderSequenceID)
	}
	if !row.IsKeyframe() {
		t.Fatal("expected found row to have the keyframe flag set")
	}

	var replayed []Row
	if err := reader.ForEachFromKey(key, ^uint64(0), func(r Row) error {
		replayed = append(replayed, r)
		return nil
	}); err != nil {
		t.Fatalf("ForEachFromKey: %v", err)
	}
	if len(replayed) != 3 {
		t.Fatalf("expected 3 rows replayed from keyframe forward, got %d", len(replayed))
	}
}

func TestOpenDefaultsLogName(t *testing.T) {
	clock := pclock.New()
	defer clock.Close()
	logger := newTestLogger(t)

	dir := t.TempDir()
	rec, err := Open(dir, "", clock, logger, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
