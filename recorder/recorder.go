// Package recorder implements the on-disk message log: a bulk appender
// that persists every observed bus message into an embedded store for
// later deterministic replay.
//
// Grounded on original_source/app/pubsub_recorder.cpp/h: the schema
// (topic, six header fields, this_process_time_us, message_id, frames
// blob), the metadata row written once at open, and the
// append-is-fatal-on-error contract. The original's storage engine is
// DuckDB, which is not available anywhere in this module's dependency
// pack; go.etcd.io/bbolt (present in the teacher's own go.mod) is used
// instead — see DESIGN.md's Open Question resolution for the full
// rationale. bbolt's sorted B+tree keys replace DuckDB's "select ...
// order by message_id" query with a composite big-endian key of
// (this_process_time_us, message_id), which sorts in exactly the time
// order playback needs for free.
package recorder

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.etcd.io/bbolt"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/axbycc/corebus/cborcodec"
	"github.com/axbycc/corebus/metrics"
	"github.com/axbycc/corebus/pclock"
	"github.com/axbycc/corebus/wire"
)

var (
	logBucket       = []byte("log")
	metadataBucket  = []byte("metadata")
	keyframesBucket = []byte("keyframes")
	metadataKey     = []byte("info")
)

// Row is the recorder's persistent schema: one row per message, matching
// spec.md §3's LogRow.
type Row struct {
	Topic               string
	SenderProcessID     uint64
	SenderSequenceID    uint64
	SenderProcessTimeUs uint64
	ProtocolVersion     uint16
	MessageVersion      uint16
	Flags               uint16
	ThisProcessTimeUs   uint64
	MessageID           uint64
	Frames              [][]byte
}

// IsKeyframe reports whether bit 0 of Flags is set.
func (r Row) IsKeyframe() bool { return r.Flags&wire.KeyframeFlag != 0 }

// Header reconstructs the wire.Header this row was recorded from.
func (r Row) Header() wire.Header {
	return wire.Header{
		SenderProcessID:     r.SenderProcessID,
		SenderSequenceID:    r.SenderSequenceID,
		SenderProcessTimeUs: r.SenderProcessTimeUs,
		ProtocolVersion:     r.ProtocolVersion,
		MessageVersion:      r.MessageVersion,
		Flags:               r.Flags,
	}
}

// Metadata is written once, at open, mirroring the source's metadata
// insert using the recording process's identity and clock snapshot.
type Metadata struct {
	ThisProcessID uint64
	ProcessTimeUs uint64
	UnixTimeMs    uint64
}

// IOError reports a recorder open or append failure. Per spec.md §6,
// appender errors are fatal — callers are expected to treat a non-nil
// *IOError from Append as unrecoverable for that recording session.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("recorder: %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// RowKey is the composite (this_process_time_us, message_id) big-endian
// key bbolt sorts the log bucket by.
func RowKey(thisProcessTimeUs, messageID uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[0:8], thisProcessTimeUs)
	binary.BigEndian.PutUint64(key[8:16], messageID)
	return key
}

// Recorder is a bulk-appender session over one bbolt file. Append is
// intended to be driven by a single writer goroutine at a time (bus.Bus's
// recorder worker); concurrent Append calls race on message_id assignment
// ordering versus the underlying bbolt write.
type Recorder struct {
	db     *bbolt.DB
	clock  *pclock.Clock
	logger *logging.Logger
	reg    *metrics.Registry

	messageID  atomic.Uint64
	throughput *metrics.FrequencyCalculator
	logPeriod  *metrics.ActionPeriod

	mu sync.Mutex
}

// Open starts a recording session at filepath.Join(logDir, logName),
// creating the file if it does not exist. An existing file is not
// truncated: its buckets are reused, new rows are added to them, and the
// metadata entry is overwritten. An empty logDir defaults to the user's
// home directory and an empty logName generates a timestamped name,
// matching pubsub_recorder.cpp's generate_log_name.
func Open(logDir, logName string, clock *pclock.Clock, logger *logging.Logger, reg *metrics.Registry) (*Recorder, error) {
	if logDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, &IOError{Op: "open", Err: err}
		}
		logDir = home
	}
	if logName == "" {
		logName = defaultLogName(clock)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}

	path := filepath.Join(logDir, logName)
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(logBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(keyframesBucket); err != nil {
			return err
		}
		mb, err := tx.CreateBucketIfNotExists(metadataBucket)
		if err != nil {
			return err
		}
		meta := Metadata{
			ThisProcessID: clock.ProcessID(),
			ProcessTimeUs: clock.ProcessTimeUs(),
			UnixTimeMs:    clock.SystemTimeMs(),
		}
		encoded, err := cborcodec.Encode(meta)
		if err != nil {
			return err
		}
		return mb.Put(metadataKey, encoded)
	})
	if err != nil {
		db.Close()
		return nil, &IOError{Op: "open", Err: err}
	}

	return &Recorder{
		db:         db,
		clock:      clock,
		logger:     logger,
		reg:        reg,
		throughput: metrics.NewFrequencyCalculator(clock, 0.6),
		logPeriod:  metrics.NewActionPeriod(clock, logThroughputPeriodSec),
	}, nil
}

// logThroughputPeriodSec gates the "recording at N MB/s" log line.
const logThroughputPeriodSec = 5.0

func defaultLogName(clock *pclock.Clock) string {
	return fmt.Sprintf("corebus-%d.db", clock.SystemTimeMs())
}

// Append persists one row built from msg, assigning it the next
// monotonic message_id for this session.
func (r *Recorder) Append(msg wire.Message) error {
	r.mu.Lock()
	id := r.messageID.Add(1) - 1
	row := Row{
		Topic:               msg.Topic,
		SenderProcessID:     msg.Header.SenderProcessID,
		SenderSequenceID:    msg.Header.SenderSequenceID,
		SenderProcessTimeUs: msg.Header.SenderProcessTimeUs,
		ProtocolVersion:     msg.Header.ProtocolVersion,
		MessageVersion:      msg.Header.MessageVersion,
		Flags:               msg.Header.Flags,
		ThisProcessTimeUs:   r.clock.ProcessTimeUs(),
		MessageID:           id,
		Frames:              msg.Frames,
	}
	r.mu.Unlock()

	encoded, err := cborcodec.Encode(row)
	if err != nil {
		return &IOError{Op: "append", Err: err}
	}
	key := RowKey(row.ThisProcessTimeUs, row.MessageID)

	err = r.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(logBucket).Put(key, encoded); err != nil {
			return err
		}
		if row.IsKeyframe() {
			kb, err := tx.Bucket(keyframesBucket).CreateBucketIfNotExists([]byte(row.Topic))
			if err != nil {
				return err
			}
			if err := kb.Put(key, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &IOError{Op: "append", Err: err}
	}

	var size uint64
	for _, f := range row.Frames {
		size += uint64(len(f))
	}
	r.throughput.Count(size)
	if r.reg != nil {
		r.reg.RecorderRowsTotal.Inc()
		r.reg.RecorderBytesPerSec.Set(r.throughput.GetFrequency())
	}
	if r.logger != nil && r.logPeriod.ShouldAct() {
		r.logger.Infof("recording at %.2f MB/s", r.throughput.GetFrequency()/(1024*1024))
	}

	return nil
}

// Close flushes and closes the underlying store.
func (r *Recorder) Close() error {
	if err := r.db.Close(); err != nil {
		return &IOError{Op: "close", Err: err}
	}
	return nil
}
