package recorder

import (
	"encoding/binary"

	"go.etcd.io/bbolt"

	"github.com/axbycc/corebus/cborcodec"
)

// Reader is a read-only handle onto a recorded log file, used by
// package playback to reconstruct rows in time order and to perform
// keyframe recovery. Kept in this package because it shares the log's
// schema and bucket layout with Recorder.
type Reader struct {
	db *bbolt.DB
}

// OpenReader opens path read-only. It fails if path does not exist or is
// not a valid corebus recording.
func OpenReader(path string) (*Reader, error) {
	db, err := bbolt.Open(path, 0o444, &bbolt.Options{ReadOnly: true})
	if err != nil {
		return nil, &IOError{Op: "open-reader", Err: err}
	}
	return &Reader{db: db}, nil
}

// Close releases the underlying store.
func (r *Reader) Close() error {
	if err := r.db.Close(); err != nil {
		return &IOError{Op: "close-reader", Err: err}
	}
	return nil
}

// ReadMetadata returns the session metadata written at record time.
func (r *Reader) ReadMetadata() (Metadata, error) {
	var meta Metadata
	err := r.db.View(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(metadataBucket)
		if mb == nil {
			return nil
		}
		raw := mb.Get(metadataKey)
		if raw == nil {
			return nil
		}
		decoded, err := cborcodec.Decode[Metadata](raw)
		if err != nil {
			return err
		}
		meta = decoded
		return nil
	})
	if err != nil {
		return Metadata{}, &IOError{Op: "read-metadata", Err: err}
	}
	return meta, nil
}

// CountRows returns the total number of recorded rows.
func (r *Reader) CountRows() (int, error) {
	n := 0
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(logBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	if err != nil {
		return 0, &IOError{Op: "count-rows", Err: err}
	}
	return n, nil
}

// ForEachInRange calls fn, in ascending (this_process_time_us,
// message_id) order, for every row whose this_process_time_us lies in
// (fromUsExclusive, toUsInclusive], matching spec.md §4.7's per-tick
// publish window. fn's error aborts iteration and is returned.
func (r *Reader) ForEachInRange(fromUsExclusive, toUsInclusive uint64, fn func(Row) error) error {
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(logBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		start := RowKey(fromUsExclusive+1, 0)
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			ts := binary.BigEndian.Uint64(k[0:8])
			if ts > toUsInclusive {
				break
			}
			row, err := cborcodec.Decode[Row](v)
			if err != nil {
				return err
			}
			if err := fn(row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &IOError{Op: "for-each-in-range", Err: err}
	}
	return nil
}

// ForEachFromKey calls fn, in ascending order, for every row at or after
// startKey. Used by playback to replay forward from a recovered
// keyframe.
func (r *Reader) ForEachFromKey(startKey []byte, toUsInclusive uint64, fn func(Row) error) error {
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(logBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(startKey); k != nil; k, v = c.Next() {
			ts := binary.BigEndian.Uint64(k[0:8])
			if ts > toUsInclusive {
				break
			}
			row, err := cborcodec.Decode[Row](v)
			if err != nil {
				return err
			}
			if err := fn(row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &IOError{Op: "for-each-from-key", Err: err}
	}
	return nil
}

// FindKeyframeAtOrBefore finds the row with the maximum message_id such
// that flags&1 != 0 and this_process_time_us lies in
// [atUs-windowUs, atUs], matching spec.md §4.7's keyframe recovery rule.
// The returned key can be passed to ForEachFromKey to replay forward
// from it.
func (r *Reader) FindKeyframeAtOrBefore(topic string, atUs, windowUs uint64) (key []byte, row Row, found bool, err error) {
	lowerUs := uint64(0)
	if atUs > windowUs {
		lowerUs = atUs - windowUs
	}

	viewErr := r.db.View(func(tx *bbolt.Tx) error {
		kfRoot := tx.Bucket(keyframesBucket)
		if kfRoot == nil {
			return nil
		}
		topicBucket := kfRoot.Bucket([]byte(topic))
		if topicBucket == nil {
			return nil
		}
		c := topicBucket.Cursor()
		ceiling := RowKey(atUs, ^uint64(0))
		k, _ := c.Seek(ceiling)
		if k == nil {
			k, _ = c.Last()
		} else if string(k) > string(ceiling) {
			k, _ = c.Prev()
		}
		for k != nil {
			ts := binary.BigEndian.Uint64(k[0:8])
			if ts <= atUs {
				if ts < lowerUs {
					return nil
				}
				break
			}
			k, _ = c.Prev()
		}
		if k == nil {
			return nil
		}

		logBucketHandle := tx.Bucket(logBucket)
		raw := logBucketHandle.Get(k)
		if raw == nil {
			return nil
		}
		decoded, err := cborcodec.Decode[Row](raw)
		if err != nil {
			return err
		}
		key = append([]byte(nil), k...)
		row = decoded
		found = true
		return nil
	})
	if viewErr != nil {
		return nil, Row{}, false, &IOError{Op: "find-keyframe", Err: viewErr}
	}
	return key, row, found, nil
}
