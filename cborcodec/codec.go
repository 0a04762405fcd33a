// Package cborcodec is the reflective struct/enum/byte-span encoder and
// decoder spec.md §3 calls for: a thin, self-describing binary codec over
// plain Go values, built on fxamacker/cbor/v2 rather than hand-rolled
// reflection, since the CBOR data model already gives self-describing
// maps/arrays for free.
//
// Grounded on server/cborplugin/client.go's TagSet + Marshal/Unmarshal
// pattern: a package-level cbor.TagSet registers concrete types once at
// init so encode/decode round-trips preserve the Go type even through an
// interface{} or a CBOR-array-of-mixed-types boundary (the recorder's
// frame list is exactly that: a CBOR array of opaque byte strings).
package cborcodec

import (
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// tags is the process-wide registry of tagged types, mirroring
// cborplugin's package-level TagSet. Components that need tagged
// round-tripping through interface{} call Register once at init.
var (
	tagsMu  sync.Mutex
	tags    = cbor.NewTagSet()
	em      cbor.EncMode
	dm      cbor.DecMode
)

// Register associates typ with an IANA-unassigned CBOR tag number
// (1401-18299 is the convention the teacher follows) so values of that
// type encode and decode with their tag intact. It panics on a duplicate
// tag or type, matching cbor.TagSet.Add's own behavior, since a
// collision here is a programming error caught at init time. The compiled
// encode/decode modes are cached; each Register call discards that cache,
// so the next Encode/Decode call recompiles them with the new tag.
func Register(typ reflect.Type, tag uint64) {
	tagsMu.Lock()
	defer tagsMu.Unlock()
	if err := tags.Add(cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired}, typ, tag); err != nil {
		panic("cborcodec: " + err.Error())
	}
	em, dm = nil, nil
}

func modes() (cbor.EncMode, cbor.DecMode) {
	tagsMu.Lock()
	defer tagsMu.Unlock()
	if em == nil || dm == nil {
		var err error
		em, err = cbor.EncOptions{}.EncModeWithTags(tags)
		if err != nil {
			panic("cborcodec: " + err.Error())
		}
		dm, err = cbor.DecOptions{}.DecModeWithTags(tags)
		if err != nil {
			panic("cborcodec: " + err.Error())
		}
	}
	return em, dm
}

// Encode serializes v as CBOR, honoring any tags registered via Register.
func Encode[T any](v T) ([]byte, error) {
	em, _ := modes()
	return em.Marshal(v)
}

// Decode deserializes CBOR data into a value of type T.
func Decode[T any](data []byte) (T, error) {
	var out T
	_, dm := modes()
	err := dm.Unmarshal(data, &out)
	return out, err
}

// EncodeByteStrings encodes a list of byte slices as a CBOR array of byte
// strings, matching spec.md §4.6's "frames blob is a CBOR array of byte
// strings" recorder column.
func EncodeByteStrings(frames [][]byte) ([]byte, error) {
	return cbor.Marshal(frames)
}

// DecodeByteStrings is EncodeByteStrings's inverse.
func DecodeByteStrings(data []byte) ([][]byte, error) {
	var frames [][]byte
	if err := cbor.Unmarshal(data, &frames); err != nil {
		return nil, err
	}
	return frames, nil
}
