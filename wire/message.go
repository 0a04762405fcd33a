package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Message is a received or about-to-be-sent bus message: a topic, its
// stamped header, and an ordered sequence of opaque application frames.
// Grounded on original_source/app/pubsub_message.h's Message struct.
type Message struct {
	Topic  string
	Header Header
	Frames [][]byte
}

// GetBytes returns the raw bytes of frame frameIdx.
func (m Message) GetBytes(frameIdx int) ([]byte, error) {
	if frameIdx < 0 || frameIdx >= len(m.Frames) {
		return nil, &DecodeError{Reason: fmt.Sprintf("frame index %d out of range (have %d)", frameIdx, len(m.Frames))}
	}
	return m.Frames[frameIdx], nil
}

// GetStruct decodes frame frameIdx as a fixed-size binary-encoded value of
// type T, mirroring Message::get_simple's byte-reinterpret cast on a
// trivially-copyable type. T must be a fixed-size type accepted by
// encoding/binary (numeric types, arrays, or structs composed of them).
func GetStruct[T any](m Message, frameIdx int) (T, error) {
	var out T
	raw, err := m.GetBytes(frameIdx)
	if err != nil {
		return out, err
	}
	want := binary.Size(out)
	if want < 0 {
		return out, &DecodeError{Reason: "GetStruct: type has no fixed binary size"}
	}
	if len(raw) != want {
		return out, &DecodeError{Reason: fmt.Sprintf("frame %d: expected %d bytes, got %d", frameIdx, want, len(raw))}
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &out); err != nil {
		return out, &DecodeError{Reason: "GetStruct: " + err.Error()}
	}
	return out, nil
}

// GetCBOR decodes frame frameIdx as a CBOR-encoded value of type T,
// mirroring Message::get_cbor.
func GetCBOR[T any](m Message, frameIdx int) (T, error) {
	var out T
	raw, err := m.GetBytes(frameIdx)
	if err != nil {
		return out, err
	}
	if err := cbor.Unmarshal(raw, &out); err != nil {
		return out, &DecodeError{Reason: "GetCBOR: " + err.Error()}
	}
	return out, nil
}

// Frames is a builder for an outgoing frame list, mirroring
// original_source/app/pubsub_message.h's MessageFrames.
type Frames struct {
	frames [][]byte
}

// NewFrames returns an empty frame-list builder.
func NewFrames() *Frames { return &Frames{} }

// AddBytes appends a copy of b as the next frame; b itself is not
// retained.
func (f *Frames) AddBytes(b []byte) *Frames {
	f.frames = append(f.frames, append([]byte(nil), b...))
	return f
}

// AddStruct appends v's fixed-size binary encoding as the next frame.
func AddStruct[T any](f *Frames, v T) (*Frames, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return f, &DecodeError{Reason: "AddStruct: " + err.Error()}
	}
	f.frames = append(f.frames, buf.Bytes())
	return f, nil
}

// AddCBOR appends v's CBOR encoding as the next frame.
func AddCBOR[T any](f *Frames, v T) (*Frames, error) {
	enc, err := cbor.Marshal(v)
	if err != nil {
		return f, &DecodeError{Reason: "AddCBOR: " + err.Error()}
	}
	f.frames = append(f.frames, enc)
	return f, nil
}

// Build returns the accumulated frame list, transferring ownership to the
// caller (typically the transport layer).
func (f *Frames) Build() [][]byte { return f.frames }
