// Package wire implements the bus's on-the-wire message model: the
// fixed-layout MessageHeader, the Message/Frames types built around it,
// and the framing used to pack a topic + header + N application frames
// into the single self-delimited blob that package transport sends as
// one message.
//
// Grounded on original_source/app/pubsub_message.h for the header field
// set and Message/MessageFrames shape, and on spec.md's §6 "Wire protocol
// (bus)" for the exact byte layout.
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is sizeof(MessageHeader): three u64 fields then three u16
// fields, little-endian, no padding.
const HeaderSize = 8 + 8 + 8 + 2 + 2 + 2

// KeyframeFlag is bit 0 of Header.Flags: a message a stateful decoder can
// resume from.
const KeyframeFlag uint16 = 1

// Header is the fixed-layout record stamped onto every published
// message. Field order is the wire order; do not reorder existing
// fields, only append, per spec.md's backward-compatibility invariant.
type Header struct {
	SenderProcessID     uint64
	SenderSequenceID    uint64
	SenderProcessTimeUs uint64
	ProtocolVersion     uint16
	MessageVersion      uint16
	Flags               uint16
}

// IsKeyframe reports whether bit 0 of Flags is set.
func (h Header) IsKeyframe() bool {
	return h.Flags&KeyframeFlag != 0
}

// Encode writes the header's HeaderSize-byte little-endian wire form.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.SenderProcessID)
	binary.LittleEndian.PutUint64(buf[8:16], h.SenderSequenceID)
	binary.LittleEndian.PutUint64(buf[16:24], h.SenderProcessTimeUs)
	binary.LittleEndian.PutUint16(buf[24:26], h.ProtocolVersion)
	binary.LittleEndian.PutUint16(buf[26:28], h.MessageVersion)
	binary.LittleEndian.PutUint16(buf[28:30], h.Flags)
	return buf
}

// DecodeHeader parses a wire-form header. The receiver validates size
// equals HeaderSize exactly, per spec.md §6.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, &DecodeError{
			Reason: fmt.Sprintf("header: expected %d bytes, got %d", HeaderSize, len(buf)),
		}
	}
	return Header{
		SenderProcessID:     binary.LittleEndian.Uint64(buf[0:8]),
		SenderSequenceID:    binary.LittleEndian.Uint64(buf[8:16]),
		SenderProcessTimeUs: binary.LittleEndian.Uint64(buf[16:24]),
		ProtocolVersion:     binary.LittleEndian.Uint16(buf[24:26]),
		MessageVersion:      binary.LittleEndian.Uint16(buf[26:28]),
		Flags:               binary.LittleEndian.Uint16(buf[28:30]),
	}, nil
}

// DecodeError reports a malformed wire message: a header size mismatch or
// a CBOR frame decode failure. Per spec.md §6 this is fatal at playback
// (data corruption) but merely dropped-with-log on the live subscriber
// path; callers decide which applies.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "wire: " + e.Reason }
