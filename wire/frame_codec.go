package wire

import (
	"encoding/binary"
	"fmt"
)

// PackDatagram serializes topic, header, and frames into a single
// self-delimited blob: a part count, then each part as a u32
// length-prefix followed by its bytes, in the wire order spec.md §6
// describes for the multi-part datagram (topic, header, application
// frames...). package transport sends this blob as one logical message,
// since none of its carriers has a notion of "parts" within one message
// the way a zmq multipart send did.
func PackDatagram(topic string, header Header, frames [][]byte) []byte {
	parts := make([][]byte, 0, 2+len(frames))
	parts = append(parts, []byte(topic), header.Encode())
	parts = append(parts, frames...)

	size := 4
	for _, p := range parts {
		size += 4 + len(p)
	}

	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(parts)))
	off += 4
	for _, p := range parts {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(p)))
		off += 4
		copy(buf[off:], p)
		off += len(p)
	}
	return buf
}

// UnpackDatagram is PackDatagram's inverse. It validates the header size
// per spec.md §6 ("the receiver validates size equals this value").
func UnpackDatagram(blob []byte) (topic string, header Header, frames [][]byte, err error) {
	if len(blob) < 4 {
		return "", Header{}, nil, &DecodeError{Reason: "datagram: truncated part count"}
	}
	n := int(binary.LittleEndian.Uint32(blob[0:4]))
	off := 4
	parts := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if off+4 > len(blob) {
			return "", Header{}, nil, &DecodeError{Reason: fmt.Sprintf("datagram: truncated length prefix for part %d", i)}
		}
		l := int(binary.LittleEndian.Uint32(blob[off : off+4]))
		off += 4
		if off+l > len(blob) {
			return "", Header{}, nil, &DecodeError{Reason: fmt.Sprintf("datagram: truncated payload for part %d", i)}
		}
		parts = append(parts, blob[off:off+l])
		off += l
	}
	if len(parts) < 2 {
		return "", Header{}, nil, &DecodeError{Reason: fmt.Sprintf("datagram: expected at least 2 parts (topic, header), got %d", len(parts))}
	}
	header, err = DecodeHeader(parts[1])
	if err != nil {
		return "", Header{}, nil, err
	}
	topic = string(parts[0])
	if len(parts) > 2 {
		frames = make([][]byte, len(parts)-2)
		for i, p := range parts[2:] {
			frames[i] = append([]byte(nil), p...)
		}
	}
	return topic, header, frames, nil
}
