package cborcodec

import (
	"testing"
)

type innerStruct struct {
	Label string
	Value int32
}

type sampleKind uint8

const (
	kindA sampleKind = iota
	kindB
)

type sampleStruct struct {
	Name    string
	Count   int64
	Inner   innerStruct
	Kind    sampleKind
	Items   []innerStruct
	Payload []byte
	Vector  [3]float32
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := sampleStruct{
		Name:  "reading",
		Count: 42,
		Inner: innerStruct{Label: "x", Value: 7},
		Kind:  kindB,
		Items: []innerStruct{
			{Label: "a", Value: 1},
			{Label: "b", Value: 2},
		},
		Payload: []byte{0x01, 0x02, 0x03},
		Vector:  [3]float32{1.5, -2.25, 0},
	}

	data, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode[sampleStruct](data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Name != v.Name || got.Count != v.Count || got.Inner != v.Inner || got.Kind != v.Kind {
		t.Fatalf("scalar/nested mismatch: got %+v, want %+v", got, v)
	}
	if len(got.Items) != len(v.Items) {
		t.Fatalf("items length mismatch: got %d, want %d", len(got.Items), len(v.Items))
	}
	for i := range v.Items {
		if got.Items[i] != v.Items[i] {
			t.Fatalf("item %d mismatch: got %+v, want %+v", i, got.Items[i], v.Items[i])
		}
	}
	if string(got.Payload) != string(v.Payload) {
		t.Fatalf("payload mismatch: got %v, want %v", got.Payload, v.Payload)
	}
	if got.Vector != v.Vector {
		t.Fatalf("vector mismatch: got %v, want %v", got.Vector, v.Vector)
	}
}

func TestEncodeDecodeByteStrings(t *testing.T) {
	frames := [][]byte{[]byte("alpha"), []byte("beta"), {}}
	data, err := EncodeByteStrings(frames)
	if err != nil {
		t.Fatalf("EncodeByteStrings: %v", err)
	}
	got, err := DecodeByteStrings(data)
	if err != nil {
		t.Fatalf("DecodeByteStrings: %v", err)
	}
	if len(got) != len(frames) {
		t.Fatalf("expected %d frames, got %d", len(frames), len(got))
	}
	for i := range frames {
		if string(got[i]) != string(frames[i]) {
			t.Fatalf("frame %d: got %q, want %q", i, got[i], frames[i])
		}
	}
}
