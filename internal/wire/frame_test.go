package wire

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{1, 2, 3, 4, 5}
	if err := WriteFrame(&buf, TypeAlloc, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	var scratch []byte
	f, err := ReadFrame(&buf, &scratch)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Type != TypeAlloc {
		t.Fatalf("Type: want %d got %d", TypeAlloc, f.Type)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Fatalf("Payload mismatch: want %v got %v", payload, f.Payload)
	}
}

func TestFrameMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	msgs := [][]byte{{1}, {1, 2, 3}, bytes.Repeat([]byte{9}, 4096)}
	for i, m := range msgs {
		if err := WriteFrame(&buf, uint8(i+1), m); err != nil {
			t.Fatalf("WriteFrame[%d]: %v", i, err)
		}
	}

	var scratch []byte
	for i, want := range msgs {
		f, err := ReadFrame(&buf, &scratch)
		if err != nil {
			t.Fatalf("ReadFrame[%d]: %v", i, err)
		}
		if f.Type != uint8(i+1) {
			t.Fatalf("ReadFrame[%d] type: want %d got %d", i, i+1, f.Type)
		}
		if !bytes.Equal(f.Payload, want) {
			t.Fatalf("ReadFrame[%d] payload mismatch", i)
		}
	}
}

func TestWriteFrameRejectsEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, TypeFree, nil); err != ErrEmptyFrame {
		t.Fatalf("want ErrEmptyFrame, got %v", err)
	}
}

func TestReadFrameRejectsEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0, byte(TypeFree)})
	var scratch []byte
	if _, err := ReadFrame(&buf, &scratch); err != ErrEmptyFrame {
		t.Fatalf("want ErrEmptyFrame, got %v", err)
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{1, 2})
	var scratch []byte
	if _, err := ReadFrame(&buf, &scratch); err == nil {
		t.Fatal("want error on truncated header")
	}
}

func TestReadFrameScratchReuse(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, TypeAlloc, bytes.Repeat([]byte{1}, 100))
	WriteFrame(&buf, TypeAlloc, bytes.Repeat([]byte{2}, 50))

	scratch := make([]byte, 0, 1000)
	f1, err := ReadFrame(&buf, &scratch)
	if err != nil {
		t.Fatalf("ReadFrame 1: %v", err)
	}
	backing := cap(scratch)

	f2, err := ReadFrame(&buf, &scratch)
	if err != nil {
		t.Fatalf("ReadFrame 2: %v", err)
	}
	if cap(scratch) != backing {
		t.Fatal("scratch buffer reallocated when capacity was sufficient")
	}
	if len(f1.Payload) != 100 || len(f2.Payload) != 50 {
		t.Fatalf("unexpected payload lengths: %d, %d", len(f1.Payload), len(f2.Payload))
	}
}
