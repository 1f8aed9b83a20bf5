package wire

import "testing"

// boundaryValues are the varint width-transition points the format must
// round-trip exactly: just under/at/over each marker threshold.
var boundaryValues = []uint64{
	0, 0xFC, 0xFD, 0xFFFF, 0x1_0000, 0xFFFF_FFFF, 0x1_0000_0000, 0xFFFF_FFFF_FFFF_FFFF,
}

func TestVarintRoundTrip(t *testing.T) {
	for _, v := range boundaryValues {
		w := NewWriter(nil)
		w.PutVarint(v)
		r := NewReader(w.Bytes())
		got, err := r.Varint()
		if err != nil {
			t.Fatalf("Varint(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("Varint round trip: want %d, got %d", v, got)
		}
		if r.Remaining() != 0 {
			t.Fatalf("Varint(%d): %d trailing bytes", v, r.Remaining())
		}
	}
}

func TestVarintWidthSelection(t *testing.T) {
	cases := []struct {
		v    uint64
		want int
	}{
		{0, 1},
		{0xFC, 1},
		{0xFD, 3},
		{0xFFFF, 3},
		{0x1_0000, 5},
		{0xFFFF_FFFF, 5},
		{0x1_0000_0000, 9},
		{0xFFFF_FFFF_FFFF_FFFF, 9},
	}
	for _, c := range cases {
		w := NewWriter(nil)
		w.PutVarint(c.v)
		if len(w.Bytes()) != c.want {
			t.Fatalf("PutVarint(%#x): want %d encoded bytes, got %d", c.v, c.want, len(w.Bytes()))
		}
	}
}

func TestVarStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "UnityEngine.GameObject", string(make([]byte, 300))} {
		w := NewWriter(nil)
		w.PutVarString(s)
		r := NewReader(w.Bytes())
		got, err := r.VarString()
		if err != nil {
			t.Fatalf("VarString(%q): %v", s, err)
		}
		if got != s {
			t.Fatalf("VarString round trip mismatch: len want %d got %d", len(s), len(got))
		}
	}
}

func TestFixedWidthRoundTrip(t *testing.T) {
	w := NewWriter(nil)
	w.PutUint8(0xAB)
	w.PutUint16(0x1234)
	w.PutUint32(0xDEADBEEF)
	w.PutUint64(0x0123456789ABCDEF)

	r := NewReader(w.Bytes())
	if v, err := r.Uint8(); err != nil || v != 0xAB {
		t.Fatalf("Uint8: got %#x, err %v", v, err)
	}
	if v, err := r.Uint16(); err != nil || v != 0x1234 {
		t.Fatalf("Uint16: got %#x, err %v", v, err)
	}
	if v, err := r.Uint32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("Uint32: got %#x, err %v", v, err)
	}
	if v, err := r.Uint64(); err != nil || v != 0x0123456789ABCDEF {
		t.Fatalf("Uint64: got %#x, err %v", v, err)
	}
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.Uint32(); err != ErrShortBuffer {
		t.Fatalf("want ErrShortBuffer, got %v", err)
	}
	if !IsDecodeError(ErrShortBuffer) {
		t.Fatal("IsDecodeError(ErrShortBuffer) = false")
	}
}

func TestWriterReset(t *testing.T) {
	w := NewWriter(make([]byte, 0, 16))
	w.PutUint64(1)
	w.Reset()
	if len(w.Bytes()) != 0 {
		t.Fatalf("Reset: want empty, got %d bytes", len(w.Bytes()))
	}
	w.PutUint8(7)
	if len(w.Bytes()) != 1 || w.Bytes()[0] != 7 {
		t.Fatal("Reset did not leave writer usable")
	}
}
