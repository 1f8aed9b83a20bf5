// Package wire implements the profiler's binary codec and frame format:
// little-endian fixed-width integers, a width-selecting varint, and
// length-prefixed UTF-8 strings, wrapped in a fixed [length][type] frame
// header.
package wire

import "encoding/binary"

// Varint width selector bytes, per the wire format: values below
// varint16Marker are encoded inline as a single byte.
const (
	varint16Marker = 0xFD
	varint32Marker = 0xFE
	varint64Marker = 0xFF
)

// Writer accumulates an encoded message body. It never fails; callers
// build small, bounded payloads so growth is cheap.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with buf as the initial backing array,
// reusable via Reset.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf[:0]}
}

// Bytes returns the encoded payload so far.
func (w *Writer) Bytes() []byte { return w.buf }

// Reset clears the writer so its buffer can be reused for the next message.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// PutUint8 appends a single byte.
func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }

// PutUint16 appends a little-endian uint16.
func (w *Writer) PutUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// PutUint32 appends a little-endian uint32.
func (w *Writer) PutUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// PutUint64 appends a little-endian uint64.
func (w *Writer) PutUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// PutVarint appends v using the width-selecting varint encoding: values
// below 0xFD are inline; 0xFD selects a following uint16, 0xFE a uint32,
// 0xFF a uint64.
func (w *Writer) PutVarint(v uint64) {
	switch {
	case v < varint16Marker:
		w.PutUint8(uint8(v))
	case v <= 0xFFFF:
		w.PutUint8(varint16Marker)
		w.PutUint16(uint16(v))
	case v <= 0xFFFFFFFF:
		w.PutUint8(varint32Marker)
		w.PutUint32(uint32(v))
	default:
		w.PutUint8(varint64Marker)
		w.PutUint64(v)
	}
}

// PutVarString appends a varint length followed by the UTF-8 bytes of s.
func (w *Writer) PutVarString(s string) {
	w.PutVarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// Reader consumes an encoded message body, failing cleanly on underrun.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return ErrShortBuffer
	}
	return nil
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// Varint decodes the width-selecting varint format.
func (r *Reader) Varint() (uint64, error) {
	b, err := r.Uint8()
	if err != nil {
		return 0, err
	}
	switch b {
	case varint16Marker:
		v, err := r.Uint16()
		return uint64(v), err
	case varint32Marker:
		v, err := r.Uint32()
		return uint64(v), err
	case varint64Marker:
		return r.Uint64()
	default:
		return uint64(b), nil
	}
}

// VarString decodes a varint length followed by that many UTF-8 bytes.
func (r *Reader) VarString() (string, error) {
	n, err := r.Varint()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}
