package slow5

import (
	"encoding/binary"
	"math"
)

/******************************************************************************

Byte codec (C1).

Every multi-byte integer and float in a SLOW5/BLOW5 file is little-endian.
There is no variable-length integer coding anywhere in the format: every
primitive is read and written at a fixed width, and every cursor advance is
exactly that width. The cursor and reader in this file are how most of the
package reads and writes fixed-width values; header.go's streamReader also
decodes little-endian values directly off an io.Reader.

******************************************************************************/

// cursor is a small write cursor over a growable byte buffer, used while
// encoding headers and records.
type cursor struct {
	buf []byte
}

func (c *cursor) putUint8(v uint8)   { c.buf = append(c.buf, v) }
func (c *cursor) putInt8(v int8)     { c.putUint8(uint8(v)) }

func (c *cursor) putUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	c.buf = append(c.buf, b[:]...)
}

func (c *cursor) putInt16(v int16) { c.putUint16(uint16(v)) }

func (c *cursor) putUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	c.buf = append(c.buf, b[:]...)
}

func (c *cursor) putInt32(v int32) { c.putUint32(uint32(v)) }

func (c *cursor) putUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	c.buf = append(c.buf, b[:]...)
}

func (c *cursor) putInt64(v int64) { c.putUint64(uint64(v)) }

func (c *cursor) putFloat32(v float32) { c.putUint32(math.Float32bits(v)) }
func (c *cursor) putFloat64(v float64) { c.putUint64(math.Float64bits(v)) }

func (c *cursor) putBytes(b []byte) { c.buf = append(c.buf, b...) }

// reader is a read cursor over a fixed byte slice. Reading past the end of
// buf is an I/O-kind error, since it means the backing buffer (a record
// payload, a header block) was shorter than its own framing claimed.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader { return &reader{buf: buf} }

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) need(n int) error {
	if r.remaining() < n {
		return newErrAt(ErrIO, int64(r.pos), errShortBuffer)
	}
	return nil
}

func (r *reader) getUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) getInt8() (int8, error) {
	v, err := r.getUint8()
	return int8(v), err
}

func (r *reader) getUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) getInt16() (int16, error) {
	v, err := r.getUint16()
	return int16(v), err
}

func (r *reader) getUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) getInt32() (int32, error) {
	v, err := r.getUint32()
	return int32(v), err
}

func (r *reader) getUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) getInt64() (int64, error) {
	v, err := r.getUint64()
	return int64(v), err
}

func (r *reader) getFloat32() (float32, error) {
	v, err := r.getUint32()
	return math.Float32frombits(v), err
}

func (r *reader) getFloat64() (float64, error) {
	v, err := r.getUint64()
	return math.Float64frombits(v), err
}

// getBytes returns the next n bytes as a sub-slice (not a copy) of buf.
func (r *reader) getBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

var errShortBuffer = shortBufferError{}

type shortBufferError struct{}

func (shortBufferError) Error() string { return "buffer shorter than its own framing" }
