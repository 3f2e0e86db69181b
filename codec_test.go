package slow5

import "testing"

func TestCursorReaderRoundTrip(t *testing.T) {
	c := &cursor{}
	c.putUint8(0xAB)
	c.putInt8(-5)
	c.putUint16(0x1234)
	c.putInt16(-1234)
	c.putUint32(0xdeadbeef)
	c.putInt32(-123456)
	c.putUint64(0x0102030405060708)
	c.putInt64(-1)
	c.putFloat32(3.5)
	c.putFloat64(-2.25)
	c.putBytes([]byte("hello"))

	r := newReader(c.buf)
	if v, err := r.getUint8(); err != nil || v != 0xAB {
		t.Fatalf("getUint8 = %v, %v", v, err)
	}
	if v, err := r.getInt8(); err != nil || v != -5 {
		t.Fatalf("getInt8 = %v, %v", v, err)
	}
	if v, err := r.getUint16(); err != nil || v != 0x1234 {
		t.Fatalf("getUint16 = %v, %v", v, err)
	}
	if v, err := r.getInt16(); err != nil || v != -1234 {
		t.Fatalf("getInt16 = %v, %v", v, err)
	}
	if v, err := r.getUint32(); err != nil || v != 0xdeadbeef {
		t.Fatalf("getUint32 = %v, %v", v, err)
	}
	if v, err := r.getInt32(); err != nil || v != -123456 {
		t.Fatalf("getInt32 = %v, %v", v, err)
	}
	if v, err := r.getUint64(); err != nil || v != 0x0102030405060708 {
		t.Fatalf("getUint64 = %v, %v", v, err)
	}
	if v, err := r.getInt64(); err != nil || v != -1 {
		t.Fatalf("getInt64 = %v, %v", v, err)
	}
	if v, err := r.getFloat32(); err != nil || v != 3.5 {
		t.Fatalf("getFloat32 = %v, %v", v, err)
	}
	if v, err := r.getFloat64(); err != nil || v != -2.25 {
		t.Fatalf("getFloat64 = %v, %v", v, err)
	}
	b, err := r.getBytes(5)
	if err != nil || string(b) != "hello" {
		t.Fatalf("getBytes = %q, %v", b, err)
	}
	if r.remaining() != 0 {
		t.Fatalf("expected buffer fully consumed, %d bytes remaining", r.remaining())
	}
}

func TestReaderShortBuffer(t *testing.T) {
	r := newReader([]byte{1, 2, 3})
	_, err := r.getUint64()
	if err == nil {
		t.Fatal("expected error reading 8 bytes from a 3-byte buffer")
	}
	e, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Kind != ErrIO {
		t.Errorf("expected ErrIO, got %s", e.Kind)
	}
}

func TestReaderPartialConsumeLeavesRemainder(t *testing.T) {
	r := newReader([]byte{1, 2, 3, 4})
	if _, err := r.getUint16(); err != nil {
		t.Fatal(err)
	}
	if r.remaining() != 2 {
		t.Fatalf("expected 2 bytes remaining, got %d", r.remaining())
	}
}
