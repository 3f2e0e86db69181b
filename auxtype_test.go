package slow5

import (
	"math"
	"testing"
)

func TestScalarOfAndIsArray(t *testing.T) {
	cases := []struct {
		k       AuxType
		isArray bool
		scalar  AuxType
	}{
		{Int8, false, 0},
		{Int8Array, true, Int8},
		{Float64Array, true, Float64},
		{CharArray, true, Char},
		{String, false, 0},
	}
	for _, c := range cases {
		if got := IsArray(c.k); got != c.isArray {
			t.Errorf("IsArray(%s) = %v, want %v", c.k, got, c.isArray)
		}
		if c.isArray {
			scalar, ok := ScalarOf(c.k)
			if !ok || scalar != c.scalar {
				t.Errorf("ScalarOf(%s) = %s, %v; want %s, true", c.k, scalar, ok, c.scalar)
			}
		}
	}
	if _, ok := ScalarOf(Int32); ok {
		t.Error("ScalarOf on a scalar kind should report ok=false")
	}
}

func TestSizeOf(t *testing.T) {
	cases := []struct {
		k    AuxType
		size int
	}{
		{Int8, 1}, {Uint8, 1}, {Char, 1},
		{Int16, 2}, {Uint16, 2},
		{Int32, 4}, {Uint32, 4}, {Float32, 4},
		{Int64, 8}, {Uint64, 8}, {Float64, 8},
		{Int32Array, 4},
		{String, 1},
	}
	for _, c := range cases {
		got, ok := SizeOf(c.k)
		if !ok || got != c.size {
			t.Errorf("SizeOf(%s) = %d, %v; want %d, true", c.k, got, ok, c.size)
		}
	}
}

func TestSentinelValues(t *testing.T) {
	s, err := sentinel(Int8)
	if err != nil || int8(s[0]) != math.MaxInt8 {
		t.Fatalf("sentinel(Int8) = %v, %v", s, err)
	}
	if _, err := sentinel(Int8Array); err == nil {
		t.Error("expected error taking a scalar sentinel of an array kind")
	}
	if _, err := sentinel(String); err == nil {
		t.Error("expected error taking a scalar sentinel of String")
	}

	f32, err := sentinel(Float32)
	if err != nil {
		t.Fatal(err)
	}
	if !isMissingScalar(Float32, f32) {
		t.Error("float32 sentinel should report as missing")
	}
}

func TestParseEmitTextRoundTrip(t *testing.T) {
	cases := []struct {
		k AuxType
		s string
	}{
		{Int32, "-42"},
		{Uint64, "18446744073709551614"},
		{Float64, "3.14159"},
		{Char, "x"},
		{Int16Array, "1,2,3"},
		{String, "some-read-tag"},
	}
	for _, c := range cases {
		value, length, err := parseText(c.k, c.s)
		if err != nil {
			t.Fatalf("parseText(%s, %q): %v", c.k, c.s, err)
		}
		got, err := emitText(c.k, value, length)
		if err != nil {
			t.Fatalf("emitText(%s): %v", c.k, err)
		}
		if got != c.s {
			t.Errorf("round trip %s: got %q, want %q", c.k, got, c.s)
		}
	}
}

func TestParseTextMissing(t *testing.T) {
	for _, k := range []AuxType{Int32, Float64, String, Int16Array} {
		value, length, err := parseText(k, ".")
		if err != nil {
			t.Fatalf("parseText(%s, \".\"): %v", k, err)
		}
		got, err := emitText(k, value, length)
		if err != nil {
			t.Fatal(err)
		}
		if got != "." {
			t.Errorf("missing value for %s round-tripped to %q, want \".\"", k, got)
		}
	}
}

func TestBinaryValueRoundTrip(t *testing.T) {
	c := &cursor{}
	writeBinaryValue(c, Int16Array, []byte{1, 0, 2, 0, 3, 0}, 3)
	r := newReader(c.buf)
	value, length, err := readBinaryValue(r, Int16Array)
	if err != nil {
		t.Fatal(err)
	}
	if length != 3 || len(value) != 6 {
		t.Fatalf("got length=%d len(value)=%d", length, len(value))
	}
}

func TestCharArrayNotString(t *testing.T) {
	if IsArray(String) {
		t.Error("String must not report as IsArray")
	}
	if String == CharArray {
		t.Error("String and CharArray must be distinct kinds")
	}
}
