package slow5

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

/******************************************************************************

Typed field system (C3).

A closed catalog of eleven scalar kinds and their array counterparts, plus a
distinguished string kind. Array kinds are laid out in the same declaration
order as their scalar counterparts so that ScalarOf can be computed
by subtracting numScalarKinds, per the invariant in spec.md §3.

Every auxiliary field in the record's aux_block (spec.md §4.5) is framed the
same way regardless of kind: an 8-byte length followed by length *
ElementSize(kind) bytes. For a scalar kind, length is always 1; for an array
kind (including string), a length of 0 is the sentinel for "missing".

******************************************************************************/

// AuxType is the closed enumeration of auxiliary field kinds.
type AuxType int

const numScalarKinds = 11

const (
	Int8 AuxType = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Char
)

const (
	Int8Array  = Int8 + numScalarKinds
	Int16Array = Int16 + numScalarKinds
	Int32Array = Int32 + numScalarKinds
	Int64Array = Int64 + numScalarKinds
	Uint8Array = Uint8 + numScalarKinds
	Uint16Array = Uint16 + numScalarKinds
	Uint32Array = Uint32 + numScalarKinds
	Uint64Array = Uint64 + numScalarKinds
	Float32Array = Float32 + numScalarKinds
	Float64Array = Float64 + numScalarKinds
	CharArray  = Char + numScalarKinds
)

// String is the distinguished length-prefixed character array type. It is
// not an "array of Char" as far as IsArray/ScalarOf are concerned, even
// though it shares CharArray's element size and on-disk shape, because its
// text form never uses comma separation (spec.md §4.3/§4.5).
const String AuxType = numScalarKinds * 2

// IsArray reports whether k is one of the array kinds (Int8Array..CharArray
// inclusive), not counting String.
func IsArray(k AuxType) bool {
	return k >= Int8Array && k < String
}

// ScalarOf returns the scalar kind underlying an array kind k. ok is false
// if k is not an array kind.
func ScalarOf(k AuxType) (AuxType, bool) {
	if !IsArray(k) {
		return 0, false
	}
	return k - numScalarKinds, true
}

// SizeOf returns the fixed per-element byte size of kind k. ok is false if
// k is not a recognized kind.
func SizeOf(k AuxType) (int, bool) {
	scalar := k
	if IsArray(k) {
		scalar, _ = ScalarOf(k)
	} else if k == String {
		scalar = Char
	}
	switch scalar {
	case Int8, Uint8, Char:
		return 1, true
	case Int16, Uint16:
		return 2, true
	case Int32, Uint32, Float32:
		return 4, true
	case Int64, Uint64, Float64:
		return 8, true
	default:
		return 0, false
	}
}

func (k AuxType) String() string {
	names := [...]string{
		"int8", "int16", "int32", "int64",
		"uint8", "uint16", "uint32", "uint64",
		"float32", "float64", "char",
		"int8*", "int16*", "int32*", "int64*",
		"uint8*", "uint16*", "uint32*", "uint64*",
		"float32*", "float64*", "char*",
	}
	if k == String {
		return "string"
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "unknown"
	}
	return names[k]
}

// sentinel returns the fixed-width byte pattern representing "missing" for
// a scalar kind k. Array kinds (including String) use length 0 instead; a
// sentinel byte pattern for them is meaningless.
func sentinel(k AuxType) ([]byte, error) {
	size, ok := SizeOf(k)
	if !ok || IsArray(k) || k == String {
		return nil, newErr(ErrTypeMismatch, fmt.Errorf("kind %s has no scalar sentinel", k))
	}
	c := &cursor{}
	switch k {
	case Int8:
		c.putInt8(math.MaxInt8)
	case Int16:
		c.putInt16(math.MaxInt16)
	case Int32:
		c.putInt32(math.MaxInt32)
	case Int64:
		c.putInt64(math.MaxInt64)
	case Uint8:
		c.putUint8(math.MaxUint8)
	case Uint16:
		c.putUint16(math.MaxUint16)
	case Uint32:
		c.putUint32(math.MaxUint32)
	case Uint64:
		c.putUint64(math.MaxUint64)
	case Float32:
		c.putFloat32(float32(math.NaN()))
	case Float64:
		c.putFloat64(math.NaN())
	case Char:
		c.putUint8(0)
	default:
		return nil, newErr(ErrTypeMismatch, fmt.Errorf("kind %s has no scalar sentinel", k))
	}
	if len(c.buf) != size {
		panic("sentinel size mismatch")
	}
	return c.buf, nil
}

// isMissingScalar reports whether a scalar value's bytes equal that kind's
// sentinel pattern.
func isMissingScalar(k AuxType, value []byte) bool {
	s, err := sentinel(k)
	if err != nil {
		return false
	}
	if len(s) != len(value) {
		return false
	}
	for i := range s {
		// NaN != NaN bitwise comparisons still work here since the sentinel
		// is a fixed quiet-NaN bit pattern, not "any NaN".
		if s[i] != value[i] {
			return false
		}
	}
	return true
}

// parseText parses a single auxiliary value in text form (spec.md §4.3): a
// scalar is one token, an array is comma-separated tokens, and a string is
// the raw token. "." denotes the missing value for any kind.
func parseText(k AuxType, s string) (value []byte, length int, err error) {
	if s == "." {
		if k == String || IsArray(k) {
			return nil, 0, nil
		}
		b, serr := sentinel(k)
		if serr != nil {
			return nil, 0, serr
		}
		return b, 1, nil
	}
	if k == String {
		return []byte(s), len(s), nil
	}
	scalar := k
	if IsArray(k) {
		scalar, _ = ScalarOf(k)
		if s == "" {
			return nil, 0, nil
		}
		parts := strings.Split(s, ",")
		c := &cursor{}
		for _, p := range parts {
			b, _, err := parseScalarText(scalar, p)
			if err != nil {
				return nil, 0, err
			}
			c.putBytes(b)
		}
		return c.buf, len(parts), nil
	}
	return parseScalarText(scalar, s)
}

func parseScalarText(scalar AuxType, s string) ([]byte, int, error) {
	c := &cursor{}
	switch scalar {
	case Int8:
		v, err := strconv.ParseInt(s, 10, 8)
		if err != nil {
			return nil, 0, newErr(ErrParse, err)
		}
		c.putInt8(int8(v))
	case Int16:
		v, err := strconv.ParseInt(s, 10, 16)
		if err != nil {
			return nil, 0, newErr(ErrParse, err)
		}
		c.putInt16(int16(v))
	case Int32:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, 0, newErr(ErrParse, err)
		}
		c.putInt32(int32(v))
	case Int64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, 0, newErr(ErrParse, err)
		}
		c.putInt64(v)
	case Uint8:
		v, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return nil, 0, newErr(ErrParse, err)
		}
		c.putUint8(uint8(v))
	case Uint16:
		v, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return nil, 0, newErr(ErrParse, err)
		}
		c.putUint16(uint16(v))
	case Uint32:
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, 0, newErr(ErrParse, err)
		}
		c.putUint32(uint32(v))
	case Uint64:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, 0, newErr(ErrParse, err)
		}
		c.putUint64(v)
	case Float32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, 0, newErr(ErrParse, err)
		}
		c.putFloat32(float32(v))
	case Float64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, 0, newErr(ErrParse, err)
		}
		c.putFloat64(v)
	case Char:
		if len(s) != 1 {
			return nil, 0, newErr(ErrParse, fmt.Errorf("char value must be one byte, got %q", s))
		}
		c.putUint8(s[0])
	default:
		return nil, 0, newErr(ErrTypeMismatch, fmt.Errorf("kind %s is not scalar", scalar))
	}
	return c.buf, 1, nil
}

// emitText is the inverse of parseText.
func emitText(k AuxType, value []byte, length int) (string, error) {
	if length == 0 {
		return ".", nil
	}
	if k == String {
		return string(value), nil
	}
	if IsArray(k) {
		scalar, _ := ScalarOf(k)
		size, _ := SizeOf(scalar)
		var parts []string
		r := newReader(value)
		for i := 0; i < length; i++ {
			elem, err := r.getBytes(size)
			if err != nil {
				return "", err
			}
			s, err := emitScalarText(scalar, elem)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	}
	if isMissingScalar(k, value) {
		return ".", nil
	}
	return emitScalarText(k, value)
}

func emitScalarText(scalar AuxType, b []byte) (string, error) {
	r := newReader(b)
	switch scalar {
	case Int8:
		v, err := r.getInt8()
		return strconv.FormatInt(int64(v), 10), err
	case Int16:
		v, err := r.getInt16()
		return strconv.FormatInt(int64(v), 10), err
	case Int32:
		v, err := r.getInt32()
		return strconv.FormatInt(int64(v), 10), err
	case Int64:
		v, err := r.getInt64()
		return strconv.FormatInt(v, 10), err
	case Uint8:
		v, err := r.getUint8()
		return strconv.FormatUint(uint64(v), 10), err
	case Uint16:
		v, err := r.getUint16()
		return strconv.FormatUint(uint64(v), 10), err
	case Uint32:
		v, err := r.getUint32()
		return strconv.FormatUint(uint64(v), 10), err
	case Uint64:
		v, err := r.getUint64()
		return strconv.FormatUint(v, 10), err
	case Float32:
		v, err := r.getFloat32()
		return strconv.FormatFloat(float64(v), 'g', -1, 32), err
	case Float64:
		v, err := r.getFloat64()
		return strconv.FormatFloat(v, 'g', -1, 64), err
	case Char:
		v, err := r.getUint8()
		return string([]byte{v}), err
	default:
		return "", newErr(ErrTypeMismatch, fmt.Errorf("kind %s is not scalar", scalar))
	}
}

// readBinaryValue reads one auxiliary value (length-prefixed, per spec.md §4.5)
// from r.
func readBinaryValue(r *reader, k AuxType) (value []byte, length int, err error) {
	size, ok := SizeOf(k)
	if !ok {
		return nil, 0, newErr(ErrTypeMismatch, fmt.Errorf("unknown kind %d", int(k)))
	}
	l, err := r.getUint64()
	if err != nil {
		return nil, 0, err
	}
	b, err := r.getBytes(int(l) * size)
	if err != nil {
		return nil, 0, err
	}
	return b, int(l), nil
}

// writeBinaryValue writes one auxiliary value (length-prefixed) to c.
func writeBinaryValue(c *cursor, k AuxType, value []byte, length int) {
	c.putUint64(uint64(length))
	c.putBytes(value)
}
