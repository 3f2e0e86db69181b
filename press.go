package slow5

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

/******************************************************************************

Compression pipeline (C2).

A press carries a method tag and whatever opaque state that method needs
(zlib keeps a pool of writers/readers under the hood via klauspost/compress;
the "none" method keeps nothing). Compression is applied per-record in
binary form and per-header in binary form; the boundary between records (or
between the header and the first record) is never crossed by a single
compressed image, so every record can be decompressed independently of its
neighbors - the property random access in file.go depends on.

The spec calls the mandatory compressed method "gzip", but describes its
wire format as "deflate with zlib wrapper": that is RFC 1950 zlib framing,
not RFC 1952 gzip framing. We follow the wire format as specified and keep
the CompressZlib name to avoid claiming a gzip container this package does
not write. See SPEC_FULL.md's DOMAIN STACK section for why klauspost/compress
backs this instead of the standard library's compress/zlib.

******************************************************************************/

// CompressMethod is the per-record/per-header compression method tag stored
// in a BLOW5 file.
type CompressMethod uint8

const (
	CompressNone CompressMethod = iota
	CompressZlib
)

func (m CompressMethod) String() string {
	switch m {
	case CompressNone:
		return "none"
	case CompressZlib:
		return "gzip"
	default:
		return "unknown"
	}
}

// press applies a CompressMethod to whole buffers. It is safe for reuse
// across many records within a single file handle but is not safe for
// concurrent use, matching the single-owner-per-handle model in §5.
type press struct {
	method CompressMethod
}

func newPress(method CompressMethod) *press {
	return &press{method: method}
}

// compress returns a newly allocated buffer holding input compressed under
// p's method. For CompressNone the returned buffer is a copy of input.
func (p *press) compress(input []byte) ([]byte, error) {
	switch p.method {
	case CompressNone:
		out := make([]byte, len(input))
		copy(out, input)
		return out, nil
	case CompressZlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(input); err != nil {
			return nil, newErr(ErrIO, err)
		}
		if err := w.Close(); err != nil {
			return nil, newErr(ErrIO, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, newErr(ErrFormatUnknown, errUnknownMethod(p.method))
	}
}

// depress returns a newly allocated buffer holding the plaintext form of
// input, which must have been produced by compress under the same method.
func (p *press) depress(input []byte) ([]byte, error) {
	switch p.method {
	case CompressNone:
		out := make([]byte, len(input))
		copy(out, input)
		return out, nil
	case CompressZlib:
		r, err := zlib.NewReader(bytes.NewReader(input))
		if err != nil {
			return nil, newErr(ErrIO, err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, newErr(ErrIO, err)
		}
		return out, nil
	default:
		return nil, newErr(ErrFormatUnknown, errUnknownMethod(p.method))
	}
}

type errUnknownMethod CompressMethod

func (m errUnknownMethod) Error() string {
	return "unknown compression method tag " + CompressMethod(m).String()
}
