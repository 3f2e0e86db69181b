package slow5

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

/******************************************************************************

File handle (C7).

Reader and Writer are the two entry points into a SLOW5/BLOW5 file: OpenRead
for sequential or random-access reading, Create for writing a brand new file.
There is no single "open for read or write" constructor (see SPEC_FULL.md's
resolution of this spec's second Open Question) - the two access patterns
need different buffering and the split keeps each type's invariants simple:
a Reader never mutates the file it opened, and a Writer only ever appends.

Random access always seeks with io.SeekStart against an offset recorded by
Index, never relative to the current position, so Get is safe to call in any
order and interleaved with Next.

******************************************************************************/

// Reader reads records from an existing SLOW5/BLOW5 file, sequentially via
// Next or randomly via Get (once an Index has been attached).
type Reader struct {
	f      *os.File
	path   string
	format Format
	header *Header
	method CompressMethod
	press  *press

	br     *bufio.Reader // text format only; nil for binary
	seqPos uint64        // start of the next sequential record
	idx    *Index
}

// OpenRead opens path, infers its format from the file extension, and
// parses its header. The returned Reader has no attached Index; call
// Attach(idx) before using Get.
func OpenRead(path string) (*Reader, error) {
	format := FormatFromPath(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(ErrIO, err)
	}
	r := &Reader{f: f, path: path, format: format}
	switch format {
	case FormatBinary:
		br := bufio.NewReaderSize(f, 1<<16)
		header, method, err := DecodeBinaryHeader(br)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.header = header
		r.method = method
		r.press = newPress(method)
		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			f.Close()
			return nil, newErr(ErrIO, err)
		}
		r.seqPos = uint64(pos) - uint64(br.Buffered())
	case FormatASCII:
		br := bufio.NewReaderSize(f, 1<<20)
		header, err := ParseTextHeader(br, 1<<20)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.header = header
		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			f.Close()
			return nil, newErr(ErrIO, err)
		}
		r.seqPos = uint64(pos) - uint64(br.Buffered())
	default:
		f.Close()
		return nil, newErr(ErrFormatUnknown, errUnrecognizedFormat(path))
	}
	return r, nil
}

type errUnrecognizedFormat string

func (e errUnrecognizedFormat) Error() string {
	return "unrecognized file extension: " + string(e)
}

// Header returns the file's parsed header.
func (r *Reader) Header() *Header { return r.header }

// Attach associates idx with r so that Get can perform random access. idx
// must have been built or loaded against the same underlying file.
func (r *Reader) Attach(idx *Index) { r.idx = idx }

// Next reads the next record in file order. It returns io.EOF (unwrapped)
// once every record, including the binary end-of-file marker, has been
// consumed.
func (r *Reader) Next() (*Record, error) {
	switch r.format {
	case FormatBinary:
		return r.nextBinary()
	case FormatASCII:
		return r.nextText()
	default:
		return nil, newErr(ErrFormatUnknown, errUnrecognizedFormat(r.path))
	}
}

// nextBinary, like nextText, always seeks to seqPos first: Get seeks the
// same *os.File to an arbitrary record's offset, and without reseeking here
// a Get call between two Next calls would silently resume sequential
// reading from the wrong place.
func (r *Reader) nextBinary() (*Record, error) {
	if _, err := r.f.Seek(int64(r.seqPos), io.SeekStart); err != nil {
		return nil, newErr(ErrIO, err)
	}
	prefix := make([]byte, 8)
	if _, err := io.ReadFull(r.f, prefix); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, newErr(ErrTruncated, err)
	}
	if string(prefix) == string(binEOFMagic[:]) {
		return nil, io.EOF
	}
	size := newReader(prefix).mustUint64()
	compressed := make([]byte, size)
	if _, err := io.ReadFull(r.f, compressed); err != nil {
		return nil, newErr(ErrTruncated, err)
	}
	r.seqPos += 8 + size
	payload, err := r.press.depress(compressed)
	if err != nil {
		return nil, err
	}
	return DecodeRecordBinary(payload, r.header.Schema)
}

// nextText always seeks to seqPos before reading, and rebuilds its bufio
// reader from there, so a Get call in between two Next calls (which seeks
// the same underlying *os.File to an arbitrary offset) can never leave
// sequential reading desynced from the position it last reached.
func (r *Reader) nextText() (*Record, error) {
	if _, err := r.f.Seek(int64(r.seqPos), io.SeekStart); err != nil {
		return nil, newErr(ErrIO, err)
	}
	r.br = bufio.NewReaderSize(r.f, 1<<20)
	line, err := r.br.ReadString('\n')
	if len(line) == 0 && err == io.EOF {
		return nil, io.EOF
	}
	if err != nil && err != io.EOF {
		return nil, newErr(ErrIO, err)
	}
	r.seqPos += uint64(len(line))
	trimmed := line
	if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '\n' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return DecodeRecordText(trimmed, r.header.Schema)
}

// Get performs a random-access read of the record with the given read id,
// using the attached Index. It fails with ErrNotFound if id is unknown.
func (r *Reader) Get(id string) (*Record, error) {
	if r.idx == nil {
		return nil, newErrID(ErrNotFound, id, errNoIndexAttached{})
	}
	entry, ok := r.idx.Get(id)
	if !ok {
		return nil, newErrID(ErrNotFound, id, errReadIDUnknown{})
	}
	switch r.format {
	case FormatBinary:
		if _, err := r.f.Seek(int64(entry.Offset)+8, io.SeekStart); err != nil {
			return nil, newErr(ErrIO, err)
		}
		compressed := make([]byte, entry.Size-8)
		if _, err := io.ReadFull(r.f, compressed); err != nil {
			return nil, newErr(ErrTruncated, err)
		}
		payload, err := r.press.depress(compressed)
		if err != nil {
			return nil, err
		}
		return DecodeRecordBinary(payload, r.header.Schema)
	case FormatASCII:
		if _, err := r.f.Seek(int64(entry.Offset), io.SeekStart); err != nil {
			return nil, newErr(ErrIO, err)
		}
		line := make([]byte, entry.Size)
		if _, err := io.ReadFull(r.f, line); err != nil {
			return nil, newErr(ErrTruncated, err)
		}
		trimmed := string(line)
		if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '\n' {
			trimmed = trimmed[:len(trimmed)-1]
		}
		return DecodeRecordText(trimmed, r.header.Schema)
	default:
		return nil, newErr(ErrFormatUnknown, errUnrecognizedFormat(r.path))
	}
}

type errNoIndexAttached struct{}

func (errNoIndexAttached) Error() string { return "no index attached to reader" }

type errReadIDUnknown struct{}

func (errReadIDUnknown) Error() string { return "read id not present in index" }

// Close releases the underlying file handle. It does not touch any attached
// Index; callers that built or loaded one manage its lifetime separately
// via Index.Unload.
func (r *Reader) Close() error {
	if err := r.f.Close(); err != nil {
		return newErr(ErrIO, err)
	}
	return nil
}

/******************************************************************************
Writer
******************************************************************************/

// Writer creates and appends to a new SLOW5/BLOW5 file. Every Add call
// appends one more record; there is no in-place update or delete, matching
// spec.md §5's append-only write model.
type Writer struct {
	f      *os.File
	path   string
	format Format
	header *Header
	method CompressMethod
	press  *press

	bw     *bufio.Writer // text format only; nil for binary
	offset uint64        // next write position, tracked rather than queried
	idx    *Index
}

// Create opens path for writing, writes header immediately, and returns a
// Writer ready for Add calls. The file must not already exist; Create never
// overwrites, matching the append-only model this type enforces thereafter.
func Create(path string, header *Header, method CompressMethod) (*Writer, error) {
	format := FormatFromPath(path)
	if format == FormatUnknown {
		return nil, newErr(ErrFormatUnknown, errUnrecognizedFormat(path))
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, newErr(ErrIO, err)
	}
	w := &Writer{f: f, path: path, format: format, header: header, method: method, idx: NewIndex()}
	switch format {
	case FormatBinary:
		w.press = newPress(method)
		encoded, err := EncodeBinaryHeader(header, method)
		if err != nil {
			f.Close()
			return nil, err
		}
		if _, err := f.Write(encoded); err != nil {
			f.Close()
			return nil, newErr(ErrIO, err)
		}
		w.offset = uint64(len(encoded))
	case FormatASCII:
		w.bw = bufio.NewWriterSize(f, 1<<20)
		n, err := WriteTextHeader(w.bw, header)
		if err != nil {
			f.Close()
			return nil, err
		}
		w.offset = uint64(n)
	}
	return w, nil
}

// Header returns the header this writer was created with.
func (w *Writer) Header() *Header { return w.header }

// Index returns the in-memory index built up by Add calls so far. The
// caller decides whether and when to persist it via the package-level
// Write function.
func (w *Writer) Index() *Index { return w.idx }

// Add appends rec, rejecting a duplicate read id against every id added so
// far in this writer's lifetime.
func (w *Writer) Add(rec *Record) error {
	if _, dup := w.idx.Get(rec.ReadID); dup {
		return newErrID(ErrDuplicate, rec.ReadID, fmt.Errorf("read id already written"))
	}
	switch w.format {
	case FormatBinary:
		return w.addBinary(rec)
	case FormatASCII:
		return w.addText(rec)
	default:
		return newErr(ErrFormatUnknown, errUnrecognizedFormat(w.path))
	}
}

func (w *Writer) addBinary(rec *Record) error {
	payload := EncodeRecordBinary(rec, w.header.Schema)
	compressed, err := w.press.compress(payload)
	if err != nil {
		return err
	}
	start := w.offset
	c := &cursor{}
	c.putUint64(uint64(len(compressed)))
	c.putBytes(compressed)
	if _, err := w.f.Write(c.buf); err != nil {
		return newErr(ErrIO, err)
	}
	w.offset += uint64(len(c.buf))
	return w.idx.Insert(rec.ReadID, start, w.offset-start)
}

func (w *Writer) addText(rec *Record) error {
	line, err := EncodeRecordText(rec, w.header.Schema)
	if err != nil {
		return err
	}
	start := w.offset
	if _, err := w.bw.Write(line); err != nil {
		return newErr(ErrIO, err)
	}
	w.offset += uint64(len(line))
	return w.idx.Insert(rec.ReadID, start, w.offset-start)
}

// Close flushes any buffered output, writes the binary end-of-file marker
// if applicable, and releases the file handle.
func (w *Writer) Close() error {
	if w.format == FormatBinary {
		if _, err := w.f.Write(binEOFMagic[:]); err != nil {
			return newErr(ErrIO, err)
		}
		w.offset += uint64(len(binEOFMagic))
	}
	if w.bw != nil {
		if err := w.bw.Flush(); err != nil {
			return newErr(ErrIO, err)
		}
	}
	if err := w.f.Close(); err != nil {
		return newErr(ErrIO, err)
	}
	return nil
}

/******************************************************************************
Convert
******************************************************************************/

// Convert re-emits every record of srcPath into dstPath under a (possibly
// different) format and compression method, preserving header attributes,
// read groups, and auxiliary schema. It builds dst's index as it writes and
// returns it so the caller can persist it alongside dst.
func Convert(srcPath, dstPath string, method CompressMethod) (*Index, error) {
	src, err := OpenRead(srcPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst, err := Create(dstPath, src.Header(), method)
	if err != nil {
		return nil, err
	}
	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			dst.Close()
			return nil, err
		}
		if err := dst.Add(rec); err != nil {
			dst.Close()
			return nil, err
		}
	}
	if err := dst.Close(); err != nil {
		return nil, err
	}
	return dst.Index(), nil
}
