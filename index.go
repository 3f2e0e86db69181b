package slow5

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
)

/******************************************************************************

Index (C6).

The index maps a read identifier to the byte offset and byte length of that
read's complete on-disk representation, including the binary size prefix
(spec.md §3's Index entry definition) or the full text line. It is persisted
as a sidecar file at <path>.idx.

Building an index over a BLOW5 file never decompresses a full record: only
the read_id length and bytes are pulled out of the per-record compressed
blob (grounded on original_source/src/slow5_idx.c, which does the same with
zlib's streaming inflate), so a multi-gigabyte raw-signal array is never
materialized just to learn its read_id.

******************************************************************************/

// IndexEntry is {offset, size} for one read.
type IndexEntry struct {
	Offset uint64
	Size   uint64
}

// Index is the ordered read-id -> IndexEntry map for one host file.
type Index struct {
	ids     []string
	entries map[string]IndexEntry
	sidecar *os.File
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]IndexEntry)}
}

// Len returns the number of entries.
func (idx *Index) Len() int { return len(idx.ids) }

// IDs returns read identifiers in insertion order.
func (idx *Index) IDs() []string {
	out := make([]string, len(idx.ids))
	copy(out, idx.ids)
	return out
}

// Get looks up id, returning ok=false (not a Go error - a lookup miss is the
// ordinary, recoverable case spec.md §7 calls out) if absent.
func (idx *Index) Get(id string) (IndexEntry, bool) {
	e, ok := idx.entries[id]
	return e, ok
}

// Insert adds a new (id, offset, size) triple, rejecting a duplicate id.
func (idx *Index) Insert(id string, offset, size uint64) error {
	if _, dup := idx.entries[id]; dup {
		return newErrID(ErrDuplicate, id, fmt.Errorf("read id already indexed"))
	}
	if idx.entries == nil {
		idx.entries = make(map[string]IndexEntry)
	}
	idx.ids = append(idx.ids, id)
	idx.entries[id] = IndexEntry{Offset: offset, Size: size}
	return nil
}

// Unload closes the sidecar file handle, if one is held, and frees the
// index's entries.
func (idx *Index) Unload() error {
	var err error
	if idx.sidecar != nil {
		err = idx.sidecar.Close()
		idx.sidecar = nil
	}
	idx.ids = nil
	idx.entries = nil
	return err
}

func sidecarPath(hostPath string) string { return hostPath + ".idx" }

/******************************************************************************
Binary sidecar format:

	magic(8) | version(3) | pad-to-fixed-header-size
	 | { read_id_len(u16) | read_id | offset(u64) | size(u64) }*
	 | eof-marker(8)
******************************************************************************/

const idxHeaderPad = 5 // pads {magic(8)+version(3)} out to a 16-byte fixed header

// Load reads the sidecar index for hostPath, returning an error if it does
// not exist or is malformed. Use Build to create one from scratch.
func Load(hostPath string) (*Index, error) {
	f, err := os.Open(sidecarPath(hostPath))
	if err != nil {
		return nil, newErr(ErrIO, err)
	}
	prefix := make([]byte, 8+3+idxHeaderPad)
	if _, err := io.ReadFull(f, prefix); err != nil {
		f.Close()
		return nil, newErr(ErrTruncated, err)
	}
	pr := newReader(prefix)
	magic, _ := pr.getBytes(8)
	if string(magic) != string(idxMagic[:]) {
		f.Close()
		return nil, newErr(ErrBadMagic, fmt.Errorf("bad index magic"))
	}
	major, _ := pr.getUint8()
	minor, _ := pr.getUint8()
	patch, _ := pr.getUint8()
	version := Version{Major: major, Minor: minor, Patch: patch}
	if version.exceeds(MaxVersion) {
		f.Close()
		return nil, newErr(ErrVersion, fmt.Errorf("index version %s exceeds maximum supported %s", version, MaxVersion))
	}

	idx := NewIndex()
	br := bufio.NewReader(f)
	for {
		peek, err := br.Peek(8)
		if err != nil {
			f.Close()
			return nil, newErr(ErrTruncated, err)
		}
		if bytes.Equal(peek, idxEOFMagic[:]) {
			if _, err := br.Discard(8); err != nil {
				f.Close()
				return nil, newErr(ErrIO, err)
			}
			break
		}
		idLenBytes := make([]byte, 2)
		if _, err := io.ReadFull(br, idLenBytes); err != nil {
			f.Close()
			return nil, newErr(ErrTruncated, err)
		}
		idLen := int(newReader(idLenBytes).mustUint16())
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(br, idBytes); err != nil {
			f.Close()
			return nil, newErr(ErrTruncated, err)
		}
		rest := make([]byte, 16)
		if _, err := io.ReadFull(br, rest); err != nil {
			f.Close()
			return nil, newErr(ErrTruncated, err)
		}
		rr := newReader(rest)
		offset, _ := rr.getUint64()
		size, _ := rr.getUint64()
		if err := idx.Insert(string(idBytes), offset, size); err != nil {
			f.Close()
			return nil, err
		}
	}
	idx.sidecar = f
	return idx, nil
}

var idxEOFMagic = [8]byte{'S', 'L', '5', 'I', 'E', 'O', 'F', '\n'}

// Write emits idx as a binary sidecar for hostPath. It builds the whole file
// in memory and writes it with a single os.WriteFile call; there is no
// temporary file and rename, so a concurrent reader can observe a
// partially-written sidecar.
func Write(hostPath string, idx *Index) error {
	c := &cursor{}
	c.putBytes(idxMagic[:])
	c.putUint8(MaxVersion.Major)
	c.putUint8(MaxVersion.Minor)
	c.putUint8(MaxVersion.Patch)
	c.putBytes(make([]byte, idxHeaderPad))
	for _, id := range idx.ids {
		e := idx.entries[id]
		putString16(c, id)
		c.putUint64(e.Offset)
		c.putUint64(e.Size)
	}
	c.putBytes(idxEOFMagic[:])

	path := sidecarPath(hostPath)
	if err := os.WriteFile(path, c.buf, 0o644); err != nil {
		return newErr(ErrIO, err)
	}
	return nil
}

/******************************************************************************
Index build: streaming scan of the host file.
******************************************************************************/

// Build scans hostPath from the start of its records (immediately after the
// header) and returns a freshly built index, preserving scan order and
// rejecting duplicate identifiers.
func Build(hostPath string, format Format, maxLineLength int) (*Index, error) {
	f, err := os.Open(hostPath)
	if err != nil {
		return nil, newErr(ErrIO, err)
	}
	defer f.Close()

	idx := NewIndex()
	switch format {
	case FormatBinary:
		br := bufio.NewReaderSize(f, 1<<16)
		_, method, err := DecodeBinaryHeader(br)
		if err != nil {
			return nil, err
		}
		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, newErr(ErrIO, err)
		}
		pos -= int64(br.Buffered())
		if err := buildBinaryIndex(f, pos, method, idx); err != nil {
			return nil, err
		}
	case FormatASCII:
		br := bufio.NewReaderSize(f, maxLineLength)
		if _, err := ParseTextHeader(br, maxLineLength); err != nil {
			return nil, err
		}
		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, newErr(ErrIO, err)
		}
		pos -= int64(br.Buffered())
		if err := buildTextIndex(br, pos, idx); err != nil {
			return nil, err
		}
	default:
		return nil, newErr(ErrFormatUnknown, fmt.Errorf("unrecognized format for %q", hostPath))
	}
	return idx, nil
}

func buildTextIndex(br *bufio.Reader, pos int64, idx *Index) error {
	for {
		line, err := br.ReadString('\n')
		if len(line) == 0 && err == io.EOF {
			return nil
		}
		tab := indexByte(line, '\t')
		if tab < 0 {
			return newErr(ErrParse, fmt.Errorf("record line missing tabs at offset %d", pos))
		}
		id := line[:tab]
		if err := idx.Insert(id, uint64(pos), uint64(len(line))); err != nil {
			return err
		}
		pos += int64(len(line))
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return newErr(ErrIO, err)
		}
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// buildBinaryIndex always seeks to offset before each iteration rather than
// trusting f's position left over from the previous peek, the same
// discipline file.go's nextBinary follows: peekBinaryReadID leaves f just
// past the record's size prefix, not at the start of the next record.
func buildBinaryIndex(f *os.File, offset int64, method CompressMethod, idx *Index) error {
	for {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return newErr(ErrIO, err)
		}
		peek := make([]byte, 8)
		n, err := io.ReadFull(f, peek)
		if n == 0 && err == io.EOF {
			return newErr(ErrTruncated, fmt.Errorf("missing end-of-file marker"))
		}
		if err != nil {
			return newErr(ErrTruncated, err)
		}
		if bytes.Equal(peek, binEOFMagic[:]) {
			return nil
		}
		recordSize := newReader(peek).mustUint64()

		id, err := peekBinaryReadID(f, method, int64(recordSize))
		if err != nil {
			return err
		}
		if err := idx.Insert(id, uint64(offset), uint64(8+int64(recordSize))); err != nil {
			return err
		}
		offset += 8 + int64(recordSize)
	}
}

// peekBinaryReadID decompresses only as much of one compressed record blob
// as it takes to recover the read_id prefix: for CompressZlib it wraps a
// zlib reader over a SectionReader limited to exactly recordSize compressed
// bytes and lets flate's streaming inflate stop the moment the read_id
// bytes are in hand, never touching the raw signal or aux block that follow
// in the same compressed stream. The section reader reads through ReadAt, so
// f's own position is left unchanged; the caller always re-seeks explicitly
// afterward.
func peekBinaryReadID(f *os.File, method CompressMethod, recordSize int64) (string, error) {
	start, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", newErr(ErrIO, err)
	}
	section := io.NewSectionReader(f, start, recordSize)

	var src io.Reader = section
	switch method {
	case CompressZlib:
		zr, err := zlib.NewReader(section)
		if err != nil {
			return "", newErr(ErrIO, err)
		}
		defer zr.Close()
		src = zr
	case CompressNone:
		// src already reads the plaintext record directly.
	default:
		return "", newErr(ErrFormatUnknown, errUnknownMethod(method))
	}

	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(src, lenBuf); err != nil {
		return "", newErr(ErrTruncated, err)
	}
	idLen := int(newReader(lenBuf).mustUint16())
	idBuf := make([]byte, idLen)
	if _, err := io.ReadFull(src, idBuf); err != nil {
		return "", newErr(ErrTruncated, err)
	}
	return string(idBuf), nil
}

// mustUint16/mustUint64 panic on short input; only used where the caller has
// already guaranteed enough bytes are present.
func (r *reader) mustUint16() uint16 {
	v, err := r.getUint16()
	if err != nil {
		panic(err)
	}
	return v
}

func (r *reader) mustUint64() uint64 {
	v, err := r.getUint64()
	if err != nil {
		panic(err)
	}
	return v
}
