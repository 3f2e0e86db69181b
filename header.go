package slow5

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

/******************************************************************************

Header model (C4).

A header carries the format version, the per-read-group attribute table, and
the auxiliary field schema shared by every record in the file. Once a header
has been parsed or finalized for writing, its schema is immutable for that
file's lifetime (spec.md §3's Auxiliary schema invariant) - AuxSchema has no
exported mutator once wrapped in a Header returned from Parse.

Binary framing (spec.md §6's literal, bit-exact BLOW5_FILE layout):

	magic(8) | version(3) | pad(4) | method(1) | reserved(3)
	| compress(header_data_block | aux_schema_block)

Unlike a record, the header carries no outer length field: header_data_block
and aux_schema_block are themselves self-describing (every string is
length-prefixed, every list is count-prefixed), so a reader parses them
field-by-field directly off the plaintext stream and stops exactly where the
encoder stopped writing - the same way original_source tracks the first
record's offset by position rather than by a stored header length. Under
CompressZlib, that plaintext stream comes from a zlib reader wrapped directly
around the file's own buffered reader, whose self-terminating deflate framing
tells the decoder where the compressed block ends; no invented length or end
marker is needed either way.

DecodeBinaryHeader validates magic and version before reading one byte past
the version pad, so an over-max version is reported without touching the
compression method, reserved bytes, or either block (spec.md §8 scenario 6).

******************************************************************************/

// Version is a {major, minor, patch} triple of 8-bit version components.
type Version struct {
	Major, Minor, Patch uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// exceeds reports whether v is greater than max in any component, each of
// major, minor, and patch being compared on its own.
func (v Version) exceeds(max Version) bool {
	return v.Major > max.Major || v.Minor > max.Minor || v.Patch > max.Patch
}

// MaxVersion is the highest file version this library can read.
var MaxVersion = Version{Major: 0, Minor: 3, Patch: 0}

// CurrentVersion is the version this library writes.
var CurrentVersion = MaxVersion

// Format is the on-disk representation a file uses.
type Format int

const (
	FormatUnknown Format = iota
	FormatASCII
	FormatBinary
)

// FormatFromPath infers a Format from a path's suffix, returning
// FormatUnknown if the suffix is not recognized.
func FormatFromPath(path string) Format {
	switch {
	case strings.HasSuffix(path, ".slow5"):
		return FormatASCII
	case strings.HasSuffix(path, ".blow5"):
		return FormatBinary
	default:
		return FormatUnknown
	}
}

var (
	binHeaderMagic = [8]byte{'S', 'L', '5', 'B', 'L', 'O', 'W', '5'}
	binEOFMagic    = [8]byte{'S', 'L', '5', 'E', 'O', 'F', '\n', '\x00'}
	idxMagic       = [8]byte{'S', 'L', '5', 'I', 'D', 'X', '\x00', '\x00'}
)

const headerPadSize = 4

// AuxField describes one column of the auxiliary schema.
type AuxField struct {
	Name        string
	Type        AuxType
	ElementSize int
}

// AuxSchema is the ordered, name-unique list of auxiliary fields shared by
// every record in a file.
type AuxSchema struct {
	fields []AuxField
	index  map[string]int
}

// NewAuxSchema builds a schema from an ordered field list, rejecting
// duplicate names.
func NewAuxSchema(fields []AuxField) (*AuxSchema, error) {
	s := &AuxSchema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if _, dup := s.index[f.Name]; dup {
			return nil, newErr(ErrParse, fmt.Errorf("duplicate auxiliary field name %q", f.Name))
		}
		size, ok := SizeOf(f.Type)
		if !ok {
			return nil, newErr(ErrTypeMismatch, fmt.Errorf("unknown auxiliary type for field %q", f.Name))
		}
		f.ElementSize = size
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// Len returns the number of fields in the schema.
func (s *AuxSchema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Fields returns the schema's fields in wire order.
func (s *AuxSchema) Fields() []AuxField {
	if s == nil {
		return nil
	}
	return s.fields
}

// IndexOf returns the wire-order position of name, or ok=false if absent.
func (s *AuxSchema) IndexOf(name string) (int, bool) {
	if s == nil {
		return 0, false
	}
	i, ok := s.index[name]
	return i, ok
}

// Header is {version, read-group count, header-data, auxiliary schema}.
type Header struct {
	Version Version
	Schema  *AuxSchema

	attrNames []string
	attrSet   map[string]bool
	groups    []map[string]string
}

// NewHeader returns an empty header at the given version with no read
// groups, no attributes, and no auxiliary schema.
func NewHeader(version Version) *Header {
	return &Header{
		Version: version,
		attrSet: make(map[string]bool),
	}
}

// NumReadGroups returns the number of read groups currently declared.
func (h *Header) NumReadGroups() int { return len(h.groups) }

// AttributeNames returns the union of attribute names across all read
// groups, in the order they were first added.
func (h *Header) AttributeNames() []string {
	out := make([]string, len(h.attrNames))
	copy(out, h.attrNames)
	return out
}

// AddAttribute adds name to the attribute-name set. It is idempotent: a
// name already present is left untouched, and every existing group implicitly
// reports the missing value for it until Set is called.
func (h *Header) AddAttribute(name string) {
	if h.attrSet == nil {
		h.attrSet = make(map[string]bool)
	}
	if h.attrSet[name] {
		return
	}
	h.attrSet[name] = true
	h.attrNames = append(h.attrNames, name)
}

// AddReadGroup appends a new read group and returns its dense 0..N-1 index.
// Every attribute already known to the header reports the missing value for
// the new group until Set is called.
func (h *Header) AddReadGroup() int {
	h.groups = append(h.groups, make(map[string]string))
	return len(h.groups) - 1
}

// Set assigns value to attr for the given read group. It fails if attr was
// never added via AddAttribute or group is out of range.
func (h *Header) Set(attr string, value string, group int) error {
	if !h.attrSet[attr] {
		return newErr(ErrNotFound, fmt.Errorf("unknown attribute %q", attr))
	}
	if group < 0 || group >= len(h.groups) {
		return newErr(ErrNotFound, fmt.Errorf("read group %d out of range", group))
	}
	if value == "" {
		delete(h.groups[group], attr)
		return nil
	}
	h.groups[group][attr] = value
	return nil
}

// Get returns attr's value for the given read group, or "" if it is unset
// (the missing-value convention for header string attributes, spec.md §6).
func (h *Header) Get(attr string, group int) (string, error) {
	if group < 0 || group >= len(h.groups) {
		return "", newErr(ErrNotFound, fmt.Errorf("read group %d out of range", group))
	}
	return h.groups[group][attr], nil
}

/******************************************************************************
Text form
******************************************************************************/

const auxTypeNameTag = "#char*" // retained column for the primary type-row sentinel, matching bio/slow5's parser

var primaryTypeNames = []string{
	"uint32_t", "double", "double", "double", "double", "uint64_t", "int16_t*",
}

var primaryColumnNames = []string{
	"read_group", "digitisation", "offset", "range", "sampling_rate", "len_raw_signal", "raw_signal",
}

func auxTypeName(t AuxType) string {
	switch t {
	case Int8:
		return "int8_t"
	case Int16:
		return "int16_t"
	case Int32:
		return "int32_t"
	case Int64:
		return "int64_t"
	case Uint8:
		return "uint8_t"
	case Uint16:
		return "uint16_t"
	case Uint32:
		return "uint32_t"
	case Uint64:
		return "uint64_t"
	case Float32:
		return "float"
	case Float64:
		return "double"
	case Char:
		return "char"
	case String:
		return "char*"
	default:
		if scalar, ok := ScalarOf(t); ok {
			return auxTypeName(scalar) + "*"
		}
		return "unknown"
	}
}

// ParseTextHeader reads a SLOW5 text header from r, consuming up through
// (and including) the column-name line.
func ParseTextHeader(r *bufio.Reader, maxLineLength int) (*Header, error) {
	var header *Header
	var numReadGroups int
	haveNumReadGroups := false
	var auxNames []string
	var auxTypes []AuxType

	for {
		lineBytes, err := r.ReadSlice('\n')
		if err != nil && err != io.EOF {
			return nil, newErr(ErrIO, err)
		}
		line := strings.TrimRight(string(lineBytes), "\n")
		if line == "" && err == io.EOF {
			return nil, newErr(ErrParse, fmt.Errorf("unexpected end of file while reading header"))
		}
		values := strings.Split(line, "\t")
		if len(values) < 2 {
			return nil, newErr(ErrParse, fmt.Errorf("header line missing tabs: %q", line))
		}

		if !haveNumReadGroups {
			switch values[0] {
			case "#slow5_version":
				v, verr := parseVersion(values[1])
				if verr != nil {
					return nil, verr
				}
				header = NewHeader(v)
			case "#num_read_groups":
				n, nerr := strconv.ParseUint(values[1], 10, 32)
				if nerr != nil {
					return nil, newErr(ErrParse, nerr)
				}
				numReadGroups = int(n)
				haveNumReadGroups = true
				for i := 0; i < numReadGroups; i++ {
					header.AddReadGroup()
				}
			default:
				return nil, newErr(ErrParse, fmt.Errorf("expected #slow5_version/#num_read_groups, got %q", values[0]))
			}
			continue
		}

		if values[0] == auxTypeNameTag {
			// Type row: primary types followed by auxiliary types.
			if len(values) > len(primaryTypeNames)+1 {
				for _, tv := range values[len(primaryTypeNames)+1:] {
					t, terr := auxTypeFromName(tv)
					if terr != nil {
						return nil, terr
					}
					auxTypes = append(auxTypes, t)
				}
			}
			continue
		}
		if values[0] == "#read_id" {
			if len(values) > len(primaryColumnNames)+1 {
				auxNames = append(auxNames, values[len(primaryColumnNames)+1:]...)
			}
			if len(auxNames) > 0 {
				fields := make([]AuxField, len(auxNames))
				for i, name := range auxNames {
					fields[i] = AuxField{Name: name, Type: auxTypes[i]}
				}
				schema, serr := NewAuxSchema(fields)
				if serr != nil {
					return nil, serr
				}
				header.Schema = schema
			}
			break
		}

		if len(values) != numReadGroups+1 {
			return nil, newErr(ErrParse, fmt.Errorf("attribute row %q needs %d values, got %d", values[0], numReadGroups+1, len(values)-1))
		}
		header.AddAttribute(values[0])
		for g := 0; g < numReadGroups; g++ {
			v := values[g+1]
			if v == "." {
				v = ""
			}
			if err := header.Set(values[0], v, g); err != nil {
				return nil, err
			}
		}
	}
	if header == nil {
		return nil, newErr(ErrParse, fmt.Errorf("missing #slow5_version line"))
	}
	return header, nil
}

func auxTypeFromName(name string) (AuxType, error) {
	array := strings.HasSuffix(name, "*")
	base := strings.TrimSuffix(name, "*")
	var scalar AuxType
	switch base {
	case "int8_t":
		scalar = Int8
	case "int16_t":
		scalar = Int16
	case "int32_t":
		scalar = Int32
	case "int64_t":
		scalar = Int64
	case "uint8_t":
		scalar = Uint8
	case "uint16_t":
		scalar = Uint16
	case "uint32_t":
		scalar = Uint32
	case "uint64_t":
		scalar = Uint64
	case "float":
		scalar = Float32
	case "double":
		scalar = Float64
	case "char":
		if array {
			return String, nil
		}
		scalar = Char
	default:
		return 0, newErr(ErrParse, fmt.Errorf("unknown auxiliary type name %q", name))
	}
	if array {
		return scalar + numScalarKinds, nil
	}
	return scalar, nil
}

func parseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, newErr(ErrParse, fmt.Errorf("malformed version %q", s))
	}
	var nums [3]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return Version{}, newErr(ErrParse, err)
		}
		nums[i] = uint8(n)
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// WriteTextHeader emits header in text form to w.
func WriteTextHeader(w io.Writer, header *Header) (int64, error) {
	var written int64
	n, err := fmt.Fprintf(w, "#slow5_version\t%s\n", header.Version)
	written += int64(n)
	if err != nil {
		return written, newErr(ErrIO, err)
	}
	n, err = fmt.Fprintf(w, "#num_read_groups\t%d\n", header.NumReadGroups())
	written += int64(n)
	if err != nil {
		return written, newErr(ErrIO, err)
	}

	names := header.AttributeNames()
	sort.Strings(names)
	for _, name := range names {
		var row strings.Builder
		row.WriteString(name)
		for g := 0; g < header.NumReadGroups(); g++ {
			v, _ := header.Get(name, g)
			if v == "" {
				v = "."
			}
			row.WriteByte('\t')
			row.WriteString(v)
		}
		n, err = fmt.Fprintln(w, row.String())
		written += int64(n)
		if err != nil {
			return written, newErr(ErrIO, err)
		}
	}

	typeRow := append([]string{auxTypeNameTag}, primaryTypeNames...)
	nameRow := append([]string{"#read_id"}, primaryColumnNames...)
	for _, f := range header.Schema.Fields() {
		typeRow = append(typeRow, auxTypeName(f.Type))
		nameRow = append(nameRow, f.Name)
	}
	n, err = fmt.Fprintln(w, strings.Join(typeRow, "\t"))
	written += int64(n)
	if err != nil {
		return written, newErr(ErrIO, err)
	}
	n, err = fmt.Fprintln(w, strings.Join(nameRow, "\t"))
	written += int64(n)
	if err != nil {
		return written, newErr(ErrIO, err)
	}
	return written, nil
}

/******************************************************************************
Binary form
******************************************************************************/

// encodeHeaderDataBlock encodes the header-data-block (spec.md §4.4).
func encodeHeaderDataBlock(h *Header) []byte {
	c := &cursor{}
	c.putUint32(uint32(h.NumReadGroups()))
	names := h.AttributeNames()
	c.putUint32(uint32(len(names)))
	for _, name := range names {
		putString16(c, name)
	}
	for g := 0; g < h.NumReadGroups(); g++ {
		for _, name := range names {
			v, _ := h.Get(name, g)
			putString16(c, v)
		}
	}
	return c.buf
}

func encodeAuxSchemaBlock(s *AuxSchema) []byte {
	c := &cursor{}
	fields := s.Fields()
	c.putUint32(uint32(len(fields)))
	for _, f := range fields {
		putString16(c, f.Name)
		c.putUint8(uint8(f.Type))
	}
	return c.buf
}

func putString16(c *cursor, s string) {
	c.putUint16(uint16(len(s)))
	c.putBytes([]byte(s))
}

// byteGetter is the subset of reader's fixed-width get methods that
// getString16 needs; both reader (over an in-memory slice) and streamReader
// (over an io.Reader) implement it.
type byteGetter interface {
	getUint16() (uint16, error)
	getBytes(n int) ([]byte, error)
}

func getString16(r byteGetter) (string, error) {
	l, err := r.getUint16()
	if err != nil {
		return "", err
	}
	b, err := r.getBytes(int(l))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// streamReader reads reader's fixed-width shape directly off an io.Reader
// instead of an in-memory slice. The header-data and aux-schema blocks carry
// no outer length, so DecodeBinaryHeader parses them as they arrive rather
// than slurping a known-size buffer first.
type streamReader struct{ r io.Reader }

func (s streamReader) getUint8() (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(s.r, b[:]); err != nil {
		return 0, newErr(ErrTruncated, err)
	}
	return b[0], nil
}

func (s streamReader) getUint16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(s.r, b[:]); err != nil {
		return 0, newErr(ErrTruncated, err)
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (s streamReader) getUint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(s.r, b[:]); err != nil {
		return 0, newErr(ErrTruncated, err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (s streamReader) getBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(s.r, b); err != nil {
		return nil, newErr(ErrTruncated, err)
	}
	return b, nil
}

// EncodeBinaryHeader emits header in binary form, compressed under method.
func EncodeBinaryHeader(header *Header, method CompressMethod) ([]byte, error) {
	c := &cursor{}
	c.putBytes(binHeaderMagic[:])
	c.putUint8(header.Version.Major)
	c.putUint8(header.Version.Minor)
	c.putUint8(header.Version.Patch)
	c.putBytes(make([]byte, headerPadSize))
	c.putUint8(uint8(method))
	c.putBytes(make([]byte, 3))

	payload := append(encodeHeaderDataBlock(header), encodeAuxSchemaBlock(header.Schema)...)
	p := newPress(method)
	compressed, err := p.compress(payload)
	if err != nil {
		return nil, err
	}
	c.putBytes(compressed)
	return c.buf, nil
}

// DecodeBinaryHeader reads a binary header from br, returning the header and
// the file's record compression method. br must be the same buffered reader
// a caller will go on to read records from: the header-data and aux-schema
// blocks carry no outer length (see the framing note above), so decoding
// consumes exactly as many bytes as the encoder wrote and leaves br
// positioned precisely at the first record.
//
// Magic, version, and pad are read and the version checked before a single
// byte of method, reserved, or block data is touched, so an over-max version
// is reported without reading past the pad (spec.md §8 scenario 6).
func DecodeBinaryHeader(br *bufio.Reader) (*Header, CompressMethod, error) {
	prefix := make([]byte, 8+3+headerPadSize)
	if _, err := io.ReadFull(br, prefix); err != nil {
		return nil, 0, newErr(ErrTruncated, err)
	}
	pr := newReader(prefix)
	magic, _ := pr.getBytes(8)
	if string(magic) != string(binHeaderMagic[:]) {
		return nil, 0, newErr(ErrBadMagic, fmt.Errorf("bad header magic"))
	}
	major, _ := pr.getUint8()
	minor, _ := pr.getUint8()
	patch, _ := pr.getUint8()
	version := Version{Major: major, Minor: minor, Patch: patch}
	if version.exceeds(MaxVersion) {
		return nil, 0, newErr(ErrVersion, fmt.Errorf("file version %s exceeds maximum supported %s", version, MaxVersion))
	}

	methodReserved := make([]byte, 1+3)
	if _, err := io.ReadFull(br, methodReserved); err != nil {
		return nil, 0, newErr(ErrTruncated, err)
	}
	method := CompressMethod(methodReserved[0])

	var src io.Reader
	var zr io.ReadCloser
	switch method {
	case CompressZlib:
		var err error
		zr, err = zlib.NewReader(br)
		if err != nil {
			return nil, 0, newErr(ErrIO, err)
		}
		src = zr
	case CompressNone:
		src = br
	default:
		return nil, 0, newErr(ErrFormatUnknown, errUnknownMethod(method))
	}
	s := streamReader{r: src}

	header := NewHeader(version)
	numGroups, err := s.getUint32()
	if err != nil {
		return nil, 0, err
	}
	numAttrs, err := s.getUint32()
	if err != nil {
		return nil, 0, err
	}
	names := make([]string, numAttrs)
	for i := range names {
		name, err := getString16(s)
		if err != nil {
			return nil, 0, err
		}
		names[i] = name
		header.AddAttribute(name)
	}
	for g := 0; g < int(numGroups); g++ {
		header.AddReadGroup()
		for _, name := range names {
			v, err := getString16(s)
			if err != nil {
				return nil, 0, err
			}
			if v != "" {
				if err := header.Set(name, v, g); err != nil {
					return nil, 0, err
				}
			}
		}
	}
	numFields, err := s.getUint32()
	if err != nil {
		return nil, 0, err
	}
	if numFields > 0 {
		fields := make([]AuxField, numFields)
		for i := range fields {
			name, err := getString16(s)
			if err != nil {
				return nil, 0, err
			}
			typeTag, err := s.getUint8()
			if err != nil {
				return nil, 0, err
			}
			fields[i] = AuxField{Name: name, Type: AuxType(typeTag)}
		}
		schema, serr := NewAuxSchema(fields)
		if serr != nil {
			return nil, 0, serr
		}
		header.Schema = schema
	}

	if zr != nil {
		// Drain and close so the zlib trailer (and its checksum check) is
		// consumed from br, leaving br positioned right after the
		// compressed block rather than mid-stream.
		if _, err := io.Copy(io.Discard, zr); err != nil {
			return nil, 0, newErr(ErrIO, err)
		}
		if err := zr.Close(); err != nil {
			return nil, 0, newErr(ErrIO, err)
		}
	}
	return header, method, nil
}
