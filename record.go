package slow5

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/koeng101/svb"
)

/******************************************************************************

Record model (C5).

A Record holds the eight fixed primary columns (spec.md §3) plus, when the
file's schema is non-empty, one AuxValue per schema field. The typed map's
domain always equals the schema's name set: a record never omits a schema
field, it stores the kind's sentinel (scalar) or a zero length (array/string)
for "missing" instead (spec.md §3's Record invariant).

Encode/Decode here only ever see the plaintext record payload. Compression
and the binary size prefix are file.go's (C7) responsibility, matching the
data flow in spec.md §2: depress via C2 happens before Decode, and compress
via C2 happens after Encode.

******************************************************************************/

// AuxValue is a polymorphic, tagged auxiliary field value: a typed slice of
// bytes carrying Length elements of Type, each ElementSize (= ByteCount/Length
// when Length>0) bytes wide.
type AuxValue struct {
	Type      AuxType
	Length    int
	ByteCount int
	Bytes     []byte
}

// Record is a single read: its primary columns plus, if the owning schema is
// non-empty, one auxiliary value per schema field.
type Record struct {
	ReadID       string
	ReadGroup    uint32
	Digitisation float64
	Offset       float64
	Range        float64
	SamplingRate float64
	LenRawSignal uint64
	RawSignal    []int16

	Aux map[string]AuxValue
}

// NewRecord returns a Record with every schema field initialized to that
// field's missing value, ready to have primary columns and a subset of
// auxiliary values filled in before Add.
func NewRecord(schema *AuxSchema) *Record {
	rec := &Record{}
	if schema.Len() == 0 {
		return rec
	}
	rec.Aux = make(map[string]AuxValue, schema.Len())
	for _, f := range schema.Fields() {
		rec.Aux[f.Name] = missingAux(f.Type)
	}
	return rec
}

func missingAux(t AuxType) AuxValue {
	if t == String || IsArray(t) {
		return AuxValue{Type: t, Length: 0}
	}
	size, _ := SizeOf(t)
	s, err := sentinel(t)
	if err != nil {
		s = make([]byte, size)
	}
	return AuxValue{Type: t, Length: 1, ByteCount: size, Bytes: s}
}

// SetAux assigns the auxiliary field name to a scalar/array byte
// representation. value is the field's little-endian byte form and length
// its element count (1 for a scalar).
func (r *Record) SetAux(schema *AuxSchema, name string, value []byte, length int) error {
	idx, ok := schema.IndexOf(name)
	if !ok {
		return newErr(ErrNotFound, fmt.Errorf("unknown auxiliary field %q", name))
	}
	f := schema.Fields()[idx]
	if r.Aux == nil {
		r.Aux = make(map[string]AuxValue, schema.Len())
	}
	r.Aux[name] = AuxValue{Type: f.Type, Length: length, ByteCount: len(value), Bytes: value}
	return nil
}

/******************************************************************************
Typed accessors - total functions per spec.md §4.5.
******************************************************************************/

func (r *Record) auxOrErr(name string) (AuxValue, error) {
	v, ok := r.Aux[name]
	if !ok {
		return AuxValue{}, newErrID(ErrNotFound, name, fmt.Errorf("unknown auxiliary field"))
	}
	return v, nil
}

// Int64 returns a scalar signed-integer auxiliary field. On a missing value
// it returns that kind's sentinel and ErrMissingValue.
func (r *Record) Int64(name string) (int64, error) {
	v, err := r.auxOrErr(name)
	if err != nil {
		return 0, err
	}
	if IsArray(v.Type) || v.Type == String {
		return 0, newErrID(ErrTypeMismatch, name, fmt.Errorf("field is an array, not a scalar"))
	}
	rd := newReader(v.Bytes)
	var n int64
	switch v.Type {
	case Int8:
		x, _ := rd.getInt8()
		n = int64(x)
	case Int16:
		x, _ := rd.getInt16()
		n = int64(x)
	case Int32:
		x, _ := rd.getInt32()
		n = int64(x)
	case Int64:
		n, _ = rd.getInt64()
	default:
		return 0, newErrID(ErrTypeMismatch, name, fmt.Errorf("field is not a signed integer"))
	}
	if isMissingScalar(v.Type, v.Bytes) {
		return n, newErrID(ErrMissingValue, name, fmt.Errorf("field is missing"))
	}
	return n, nil
}

// Uint64 returns a scalar unsigned-integer auxiliary field.
func (r *Record) Uint64(name string) (uint64, error) {
	v, err := r.auxOrErr(name)
	if err != nil {
		return 0, err
	}
	if IsArray(v.Type) || v.Type == String {
		return 0, newErrID(ErrTypeMismatch, name, fmt.Errorf("field is an array, not a scalar"))
	}
	rd := newReader(v.Bytes)
	var n uint64
	switch v.Type {
	case Uint8:
		x, _ := rd.getUint8()
		n = uint64(x)
	case Uint16:
		x, _ := rd.getUint16()
		n = uint64(x)
	case Uint32:
		x, _ := rd.getUint32()
		n = uint64(x)
	case Uint64:
		n, _ = rd.getUint64()
	default:
		return 0, newErrID(ErrTypeMismatch, name, fmt.Errorf("field is not an unsigned integer"))
	}
	if isMissingScalar(v.Type, v.Bytes) {
		return n, newErrID(ErrMissingValue, name, fmt.Errorf("field is missing"))
	}
	return n, nil
}

// Float64 returns a scalar floating-point auxiliary field.
func (r *Record) Float64(name string) (float64, error) {
	v, err := r.auxOrErr(name)
	if err != nil {
		return 0, err
	}
	rd := newReader(v.Bytes)
	var n float64
	switch v.Type {
	case Float32:
		x, _ := rd.getFloat32()
		n = float64(x)
	case Float64:
		n, _ = rd.getFloat64()
	default:
		return 0, newErrID(ErrTypeMismatch, name, fmt.Errorf("field is not a float"))
	}
	if isMissingScalar(v.Type, v.Bytes) {
		return n, newErrID(ErrMissingValue, name, fmt.Errorf("field is missing"))
	}
	return n, nil
}

// String returns a String-kind auxiliary field.
func (r *Record) String(name string) (string, error) {
	v, err := r.auxOrErr(name)
	if err != nil {
		return "", err
	}
	if v.Type != String {
		return "", newErrID(ErrTypeMismatch, name, fmt.Errorf("field is not a string"))
	}
	if v.Length == 0 {
		return "", newErrID(ErrMissingValue, name, fmt.Errorf("field is missing"))
	}
	return string(v.Bytes), nil
}

// Array returns the raw element bytes and count for an array-kind auxiliary
// field. A missing array reports length 0 and ErrMissingValue.
func (r *Record) Array(name string) ([]byte, int, error) {
	v, err := r.auxOrErr(name)
	if err != nil {
		return nil, 0, err
	}
	if !IsArray(v.Type) {
		return nil, 0, newErrID(ErrTypeMismatch, name, fmt.Errorf("field is not an array"))
	}
	if v.Length == 0 {
		return nil, 0, newErrID(ErrMissingValue, name, fmt.Errorf("field is missing"))
	}
	return v.Bytes, v.Length, nil
}

/******************************************************************************
Binary encode/decode
******************************************************************************/

// EncodeRecordBinary returns the uncompressed record payload (everything
// after the size_prefix in spec.md §4.5's binary layout).
func EncodeRecordBinary(rec *Record, schema *AuxSchema) []byte {
	c := &cursor{}
	putString16(c, rec.ReadID)
	c.putUint32(rec.ReadGroup)
	c.putFloat64(rec.Digitisation)
	c.putFloat64(rec.Offset)
	c.putFloat64(rec.Range)
	c.putFloat64(rec.SamplingRate)
	c.putUint64(rec.LenRawSignal)
	for _, s := range rec.RawSignal {
		c.putInt16(s)
	}
	for _, f := range schema.Fields() {
		v := rec.Aux[f.Name]
		writeBinaryValue(c, f.Type, v.Bytes, v.Length)
	}
	return c.buf
}

// DecodeRecordBinary is the inverse of EncodeRecordBinary.
func DecodeRecordBinary(payload []byte, schema *AuxSchema) (*Record, error) {
	r := newReader(payload)
	readIDLen, err := r.getUint16()
	if err != nil {
		return nil, err
	}
	readIDBytes, err := r.getBytes(int(readIDLen))
	if err != nil {
		return nil, err
	}
	rec := &Record{ReadID: string(readIDBytes)}
	if rec.ReadGroup, err = r.getUint32(); err != nil {
		return nil, err
	}
	if rec.Digitisation, err = r.getFloat64(); err != nil {
		return nil, err
	}
	if rec.Offset, err = r.getFloat64(); err != nil {
		return nil, err
	}
	if rec.Range, err = r.getFloat64(); err != nil {
		return nil, err
	}
	if rec.SamplingRate, err = r.getFloat64(); err != nil {
		return nil, err
	}
	if rec.LenRawSignal, err = r.getUint64(); err != nil {
		return nil, err
	}
	rec.RawSignal = make([]int16, rec.LenRawSignal)
	for i := range rec.RawSignal {
		if rec.RawSignal[i], err = r.getInt16(); err != nil {
			return nil, err
		}
	}
	if schema.Len() > 0 {
		rec.Aux = make(map[string]AuxValue, schema.Len())
		for _, f := range schema.Fields() {
			value, length, err := readBinaryValue(r, f.Type)
			if err != nil {
				return nil, err
			}
			rec.Aux[f.Name] = AuxValue{Type: f.Type, Length: length, ByteCount: len(value), Bytes: value}
		}
	}
	return rec, nil
}

/******************************************************************************
Optional StreamVByte raw signal codec

svb is an integer-array compression algorithm; applied to raw signal before
the per-record zlib pass it accounts for most of the size reduction a real
nanopore archive gets out of BLOW5 (zlib on top of the svb output gives only
a marginal further reduction). EncodeRecordBinary/DecodeRecordBinary, Writer
and Reader never use it (spec.md §4.5 pins an exact byte layout for
RawSignal); these helpers only convert a signal to and from its svb
(mask, data) form.
******************************************************************************/

// SvbCompressRawSignal converts signal to a StreamVByte-encoded (mask, data)
// pair. Both are required to reverse the encoding.
func SvbCompressRawSignal(signal []int16) (mask, data []byte) {
	asUint32 := make([]uint32, len(signal))
	for i, s := range signal {
		asUint32[i] = uint32(s)
	}
	return svb.Uint32Encode(asUint32)
}

// SvbDecompressRawSignal is the inverse of SvbCompressRawSignal. length must
// be the original signal's element count.
func SvbDecompressRawSignal(length int, mask, data []byte) []int16 {
	asUint32 := make([]uint32, length)
	svb.Uint32Decode32(mask, data, asUint32)
	signal := make([]int16, length)
	for i, v := range asUint32 {
		signal[i] = int16(v)
	}
	return signal
}

/******************************************************************************
Text encode/decode
******************************************************************************/

// EncodeRecordText returns one tab-separated, newline-terminated line.
func EncodeRecordText(rec *Record, schema *AuxSchema) ([]byte, error) {
	if strings.ContainsAny(rec.ReadID, "\t\n") {
		return nil, newErrID(ErrParse, rec.ReadID, fmt.Errorf("read id contains a tab or newline"))
	}
	cols := make([]string, 0, 8+schema.Len())
	cols = append(cols,
		rec.ReadID,
		strconv.FormatUint(uint64(rec.ReadGroup), 10),
		strconv.FormatFloat(rec.Digitisation, 'g', -1, 64),
		strconv.FormatFloat(rec.Offset, 'g', -1, 64),
		strconv.FormatFloat(rec.Range, 'g', -1, 64),
		strconv.FormatFloat(rec.SamplingRate, 'g', -1, 64),
		strconv.FormatUint(rec.LenRawSignal, 10),
	)
	signalStrs := make([]string, len(rec.RawSignal))
	for i, s := range rec.RawSignal {
		signalStrs[i] = strconv.FormatInt(int64(s), 10)
	}
	cols = append(cols, strings.Join(signalStrs, ","))

	for _, f := range schema.Fields() {
		v := rec.Aux[f.Name]
		text, err := emitText(f.Type, v.Bytes, v.Length)
		if err != nil {
			return nil, err
		}
		cols = append(cols, text)
	}
	return []byte(strings.Join(cols, "\t") + "\n"), nil
}

// DecodeRecordText parses one tab-separated line (without its trailing
// newline) into a Record.
func DecodeRecordText(line string, schema *AuxSchema) (*Record, error) {
	cols := strings.Split(line, "\t")
	if len(cols) < 8 {
		return nil, newErr(ErrParse, fmt.Errorf("record line has %d columns, need at least 8", len(cols)))
	}
	rec := &Record{ReadID: cols[0]}
	readGroup, err := strconv.ParseUint(cols[1], 10, 32)
	if err != nil {
		return nil, newErr(ErrParse, err)
	}
	rec.ReadGroup = uint32(readGroup)
	if rec.Digitisation, err = strconv.ParseFloat(cols[2], 64); err != nil {
		return nil, newErr(ErrParse, err)
	}
	if rec.Offset, err = strconv.ParseFloat(cols[3], 64); err != nil {
		return nil, newErr(ErrParse, err)
	}
	if rec.Range, err = strconv.ParseFloat(cols[4], 64); err != nil {
		return nil, newErr(ErrParse, err)
	}
	if rec.SamplingRate, err = strconv.ParseFloat(cols[5], 64); err != nil {
		return nil, newErr(ErrParse, err)
	}
	lenRaw, err := strconv.ParseUint(cols[6], 10, 64)
	if err != nil {
		return nil, newErr(ErrParse, err)
	}
	rec.LenRawSignal = lenRaw
	if lenRaw > 0 {
		parts := strings.Split(cols[7], ",")
		rec.RawSignal = make([]int16, len(parts))
		for i, p := range parts {
			v, err := strconv.ParseInt(p, 10, 16)
			if err != nil {
				return nil, newErr(ErrParse, err)
			}
			rec.RawSignal[i] = int16(v)
		}
	}

	expected := 8 + schema.Len()
	if len(cols) != expected {
		return nil, newErr(ErrParse, fmt.Errorf("record line has %d columns, schema needs %d", len(cols), expected))
	}
	if schema.Len() > 0 {
		rec.Aux = make(map[string]AuxValue, schema.Len())
		for i, f := range schema.Fields() {
			value, length, err := parseText(f.Type, cols[8+i])
			if err != nil {
				return nil, err
			}
			rec.Aux[f.Name] = AuxValue{Type: f.Type, Length: length, ByteCount: len(value), Bytes: value}
		}
	}
	return rec, nil
}
