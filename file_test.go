package slow5

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

func newTestHeaderAndSchema(t *testing.T) (*Header, *AuxSchema) {
	t.Helper()
	header := NewHeader(CurrentVersion)
	header.AddAttribute("asic_id")
	header.AddReadGroup()
	if err := header.Set("asic_id", "device-42", 0); err != nil {
		t.Fatal(err)
	}
	schema, err := NewAuxSchema([]AuxField{{Name: "end_reason", Type: String}})
	if err != nil {
		t.Fatal(err)
	}
	header.Schema = schema
	return header, schema
}

func writeRecords(t *testing.T, w *Writer, schema *AuxSchema, n int) []*Record {
	t.Helper()
	var recs []*Record
	for i := 0; i < n; i++ {
		rec := NewRecord(schema)
		rec.ReadID = "read-" + string(rune('A'+i))
		rec.Digitisation = 8192
		rec.SamplingRate = 4000
		rec.RawSignal = []int16{int16(i), int16(-i)}
		rec.LenRawSignal = 2
		if err := rec.SetAux(schema, "end_reason", []byte("signal_positive"), len("signal_positive")); err != nil {
			t.Fatal(err)
		}
		if err := w.Add(rec); err != nil {
			t.Fatal(err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func TestFileSequentialRoundTripBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.blow5")
	header, schema := newTestHeaderAndSchema(t)

	w, err := Create(path, header, CompressZlib)
	if err != nil {
		t.Fatal(err)
	}
	recs := writeRecords(t, w, schema, 4)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenRead(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	var got []*Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, rec)
	}
	if len(got) != len(recs) {
		t.Fatalf("got %d records, want %d", len(got), len(recs))
	}
	for i := range recs {
		if got[i].ReadID != recs[i].ReadID {
			t.Errorf("record %d: got %q, want %q", i, got[i].ReadID, recs[i].ReadID)
		}
	}
}

func TestFileSequentialRoundTripText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.slow5")
	header, schema := newTestHeaderAndSchema(t)

	w, err := Create(path, header, CompressNone)
	if err != nil {
		t.Fatal(err)
	}
	recs := writeRecords(t, w, schema, 3)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenRead(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	count := 0
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if rec.ReadID != recs[count].ReadID {
			t.Errorf("record %d: got %q, want %q", count, rec.ReadID, recs[count].ReadID)
		}
		count++
	}
	if count != len(recs) {
		t.Fatalf("got %d records, want %d", count, len(recs))
	}
}

func TestFileRandomAccessGet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.blow5")
	header, schema := newTestHeaderAndSchema(t)

	w, err := Create(path, header, CompressZlib)
	if err != nil {
		t.Fatal(err)
	}
	recs := writeRecords(t, w, schema, 6)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenRead(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	r.Attach(w.Index())

	// fetch out of order, interleaved, to exercise random access independent
	// of sequential position.
	order := []int{3, 0, 5, 1}
	for _, i := range order {
		got, err := r.Get(recs[i].ReadID)
		if err != nil {
			t.Fatalf("Get(%q): %v", recs[i].ReadID, err)
		}
		if got.ReadID != recs[i].ReadID {
			t.Errorf("Get(%q) returned %q", recs[i].ReadID, got.ReadID)
		}
		if len(got.RawSignal) != len(recs[i].RawSignal) {
			t.Errorf("Get(%q): raw signal length mismatch", recs[i].ReadID)
		}
	}
}

func TestFileGetUnknownID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.blow5")
	header, schema := newTestHeaderAndSchema(t)
	w, err := Create(path, header, CompressZlib)
	if err != nil {
		t.Fatal(err)
	}
	writeRecords(t, w, schema, 2)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenRead(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	r.Attach(w.Index())

	if _, err := r.Get("does-not-exist"); err == nil {
		t.Fatal("expected ErrNotFound for an unknown read id")
	} else if e, ok := err.(*Error); !ok || e.Kind != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileRejectsDuplicateReadID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.blow5")
	header, schema := newTestHeaderAndSchema(t)
	w, err := Create(path, header, CompressZlib)
	if err != nil {
		t.Fatal(err)
	}
	rec := NewRecord(schema)
	rec.ReadID = "dup"
	rec.RawSignal = []int16{1}
	rec.LenRawSignal = 1
	if err := rec.SetAux(schema, "end_reason", []byte("x"), 1); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(rec); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(rec); err == nil {
		t.Fatal("expected error adding a duplicate read id")
	}
}

func TestConvertTextToBinaryAndBack(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "a.slow5")
	header, schema := newTestHeaderAndSchema(t)
	w, err := Create(textPath, header, CompressNone)
	if err != nil {
		t.Fatal(err)
	}
	recs := writeRecords(t, w, schema, 4)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	binPath := filepath.Join(dir, "b.blow5")
	if _, err := Convert(textPath, binPath, CompressZlib); err != nil {
		t.Fatalf("convert to binary: %v", err)
	}

	roundTripPath := filepath.Join(dir, "c.slow5")
	if _, err := Convert(binPath, roundTripPath, CompressNone); err != nil {
		t.Fatalf("convert back to text: %v", err)
	}

	r, err := OpenRead(roundTripPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	var got []*Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, rec)
	}
	if len(got) != len(recs) {
		t.Fatalf("got %d records after round trip, want %d", len(got), len(recs))
	}
	for i := range recs {
		if got[i].ReadID != recs[i].ReadID {
			t.Errorf("record %d: got %q, want %q", i, got[i].ReadID, recs[i].ReadID)
		}
	}
}

// TestTextRoundTripByteExact converts a text SLOW5 file to itself through an
// identity text->text conversion and requires the bytes match exactly. A
// mismatch is reported as a unified diff rather than a raw byte dump, since a
// column-ordering or sentinel-formatting regression is far easier to spot as
// a diff than as two opaque blobs.
func TestTextRoundTripByteExact(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "orig.slow5")
	header, schema := newTestHeaderAndSchema(t)
	w, err := Create(srcPath, header, CompressNone)
	if err != nil {
		t.Fatal(err)
	}
	writeRecords(t, w, schema, 5)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	dstPath := filepath.Join(dir, "copy.slow5")
	if _, err := Convert(srcPath, dstPath, CompressNone); err != nil {
		t.Fatalf("convert: %v", err)
	}

	want, err := os.ReadFile(srcPath)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(want) != string(got) {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(want)),
			B:        difflib.SplitLines(string(got)),
			FromFile: "orig.slow5",
			ToFile:   "copy.slow5",
			Context:  2,
		}
		text, _ := difflib.GetUnifiedDiffString(diff)
		t.Fatalf("text round trip not byte-exact:\n%s", text)
	}
	if !strings.HasPrefix(string(got), "#slow5_version") {
		t.Fatalf("copy does not start with a slow5 header line")
	}
}

func TestCreateRejectsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.blow5")
	header, _ := newTestHeaderAndSchema(t)
	w, err := Create(path, header, CompressZlib)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(path, header, CompressZlib); err == nil {
		t.Fatal("expected error creating over an existing file")
	}
}
