package slow5

import (
	"os"
	"path/filepath"
	"testing"
)

func buildSampleBinaryFile(t *testing.T, dir string, method CompressMethod) (string, *AuxSchema, []*Record) {
	t.Helper()
	path := filepath.Join(dir, "sample.blow5")
	header := NewHeader(CurrentVersion)
	header.AddAttribute("asic_id")
	header.AddReadGroup()
	if err := header.Set("asic_id", "abc123", 0); err != nil {
		t.Fatal(err)
	}
	schema, err := NewAuxSchema([]AuxField{{Name: "channel_number", Type: Uint32}})
	if err != nil {
		t.Fatal(err)
	}
	header.Schema = schema

	w, err := Create(path, header, method)
	if err != nil {
		t.Fatal(err)
	}
	var recs []*Record
	for i := 0; i < 5; i++ {
		rec := NewRecord(schema)
		rec.ReadID = "read-" + string(rune('0'+i))
		rec.RawSignal = []int16{int16(i), int16(i * 2)}
		rec.LenRawSignal = 2
		c := &cursor{}
		c.putUint32(uint32(i))
		if err := rec.SetAux(schema, "channel_number", c.buf, 1); err != nil {
			t.Fatal(err)
		}
		if err := w.Add(rec); err != nil {
			t.Fatal(err)
		}
		recs = append(recs, rec)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path, schema, recs
}

func TestBuildBinaryIndexZlib(t *testing.T) {
	dir := t.TempDir()
	path, _, recs := buildSampleBinaryFile(t, dir, CompressZlib)

	idx, err := Build(path, FormatBinary, 0)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != len(recs) {
		t.Fatalf("expected %d entries, got %d", len(recs), idx.Len())
	}
	for i, rec := range recs {
		entry, ok := idx.Get(rec.ReadID)
		if !ok {
			t.Fatalf("missing index entry for %q", rec.ReadID)
		}
		if i > 0 {
			prev, _ := idx.Get(recs[i-1].ReadID)
			if entry.Offset <= prev.Offset {
				t.Errorf("expected increasing offsets, got %d after %d", entry.Offset, prev.Offset)
			}
		}
	}
}

func TestBuildBinaryIndexNone(t *testing.T) {
	dir := t.TempDir()
	path, _, recs := buildSampleBinaryFile(t, dir, CompressNone)

	idx, err := Build(path, FormatBinary, 0)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != len(recs) {
		t.Fatalf("expected %d entries, got %d", len(recs), idx.Len())
	}
}

func TestIndexWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, _, recs := buildSampleBinaryFile(t, dir, CompressZlib)

	idx, err := Build(path, FormatBinary, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(path, idx); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	defer loaded.Unload()
	if loaded.Len() != idx.Len() {
		t.Fatalf("loaded index has %d entries, want %d", loaded.Len(), idx.Len())
	}
	for _, rec := range recs {
		want, _ := idx.Get(rec.ReadID)
		got, ok := loaded.Get(rec.ReadID)
		if !ok || got != want {
			t.Errorf("entry mismatch for %q: got %+v, want %+v", rec.ReadID, got, want)
		}
	}
	if _, err := os.Stat(path + ".idx"); err != nil {
		t.Fatalf("expected sidecar file on disk: %v", err)
	}
}

func TestIndexRejectsDuplicateID(t *testing.T) {
	idx := NewIndex()
	if err := idx.Insert("read-a", 0, 10); err != nil {
		t.Fatal(err)
	}
	err := idx.Insert("read-a", 10, 10)
	if err == nil {
		t.Fatal("expected error inserting a duplicate id")
	}
	if e, ok := err.(*Error); !ok || e.Kind != ErrDuplicate {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestIndexOrderPreserved(t *testing.T) {
	idx := NewIndex()
	ids := []string{"z", "a", "m"}
	for i, id := range ids {
		if err := idx.Insert(id, uint64(i), 1); err != nil {
			t.Fatal(err)
		}
	}
	got := idx.IDs()
	for i, id := range ids {
		if got[i] != id {
			t.Errorf("IDs()[%d] = %q, want %q (insertion order must be preserved)", i, got[i], id)
		}
	}
}

func TestBuildTextIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.slow5")
	header := NewHeader(CurrentVersion)
	header.AddAttribute("asic_id")
	header.AddReadGroup()
	_ = header.Set("asic_id", "abc123", 0)
	schema, err := NewAuxSchema(nil)
	if err != nil {
		t.Fatal(err)
	}
	header.Schema = schema

	w, err := Create(path, header, CompressNone)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for i := 0; i < 4; i++ {
		rec := NewRecord(schema)
		rec.ReadID = "t-read-" + string(rune('a'+i))
		rec.RawSignal = []int16{1, 2, 3}
		rec.LenRawSignal = 3
		if err := w.Add(rec); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rec.ReadID)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	idx, err := Build(path, FormatASCII, 1<<16)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != len(ids) {
		t.Fatalf("expected %d entries, got %d", len(ids), idx.Len())
	}
	for _, id := range ids {
		if _, ok := idx.Get(id); !ok {
			t.Errorf("missing text index entry for %q", id)
		}
	}
}
