package pdom

import (
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"pdom/internal/db"
)

func TestInsertOrGetFileIsIdempotent(t *testing.T) {
	ix := newTestIndex(t)
	tests := []struct {
		a, b string
		same bool
	}{
		{"src/a.c", "src/a.c", true},
		{"src/a.c", "./src/a.c", true},
		{"src/a.c", "src//b/../a.c", true},
		{"caf\u00e9.c", "cafe\u0301.c", true},
		{"src/a.c", "src/b.c", false},
	}
	for _, tt := range tests {
		mustWrite(t, ix, func(tx *WriteTx) error {
			fa, err := tx.InsertOrGetFile(tt.a)
			if err != nil {
				return err
			}
			fb, err := tx.InsertOrGetFile(tt.b)
			if err != nil {
				return err
			}
			if got := fa.Record() == fb.Record(); got != tt.same {
				t.Errorf("InsertOrGetFile(%q) == InsertOrGetFile(%q): %v, want %v", tt.a, tt.b, got, tt.same)
			}
			return nil
		})
	}
	files, err := ix.Files()
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	if diff := cmp.Diff([]string{"caf\u00e9.c", "src/a.c", "src/b.c"}, paths); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
}

func TestInsertOrGetFileRejectsEmptyPath(t *testing.T) {
	ix := newTestIndex(t)
	err := ix.Write(func(tx *WriteTx) error {
		_, err := tx.InsertOrGetFile("")
		return err
	})
	if err == nil {
		t.Fatal("empty path accepted")
	}
}

func TestInvalidateFileDetachesOnlyItsNames(t *testing.T) {
	ix := newTestIndex(t)
	fn, err := ix.InsertBinding(BindingSpec{Type: testFunction, Name: "shared"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ix.InsertName(Occurrence{File: "one.c", Offset: 4, Length: 6}, fn.Ref); err != nil {
		t.Fatal(err)
	}
	second, err := ix.InsertName(Occurrence{File: "two.c", Offset: 8, Length: 6}, fn.Ref)
	if err != nil {
		t.Fatal(err)
	}
	local, err := ix.InsertName(Occurrence{File: "two.c", Offset: 20, Length: 2}, BindingRef{})
	if err != nil {
		t.Fatal(err)
	}

	n, err := ix.InvalidateFile("one.c")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("InvalidateFile removed %d names, want 1", n)
	}

	decls, err := ix.Declarations(fn.Ref)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]NameRef{second.Ref}, refs(decls)); diff != "" {
		t.Errorf("declarations (-want +got):\n%s", diff)
	}
	two, ok, err := ix.NamesInFile("two.c")
	if err != nil || !ok {
		t.Fatalf("NamesInFile(two.c) = %v, %v", ok, err)
	}
	if diff := cmp.Diff([]NameRef{local.Ref, second.Ref}, refs(two)); diff != "" {
		t.Errorf("two.c names (-want +got):\n%s", diff)
	}
	one, ok, err := ix.NamesInFile("one.c")
	if err != nil || !ok {
		t.Fatalf("invalidated file lost: %v, %v", ok, err)
	}
	if len(one) != 0 {
		t.Errorf("one.c still has %d names", len(one))
	}
	mustCheck(t, ix)

	if n, err := ix.InvalidateFile("never-indexed.c"); n != 0 || err != nil {
		t.Errorf("InvalidateFile(unknown) = %d, %v", n, err)
	}
	if _, ok, err := ix.NamesInFile("never-indexed.c"); ok || err != nil {
		t.Errorf("NamesInFile(unknown) = %v, %v; want absent", ok, err)
	}
}

func TestFileRecordReusedAfterInvalidate(t *testing.T) {
	ix := newTestIndex(t)
	before, err := ix.InsertName(Occurrence{File: "a.c", Offset: 0, Length: 1}, BindingRef{})
	if err != nil {
		t.Fatal(err)
	}
	files, err := ix.Files()
	if err != nil || len(files) != 1 {
		t.Fatalf("Files = %+v, %v", files, err)
	}
	if _, err := ix.InvalidateFile("a.c"); err != nil {
		t.Fatal(err)
	}
	after, err := ix.InsertName(Occurrence{File: "a.c", Offset: 0, Length: 1}, BindingRef{})
	if err != nil {
		t.Fatal(err)
	}
	again, err := ix.Files()
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 1 || again[0].Ref != files[0].Ref || again[0].Names != 1 {
		t.Errorf("file after reparse: %+v, want %+v with one name", again, files[0])
	}
	if before.File != after.File {
		t.Errorf("file path changed: %q -> %q", before.File, after.File)
	}
}

func TestReopenKeepsIndex(t *testing.T) {
	fs := afero.NewMemMapFs()
	d, err := db.Open(fs, "index.pdom", db.Options{ChunkSize: 2048})
	if err != nil {
		t.Fatal(err)
	}
	ix := openTestIndex(t, d)
	cls, err := ix.InsertBinding(BindingSpec{Type: testClass, Name: "Widget"})
	if err != nil {
		t.Fatal(err)
	}
	ctor, err := ix.InsertBinding(BindingSpec{
		Type:  testConstructor,
		Name:  "Widget",
		Owner: cls.Ref,
		Flags: map[Capability]bool{CapExplicit: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	name, err := ix.InsertName(Occurrence{File: "widget.h", Offset: 40, Length: 6}, ctor.Ref)
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Close(); err != nil {
		t.Fatal(err)
	}

	d, err = db.Open(fs, "index.pdom", db.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ix = openTestIndex(t, d)
	defer ix.Close()

	got, ok, err := ix.FindBinding(testConstructor, cls.Ref, "Widget")
	if err != nil || !ok {
		t.Fatalf("FindBinding after reopen = %v, %v", ok, err)
	}
	if got.Ref != ctor.Ref || got.Declarations != 1 {
		t.Errorf("constructor after reopen: %+v", got)
	}
	if diff := cmp.Diff([]Capability{CapExplicit}, got.Flags); diff != "" {
		t.Errorf("flags (-want +got):\n%s", diff)
	}
	names, ok, err := ix.NamesInFile("widget.h")
	if err != nil || !ok {
		t.Fatalf("NamesInFile after reopen = %v, %v", ok, err)
	}
	if diff := cmp.Diff([]NameInfo{name}, names); diff != "" {
		t.Errorf("names after reopen (-want +got):\n%s", diff)
	}
	mustCheck(t, ix)
}

// lateReadFs fails every read at or beyond limit, standing in for a store
// whose tail became unreadable between runs.
type lateReadFs struct {
	afero.Fs
	limit int64
	err   error
}

func (fs lateReadFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := fs.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return lateReadFile{File: f, fs: fs}, nil
}

type lateReadFile struct {
	afero.File
	fs lateReadFs
}

func (f lateReadFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.fs.limit {
		return 0, f.fs.err
	}
	return f.File.ReadAt(p, off)
}

func TestOpenSurfacesReadFaults(t *testing.T) {
	const chunk = 2048
	mem := afero.NewMemMapFs()
	d, err := db.Open(mem, "index.pdom", db.Options{ChunkSize: chunk})
	if err != nil {
		t.Fatal(err)
	}
	// a bucket table this large cannot share chunk 0 with the header
	ix, err := Open(d, Options{Registry: testRegistry(), Buckets: 256})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ix.InsertName(Occurrence{File: "a.c", Offset: 1, Length: 1}, BindingRef{}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Close(); err != nil {
		t.Fatal(err)
	}

	badSector := errors.New("input/output error")
	d, err = db.Open(lateReadFs{Fs: mem, limit: chunk, err: badSector}, "index.pdom", db.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if _, err := Open(d, Options{Registry: testRegistry()}); !db.IsStorageFault(err) || !errors.Is(err, badSector) {
		t.Fatalf("Open = %v, want a storage fault wrapping %v", err, badSector)
	}
}
