package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"

	"pdom/internal/db"
	"pdom/internal/ingest"
	"pdom/internal/linkage"
	"pdom/internal/pdom"
)

func newIndex(t *testing.T) *pdom.Index {
	t.Helper()
	d, err := db.OpenMemory(db.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ix, err := pdom.Open(d, pdom.Options{Registry: linkage.MustRegistry()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func seed(t *testing.T, ix *pdom.Index) {
	t.Helper()
	stack := &ingest.BindingDesc{Kind: "cpp.class", Name: "Stack", Ints: map[string]int32{"class-key": 2}}
	push := &ingest.BindingDesc{
		Kind: "cpp.method", Name: "push", Owner: stack,
		Flags: []string{"virtual"},
		Ints:  map[string]int32{"param-count": 1, "visibility": 1},
	}
	p := ingest.NewSliceProvider(
		ingest.Record{File: "stack.h", Offset: 6, Length: 5, Binding: stack},
		ingest.Record{File: "stack.h", Offset: 20, Length: 4, Binding: push},
		ingest.Record{File: "main.cc", Offset: 3, Length: 4, Binding: push},
		ingest.Record{File: "main.cc", Offset: 9, Length: 2},
	)
	if _, err := ingest.Apply(context.Background(), ix, p); err != nil {
		t.Fatal(err)
	}
}

func TestBuildSnapshot(t *testing.T) {
	ix := newIndex(t)
	seed(t, ix)
	snap, err := Build(ix)
	if err != nil {
		t.Fatal(err)
	}

	want := &Snapshot{
		Schema: SchemaVersion,
		Files: []File{
			{Path: "main.cc", Names: []Name{{Offset: 3, Length: 4, Binding: 1}, {Offset: 9, Length: 2, Binding: -1}}},
			{Path: "stack.h", Names: []Name{{Offset: 6, Length: 5, Binding: 0}, {Offset: 20, Length: 4, Binding: 1}}},
		},
		Bindings: []Binding{
			{Kind: "cpp.class", Name: "Stack", Owner: -1, Ints: map[string]int32{"class-key": 2}, Declarations: 1},
			{
				Kind: "cpp.method", Name: "push", Owner: 0, Flags: []string{"virtual"},
				Ints:         map[string]int32{"param-count": 1, "visibility": 1},
				Strings:      map[string]string{"signature": ""},
				Declarations: 2,
			},
		},
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}
}

func TestSnapshotReplayRebuildsIndex(t *testing.T) {
	src := newIndex(t)
	seed(t, src)
	snap, err := Build(src)
	if err != nil {
		t.Fatal(err)
	}

	fs := afero.NewMemMapFs()
	if err := WriteFile(fs, "/out/index.mp", snap); err != nil {
		t.Fatal(err)
	}
	entries, err := afero.ReadDir(fs, "/out")
	if err != nil || len(entries) != 1 {
		t.Fatalf("temp file left behind: %v, %v", entries, err)
	}
	loaded, err := ReadFile(fs, "/out/index.mp")
	if err != nil {
		t.Fatal(err)
	}

	dst := newIndex(t)
	p, err := loaded.Provider()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ingest.Apply(context.Background(), dst, p); err != nil {
		t.Fatal(err)
	}
	again, err := Build(dst)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(snap, again); diff != "" {
		t.Errorf("replayed snapshot differs (-orig +replayed):\n%s", diff)
	}
	if err := dst.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeRejectsOtherSchema(t *testing.T) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(&Snapshot{Schema: SchemaVersion + 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(&buf); !errors.Is(err, ErrSchema) {
		t.Fatalf("Decode = %v, want ErrSchema", err)
	}
}

func TestProviderRejectsDanglingIndexes(t *testing.T) {
	snap := &Snapshot{
		Schema:   SchemaVersion,
		Bindings: []Binding{{Kind: "c.variable", Name: "x", Owner: -1}},
		Files:    []File{{Path: "a.c", Names: []Name{{Binding: 4}}}},
	}
	if _, err := snap.Provider(); err == nil {
		t.Fatal("Provider accepted a name bound past the binding table")
	}
}

func TestProviderRejectsOwnerCycles(t *testing.T) {
	tests := []struct {
		name   string
		owners []int
	}{
		{"self", []int{0}},
		{"pair", []int{1, 0}},
		{"tail into loop", []int{-1, 2, 3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &Snapshot{Schema: SchemaVersion}
			for i, owner := range tt.owners {
				snap.Bindings = append(snap.Bindings, Binding{Kind: "cpp.namespace", Name: fmt.Sprint("ns", i), Owner: owner})
			}
			snap.Files = []File{{Path: "a.cpp", Names: []Name{{Offset: 0, Length: 2, Binding: len(tt.owners) - 1}}}}
			if _, err := snap.Provider(); err == nil {
				t.Fatal("Provider accepted an owner cycle")
			}
		})
	}

	chain := &Snapshot{
		Schema: SchemaVersion,
		Bindings: []Binding{
			{Kind: "cpp.namespace", Name: "outer", Owner: -1},
			{Kind: "cpp.namespace", Name: "inner", Owner: 0},
			{Kind: "cpp.class", Name: "C", Owner: 1},
		},
		Files: []File{{Path: "a.cpp", Names: []Name{{Offset: 0, Length: 1, Binding: 2}}}},
	}
	if _, err := chain.Provider(); err != nil {
		t.Fatalf("Provider rejected an acyclic chain: %v", err)
	}
}
