package pdom

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pdom/internal/db"
)

func TestDeclarationListOrder(t *testing.T) {
	ix := newTestIndex(t)
	mustWrite(t, ix, func(tx *WriteTx) error {
		x, err := tx.InsertBinding(BindingSpec{Type: testFunction, Name: "x"})
		if err != nil {
			return err
		}
		var a, b, c Name
		for i, n := range []*Name{&a, &b, &c} {
			if *n, err = tx.InsertName(Occurrence{File: "main.c", Offset: 10 * i, Length: 1}, x); err != nil {
				return err
			}
		}

		decls, err := x.Declarations()
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]db.Offset{c.rec, b.rec, a.rec}, records(decls)); diff != "" {
			t.Errorf("declarations before delete (-want +got):\n%s", diff)
		}

		if err := tx.DeleteName(b); err != nil {
			return err
		}
		next, ok, err := c.NextInBinding()
		if err != nil || !ok || next.rec != a.rec {
			t.Errorf("next(C) = %v, %v, %v; want A", next.rec, ok, err)
		}
		prev, ok, err := a.PrevInBinding()
		if err != nil || !ok || prev.rec != c.rec {
			t.Errorf("prev(A) = %v, %v, %v; want C", prev.rec, ok, err)
		}
		if _, ok, _ := a.NextInBinding(); ok {
			t.Errorf("next(A) is present")
		}

		f, err := c.File()
		if err != nil {
			return err
		}
		names, err := f.Names()
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]db.Offset{c.rec, a.rec}, records(names)); diff != "" {
			t.Errorf("file list after delete (-want +got):\n%s", diff)
		}
		return nil
	})
	mustCheck(t, ix)
}

func TestNameRoundTrip(t *testing.T) {
	ix := newTestIndex(t)
	fn, err := ix.InsertBinding(BindingSpec{Type: testFunction, Name: "open"})
	if err != nil {
		t.Fatal(err)
	}
	info, err := ix.InsertName(Occurrence{File: "src/io.c", Offset: 1234, Length: 4}, fn.Ref)
	if err != nil {
		t.Fatal(err)
	}
	want := NameInfo{
		Ref:        info.Ref,
		File:       "src/io.c",
		Offset:     1234,
		Length:     4,
		Binding:    fn.Ref,
		Identifier: "open",
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("inserted name (-want +got):\n%s", diff)
	}

	got, ok, err := ix.ResolveBinding(info.Ref)
	if err != nil || !ok {
		t.Fatalf("ResolveBinding = %v, %v", ok, err)
	}
	if got.Ref != fn.Ref || got.Name != "open" || got.Declarations != 1 {
		t.Errorf("resolved %+v, want %+v with one declaration", got, fn)
	}
}

func TestUnresolvedNameStaysOutOfBindingLists(t *testing.T) {
	ix := newTestIndex(t)
	fn, err := ix.InsertBinding(BindingSpec{Type: testFunction, Name: "f"})
	if err != nil {
		t.Fatal(err)
	}
	bound, err := ix.InsertName(Occurrence{File: "a.c", Offset: 0, Length: 1}, fn.Ref)
	if err != nil {
		t.Fatal(err)
	}
	loose, err := ix.InsertName(Occurrence{File: "a.c", Offset: 5, Length: 3}, BindingRef{})
	if err != nil {
		t.Fatal(err)
	}
	if !loose.Binding.IsNull() || loose.Identifier != "" {
		t.Errorf("unresolved name carries binding %v %q", loose.Binding, loose.Identifier)
	}
	if _, ok, err := ix.ResolveBinding(loose.Ref); ok || err != nil {
		t.Errorf("ResolveBinding(unresolved) = %v, %v; want absent", ok, err)
	}

	decls, err := ix.Declarations(fn.Ref)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]NameRef{bound.Ref}, refs(decls)); diff != "" {
		t.Errorf("declarations (-want +got):\n%s", diff)
	}

	if err := ix.DeleteName(loose.Ref); err != nil {
		t.Fatalf("delete unresolved: %v", err)
	}
	decls, err = ix.Declarations(fn.Ref)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]NameRef{bound.Ref}, refs(decls)); diff != "" {
		t.Errorf("declarations after deleting unresolved name (-want +got):\n%s", diff)
	}
	mustCheck(t, ix)
}

func TestDeleteSoleMemberClearsHeads(t *testing.T) {
	ix := newTestIndex(t)
	mustWrite(t, ix, func(tx *WriteTx) error {
		v, err := tx.InsertBinding(BindingSpec{Type: testVariable, Name: "g"})
		if err != nil {
			return err
		}
		n, err := tx.InsertName(Occurrence{File: "g.c", Offset: 3, Length: 1}, v)
		if err != nil {
			return err
		}
		f, err := n.File()
		if err != nil {
			return err
		}
		if err := tx.DeleteName(n); err != nil {
			return err
		}
		if _, ok, err := v.FirstDeclaration(); ok || err != nil {
			t.Errorf("binding head after sole delete: %v, %v", ok, err)
		}
		if _, ok, err := f.FirstName(); ok || err != nil {
			t.Errorf("file head after sole delete: %v, %v", ok, err)
		}
		return nil
	})
	mustCheck(t, ix)
}

func TestDeletedNameRefIsStale(t *testing.T) {
	ix := newTestIndex(t)
	fn, err := ix.InsertBinding(BindingSpec{Type: testFunction, Name: "f"})
	if err != nil {
		t.Fatal(err)
	}
	old, err := ix.InsertName(Occurrence{File: "a.c", Offset: 1, Length: 1}, fn.Ref)
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.DeleteName(old.Ref); err != nil {
		t.Fatal(err)
	}
	if err := ix.DeleteName(old.Ref); !errors.Is(err, db.ErrStaleRecord) {
		t.Fatalf("second delete: %v, want ErrStaleRecord", err)
	}

	reused, err := ix.InsertName(Occurrence{File: "a.c", Offset: 2, Length: 1}, fn.Ref)
	if err != nil {
		t.Fatal(err)
	}
	if reused.Ref.Offset != old.Ref.Offset {
		t.Fatalf("freed block not reused: old %v new %v", old.Ref, reused.Ref)
	}
	if _, _, err := ix.ResolveBinding(old.Ref); !errors.Is(err, db.ErrStaleRecord) {
		t.Errorf("old ref after reuse: %v, want ErrStaleRecord", err)
	}
	if _, ok, err := ix.ResolveBinding(reused.Ref); !ok || err != nil {
		t.Errorf("new ref: %v, %v", ok, err)
	}
}

func TestNameUnsupportedAccessors(t *testing.T) {
	ix := newTestIndex(t)
	mustWrite(t, ix, func(tx *WriteTx) error {
		n, err := tx.InsertName(Occurrence{File: "a.c", Offset: 0, Length: 1}, Binding{})
		if err != nil {
			return err
		}
		checks := []struct {
			name string
			call func() error
		}{
			{"is-declaration", func() error { _, err := n.IsDeclaration(); return err }},
			{"is-reference", func() error { _, err := n.IsReference(); return err }},
			{"is-definition", func() error { _, err := n.IsDefinition(); return err }},
			{"starting-line", func() error { _, err := n.StartingLine(); return err }},
			{"raw-signature", func() error { _, err := n.RawSignature(); return err }},
		}
		for _, c := range checks {
			err := c.call()
			var ue *UnsupportedError
			if !errors.As(err, &ue) || ue.Capability != c.name || !errors.Is(err, ErrUnsupported) {
				t.Errorf("%s: got %v, want UnsupportedError", c.name, err)
			}
		}
		return nil
	})
}

func TestHandlesExpireWithTransaction(t *testing.T) {
	ix := newTestIndex(t)
	var kept Name
	var fn Binding
	mustWrite(t, ix, func(tx *WriteTx) error {
		var err error
		if fn, err = tx.InsertBinding(BindingSpec{Type: testFunction, Name: "f"}); err != nil {
			return err
		}
		kept, err = tx.InsertName(Occurrence{File: "a.c", Offset: 0, Length: 1}, fn)
		return err
	})
	if _, err := kept.NodeOffset(); !errors.Is(err, ErrTxClosed) {
		t.Errorf("name after tx: %v, want ErrTxClosed", err)
	}
	if _, err := fn.Name(); !errors.Is(err, ErrTxClosed) {
		t.Errorf("binding after tx: %v, want ErrTxClosed", err)
	}

	mustRead(t, ix, func(tx *ReadTx) error {
		b, ok, err := tx.FindBinding(testFunction, BindingRef{}, "f")
		if err != nil || !ok {
			t.Fatalf("FindBinding = %v, %v", ok, err)
		}
		if err := b.SetFlag(CapInline, true); !errors.Is(err, ErrReadOnly) {
			t.Errorf("SetFlag in read tx: %v, want ErrReadOnly", err)
		}
		return nil
	})
}

func TestInsertNameRejectsNegativeSpan(t *testing.T) {
	ix := newTestIndex(t)
	if _, err := ix.InsertName(Occurrence{File: "a.c", Offset: -1, Length: 1}, BindingRef{}); err == nil {
		t.Fatal("negative offset accepted")
	}
	files, err := ix.Files()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("rejected insert created files: %+v", files)
	}
}
