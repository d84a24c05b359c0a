package cpp_test

import (
	"errors"
	"testing"

	"pdom/internal/db"
	"pdom/internal/linkage"
	"pdom/internal/linkage/cpp"
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

func TestConstructorIsMethodIsFunction(t *testing.T) {
	ix := newIndex(t)
	err := ix.Write(func(tx *pdom.WriteTx) error {
		cls, err := tx.InsertBinding(pdom.BindingSpec{
			Type: cpp.ClassType, Name: "Buffer",
			Ints: map[pdom.Capability]int32{pdom.CapClassKey: int32(cpp.KeyClass)},
		})
		if err != nil {
			return err
		}
		owner, err := cls.Ref()
		if err != nil {
			return err
		}
		b, err := tx.InsertBinding(pdom.BindingSpec{
			Type: cpp.ConstructorType, Name: "Buffer", Owner: owner,
			Flags: map[pdom.Capability]bool{pdom.CapExplicit: true, pdom.CapInline: true},
			Ints: map[pdom.Capability]int32{
				pdom.CapParamCount: 1,
				pdom.CapVisibility: int32(cpp.Public),
			},
		})
		if err != nil {
			return err
		}

		ctor, ok := cpp.AsConstructor(b)
		if !ok {
			t.Fatal("AsConstructor rejected a constructor")
		}
		if explicit, err := ctor.IsExplicit(); err != nil || !explicit {
			t.Errorf("IsExplicit = %v, %v", explicit, err)
		}
		if virtual, err := ctor.IsVirtual(); err != nil || virtual {
			t.Errorf("IsVirtual = %v, %v", virtual, err)
		}
		if inline, err := ctor.IsInline(); err != nil || !inline {
			t.Errorf("IsInline = %v, %v", inline, err)
		}
		if n, err := ctor.ParamCount(); err != nil || n != 1 {
			t.Errorf("ParamCount = %d, %v", n, err)
		}
		if v, err := ctor.Visibility(); err != nil || v != cpp.Public {
			t.Errorf("Visibility = %v, %v", v, err)
		}
		if _, ok := cpp.AsMethod(b); !ok {
			t.Error("constructor is not a method")
		}
		if _, ok := cpp.AsFunction(b); !ok {
			t.Error("constructor is not a function")
		}
		if _, ok := cpp.AsField(b); ok {
			t.Error("constructor accepted as field")
		}

		c, ok := cpp.AsClass(cls)
		if !ok {
			t.Fatal("AsClass rejected a class")
		}
		if key, err := c.Key(); err != nil || key != cpp.KeyClass {
			t.Errorf("Key = %v, %v", key, err)
		}
		if _, ok := cpp.AsConstructor(cls); ok {
			t.Error("class accepted as constructor")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMethodViewOfPlainMethodHasNoExplicit(t *testing.T) {
	ix := newIndex(t)
	err := ix.Write(func(tx *pdom.WriteTx) error {
		b, err := tx.InsertBinding(pdom.BindingSpec{
			Type: cpp.MethodType, Name: "size",
			Flags: map[pdom.Capability]bool{pdom.CapConst: true, pdom.CapVirtual: true},
		})
		if err != nil {
			return err
		}
		m, ok := cpp.AsMethod(b)
		if !ok {
			t.Fatal("AsMethod rejected a method")
		}
		if c, err := m.IsConst(); err != nil || !c {
			t.Errorf("IsConst = %v, %v", c, err)
		}
		if _, ok := cpp.AsConstructor(b); ok {
			t.Error("method accepted as constructor")
		}
		if _, err := b.Flag(pdom.CapExplicit); !errors.Is(err, pdom.ErrUnsupported) {
			t.Errorf("explicit on method: %v, want ErrUnsupported", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// Every kind must answer every capability either with a value or with
// UnsupportedError, never with another failure.
func TestCapabilityConformance(t *testing.T) {
	ix := newIndex(t)
	reg := ix.Registry()
	err := ix.Write(func(tx *pdom.WriteTx) error {
		for _, l := range reg.Layouts() {
			b, err := tx.InsertBinding(pdom.BindingSpec{Type: l.Type(), Name: "x"})
			if err != nil {
				return err
			}
			for c := pdom.CapStatic; c <= pdom.CapSignature; c++ {
				_, ferr := b.Flag(c)
				_, ierr := b.IntField(c)
				_, serr := b.StringField(c)
				answered := 0
				for _, err := range []error{ferr, ierr, serr} {
					switch {
					case err == nil:
						answered++
					case !errors.Is(err, pdom.ErrUnsupported):
						t.Errorf("%s %s: %v", l.Name(), c, err)
					}
				}
				want := 0
				if l.Supports(c) {
					want = 1
				}
				if answered != want {
					t.Errorf("%s %s answered by %d accessors, want %d", l.Name(), c, answered, want)
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestVisibilityAndClassKeyStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{cpp.Public.String(), "public"},
		{cpp.Private.String(), "private"},
		{cpp.Visibility(9).String(), "visibility(9)"},
		{cpp.KeyUnion.String(), "union"},
		{cpp.ClassKey(0).String(), "class-key(0)"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
