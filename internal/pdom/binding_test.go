package pdom

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLayoutInheritance(t *testing.T) {
	r := testRegistry()
	ctor, ok := r.Lookup(testConstructor)
	if !ok {
		t.Fatal("constructor not registered")
	}
	method, _ := r.Lookup(testMethod)
	function, _ := r.Lookup(testFunction)

	if got, want := ctor.RecordSize(), method.RecordSize(); got != want {
		t.Errorf("constructor record %d bytes, method %d: flags must not grow the record", got, want)
	}
	if got, want := method.RecordSize(), function.RecordSize()+4; got != want {
		t.Errorf("method record %d bytes, want %d", got, want)
	}
	for _, nt := range []NodeType{testConstructor, testMethod, testFunction} {
		if !ctor.Is(nt) {
			t.Errorf("constructor does not extend %d", nt)
		}
	}
	if ctor.Is(testVariable) || function.Is(testMethod) {
		t.Error("Is crosses unrelated kinds")
	}
	want := []Capability{CapInline, CapVirtual, CapExplicit, CapParamCount, CapSignature}
	if diff := cmp.Diff(want, ctor.Capabilities()); diff != "" {
		t.Errorf("constructor capabilities (-want +got):\n%s", diff)
	}
}

func TestRegistryRejectsInvalidKinds(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want string
	}{
		{"zero type", Kind{Name: "x"}, "reserved"},
		{"empty name", Kind{Type: 90}, "empty name"},
		{"duplicate type", Kind{Type: testClass, Name: "other"}, "already registered"},
		{"duplicate name", Kind{Type: 90, Name: "test.class"}, "registered twice"},
		{"unknown parent", Kind{Type: 90, Name: "x", Parent: 77}, "not registered"},
		{"byte out of word", Kind{Type: 90, Name: "x", Bits: map[Capability]BitSlot{CapStatic: {Byte: 2}}}, "outside"},
		{"bit out of byte", Kind{Type: 90, Name: "x", Bits: map[Capability]BitSlot{CapStatic: {Bit: 8}}}, "outside"},
		{"redefined flag", Kind{Type: 90, Name: "x", Parent: testMethod,
			Bits: map[Capability]BitSlot{CapVirtual: {Byte: AnnotationMember, Bit: 5}}}, "already provided"},
		{"reused bit", Kind{Type: 90, Name: "x", Parent: testMethod,
			Bits: map[Capability]BitSlot{CapPureVirtual: {Byte: AnnotationMember, Bit: 0}}}, "reuses the bit"},
		{"redefined field", Kind{Type: 90, Name: "x", Parent: testFunction,
			Fields: []FieldSpec{{Cap: CapParamCount, Type: FieldInt}}}, "already provided"},
		{"untyped field", Kind{Type: 90, Name: "x", Fields: []FieldSpec{{Cap: CapValue}}}, "no field type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testRegistry().Register(tt.kind)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Register = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestBindingFlagsAndFields(t *testing.T) {
	ix := newTestIndex(t)
	mustWrite(t, ix, func(tx *WriteTx) error {
		cls, err := tx.InsertBinding(BindingSpec{Type: testClass, Name: "Shape"})
		if err != nil {
			return err
		}
		owner, err := cls.Ref()
		if err != nil {
			return err
		}
		m, err := tx.InsertBinding(BindingSpec{
			Type:    testMethod,
			Name:    "area",
			Owner:   owner,
			Flags:   map[Capability]bool{CapVirtual: true, CapInline: true},
			Ints:    map[Capability]int32{CapParamCount: 0},
			Strings: map[Capability]string{CapSignature: "double() const"},
		})
		if err != nil {
			return err
		}
		if on, err := m.Flag(CapVirtual); err != nil || !on {
			t.Errorf("virtual = %v, %v", on, err)
		}
		if err := m.SetFlag(CapInline, false); err != nil {
			return err
		}
		flags, err := m.Flags()
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]Capability{CapVirtual}, flags); diff != "" {
			t.Errorf("flags (-want +got):\n%s", diff)
		}
		if err := m.SetIntField(CapParamCount, 3); err != nil {
			return err
		}
		if n, err := m.IntField(CapParamCount); err != nil || n != 3 {
			t.Errorf("param-count = %d, %v", n, err)
		}
		if s, err := m.StringField(CapSignature); err != nil || s != "double() const" {
			t.Errorf("signature = %q, %v", s, err)
		}
		if err := m.SetStringField(CapSignature, ""); err != nil {
			return err
		}
		if s, err := m.StringField(CapSignature); err != nil || s != "" {
			t.Errorf("cleared signature = %q, %v", s, err)
		}

		got, ok, err := m.Owner()
		if err != nil || !ok || got.Record() != cls.Record() {
			t.Errorf("owner = %v, %v, %v", got.Record(), ok, err)
		}
		if err := m.Expect(testFunction); err != nil {
			t.Errorf("method is not a function: %v", err)
		}
		if err := m.Expect(testConstructor); !errors.Is(err, ErrWrongKind) {
			t.Errorf("Expect(constructor) = %v, want ErrWrongKind", err)
		}
		return nil
	})
}

func TestBindingUnsupportedCapabilities(t *testing.T) {
	ix := newTestIndex(t)
	mustWrite(t, ix, func(tx *WriteTx) error {
		v, err := tx.InsertBinding(BindingSpec{Type: testVariable, Name: "counter"})
		if err != nil {
			return err
		}
		checks := []struct {
			cap  Capability
			call func() error
		}{
			{CapVirtual, func() error { _, err := v.Flag(CapVirtual); return err }},
			{CapExplicit, func() error { return v.SetFlag(CapExplicit, true) }},
			{CapParamCount, func() error { _, err := v.IntField(CapParamCount); return err }},
			{CapSignature, func() error { return v.SetStringField(CapSignature, "int") }},
		}
		for _, c := range checks {
			err := c.call()
			var ue *UnsupportedError
			if !errors.As(err, &ue) || ue.Kind != "test.variable" || ue.Capability != c.cap.String() {
				t.Errorf("%s on variable: %v, want UnsupportedError", c.cap, err)
			}
		}

		m, err := tx.InsertBinding(BindingSpec{Type: testMethod, Name: "run"})
		if err != nil {
			return err
		}
		if _, err := m.IntField(CapSignature); !errors.Is(err, ErrUnsupported) {
			t.Errorf("string field read as int: %v, want ErrUnsupported", err)
		}
		return nil
	})

	_, err := ix.InsertBinding(BindingSpec{Type: testVariable, Name: "x", Flags: map[Capability]bool{CapVirtual: true}})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("InsertBinding with foreign flag: %v, want ErrUnsupported", err)
	}
	if _, ok, err := ix.FindBinding(testVariable, BindingRef{}, "x"); ok || err != nil {
		t.Errorf("rejected binding was stored: %v, %v", ok, err)
	}
	_, err = ix.InsertBinding(BindingSpec{Type: 99, Name: "x"})
	if !errors.Is(err, ErrUnknownNodeType) {
		t.Errorf("InsertBinding(unknown type) = %v, want ErrUnknownNodeType", err)
	}
}

func TestInsertBindingIsInsertOrGet(t *testing.T) {
	ix := newTestIndex(t)
	a, err := ix.InsertBinding(BindingSpec{Type: testFunction, Name: "f"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := ix.InsertBinding(BindingSpec{Type: testFunction, Name: "f", Flags: map[Capability]bool{CapInline: true}})
	if err != nil {
		t.Fatal(err)
	}
	if a.Ref != b.Ref {
		t.Errorf("same identity gave two bindings: %v %v", a.Ref, b.Ref)
	}
	if diff := cmp.Diff([]Capability{CapInline}, b.Flags); diff != "" {
		t.Errorf("flags after update (-want +got):\n%s", diff)
	}

	cls, err := ix.InsertBinding(BindingSpec{Type: testClass, Name: "C"})
	if err != nil {
		t.Fatal(err)
	}
	member, err := ix.InsertBinding(BindingSpec{Type: testFunction, Name: "f", Owner: cls.Ref})
	if err != nil {
		t.Fatal(err)
	}
	variable, err := ix.InsertBinding(BindingSpec{Type: testVariable, Name: "f"})
	if err != nil {
		t.Fatal(err)
	}
	if member.Ref == a.Ref || variable.Ref == a.Ref {
		t.Error("owner and kind are not part of binding identity")
	}

	all, err := ix.Bindings()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("Bindings() = %d entries, want 4", len(all))
	}
	st, err := ix.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Bindings != 4 || st.Files != 0 {
		t.Errorf("stats = %+v", st)
	}
}
