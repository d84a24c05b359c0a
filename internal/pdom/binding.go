package pdom

import (
	"fmt"

	"pdom/internal/db"
)

// Binding record header; kind trailers follow at bindingHeaderSize.
const (
	bindingNodeType   = 0 * db.IntSize
	bindingAnnotation = 1 * db.IntSize
	bindingFirstDecl  = 2 * db.IntSize
	bindingName       = 3 * db.IntSize
	bindingOwner      = 4 * db.IntSize

	bindingHeaderSize = 5 * db.IntSize
)

// BindingRef identifies a binding across transactions.
type BindingRef struct{ db.Ref }

// Binding is a handle on a binding record, valid inside its transaction.
// The zero Binding stands for "no binding".
type Binding struct {
	s      *txState
	rec    db.Offset
	layout *Layout
}

func (s *txState) binding(rec db.Offset) (Binding, error) {
	if err := s.db().CheckRecord(rec); err != nil {
		return Binding{}, err
	}
	v, err := s.db().GetInt(rec + bindingNodeType)
	if err != nil {
		return Binding{}, err
	}
	layout, ok := s.ix.reg.Lookup(NodeType(v))
	if !ok {
		return Binding{}, fmt.Errorf("%w: %d at %v", ErrUnknownNodeType, v, rec)
	}
	return Binding{s: s, rec: rec, layout: layout}, nil
}

// IsNull reports whether b is the zero Binding.
func (b Binding) IsNull() bool { return b.rec.IsNull() }

// Record returns the record offset.
func (b Binding) Record() db.Offset { return b.rec }

// Ref pins the binding for use in a later transaction.
func (b Binding) Ref() (BindingRef, error) {
	if err := b.s.live(); err != nil {
		return BindingRef{}, err
	}
	ref, err := b.s.db().RefOf(b.rec)
	return BindingRef{ref}, err
}

// Layout returns the kind layout selected by the discriminant.
func (b Binding) Layout() *Layout { return b.layout }

// NodeType returns the discriminant.
func (b Binding) NodeType() NodeType {
	if b.layout == nil {
		return NoNodeType
	}
	return b.layout.Type()
}

// Expect fails with ErrWrongKind unless b is of kind nt or extends it.
func (b Binding) Expect(nt NodeType) error {
	if b.layout == nil || !b.layout.Is(nt) {
		return fmt.Errorf("%w: %v is %s", ErrWrongKind, b.rec, b.kindName())
	}
	return nil
}

func (b Binding) kindName() string {
	if b.layout == nil {
		return "no binding"
	}
	return b.layout.Name()
}

// Name returns the binding's simple name.
func (b Binding) Name() (string, error) {
	if err := b.s.live(); err != nil {
		return "", err
	}
	rec, err := b.s.db().GetRecPtr(b.rec + bindingName)
	if err != nil || rec.IsNull() {
		return "", err
	}
	return b.s.db().GetString(rec)
}

// Owner returns the enclosing binding (class, namespace), if any.
func (b Binding) Owner() (Binding, bool, error) {
	if err := b.s.live(); err != nil {
		return Binding{}, false, err
	}
	rec, err := b.s.db().GetRecPtr(b.rec + bindingOwner)
	if err != nil || rec.IsNull() {
		return Binding{}, false, err
	}
	owner, err := b.s.binding(rec)
	return owner, err == nil, err
}

// FirstDeclaration returns the head of the declaration list.
func (b Binding) FirstDeclaration() (Name, bool, error) {
	if err := b.s.live(); err != nil {
		return Name{}, false, err
	}
	return b.s.nameAt(b.rec + bindingFirstDecl)
}

func (b Binding) setFirstDeclaration(rec db.Offset) error {
	return b.s.db().PutRecPtr(b.rec+bindingFirstDecl, rec)
}

// EachDeclaration walks the declaration list from the head, newest first.
func (b Binding) EachDeclaration(fn func(Name) error) error {
	n, ok, err := b.FirstDeclaration()
	for ; err == nil && ok; n, ok, err = n.NextInBinding() {
		if err := fn(n); err != nil {
			return err
		}
	}
	return err
}

// Declarations collects the declaration list.
func (b Binding) Declarations() ([]Name, error) {
	var out []Name
	err := b.EachDeclaration(func(n Name) error {
		out = append(out, n)
		return nil
	})
	return out, err
}

func (b Binding) bitSlot(c Capability) (BitSlot, error) {
	if err := b.s.live(); err != nil {
		return BitSlot{}, err
	}
	slot, ok := b.layout.bits[c]
	if !ok {
		return BitSlot{}, unsupported(b.layout.Name(), c.String())
	}
	return slot, nil
}

func (b Binding) fieldSlot(c Capability, typ FieldType) (db.Offset, error) {
	if err := b.s.live(); err != nil {
		return db.NullOffset, err
	}
	slot, ok := b.layout.fields[c]
	if !ok || slot.typ != typ {
		return db.NullOffset, unsupported(b.layout.Name(), c.String())
	}
	return b.rec + db.Offset(slot.word*db.IntSize), nil
}

// Flag tests an annotation bit provided by the kind chain.
func (b Binding) Flag(c Capability) (bool, error) {
	slot, err := b.bitSlot(c)
	if err != nil {
		return false, err
	}
	v, err := b.s.db().GetByte(b.rec + bindingAnnotation + db.Offset(slot.Byte))
	if err != nil {
		return false, err
	}
	return v&(1<<slot.Bit) != 0, nil
}

// SetFlag sets or clears an annotation bit.
func (b Binding) SetFlag(c Capability, on bool) error {
	slot, err := b.bitSlot(c)
	if err != nil {
		return err
	}
	if err := b.s.liveWritable(); err != nil {
		return err
	}
	off := b.rec + bindingAnnotation + db.Offset(slot.Byte)
	v, err := b.s.db().GetByte(off)
	if err != nil {
		return err
	}
	if on {
		v |= 1 << slot.Bit
	} else {
		v &^= 1 << slot.Bit
	}
	return b.s.db().PutByte(off, v)
}

// IntField reads an integer trailer word.
func (b Binding) IntField(c Capability) (int32, error) {
	off, err := b.fieldSlot(c, FieldInt)
	if err != nil {
		return 0, err
	}
	return b.s.db().GetInt(off)
}

// SetIntField writes an integer trailer word.
func (b Binding) SetIntField(c Capability, v int32) error {
	off, err := b.fieldSlot(c, FieldInt)
	if err != nil {
		return err
	}
	if err := b.s.liveWritable(); err != nil {
		return err
	}
	return b.s.db().PutInt(off, v)
}

// StringField reads a string trailer word; unset fields read as "".
func (b Binding) StringField(c Capability) (string, error) {
	off, err := b.fieldSlot(c, FieldString)
	if err != nil {
		return "", err
	}
	rec, err := b.s.db().GetRecPtr(off)
	if err != nil || rec.IsNull() {
		return "", err
	}
	return b.s.db().GetString(rec)
}

// SetStringField replaces a string trailer word, freeing the old string.
func (b Binding) SetStringField(c Capability, v string) error {
	off, err := b.fieldSlot(c, FieldString)
	if err != nil {
		return err
	}
	if err := b.s.liveWritable(); err != nil {
		return err
	}
	d := b.s.db()
	old, err := d.GetRecPtr(off)
	if err != nil {
		return err
	}
	if old.IsNull() && v == "" {
		return nil
	}
	if !old.IsNull() {
		if cur, err := d.GetString(old); err == nil && cur == v {
			return nil
		}
	}
	rec := db.NullOffset
	if v != "" {
		if rec, err = d.NewString(v); err != nil {
			return err
		}
	}
	if err := d.PutRecPtr(off, rec); err != nil {
		return err
	}
	return d.FreeString(old)
}

// Flags lists the capabilities whose annotation bit is set.
func (b Binding) Flags() ([]Capability, error) {
	var out []Capability
	for _, c := range b.layout.Capabilities() {
		if _, ok := b.layout.bits[c]; !ok {
			continue
		}
		on, err := b.Flag(c)
		if err != nil {
			return nil, err
		}
		if on {
			out = append(out, c)
		}
	}
	return out, nil
}

// bindingKey is the identity of a binding in the binding map.
func bindingKey(nt NodeType, owner db.Offset, name string) string {
	return fmt.Sprintf("%d/%d/%s", nt, owner, name)
}

func bindingKeyAt(d *db.Database, rec db.Offset) (string, error) {
	nt, err := d.GetInt(rec + bindingNodeType)
	if err != nil {
		return "", err
	}
	owner, err := d.GetRecPtr(rec + bindingOwner)
	if err != nil {
		return "", err
	}
	nameRec, err := d.GetRecPtr(rec + bindingName)
	if err != nil {
		return "", err
	}
	name := ""
	if !nameRec.IsNull() {
		if name, err = d.GetString(nameRec); err != nil {
			return "", err
		}
	}
	return bindingKey(NodeType(nt), owner, name), nil
}

// BindingSpec describes a binding to insert or update.
type BindingSpec struct {
	Type    NodeType
	Name    string
	Owner   BindingRef // null at global scope
	Flags   map[Capability]bool
	Ints    map[Capability]int32
	Strings map[Capability]string
}

// Check reports the first capability of spec that the kind chain does not
// provide with a matching accessor. It reads no records, so callers can vet a
// batch before changing anything.
func (l *Layout) Check(spec BindingSpec) error {
	for c := range spec.Flags {
		if _, ok := l.bits[c]; !ok {
			return unsupported(l.Name(), c.String())
		}
	}
	for c := range spec.Ints {
		if slot, ok := l.fields[c]; !ok || slot.typ != FieldInt {
			return unsupported(l.Name(), c.String())
		}
	}
	for c := range spec.Strings {
		if slot, ok := l.fields[c]; !ok || slot.typ != FieldString {
			return unsupported(l.Name(), c.String())
		}
	}
	return nil
}

// InsertBinding returns the binding identified by (Type, Owner, Name),
// creating it when absent, and applies the flags and fields of spec to it.
// A capability the kind does not provide fails with *UnsupportedError.
func (tx *WriteTx) InsertBinding(spec BindingSpec) (Binding, error) {
	if err := tx.s.liveWritable(); err != nil {
		return Binding{}, err
	}
	ix := tx.s.ix
	layout, ok := ix.reg.Lookup(spec.Type)
	if !ok {
		return Binding{}, fmt.Errorf("%w: %d", ErrUnknownNodeType, spec.Type)
	}
	if err := layout.Check(spec); err != nil {
		return Binding{}, err
	}

	d := tx.s.db()
	owner := db.NullOffset
	if !spec.Owner.IsNull() {
		var err error
		if owner, err = d.Resolve(spec.Owner.Ref); err != nil {
			return Binding{}, fmt.Errorf("binding %q owner: %w", spec.Name, err)
		}
	}
	key := bindingKey(spec.Type, owner, spec.Name)
	rec, found, err := ix.bindings.find(key)
	if err != nil {
		return Binding{}, err
	}
	if !found {
		if rec, err = tx.newBinding(layout, owner, spec.Name); err != nil {
			return Binding{}, err
		}
		if err := ix.bindings.insert(key, rec); err != nil {
			return Binding{}, fmt.Errorf("register binding %q: %w", key, err)
		}
		ix.metrics.BindingInserted()
	}

	b, err := tx.s.binding(rec)
	if err != nil {
		return Binding{}, err
	}
	for c, on := range spec.Flags {
		if err := b.SetFlag(c, on); err != nil {
			return Binding{}, err
		}
	}
	for c, v := range spec.Ints {
		if err := b.SetIntField(c, v); err != nil {
			return Binding{}, err
		}
	}
	for c, v := range spec.Strings {
		if err := b.SetStringField(c, v); err != nil {
			return Binding{}, err
		}
	}
	return b, nil
}

func (tx *WriteTx) newBinding(layout *Layout, owner db.Offset, name string) (db.Offset, error) {
	d := tx.s.db()
	rec, err := d.Malloc(layout.RecordSize())
	if err != nil {
		return db.NullOffset, err
	}
	if err := d.PutInt(rec+bindingNodeType, int32(layout.Type())); err != nil {
		return db.NullOffset, err
	}
	if err := d.PutRecPtr(rec+bindingOwner, owner); err != nil {
		return db.NullOffset, err
	}
	if name != "" {
		str, err := d.NewString(name)
		if err != nil {
			return db.NullOffset, err
		}
		if err := d.PutRecPtr(rec+bindingName, str); err != nil {
			return db.NullOffset, err
		}
	}
	return rec, nil
}
