package pdom

import (
	"fmt"
	"maps"
	"sort"

	"pdom/internal/db"
)

// Registry maps discriminants to binding layouts. Language binding sets
// register their kinds once, parents before children; the registry is
// read-only once an index is opened on it.
type Registry struct {
	byType map[NodeType]*Layout
	byName map[string]*Layout
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[NodeType]*Layout),
		byName: make(map[string]*Layout),
	}
}

// Register validates k against its parent and adds it.
func (r *Registry) Register(k Kind) error {
	if k.Type == NoNodeType {
		return fmt.Errorf("kind %q: node type 0 is reserved", k.Name)
	}
	if k.Name == "" {
		return fmt.Errorf("kind %d: empty name", k.Type)
	}
	if prev, ok := r.byType[k.Type]; ok {
		return fmt.Errorf("kind %q: node type %d already registered by %q", k.Name, k.Type, prev.Name())
	}
	if _, ok := r.byName[k.Name]; ok {
		return fmt.Errorf("kind %q registered twice", k.Name)
	}

	l := &Layout{
		kind:      k,
		size:      bindingHeaderSize,
		bits:      make(map[Capability]BitSlot),
		fields:    make(map[Capability]fieldSlot),
		ancestors: []NodeType{k.Type},
	}
	if k.Parent != NoNodeType {
		parent, ok := r.byType[k.Parent]
		if !ok {
			return fmt.Errorf("kind %q: parent %d is not registered", k.Name, k.Parent)
		}
		l.size = parent.size
		maps.Copy(l.bits, parent.bits)
		maps.Copy(l.fields, parent.fields)
		l.ancestors = append(l.ancestors, parent.ancestors...)
	}

	used := make(map[BitSlot]Capability, len(l.bits))
	for c, slot := range l.bits {
		used[slot] = c
	}
	caps := make([]Capability, 0, len(k.Bits))
	for c := range k.Bits {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	for _, c := range caps {
		slot := k.Bits[c]
		if slot.Byte > AnnotationMember || slot.Bit > 7 {
			return fmt.Errorf("kind %q: %s bit %d.%d outside the annotation word", k.Name, c, slot.Byte, slot.Bit)
		}
		if l.Supports(c) {
			return fmt.Errorf("kind %q: %s already provided by a parent kind", k.Name, c)
		}
		if other, ok := used[slot]; ok {
			return fmt.Errorf("kind %q: %s reuses the bit of %s", k.Name, c, other)
		}
		used[slot] = c
		l.bits[c] = slot
	}
	for _, f := range k.Fields {
		if l.Supports(f.Cap) {
			return fmt.Errorf("kind %q: %s already provided", k.Name, f.Cap)
		}
		if f.Type != FieldInt && f.Type != FieldString {
			return fmt.Errorf("kind %q: %s has no field type", k.Name, f.Cap)
		}
		l.fields[f.Cap] = fieldSlot{word: l.size / db.IntSize, typ: f.Type}
		l.size += db.IntSize
	}

	r.byType[k.Type] = l
	r.byName[k.Name] = l
	return nil
}

// MustRegister registers kinds and panics on the first invalid one.
func (r *Registry) MustRegister(kinds ...Kind) {
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the layout of nt.
func (r *Registry) Lookup(nt NodeType) (*Layout, bool) {
	l, ok := r.byType[nt]
	return l, ok
}

// LookupName returns the layout registered as name.
func (r *Registry) LookupName(name string) (*Layout, bool) {
	l, ok := r.byName[name]
	return l, ok
}

// Layouts returns every registered layout ordered by node type.
func (r *Registry) Layouts() []*Layout {
	out := make([]*Layout, 0, len(r.byType))
	for _, l := range r.byType {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}
