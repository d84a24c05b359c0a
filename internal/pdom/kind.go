package pdom

import "fmt"

// NodeType is the discriminant stored at the head of every binding record.
type NodeType uint16

const (
	// NoNodeType marks a kind without a parent.
	NoNodeType NodeType = 0
)

// Capability names one accessor of the general binding contract. A kind
// provides a capability either as an annotation bit or as a trailer word.
type Capability uint8

const (
	CapInvalid Capability = iota
	// storage class
	CapStatic
	CapExtern
	CapAuto
	CapRegister
	CapInline
	CapVarArgs
	// qualifiers
	CapConst
	CapVolatile
	CapMutable
	// members
	CapVirtual
	CapPureVirtual
	CapDestructor
	CapImplicit
	CapExplicit
	CapVisibility
	// trailer words
	CapParamCount
	CapValue
	CapClassKey
	CapTypeName
	CapSignature
)

func (c Capability) String() string {
	switch c {
	case CapStatic:
		return "static"
	case CapExtern:
		return "extern"
	case CapAuto:
		return "auto"
	case CapRegister:
		return "register"
	case CapInline:
		return "inline"
	case CapVarArgs:
		return "varargs"
	case CapConst:
		return "const"
	case CapVolatile:
		return "volatile"
	case CapMutable:
		return "mutable"
	case CapVirtual:
		return "virtual"
	case CapPureVirtual:
		return "pure-virtual"
	case CapDestructor:
		return "destructor"
	case CapImplicit:
		return "implicit"
	case CapExplicit:
		return "explicit"
	case CapVisibility:
		return "visibility"
	case CapParamCount:
		return "param-count"
	case CapValue:
		return "value"
	case CapClassKey:
		return "class-key"
	case CapTypeName:
		return "type-name"
	case CapSignature:
		return "signature"
	default:
		return fmt.Sprintf("capability(%d)", uint8(c))
	}
}

// ParseCapability is the inverse of Capability.String.
func ParseCapability(s string) (Capability, bool) {
	for c := CapStatic; c <= CapSignature; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return CapInvalid, false
}

// Annotation bytes inside the annotation word.
const (
	// AnnotationStorage holds C-level storage class and qualifier bits.
	AnnotationStorage uint8 = 0
	// AnnotationMember holds C++ member bits.
	AnnotationMember uint8 = 1
)

// BitSlot locates a flag inside the annotation word.
type BitSlot struct {
	Byte uint8
	Bit  uint8
}

// FieldType tells how a trailer word is interpreted.
type FieldType uint8

const (
	FieldInt FieldType = iota + 1
	FieldString
)

// FieldSpec declares one trailer word added by a kind.
type FieldSpec struct {
	Cap  Capability
	Type FieldType
}

// Kind describes one binding kind: its discriminant, the kind it extends,
// and what it appends to the parent layout.
type Kind struct {
	Type   NodeType
	Name   string
	Parent NodeType
	Bits   map[Capability]BitSlot
	Fields []FieldSpec
}

type fieldSlot struct {
	word int
	typ  FieldType
}

// Layout is a registered kind with every inherited bit and field resolved.
type Layout struct {
	kind      Kind
	size      int
	bits      map[Capability]BitSlot
	fields    map[Capability]fieldSlot
	ancestors []NodeType // self first
}

// Type returns the discriminant.
func (l *Layout) Type() NodeType { return l.kind.Type }

// Name returns the qualified kind name, e.g. "cpp.constructor".
func (l *Layout) Name() string { return l.kind.Name }

// RecordSize is the byte size of a binding record of this kind.
func (l *Layout) RecordSize() int { return l.size }

// Is reports whether the kind is nt or extends it.
func (l *Layout) Is(nt NodeType) bool {
	for _, a := range l.ancestors {
		if a == nt {
			return true
		}
	}
	return false
}

// Supports reports whether the kind chain provides c.
func (l *Layout) Supports(c Capability) bool {
	if _, ok := l.bits[c]; ok {
		return true
	}
	_, ok := l.fields[c]
	return ok
}

// Capabilities lists the capabilities provided, in declaration order.
func (l *Layout) Capabilities() []Capability {
	var out []Capability
	for c := CapStatic; c <= CapSignature; c++ {
		if l.Supports(c) {
			out = append(out, c)
		}
	}
	return out
}
