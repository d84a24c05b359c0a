// Package cpp registers the binding kinds of the C++ linkage. Kinds extend
// one another the way the language does: a constructor is a method, a method
// is a function, a field is a variable. Child kinds only append bits and
// trailer words, so a view of a parent kind reads a child record unchanged.
package cpp

import (
	"fmt"

	"pdom/internal/pdom"
)

// Node types of the C++ linkage.
const (
	NamespaceType pdom.NodeType = iota + 20
	ClassType
	VariableType
	FieldType
	FunctionType
	MethodType
	ConstructorType
	EnumerationType
	EnumeratorType
	TypedefType
)

// Storage-class byte bits.
const (
	staticBit uint8 = iota
	externBit
	inlineBit
	varArgsBit
	constBit
	volatileBit
)

// Member byte bits.
const (
	virtualBit uint8 = iota
	pureVirtualBit
	destructorBit
	mutableBit
	implicitBit
	explicitBit
)

func storage(bit uint8) pdom.BitSlot { return pdom.BitSlot{Byte: pdom.AnnotationStorage, Bit: bit} }
func member(bit uint8) pdom.BitSlot  { return pdom.BitSlot{Byte: pdom.AnnotationMember, Bit: bit} }

// Kinds lists the C++ binding kinds, parents first.
var Kinds = []pdom.Kind{
	{Type: NamespaceType, Name: "cpp.namespace"},
	{
		Type: ClassType, Name: "cpp.class",
		Fields: []pdom.FieldSpec{{Cap: pdom.CapClassKey, Type: pdom.FieldInt}},
	},
	{
		Type: VariableType, Name: "cpp.variable",
		Bits: map[pdom.Capability]pdom.BitSlot{
			pdom.CapStatic:   storage(staticBit),
			pdom.CapExtern:   storage(externBit),
			pdom.CapConst:    storage(constBit),
			pdom.CapVolatile: storage(volatileBit),
		},
		Fields: []pdom.FieldSpec{{Cap: pdom.CapTypeName, Type: pdom.FieldString}},
	},
	{
		Type: FieldType, Name: "cpp.field", Parent: VariableType,
		Bits:   map[pdom.Capability]pdom.BitSlot{pdom.CapMutable: member(mutableBit)},
		Fields: []pdom.FieldSpec{{Cap: pdom.CapVisibility, Type: pdom.FieldInt}},
	},
	{
		Type: FunctionType, Name: "cpp.function",
		Bits: map[pdom.Capability]pdom.BitSlot{
			pdom.CapStatic:  storage(staticBit),
			pdom.CapExtern:  storage(externBit),
			pdom.CapInline:  storage(inlineBit),
			pdom.CapVarArgs: storage(varArgsBit),
		},
		Fields: []pdom.FieldSpec{
			{Cap: pdom.CapParamCount, Type: pdom.FieldInt},
			{Cap: pdom.CapSignature, Type: pdom.FieldString},
		},
	},
	{
		Type: MethodType, Name: "cpp.method", Parent: FunctionType,
		Bits: map[pdom.Capability]pdom.BitSlot{
			pdom.CapConst:       storage(constBit),
			pdom.CapVolatile:    storage(volatileBit),
			pdom.CapVirtual:     member(virtualBit),
			pdom.CapPureVirtual: member(pureVirtualBit),
			pdom.CapDestructor:  member(destructorBit),
			pdom.CapImplicit:    member(implicitBit),
		},
		Fields: []pdom.FieldSpec{{Cap: pdom.CapVisibility, Type: pdom.FieldInt}},
	},
	{
		Type: ConstructorType, Name: "cpp.constructor", Parent: MethodType,
		Bits: map[pdom.Capability]pdom.BitSlot{pdom.CapExplicit: member(explicitBit)},
	},
	{Type: EnumerationType, Name: "cpp.enumeration"},
	{
		Type: EnumeratorType, Name: "cpp.enumerator",
		Fields: []pdom.FieldSpec{{Cap: pdom.CapValue, Type: pdom.FieldInt}},
	},
	{
		Type: TypedefType, Name: "cpp.typedef",
		Fields: []pdom.FieldSpec{{Cap: pdom.CapTypeName, Type: pdom.FieldString}},
	},
}

// Register adds the C++ kinds to r.
func Register(r *pdom.Registry) error {
	for _, k := range Kinds {
		if err := r.Register(k); err != nil {
			return err
		}
	}
	return nil
}

// Visibility is the access level of a class member.
type Visibility int32

const (
	VisibilityUnset Visibility = iota
	Public
	Protected
	Private
)

func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case Protected:
		return "protected"
	case Private:
		return "private"
	default:
		return fmt.Sprintf("visibility(%d)", int32(v))
	}
}

// ClassKey tells how a class was introduced.
type ClassKey int32

const (
	KeyUnset ClassKey = iota
	KeyStruct
	KeyClass
	KeyUnion
)

func (k ClassKey) String() string {
	switch k {
	case KeyStruct:
		return "struct"
	case KeyClass:
		return "class"
	case KeyUnion:
		return "union"
	default:
		return fmt.Sprintf("class-key(%d)", int32(k))
	}
}
