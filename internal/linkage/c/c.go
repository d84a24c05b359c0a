// Package c registers the binding kinds of the C linkage and provides typed
// views over them.
package c

import "pdom/internal/pdom"

// Node types of the C linkage.
const (
	VariableType pdom.NodeType = iota + 1
	FunctionType
	StructureType
	UnionType
	FieldType
	EnumerationType
	EnumeratorType
	TypedefType
)

// storage-class byte
var (
	bitStatic   = pdom.BitSlot{Byte: pdom.AnnotationStorage, Bit: 0}
	bitExtern   = pdom.BitSlot{Byte: pdom.AnnotationStorage, Bit: 1}
	bitAuto     = pdom.BitSlot{Byte: pdom.AnnotationStorage, Bit: 2}
	bitRegister = pdom.BitSlot{Byte: pdom.AnnotationStorage, Bit: 3}
	bitConst    = pdom.BitSlot{Byte: pdom.AnnotationStorage, Bit: 4}
	bitVolatile = pdom.BitSlot{Byte: pdom.AnnotationStorage, Bit: 5}
	bitInline   = pdom.BitSlot{Byte: pdom.AnnotationStorage, Bit: 2}
	bitVarArgs  = pdom.BitSlot{Byte: pdom.AnnotationStorage, Bit: 3}
)

// Kinds lists the C binding kinds, parents first.
var Kinds = []pdom.Kind{
	{
		Type: VariableType, Name: "c.variable",
		Bits: map[pdom.Capability]pdom.BitSlot{
			pdom.CapStatic:   bitStatic,
			pdom.CapExtern:   bitExtern,
			pdom.CapAuto:     bitAuto,
			pdom.CapRegister: bitRegister,
			pdom.CapConst:    bitConst,
			pdom.CapVolatile: bitVolatile,
		},
		Fields: []pdom.FieldSpec{{Cap: pdom.CapTypeName, Type: pdom.FieldString}},
	},
	{
		Type: FunctionType, Name: "c.function",
		Bits: map[pdom.Capability]pdom.BitSlot{
			pdom.CapStatic:  bitStatic,
			pdom.CapExtern:  bitExtern,
			pdom.CapInline:  bitInline,
			pdom.CapVarArgs: bitVarArgs,
		},
		Fields: []pdom.FieldSpec{
			{Cap: pdom.CapParamCount, Type: pdom.FieldInt},
			{Cap: pdom.CapSignature, Type: pdom.FieldString},
		},
	},
	{Type: StructureType, Name: "c.struct"},
	{Type: UnionType, Name: "c.union"},
	{
		Type: FieldType, Name: "c.field",
		Bits: map[pdom.Capability]pdom.BitSlot{
			pdom.CapConst:    bitConst,
			pdom.CapVolatile: bitVolatile,
		},
		Fields: []pdom.FieldSpec{{Cap: pdom.CapTypeName, Type: pdom.FieldString}},
	},
	{Type: EnumerationType, Name: "c.enumeration"},
	{
		Type: EnumeratorType, Name: "c.enumerator",
		Fields: []pdom.FieldSpec{{Cap: pdom.CapValue, Type: pdom.FieldInt}},
	},
	{
		Type: TypedefType, Name: "c.typedef",
		Fields: []pdom.FieldSpec{{Cap: pdom.CapTypeName, Type: pdom.FieldString}},
	},
}

// Register adds the C kinds to r.
func Register(r *pdom.Registry) error {
	for _, k := range Kinds {
		if err := r.Register(k); err != nil {
			return err
		}
	}
	return nil
}

// Variable is a C object declaration.
type Variable struct{ pdom.Binding }

// AsVariable checks the discriminant of b.
func AsVariable(b pdom.Binding) (Variable, bool) {
	return Variable{b}, b.Expect(VariableType) == nil
}

func (v Variable) IsStatic() (bool, error)   { return v.Flag(pdom.CapStatic) }
func (v Variable) IsExtern() (bool, error)   { return v.Flag(pdom.CapExtern) }
func (v Variable) IsAuto() (bool, error)     { return v.Flag(pdom.CapAuto) }
func (v Variable) IsRegister() (bool, error) { return v.Flag(pdom.CapRegister) }
func (v Variable) IsConst() (bool, error)    { return v.Flag(pdom.CapConst) }
func (v Variable) IsVolatile() (bool, error) { return v.Flag(pdom.CapVolatile) }

// TypeName returns the declared type as spelled by the parser.
func (v Variable) TypeName() (string, error) { return v.StringField(pdom.CapTypeName) }

// Function is a C function.
type Function struct{ pdom.Binding }

// AsFunction checks the discriminant of b.
func AsFunction(b pdom.Binding) (Function, bool) {
	return Function{b}, b.Expect(FunctionType) == nil
}

func (f Function) IsStatic() (bool, error)     { return f.Flag(pdom.CapStatic) }
func (f Function) IsExtern() (bool, error)     { return f.Flag(pdom.CapExtern) }
func (f Function) IsInline() (bool, error)     { return f.Flag(pdom.CapInline) }
func (f Function) TakesVarArgs() (bool, error) { return f.Flag(pdom.CapVarArgs) }

// ParamCount returns the number of declared parameters.
func (f Function) ParamCount() (int, error) {
	n, err := f.IntField(pdom.CapParamCount)
	return int(n), err
}

// Signature returns the parameter list as spelled by the parser.
func (f Function) Signature() (string, error) { return f.StringField(pdom.CapSignature) }

// Enumerator is one constant of an enumeration.
type Enumerator struct{ pdom.Binding }

// AsEnumerator checks the discriminant of b.
func AsEnumerator(b pdom.Binding) (Enumerator, bool) {
	return Enumerator{b}, b.Expect(EnumeratorType) == nil
}

// Value returns the constant value.
func (e Enumerator) Value() (int32, error) { return e.IntField(pdom.CapValue) }

// Typedef names another type.
type Typedef struct{ pdom.Binding }

// AsTypedef checks the discriminant of b.
func AsTypedef(b pdom.Binding) (Typedef, bool) {
	return Typedef{b}, b.Expect(TypedefType) == nil
}

// TypeName returns the aliased type as spelled by the parser.
func (t Typedef) TypeName() (string, error) { return t.StringField(pdom.CapTypeName) }
