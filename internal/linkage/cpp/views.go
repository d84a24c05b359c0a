package cpp

import "pdom/internal/pdom"

// Class is a struct, class or union.
type Class struct{ pdom.Binding }

// AsClass checks the discriminant of b.
func AsClass(b pdom.Binding) (Class, bool) {
	return Class{b}, b.Expect(ClassType) == nil
}

// Key returns the class key.
func (c Class) Key() (ClassKey, error) {
	v, err := c.IntField(pdom.CapClassKey)
	return ClassKey(v), err
}

// Variable is a namespace-scope or static object.
type Variable struct{ pdom.Binding }

// AsVariable accepts variables and fields.
func AsVariable(b pdom.Binding) (Variable, bool) {
	return Variable{b}, b.Expect(VariableType) == nil
}

func (v Variable) IsStatic() (bool, error)   { return v.Flag(pdom.CapStatic) }
func (v Variable) IsExtern() (bool, error)   { return v.Flag(pdom.CapExtern) }
func (v Variable) IsConst() (bool, error)    { return v.Flag(pdom.CapConst) }
func (v Variable) IsVolatile() (bool, error) { return v.Flag(pdom.CapVolatile) }

// TypeName returns the declared type as spelled by the parser.
func (v Variable) TypeName() (string, error) { return v.StringField(pdom.CapTypeName) }

// Field is a data member.
type Field struct{ Variable }

// AsField checks the discriminant of b.
func AsField(b pdom.Binding) (Field, bool) {
	return Field{Variable{b}}, b.Expect(FieldType) == nil
}

func (f Field) IsMutable() (bool, error) { return f.Flag(pdom.CapMutable) }

// Visibility returns the member access level.
func (f Field) Visibility() (Visibility, error) {
	v, err := f.IntField(pdom.CapVisibility)
	return Visibility(v), err
}

// Function is a free function.
type Function struct{ pdom.Binding }

// AsFunction accepts functions, methods and constructors.
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

// Method is a member function.
type Method struct{ Function }

// AsMethod accepts methods and constructors.
func AsMethod(b pdom.Binding) (Method, bool) {
	return Method{Function{b}}, b.Expect(MethodType) == nil
}

func (m Method) IsVirtual() (bool, error)     { return m.Flag(pdom.CapVirtual) }
func (m Method) IsPureVirtual() (bool, error) { return m.Flag(pdom.CapPureVirtual) }
func (m Method) IsDestructor() (bool, error)  { return m.Flag(pdom.CapDestructor) }
func (m Method) IsImplicit() (bool, error)    { return m.Flag(pdom.CapImplicit) }
func (m Method) IsConst() (bool, error)       { return m.Flag(pdom.CapConst) }
func (m Method) IsVolatile() (bool, error)    { return m.Flag(pdom.CapVolatile) }

// Visibility returns the member access level.
func (m Method) Visibility() (Visibility, error) {
	v, err := m.IntField(pdom.CapVisibility)
	return Visibility(v), err
}

// Constructor is a method that constructs its class.
type Constructor struct{ Method }

// AsConstructor checks the discriminant of b.
func AsConstructor(b pdom.Binding) (Constructor, bool) {
	return Constructor{Method{Function{b}}}, b.Expect(ConstructorType) == nil
}

// IsExplicit reports whether the constructor was declared explicit.
func (c Constructor) IsExplicit() (bool, error) { return c.Flag(pdom.CapExplicit) }

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
