package typegraph

import (
	"github.com/go-delve/aotgraph/pkg/metadata"
)

// FieldAttributes are the attribute bits stored in the type reference of a
// field.
type FieldAttributes uint16

const (
	FieldAccessMask  FieldAttributes = 0x0007
	FieldPrivate     FieldAttributes = 0x0001
	FieldPublic      FieldAttributes = 0x0006
	FieldStatic      FieldAttributes = 0x0010
	FieldInitOnly    FieldAttributes = 0x0020
	FieldLiteral     FieldAttributes = 0x0040
	FieldHasDefault  FieldAttributes = 0x8000
	FieldHasFieldRVA FieldAttributes = 0x0100
)

// Field is a field definition.
type Field struct {
	g *Graph

	Index         int
	Slot          int
	Name          string
	DeclaringType *TypeDef
	Definition    *metadata.FieldDefinition
	Attributes    FieldAttributes

	// defaultValue is the index of the default value entry, or -1.
	defaultValue int
}

// Type returns the type of the field.
func (f *Field) Type() (Type, bool) { return f.g.Resolve(f.Definition.TypeIndex) }

func (f *Field) IsStatic() bool { return f.Attributes&FieldStatic != 0 }

func (f *Field) IsLiteral() bool { return f.Attributes&FieldLiteral != 0 }

// HasFieldRVA reports whether the field is initialized from a raw blob
// rather than a constant.
func (f *Field) HasFieldRVA() bool { return f.Attributes&FieldHasFieldRVA != 0 }

// Offset returns the offset of the field in instances of its declaring
// type, or in the static storage of static fields.
func (f *Field) Offset() (int32, bool) {
	return f.g.Tables.FieldOffset(f.DeclaringType.Index, f.Slot)
}

func (f *Field) defaultEntry() (*metadata.FieldDefaultValue, bool) {
	if f.defaultValue < 0 {
		return nil, false
	}
	dv := &f.g.Metadata.FieldDefaultValues[f.defaultValue]
	if dv.DataIndex == -1 {
		return nil, false
	}
	return dv, true
}

// DefaultOffset returns the offset of the default value payload in the
// metadata blob.
func (f *Field) DefaultOffset() (int, bool) {
	dv, ok := f.defaultEntry()
	if !ok {
		return 0, false
	}
	return f.g.Metadata.DefaultDataOffset(dv.DataIndex), true
}

// Default decodes the default value of the field. Fields initialized from
// a raw blob have no decodable default, see RawInitializer.
func (f *Field) Default() (interface{}, bool, error) {
	dv, ok := f.defaultEntry()
	if !ok || f.HasFieldRVA() {
		return nil, false, nil
	}
	v, err := f.g.defaultValue(defaultKey{field: true, index: f.defaultValue}, dv.TypeIndex, dv.DataIndex)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// RawInitializer returns the blob range holding the initial contents of a
// field with HasFieldRVA: the offset of its default value payload and the
// native size of the field type.
func (f *Field) RawInitializer() (off, size int, ok bool) {
	if !f.HasFieldRVA() {
		return 0, 0, false
	}
	off, ok = f.DefaultOffset()
	if !ok {
		return 0, 0, false
	}
	t, ok := f.Type()
	if !ok {
		return 0, 0, false
	}
	def, ok := t.(*TypeDef)
	if !ok {
		return 0, 0, false
	}
	sizes, ok := def.Sizes()
	if !ok || sizes.NativeSize <= 0 {
		return 0, 0, false
	}
	if off+int(sizes.NativeSize) > len(f.g.Metadata.Data()) {
		return 0, 0, false
	}
	return off, int(sizes.NativeSize), true
}

// RawInitializerData returns the bytes of RawInitializer.
func (f *Field) RawInitializerData() ([]byte, bool) {
	off, size, ok := f.RawInitializer()
	if !ok {
		return nil, false
	}
	return f.g.Metadata.Data()[off : off+size], true
}

// Method is a method definition.
type Method struct {
	g *Graph

	Index         int
	Name          string
	DeclaringType *TypeDef
	Definition    *metadata.MethodDefinition
	Token         uint32
	Parameters    []*Parameter

	// Address is the entry point of the compiled body. Abstract methods and
	// generic definitions have none.
	Address    uint64
	HasAddress bool

	// InvokerIndex selects the runtime invoke stub, or is -1.
	InvokerIndex int32
}

// ReturnType returns the return type of the method.
func (m *Method) ReturnType() (Type, bool) { return m.g.Resolve(m.Definition.ReturnType) }

// Symbol returns the name the method is listed under in Graph.Symbols.
func (m *Method) Symbol() string {
	return m.DeclaringType.Namespace + "$$" + m.DeclaringType.Name() + "_" + m.Name
}

// Invoker returns the address of the invoke stub of the method.
func (m *Method) Invoker() (uint64, bool) {
	if m.g.binder == nil {
		return 0, false
	}
	return m.g.binder.InvokerAt(m.InvokerIndex)
}

// Parameter is a parameter definition.
type Parameter struct {
	g *Graph

	Index      int
	Position   int
	Name       string
	Method     *Method
	Definition *metadata.ParameterDefinition

	defaultValue int
}

// Type returns the type of the parameter.
func (p *Parameter) Type() (Type, bool) { return p.g.Resolve(p.Definition.TypeIndex) }

// Default decodes the default value of an optional parameter.
func (p *Parameter) Default() (interface{}, bool, error) {
	if p.defaultValue < 0 {
		return nil, false, nil
	}
	dv := &p.g.Metadata.ParameterDefaultValues[p.defaultValue]
	if dv.DataIndex == -1 {
		return nil, false, nil
	}
	v, err := p.g.defaultValue(defaultKey{index: p.defaultValue}, dv.TypeIndex, dv.DataIndex)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
