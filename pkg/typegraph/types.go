package typegraph

import (
	"strings"

	"github.com/go-delve/aotgraph/pkg/metadata"
	"github.com/go-delve/aotgraph/pkg/registration"
)

// Type is a resolved type reference: a *TypeDef or an *ArrayType.
// References that cannot be resolved are reported as a nil Type and false.
type Type interface {
	Name() string
	FullName() string
	isType()
}

// TypeDef is a type definition of the metadata blob.
type TypeDef struct {
	g *Graph

	Index      int
	Definition *metadata.TypeDefinition
	Assembly   *Assembly
	Namespace  string
	name       string
	fullName   string

	// DeclaringType is the enclosing type of a nested type.
	DeclaringType *TypeDef

	Fields  []*Field
	Methods []*Method
}

func (*TypeDef) isType() {}

func (t *TypeDef) Name() string { return t.name }

// FullName returns the namespace qualified name. Nested types are named
// after their declaring type: Outer+Inner.
func (t *TypeDef) FullName() string { return t.fullName }

func (t *TypeDef) String() string { return t.fullName }

// IsNested reports whether t is declared inside another type.
func (t *TypeDef) IsNested() bool { return t.Definition.DeclaringTypeIndex >= 0 }

// IsEnum reports whether t is an enumeration.
func (t *TypeDef) IsEnum() bool { return t.Definition.IsEnum() }

// IsValueType reports whether t is a value type.
func (t *TypeDef) IsValueType() bool { return t.Definition.IsValueType() }

// Parent returns the base type of t.
func (t *TypeDef) Parent() (Type, bool) {
	if t.Definition.ParentIndex < 0 {
		return nil, false
	}
	return t.g.Resolve(t.Definition.ParentIndex)
}

// ElementType returns the underlying type of an enum.
func (t *TypeDef) ElementType() (Type, bool) {
	if !t.IsEnum() || t.Definition.ElementTypeIndex < 0 {
		return nil, false
	}
	return t.g.Resolve(t.Definition.ElementTypeIndex)
}

// Sizes returns the native sizes of t.
func (t *TypeDef) Sizes() (registration.TypeDefinitionSizes, bool) {
	sizes := t.g.Tables.TypeSizes
	if t.Index >= len(sizes) {
		return registration.TypeDefinitionSizes{}, false
	}
	return sizes[t.Index], true
}

// Field returns the field of t called name.
func (t *TypeDef) Field(name string) (*Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Method returns the first method of t called name.
func (t *TypeDef) Method(name string) (*Method, bool) {
	for _, m := range t.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// ArrayType is an array of Element. There is one ArrayType per element
// and rank.
type ArrayType struct {
	Element Type
	Rank    int
}

func (*ArrayType) isType() {}

func (a *ArrayType) suffix() string {
	return "[" + strings.Repeat(",", a.Rank-1) + "]"
}

func (a *ArrayType) Name() string { return a.Element.Name() + a.suffix() }

func (a *ArrayType) FullName() string { return a.Element.FullName() + a.suffix() }

func (a *ArrayType) String() string { return a.FullName() }
