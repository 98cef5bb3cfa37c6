// Package constant decodes the default values of fields and parameters
// stored in the metadata blob.
package constant

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/go-delve/aotgraph/pkg/decode"
	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/registration"
)

const (
	// arrayWithDifferentElements marks arrays whose elements each carry
	// their own encoded type.
	arrayWithDifferentElements = 1

	maxDepth        = 16
	maxNullElements = 1 << 20
)

// Resolver answers the questions about type references that the blob
// does not encode itself.
type Resolver interface {
	// Reference returns the type reference at index.
	Reference(index int32) (registration.Type, bool)
	// EnumUnderlying returns the kind of the integer backing the enum
	// definition def.
	EnumUnderlying(def int) (registration.TypeEnum, bool)
}

// TypeRef is a decoded reference to a type, stored as its index in the
// type reference table.
type TypeRef struct {
	Index int32
}

func (t TypeRef) String() string { return fmt.Sprintf("typeref(%d)", t.Index) }

// Element is one element of a constant array.
type Element struct {
	Kind  registration.TypeEnum
	// Enum is the type reference index of the enum the element belongs to,
	// or -1.
	Enum  int32
	Value interface{}
}

// Array is a decoded constant array.
type Array struct {
	Kind     registration.TypeEnum
	Enum     int32
	Elements []Element
}

// Decoder decodes constants with the help of a Resolver.
type Decoder struct {
	res Resolver
}

// NewDecoder returns a decoder that resolves enums through res.
func NewDecoder(res Resolver) *Decoder {
	return &Decoder{res: res}
}

// Decode reads the constant of the type referenced by typeIndex at the
// current position of r. Enums are decoded as their underlying integer.
func (d *Decoder) Decode(r *decode.Reader, typeIndex int32) (interface{}, error) {
	ref, ok := d.res.Reference(typeIndex)
	if !ok {
		return nil, fault.Formatf("metadata", "constant of unknown type reference %d", typeIndex)
	}
	kind := ref.Kind()
	if kind == registration.TypeValueType {
		u, ok := d.res.EnumUnderlying(int(ref.Data))
		if !ok {
			return nil, fault.Formatf("metadata", "constant of value type %d which is not an enum", ref.Data)
		}
		kind = u
	}
	return d.DecodeKind(r, kind)
}

// DecodeKind reads one constant of kind at the current position of r.
func (d *Decoder) DecodeKind(r *decode.Reader, kind registration.TypeEnum) (interface{}, error) {
	v, err := d.decode(r, kind, 0)
	if err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return v, nil
}

func (d *Decoder) decode(r *decode.Reader, kind registration.TypeEnum, depth int) (interface{}, error) {
	switch kind {
	case registration.TypeBoolean:
		return r.Uint8() != 0, nil
	case registration.TypeU1:
		return r.Uint8(), nil
	case registration.TypeI1:
		return r.Int8(), nil
	case registration.TypeChar:
		return rune(r.Uint16()), nil
	case registration.TypeU2:
		return r.Uint16(), nil
	case registration.TypeI2:
		return r.Int16(), nil
	case registration.TypeU4:
		return r.CompressedUint32(), nil
	case registration.TypeI4:
		return r.CompressedInt32(), nil
	case registration.TypeU8:
		return r.Uint64(), nil
	case registration.TypeI8:
		return r.Int64(), nil
	case registration.TypeR4:
		return r.Float32(), nil
	case registration.TypeR8:
		return r.Float64(), nil
	case registration.TypeString:
		n := r.CompressedInt32()
		if n == -1 {
			return nil, nil
		}
		if n < 0 || int(n) > r.Len() {
			return nil, fault.Formatf("metadata", "string constant of length %d at %#x", n, r.Offset())
		}
		return string(r.Bytes(int(n))), nil
	case registration.TypeSzArray:
		return d.array(r, depth)
	case registration.TypeClass, registration.TypeObject, registration.TypeGenericInst:
		return nil, nil
	case registration.TypeIndex:
		i := r.CompressedInt32()
		if i == -1 {
			return nil, nil
		}
		return TypeRef{Index: i}, nil
	}
	return nil, fault.Formatf("metadata", "type %v cannot hold a constant", kind)
}

func (d *Decoder) array(r *decode.Reader, depth int) (interface{}, error) {
	if depth >= maxDepth {
		return nil, fault.Formatf("metadata", "constant arrays nested deeper than %d", maxDepth)
	}
	n := r.CompressedInt32()
	if n == -1 {
		return nil, nil
	}
	kind, enum, err := d.encodedType(r)
	if err != nil {
		return nil, err
	}
	different := r.Uint8() == arrayWithDifferentElements
	if err := checkLength(r, n, kind, different); err != nil {
		return nil, err
	}

	a := &Array{Kind: kind, Enum: enum, Elements: make([]Element, 0, n)}
	for i := int32(0); i < n && r.Err == nil; i++ {
		e := Element{Kind: kind, Enum: enum}
		if different {
			if e.Kind, e.Enum, err = d.encodedType(r); err != nil {
				return nil, err
			}
		}
		if e.Value, err = d.decode(r, e.Kind, depth+1); err != nil {
			return nil, errors.Wrapf(err, "element %d", i)
		}
		a.Elements = append(a.Elements, e)
	}
	return a, nil
}

// checkLength rejects lengths the rest of the blob cannot hold.
func checkLength(r *decode.Reader, n int32, kind registration.TypeEnum, different bool) error {
	switch {
	case n < 0:
		return fault.Formatf("metadata", "constant array of length %d", n)
	case different || !nullKind(kind):
		if int(n) > r.Len() {
			return fault.Formatf("metadata", "constant array of %d elements with %d bytes left", n, r.Len())
		}
	case n > maxNullElements:
		return fault.Formatf("metadata", "constant array of %d null elements", n)
	}
	return nil
}

func nullKind(kind registration.TypeEnum) bool {
	return kind == registration.TypeClass || kind == registration.TypeObject || kind == registration.TypeGenericInst
}

// encodedType reads the type of array elements. Enums are stored as a
// marker followed by the index of their type reference and are decoded
// as their underlying integer.
func (d *Decoder) encodedType(r *decode.Reader) (registration.TypeEnum, int32, error) {
	kind := registration.TypeEnum(r.Uint8())
	if kind != registration.TypeEnumMarker {
		return kind, -1, nil
	}
	index := r.CompressedInt32()
	if r.Err != nil {
		return 0, -1, nil
	}
	ref, ok := d.res.Reference(index)
	if !ok {
		return 0, -1, fault.Formatf("metadata", "enum element of unknown type reference %d", index)
	}
	u, ok := d.res.EnumUnderlying(int(ref.Data))
	if !ok {
		return 0, -1, fault.Formatf("metadata", "type reference %d is not an enum", index)
	}
	return u, index, nil
}
