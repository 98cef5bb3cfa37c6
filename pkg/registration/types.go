package registration

import "fmt"

// TypeEnum is the kind discriminator of a type reference.
type TypeEnum uint8

const (
	TypeEnd         TypeEnum = 0x00
	TypeVoid        TypeEnum = 0x01
	TypeBoolean     TypeEnum = 0x02
	TypeChar        TypeEnum = 0x03
	TypeI1          TypeEnum = 0x04
	TypeU1          TypeEnum = 0x05
	TypeI2          TypeEnum = 0x06
	TypeU2          TypeEnum = 0x07
	TypeI4          TypeEnum = 0x08
	TypeU4          TypeEnum = 0x09
	TypeI8          TypeEnum = 0x0a
	TypeU8          TypeEnum = 0x0b
	TypeR4          TypeEnum = 0x0c
	TypeR8          TypeEnum = 0x0d
	TypeString      TypeEnum = 0x0e
	TypePtr         TypeEnum = 0x0f
	TypeByRef       TypeEnum = 0x10
	TypeValueType   TypeEnum = 0x11
	TypeClass       TypeEnum = 0x12
	TypeVar         TypeEnum = 0x13
	TypeArray       TypeEnum = 0x14
	TypeGenericInst TypeEnum = 0x15
	TypeTypedByRef  TypeEnum = 0x16
	TypeI           TypeEnum = 0x18
	TypeU           TypeEnum = 0x19
	TypeFnPtr       TypeEnum = 0x1b
	TypeObject      TypeEnum = 0x1c
	TypeSzArray     TypeEnum = 0x1d
	TypeMVar        TypeEnum = 0x1e
	TypeCModReqd    TypeEnum = 0x1f
	TypeCModOpt     TypeEnum = 0x20
	TypeInternal    TypeEnum = 0x21

	TypeModifier TypeEnum = 0x40
	TypeSentinel TypeEnum = 0x41
	TypePinned   TypeEnum = 0x45

	// TypeEnumMarker introduces an enum type index in encoded constant
	// arrays.
	TypeEnumMarker TypeEnum = 0x55
	// TypeIndex is a reference to the type reference table.
	TypeIndex TypeEnum = 0xff
)

// fullNames maps the primitive discriminators to the fully qualified name
// of the type that implements them. Entries that are not type names are
// placeholders for kinds resolved by other means.
var fullNames = [...]string{
	"END",
	"System.Void",
	"System.Boolean",
	"System.Char",
	"System.SByte",
	"System.Byte",
	"System.Int16",
	"System.UInt16",
	"System.Int32",
	"System.UInt32",
	"System.Int64",
	"System.UInt64",
	"System.Single",
	"System.Double",
	"System.String",
	"PTR",
	"BYREF",
	"System.ValueType",
	"CLASS",
	"T",
	"System.Array",
	"GENERICINST",
	"System.TypedReference",
	"None",
	"System.IntPtr",
	"System.UIntPtr",
	"None",
	"System.Delegate",
	"System.Object",
	"SZARRAY",
	"T",
	"CMOD_REQD",
	"CMOD_OPT",
	"INTERNAL",
	"System.Decimal",
}

// FullName returns the name the kind resolves to by name lookup.
func (k TypeEnum) FullName() (string, bool) {
	switch k {
	case TypeIndex:
		return "System.Type", true
	case TypeSzArray:
		return "System.Array", true
	}
	if int(k) >= len(fullNames) {
		return "", false
	}
	return fullNames[k], true
}

// IsPrimitive reports whether values of kind k are stored as scalars in
// constant blobs.
func (k TypeEnum) IsPrimitive() bool {
	return k >= TypeBoolean && k <= TypeR8
}

func (k TypeEnum) String() string {
	switch k {
	case TypeEnumMarker:
		return "ENUM"
	case TypeIndex:
		return "TYPE_INDEX"
	}
	if int(k) < len(fullNames) {
		return fullNames[k]
	}
	return fmt.Sprintf("TypeEnum(%#x)", uint8(k))
}

// Type is a type reference record. Data is a definition index, the address
// of the element type or of an ArrayType, or a generic parameter index,
// depending on Kind.
type Type struct {
	Data uint64
	Bits uint64
}

func (t *Type) Attrs() uint16     { return uint16(t.Bits) }
func (t *Type) Kind() TypeEnum    { return TypeEnum(t.Bits >> 16) }
func (t *Type) NumMods() int      { return int(t.Bits>>24) & 0x1f }
func (t *Type) ByRef() bool       { return t.Bits&(1<<29) != 0 }
func (t *Type) Pinned() bool      { return t.Bits&(1<<30) != 0 }
func (t *Type) IsValueType() bool { return t.Bits&(1<<31) != 0 }

// MakeBits packs the bit fields of a Type.
func MakeBits(attrs uint16, kind TypeEnum, byref, valueType bool) uint64 {
	b := uint64(attrs) | uint64(kind)<<16
	if byref {
		b |= 1 << 29
	}
	if valueType {
		b |= 1 << 31
	}
	return b
}

// ArrayType describes a multi-dimensional array type.
type ArrayType struct {
	EType       uint64
	Rank        uint8
	NumSizes    uint8
	NumLoBounds uint8
	_           [5]byte
	Sizes       uint64
	LoBounds    uint64
}

// GenericInst is the argument list of a generic instance.
type GenericInst struct {
	TypeArgc uint64
	TypeArgv uint64
}

// TypeDefinitionSizes holds the native sizes of one type definition.
type TypeDefinitionSizes struct {
	InstanceSize           uint32
	NativeSize             int32
	StaticFieldsSize       uint32
	ThreadStaticFieldsSize uint32
}
