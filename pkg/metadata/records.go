package metadata

// Magic is the first word of every metadata blob.
const Magic = 0xfab11baf

// Header describes the location of every table in the blob. Each table is
// an (offset, byte length) pair; the header ends where the string literal
// table starts.
type Header struct {
	Sanity  uint32
	Version int32

	StringLiteralOffset     int32
	StringLiteralSize       int32
	StringLiteralDataOffset int32
	StringLiteralDataSize   int32
	StringOffset            int32
	StringSize              int32
	EventsOffset            int32
	EventsSize              int32
	PropertiesOffset        int32
	PropertiesSize          int32
	MethodsOffset           int32
	MethodsSize             int32

	ParameterDefaultValuesOffset int32 `rev:">=16"`
	ParameterDefaultValuesSize   int32 `rev:">=16"`

	FieldDefaultValuesOffset           int32
	FieldDefaultValuesSize             int32
	FieldAndParameterDefaultDataOffset int32
	FieldAndParameterDefaultDataSize   int32

	FieldMarshaledSizesOffset int32 `rev:">=16"`
	FieldMarshaledSizesSize   int32 `rev:">=16"`
	ParametersOffset          int32 `rev:">=16"`
	ParametersSize            int32 `rev:">=16"`

	FieldsOffset                      int32
	FieldsSize                        int32
	GenericParametersOffset           int32
	GenericParametersSize             int32
	GenericParameterConstraintsOffset int32
	GenericParameterConstraintsSize   int32
	GenericContainersOffset           int32
	GenericContainersSize             int32
	NestedTypesOffset                 int32
	NestedTypesSize                   int32
	InterfacesOffset                  int32
	InterfacesSize                    int32
	VTableMethodsOffset               int32
	VTableMethodsSize                 int32
	InterfaceOffsetsOffset            int32
	InterfaceOffsetsSize              int32
	TypeDefinitionsOffset             int32
	TypeDefinitionsSize               int32

	RGCTXEntriesOffset int32 `rev:"<=24.1"`
	RGCTXEntriesSize   int32 `rev:"<=24.1"`

	ImagesOffset     int32 `rev:">=16"`
	ImagesSize       int32 `rev:">=16"`
	AssembliesOffset int32 `rev:">=16"`
	AssembliesSize   int32 `rev:">=16"`

	MetadataUsageListsOffset int32 `rev:">=19,<24.5"`
	MetadataUsageListsSize   int32 `rev:">=19,<24.5"`
	MetadataUsagePairsOffset int32 `rev:">=19,<24.5"`
	MetadataUsagePairsSize   int32 `rev:">=19,<24.5"`

	FieldRefsOffset int32 `rev:">=19"`
	FieldRefsSize   int32 `rev:">=19"`

	ReferencedAssembliesOffset int32 `rev:">=20"`
	ReferencedAssembliesSize   int32 `rev:">=20"`

	AttributesInfoOffset int32 `rev:">=21,<27.2"`
	AttributesInfoSize   int32 `rev:">=21,<27.2"`
	AttributeTypesOffset int32 `rev:">=21,<27.2"`
	AttributeTypesSize   int32 `rev:">=21,<27.2"`

	AttributeDataOffset      uint32 `rev:">=29"`
	AttributeDataSize        int32  `rev:">=29"`
	AttributeDataRangeOffset uint32 `rev:">=29"`
	AttributeDataRangeSize   int32  `rev:">=29"`

	UnresolvedVirtualCallParameterTypesOffset  int32 `rev:">=22"`
	UnresolvedVirtualCallParameterTypesSize    int32 `rev:">=22"`
	UnresolvedVirtualCallParameterRangesOffset int32 `rev:">=22"`
	UnresolvedVirtualCallParameterRangesSize   int32 `rev:">=22"`

	WindowsRuntimeTypeNamesOffset int32 `rev:">=23"`
	WindowsRuntimeTypeNamesSize   int32 `rev:">=23"`

	WindowsRuntimeStringsOffset int32 `rev:">=27"`
	WindowsRuntimeStringsSize   int32 `rev:">=27"`

	ExportedTypeDefinitionsOffset int32 `rev:">=24"`
	ExportedTypeDefinitionsSize   int32 `rev:">=24"`
}

// ImageDefinition is one loaded module. Its types are the contiguous range
// [TypeStart, TypeStart+TypeCount) of the type definition table.
type ImageDefinition struct {
	NameIndex            int32
	AssemblyIndex        int32
	TypeStart            int32
	TypeCount            uint32
	ExportedTypeStart    int32  `rev:">=24"`
	ExportedTypeCount    uint32 `rev:">=24"`
	EntryPointIndex      int32
	Token                uint32 `rev:">=19"`
	CustomAttributeStart int32  `rev:">=24.1"`
	CustomAttributeCount uint32 `rev:">=24.1"`
}

type AssemblyNameDefinition struct {
	NameIndex      int32
	CultureIndex   int32
	HashValueIndex int32 `rev:"<=24.3"`
	PublicKeyIndex int32
	HashAlgorithm  uint32
	HashLength     int32
	Flags          uint32
	Major          int32
	Minor          int32
	Build          int32
	Revision       int32
	PublicKeyToken [8]byte
}

type AssemblyDefinition struct {
	ImageIndex              int32
	Token                   uint32 `rev:">=24.1"`
	CustomAttributeIndex    int32  `rev:"<24"`
	ReferencedAssemblyStart int32  `rev:">=20"`
	ReferencedAssemblyCount int32  `rev:">=20"`
	Name                    AssemblyNameDefinition
}

// Type definition bitfield.
const (
	TypeValueType    = 1 << 0
	TypeEnum         = 1 << 1
	TypeHasFinalize  = 1 << 2
	TypeHasCctor     = 1 << 3
	TypeIsBlittable  = 1 << 4
	TypeIsImport     = 1 << 5
	typePackingShift = 6
	typePackingMask  = 0xf
	typeClassShift   = 10
	typeClassMask    = 0x3
)

type TypeDefinition struct {
	NameIndex            int32
	NamespaceIndex       int32
	CustomAttributeIndex int32 `rev:"<=24"`
	ByValTypeIndex       int32
	ByRefTypeIndex       int32 `rev:"<=24.5"`
	DeclaringTypeIndex   int32
	ParentIndex          int32
	ElementTypeIndex     int32

	RGCTXStartIndex int32 `rev:"<=24.1"`
	RGCTXCount      int32 `rev:"<=24.1"`

	GenericContainerIndex int32

	DelegateWrapperFromManagedToNativeIndex int32 `rev:"<=22"`
	MarshalingFunctionsIndex                int32 `rev:"<=22"`
	CCWFunctionIndex                        int32 `rev:">=21,<=22"`
	GUIDIndex                               int32 `rev:">=21,<=22"`

	Flags                 uint32
	FieldStart            int32
	MethodStart           int32
	EventStart            int32
	PropertyStart         int32
	NestedTypesStart      int32
	InterfacesStart       int32
	VTableStart           int32
	InterfaceOffsetsStart int32

	MethodCount           uint16
	PropertyCount         uint16
	FieldCount            uint16
	EventCount            uint16
	NestedTypeCount       uint16
	VTableCount           uint16
	InterfacesCount       uint16
	InterfaceOffsetsCount uint16

	Bitfield uint32
	Token    uint32 `rev:">=19"`
}

func (t *TypeDefinition) IsValueType() bool { return t.Bitfield&TypeValueType != 0 }
func (t *TypeDefinition) IsEnum() bool      { return t.Bitfield&TypeEnum != 0 }
func (t *TypeDefinition) HasFinalize() bool { return t.Bitfield&TypeHasFinalize != 0 }
func (t *TypeDefinition) HasCctor() bool    { return t.Bitfield&TypeHasCctor != 0 }
func (t *TypeDefinition) IsBlittable() bool { return t.Bitfield&TypeIsBlittable != 0 }
func (t *TypeDefinition) IsImport() bool    { return t.Bitfield&TypeIsImport != 0 }

// PackingSize decodes the packing size field: 0, 1, 2, 4, ... 128.
func (t *TypeDefinition) PackingSize() int {
	n := (t.Bitfield >> typePackingShift) & typePackingMask
	if n == 0 {
		return 0
	}
	return 1 << (n - 1)
}

// ClassSize returns the two bit class size field.
func (t *TypeDefinition) ClassSize() int {
	return int((t.Bitfield >> typeClassShift) & typeClassMask)
}

type FieldDefinition struct {
	NameIndex            int32
	TypeIndex            int32
	CustomAttributeIndex int32  `rev:"<=24"`
	Token                uint32 `rev:">=19"`
}

type MethodDefinition struct {
	NameIndex             int32
	DeclaringType         int32 `rev:">=16"`
	ReturnType            int32
	ParameterStart        int32
	CustomAttributeIndex  int32 `rev:"<=24"`
	GenericContainerIndex int32

	MethodIndex                int32 `rev:"<=24.1"`
	InvokerIndex               int32 `rev:"<=24.1"`
	ReversePInvokeWrapperIndex int32 `rev:"<=24.1"`
	RGCTXStartIndex            int32 `rev:"<=24.1"`
	RGCTXCount                 int32 `rev:"<=24.1"`

	Token          uint32
	Flags          uint16
	IFlags         uint16
	Slot           uint16
	ParameterCount uint16
}

type ParameterDefinition struct {
	NameIndex            int32
	Token                uint32
	CustomAttributeIndex int32 `rev:"<=24"`
	TypeIndex            int32
}

type FieldDefaultValue struct {
	FieldIndex int32
	TypeIndex  int32
	DataIndex  int32
}

type ParameterDefaultValue struct {
	ParameterIndex int32
	TypeIndex      int32
	DataIndex      int32
}
