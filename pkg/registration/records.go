package registration

// CodeRegistration is the code-side root. CodeGenModules is its last field
// in every revision that has it.
type CodeRegistration struct {
	MethodPointersCount uint64 `rev:"<=24.1"`
	MethodPointers      uint64 `rev:"<=24.1"`

	ReversePInvokeWrappersCount uint64
	ReversePInvokeWrappers      uint64

	DelegateWrappersFromManagedToNativeCount uint64 `rev:"<=22"`
	DelegateWrappersFromManagedToNative      uint64 `rev:"<=22"`
	MarshalingFunctionsCount                 uint64 `rev:"<=22"`
	MarshalingFunctions                      uint64 `rev:"<=22"`
	CcwMarshalingFunctionsCount              uint64 `rev:">=21,<=22"`
	CcwMarshalingFunctions                   uint64 `rev:">=21,<=22"`

	GenericMethodPointersCount uint64
	GenericMethodPointers      uint64
	GenericAdjustorThunks      uint64 `rev:"==24.5|>=27.1"`
	InvokerPointersCount       uint64
	InvokerPointers            uint64

	CustomAttributeCount      uint64 `rev:"<=24.5"`
	CustomAttributeGenerators uint64 `rev:"<=24.5"`
	GuidCount                 uint64 `rev:">=21,<=22"`
	Guids                     uint64 `rev:">=21,<=22"`

	UnresolvedVirtualCallCount     uint64 `rev:">=22,<=29"`
	UnresolvedIndirectCallCount    uint64 `rev:">=29.1"`
	UnresolvedVirtualCallPointers  uint64 `rev:">=22"`
	UnresolvedIndirectCallPointers uint64 `rev:">=29.1"`
	UnresolvedStaticCallPointers   uint64 `rev:">=29.1"`

	InteropDataCount           uint64 `rev:">=23"`
	InteropData                uint64 `rev:">=23"`
	WindowsRuntimeFactoryCount uint64 `rev:">=24.3"`
	WindowsRuntimeFactoryTable uint64 `rev:">=24.3"`
	CodeGenModulesCount        uint64 `rev:">=24.2"`
	CodeGenModules             uint64 `rev:">=24.2"`
}

// UnresolvedCallCount returns the unresolved call count stored in whichever
// field the revision has.
func (c *CodeRegistration) UnresolvedCallCount() uint64 {
	if c.UnresolvedIndirectCallCount != 0 {
		return c.UnresolvedIndirectCallCount
	}
	return c.UnresolvedVirtualCallCount
}

// MetadataRegistration is the metadata-side root: alternating counts and
// pointers.
type MetadataRegistration struct {
	GenericClassesCount       int64
	GenericClasses            uint64
	GenericInstsCount         int64
	GenericInsts              uint64
	GenericMethodTableCount   int64
	GenericMethodTable        uint64
	TypesCount                int64
	Types                     uint64
	MethodSpecsCount          int64
	MethodSpecs               uint64
	MethodReferencesCount     int64  `rev:"<=16"`
	MethodReferences          uint64 `rev:"<=16"`
	FieldOffsetsCount         int64
	FieldOffsets              uint64
	TypeDefinitionsSizesCount int64
	TypeDefinitionsSizes      uint64
	MetadataUsagesCount       int64  `rev:">=19"`
	MetadataUsages            uint64 `rev:">=19"`
}

// CodeGenModule is the per-assembly table of native code.
type CodeGenModule struct {
	ModuleName                   uint64
	MethodPointerCount           uint64
	MethodPointers               uint64
	AdjustorThunkCount           int64  `rev:"==24.5|>=27.1"`
	AdjustorThunks               uint64 `rev:"==24.5|>=27.1"`
	InvokerIndices               uint64
	ReversePInvokeWrapperCount   uint64
	ReversePInvokeWrapperIndices uint64
	RGCTXRangesCount             uint64
	RGCTXRanges                  uint64
	RGCTXsCount                  uint64
	RGCTXs                       uint64
	DebuggerMetadata             uint64

	CustomAttributeCacheGenerator uint64 `rev:">=27,<=27.2"`
	ModuleInitializer             uint64 `rev:">=27"`
	StaticConstructorTypeIndices  uint64 `rev:">=27"`
	MetadataRegistration          uint64 `rev:">=27"`
	CodeRegistration              uint64 `rev:">=27"`
}
