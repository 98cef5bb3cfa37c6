package fixture

import (
	"encoding/binary"

	"github.com/go-delve/aotgraph/pkg/decode"
	"github.com/go-delve/aotgraph/pkg/metadata"
	"github.com/go-delve/aotgraph/pkg/registration"
	"github.com/go-delve/aotgraph/pkg/revision"
)

// Program is a metadata blob and a native image describing the same
// program.
type Program struct {
	Metadata *Metadata
	Native   *Native
}

// NewProgram returns an empty program of revision rev.
func NewProgram(rev revision.Revision) *Program {
	return &Program{Metadata: NewMetadata(rev), Native: NewNative(NewPE(), rev)}
}

// Build lays out both inputs.
func (p *Program) Build() (img, meta []byte) {
	p.Native.Build(len(p.Metadata.Types))
	return p.Native.PE.Bytes(), p.Metadata.Bytes()
}

// Type definition indices of the sample program.
const (
	DefMscorlibModule = iota
	DefObject
	DefValueType
	DefInt32
	DefString
	DefArray
	DefType
	DefEnum
	DefByte
	DefGameModule
	DefColor
	DefPlayer
	DefStats
	NumDefs
)

// Type reference indices of the sample program.
const (
	RefI4 = iota
	RefObject
	RefInt32
	RefString
	RefPlayer
	RefPlayerArray
	RefInt32Matrix
	RefColor
	RefPtr
	RefVar
	RefVoid
	RefStats
	RefPlayerArray2
	RefRVAByte
	RefColorConst
	RefTypeIndex
	NumRefs
)

// Field attribute bits used by the sample.
const (
	attrStatic      = 0x10
	attrLiteral     = 0x40
	attrHasFieldRVA = 0x100
)

// Sample is the sample program together with the values tests check
// against.
type Sample struct {
	*Program

	ToString  uint64
	Ctor      uint64
	Move      uint64
	MoveThunk uint64
	Invokers  []uint64

	// Field indices.
	Health, Tint, Name, Friends, Grid, Blob, Red, Blue int
	// Method indices.
	MToString, MCtor, MMove, MGhost, MStatsGet int
	// Parameter indices.
	Dx int

	BlobData []byte
}

// EncodeI4 encodes v the way revision rev stores 32-bit constants.
func EncodeI4(rev revision.Revision, v int32) []byte {
	if rev.Before(revision.V29) {
		return binary.LittleEndian.AppendUint32(nil, uint32(v))
	}
	return decode.AppendCompressedInt32(nil, v)
}

// EncodeString encodes a string constant.
func EncodeString(rev revision.Revision, s string) []byte {
	return append(EncodeI4(rev, int32(len(s))), s...)
}

func typedef(m *Metadata, ns, name string, byVal int32, bitfield uint32) metadata.TypeDefinition {
	return metadata.TypeDefinition{
		NameIndex:             m.Str(name),
		NamespaceIndex:        m.Str(ns),
		ByValTypeIndex:        byVal,
		ByRefTypeIndex:        -1,
		DeclaringTypeIndex:    -1,
		ParentIndex:           -1,
		ElementTypeIndex:      -1,
		GenericContainerIndex: -1,
		Bitfield:              bitfield,
	}
}

// NewSample builds a two assembly program:
//
//	mscorlib.dll  System.Object, ValueType, Int32, String, Array, Type,
//	              Enum, Byte
//	Game.dll      Game.Color (enum of Int32), Game.Player, Player+Stats
//
// mscorlib is the last code generation module, as in the revisions the
// locator supports.
func NewSample(rev revision.Revision) *Sample {
	s := &Sample{Program: NewProgram(rev)}
	m, n := s.Metadata, s.Native

	// type references
	n.AddType(registration.TypeI4, 0, 0)
	n.AddClass(DefObject, false)
	n.AddClass(DefInt32, true)
	n.AddType(registration.TypeString, 0, 0)
	n.AddClass(DefPlayer, false)
	n.AddSzArray(RefPlayer)
	n.AddArray(RefI4, 2)
	n.AddClass(DefColor, true)
	n.AddType(registration.TypePtr, 0, 0)
	n.AddType(registration.TypeVar, 0, 0)
	n.AddType(registration.TypeVoid, 0, 0)
	n.AddClass(DefStats, false)
	n.AddSzArray(RefPlayer)
	n.AddType(registration.TypeU1, 0, attrStatic|attrHasFieldRVA)
	n.Types[n.AddClass(DefColor, true)].Bits |= attrStatic | attrLiteral
	n.AddType(registration.TypeIndex, 0, 0)

	m.AddAssembly("mscorlib.dll")
	m.AddType(typedef(m, "", "<Module>", -1, 0))
	m.AddType(typedef(m, "System", "Object", RefObject, 0))
	s.MToString = m.AddMethod("ToString", 0x06000001, RefString)
	m.AddType(typedef(m, "System", "ValueType", -1, 0))
	m.AddType(typedef(m, "System", "Int32", RefI4, metadata.TypeValueType))
	m.AddType(typedef(m, "System", "String", RefString, 0))
	m.AddType(typedef(m, "System", "Array", -1, 0))
	m.AddType(typedef(m, "System", "Type", -1, 0))
	m.AddType(typedef(m, "System", "Enum", -1, 0))
	m.AddType(typedef(m, "System", "Byte", -1, metadata.TypeValueType))

	m.AddAssembly("Game.dll")
	m.AddType(typedef(m, "", "<Module>", -1, 0))
	color := typedef(m, "Game", "Color", RefColor, metadata.TypeValueType|metadata.TypeEnum)
	color.ElementTypeIndex = RefInt32
	color.ParentIndex = RefObject
	m.AddType(color)
	m.AddField("value__", RefI4)
	s.Red = m.AddField("Red", RefColorConst)
	m.AddFieldDefault(s.Red, RefColorConst, EncodeI4(rev, 0))
	s.Blue = m.AddField("Blue", RefColorConst)
	m.AddFieldDefault(s.Blue, RefColorConst, EncodeI4(rev, 2))

	player := typedef(m, "Game", "Player", RefPlayer, metadata.TypeHasCctor)
	player.ParentIndex = RefObject
	m.AddType(player)
	s.Health = m.AddField("health", RefI4)
	m.AddFieldDefault(s.Health, RefI4, EncodeI4(rev, 100))
	s.Tint = m.AddField("tint", RefColor)
	m.AddFieldDefault(s.Tint, RefColor, EncodeI4(rev, 2))
	s.Name = m.AddField("name", RefString)
	m.AddFieldDefault(s.Name, RefString, EncodeString(rev, "bob"))
	s.Friends = m.AddField("friends", RefPlayerArray)
	s.Grid = m.AddField("grid", RefInt32Matrix)
	s.Blob = m.AddField("blob", RefRVAByte)
	s.BlobData = []byte{0x2a}
	m.AddFieldDefault(s.Blob, RefRVAByte, s.BlobData)
	s.MCtor = m.AddMethod(".ctor", 0x06000001, RefVoid)
	s.MMove = m.AddMethod("Move", 0x06000002, RefVoid)
	s.Dx = m.AddParameter("dx", RefI4)
	m.AddParameterDefault(s.Dx, RefI4, EncodeI4(rev, 5))
	s.MGhost = m.AddMethod("Ghost", 0x06000003, RefPlayerArray2)

	stats := typedef(m, "", "Stats", RefStats, 0)
	stats.DeclaringTypeIndex = RefPlayer
	stats.ParentIndex = RefObject
	m.AddType(stats)
	s.MStatsGet = m.AddMethod("Get", 0x06000005, RefI4)

	// native code
	s.ToString = n.Func(0x48, 0x31, 0xc0, 0xc3)
	s.Ctor = n.Func(0xc3)
	s.Move = n.Func(0x90, 0xc3)
	s.MoveThunk = n.Thunk(s.Move)
	s.Invokers = []uint64{s.Move, s.Ctor}

	n.AddModule("Game.dll", s.Ctor, s.MoveThunk, 0)
	n.AddModule("mscorlib.dll", s.ToString).InvokerIndices = []int32{1}
	n.Modules[0].InvokerIndices = []int32{0, 1, -1}
	n.InvokerPointers = s.Invokers

	n.TypeSizes = make([]registration.TypeDefinitionSizes, NumDefs)
	n.TypeSizes[DefInt32] = registration.TypeDefinitionSizes{InstanceSize: 0x14, NativeSize: 4}
	n.TypeSizes[DefByte] = registration.TypeDefinitionSizes{InstanceSize: 0x11, NativeSize: 1}
	n.TypeSizes[DefPlayer] = registration.TypeDefinitionSizes{InstanceSize: 0x38, NativeSize: -1, StaticFieldsSize: 8}
	n.FieldOffsets = make([][]int32, NumDefs)
	n.FieldOffsets[DefColor] = []int32{0x10, 0, 0}
	n.FieldOffsets[DefPlayer] = []int32{0x10, 0x14, 0x18, 0x20, 0x28, 0}
	return s
}
