package fixture

import (
	"encoding/binary"

	"github.com/go-delve/aotgraph/pkg/registration"
	"github.com/go-delve/aotgraph/pkg/revision"
)

// Unmapped is an address inside the image headers, which no section maps.
const Unmapped = ImageBase + 0x10

// NativeType is a type reference under construction. Array references name
// their element by index; Build turns it into an address.
type NativeType struct {
	registration.Type
	Elem int
	Rank uint8
}

// NativeModule is a CodeGenModule under construction.
type NativeModule struct {
	Name           string
	MethodPointers []uint64
	InvokerIndices []int32
	// Unmapped points the method pointer array outside of the image.
	Unmapped       bool

	Addr uint64
}

// Native lays out the registration roots of a program and everything they
// point to in the .data section of a PE.
type Native struct {
	PE  *PE
	Rev revision.Revision

	Types           []NativeType
	Modules         []*NativeModule
	TypeSizes       []registration.TypeDefinitionSizes
	FieldOffsets    [][]int32
	InvokerPointers []uint64

	// Code provides the counts of the code root; Build fills in the
	// pointers it owns.
	Code registration.CodeRegistration

	// Set by Build.
	CodeAddr     uint64
	MetadataAddr uint64
	TypeAddrs    []uint64
}

// NewNative returns an empty program of revision rev laid out in p.
func NewNative(p *PE, rev revision.Revision) *Native {
	return &Native{PE: p, Rev: rev}
}

// AddType appends a type reference of kind with the given data word.
func (n *Native) AddType(kind registration.TypeEnum, data uint64, attrs uint16) int {
	vt := kind == registration.TypeValueType || (kind >= registration.TypeBoolean && kind <= registration.TypeR8)
	n.Types = append(n.Types, NativeType{Type: registration.Type{Data: data, Bits: registration.MakeBits(attrs, kind, false, vt)}, Elem: -1})
	return len(n.Types) - 1
}

// AddClass appends a reference to type definition def.
func (n *Native) AddClass(def int, valueType bool) int {
	kind := registration.TypeClass
	if valueType {
		kind = registration.TypeValueType
	}
	return n.AddType(kind, uint64(def), 0)
}

// AddSzArray appends a single dimension array of elem.
func (n *Native) AddSzArray(elem int) int {
	i := n.AddType(registration.TypeSzArray, 0, 0)
	n.Types[i].Elem = elem
	return i
}

// AddArray appends an array of elem with the given rank.
func (n *Native) AddArray(elem int, rank uint8) int {
	i := n.AddType(registration.TypeArray, 0, 0)
	n.Types[i].Elem = elem
	n.Types[i].Rank = rank
	return i
}

// AddModule appends a CodeGenModule.
func (n *Native) AddModule(name string, methodPointers ...uint64) *NativeModule {
	m := &NativeModule{Name: name, MethodPointers: methodPointers}
	n.Modules = append(n.Modules, m)
	return m
}

// Func appends code to .text and returns its address.
func (n *Native) Func(code ...byte) uint64 {
	n.PE.Text.Align(16)
	return n.PE.Text.Append(code)
}

// Thunk appends a jmp rel32 to target.
func (n *Native) Thunk(target uint64) uint64 {
	n.PE.Text.Align(16)
	at := n.PE.Text.Addr()
	code := []byte{0xe9, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(code[1:], uint32(int32(int64(target)-int64(at+5))))
	return n.PE.Text.Append(code)
}

// Build writes every structure. typeCount is the number of type
// definitions of the matching metadata.
func (n *Native) Build(typeCount int) {
	data := n.PE.Data

	names := make([]uint64, len(n.Modules))
	for i, m := range n.Modules {
		names[i] = n.PE.RData.CString(m.Name)
	}

	moduleAddrs := make([]uint64, len(n.Modules))
	for i, m := range n.Modules {
		cgm := registration.CodeGenModule{
			ModuleName:         names[i],
			MethodPointerCount: uint64(len(m.MethodPointers)),
		}
		if m.Unmapped {
			cgm.MethodPointers = Unmapped
		} else if len(m.MethodPointers) > 0 {
			cgm.MethodPointers = data.Words(m.MethodPointers...)
		}
		if len(m.InvokerIndices) > 0 {
			cgm.InvokerIndices = data.Int32s(m.InvokerIndices...)
		}
		m.Addr = data.Record(n.Rev, &cgm)
		moduleAddrs[i] = m.Addr
	}

	code := n.Code
	code.CodeGenModulesCount = uint64(len(n.Modules))
	code.CodeGenModules = data.Words(moduleAddrs...)
	if len(n.InvokerPointers) > 0 {
		code.InvokerPointersCount = uint64(len(n.InvokerPointers))
		code.InvokerPointers = data.Words(n.InvokerPointers...)
	}
	if code.GenericAdjustorThunks == 0 {
		code.GenericAdjustorThunks = data.Words(0)
	}
	n.CodeAddr = data.Record(n.Rev, &code)

	n.TypeAddrs = make([]uint64, len(n.Types))
	if len(n.Types) > 0 {
		base := data.Words(make([]uint64, 2*len(n.Types))...)
		for i := range n.Types {
			n.TypeAddrs[i] = base + uint64(16*i)
		}
		for i := range n.Types {
			t := n.Types[i]
			switch t.Kind() {
			case registration.TypeSzArray:
				t.Data = n.TypeAddrs[t.Elem]
			case registration.TypeArray:
				t.Data = data.Record(n.Rev, &registration.ArrayType{EType: n.TypeAddrs[t.Elem], Rank: t.Rank})
			}
			data.PutWord(n.TypeAddrs[i], t.Data)
			data.PutWord(n.TypeAddrs[i]+8, t.Bits)
		}
	}
	types := data.Words(n.TypeAddrs...)

	sizes := make([]uint64, typeCount)
	for i := range sizes {
		var s registration.TypeDefinitionSizes
		if i < len(n.TypeSizes) {
			s = n.TypeSizes[i]
		}
		sizes[i] = data.Record(n.Rev, &s)
	}
	sizesAddr := data.Words(sizes...)

	offsets := make([]uint64, typeCount)
	for i := range offsets {
		if i < len(n.FieldOffsets) && n.FieldOffsets[i] != nil {
			offsets[i] = data.Int32s(n.FieldOffsets[i]...)
		}
	}
	offsetsAddr := data.Words(offsets...)

	n.MetadataAddr = data.Record(n.Rev, &registration.MetadataRegistration{
		TypesCount:                int64(len(n.Types)),
		Types:                     types,
		FieldOffsetsCount:         int64(typeCount),
		FieldOffsets:              offsetsAddr,
		TypeDefinitionsSizesCount: int64(typeCount),
		TypeDefinitionsSizes:      sizesAddr,
	})
}
