package fixture

import (
	"strings"

	"github.com/go-delve/aotgraph/pkg/decode"
	"github.com/go-delve/aotgraph/pkg/metadata"
	"github.com/go-delve/aotgraph/pkg/revision"
)

// Metadata assembles a metadata blob. Tables are exported so tests can
// corrupt them before calling Bytes.
type Metadata struct {
	Rev revision.Revision

	Images                 []metadata.ImageDefinition
	Assemblies             []metadata.AssemblyDefinition
	Types                  []metadata.TypeDefinition
	Fields                 []metadata.FieldDefinition
	Methods                []metadata.MethodDefinition
	Parameters             []metadata.ParameterDefinition
	FieldDefaultValues     []metadata.FieldDefaultValue
	ParameterDefaultValues []metadata.ParameterDefaultValue
	DefaultData            []byte

	strings  []byte
	interned map[string]int32
}

// NewMetadata returns an empty blob of revision rev.
func NewMetadata(rev revision.Revision) *Metadata {
	return &Metadata{Rev: rev, interned: make(map[string]int32)}
}

// Str interns s in the string table and returns its offset.
func (m *Metadata) Str(s string) int32 {
	if off, ok := m.interned[s]; ok {
		return off
	}
	off := int32(len(m.strings))
	m.strings = append(append(m.strings, s...), 0)
	m.interned[s] = off
	return off
}

// AddAssembly appends an image named name and the assembly owning it.
// Types added afterwards belong to it.
func (m *Metadata) AddAssembly(name string) int {
	i := len(m.Images)
	m.Images = append(m.Images, metadata.ImageDefinition{
		NameIndex:       m.Str(name),
		AssemblyIndex:   int32(i),
		TypeStart:       int32(len(m.Types)),
		EntryPointIndex: -1,
		Token:           1,
	})
	m.Assemblies = append(m.Assemblies, metadata.AssemblyDefinition{
		ImageIndex: int32(i),
		Token:      0x20000001,
		Name: metadata.AssemblyNameDefinition{
			NameIndex:    m.Str(strings.TrimSuffix(name, ".dll")),
			CultureIndex: m.Str(""),
			Major:        1,
		},
	})
	return i
}

// AddType appends td to the last assembly. Its field and method ranges
// start at the current ends of the field and method tables, so AddField
// and AddMethod calls that follow fill them.
func (m *Metadata) AddType(td metadata.TypeDefinition) int {
	i := len(m.Types)
	td.FieldStart = int32(len(m.Fields))
	td.MethodStart = int32(len(m.Methods))
	td.FieldCount, td.MethodCount = 0, 0
	m.Types = append(m.Types, td)
	m.Images[len(m.Images)-1].TypeCount++
	return i
}

// AddField appends a field to the last type.
func (m *Metadata) AddField(name string, typeIndex int32) int {
	i := len(m.Fields)
	m.Fields = append(m.Fields, metadata.FieldDefinition{NameIndex: m.Str(name), TypeIndex: typeIndex, Token: 0x04000000 | uint32(i+1)})
	m.Types[len(m.Types)-1].FieldCount++
	return i
}

// AddMethod appends a method to the last type. The low 24 bits of token
// select its native pointer.
func (m *Metadata) AddMethod(name string, token uint32, returnType int32) int {
	i := len(m.Methods)
	m.Methods = append(m.Methods, metadata.MethodDefinition{
		NameIndex:             m.Str(name),
		DeclaringType:         int32(len(m.Types) - 1),
		ReturnType:            returnType,
		ParameterStart:        int32(len(m.Parameters)),
		GenericContainerIndex: -1,
		Token:                 token,
	})
	m.Types[len(m.Types)-1].MethodCount++
	return i
}

// AddParameter appends a parameter to the last method.
func (m *Metadata) AddParameter(name string, typeIndex int32) int {
	i := len(m.Parameters)
	m.Parameters = append(m.Parameters, metadata.ParameterDefinition{NameIndex: m.Str(name), Token: 0x08000000 | uint32(i+1), TypeIndex: typeIndex})
	m.Methods[len(m.Methods)-1].ParameterCount++
	return i
}

// AddFieldDefault records the encoded default value payload of field.
func (m *Metadata) AddFieldDefault(field int, typeIndex int32, payload []byte) {
	m.FieldDefaultValues = append(m.FieldDefaultValues, metadata.FieldDefaultValue{
		FieldIndex: int32(field),
		TypeIndex:  typeIndex,
		DataIndex:  m.AddDefaultData(payload),
	})
}

// AddParameterDefault records the encoded default value payload of
// parameter.
func (m *Metadata) AddParameterDefault(parameter int, typeIndex int32, payload []byte) {
	m.ParameterDefaultValues = append(m.ParameterDefaultValues, metadata.ParameterDefaultValue{
		ParameterIndex: int32(parameter),
		TypeIndex:      typeIndex,
		DataIndex:      m.AddDefaultData(payload),
	})
}

// AddDefaultData appends payload to the default data table and returns its
// data index.
func (m *Metadata) AddDefaultData(payload []byte) int32 {
	off := int32(len(m.DefaultData))
	m.DefaultData = append(m.DefaultData, payload...)
	return off
}

func appendTable[T any](buf []byte, rev revision.Revision, recs []T) []byte {
	for i := range recs {
		buf = decode.Append(buf, rev, &recs[i])
	}
	return buf
}

// Bytes lays out the blob: the header followed by every table.
func (m *Metadata) Bytes() []byte {
	h := metadata.Header{Sanity: metadata.Magic, Version: int32(m.Rev.Major)}
	size := decode.SizeOf[metadata.Header](m.Rev)
	body := make([]byte, 0, 4096)

	put := func(b []byte) (int32, int32) {
		for len(body)%4 != 0 {
			body = append(body, 0)
		}
		off := int32(size + len(body))
		body = append(body, b...)
		return off, int32(len(b))
	}

	h.StringLiteralOffset, h.StringLiteralSize = put(nil)
	h.StringOffset, h.StringSize = put(m.strings)
	h.ImagesOffset, h.ImagesSize = put(appendTable(nil, m.Rev, m.Images))
	h.AssembliesOffset, h.AssembliesSize = put(appendTable(nil, m.Rev, m.Assemblies))
	h.TypeDefinitionsOffset, h.TypeDefinitionsSize = put(appendTable(nil, m.Rev, m.Types))
	h.FieldsOffset, h.FieldsSize = put(appendTable(nil, m.Rev, m.Fields))
	h.MethodsOffset, h.MethodsSize = put(appendTable(nil, m.Rev, m.Methods))
	h.ParametersOffset, h.ParametersSize = put(appendTable(nil, m.Rev, m.Parameters))
	h.FieldDefaultValuesOffset, h.FieldDefaultValuesSize = put(appendTable(nil, m.Rev, m.FieldDefaultValues))
	h.ParameterDefaultValuesOffset, h.ParameterDefaultValuesSize = put(appendTable(nil, m.Rev, m.ParameterDefaultValues))
	h.FieldAndParameterDefaultDataOffset, h.FieldAndParameterDefaultDataSize = put(m.DefaultData)

	return append(decode.Append(nil, m.Rev, &h), body...)
}
