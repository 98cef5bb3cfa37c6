// Package metadata loads the flat tables of a metadata blob: images,
// assemblies, type, field, method and parameter definitions, default values
// and the string table.
package metadata

import (
	"os"

	"github.com/go-delve/aotgraph/pkg/decode"
	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/logflags"
	"github.com/go-delve/aotgraph/pkg/revision"
)

// Metadata is a decoded metadata blob. Every table is loaded once and not
// modified afterwards.
type Metadata struct {
	data []byte

	Revision revision.Revision
	Header   Header
	Strings  *StringTable

	Images                 []ImageDefinition
	Assemblies             []AssemblyDefinition
	Types                  []TypeDefinition
	Fields                 []FieldDefinition
	Methods                []MethodDefinition
	Parameters             []ParameterDefinition
	FieldDefaultValues     []FieldDefaultValue
	ParameterDefaultValues []ParameterDefaultValue
}

// Open reads the metadata file at path.
func Open(path string, override revision.Revision) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data, override)
}

// Load decodes data. The revision is taken from the header unless override
// is non-zero; the header alone cannot tell some minor revisions apart.
func Load(data []byte, override revision.Revision) (*Metadata, error) {
	logger := logflags.LoaderLogger()

	r := decode.NewReader("metadata", data, 0, revision.Revision{})
	sanity := r.Uint32()
	version := r.Int32()
	if r.Err != nil {
		return nil, r.Err
	}
	if sanity != Magic {
		return nil, fault.Formatf("metadata", "bad magic %#x", sanity)
	}
	rev := revision.FromHeader(version)
	if !override.IsZero() {
		if override.Major != rev.Major {
			logger.Warnf("revision override %v does not match header revision %v", override, rev)
		}
		rev = override
	}
	if err := revision.Loadable(rev); err != nil {
		return nil, err
	}

	m := &Metadata{data: data, Revision: rev}
	r.Seek(0)
	r.SetRevision(rev)
	if err := decode.Read(r, &m.Header); err != nil {
		return nil, err
	}
	if size := decode.SizeOf[Header](rev); int(m.Header.StringLiteralOffset) != size {
		return nil, fault.Formatf("metadata", "header is %d bytes in revision %v but the string literal table starts at %#x", size, rev, m.Header.StringLiteralOffset)
	}

	h := &m.Header
	strs, err := m.section("strings", h.StringOffset, h.StringSize)
	if err != nil {
		return nil, err
	}
	m.Strings = NewStringTable(strs)

	if m.Images, err = table[ImageDefinition](m, "images", h.ImagesOffset, h.ImagesSize); err != nil {
		return nil, err
	}
	if m.Assemblies, err = table[AssemblyDefinition](m, "assemblies", h.AssembliesOffset, h.AssembliesSize); err != nil {
		return nil, err
	}
	if m.Types, err = table[TypeDefinition](m, "type definitions", h.TypeDefinitionsOffset, h.TypeDefinitionsSize); err != nil {
		return nil, err
	}
	if m.Fields, err = table[FieldDefinition](m, "fields", h.FieldsOffset, h.FieldsSize); err != nil {
		return nil, err
	}
	if m.Methods, err = table[MethodDefinition](m, "methods", h.MethodsOffset, h.MethodsSize); err != nil {
		return nil, err
	}
	if m.Parameters, err = table[ParameterDefinition](m, "parameters", h.ParametersOffset, h.ParametersSize); err != nil {
		return nil, err
	}
	if m.FieldDefaultValues, err = table[FieldDefaultValue](m, "field default values", h.FieldDefaultValuesOffset, h.FieldDefaultValuesSize); err != nil {
		return nil, err
	}
	if m.ParameterDefaultValues, err = table[ParameterDefaultValue](m, "parameter default values", h.ParameterDefaultValuesOffset, h.ParameterDefaultValuesSize); err != nil {
		return nil, err
	}
	if _, err := m.section("default data", h.FieldAndParameterDefaultDataOffset, h.FieldAndParameterDefaultDataSize); err != nil {
		return nil, err
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	logger.Debugf("revision %v: %d images, %d types, %d fields, %d methods", rev, len(m.Images), len(m.Types), len(m.Fields), len(m.Methods))
	return m, nil
}

// section returns the byte range [off, off+size) of the blob.
func (m *Metadata) section(name string, off, size int32) ([]byte, error) {
	if off < 0 || size < 0 || int64(off)+int64(size) > int64(len(m.data)) {
		return nil, fault.Formatf("metadata", "%s table [%#x, +%#x) is outside of the %#x byte blob", name, off, size, len(m.data))
	}
	return m.data[off : off+size], nil
}

func table[T any](m *Metadata, name string, off, size int32) ([]T, error) {
	b, err := m.section(name, off, size)
	if err != nil {
		return nil, err
	}
	return decode.ReadTable[T](name, b, m.Revision)
}

// validate checks that every image is owned by the assembly naming it and
// that the image type ranges partition the type table.
func (m *Metadata) validate() error {
	if len(m.Images) != len(m.Assemblies) {
		return fault.Integrityf("%d images but %d assemblies", len(m.Images), len(m.Assemblies))
	}
	next := 0
	for i := range m.Images {
		img := &m.Images[i]
		if img.AssemblyIndex < 0 || int(img.AssemblyIndex) >= len(m.Assemblies) {
			return fault.Integrityf("image %d: assembly index %d out of range", i, img.AssemblyIndex)
		}
		if got := m.Assemblies[img.AssemblyIndex].ImageIndex; int(got) != i {
			return fault.Integrityf("image %d: assembly %d refers to image %d", i, img.AssemblyIndex, got)
		}
		if int(img.TypeStart) != next {
			return fault.Integrityf("image %d: type range starts at %d, expected %d", i, img.TypeStart, next)
		}
		next += int(img.TypeCount)
	}
	if next != len(m.Types) {
		return fault.Integrityf("image type ranges cover %d types, the table has %d", next, len(m.Types))
	}
	return nil
}

// String returns the string at offset off of the string table.
func (m *Metadata) String(off int32) string {
	return m.Strings.Get(off)
}

// ImageName returns the file name of image i.
func (m *Metadata) ImageName(i int) string {
	return m.String(m.Images[i].NameIndex)
}

// TypeRange returns the half-open range of type indices owned by image i.
func (m *Metadata) TypeRange(i int) (start, end int) {
	img := &m.Images[i]
	return int(img.TypeStart), int(img.TypeStart) + int(img.TypeCount)
}

// DefaultDataOffset returns the blob offset of the default value payload
// at dataIndex.
func (m *Metadata) DefaultDataOffset(dataIndex int32) int {
	return int(m.Header.FieldAndParameterDefaultDataOffset) + int(dataIndex)
}

// DefaultData returns a reader positioned at the default value payload at
// dataIndex.
func (m *Metadata) DefaultData(dataIndex int32) *decode.Reader {
	return decode.NewReader("metadata", m.data, m.DefaultDataOffset(dataIndex), m.Revision)
}

// Data returns the raw blob.
func (m *Metadata) Data() []byte { return m.data }
