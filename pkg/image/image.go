// Package image maps a 64-bit PE image between file offsets and virtual
// addresses and reads data at virtual addresses.
package image

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/go-delve/aotgraph/pkg/decode"
	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/revision"
)

const (
	optionalHeader64Size = 0xf0
	optionalHeader64     = 0x20b
	iatDirectory         = pe.IMAGE_DIRECTORY_ENTRY_IAT

	// DefaultStringCacheSize is the number of C strings kept by Image.CString.
	DefaultStringCacheSize = 1024
)

// Section is one entry of the section table.
type Section struct {
	Name           string
	VirtualAddress uint32
	VirtualSize    uint32
	Offset         uint32
	Size           uint32
}

// Image is a loaded PE image. All reads are served from the in-memory copy
// of the file.
type Image struct {
	data      []byte
	ImageBase uint64
	Machine   uint16
	Sections  []Section

	// IAT is the import address table directory.
	IAT pe.DataDirectory

	strings *lru.Cache
}

// Open reads the file at path and parses it with New.
func Open(path string, cacheSize int) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(data, cacheSize)
}

// New parses the PE headers of data. Only PE32+ images whose .rdata section
// starts at the import address table are accepted; anything else is
// reported as a FormatError.
func New(data []byte, cacheSize int) (*Image, error) {
	if len(data) < 0x40 || data[0] != 'M' || data[1] != 'Z' {
		return nil, fault.Formatf("image", "missing MZ signature")
	}
	peoff := int(binary.LittleEndian.Uint32(data[0x3c:]))
	if peoff < 0 || peoff+4+20 > len(data) {
		return nil, fault.Formatf("image", "PE header offset %#x out of range", peoff)
	}
	if !bytes.Equal(data[peoff:peoff+4], []byte("PE\x00\x00")) {
		return nil, fault.Formatf("image", "invalid PE signature % x", data[peoff:peoff+4])
	}
	// SizeOfOptionalHeader is at offset 16 of the COFF header.
	if sz := binary.LittleEndian.Uint16(data[peoff+4+16:]); sz != optionalHeader64Size {
		return nil, fault.Formatf("image", "unsupported optional header size %#x, only 64-bit images are supported", sz)
	}

	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithStack(&fault.FormatError{Input: "image", Msg: err.Error()})
	}
	oh, ok := f.OptionalHeader.(*pe.OptionalHeader64)
	if !ok || oh.Magic != optionalHeader64 {
		return nil, fault.Formatf("image", "optional header is not PE32+")
	}
	if oh.NumberOfRvaAndSizes <= iatDirectory {
		return nil, fault.Formatf("image", "only %d data directories, no import address table", oh.NumberOfRvaAndSizes)
	}

	if cacheSize <= 0 {
		cacheSize = DefaultStringCacheSize
	}
	strs, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	img := &Image{
		data:      data,
		ImageBase: oh.ImageBase,
		Machine:   f.Machine,
		IAT:       oh.DataDirectory[iatDirectory],
		strings:   strs,
	}
	var rdata *Section
	for _, s := range f.Sections {
		if uint64(s.Offset)+uint64(s.Size) > uint64(len(data)) {
			return nil, fault.Formatf("image", "section %s raw data [%#x, %#x) is outside of the file", s.Name, s.Offset, s.Offset+s.Size)
		}
		img.Sections = append(img.Sections, Section{
			Name:           s.Name,
			VirtualAddress: s.VirtualAddress,
			VirtualSize:    s.VirtualSize,
			Offset:         s.Offset,
			Size:           s.Size,
		})
		if s.Name == ".rdata" && rdata == nil {
			rdata = &img.Sections[len(img.Sections)-1]
		}
	}
	if rdata == nil {
		return nil, fault.Formatf("image", "no .rdata section")
	}
	if rdata.VirtualAddress != img.IAT.VirtualAddress {
		return nil, fault.Formatf("image", ".rdata at %#x does not start at the import address table %#x, the file could be packed or obfuscated", rdata.VirtualAddress, img.IAT.VirtualAddress)
	}
	return img, nil
}

// Data returns the raw file contents.
func (img *Image) Data() []byte { return img.data }

// FileOffsetToVA maps a file offset to a virtual address. Offsets outside
// every section's raw data return false.
func (img *Image) FileOffsetToVA(off uint64) (uint64, bool) {
	for i := range img.Sections {
		s := &img.Sections[i]
		if off >= uint64(s.Offset) && off < uint64(s.Offset)+uint64(s.Size) {
			return img.ImageBase + uint64(s.VirtualAddress) + off - uint64(s.Offset), true
		}
	}
	return 0, false
}

// TryVAToFileOffset maps a virtual address back to a file offset. Only
// addresses backed by raw data map.
func (img *Image) TryVAToFileOffset(va uint64) (uint64, bool) {
	if va < img.ImageBase {
		return 0, false
	}
	rva := va - img.ImageBase
	for i := range img.Sections {
		s := &img.Sections[i]
		if rva >= uint64(s.VirtualAddress) && rva < uint64(s.VirtualAddress)+uint64(s.Size) {
			return rva - uint64(s.VirtualAddress) + uint64(s.Offset), true
		}
	}
	return 0, false
}

// VAToFileOffset is TryVAToFileOffset for addresses that must map.
func (img *Image) VAToFileOffset(va uint64) (uint64, error) {
	off, ok := img.TryVAToFileOffset(va)
	if !ok {
		return 0, fault.Integrityf("address %#x is not mapped by any section", va)
	}
	return off, nil
}

// Mapped reports whether va is backed by file data.
func (img *Image) Mapped(va uint64) bool {
	_, ok := img.TryVAToFileOffset(va)
	return ok
}

// SectionAt returns the section containing va.
func (img *Image) SectionAt(va uint64) (*Section, bool) {
	if va < img.ImageBase {
		return nil, false
	}
	rva := va - img.ImageBase
	for i := range img.Sections {
		s := &img.Sections[i]
		if rva >= uint64(s.VirtualAddress) && rva < uint64(s.VirtualAddress)+uint64(s.Size) {
			return s, true
		}
	}
	return nil, false
}

// Reader returns a reader positioned at va.
func (img *Image) Reader(va uint64, rev revision.Revision) (*decode.Reader, error) {
	off, err := img.VAToFileOffset(va)
	if err != nil {
		return nil, err
	}
	return decode.NewReader("image", img.data, int(off), rev), nil
}

// ReadRecord decodes the record struct pointed to by v at va.
func (img *Image) ReadRecord(va uint64, rev revision.Revision, v interface{}) error {
	r, err := img.Reader(va, rev)
	if err != nil {
		return err
	}
	if err := decode.Read(r, v); err != nil {
		return errors.Wrapf(err, "reading %T at %#x", v, va)
	}
	return nil
}

// Uint64 reads the 64-bit word at va.
func (img *Image) Uint64(va uint64) (uint64, error) {
	r, err := img.Reader(va, revision.Revision{})
	if err != nil {
		return 0, err
	}
	v := r.Uint64()
	return v, r.Err
}

// Uint64s reads count consecutive 64-bit words starting at va.
func (img *Image) Uint64s(va uint64, count int) ([]uint64, error) {
	if count == 0 {
		return nil, nil
	}
	if count < 0 {
		return nil, fault.Integrityf("negative count %d at %#x", count, va)
	}
	r, err := img.Reader(va, revision.Revision{})
	if err != nil {
		return nil, err
	}
	if r.Len()/8 < count {
		return nil, fault.Integrityf("%d entries at %#x run past the end of the image", count, va)
	}
	out := make([]uint64, count)
	for i := range out {
		out[i] = r.Uint64()
	}
	return out, r.Err
}

// Int32s reads count consecutive 32-bit integers starting at va.
func (img *Image) Int32s(va uint64, count int) ([]int32, error) {
	if count == 0 {
		return nil, nil
	}
	if count < 0 {
		return nil, fault.Integrityf("negative count %d at %#x", count, va)
	}
	r, err := img.Reader(va, revision.Revision{})
	if err != nil {
		return nil, err
	}
	if r.Len()/4 < count {
		return nil, fault.Integrityf("%d entries at %#x run past the end of the image", count, va)
	}
	out := make([]int32, count)
	for i := range out {
		out[i] = r.Int32()
	}
	return out, r.Err
}

// Bytes returns n bytes of file data at va.
func (img *Image) Bytes(va uint64, n int) ([]byte, error) {
	r, err := img.Reader(va, revision.Revision{})
	if err != nil {
		return nil, err
	}
	b := r.Bytes(n)
	return b, r.Err
}

// CString reads the NUL terminated string at va. Results are cached.
func (img *Image) CString(va uint64) (string, error) {
	if s, ok := img.strings.Get(va); ok {
		return s.(string), nil
	}
	r, err := img.Reader(va, revision.Revision{})
	if err != nil {
		return "", err
	}
	s := r.CString()
	if r.Err != nil {
		return "", r.Err
	}
	img.strings.Add(va, s)
	return s, nil
}
