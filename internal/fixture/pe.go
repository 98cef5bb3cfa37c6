// Package fixture builds synthetic native images and metadata blobs for
// tests.
package fixture

import (
	"bytes"
	"debug/pe"
	"encoding/binary"

	"github.com/go-delve/aotgraph/pkg/decode"
	"github.com/go-delve/aotgraph/pkg/revision"
)

const (
	ImageBase     = 0x180000000
	fileAlign     = 0x200
	sectionStride = 0x100000
	peOffset      = 0x80
)

// Section is a section under construction. Data appended to it gets a
// virtual address immediately, before the file layout is known.
type Section struct {
	Name string
	VA   uint32
	buf  []byte
}

// Addr returns the virtual address of the next byte to be appended.
func (s *Section) Addr() uint64 {
	return ImageBase + uint64(s.VA) + uint64(len(s.buf))
}

// Align pads the section to a multiple of n bytes.
func (s *Section) Align(n int) {
	for len(s.buf)%n != 0 {
		s.buf = append(s.buf, 0)
	}
}

// Append appends raw bytes and returns their address.
func (s *Section) Append(b []byte) uint64 {
	va := s.Addr()
	s.buf = append(s.buf, b...)
	return va
}

// Words appends 8-aligned little-endian words and returns the address of
// the first one.
func (s *Section) Words(ws ...uint64) uint64 {
	s.Align(8)
	va := s.Addr()
	for _, w := range ws {
		s.buf = binary.LittleEndian.AppendUint64(s.buf, w)
	}
	return va
}

// Int32s appends 4-aligned little-endian integers.
func (s *Section) Int32s(vs ...int32) uint64 {
	s.Align(4)
	va := s.Addr()
	for _, v := range vs {
		s.buf = binary.LittleEndian.AppendUint32(s.buf, uint32(v))
	}
	return va
}

// CString appends a NUL terminated string.
func (s *Section) CString(str string) uint64 {
	return s.Append(append([]byte(str), 0))
}

// Record appends an 8-aligned record encoded in revision rev.
func (s *Section) Record(rev revision.Revision, v interface{}) uint64 {
	s.Align(8)
	return s.Append(decode.Append(nil, rev, v))
}

// PutWord overwrites the word at va.
func (s *Section) PutWord(va, w uint64) {
	off := va - ImageBase - uint64(s.VA)
	binary.LittleEndian.PutUint64(s.buf[off:], w)
}

// PE assembles a PE32+ image with .text, .rdata and .data sections.
type PE struct {
	Text  *Section
	RData *Section
	Data  *Section

	// IATSize is the size recorded for the import address table, which
	// starts at the beginning of .rdata.
	IATSize uint32
	// Packed moves the import address table away from .rdata.
	Packed bool
	// OptionalHeaderSize overrides the COFF SizeOfOptionalHeader field.
	OptionalHeaderSize uint16
}

// NewPE returns an empty image whose .rdata starts with an 8 byte import
// address table.
func NewPE() *PE {
	p := &PE{
		Text:    &Section{Name: ".text", VA: 0x1000},
		RData:   &Section{Name: ".rdata", VA: 0x1000 + sectionStride},
		Data:    &Section{Name: ".data", VA: 0x1000 + 2*sectionStride},
		IATSize: 8,
	}
	p.RData.Words(0)
	// a few instructions so .text is never empty
	p.Text.Append([]byte{0xc3, 0xcc, 0xcc, 0xcc})
	return p
}

func (p *PE) sections() []*Section {
	return []*Section{p.Text, p.RData, p.Data}
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}

// Bytes lays out the file.
func (p *PE) Bytes() []byte {
	secs := p.sections()
	headerEnd := peOffset + 4 + binary.Size(pe.FileHeader{}) + binary.Size(pe.OptionalHeader64{}) + len(secs)*binary.Size(pe.SectionHeader32{})
	sizeOfHeaders := alignUp(headerEnd, fileAlign)

	offsets := make([]int, len(secs))
	off := sizeOfHeaders
	for i, s := range secs {
		offsets[i] = off
		off += alignUp(len(s.buf), fileAlign)
	}
	out := make([]byte, off)

	out[0], out[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(out[0x3c:], peOffset)
	copy(out[peOffset:], "PE\x00\x00")

	var hdr bytes.Buffer
	ohsize := p.OptionalHeaderSize
	if ohsize == 0 {
		ohsize = uint16(binary.Size(pe.OptionalHeader64{}))
	}
	binary.Write(&hdr, binary.LittleEndian, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     uint16(len(secs)),
		SizeOfOptionalHeader: ohsize,
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_LARGE_ADDRESS_AWARE | pe.IMAGE_FILE_DLL,
	})
	last := secs[len(secs)-1]
	oh := pe.OptionalHeader64{
		Magic:               0x20b,
		SizeOfCode:          uint32(alignUp(len(p.Text.buf), fileAlign)),
		BaseOfCode:          p.Text.VA,
		ImageBase:           ImageBase,
		SectionAlignment:    0x1000,
		FileAlignment:       fileAlign,
		SizeOfImage:         uint32(alignUp(int(last.VA)+len(last.buf), 0x1000)),
		SizeOfHeaders:       uint32(sizeOfHeaders),
		Subsystem:           pe.IMAGE_SUBSYSTEM_WINDOWS_GUI,
		NumberOfRvaAndSizes: 16,
	}
	oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_IAT] = pe.DataDirectory{VirtualAddress: p.RData.VA, Size: p.IATSize}
	if p.Packed {
		oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_IAT].VirtualAddress = p.Data.VA
	}
	binary.Write(&hdr, binary.LittleEndian, oh)
	for i, s := range secs {
		var name [8]uint8
		copy(name[:], s.Name)
		binary.Write(&hdr, binary.LittleEndian, pe.SectionHeader32{
			Name:             name,
			VirtualSize:      uint32(len(s.buf)),
			VirtualAddress:   s.VA,
			SizeOfRawData:    uint32(alignUp(len(s.buf), fileAlign)),
			PointerToRawData: uint32(offsets[i]),
			Characteristics:  pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_CNT_INITIALIZED_DATA,
		})
	}
	copy(out[peOffset+4:], hdr.Bytes())

	for i, s := range secs {
		copy(out[offsets[i]:], s.buf)
	}
	return out
}

// FileOffset returns the file offset at which va ends up in Bytes.
func (p *PE) FileOffset(va uint64) int {
	secs := p.sections()
	headerEnd := peOffset + 4 + binary.Size(pe.FileHeader{}) + binary.Size(pe.OptionalHeader64{}) + len(secs)*binary.Size(pe.SectionHeader32{})
	off := alignUp(headerEnd, fileAlign)
	for _, s := range secs {
		start := ImageBase + uint64(s.VA)
		if va >= start && va < start+uint64(alignUp(len(s.buf), fileAlign)) {
			return off + int(va-start)
		}
		off += alignUp(len(s.buf), fileAlign)
	}
	return -1
}
