// Package registration decodes the registration roots embedded in the
// native image and the tables they point to.
package registration

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/go-delve/aotgraph/pkg/decode"
	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/image"
	"github.com/go-delve/aotgraph/pkg/logflags"
	"github.com/go-delve/aotgraph/pkg/revision"
)

// Plausibility bounds for counts embedded in CodeRegistration. Values
// beyond them mean the root was decoded at the wrong address or revision.
const (
	MaxReversePInvokeWrappers = 0x10000
	MaxUnresolvedCalls        = 0x4000
	MaxInteropData            = 0x1000

	// AmbiguousGenericMethodPointers is the GenericMethodPointersCount above
	// which a revision 29 code root is reread as 29.1.
	AmbiguousGenericMethodPointers = 0x50000
)

// ReadCodeRegistration decodes the code-side root at addr.
func ReadCodeRegistration(img *image.Image, rev revision.Revision, addr uint64) (*CodeRegistration, error) {
	cr := &CodeRegistration{}
	if err := img.ReadRecord(addr, rev, cr); err != nil {
		return nil, err
	}
	return cr, nil
}

// ReadMetadataRegistration decodes the metadata-side root at addr.
func ReadMetadataRegistration(img *image.Image, rev revision.Revision, addr uint64) (*MetadataRegistration, error) {
	mr := &MetadataRegistration{}
	if err := img.ReadRecord(addr, rev, mr); err != nil {
		return nil, err
	}
	return mr, nil
}

// Disambiguate rereads the code root at addr when rev is 29 and the decoded
// record only makes sense as 29.1. The 29.1 record is longer and ends at the
// same place, so its start moves back by the size difference.
func Disambiguate(img *image.Image, rev revision.Revision, addr uint64) (revision.Revision, uint64, *CodeRegistration, error) {
	cr, err := ReadCodeRegistration(img, rev, addr)
	if err != nil {
		return rev, addr, nil, err
	}
	if rev != revision.V29 || cr.GenericMethodPointersCount <= AmbiguousGenericMethodPointers {
		return rev, addr, cr, nil
	}
	shift := uint64(decode.SizeOf[CodeRegistration](revision.V29_1) - decode.SizeOf[CodeRegistration](revision.V29))
	logflags.LocatorLogger().Debugf("generic method pointer count %#x is implausible in revision 29, switching to 29.1", cr.GenericMethodPointersCount)
	addr -= shift
	cr, err = ReadCodeRegistration(img, revision.V29_1, addr)
	if err != nil {
		return rev, addr, nil, err
	}
	return revision.V29_1, addr, cr, nil
}

// Validate checks the embedded counts of a decoded code root.
func (cr *CodeRegistration) Validate() error {
	switch {
	case cr.ReversePInvokeWrappersCount > MaxReversePInvokeWrappers:
		return fault.Integrityf("implausible reverse P/Invoke wrapper count %#x", cr.ReversePInvokeWrappersCount)
	case cr.UnresolvedCallCount() > MaxUnresolvedCalls:
		return fault.Integrityf("implausible unresolved call count %#x", cr.UnresolvedCallCount())
	case cr.InteropDataCount > MaxInteropData:
		return fault.Integrityf("implausible interop data count %#x", cr.InteropDataCount)
	}
	return nil
}

// Module is one decoded CodeGenModule with its arrays.
type Module struct {
	Record CodeGenModule
	Name   string
	Addr   uint64

	// MethodPointers is indexed by the low 24 bits of a method token minus
	// one. It is all zeros when the module has no concrete methods.
	MethodPointers []uint64
	InvokerIndices []int32
}

// Tables holds everything reachable from the two registration roots.
type Tables struct {
	img *image.Image

	Revision     revision.Revision
	CodeAddr     uint64
	MetadataAddr uint64
	Code         CodeRegistration
	Metadata     MetadataRegistration

	Modules       []*Module
	ModulesByName map[string]*Module

	// MethodPointers is the global method pointer array of revisions
	// before 24.2, indexed by MethodDefinition.MethodIndex.
	MethodPointers []uint64

	// Types is the type reference table. TypeAddrs holds the address of
	// each record; TypeIndexByAddr is its inverse.
	Types           []Type
	TypeAddrs       []uint64
	TypeIndexByAddr map[uint64]int

	TypeSizes    []TypeDefinitionSizes
	FieldOffsets []uint64
	GenericInsts []GenericInst

	InvokerPointers   []uint64
	FunctionAddresses []uint64
}

// Load decodes the registration roots at codeAddr and metaAddr and every
// table they reference. typeCount is the length of the metadata type
// definition table.
func Load(img *image.Image, rev revision.Revision, codeAddr, metaAddr uint64, typeCount int) (*Tables, error) {
	logger := logflags.LoaderLogger()
	if rev.Before(revision.V22) {
		return nil, &fault.UnsupportedRevisionError{Revision: rev.String(), Component: "registration loader", Supported: ">= 22"}
	}
	t := &Tables{img: img, Revision: rev, CodeAddr: codeAddr, MetadataAddr: metaAddr}

	cr, err := ReadCodeRegistration(img, rev, codeAddr)
	if err != nil {
		return nil, errors.Wrap(err, "code registration")
	}
	mr, err := ReadMetadataRegistration(img, rev, metaAddr)
	if err != nil {
		return nil, errors.Wrap(err, "metadata registration")
	}
	t.Code, t.Metadata = *cr, *mr

	if int64(typeCount) != mr.TypeDefinitionsSizesCount {
		return nil, fault.Integrityf("metadata registration has %d type sizes, metadata has %d type definitions", mr.TypeDefinitionsSizesCount, typeCount)
	}
	if err := cr.Validate(); err != nil {
		return nil, err
	}

	if rev.Before(revision.V24_2) {
		if t.MethodPointers, err = img.Uint64s(cr.MethodPointers, int(cr.MethodPointersCount)); err != nil {
			return nil, errors.Wrap(err, "method pointers")
		}
	} else if err := t.loadModules(); err != nil {
		return nil, err
	}

	if t.FieldOffsets, err = img.Uint64s(mr.FieldOffsets, int(mr.FieldOffsetsCount)); err != nil {
		return nil, errors.Wrap(err, "field offsets")
	}

	if t.TypeAddrs, err = img.Uint64s(mr.Types, int(mr.TypesCount)); err != nil {
		return nil, errors.Wrap(err, "type references")
	}
	t.Types = make([]Type, len(t.TypeAddrs))
	t.TypeIndexByAddr = make(map[uint64]int, len(t.TypeAddrs))
	for i, addr := range t.TypeAddrs {
		if err := img.ReadRecord(addr, rev, &t.Types[i]); err != nil {
			return nil, errors.Wrapf(err, "type reference %d", i)
		}
		t.TypeIndexByAddr[addr] = i
	}

	if t.InvokerPointers, err = img.Uint64s(cr.InvokerPointers, int(cr.InvokerPointersCount)); err != nil {
		return nil, errors.Wrap(err, "invoker pointers")
	}
	t.FunctionAddresses = append([]uint64(nil), t.InvokerPointers...)
	sort.Slice(t.FunctionAddresses, func(i, j int) bool { return t.FunctionAddresses[i] < t.FunctionAddresses[j] })

	if t.GenericInsts, err = readIndirect[GenericInst](img, rev, mr.GenericInsts, int(mr.GenericInstsCount)); err != nil {
		return nil, errors.Wrap(err, "generic instances")
	}
	if t.TypeSizes, err = readIndirect[TypeDefinitionSizes](img, rev, mr.TypeDefinitionsSizes, int(mr.TypeDefinitionsSizesCount)); err != nil {
		return nil, errors.Wrap(err, "type definition sizes")
	}

	logger.Debugf("%d modules, %d type references, %d generic instances, %d invokers", len(t.Modules), len(t.Types), len(t.GenericInsts), len(t.InvokerPointers))
	return t, nil
}

func (t *Tables) loadModules() error {
	logger := logflags.LoaderLogger()
	img, rev := t.img, t.Revision
	ptrs, err := img.Uint64s(t.Code.CodeGenModules, int(t.Code.CodeGenModulesCount))
	if err != nil {
		return errors.Wrap(err, "code generation modules")
	}
	t.ModulesByName = make(map[string]*Module, len(ptrs))
	for _, p := range ptrs {
		m := &Module{Addr: p}
		if err := img.ReadRecord(p, rev, &m.Record); err != nil {
			return errors.Wrap(err, "code generation module")
		}
		rec := &m.Record
		if m.Name, err = img.CString(rec.ModuleName); err != nil {
			return errors.Wrapf(err, "name of module at %#x", p)
		}
		n := int(rec.MethodPointerCount)
		if img.Mapped(rec.MethodPointers) {
			if m.MethodPointers, err = img.Uint64s(rec.MethodPointers, n); err != nil {
				return errors.Wrapf(err, "method pointers of %s", m.Name)
			}
		} else {
			// modules with only abstract or generic methods point their
			// array at uninitialized data
			if logflags.Loader() {
				logger.Debugf("%s: method pointer array %#x is not mapped", m.Name, rec.MethodPointers)
			}
			m.MethodPointers = make([]uint64, n)
		}
		if img.Mapped(rec.InvokerIndices) {
			if m.InvokerIndices, err = img.Int32s(rec.InvokerIndices, n); err != nil {
				return errors.Wrapf(err, "invoker indices of %s", m.Name)
			}
		}
		t.Modules = append(t.Modules, m)
		t.ModulesByName[m.Name] = m
	}
	return nil
}

// readIndirect reads count pointers at addr and the record each one points
// to.
func readIndirect[T any](img *image.Image, rev revision.Revision, addr uint64, count int) ([]T, error) {
	ptrs, err := img.Uint64s(addr, count)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(ptrs))
	for i, p := range ptrs {
		if err := img.ReadRecord(p, rev, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Image returns the image the tables were read from.
func (t *Tables) Image() *image.Image { return t.img }

// TypeAt returns the index of the type reference record at addr.
func (t *Tables) TypeAt(addr uint64) (int, bool) {
	i, ok := t.TypeIndexByAddr[addr]
	return i, ok
}

// ArrayType decodes the array descriptor at addr.
func (t *Tables) ArrayType(addr uint64) (*ArrayType, error) {
	at := &ArrayType{}
	if err := t.img.ReadRecord(addr, t.Revision, at); err != nil {
		return nil, err
	}
	return at, nil
}

// FieldOffset returns the instance offset of field slot of type
// typeIndex. Types without a layout, such as generic definitions, have a
// null entry.
func (t *Tables) FieldOffset(typeIndex, slot int) (int32, bool) {
	if typeIndex < 0 || typeIndex >= len(t.FieldOffsets) || slot < 0 {
		return 0, false
	}
	p := t.FieldOffsets[typeIndex]
	if p == 0 {
		return 0, false
	}
	vs, err := t.img.Int32s(p+uint64(slot)*4, 1)
	if err != nil {
		return 0, false
	}
	return vs[0], true
}
