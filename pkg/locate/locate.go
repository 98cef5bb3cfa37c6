// Package locate finds the two registration roots in a native image that
// carries no symbols.
//
// The code root is found from the module list: the name of the last
// registered module is a string literal, a CodeGenModule record points to
// it and the module array points to that record. Walking back from the
// array entry to the array start gives the CodeGenModules field of the
// root, which is preceded by the module count.
//
// The metadata root is found from the type definition count, which it
// stores next to the table of type sizes.
package locate

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/go-delve/aotgraph/pkg/decode"
	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/image"
	"github.com/go-delve/aotgraph/pkg/logflags"
	"github.com/go-delve/aotgraph/pkg/registration"
	"github.com/go-delve/aotgraph/pkg/revision"
)

// DefaultLiteral is the module name searched for when no other is
// configured.
const DefaultLiteral = "mscorlib.dll"

// Options configures the scan.
type Options struct {
	// Literal is the name of the last registered code generation module.
	Literal string
	// Workers bounds the number of literal matches followed concurrently.
	Workers int
}

func (o Options) literal() []byte {
	lit := o.Literal
	if lit == "" {
		lit = DefaultLiteral
	}
	return append([]byte(lit), 0)
}

func (o Options) workers() int {
	if o.Workers < 1 {
		return 1
	}
	return o.Workers
}

// Result is the outcome of a successful scan.
type Result struct {
	// Revision is the detected revision. It differs from the requested one
	// when the code root only decodes as 29.1.
	Revision             revision.Revision
	CodeRegistration     uint64
	MetadataRegistration uint64
	Code                 *registration.CodeRegistration
}

// Locate finds both roots in img. imageCount and typeCount are the image
// and type definition counts of the matching metadata.
func Locate(img *image.Image, rev revision.Revision, imageCount, typeCount int, opts Options) (*Result, error) {
	if err := revision.Locatable(rev); err != nil {
		return nil, err
	}
	logger := logflags.LocatorLogger()

	codes, err := FindCodeRegistration(img, rev, imageCount, opts)
	if err != nil {
		return nil, err
	}
	if len(codes) != 1 {
		return nil, errors.WithStack(&fault.LocatorFailure{Root: "code registration", Candidates: codes})
	}
	metas := FindMetadataRegistration(img, rev, typeCount)
	if len(metas) != 1 {
		return nil, errors.WithStack(&fault.LocatorFailure{Root: "metadata registration", Candidates: metas})
	}

	detected, codeAddr, cr, err := registration.Disambiguate(img, rev, codes[0])
	if err != nil {
		return nil, errors.Wrap(err, "code registration")
	}
	if err := cr.Validate(); err != nil {
		return nil, err
	}
	logger.Infof("code registration at %#x, metadata registration at %#x, revision %v", codeAddr, metas[0], detected)
	return &Result{
		Revision:             detected,
		CodeRegistration:     codeAddr,
		MetadataRegistration: metas[0],
		Code:                 cr,
	}, nil
}

// FindCodeRegistration returns every address that passes the module list
// walk, sorted and without duplicates.
func FindCodeRegistration(img *image.Image, rev revision.Revision, imageCount int, opts Options) ([]uint64, error) {
	if imageCount <= 0 {
		return nil, nil
	}
	s := newScanner(img)
	lit := opts.literal()
	matches := s.mapped(FindAll(s.data, lit, 1))
	s.log.Debugf("%d matches of %q", len(matches), lit[:len(lit)-1])

	size := uint64(decode.SizeOf[registration.CodeRegistration](rev))
	results := make([][]uint64, len(matches))

	var g errgroup.Group
	g.SetLimit(opts.workers())
	for i, va := range matches {
		i, va := i, va
		g.Go(func() error {
			results[i] = s.codeCandidates(va, imageCount, size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []uint64
	for _, r := range results {
		out = append(out, r...)
	}
	return dedupe(out), nil
}

// codeCandidates follows the literal at va to module array entries and
// from each entry back to a CodeGenModules field.
func (s *scanner) codeCandidates(va uint64, imageCount int, size uint64) []uint64 {
	var out []uint64
	for _, entry := range s.pointerChains(va, 2) {
		for i := imageCount - 1; i >= 0; i-- {
			start := entry - uint64(i)*8
			for _, p := range s.words(start) {
				n, err := s.img.Uint64(p - 8)
				if err != nil || n != uint64(imageCount) {
					continue
				}
				addr := p - (size - 8)
				if logflags.Locator() {
					s.log.Debugf("module array %#x referenced from %#x, candidate %#x", start, p, addr)
				}
				out = append(out, addr)
			}
		}
	}
	return out
}

// FindMetadataRegistration returns every address whose record has the
// count/pointer shape of a metadata root and the expected type count.
func FindMetadataRegistration(img *image.Image, rev revision.Revision, typeCount int) []uint64 {
	off, ok := decode.OffsetOf[registration.MetadataRegistration](rev, "TypeDefinitionsSizesCount")
	if !ok || typeCount <= 0 {
		return nil
	}
	s := newScanner(img)
	var out []uint64
	for _, va := range s.words(uint64(typeCount)) {
		cand := va - uint64(off)
		if s.validMetadata(cand, rev) {
			if logflags.Locator() {
				s.log.Debugf("metadata registration candidate %#x", cand)
			}
			out = append(out, cand)
		}
	}
	return dedupe(out)
}

func (s *scanner) validMetadata(addr uint64, rev revision.Revision) bool {
	n := decode.SizeOf[registration.MetadataRegistration](rev) / 8
	words, err := s.img.Uint64s(addr, n)
	if err != nil {
		return false
	}
	// counts and pointers alternate
	for i := 0; i+1 < len(words); i += 2 {
		count, ptr := int64(words[i]), words[i+1]
		if count < 0 {
			return false
		}
		if ptr == 0 {
			if count != 0 {
				return false
			}
		} else if !s.img.Mapped(ptr) {
			return false
		}
	}
	mr, err := registration.ReadMetadataRegistration(s.img, rev, addr)
	if err != nil {
		return false
	}
	return mr.FieldOffsetsCount == mr.TypeDefinitionsSizesCount && mr.TypesCount > 0 && s.img.Mapped(mr.Types)
}

func dedupe(addrs []uint64) []uint64 {
	if len(addrs) == 0 {
		return nil
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	out := addrs[:1]
	for _, a := range addrs[1:] {
		if a != out[len(out)-1] {
			out = append(out, a)
		}
	}
	return out
}
