package locate

import (
	"encoding/binary"

	"github.com/go-delve/aotgraph/pkg/image"
	"github.com/go-delve/aotgraph/pkg/logflags"
)

// FindAll returns the offsets of every occurrence of pattern in data that
// is a multiple of align, using Boyer-Moore-Horspool.
func FindAll(data, pattern []byte, align int) []int {
	n, m := len(data), len(pattern)
	if m == 0 || n < m {
		return nil
	}
	if align < 1 {
		align = 1
	}
	var skip [256]int
	for i := range skip {
		skip[i] = m
	}
	last := m - 1
	for i := 0; i < last; i++ {
		skip[pattern[i]] = last - i
	}

	var out []int
	for i := 0; i <= n-m; {
		for j := last; data[i+j] == pattern[j]; j-- {
			if j == 0 {
				out = append(out, i)
				break
			}
		}
		i += skip[data[i+last]]
		if r := i % align; r != 0 {
			i += align - r
		}
	}
	return out
}

// scanner searches the raw bytes of an image for values and maps the
// matches back to virtual addresses.
type scanner struct {
	img  *image.Image
	data []byte
	log  logflags.Logger
}

func newScanner(img *image.Image) *scanner {
	return &scanner{img: img, data: img.Data(), log: logflags.LocatorLogger()}
}

// mapped converts file offsets to virtual addresses, dropping offsets that
// no section maps.
func (s *scanner) mapped(offs []int) []uint64 {
	var out []uint64
	for _, off := range offs {
		if va, ok := s.img.FileOffsetToVA(uint64(off)); ok {
			out = append(out, va)
		}
	}
	return out
}

// words returns the addresses of the 8-aligned words equal to v.
func (s *scanner) words(v uint64) []uint64 {
	var pat [8]byte
	binary.LittleEndian.PutUint64(pat[:], v)
	return s.mapped(FindAll(s.data, pat[:], 8))
}

// pointerChains returns the addresses of words that reach va through
// depth levels of pointers.
func (s *scanner) pointerChains(va uint64, depth int) []uint64 {
	ptrs := s.words(va)
	if depth <= 1 {
		return ptrs
	}
	var out []uint64
	for _, p := range ptrs {
		out = append(out, s.pointerChains(p, depth-1)...)
	}
	return out
}
