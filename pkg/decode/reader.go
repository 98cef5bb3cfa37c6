package decode

import (
	"encoding/binary"
	"math"

	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/revision"
)

// Reader is a little-endian cursor over one input buffer.
//
// Like the DWARF buffer readers it records the first error in Err and
// returns zero values afterwards, so a decoder can read a whole record and
// check Err once.
type Reader struct {
	name string
	data []byte
	off  int
	rev  revision.Revision
	Err  error
}

// NewReader returns a Reader positioned at off. Name identifies the input in
// error messages ("image", "metadata").
func NewReader(name string, data []byte, off int, rev revision.Revision) *Reader {
	r := &Reader{name: name, data: data, rev: rev}
	r.Seek(off)
	return r
}

func (r *Reader) Revision() revision.Revision { return r.rev }

// SetRevision changes the revision used by subsequent record reads.
func (r *Reader) SetRevision(rev revision.Revision) { r.rev = rev }

func (r *Reader) Offset() int { return r.off }

func (r *Reader) Len() int { return len(r.data) - r.off }

func (r *Reader) Seek(off int) {
	if off < 0 || off > len(r.data) {
		r.error("seek to %#x outside of %#x bytes", off, len(r.data))
		return
	}
	r.off = off
}

func (r *Reader) error(format string, args ...interface{}) {
	if r.Err == nil {
		r.Err = fault.Formatf(r.name, format, args...)
	}
}

func (r *Reader) next(n int) []byte {
	if r.Err != nil {
		return nil
	}
	if n < 0 || r.Len() < n {
		r.error("underflow reading %d bytes at %#x", n, r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Int8() int8 { return int8(r.Uint8()) }

func (r *Reader) Uint16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) Int16() int16 { return int16(r.Uint16()) }

func (r *Reader) Uint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) Int32() int32 { return int32(r.Uint32()) }

func (r *Reader) Uint64() uint64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) Int64() int64 { return int64(r.Uint64()) }

func (r *Reader) Float32() float32 { return math.Float32frombits(r.Uint32()) }

func (r *Reader) Float64() float64 { return math.Float64frombits(r.Uint64()) }

// Bytes returns the next n bytes without copying them.
func (r *Reader) Bytes(n int) []byte {
	return r.next(n)
}

// CString reads a NUL terminated string and consumes the terminator.
func (r *Reader) CString() string {
	if r.Err != nil {
		return ""
	}
	for i := r.off; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.off:i])
			r.off = i + 1
			return s
		}
	}
	r.error("unterminated string at %#x", r.off)
	return ""
}
