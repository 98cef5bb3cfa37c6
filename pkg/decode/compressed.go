package decode

import (
	"math"

	"github.com/go-delve/aotgraph/pkg/revision"
)

// CompressedUint32 decodes an unsigned integer in the variable length
// encoding used by revision 29 and later:
//
//	0xxxxxxx                   7-bit value
//	10xxxxxx xxxxxxxx          14-bit value, big-endian
//	110xxxxx xxxxxxxx × 3      29-bit value, big-endian
//	0xf0 + 4 bytes             literal little-endian uint32
//	0xfe                       MaxUint32 - 1
//	0xff                       MaxUint32
//
// Earlier revisions store a plain little-endian uint32.
func (r *Reader) CompressedUint32() uint32 {
	if r.rev.Before(revision.V29) {
		return r.Uint32()
	}
	first := r.Uint8()
	if r.Err != nil {
		return 0
	}
	switch {
	case first&0x80 == 0:
		return uint32(first)
	case first&0xc0 == 0x80:
		return uint32(first&^0x80)<<8 | uint32(r.Uint8())
	case first&0xe0 == 0xc0:
		b := r.next(3)
		if b == nil {
			return 0
		}
		return uint32(first&^0xc0)<<24 | uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	}
	switch first {
	case 0xf0:
		return r.Uint32()
	case 0xfe:
		return math.MaxUint32 - 1
	case 0xff:
		return math.MaxUint32
	}
	r.error("invalid compressed integer prefix %#x at %#x", first, r.off-1)
	return 0
}

// CompressedInt32 decodes a signed integer. Bit 0 of the unsigned encoding
// is the sign: a set bit encodes -(v>>1)-1, so -1 is stored as 1.
// The unsigned maximum decodes to MaxInt32.
func (r *Reader) CompressedInt32() int32 {
	if r.rev.Before(revision.V29) {
		return r.Int32()
	}
	v := r.CompressedUint32()
	if v == math.MaxUint32 {
		return math.MaxInt32
	}
	if v&1 != 0 {
		return -int32(v>>1) - 1
	}
	return int32(v >> 1)
}

// AppendCompressedUint32 is the inverse of CompressedUint32 for revision 29
// and later.
func AppendCompressedUint32(buf []byte, v uint32) []byte {
	switch {
	case v < 0x80:
		return append(buf, byte(v))
	case v < 0x4000:
		return append(buf, byte(v>>8)|0x80, byte(v))
	case v < 0x20000000:
		return append(buf, byte(v>>24)|0xc0, byte(v>>16), byte(v>>8), byte(v))
	case v == math.MaxUint32-1:
		return append(buf, 0xfe)
	case v == math.MaxUint32:
		return append(buf, 0xff)
	}
	return append(buf, 0xf0, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// AppendCompressedInt32 encodes v for CompressedInt32. math.MinInt32 does
// not round trip: it encodes as 0xff, which decodes as math.MaxInt32.
func AppendCompressedInt32(buf []byte, v int32) []byte {
	if v < 0 {
		return AppendCompressedUint32(buf, uint32(-(int64(v)+1))<<1|1)
	}
	return AppendCompressedUint32(buf, uint32(v)<<1)
}
