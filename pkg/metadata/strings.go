package metadata

import "bytes"

// StringTable maps byte offsets of the string table to their NUL
// terminated strings.
type StringTable struct {
	data   []byte
	starts map[int32]string
}

// NewStringTable indexes every string of data by its starting offset.
func NewStringTable(data []byte) *StringTable {
	st := &StringTable{data: data, starts: make(map[int32]string)}
	for off := 0; off < len(data); {
		n := bytes.IndexByte(data[off:], 0)
		if n < 0 {
			st.starts[int32(off)] = string(data[off:])
			break
		}
		st.starts[int32(off)] = string(data[off : off+n])
		off += n + 1
	}
	return st
}

// Get returns the string at off. Offsets into the middle of a string
// return its tail, which is how suffix-shared names are stored. Offsets
// outside the table return "".
func (st *StringTable) Get(off int32) string {
	if s, ok := st.starts[off]; ok {
		return s
	}
	if off < 0 || int(off) >= len(st.data) {
		return ""
	}
	b := st.data[off:]
	if n := bytes.IndexByte(b, 0); n >= 0 {
		b = b[:n]
	}
	return string(b)
}

// Len returns the number of strings in the table.
func (st *StringTable) Len() int { return len(st.starts) }
