package decode

import (
	"math"
	"testing"

	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/revision"
	"github.com/pkg/errors"
)

func TestCompressedUint32(t *testing.T) {
	for _, tc := range []struct {
		in  []byte
		out uint32
		n   int
	}{
		{[]byte{0x05}, 5, 1},
		{[]byte{0x7f}, 0x7f, 1},
		{[]byte{0x81, 0x02}, 0x102, 2},
		{[]byte{0xc1, 0x02, 0x03, 0x04}, 0x01020304, 4},
		{[]byte{0xf0, 0x78, 0x56, 0x34, 0x12}, 0x12345678, 5},
		{[]byte{0xfe}, math.MaxUint32 - 1, 1},
		{[]byte{0xff}, math.MaxUint32, 1},
	} {
		r := NewReader("metadata", tc.in, 0, revision.V29)
		v := r.CompressedUint32()
		if r.Err != nil {
			t.Fatalf("% x: %v", tc.in, r.Err)
		}
		if v != tc.out || r.Offset() != tc.n {
			t.Fatalf("% x: decoded %#x using %d bytes, want %#x using %d", tc.in, v, r.Offset(), tc.out, tc.n)
		}
	}
}

func TestCompressedInt32(t *testing.T) {
	for _, tc := range []struct {
		in  []byte
		out int32
	}{
		{[]byte{0x06}, 3},
		{[]byte{0x07}, -4},
		{[]byte{0x01}, -1},
		{[]byte{0x00}, 0},
		{[]byte{0xff}, math.MaxInt32},
	} {
		r := NewReader("metadata", tc.in, 0, revision.V29)
		if v := r.CompressedInt32(); v != tc.out {
			t.Fatalf("% x: decoded %d want %d", tc.in, v, tc.out)
		}
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 63, -64, 64, 8191, -8192, 1 << 27, -(1 << 27), math.MaxInt32}
	var buf []byte
	for _, v := range values {
		buf = AppendCompressedInt32(buf, v)
	}
	r := NewReader("metadata", buf, 0, revision.V29)
	for _, v := range values {
		if got := r.CompressedInt32(); got != v {
			t.Fatalf("round trip of %d gave %d", v, got)
		}
	}
	if r.Len() != 0 || r.Err != nil {
		t.Fatalf("left %d bytes, err %v", r.Len(), r.Err)
	}
}

func TestCompressedMinInt32(t *testing.T) {
	buf := AppendCompressedInt32(nil, math.MinInt32)
	if len(buf) != 1 || buf[0] != 0xff {
		t.Fatalf("encoded as % x", buf)
	}
	r := NewReader("metadata", buf, 0, revision.V29)
	if got := r.CompressedInt32(); got != math.MaxInt32 {
		t.Fatalf("decoded %d", got)
	}
}

func TestCompressedBeforeV29(t *testing.T) {
	r := NewReader("metadata", []byte{0xfc, 0xff, 0xff, 0xff, 0x05, 0, 0, 0}, 0, revision.V27)
	if v := r.CompressedInt32(); v != -4 {
		t.Fatalf("got %d", v)
	}
	if v := r.CompressedUint32(); v != 5 {
		t.Fatalf("got %d", v)
	}
}

func TestCompressedInvalidPrefix(t *testing.T) {
	r := NewReader("metadata", []byte{0xe5}, 0, revision.V29)
	r.CompressedUint32()
	var fe *fault.FormatError
	if !errors.As(r.Err, &fe) {
		t.Fatalf("expected FormatError, got %v", r.Err)
	}
}

func TestUnderflow(t *testing.T) {
	r := NewReader("image", []byte{1, 2, 3}, 0, revision.V29)
	r.Uint32()
	if r.Err == nil {
		t.Fatal("expected underflow")
	}
	if v := r.Uint8(); v != 0 {
		t.Fatalf("reads after an error must return zero, got %d", v)
	}
}

func TestCString(t *testing.T) {
	r := NewReader("image", []byte("abc\x00de\x00f"), 0, revision.V29)
	if s := r.CString(); s != "abc" {
		t.Fatalf("got %q", s)
	}
	if s := r.CString(); s != "de" {
		t.Fatalf("got %q", s)
	}
	r.CString()
	if r.Err == nil {
		t.Fatal("expected error for unterminated string")
	}
}

type inner struct {
	A uint16
	B uint16 `rev:">=24.5"`
}

type record struct {
	Name   int32
	Old    int32 `rev:"<=24.1"`
	Mid    int32 `rev:">=21,<=22"`
	Thunks uint64 `rev:"==24.5|>=27.1"`
	Token  [4]byte
	In     inner
	_      [3]byte
	Last   uint8
}

func TestRecordSize(t *testing.T) {
	for _, tc := range []struct {
		rev  revision.Revision
		size int
	}{
		{revision.V21, 4 + 4 + 4 + 4 + 2 + 3 + 1},
		{revision.V24, 4 + 4 + 4 + 2 + 3 + 1},
		{revision.V24_5, 4 + 8 + 4 + 4 + 3 + 1},
		{revision.V27, 4 + 4 + 4 + 3 + 1},
		{revision.V29, 4 + 8 + 4 + 4 + 3 + 1},
	} {
		if got := SizeOf[record](tc.rev); got != tc.size {
			t.Errorf("size in %v = %d, want %d", tc.rev, got, tc.size)
		}
	}
}

func TestOffsetOf(t *testing.T) {
	off, ok := OffsetOf[record](revision.V29, "Token")
	if !ok || off != 12 {
		t.Fatalf("Token at %d (%v)", off, ok)
	}
	off, ok = OffsetOf[record](revision.V24, "Token")
	if !ok || off != 8 {
		t.Fatalf("Token at %d (%v)", off, ok)
	}
	if _, ok := OffsetOf[record](revision.V29, "Old"); ok {
		t.Fatal("Old must be absent in 29")
	}
}

func TestReadRecord(t *testing.T) {
	want := record{Name: -2, Thunks: 0x1122334455667788, Token: [4]byte{1, 2, 3, 4}, In: inner{A: 7, B: 9}, Last: 0xaa}
	buf := Append(nil, revision.V29, &want)
	if len(buf) != SizeOf[record](revision.V29) {
		t.Fatalf("encoded %d bytes", len(buf))
	}
	var got record
	if err := Read(NewReader("metadata", buf, 0, revision.V29), &got); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestReadTable(t *testing.T) {
	var buf []byte
	for i := 0; i < 3; i++ {
		buf = Append(buf, revision.V27, record{Name: int32(i), Last: uint8(i)})
	}
	recs, err := ReadTable[record]("records", buf, revision.V27)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 || recs[2].Name != 2 || recs[2].Last != 2 {
		t.Fatalf("got %+v", recs)
	}

	_, err = ReadTable[record]("records", buf[:len(buf)-1], revision.V27)
	var se *fault.StructuralIntegrityError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructuralIntegrityError, got %v", err)
	}
}

func TestBadTagPanics(t *testing.T) {
	type bad struct {
		X int32 `rev:"~16"`
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	SizeOf[bad](revision.V29)
}
