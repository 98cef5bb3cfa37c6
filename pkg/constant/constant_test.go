package constant_test

import (
	"encoding/binary"
	"math"
	"reflect"
	"testing"

	"github.com/go-delve/aotgraph/pkg/constant"
	"github.com/go-delve/aotgraph/pkg/decode"
	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/registration"
	"github.com/go-delve/aotgraph/pkg/revision"
)

// resolver knows three references: 0 is Int32, 1 is an enum backed by
// Int16 and 2 is a value type that is not an enum.
type resolver struct{}

func (resolver) Reference(i int32) (registration.Type, bool) {
	switch i {
	case 0:
		return registration.Type{Bits: registration.MakeBits(0, registration.TypeI4, false, true)}, true
	case 1:
		return registration.Type{Data: 7, Bits: registration.MakeBits(0, registration.TypeValueType, false, true)}, true
	case 2:
		return registration.Type{Data: 8, Bits: registration.MakeBits(0, registration.TypeValueType, false, true)}, true
	}
	return registration.Type{}, false
}

func (resolver) EnumUnderlying(def int) (registration.TypeEnum, bool) {
	if def == 7 {
		return registration.TypeI2, true
	}
	return 0, false
}

func ci(v int32) []byte { return decode.AppendCompressedInt32(nil, v) }

func cat(bs ...[]byte) []byte {
	var out []byte
	for _, b := range bs {
		out = append(out, b...)
	}
	return out
}

func TestDecodeKind(t *testing.T) {
	f32 := binary.LittleEndian.AppendUint32(nil, math.Float32bits(1.5))
	f64 := binary.LittleEndian.AppendUint64(nil, math.Float64bits(-2.25))
	for _, tc := range []struct {
		name string
		kind registration.TypeEnum
		blob []byte
		want interface{}
		used int
	}{
		{"bool", registration.TypeBoolean, []byte{1}, true, 1},
		{"u1", registration.TypeU1, []byte{0xfe}, uint8(0xfe), 1},
		{"i1", registration.TypeI1, []byte{0xfe}, int8(-2), 1},
		{"char", registration.TypeChar, []byte{'A', 0}, 'A', 2},
		{"u2", registration.TypeU2, []byte{0x34, 0x12}, uint16(0x1234), 2},
		{"i2", registration.TypeI2, []byte{0xff, 0xff}, int16(-1), 2},
		{"u4", registration.TypeU4, []byte{0x05}, uint32(5), 1},
		{"i4 negative", registration.TypeI4, []byte{0x07}, int32(-4), 1},
		{"i4 two bytes", registration.TypeI4, ci(1000), int32(1000), 2},
		{"u8", registration.TypeU8, []byte{1, 0, 0, 0, 0, 0, 0, 0x80}, uint64(0x8000000000000001), 8},
		{"i8", registration.TypeI8, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, int64(-1), 8},
		{"r4", registration.TypeR4, f32, float32(1.5), 4},
		{"r8", registration.TypeR8, f64, float64(-2.25), 8},
		{"string", registration.TypeString, cat(ci(3), []byte("bob")), "bob", 4},
		{"null string", registration.TypeString, ci(-1), nil, 1},
		{"class", registration.TypeClass, nil, nil, 0},
		{"object", registration.TypeObject, nil, nil, 0},
		{"type index", registration.TypeIndex, ci(12), constant.TypeRef{Index: 12}, 1},
		{"null type index", registration.TypeIndex, ci(-1), nil, 1},
		{"null array", registration.TypeSzArray, ci(-1), nil, 1},
	} {
		r := decode.NewReader("metadata", tc.blob, 0, revision.V29)
		got, err := constant.NewDecoder(resolver{}).DecodeKind(r, tc.kind)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: got %#v, want %#v", tc.name, got, tc.want)
		}
		if r.Offset() != tc.used {
			t.Errorf("%s: consumed %d bytes, want %d", tc.name, r.Offset(), tc.used)
		}
	}
}

func TestFixedWidthBefore29(t *testing.T) {
	blob := binary.LittleEndian.AppendUint32(nil, uint32(0xfffffffc))
	r := decode.NewReader("metadata", blob, 0, revision.V24)
	got, err := constant.NewDecoder(resolver{}).DecodeKind(r, registration.TypeI4)
	if err != nil {
		t.Fatal(err)
	}
	if got != int32(-4) {
		t.Fatalf("got %#v", got)
	}
}

func TestDecodeEnum(t *testing.T) {
	d := constant.NewDecoder(resolver{})
	r := decode.NewReader("metadata", []byte{0x02, 0x00}, 0, revision.V29)
	got, err := d.Decode(r, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != int16(2) {
		t.Fatalf("enum constant %#v", got)
	}

	r = decode.NewReader("metadata", []byte{0x0a}, 0, revision.V29)
	if got, err = d.Decode(r, 0); err != nil || got != int32(5) {
		t.Fatalf("int constant %#v %v", got, err)
	}

	for _, ref := range []int32{2, 99} {
		r = decode.NewReader("metadata", []byte{0}, 0, revision.V29)
		if _, err := d.Decode(r, ref); fault.Kind(err) != "FormatError" {
			t.Fatalf("reference %d: expected FormatError, got %v", ref, err)
		}
	}
}

func TestDecodeArray(t *testing.T) {
	d := constant.NewDecoder(resolver{})

	same := cat(ci(2), []byte{byte(registration.TypeI4), 0}, ci(1), ci(-1))
	r := decode.NewReader("metadata", same, 0, revision.V29)
	got, err := d.DecodeKind(r, registration.TypeSzArray)
	if err != nil {
		t.Fatal(err)
	}
	want := &constant.Array{Kind: registration.TypeI4, Enum: -1, Elements: []constant.Element{
		{Kind: registration.TypeI4, Enum: -1, Value: int32(1)},
		{Kind: registration.TypeI4, Enum: -1, Value: int32(-1)},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}

	// element types differ: an enum, a string and a nested null array
	mixed := cat(ci(3), []byte{byte(registration.TypeObject), 1},
		[]byte{byte(registration.TypeEnumMarker)}, ci(1), []byte{0x03, 0x00},
		[]byte{byte(registration.TypeString)}, ci(2), []byte("hi"),
		[]byte{byte(registration.TypeSzArray)}, ci(-1))
	r = decode.NewReader("metadata", mixed, 0, revision.V29)
	got, err = d.DecodeKind(r, registration.TypeSzArray)
	if err != nil {
		t.Fatal(err)
	}
	want = &constant.Array{Kind: registration.TypeObject, Enum: -1, Elements: []constant.Element{
		{Kind: registration.TypeI2, Enum: 1, Value: int16(3)},
		{Kind: registration.TypeString, Enum: -1, Value: "hi"},
		{Kind: registration.TypeSzArray, Enum: -1, Value: nil},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}
	if r.Len() != 0 {
		t.Fatalf("%d bytes left", r.Len())
	}
}

func TestMalformed(t *testing.T) {
	d := constant.NewDecoder(resolver{})
	for _, tc := range []struct {
		name string
		kind registration.TypeEnum
		blob []byte
	}{
		{"truncated i8", registration.TypeI8, []byte{1, 2, 3}},
		{"long string", registration.TypeString, cat(ci(10), []byte("abc"))},
		{"bad compressed prefix", registration.TypeI4, []byte{0xf8}},
		{"void", registration.TypeVoid, nil},
		{"array too long", registration.TypeSzArray, cat(ci(100), []byte{byte(registration.TypeI4), 0}, ci(1))},
		{"unknown enum", registration.TypeSzArray, cat(ci(1), []byte{byte(registration.TypeEnumMarker)}, ci(2), []byte{0, 0})},
	} {
		r := decode.NewReader("metadata", tc.blob, 0, revision.V29)
		if _, err := d.DecodeKind(r, tc.kind); fault.Kind(err) != "FormatError" {
			t.Errorf("%s: expected FormatError, got %v", tc.name, err)
		}
	}
}
