package decode

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/revision"
)

// Records are plain structs whose fields appear in file order. A field
// tagged with `rev:"..."` is only present in the revisions matching the
// predicate:
//
//	rev:">=16"            present from 16 on
//	rev:"<=24.1"          present up to and including 24.1
//	rev:">=21,<=22"       all terms must hold
//	rev:"==24.5|>=27.1"   any alternative may hold
//
// Supported field types are the fixed-size integers, byte arrays and
// nested record structs. Fields named "_" are padding and are skipped.

type cond struct {
	op  string
	rev revision.Revision
}

func (c cond) holds(v revision.Revision) bool {
	n := v.Compare(c.rev)
	switch c.op {
	case ">=":
		return n >= 0
	case "<=":
		return n <= 0
	case ">":
		return n > 0
	case "<":
		return n < 0
	case "==":
		return n == 0
	case "!=":
		return n != 0
	}
	return false
}

// predicate is a disjunction of conjunctions.
type predicate [][]cond

func (p predicate) holds(v revision.Revision) bool {
	if p == nil {
		return true
	}
	for _, and := range p {
		ok := true
		for _, c := range and {
			if !c.holds(v) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

var ops = []string{">=", "<=", "==", "!=", ">", "<"}

func parsePredicate(tag string) (predicate, error) {
	var p predicate
	for _, alt := range strings.Split(tag, "|") {
		var and []cond
		for _, term := range strings.Split(alt, ",") {
			term = strings.TrimSpace(term)
			var c cond
			for _, op := range ops {
				if strings.HasPrefix(term, op) {
					c.op = op
					break
				}
			}
			if c.op == "" {
				return nil, fmt.Errorf("missing comparison in %q", term)
			}
			rev, ok := revision.Parse(term[len(c.op):])
			if !ok {
				return nil, fmt.Errorf("bad revision in %q", term)
			}
			c.rev = rev
			and = append(and, c)
		}
		p = append(p, and)
	}
	return p, nil
}

type field struct {
	index  int
	name   string
	kind   reflect.Kind
	offset int
	size   int
	sub    *layout
}

type layout struct {
	fields []field
	size   int
}

type layoutKey struct {
	t   reflect.Type
	rev revision.Revision
}

var (
	layouts    sync.Map // layoutKey -> *layout
	predicates sync.Map // reflect.Type -> []predicate, one per field
)

func fieldPredicates(t reflect.Type) []predicate {
	if p, ok := predicates.Load(t); ok {
		return p.([]predicate)
	}
	ps := make([]predicate, t.NumField())
	for i := range ps {
		tag, ok := t.Field(i).Tag.Lookup("rev")
		if !ok {
			continue
		}
		p, err := parsePredicate(tag)
		if err != nil {
			panic(fmt.Sprintf("decode: %s.%s: %v", t.Name(), t.Field(i).Name, err))
		}
		ps[i] = p
	}
	predicates.Store(t, ps)
	return ps
}

func layoutOf(t reflect.Type, rev revision.Revision) *layout {
	key := layoutKey{t, rev}
	if l, ok := layouts.Load(key); ok {
		return l.(*layout)
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("decode: %v is not a struct", t))
	}
	ps := fieldPredicates(t)
	l := &layout{}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !ps[i].holds(rev) {
			continue
		}
		f := field{index: i, name: sf.Name, kind: sf.Type.Kind(), offset: l.size}
		switch sf.Type.Kind() {
		case reflect.Uint8, reflect.Int8, reflect.Uint16, reflect.Int16,
			reflect.Uint32, reflect.Int32, reflect.Uint64, reflect.Int64:
			f.size = int(sf.Type.Size())
		case reflect.Array:
			if sf.Type.Elem().Kind() != reflect.Uint8 {
				panic(fmt.Sprintf("decode: %s.%s: only byte arrays are supported", t.Name(), sf.Name))
			}
			f.size = sf.Type.Len()
		case reflect.Struct:
			f.sub = layoutOf(sf.Type, rev)
			f.size = f.sub.size
		default:
			panic(fmt.Sprintf("decode: %s.%s: unsupported kind %v", t.Name(), sf.Name, sf.Type.Kind()))
		}
		l.fields = append(l.fields, f)
		l.size += f.size
	}
	actual, _ := layouts.LoadOrStore(key, l)
	return actual.(*layout)
}

// Size returns the encoded size in bytes of the record type t in revision
// rev.
func Size(rev revision.Revision, t reflect.Type) int {
	return layoutOf(t, rev).size
}

// SizeOf is Size for the type parameter.
func SizeOf[T any](rev revision.Revision) int {
	return Size(rev, reflect.TypeOf((*T)(nil)).Elem())
}

// OffsetOf returns the byte offset of the named top-level field of T in
// revision rev. The second result is false if the field is absent in that
// revision.
func OffsetOf[T any](rev revision.Revision, name string) (int, bool) {
	l := layoutOf(reflect.TypeOf((*T)(nil)).Elem(), rev)
	for _, f := range l.fields {
		if f.name == name {
			return f.offset, true
		}
	}
	return 0, false
}

// Read decodes one record into the struct pointed to by v, using the
// reader's revision.
func Read(r *Reader, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("decode: Read needs a pointer to a struct, got %T", v))
	}
	readStruct(r, rv.Elem(), layoutOf(rv.Elem().Type(), r.rev))
	return r.Err
}

func readStruct(r *Reader, v reflect.Value, l *layout) {
	for _, f := range l.fields {
		fv := v.Field(f.index)
		if f.name == "_" {
			r.next(f.size)
			continue
		}
		switch f.kind {
		case reflect.Uint8:
			fv.SetUint(uint64(r.Uint8()))
		case reflect.Uint16:
			fv.SetUint(uint64(r.Uint16()))
		case reflect.Uint32:
			fv.SetUint(uint64(r.Uint32()))
		case reflect.Uint64:
			fv.SetUint(r.Uint64())
		case reflect.Int8:
			fv.SetInt(int64(r.Int8()))
		case reflect.Int16:
			fv.SetInt(int64(r.Int16()))
		case reflect.Int32:
			fv.SetInt(int64(r.Int32()))
		case reflect.Int64:
			fv.SetInt(r.Int64())
		case reflect.Array:
			reflect.Copy(fv, reflect.ValueOf(r.next(f.size)))
		case reflect.Struct:
			readStruct(r, fv, f.sub)
		}
		if r.Err != nil {
			return
		}
	}
}

// ReadTable decodes a table stored as a byte range holding consecutive
// records of type T. The length of data must be a multiple of the record
// size.
func ReadTable[T any](name string, data []byte, rev revision.Revision) ([]T, error) {
	size := SizeOf[T](rev)
	if size == 0 {
		return nil, fault.Integrityf("%s records are empty in revision %v", name, rev)
	}
	if len(data)%size != 0 {
		return nil, fault.Integrityf("%s table is %d bytes, not a multiple of the %d byte record in revision %v", name, len(data), size, rev)
	}
	out := make([]T, len(data)/size)
	r := NewReader(name, data, 0, rev)
	for i := range out {
		if err := Read(r, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Append encodes v, a record struct or a pointer to one, in revision rev
// and appends it to buf.
func Append(buf []byte, rev revision.Revision, v interface{}) []byte {
	rv := reflect.Indirect(reflect.ValueOf(v))
	return appendStruct(buf, rv, layoutOf(rv.Type(), rev))
}

func appendStruct(buf []byte, v reflect.Value, l *layout) []byte {
	for _, f := range l.fields {
		fv := v.Field(f.index)
		if f.name == "_" {
			buf = append(buf, make([]byte, f.size)...)
			continue
		}
		switch f.kind {
		case reflect.Uint8:
			buf = append(buf, uint8(fv.Uint()))
		case reflect.Uint16:
			buf = binary.LittleEndian.AppendUint16(buf, uint16(fv.Uint()))
		case reflect.Uint32:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(fv.Uint()))
		case reflect.Uint64:
			buf = binary.LittleEndian.AppendUint64(buf, fv.Uint())
		case reflect.Int8:
			buf = append(buf, uint8(fv.Int()))
		case reflect.Int16:
			buf = binary.LittleEndian.AppendUint16(buf, uint16(fv.Int()))
		case reflect.Int32:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(fv.Int()))
		case reflect.Int64:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(fv.Int()))
		case reflect.Array:
			for i := 0; i < f.size; i++ {
				buf = append(buf, uint8(fv.Index(i).Uint()))
			}
		case reflect.Struct:
			buf = appendStruct(buf, fv, f.sub)
		}
	}
	return buf
}
