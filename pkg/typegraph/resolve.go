package typegraph

import (
	"github.com/go-delve/aotgraph/pkg/logflags"
	"github.com/go-delve/aotgraph/pkg/registration"
)

// Resolve returns the node for the type reference at refIndex. Pointer,
// by-reference and generic parameter references, and references whose
// target cannot be found, are unresolved and return false.
func (g *Graph) Resolve(refIndex int32) (Type, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolve(refIndex)
}

func (g *Graph) resolve(refIndex int32) (Type, bool) {
	if e, ok := g.refs[refIndex]; ok {
		return e.t, e.ok
	}
	if g.inProgress[refIndex] {
		// the reference is its own element
		return nil, false
	}
	g.inProgress[refIndex] = true
	t, ok := g.resolveUncached(refIndex)
	delete(g.inProgress, refIndex)
	g.refs[refIndex] = refEntry{t: t, ok: ok}
	return t, ok
}

func (g *Graph) resolveUncached(refIndex int32) (Type, bool) {
	ref, ok := g.reference(refIndex)
	if !ok {
		return nil, false
	}
	switch kind := ref.Kind(); kind {
	case registration.TypeClass, registration.TypeValueType:
		if t, ok := g.definitionOf(refIndex); ok {
			return t, true
		}
		if logflags.Resolver() {
			g.log.Debugf("type reference %d: definition %d out of range", refIndex, ref.Data)
		}
		return nil, false

	case registration.TypeSzArray:
		return g.arrayOf(ref.Data, 1)

	case registration.TypeArray:
		at, err := g.Tables.ArrayType(ref.Data)
		if err != nil {
			if logflags.Resolver() {
				g.log.Debugf("type reference %d: %v", refIndex, err)
			}
			return nil, false
		}
		return g.arrayOf(at.EType, int(at.Rank))

	case registration.TypePtr, registration.TypeByRef, registration.TypeVar, registration.TypeMVar:
		return nil, false

	default:
		name, ok := kind.FullName()
		if !ok {
			return nil, false
		}
		t, ok := g.Find(name)
		if !ok {
			if logflags.Resolver() {
				g.log.Debugf("type reference %d: no definition named %s", refIndex, name)
			}
			return nil, false
		}
		return t, true
	}
}

// arrayOf returns the canonical array of rank whose element type reference
// record is at elemAddr.
func (g *Graph) arrayOf(elemAddr uint64, rank int) (Type, bool) {
	elemIndex, ok := g.Tables.TypeAt(elemAddr)
	if !ok || rank < 1 {
		return nil, false
	}
	elem, ok := g.resolve(int32(elemIndex))
	if !ok {
		return nil, false
	}
	return g.makeArray(elem, rank), true
}

func (g *Graph) makeArray(elem Type, rank int) *ArrayType {
	k := arrayKey{elem: elem, rank: rank}
	if a, ok := g.arrays[k]; ok {
		return a
	}
	a := &ArrayType{Element: elem, Rank: rank}
	g.arrays[k] = a
	return a
}

// ArrayOf returns the canonical array of elem with the given rank.
func (g *Graph) ArrayOf(elem Type, rank int) *ArrayType {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.makeArray(elem, rank)
}

// Reference implements constant.Resolver.
func (g *Graph) Reference(index int32) (registration.Type, bool) {
	ref, ok := g.reference(index)
	if !ok {
		return registration.Type{}, false
	}
	return *ref, true
}

// EnumUnderlying implements constant.Resolver. The element type of an enum
// is either a primitive reference or a reference to the definition of the
// primitive, whose by-value reference carries the kind.
func (g *Graph) EnumUnderlying(def int) (registration.TypeEnum, bool) {
	if def < 0 || def >= len(g.Metadata.Types) {
		return 0, false
	}
	td := &g.Metadata.Types[def]
	if !td.IsEnum() {
		return 0, false
	}
	ref, ok := g.reference(td.ElementTypeIndex)
	if !ok {
		return 0, false
	}
	kind := ref.Kind()
	if kind.IsPrimitive() {
		return kind, true
	}
	if kind != registration.TypeValueType && kind != registration.TypeClass {
		return 0, false
	}
	if ref.Data >= uint64(len(g.Metadata.Types)) {
		return 0, false
	}
	byVal, ok := g.reference(g.Metadata.Types[ref.Data].ByValTypeIndex)
	if !ok || !byVal.Kind().IsPrimitive() {
		return 0, false
	}
	return byVal.Kind(), true
}

// defaultValue decodes and memoizes a default value payload.
func (g *Graph) defaultValue(k defaultKey, typeIndex, dataIndex int32) (interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.defaults[k]; ok {
		return e.v, e.err
	}
	v, err := g.decoder.Decode(g.Metadata.DefaultData(dataIndex), typeIndex)
	g.defaults[k] = defaultEntry{v: v, err: err}
	return v, err
}
