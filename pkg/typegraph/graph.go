// Package typegraph builds the queryable type graph of a program from its
// metadata tables and registration tables.
//
// Construction runs in two phases. The first creates every type definition
// with its fields and methods and indexes it by fully qualified name. The
// second resolves type references lazily, on first use, and memoizes the
// result; because every definition already exists when it starts, cyclic
// references between definitions resolve to the same nodes.
package typegraph

import (
	"sort"
	"sync"

	"github.com/derekparker/trie"

	"github.com/go-delve/aotgraph/pkg/binder"
	"github.com/go-delve/aotgraph/pkg/constant"
	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/logflags"
	"github.com/go-delve/aotgraph/pkg/metadata"
	"github.com/go-delve/aotgraph/pkg/registration"
	"github.com/go-delve/aotgraph/pkg/revision"
)

const moduleTypeName = "<Module>"

// maxNesting bounds the declaring type chain followed when naming nested
// types.
const maxNesting = 64

// Graph owns every node built for one program.
type Graph struct {
	Metadata *metadata.Metadata
	Tables   *registration.Tables

	Assemblies []*Assembly
	// Types is indexed by type definition index and includes the <Module>
	// pseudo types.
	Types []*TypeDef

	binder  *binder.Binder
	decoder *constant.Decoder
	names   *trie.Trie
	log     logflags.Logger

	mu         sync.Mutex
	refs       map[int32]refEntry
	arrays     map[arrayKey]*ArrayType
	inProgress map[int32]bool
	defaults   map[defaultKey]defaultEntry
}

type refEntry struct {
	t  Type
	ok bool
}

type arrayKey struct {
	elem Type
	rank int
}

type defaultKey struct {
	field bool
	index int
}

type defaultEntry struct {
	v   interface{}
	err error
}

// Build runs the first phase over md and tables. Method addresses are bound
// with b.
func Build(md *metadata.Metadata, tables *registration.Tables, b *binder.Binder) (*Graph, error) {
	g := &Graph{
		Metadata:   md,
		Tables:     tables,
		binder:     b,
		names:      trie.New(),
		log:        logflags.ResolverLogger(),
		refs:       make(map[int32]refEntry),
		arrays:     make(map[arrayKey]*ArrayType),
		inProgress: make(map[int32]bool),
		defaults:   make(map[defaultKey]defaultEntry),
	}
	g.decoder = constant.NewDecoder(g)
	if len(tables.TypeSizes) != len(md.Types) {
		return nil, fault.Integrityf("%d type sizes for %d type definitions", len(tables.TypeSizes), len(md.Types))
	}

	fieldDefaults := make(map[int32]int, len(md.FieldDefaultValues))
	for i := range md.FieldDefaultValues {
		fieldDefaults[md.FieldDefaultValues[i].FieldIndex] = i
	}
	paramDefaults := make(map[int32]int, len(md.ParameterDefaultValues))
	for i := range md.ParameterDefaultValues {
		paramDefaults[md.ParameterDefaultValues[i].ParameterIndex] = i
	}

	g.Types = make([]*TypeDef, len(md.Types))
	for i := range md.Images {
		a := newAssembly(md, i)
		if b != nil {
			if m, ok := b.Module(a.ImageName); ok {
				a.Module = m
			} else if md.Revision.AfterOrEqual(revision.V24_2) {
				g.log.Warnf("no code generation module for %s, its methods have no address", a.ImageName)
			}
		}
		start, end := md.TypeRange(i)
		for j := start; j < end; j++ {
			t, err := g.newTypeDef(a, j, fieldDefaults, paramDefaults)
			if err != nil {
				return nil, err
			}
			g.Types[j] = t
			if t.name != moduleTypeName {
				a.Types = append(a.Types, t)
			}
		}
		g.Assemblies = append(g.Assemblies, a)
	}

	for _, t := range g.Types {
		t.fullName = g.qualifiedName(t)
		if t.name != "" && t.name != moduleTypeName {
			g.names.Add(t.fullName, t)
		}
	}
	g.log.Debugf("%d assemblies, %d types", len(g.Assemblies), len(g.Types))
	return g, nil
}

func (g *Graph) newTypeDef(a *Assembly, index int, fieldDefaults, paramDefaults map[int32]int) (*TypeDef, error) {
	md := g.Metadata
	def := &md.Types[index]
	t := &TypeDef{
		g:          g,
		Index:      index,
		Definition: def,
		Assembly:   a,
		Namespace:  sanitize(md.String(def.NamespaceIndex), isNamespaceRune),
		name:       md.String(def.NameIndex),
	}

	fstart, fend := int(def.FieldStart), int(def.FieldStart)+int(def.FieldCount)
	if def.FieldCount > 0 && (fstart < 0 || fend > len(md.Fields)) {
		return nil, fault.Integrityf("type %d: fields [%d, %d) outside of %d field definitions", index, fstart, fend, len(md.Fields))
	}
	for fi := fstart; fi < fend; fi++ {
		fd := &md.Fields[fi]
		f := &Field{
			g:             g,
			Index:         fi,
			Slot:          fi - fstart,
			Name:          md.String(fd.NameIndex),
			DeclaringType: t,
			Definition:    fd,
			defaultValue:  -1,
		}
		if ref, ok := g.reference(fd.TypeIndex); ok {
			f.Attributes = FieldAttributes(ref.Attrs())
		}
		if dv, ok := fieldDefaults[int32(fi)]; ok {
			f.defaultValue = dv
		}
		t.Fields = append(t.Fields, f)
	}

	mstart, mend := int(def.MethodStart), int(def.MethodStart)+int(def.MethodCount)
	if def.MethodCount > 0 && (mstart < 0 || mend > len(md.Methods)) {
		return nil, fault.Integrityf("type %d: methods [%d, %d) outside of %d method definitions", index, mstart, mend, len(md.Methods))
	}
	for mi := mstart; mi < mend; mi++ {
		m, err := g.newMethod(t, mi, paramDefaults)
		if err != nil {
			return nil, err
		}
		t.Methods = append(t.Methods, m)
	}
	return t, nil
}

func (g *Graph) newMethod(t *TypeDef, index int, paramDefaults map[int32]int) (*Method, error) {
	md := g.Metadata
	def := &md.Methods[index]
	m := &Method{
		g:             g,
		Index:         index,
		Name:          md.String(def.NameIndex),
		DeclaringType: t,
		Definition:    def,
		Token:         def.Token,
		InvokerIndex:  -1,
	}
	if g.binder != nil {
		if md.Revision.Before(revision.V24_2) {
			m.Address, m.HasAddress = g.binder.BindGlobal(def.MethodIndex)
			if def.InvokerIndex >= 0 {
				m.InvokerIndex = def.InvokerIndex
			}
		} else if mod := t.Assembly.Module; mod != nil {
			m.Address, m.HasAddress = g.binder.Bind(mod, def.Token)
			if idx, ok := g.binder.InvokerIndex(mod, def.Token); ok {
				m.InvokerIndex = idx
			}
		}
	}

	pstart, pend := int(def.ParameterStart), int(def.ParameterStart)+int(def.ParameterCount)
	if def.ParameterCount > 0 && (pstart < 0 || pend > len(md.Parameters)) {
		return nil, fault.Integrityf("method %d: parameters [%d, %d) outside of %d parameter definitions", index, pstart, pend, len(md.Parameters))
	}
	for pi := pstart; pi < pend; pi++ {
		pd := &md.Parameters[pi]
		p := &Parameter{
			g:            g,
			Index:        pi,
			Position:     pi - pstart,
			Name:         md.String(pd.NameIndex),
			Method:       m,
			Definition:   pd,
			defaultValue: -1,
		}
		if dv, ok := paramDefaults[int32(pi)]; ok {
			p.defaultValue = dv
		}
		m.Parameters = append(m.Parameters, p)
	}
	return m, nil
}

// qualifiedName returns Namespace.Name, or Outer+Inner for nested types.
func (g *Graph) qualifiedName(t *TypeDef) string {
	name := t.name
	cur := t
	for depth := 0; cur.Definition.DeclaringTypeIndex >= 0 && depth < maxNesting; depth++ {
		outer, ok := g.definitionOf(cur.Definition.DeclaringTypeIndex)
		if !ok || outer == cur {
			break
		}
		if cur == t {
			t.DeclaringType = outer
		}
		name = outer.name + "+" + name
		cur = outer
	}
	if cur.Namespace != "" {
		name = cur.Namespace + "." + name
	}
	return name
}

// definitionOf returns the definition a class or value type reference
// points to.
func (g *Graph) definitionOf(refIndex int32) (*TypeDef, bool) {
	ref, ok := g.reference(refIndex)
	if !ok {
		return nil, false
	}
	switch ref.Kind() {
	case registration.TypeClass, registration.TypeValueType:
		if ref.Data < uint64(len(g.Types)) && g.Types[ref.Data] != nil {
			return g.Types[ref.Data], true
		}
	}
	return nil, false
}

// reference returns the raw type reference at index.
func (g *Graph) reference(index int32) (*registration.Type, bool) {
	if index < 0 || int(index) >= len(g.Tables.Types) {
		return nil, false
	}
	return &g.Tables.Types[index], true
}

// Find returns the type definition with the fully qualified name.
func (g *Graph) Find(fullName string) (*TypeDef, bool) {
	n, ok := g.names.Find(fullName)
	if !ok {
		return nil, false
	}
	t, ok := n.Meta().(*TypeDef)
	return t, ok
}

// FindPrefix returns the type definitions whose fully qualified name starts
// with prefix, sorted by name.
func (g *Graph) FindPrefix(prefix string) []*TypeDef {
	keys := g.names.PrefixSearch(prefix)
	sort.Strings(keys)
	out := make([]*TypeDef, 0, len(keys))
	for _, k := range keys {
		if t, ok := g.Find(k); ok {
			out = append(out, t)
		}
	}
	return out
}

// Assembly returns the assembly with the given short name or image name.
func (g *Graph) Assembly(name string) (*Assembly, bool) {
	for _, a := range g.Assemblies {
		if a.Name == name || a.ImageName == name {
			return a, true
		}
	}
	return nil, false
}

// Symbols maps Namespace$$Type_method to the address of every method with
// native code.
func (g *Graph) Symbols() map[string]uint64 {
	out := make(map[string]uint64)
	for _, t := range g.Types {
		for _, m := range t.Methods {
			if m.HasAddress {
				out[m.Symbol()] = m.Address
			}
		}
	}
	return out
}
