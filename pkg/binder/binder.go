// Package binder attaches native addresses to methods.
package binder

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/go-delve/aotgraph/pkg/image"
	"github.com/go-delve/aotgraph/pkg/logflags"
	"github.com/go-delve/aotgraph/pkg/registration"
	"github.com/go-delve/aotgraph/pkg/revision"
)

// DefaultMaxHops bounds thunk following when Options.MaxHops is not set.
const DefaultMaxHops = 8

// maxInstLen is the longest x86 instruction.
const maxInstLen = 15

// Slot returns the method pointer slot selected by token, counting from one.
func Slot(token uint32) int {
	return int(token & 0xFFFFFF)
}

// Address returns the entry of ptrs selected by token. Slot zero, slots
// past the end of ptrs and zero entries have no address.
func Address(ptrs []uint64, token uint32) (uint64, bool) {
	slot := Slot(token)
	if slot == 0 || slot > len(ptrs) {
		return 0, false
	}
	addr := ptrs[slot-1]
	return addr, addr != 0
}

// Options configures a Binder.
type Options struct {
	// FollowThunks replaces addresses that start with an unconditional
	// relative jump by the jump target.
	FollowThunks bool
	MaxHops      int
}

// Binder binds method tokens to addresses within one image.
type Binder struct {
	tables *registration.Tables
	opts   Options
	log    logflags.Logger
}

// New returns a binder over the modules and invokers of tables.
func New(tables *registration.Tables, opts Options) *Binder {
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	return &Binder{tables: tables, opts: opts, log: logflags.BinderLogger()}
}

// Module returns the code generation module registered under name.
func (b *Binder) Module(name string) (*registration.Module, bool) {
	m, ok := b.tables.ModulesByName[name]
	return m, ok
}

// Bind returns the native address of the method with token in m.
func (b *Binder) Bind(m *registration.Module, token uint32) (uint64, bool) {
	if m == nil {
		return 0, false
	}
	addr, ok := Address(m.MethodPointers, token)
	if !ok {
		return 0, false
	}
	if b.opts.FollowThunks {
		addr = b.Follow(addr)
	}
	return addr, true
}

// BindGlobal returns the native address of the method with methodIndex in
// the global method pointer array of revisions before 24.2.
func (b *Binder) BindGlobal(methodIndex int32) (uint64, bool) {
	if methodIndex < 0 || int(methodIndex) >= len(b.tables.MethodPointers) {
		return 0, false
	}
	addr := b.tables.MethodPointers[methodIndex]
	if addr == 0 {
		return 0, false
	}
	if b.opts.FollowThunks {
		addr = b.Follow(addr)
	}
	return addr, true
}

// InvokerIndex returns the invoker index of the method with token in m.
func (b *Binder) InvokerIndex(m *registration.Module, token uint32) (int32, bool) {
	if m == nil {
		return -1, false
	}
	slot := Slot(token)
	if slot == 0 || slot > len(m.InvokerIndices) {
		return -1, false
	}
	idx := m.InvokerIndices[slot-1]
	return idx, idx >= 0
}

// Invoker returns the address of the invoker of the method with token in
// m.
func (b *Binder) Invoker(m *registration.Module, token uint32) (uint64, bool) {
	idx, ok := b.InvokerIndex(m, token)
	if !ok {
		return 0, false
	}
	return b.InvokerAt(idx)
}

// InvokerAt returns the address of invoker idx.
func (b *Binder) InvokerAt(idx int32) (uint64, bool) {
	if idx < 0 || int(idx) >= len(b.tables.InvokerPointers) {
		return 0, false
	}
	addr := b.tables.InvokerPointers[idx]
	return addr, addr != 0
}

// Follow returns the final target of the chain of jump thunks starting at
// addr, or addr itself if it does not start with a relative jump.
func (b *Binder) Follow(addr uint64) uint64 {
	img := b.tables.Image()
	for hop := 0; hop < b.opts.MaxHops; hop++ {
		target, ok := jumpTarget(img, addr)
		if !ok {
			return addr
		}
		if logflags.Binder() {
			b.log.Debugf("thunk %#x jumps to %#x", addr, target)
		}
		addr = target
	}
	b.log.Warnf("giving up on thunk chain at %#x after %d hops", addr, b.opts.MaxHops)
	return addr
}

// jumpTarget decodes the instruction at addr and returns the destination
// of a jmp rel8/rel32.
func jumpTarget(img *image.Image, addr uint64) (uint64, bool) {
	r, err := img.Reader(addr, revision.Revision{})
	if err != nil {
		return 0, false
	}
	n := maxInstLen
	if r.Len() < n {
		n = r.Len()
	}
	mem := r.Bytes(n)
	if r.Err != nil {
		return 0, false
	}
	inst, err := x86asm.Decode(mem, 64)
	if err != nil || inst.Op != x86asm.JMP {
		return 0, false
	}
	rel, isrel := inst.Args[0].(x86asm.Rel)
	if !isrel {
		return 0, false
	}
	target := uint64(int64(addr) + int64(inst.Len) + int64(rel))
	if !img.Mapped(target) {
		return 0, false
	}
	return target, true
}
