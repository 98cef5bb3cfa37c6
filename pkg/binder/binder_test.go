package binder_test

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/go-delve/aotgraph/pkg/binder"
	"github.com/go-delve/aotgraph/pkg/image"
	"github.com/go-delve/aotgraph/internal/fixture"
	"github.com/go-delve/aotgraph/pkg/logflags"
	"github.com/go-delve/aotgraph/pkg/registration"
	"github.com/go-delve/aotgraph/pkg/revision"
)

func TestAddress(t *testing.T) {
	ptrs := []uint64{0x1000, 0, 0x3000}
	for _, tc := range []struct {
		token uint32
		want  uint64
		ok    bool
	}{
		{0x06000001, 0x1000, true},
		{0x06000002, 0, false},
		{0x06000003, 0x3000, true},
		{0x06000000, 0, false},
		{0x06000004, 0, false},
		{0x06ffffff, 0, false},
	} {
		got, ok := binder.Address(ptrs, tc.token)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Address(%#x) = %#x %v, want %#x %v", tc.token, got, ok, tc.want, tc.ok)
		}
	}
	if _, ok := binder.Address(nil, 0x06000001); ok {
		t.Errorf("address found in empty table")
	}
}

func load(t *testing.T, s *fixture.Sample) *registration.Tables {
	t.Helper()
	b, _ := s.Build()
	img, err := image.New(b, 0)
	if err != nil {
		t.Fatalf("could not parse image: %v", err)
	}
	tables, err := registration.Load(img, s.Native.Rev, s.Native.CodeAddr, s.Native.MetadataAddr, len(s.Metadata.Types))
	if err != nil {
		t.Fatalf("could not load registration: %+v", err)
	}
	return tables
}

func TestBind(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	tables := load(t, s)

	for _, tc := range []struct {
		follow bool
		token  uint32
		want   uint64
		ok     bool
	}{
		{false, 0x06000001, s.Ctor, true},
		{false, 0x06000002, s.MoveThunk, true},
		{true, 0x06000002, s.Move, true},
		{true, 0x06000001, s.Ctor, true},
		{true, 0x06000003, 0, false},
		{true, 0x06000005, 0, false},
	} {
		b := binder.New(tables, binder.Options{FollowThunks: tc.follow})
		m, ok := b.Module("Game.dll")
		if !ok {
			t.Fatal("no Game.dll module")
		}
		got, ok := b.Bind(m, tc.token)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Bind(%#x, follow=%v) = %#x %v, want %#x %v", tc.token, tc.follow, got, ok, tc.want, tc.ok)
		}
	}

	b := binder.New(tables, binder.Options{})
	if _, ok := b.Module("Missing.dll"); ok {
		t.Fatal("found a module that does not exist")
	}
	if _, ok := b.Bind(nil, 0x06000001); ok {
		t.Fatal("bound a method of a missing module")
	}
}

func TestInvoker(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	b := binder.New(load(t, s), binder.Options{})
	m, _ := b.Module("Game.dll")
	for _, tc := range []struct {
		token uint32
		want  uint64
		ok    bool
	}{
		{0x06000001, s.Invokers[0], true},
		{0x06000002, s.Invokers[1], true},
		{0x06000003, 0, false},
		{0x06000009, 0, false},
	} {
		got, ok := b.Invoker(m, tc.token)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Invoker(%#x) = %#x %v, want %#x %v", tc.token, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFollowLoop(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	// jmp $
	loop := s.Native.Func(0xeb, 0xfe)
	chain := s.Native.Thunk(s.MoveThunk)
	b := binder.New(load(t, s), binder.Options{FollowThunks: true, MaxHops: 3})
	if got := b.Follow(loop); got != loop {
		t.Fatalf("Follow(loop) = %#x, want %#x", got, loop)
	}
	if got := b.Follow(chain); got != s.Move {
		t.Fatalf("Follow(chain) = %#x, want %#x", got, s.Move)
	}
	if got := b.Follow(s.ToString); got != s.ToString {
		t.Fatalf("Follow(ToString) = %#x", got)
	}
}

func TestFollowLoggerReused(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	chain := s.Native.Thunk(s.MoveThunk)
	tables := load(t, s)

	base := logflags.BinderLogger()
	created := 0
	logflags.SetLoggerFactory(func(level logrus.Level, fields logflags.Fields, out io.Writer) logflags.Logger {
		created++
		return base
	})
	defer logflags.SetLoggerFactory(nil)

	b := binder.New(tables, binder.Options{FollowThunks: true})
	after := created
	for i := 0; i < 10; i++ {
		if got := b.Follow(chain); got != s.Move {
			t.Fatalf("Follow(chain) = %#x, want %#x", got, s.Move)
		}
	}
	if created != after {
		t.Fatalf("%d loggers created while following thunks", created-after)
	}
}
