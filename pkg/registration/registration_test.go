package registration_test

import (
	"testing"

	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/pkg/image"
	"github.com/go-delve/aotgraph/internal/fixture"
	"github.com/go-delve/aotgraph/pkg/registration"
	"github.com/go-delve/aotgraph/pkg/revision"
)

func build(t *testing.T, s *fixture.Sample) *image.Image {
	t.Helper()
	b, _ := s.Build()
	img, err := image.New(b, 0)
	if err != nil {
		t.Fatalf("could not parse image: %v", err)
	}
	return img
}

func load(t *testing.T, rev revision.Revision) (*fixture.Sample, *registration.Tables) {
	t.Helper()
	s := fixture.NewSample(rev)
	img := build(t, s)
	tables, err := registration.Load(img, rev, s.Native.CodeAddr, s.Native.MetadataAddr, len(s.Metadata.Types))
	if err != nil {
		t.Fatalf("%v: could not load registration: %+v", rev, err)
	}
	return s, tables
}

func TestLoad(t *testing.T) {
	for _, rev := range []revision.Revision{revision.V24_2, revision.V24_5, revision.V27, revision.V29} {
		s, tables := load(t, rev)
		if len(tables.Modules) != 2 {
			t.Fatalf("%v: %d modules", rev, len(tables.Modules))
		}
		game := tables.ModulesByName["Game.dll"]
		if game == nil {
			t.Fatalf("%v: no Game.dll module", rev)
		}
		if len(game.MethodPointers) != 3 || game.MethodPointers[0] != s.Ctor || game.MethodPointers[1] != s.MoveThunk || game.MethodPointers[2] != 0 {
			t.Fatalf("%v: method pointers %#x", rev, game.MethodPointers)
		}
		if len(game.InvokerIndices) != 3 || game.InvokerIndices[1] != 1 {
			t.Fatalf("%v: invoker indices %v", rev, game.InvokerIndices)
		}
		if len(tables.Types) != fixture.NumRefs {
			t.Fatalf("%v: %d type references", rev, len(tables.Types))
		}
		if k := tables.Types[fixture.RefPlayer].Kind(); k != registration.TypeClass {
			t.Fatalf("%v: player reference is %v", rev, k)
		}
		if i, ok := tables.TypeAt(tables.TypeAddrs[fixture.RefStats]); !ok || i != fixture.RefStats {
			t.Fatalf("%v: TypeAt = %d %v", rev, i, ok)
		}
		if len(tables.TypeSizes) != fixture.NumDefs || tables.TypeSizes[fixture.DefPlayer].InstanceSize != 0x38 {
			t.Fatalf("%v: type sizes %+v", rev, tables.TypeSizes)
		}
		if len(tables.FunctionAddresses) != 2 || tables.FunctionAddresses[0] > tables.FunctionAddresses[1] {
			t.Fatalf("%v: function addresses %#x", rev, tables.FunctionAddresses)
		}
	}
}

func TestArrayType(t *testing.T) {
	_, tables := load(t, revision.V29)
	ref := tables.Types[fixture.RefInt32Matrix]
	if ref.Kind() != registration.TypeArray {
		t.Fatalf("kind %v", ref.Kind())
	}
	at, err := tables.ArrayType(ref.Data)
	if err != nil {
		t.Fatal(err)
	}
	if at.Rank != 2 || at.EType != tables.TypeAddrs[fixture.RefI4] {
		t.Fatalf("array type %+v", at)
	}
	sz := tables.Types[fixture.RefPlayerArray]
	if sz.Kind() != registration.TypeSzArray || sz.Data != tables.TypeAddrs[fixture.RefPlayer] {
		t.Fatalf("single dimension array %v %#x", sz.Kind(), sz.Data)
	}
}

func TestFieldOffset(t *testing.T) {
	_, tables := load(t, revision.V29)
	for _, tc := range []struct {
		typ, slot int
		want      int32
		ok        bool
	}{
		{fixture.DefPlayer, 0, 0x10, true},
		{fixture.DefPlayer, 3, 0x20, true},
		{fixture.DefColor, 0, 0x10, true},
		{fixture.DefStats, 0, 0, false},
		{-1, 0, 0, false},
		{fixture.NumDefs, 0, 0, false},
		{fixture.DefPlayer, -1, 0, false},
	} {
		got, ok := tables.FieldOffset(tc.typ, tc.slot)
		if got != tc.want || ok != tc.ok {
			t.Errorf("FieldOffset(%d, %d) = %#x %v, want %#x %v", tc.typ, tc.slot, got, ok, tc.want, tc.ok)
		}
	}
}

func TestUnmappedMethodPointers(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	s.Native.Modules[0].Unmapped = true
	img := build(t, s)
	tables, err := registration.Load(img, revision.V29, s.Native.CodeAddr, s.Native.MetadataAddr, len(s.Metadata.Types))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	ptrs := tables.ModulesByName["Game.dll"].MethodPointers
	if len(ptrs) != 3 {
		t.Fatalf("%d method pointers", len(ptrs))
	}
	for i, p := range ptrs {
		if p != 0 {
			t.Fatalf("method pointer %d is %#x", i, p)
		}
	}
}

func TestTypeCountMismatch(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	img := build(t, s)
	_, err := registration.Load(img, revision.V29, s.Native.CodeAddr, s.Native.MetadataAddr, len(s.Metadata.Types)+1)
	if fault.Kind(err) != "StructuralIntegrityError" {
		t.Fatalf("expected StructuralIntegrityError, got %v", err)
	}
}

func TestOldRevision(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	img := build(t, s)
	_, err := registration.Load(img, revision.V21, s.Native.CodeAddr, s.Native.MetadataAddr, len(s.Metadata.Types))
	if fault.Kind(err) != "UnsupportedRevisionError" {
		t.Fatalf("expected UnsupportedRevisionError, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cr   registration.CodeRegistration
		ok   bool
	}{
		{"zero", registration.CodeRegistration{}, true},
		{"at bounds", registration.CodeRegistration{
			ReversePInvokeWrappersCount: registration.MaxReversePInvokeWrappers,
			UnresolvedVirtualCallCount:  registration.MaxUnresolvedCalls,
			InteropDataCount:            registration.MaxInteropData,
		}, true},
		{"wrappers", registration.CodeRegistration{ReversePInvokeWrappersCount: registration.MaxReversePInvokeWrappers + 1}, false},
		{"unresolved", registration.CodeRegistration{UnresolvedIndirectCallCount: registration.MaxUnresolvedCalls + 1}, false},
		{"interop", registration.CodeRegistration{InteropDataCount: registration.MaxInteropData + 1}, false},
	} {
		err := tc.cr.Validate()
		if tc.ok != (err == nil) {
			t.Errorf("%s: Validate() = %v", tc.name, err)
		}
		if err != nil && fault.Kind(err) != "StructuralIntegrityError" {
			t.Errorf("%s: wrong kind %v", tc.name, err)
		}
	}
}

func TestDisambiguate(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	s.Native.Rev = revision.V29_1
	img := build(t, s)
	late := s.Native.CodeAddr + 16
	rev, addr, cr, err := registration.Disambiguate(img, revision.V29, late)
	if err != nil {
		t.Fatal(err)
	}
	if rev != revision.V29_1 || addr != s.Native.CodeAddr {
		t.Fatalf("Disambiguate = %v %#x", rev, addr)
	}
	if cr.CodeGenModulesCount != 2 {
		t.Fatalf("%d modules", cr.CodeGenModulesCount)
	}

	// other revisions are left alone
	rev, addr, _, err = registration.Disambiguate(img, revision.V27, late)
	if err != nil || rev != revision.V27 || addr != late {
		t.Fatalf("Disambiguate at 27 = %v %#x %v", rev, addr, err)
	}
}
