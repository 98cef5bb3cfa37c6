package program_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/go-delve/aotgraph/internal/fixture"
	"github.com/go-delve/aotgraph/pkg/metadata"
	"github.com/go-delve/aotgraph/pkg/program"
	"github.com/go-delve/aotgraph/pkg/revision"
)

func TestLoad(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	img, meta := s.Build()
	p, err := program.Load(img, meta, program.Options{})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !p.Located || p.Revision != revision.V29 {
		t.Fatalf("located %v, revision %v", p.Located, p.Revision)
	}
	if p.Tables.CodeAddr != s.Native.CodeAddr || p.Tables.MetadataAddr != s.Native.MetadataAddr {
		t.Fatalf("roots %#x %#x", p.Tables.CodeAddr, p.Tables.MetadataAddr)
	}
	player, ok := p.Graph.Find("Game.Player")
	if !ok {
		t.Fatal("no Game.Player")
	}
	ctor, _ := player.Method(".ctor")
	if !ctor.HasAddress || ctor.Address != s.Ctor {
		t.Fatalf(".ctor at %#x", ctor.Address)
	}
}

func TestLoad29_1(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	s.Native.Rev = revision.V29_1
	img, meta := s.Build()
	p, err := program.Load(img, meta, program.Options{FollowThunks: true})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if p.Revision != revision.V29_1 {
		t.Fatalf("revision %v", p.Revision)
	}
	move, _ := p.Graph.Types[fixture.DefPlayer].Method("Move")
	if move.Address != s.Move {
		t.Fatalf("Move at %#x, want %#x", move.Address, s.Move)
	}
}

func TestExplicitRoots(t *testing.T) {
	s := fixture.NewSample(revision.V24_5)
	img, meta := s.Build()
	opts := program.Options{
		Revision:             revision.V24_5,
		CodeRegistration:     s.Native.CodeAddr,
		MetadataRegistration: s.Native.MetadataAddr,
	}
	p, err := program.Load(img, meta, opts)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if p.Located || p.Revision != revision.V24_5 {
		t.Fatalf("located %v, revision %v", p.Located, p.Revision)
	}
	if len(p.Graph.Assemblies) != 2 {
		t.Fatalf("%d assemblies", len(p.Graph.Assemblies))
	}

	// without roots the old revision cannot be scanned
	opts.CodeRegistration, opts.MetadataRegistration = 0, 0
	if _, err := program.Load(img, meta, opts); fault.Kind(err) != "UnsupportedRevisionError" {
		t.Fatalf("expected UnsupportedRevisionError, got %v", err)
	}
}

func TestSizeMismatch(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	img, _ := s.Build()
	m := s.Metadata
	m.AddType(metadata.TypeDefinition{NameIndex: m.Str("Extra"), NamespaceIndex: m.Str("Game"), DeclaringTypeIndex: -1, ParentIndex: -1, ElementTypeIndex: -1, GenericContainerIndex: -1})
	p, err := program.Load(img, m.Bytes(), program.Options{
		CodeRegistration:     s.Native.CodeAddr,
		MetadataRegistration: s.Native.MetadataAddr,
	})
	if p != nil {
		t.Fatal("a program was returned")
	}
	if fault.Kind(err) != "StructuralIntegrityError" {
		t.Fatalf("expected StructuralIntegrityError, got %v", err)
	}
}

func TestFatalKinds(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	img, meta := s.Build()
	for _, tc := range []struct {
		name      string
		img, meta []byte
		opts      program.Options
		kind      string
	}{
		{"image signature", []byte("not an image at all, not even close to one"), meta, program.Options{}, "FormatError"},
		{"metadata magic", img, make([]byte, 16), program.Options{}, "FormatError"},
		{"literal", img, meta, program.Options{Literal: "System.dll"}, "LocatorFailure"},
	} {
		p, err := program.Load(tc.img, tc.meta, tc.opts)
		if p != nil || fault.Kind(err) != tc.kind || !fault.IsFatal(err) {
			t.Errorf("%s: got %v, want %s", tc.name, err, tc.kind)
		}
	}
}

func TestOpen(t *testing.T) {
	s := fixture.NewSample(revision.V29)
	img, meta := s.Build()
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "GameAssembly.dll")
	metaPath := filepath.Join(dir, "global-metadata.dat")
	if err := os.WriteFile(imgPath, img, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(metaPath, meta, 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := program.Open(imgPath, metaPath, program.Options{Workers: 2})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(p.Graph.Symbols()) != 3 {
		t.Fatalf("symbols %v", p.Graph.Symbols())
	}
	if _, err := program.Open(filepath.Join(dir, "missing.dll"), metaPath, program.Options{}); err == nil {
		t.Fatal("opened a missing file")
	}
}
