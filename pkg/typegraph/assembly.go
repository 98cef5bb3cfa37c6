package typegraph

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-delve/aotgraph/pkg/metadata"
	"github.com/go-delve/aotgraph/pkg/registration"
)

// Assembly is one image of the metadata blob together with the code
// generation module holding its compiled methods.
type Assembly struct {
	Index      int
	ImageName  string
	Name       string
	Culture    string
	Version    string
	Definition *metadata.AssemblyDefinition
	// Module is nil when the image has no code generation module.
	Module     *registration.Module

	// Types lists the definitions of the image in index order, without the
	// <Module> pseudo type.
	Types []*TypeDef

	publicKeyToken [8]byte
}

// PublicKeyToken returns the token in hex, or "null".
func (a *Assembly) PublicKeyToken() string {
	if a.publicKeyToken == [8]byte{} {
		return "null"
	}
	return hex.EncodeToString(a.publicKeyToken[:])
}

// FullName returns the display name of the assembly:
//
//	Name, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null
func (a *Assembly) FullName() string {
	return fmt.Sprintf("%s, Version=%s, Culture=%s, PublicKeyToken=%s", a.Name, a.Version, a.Culture, a.PublicKeyToken())
}

func (a *Assembly) String() string { return a.Name }

func newAssembly(md *metadata.Metadata, index int) *Assembly {
	img := &md.Images[index]
	def := &md.Assemblies[img.AssemblyIndex]
	name := &def.Name
	a := &Assembly{
		Index:          index,
		ImageName:      md.String(img.NameIndex),
		Name:           sanitize(md.String(name.NameIndex), isAssemblyNameRune),
		Culture:        md.String(name.CultureIndex),
		Version:        fmt.Sprintf("%d.%d.%d.%d", name.Major, name.Minor, name.Build, name.Revision),
		Definition:     def,
		publicKeyToken: name.PublicKeyToken,
	}
	if a.Culture == "" {
		a.Culture = "neutral"
	}
	return a
}

func isAssemblyNameRune(r rune) bool {
	return isAlnum(r) || strings.ContainsRune("_-.()", r)
}

func isNamespaceRune(r rune) bool {
	return isAlnum(r) || strings.ContainsRune("_-.<>{}", r)
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

// sanitize drops the runes of s that keep does not accept.
func sanitize(s string, keep func(rune) bool) string {
	return strings.Map(func(r rune) rune {
		if keep(r) {
			return r
		}
		return -1
	}, s)
}
