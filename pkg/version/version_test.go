package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	v := Version{Major: "1", Minor: "2", Patch: "3", Metadata: "rc1", Build: "abc"}
	if got, want := v.String(), "Version: 1.2.3-rc1\nBuild: abc"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildInfo(t *testing.T) {
	if !strings.HasPrefix(BuildInfo(), "go") {
		t.Fatalf("build info %q", BuildInfo())
	}
}
