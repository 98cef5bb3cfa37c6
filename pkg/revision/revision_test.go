package revision

import (
	"testing"

	"github.com/go-delve/aotgraph/pkg/fault"
	"github.com/pkg/errors"
)

func parseRev(t *testing.T, s string) Revision {
	t.Helper()
	r, ok := Parse(s)
	if !ok {
		t.Fatalf("Could not parse revision string <%s>", s)
	}
	return r
}

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out Revision
	}{
		{"29", V29},
		{"29.1", V29_1},
		{"24.5", V24_5},
		{" 27.2 ", V27_2},
		{"v16", V16},
	} {
		if r := parseRev(t, tc.in); r != tc.out {
			t.Fatalf("revision <%s> parsed as %v not %v", tc.in, r, tc.out)
		}
	}
	for _, bad := range []string{"", "x", "24.", "-1", "24.a"} {
		if r, ok := Parse(bad); ok {
			t.Fatalf("revision <%s> should not parse, got %v", bad, r)
		}
	}
}

func TestOrdering(t *testing.T) {
	ordered := []Revision{V16, V22, V24, V24_1, V24_5, V27, V27_1, V29, V29_1}
	for i := range ordered {
		for j := range ordered {
			a, b := ordered[i], ordered[j]
			if got := a.AfterOrEqual(b); got != (i >= j) {
				t.Fatalf("%v.AfterOrEqual(%v) = %v", a, b, got)
			}
			if got := a.Before(b); got != (i < j) {
				t.Fatalf("%v.Before(%v) = %v", a, b, got)
			}
		}
	}
}

func TestString(t *testing.T) {
	if s := V29.String(); s != "29" {
		t.Fatalf("got %q", s)
	}
	if s := V24_5.String(); s != "24.5" {
		t.Fatalf("got %q", s)
	}
}

func TestValue(t *testing.T) {
	var r Revision
	v := Value{&r}
	if err := v.Set("29.1"); err != nil {
		t.Fatal(err)
	}
	if r != V29_1 || v.String() != "29.1" {
		t.Fatalf("got %v", r)
	}
	if err := v.Set("bogus"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCompat(t *testing.T) {
	if err := Loadable(V24_5); err != nil {
		t.Fatal(err)
	}
	var ure *fault.UnsupportedRevisionError
	if err := Loadable(Revision{15, 0}); !errors.As(err, &ure) {
		t.Fatalf("expected UnsupportedRevisionError, got %v", err)
	}
	if err := Locatable(V24_5); !errors.As(err, &ure) {
		t.Fatalf("expected UnsupportedRevisionError, got %v", err)
	}
	if err := Locatable(V29); err != nil {
		t.Fatal(err)
	}
}
