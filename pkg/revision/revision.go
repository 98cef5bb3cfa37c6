package revision

import (
	"strconv"
	"strings"
)

// Revision represents the layout revision of the metadata blob and of the
// registration structures embedded in the native image.
// The blob header only stores Major; Minor is either forced by the user or
// detected while validating the registration roots.
type Revision struct {
	Major int
	Minor int
}

var (
	V16   = Revision{16, 0}
	V19   = Revision{19, 0}
	V20   = Revision{20, 0}
	V21   = Revision{21, 0}
	V22   = Revision{22, 0}
	V23   = Revision{23, 0}
	V24   = Revision{24, 0}
	V24_1 = Revision{24, 1}
	V24_2 = Revision{24, 2}
	V24_3 = Revision{24, 3}
	V24_4 = Revision{24, 4}
	V24_5 = Revision{24, 5}
	V27   = Revision{27, 0}
	V27_1 = Revision{27, 1}
	V27_2 = Revision{27, 2}
	V29   = Revision{29, 0}
	V29_1 = Revision{29, 1}
)

// FromHeader returns the revision stored in a metadata header.
func FromHeader(v int32) Revision {
	return Revision{Major: int(v)}
}

// Parse parses a revision string of the form "29" or "24.5".
func Parse(s string) (Revision, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return Revision{}, false
	}
	var r Revision
	var err error
	major, minor, hasMinor := strings.Cut(s, ".")
	r.Major, err = strconv.Atoi(major)
	if err != nil || r.Major < 0 {
		return Revision{}, false
	}
	if hasMinor {
		r.Minor, err = strconv.Atoi(minor)
		if err != nil || r.Minor < 0 {
			return Revision{}, false
		}
	}
	return r, true
}

// Compare returns -1, 0 or +1 depending on whether v is before, equal to or
// after b.
func (v Revision) Compare(b Revision) int {
	switch {
	case v.Major < b.Major:
		return -1
	case v.Major > b.Major:
		return 1
	case v.Minor < b.Minor:
		return -1
	case v.Minor > b.Minor:
		return 1
	}
	return 0
}

// AfterOrEqual returns whether v is after or equal to b.
func (v Revision) AfterOrEqual(b Revision) bool {
	return v.Compare(b) >= 0
}

// Before returns whether v is strictly before b.
func (v Revision) Before(b Revision) bool {
	return v.Compare(b) < 0
}

// IsZero reports whether v is the zero revision, used as "not set".
func (v Revision) IsZero() bool {
	return v == Revision{}
}

func (v Revision) String() string {
	if v.Minor == 0 {
		return strconv.Itoa(v.Major)
	}
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// Value adapts a Revision to the flag.Value and pflag.Value interfaces.
type Value struct {
	Rev *Revision
}

func (f Value) String() string {
	if f.Rev == nil || f.Rev.IsZero() {
		return ""
	}
	return f.Rev.String()
}

func (f Value) Set(s string) error {
	r, ok := Parse(s)
	if !ok {
		return &ParseError{Input: s}
	}
	*f.Rev = r
	return nil
}

func (f Value) Type() string { return "revision" }

// ParseError is returned by Value.Set for malformed input.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return "malformed revision " + strconv.Quote(e.Input)
}
