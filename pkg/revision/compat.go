package revision

import (
	"github.com/go-delve/aotgraph/pkg/fault"
)

var (
	// MinLoadable and MaxLoadable bound the metadata revisions whose tables
	// can be decoded.
	MinLoadable = V16
	MaxLoadable = V29_1

	// MinLocatable is the oldest revision whose registration roots can be
	// found by scanning. Older toolchains register the literal module first
	// and keep method pointers in a single global array.
	MinLocatable = V27
)

// Loadable checks that the metadata tables of revision v can be decoded.
func Loadable(v Revision) error {
	if v.Before(MinLoadable) || MaxLoadable.Before(v) {
		return &fault.UnsupportedRevisionError{
			Revision:  v.String(),
			Component: "metadata loader",
			Supported: MinLoadable.String() + " to " + MaxLoadable.String(),
		}
	}
	return nil
}

// Locatable checks that the registration roots of revision v can be found
// without symbols.
func Locatable(v Revision) error {
	if v.Before(MinLocatable) {
		return &fault.UnsupportedRevisionError{
			Revision:  v.String(),
			Component: "root locator",
			Supported: MinLocatable.String() + " or later",
		}
	}
	return nil
}
