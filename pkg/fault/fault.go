// Package fault defines the error kinds that abort a recovery run.
//
// Every kind is fatal: a run that hits one returns it, wrapped with
// context, and builds no graph. Absent values (an unresolved type
// reference, a method without native code) are never errors and are
// reported with a boolean instead.
package fault

import (
	"fmt"

	"github.com/pkg/errors"
)

// FormatError is returned when an input does not have the expected shape:
// bad signatures, unsupported header widths, malformed encodings.
type FormatError struct {
	Input string // "image" or "metadata"
	Msg   string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s format error: %s", e.Input, e.Msg)
}

// Formatf returns a *FormatError for the named input.
func Formatf(input, format string, args ...interface{}) error {
	return errors.WithStack(&FormatError{Input: input, Msg: fmt.Sprintf(format, args...)})
}

// StructuralIntegrityError is returned when decoded structures contradict
// each other: index and count mismatches, implausible counts, addresses that
// should map but do not.
type StructuralIntegrityError struct {
	Msg string
}

func (e *StructuralIntegrityError) Error() string {
	return "structural integrity error: " + e.Msg
}

// Integrityf returns a *StructuralIntegrityError.
func Integrityf(format string, args ...interface{}) error {
	return errors.WithStack(&StructuralIntegrityError{Msg: fmt.Sprintf(format, args...)})
}

// LocatorFailure is returned when scanning finds zero or several validated
// candidates for a registration root.
type LocatorFailure struct {
	Root       string
	Candidates []uint64
}

func (e *LocatorFailure) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("could not locate %s: no validated candidate", e.Root)
	}
	return fmt.Sprintf("could not locate %s: %d ambiguous candidates %#x", e.Root, len(e.Candidates), e.Candidates)
}

// UnsupportedRevisionError is returned when a component is asked to handle
// a layout revision it does not model.
type UnsupportedRevisionError struct {
	Revision  string
	Component string
	Supported string
}

func (e *UnsupportedRevisionError) Error() string {
	return fmt.Sprintf("%s does not support revision %s (supported: %s)", e.Component, e.Revision, e.Supported)
}

// IsFatal reports whether err contains one of the fatal kinds.
func IsFatal(err error) bool {
	var (
		fe  *FormatError
		se  *StructuralIntegrityError
		lf  *LocatorFailure
		ure *UnsupportedRevisionError
	)
	return errors.As(err, &fe) || errors.As(err, &se) || errors.As(err, &lf) || errors.As(err, &ure)
}

// Kind returns a short name for the fatal kind contained in err, or "" if
// there is none.
func Kind(err error) string {
	var (
		fe  *FormatError
		se  *StructuralIntegrityError
		lf  *LocatorFailure
		ure *UnsupportedRevisionError
	)
	switch {
	case errors.As(err, &fe):
		return "FormatError"
	case errors.As(err, &se):
		return "StructuralIntegrityError"
	case errors.As(err, &lf):
		return "LocatorFailure"
	case errors.As(err, &ure):
		return "UnsupportedRevisionError"
	}
	return ""
}
