// Package errors re-exports github.com/cockroachdb/errors and defines the
// reconciliation error taxonomy.
//
// Non-fatal problems (access, parse, schema, comparison-impossible,
// selectivity) are recorded on the artifact of the table they belong to.
// Only FatalError is allowed to stop a run.
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	GetAllHints  = crdb.GetAllHints
	Mark         = crdb.Mark
	Is           = crdb.Is
	IsAny        = crdb.IsAny
	As           = crdb.As
	Unwrap       = crdb.Unwrap
	UnwrapAll    = crdb.UnwrapAll
)

// Taxonomy markers. Use Is to classify an error.
var (
	ErrAccess               = New("access error")
	ErrParse                = New("parse error")
	ErrSchema               = New("schema error")
	ErrComparisonImpossible = New("comparison impossible")
	ErrSelectivity          = New("selectivity warning")
	ErrFatal                = New("fatal error")
)

// Access marks err as an access error.
func Access(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, format, args...), ErrAccess)
}

// Schema returns a schema error.
func Schema(format string, args ...any) error {
	return Mark(Newf(format, args...), ErrSchema)
}

// ComparisonImpossible returns a comparison-impossible error.
func ComparisonImpossible(format string, args ...any) error {
	return Mark(Newf(format, args...), ErrComparisonImpossible)
}

// Selectivity returns a selectivity warning.
func Selectivity(format string, args ...any) error {
	return Mark(Newf(format, args...), ErrSelectivity)
}

// DateParseError records a date value that no known layout could parse.
type DateParseError struct {
	Column string
	Raw    string
}

func (e *DateParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("cannot parse date %q", e.Raw)
	}
	return fmt.Sprintf("cannot parse date %q in column %s", e.Raw, e.Column)
}

func (e *DateParseError) Is(target error) bool { return target == ErrParse }

// NumberParseError records a statistic that could not be read as a number.
type NumberParseError struct {
	Field string
	Raw   string
}

func (e *NumberParseError) Error() string {
	return fmt.Sprintf("cannot parse %s value %q as a number", e.Field, e.Raw)
}

func (e *NumberParseError) Is(target error) bool { return target == ErrParse }

// FatalError stops a run. It always names the run and the stage.
type FatalError struct {
	RunID string
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("run %s stage %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func (e *FatalError) Is(target error) bool { return target == ErrFatal }

// Fatal wraps err as a FatalError. A nil err stays nil.
func Fatal(runID, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{RunID: runID, Stage: stage, Err: err}
}
