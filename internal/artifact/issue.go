package artifact

import (
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

// IssueKind is the taxonomy class of a recorded problem.
type IssueKind string

const (
	KindAccess               IssueKind = "access"
	KindParse                IssueKind = "parse"
	KindSchema               IssueKind = "schema"
	KindComparisonImpossible IssueKind = "comparison_impossible"
	KindSelectivity          IssueKind = "selectivity"
	KindOther                IssueKind = "other"
)

// Issue is a non-fatal problem recorded on the artifact of a table.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
	Value   *string   `json:"value"`
}

// NewIssue classifies err. Parse errors carry the offending raw value.
func NewIssue(err error) Issue {
	is := Issue{Kind: kindOf(err), Message: err.Error()}
	var de *errors.DateParseError
	var ne *errors.NumberParseError
	switch {
	case errors.As(err, &de):
		v := de.Raw
		is.Value = &v
	case errors.As(err, &ne):
		v := ne.Raw
		is.Value = &v
	}
	return is
}

func kindOf(err error) IssueKind {
	switch {
	case errors.Is(err, errors.ErrAccess):
		return KindAccess
	case errors.Is(err, errors.ErrParse):
		return KindParse
	case errors.Is(err, errors.ErrSchema):
		return KindSchema
	case errors.Is(err, errors.ErrComparisonImpossible):
		return KindComparisonImpossible
	case errors.Is(err, errors.ErrSelectivity):
		return KindSelectivity
	}
	return KindOther
}

// Issues converts errs, skipping nils. The result is never nil.
func Issues(errs ...error) []Issue {
	out := make([]Issue, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, NewIssue(err))
		}
	}
	return out
}
