package errors

import (
	"strings"
	"testing"
)

func TestTaxonomyMarkers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		marker error
	}{
		{name: "access", err: Access(New("dial tcp: refused"), "table %s", "t1"), marker: ErrAccess},
		{name: "schema", err: Schema("column %s missing on right", "ID"), marker: ErrSchema},
		{name: "comparison", err: ComparisonImpossible("no stats for %s", "ID"), marker: ErrComparisonImpossible},
		{name: "selectivity", err: Selectivity("%d duplicate keys", 3), marker: ErrSelectivity},
		{name: "date parse", err: &DateParseError{Column: "D", Raw: "x"}, marker: ErrParse},
		{name: "number parse", err: &NumberParseError{Field: "avg", Raw: "x"}, marker: ErrParse},
		{name: "fatal", err: Fatal("r1", "stage2", New("store down")), marker: ErrFatal},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if !Is(tc.err, tc.marker) {
				t.Fatalf("%v should match %v", tc.err, tc.marker)
			}
		})
	}
}

func TestFatalErrorNamesRunAndStage(t *testing.T) {
	t.Parallel()

	err := Fatal("run-42", "stage3", New("bucket unreachable"))
	msg := err.Error()
	for _, want := range []string{"run-42", "stage3", "bucket unreachable"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q should contain %q", msg, want)
		}
	}
	var fe *FatalError
	if !As(err, &fe) || fe.Stage != "stage3" {
		t.Fatalf("unexpected fatal error: %#v", fe)
	}
	if Fatal("r", "s", nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
}
