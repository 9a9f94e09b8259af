package artifact

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/quality"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/stats"
)

func TestNewIssue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		kind IssueKind
		raw  string
	}{
		{errors.Access(errors.New("denied"), "probe %s", "t"), KindAccess, ""},
		{&errors.DateParseError{Column: "dt", Raw: "2023-13-45"}, KindParse, "2023-13-45"},
		{errors.Wrap(&errors.NumberParseError{Field: "col_avg", Raw: "abc"}, "stats"), KindParse, "abc"},
		{errors.Schema("missing"), KindSchema, ""},
		{errors.ComparisonImpossible("no stats"), KindComparisonImpossible, ""},
		{errors.Selectivity("dups"), KindSelectivity, ""},
		{errors.New("other"), KindOther, ""},
	}
	for _, tc := range cases {
		is := NewIssue(tc.err)
		if is.Kind != tc.kind {
			t.Fatalf("NewIssue(%v).Kind = %s, want %s", tc.err, is.Kind, tc.kind)
		}
		if tc.raw == "" {
			assert.Nil(t, is.Value)
		} else {
			require.NotNil(t, is.Value)
			assert.Equal(t, tc.raw, *is.Value)
		}
	}
	assert.Len(t, Issues(nil, errors.New("x")), 1)
	assert.NotNil(t, Issues())
}

func TestStage2RoundTrip(t *testing.T) {
	t.Parallel()

	n := int64(1500)
	avg := 150.25
	in := Stage2Artifact{
		Header: NewHeader(config.Run{ID: "r1", Name: "recon"}, Stage2, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
		Tables: []Stage2Table{{
			Name: "account",
			Stats: []ColumnVintage{{
				Column:  "BALANCE",
				Vintage: "2023-01",
				Left:    &stats.ColumnStats{Column: "BALANCE", Category: stats.Continuous, Count: &n, Avg: &avg},
				Right:   nil,
			}},
			Cardinality: map[string]quality.Cardinality{"BALANCE": {Left: &n}},
		}},
		Excluded: []Exclusion{},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	s := string(data)
	assert.True(t, strings.Contains(s, `"count":1500`), s)
	assert.True(t, strings.Contains(s, `"avg":150.25`), s)
	assert.True(t, strings.Contains(s, `"right":null`), s)
	assert.True(t, strings.Contains(s, `"run_id":"r1"`), s)

	var out Stage2Artifact
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
