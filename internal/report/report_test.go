package report

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/artifact"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/hashcompare"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/quality"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/store"
)

func TestStageRows(t *testing.T) {
	t.Parallel()

	s2 := artifact.Stage2Artifact{
		Tables: []artifact.Stage2Table{{
			Name:          "account",
			ColumnMapping: make([]artifact.ColumnPair, 5),
			Quality: quality.TableQuality{
				CleanColumns:      []string{"A", "B", "C", "D"},
				MismatchedColumns: []string{"E"},
				KeyColumns:        []string{"A", "B", "C"},
			},
		}},
		Excluded: []artifact.Exclusion{{Table: "ledger", Reason: "no clean columns"}},
	}
	rows := Stage2Rows(s2)
	require.Len(t, rows, 2)
	assert.Equal(t, "A, B, C", rows[0].KeyColumns)
	assert.Equal(t, 4, rows[0].CleanColumns)
	assert.Equal(t, statusExcluded, rows[1].Status)

	s3 := artifact.Stage3Artifact{Tables: []artifact.Stage3Table{{
		Name:     "account",
		Vintages: []hashcompare.Result{{Vintage: "M202301", LeftRows: 3, MatchedRows: 1, MismatchedCount: 1, LeftOnlyCount: 1}},
		Skipped:  []artifact.SkippedVintage{{Vintage: "M202302", Reason: "right: timeout"}},
	}}}
	r3 := Stage3Rows(s3)
	require.Len(t, r3, 2)
	assert.False(t, r3[0].Clean)
	assert.Equal(t, "skipped", r3[1].Status)
	assert.NotNil(t, Stage3Rows(artifact.Stage3Artifact{}))
}

func TestWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blob := store.New("mem://localhost/report-" + uuid.NewString())
	s1 := &artifact.Stage1Artifact{Tables: []artifact.Stage1Table{{Name: "account", TotalDays: 3, MatchedDays: 3, RowMatchAll: true}}}
	key, err := Write(ctx, blob, "run-1", artifact.Stage1, s1)
	require.NoError(t, err)
	assert.Equal(t, "run-1/stage1.xlsx", key)

	data, err := blob.Get(ctx, key)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, "PK", string(data[:2]))

	_, err = Write(ctx, blob, "run-1", "stage9", "nope")
	assert.Error(t, err)
}
