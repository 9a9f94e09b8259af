package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
)

func memStore(t *testing.T) *AFS {
	t.Helper()
	return New("mem://localhost/recond-" + uuid.NewString())
}

func TestPutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memStore(t)

	ok, err := s.Exists(ctx, "run-1/stage1_meta.json")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "run-1/stage1_meta.json")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Put(ctx, "run-1/stage1_meta.json", []byte(`{"a":1}`)))
	require.NoError(t, s.Put(ctx, "run-1/stage1_meta.json", []byte(`{"a":2}`)))
	data, err := s.Get(ctx, "run-1/stage1_meta.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	ok, err = s.Exists(ctx, "run-1/stage1_meta.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()

	type doc struct {
		Count *int64  `json:"count"`
		Name  string  `json:"name"`
		Avg   float64 `json:"avg"`
	}
	ctx := context.Background()
	s := memStore(t)
	n := int64(42)
	require.NoError(t, SaveJSON(ctx, s, Key("r", "x.json"), doc{Count: &n, Name: "a", Avg: 1.5}))

	var got doc
	require.NoError(t, LoadJSON(ctx, s, "r/x.json", &got))
	assert.Equal(t, int64(42), *got.Count)
	assert.Equal(t, 1.5, got.Avg)

	require.NoError(t, SaveJSON(ctx, s, "r/null.json", doc{}))
	got = doc{Count: &n}
	require.NoError(t, LoadJSON(ctx, s, "r/null.json", &got))
	assert.Nil(t, got.Count)
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "run/stage2_column.json", Key("/run/", "", "stage2_column.json"))
}
