//go:build unit

package plan

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	t.Parallel()

	got, err := convert[int](int64(42))
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	ids, err := convert[[]int64]([]any{int64(1), int32(2), nil})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 0}, ids)

	row, err := convert[map[string]any](map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1}, row)

	var nilString *string

	ptr, err := convert[*string](nil)
	require.NoError(t, err)
	assert.Equal(t, nilString, ptr)

	_, err = convert[int]("forty-two")
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = convert[[]string]([]any{"a", 2})
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Contains(t, err.Error(), "element 1")
}

func TestConvertNumericRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		convert func() (any, error)
		want    any
		wantErr bool
	}{
		{"int64 into int8", func() (any, error) { return convert[int8](int64(100)) }, int8(100), false},
		{"int64 overflows int8", func() (any, error) { return convert[int8](int64(300)) }, nil, true},
		{"negative into uint64", func() (any, error) { return convert[uint64](int64(-1)) }, nil, true},
		{"uint64 overflows int64", func() (any, error) { return convert[int64](uint64(math.MaxUint64)) }, nil, true},
		{"whole float into int", func() (any, error) { return convert[int](3.0) }, 3, false},
		{"fractional float into int", func() (any, error) { return convert[int](3.9) }, nil, true},
		{"NaN into int", func() (any, error) { return convert[int](math.NaN()) }, nil, true},
		{"int into float64", func() (any, error) { return convert[float64](int64(7)) }, 7.0, false},
		{"float64 narrows to float32", func() (any, error) { return convert[float32](0.5) }, float32(0.5), false},
		{"float64 overflows float32", func() (any, error) { return convert[float32](1e300) }, nil, true},
		{"overflow inside a slice", func() (any, error) { return convert[[]int8]([]any{int64(1), int64(1000)}) }, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.convert()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrTypeMismatch)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleGetDistinguishesNull(t *testing.T) {
	t.Parallel()

	zero := newHandle[int64]()
	null := newHandle[int64]()
	missingRow := newHandle[map[string]any]()
	overflow := newHandle[int8]()

	result := newResult(uuid.New(), map[uuid.UUID]int{
		zero.id:       0,
		null.id:       1,
		missingRow.id: 2,
		overflow.id:   3,
	}, []StoredResult{
		ScalarResult(int64(0)),
		ScalarResult(nil),
		SingleRowResult(nil),
		ScalarResult(int64(1000)),
	})

	got, ok := zero.Get(result)
	assert.True(t, ok)
	assert.Equal(t, int64(0), got)

	_, ok = null.Get(result)
	assert.False(t, ok)

	_, ok = missingRow.Get(result)
	assert.False(t, ok)

	_, ok = overflow.Get(result)
	assert.False(t, ok)
}

func TestShapeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		shape Shape
		want  string
	}{
		{ShapeAffectedCount, "affected_count"},
		{ShapeScalar, "scalar"},
		{ShapeSingleRow, "single_row"},
		{ShapeRowList, "row_list"},
		{ShapeColumnList, "column_list"},
		{Shape(0), "Shape(0)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.shape.String())
		assert.Equal(t, tt.want != "Shape(0)", tt.shape.IsValid())
	}
}

func TestStoredResultIsolatedFromInput(t *testing.T) {
	t.Parallel()

	row := map[string]any{"id": 1}
	stored := SingleRowResult(row)
	row["id"] = 2

	assert.Equal(t, map[string]any{"id": 1}, stored.Value())

	got := stored.Value().(map[string]any)
	got["id"] = 3

	assert.Equal(t, map[string]any{"id": 1}, stored.Value())
	assert.Nil(t, SingleRowResult(nil).Value())
}
