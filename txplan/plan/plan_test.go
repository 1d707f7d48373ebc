//go:build unit

package plan

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAssignsDenseIndices(t *testing.T) {
	t.Parallel()

	p := New()

	first := Add[int64](p, returning(nil, ScalarResult(int64(1))), nil)
	second := p.AddStep(returning(nil, AffectedCount(1)), Params{"id": first.Field()})
	third := Add[[]map[string]any](p, returning(nil, RowListResult(nil)), nil)

	for want, ref := range []Ref{first, second, third} {
		idx, ok := p.IndexOf(ref)
		require.True(t, ok)
		assert.Equal(t, want, idx)
	}

	assert.Equal(t, 3, p.Len())
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, ShapeAffectedCount, p.Steps()[1].Shape())
}

func TestAddCopiesParams(t *testing.T) {
	t.Parallel()

	p := New()
	params := Params{"name": "alice"}

	p.AddStep(returning(nil, AffectedCount(1)), params)
	params["name"] = "bob"

	assert.Equal(t, "alice", p.Steps()[0].Params()["name"])
}

func TestZeroPlanIsUsable(t *testing.T) {
	t.Parallel()

	var p Plan

	first := Add[int64](&p, returning(nil, ScalarResult(int64(1))), nil)
	p.AddStep(returning(nil, AffectedCount(1)), Params{"id": first.Field()})

	assert.NotEqual(t, uuid.Nil, p.ID())
	assert.Equal(t, 2, p.Len())
	require.NoError(t, p.Validate())

	var merged Plan

	require.NoError(t, merged.AddPlan(&p))

	idx, ok := merged.IndexOf(first)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestAddPlanRebindsHandles(t *testing.T) {
	t.Parallel()

	parent := New()
	parent.AddStep(returning(nil, AffectedCount(1)), nil)
	parent.AddStep(returning(nil, AffectedCount(1)), nil)

	sub := New()
	subFirst := Add[int64](sub, returning(nil, ScalarResult(int64(7))), nil)
	subSecond := sub.AddStep(returning(nil, AffectedCount(1)), Params{"id": subFirst.Field()})

	require.NoError(t, parent.AddPlan(sub))
	assert.Equal(t, 4, parent.Len())

	idx, ok := parent.IndexOf(subFirst)
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	idx, ok = parent.IndexOf(subSecond)
	require.True(t, ok)
	assert.Equal(t, 3, idx)

	require.NoError(t, parent.Validate())
}

func TestAddPlanRejectsInvalidMerges(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(returning(nil, AffectedCount(1)), nil)

	assert.ErrorIs(t, p.AddPlan(nil), ErrNilPlan)
	assert.ErrorIs(t, p.AddPlan(p), ErrSelfMerge)

	var missing *Plan
	assert.ErrorIs(t, missing.AddPlan(p), ErrNilPlan)

	sub := New()
	sub.AddStep(returning(nil, AffectedCount(1)), nil)

	require.NoError(t, p.AddPlan(sub))
	assert.ErrorIs(t, p.AddPlan(sub), ErrHandleAlreadyBound)
	assert.Equal(t, 2, p.Len())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	other := New()
	foreign := other.AddStep(returning(nil, ScalarResult(1)), nil)

	tests := []struct {
		name      string
		build     func() *Plan
		wantIndex int
		wantErr   error
	}{
		{
			name: "valid chain",
			build: func() *Plan {
				p := New()
				h := p.AddStep(returning(nil, ScalarResult(1)), nil)
				p.AddStep(returning(nil, AffectedCount(1)), Params{"id": h.Field()})

				return p
			},
		},
		{
			name: "self reference",
			build: func() *Plan {
				p := New()
				h := newHandle[any]()
				p.handles[h.id] = 0
				p.steps = append(p.steps, Step{op: returning(nil, AffectedCount(1)), shape: ShapeAffectedCount, params: Params{"x": h.Field()}})

				return p
			},
			wantIndex: 0,
			wantErr:   ErrDependencyOnFutureStep,
		},
		{
			name: "handle from another plan inside a transform",
			build: func() *Plan {
				p := New()
				p.AddStep(returning(nil, AffectedCount(1)), nil)
				p.AddStep(returning(nil, AffectedCount(1)), Params{
					"x": Transform(foreign.Field(), func(v any) (any, error) { return v, nil }),
				})

				return p
			},
			wantIndex: 1,
			wantErr:   ErrUnknownStepHandle,
		},
		{
			name: "nil operation",
			build: func() *Plan {
				p := New()
				p.AddStep(returning(nil, AffectedCount(1)), nil)
				p.AddStep(nil, nil)

				return p
			},
			wantIndex: 1,
			wantErr:   ErrNilOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.build().Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.wantIndex, stepErr.StepIndex)
		})
	}
}
