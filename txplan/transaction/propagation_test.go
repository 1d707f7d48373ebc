//go:build unit

package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePropagation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Propagation
		wantErr bool
	}{
		{input: "required", want: Required},
		{input: "", want: Required},
		{input: "REQUIRES_NEW", want: RequiresNew},
		{input: " requires-new ", want: RequiresNew},
		{input: "Nested", want: Nested},
		{input: "mandatory", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParsePropagation(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPropagation)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPropagationString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "REQUIRED", Required.String())
	assert.Equal(t, "REQUIRES_NEW", RequiresNew.String())
	assert.Equal(t, "NESTED", Nested.String())
	assert.Equal(t, "Propagation(7)", Propagation(7).String())
	assert.False(t, Propagation(-1).IsValid())
}

func TestScopeStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", StateNone.String())
	assert.Equal(t, "savepoint-scoped", StateSavepointScoped.String())
	assert.Equal(t, "unknown", ScopeState(42).String())
}
