package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/stitchrag/internal/domain"
)

func TestCombine(t *testing.T) {
	enc := NewEncoder(2, 3)
	require.Equal(t, 5, enc.Width())

	tests := []struct {
		name  string
		text  domain.Vector
		image domain.Vector
		want  domain.Vector
	}{
		{"both halves", domain.Vector{1, 2}, domain.Vector{3, 4, 5}, domain.Vector{1, 2, 3, 4, 5}},
		{"text only", domain.Vector{1, 2}, nil, domain.Vector{1, 2, 0, 0, 0}},
		{"image only", nil, domain.Vector{3, 4, 5}, domain.Vector{0, 0, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := enc.Combine(tt.text, tt.image)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, enc.Width())
		})
	}
}

func TestCombine_Errors(t *testing.T) {
	enc := NewEncoder(2, 3)

	_, err := enc.Combine(nil, nil)
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = enc.Combine(domain.Vector{1}, nil)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = enc.Combine(domain.Vector{1, 2}, domain.Vector{1, 2})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestCombine_DoesNotAliasInputs(t *testing.T) {
	enc := NewEncoder(1, 1)
	text := domain.Vector{1}
	got, err := enc.Combine(text, domain.Vector{2})
	require.NoError(t, err)
	got[0] = 9
	assert.Equal(t, float32(1), text[0])
}

func TestSplit(t *testing.T) {
	enc := NewEncoder(2, 1)
	text, image, err := enc.Split(domain.Vector{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, domain.Vector{1, 2}, text)
	assert.Equal(t, domain.Vector{3}, image)

	_, _, err = enc.Split(domain.Vector{1, 2})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}
