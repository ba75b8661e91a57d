package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordID_Deterministic(t *testing.T) {
	testCases := []struct {
		name  string
		book  string
		index int
	}{
		{name: "first chunk", book: "ALS0537-030775M", index: 0},
		{name: "later chunk", book: "ALS0537-030775M", index: 17},
		{name: "other book", book: "granny-square", index: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			first := RecordID(tc.book, tc.index)
			second := RecordID(tc.book, tc.index)
			assert.Equal(t, first, second)
			assert.Len(t, first, 16+1+len(fmt.Sprint(tc.index)))
			assert.Equal(t, fmt.Sprintf("-%d", tc.index), first[16:])
		})
	}
}

func TestRecordID_Uniqueness(t *testing.T) {
	assert.NotEqual(t, RecordID("a", 0), RecordID("a", 1))
	assert.NotEqual(t, RecordID("a", 0), RecordID("b", 0))
	// sha256("abc") starts with ba7816bf8f01cfea
	assert.Equal(t, "ba7816bf8f01cfea-2", RecordID("abc", 2))
}

func TestErrors_Is(t *testing.T) {
	pe := &ProviderError{Provider: "vertex", Op: "predict", Err: errors.New("quota")}
	wrapped := fmt.Errorf("embed batch: %w", pe)
	assert.ErrorIs(t, wrapped, ErrProvider)
	assert.Contains(t, wrapped.Error(), "quota")

	de := &DimensionError{What: "image embedding", Got: 3, Want: 1024}
	assert.ErrorIs(t, fmt.Errorf("combine: %w", de), ErrDimensionMismatch)

	se := &StageError{Stage: "load", Artifact: "embeddings-x.jsonl", Err: de}
	assert.ErrorIs(t, se, ErrDimensionMismatch)
	assert.Contains(t, se.Error(), "embeddings-x.jsonl")
}
