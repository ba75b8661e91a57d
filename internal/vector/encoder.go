package vector

import (
	"errors"

	"github.com/timmy/stitchrag/internal/domain"
)

// ErrNoInput is returned when both halves of a combined vector are absent.
var ErrNoInput = errors.New("vector: text and image embeddings both absent")

// Encoder concatenates a text embedding and an image embedding into one
// fixed-width vector, text first.
type Encoder struct {
	textDim  int
	imageDim int
}

// NewEncoder creates an encoder for the given half widths.
func NewEncoder(textDim, imageDim int) *Encoder {
	return &Encoder{textDim: textDim, imageDim: imageDim}
}

// Width returns textDim + imageDim.
func (e *Encoder) Width() int {
	return e.textDim + e.imageDim
}

// TextDim returns the width of the text half.
func (e *Encoder) TextDim() int { return e.textDim }

// ImageDim returns the width of the image half.
func (e *Encoder) ImageDim() int { return e.imageDim }

// Combine returns text ++ image. A nil half is absent and zero-filled.
func (e *Encoder) Combine(text, image domain.Vector) (domain.Vector, error) {
	if text == nil && image == nil {
		return nil, ErrNoInput
	}
	if text != nil && len(text) != e.textDim {
		return nil, &domain.DimensionError{What: "text embedding", Got: len(text), Want: e.textDim}
	}
	if image != nil && len(image) != e.imageDim {
		return nil, &domain.DimensionError{What: "image embedding", Got: len(image), Want: e.imageDim}
	}

	out := make(domain.Vector, e.Width())
	copy(out, text)
	copy(out[e.textDim:], image)
	return out, nil
}

// Split returns the text and image halves of a combined vector. The halves
// share memory with v.
func (e *Encoder) Split(v domain.Vector) (text, image domain.Vector, err error) {
	if len(v) != e.Width() {
		return nil, nil, &domain.DimensionError{What: "combined vector", Got: len(v), Want: e.Width()}
	}
	return v[:e.textDim:e.textDim], v[e.textDim:], nil
}
