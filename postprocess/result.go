// Package postprocess - Decoding and suppression of raw detection tensors.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-detect/images"
)

// BoundingBox is a single decoded detection. It is immutable once
// constructed: the decoder only emits boxes that passed the confidence
// threshold and the normalized-range check, so a BoundingBox is always
// fully valid.
//
// Corner and center/extent forms are both retained. Suppression works on
// corners while downstream consumers (rendering, tracking) typically want
// width and height without recomputing them.
type BoundingBox struct {
	// Box holds the normalized corner coordinates, X1 <= X2, Y1 <= Y2.
	Box images.Rect
	// CX, CY, W, H are the normalized center and extent.
	CX, CY, W, H float32
	// Confidence is the model's score for the predicted class, > 0.
	Confidence float32
	// Class is the index into the label table, >= 0.
	Class int
	// Label is the class name resolved at decode time, so the box stays
	// self-describing past the label table's lifetime.
	Label string
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%f, %f), (%f, %f)",
		b.Label, b.Confidence, b.Box.X1, b.Box.Y1, b.Box.X2, b.Box.Y2)
}
