package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/labels"
)

// DefaultConfidenceThreshold is applied when a decoder is built with a
// non-positive threshold.
const DefaultConfidenceThreshold float32 = 0.3

// Decoder converts a flat channel-major output tensor into candidate
// bounding boxes. Its configuration (label table, tensor dimensions,
// confidence threshold) is fixed at construction and safe for concurrent
// readers; each Decode call is otherwise independent.
//
// The expected tensor layout is [numChannel][numElements]: channels 0-3
// carry cx, cy, w, h for every anchor, channels 4..numChannel-1 carry
// per-class confidence scores. Element e of channel c sits at flat offset
// c*numElements + e.
type Decoder struct {
	table               *labels.Table
	numChannel          int
	numElements         int
	confidenceThreshold float32
}

// NewDecoder builds a decoder for a fixed output-tensor shape.
//
// Arguments:
//   - table: The label table class indices resolve against.
//   - numChannel: Number of output channels, 4 geometry + one per class.
//   - numElements: Number of anchor positions per channel.
//   - confidenceThreshold: Minimum class score; <= 0 selects the default.
//
// Returns:
//   - *Decoder: The configured decoder.
//   - error: A setup error when the shape is unusable or the label count
//     does not match numChannel-4 (mismatched model and label file).
func NewDecoder(table *labels.Table, numChannel, numElements int, confidenceThreshold float32) (*Decoder, error) {
	if table == nil {
		return nil, errors.New("decoder requires a label table")
	}
	if numChannel < 5 {
		return nil, errors.Errorf("output tensor needs at least 5 channels (4 geometry + classes), got %d", numChannel)
	}
	if numElements <= 0 {
		return nil, errors.Errorf("output tensor needs a positive element count, got %d", numElements)
	}
	if table.Len() != numChannel-4 {
		return nil, errors.Errorf("label table has %d classes but the model produces %d",
			table.Len(), numChannel-4)
	}
	if confidenceThreshold <= 0 {
		confidenceThreshold = DefaultConfidenceThreshold
	}

	return &Decoder{
		table:               table,
		numChannel:          numChannel,
		numElements:         numElements,
		confidenceThreshold: confidenceThreshold,
	}, nil
}

// NumChannel returns the configured channel count.
func (d *Decoder) NumChannel() int { return d.numChannel }

// NumElements returns the configured anchor count.
func (d *Decoder) NumElements() int { return d.numElements }

// Decode scans every anchor of the output tensor and emits one BoundingBox
// per anchor that passes the confidence threshold and the normalized-range
// check. The result may be empty; that is a valid "nothing found" outcome,
// not an error.
//
// Anchors whose best class index falls outside the label table abort the
// whole call: that is a structural model/label mismatch, not a bad
// prediction.
func (d *Decoder) Decode(output []float32) ([]BoundingBox, error) {
	want := d.numChannel * d.numElements
	if len(output) != want {
		return nil, errors.Errorf("output tensor has %d values, expected %d (%d channels x %d elements)",
			len(output), want, d.numChannel, d.numElements)
	}

	var boxes []BoundingBox
	for e := 0; e < d.numElements; e++ {
		// Find the best class for this anchor. Ascending channel scan with a
		// strict comparison keeps the first maximum on ties, so the result is
		// deterministic.
		best := -1
		score := float32(0)
		for c := 4; c < d.numChannel; c++ {
			v := output[c*d.numElements+e]
			if best < 0 || v > score {
				best = c - 4
				score = v
			}
		}

		if score <= d.confidenceThreshold {
			continue
		}

		cx := output[0*d.numElements+e]
		cy := output[1*d.numElements+e]
		w := output[2*d.numElements+e]
		h := output[3*d.numElements+e]

		x1 := cx - w/2
		y1 := cy - h/2
		x2 := cx + w/2
		y2 := cy + h/2

		// Out-of-frame predictions are dropped rather than clamped. A box
		// straddling the image boundary is more likely degenerate than a
		// recoverable detection.
		if !inUnitRange(x1) || !inUnitRange(y1) || !inUnitRange(x2) || !inUnitRange(y2) {
			continue
		}

		label, ok := d.table.Name(best)
		if !ok {
			return nil, errors.Errorf("class index %d outside label table of %d entries (model/label mismatch)",
				best, d.table.Len())
		}

		boxes = append(boxes, BoundingBox{
			Box:        images.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2},
			CX:         cx,
			CY:         cy,
			W:          w,
			H:          h,
			Confidence: score,
			Class:      best,
			Label:      label,
		})
	}

	return boxes, nil
}

// inUnitRange reports whether v lies in the closed interval [0, 1].
func inUnitRange(v float32) bool {
	return v >= 0 && v <= 1
}
