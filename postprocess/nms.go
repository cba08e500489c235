package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-detect/images"
)

// DefaultIoUThreshold is applied when an NMSConfig carries a non-positive
// overlap threshold.
const DefaultIoUThreshold float32 = 0.5

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap at or above which the lower-confidence
	// box of a pair is suppressed.
	IoUThreshold float32
}

// ApplyGreedyNMS performs greedy class-agnostic Non-Maximum Suppression.
//
// Candidates are stably sorted by descending confidence (ties keep their
// original anchor order), then repeatedly the best remaining candidate is
// kept and every remaining candidate overlapping it at IoU >= threshold is
// removed. Suppression applies across classes as well as within one.
//
// The input slice is not modified. The result is a subset of the input,
// sorted by descending confidence, with no two survivors overlapping at or
// above the threshold. Worst case O(n²) over the surviving candidates,
// which stay small enough in practice that spatial indexing is not worth
// carrying.
//
// Arguments:
//   - detections: Candidate boxes in decode (anchor) order.
//   - config: Suppression parameters.
//
// Returns:
//   - Filtered slice of detections, nil when no candidates are provided.
func ApplyGreedyNMS(detections []BoundingBox, config NMSConfig) []BoundingBox {
	n := len(detections)
	if n == 0 {
		return nil
	}

	threshold := config.IoUThreshold
	if threshold <= 0 {
		threshold = DefaultIoUThreshold
	}

	sorted := make([]BoundingBox, n)
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	filtered := make([]BoundingBox, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if images.CalculateIoU(anchor.Box, sorted[j].Box) >= threshold {
				used[j] = true
			}
		}
	}

	return filtered
}
