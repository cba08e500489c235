// Package images - Geometry utilities for normalized detection boxes.
package images

import "github.com/chewxy/math32"

// Rect is a lightweight axis-aligned bounding box in normalized image
// coordinates. All four corners lie in [0, 1] with X1 <= X2 and Y1 <= Y2.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float32 {
	return r.X2 - r.X1
}

// Height returns the vertical extent of the box.
func (r Rect) Height() float32 {
	return r.Y2 - r.Y1
}

// Area returns Width*Height. Degenerate boxes have area 0.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// CalculateIoU computes the Intersection over Union of two boxes.
//
// IoU measures overlap between two rectangles as a value in [0, 1]:
//
//	IoU = Area of Intersection / Area of Union
//
// 1.0 means the boxes are identical, 0.0 means they do not overlap at all.
// The union is computed by inclusion-exclusion:
//
//	Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
//
// A zero or negative union area (both boxes degenerate) returns 0 rather
// than NaN so that suppression stays well-defined.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: The IoU score in [0, 1].
func CalculateIoU(r, o Rect) float32 {
	// The intersection's top-left corner is the maximum of the two
	// top-left corners, its bottom-right the minimum of the bottom-rights.
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return interArea / unionArea
}
