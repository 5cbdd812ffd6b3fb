// Package images - pixel grids, rectangle geometry and window tiling for
// segmentation pipelines.
package images

// Rect is a lightweight axis-aligned rectangle.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// Area returns (X2-X1)*(Y2-Y1). No validation is performed: an inverted
// rectangle yields a negative area and a degenerate one yields zero.
func (r Rect) Area() int {
	return (r.X2 - r.X1) * (r.Y2 - r.Y1)
}

// Width returns X2-X1.
func (r Rect) Width() int {
	return r.X2 - r.X1
}

// Height returns Y2-Y1.
func (r Rect) Height() int {
	return r.Y2 - r.Y1
}

// IntersectionArea returns the area of the overlap between r and o.
//
// The overlap box is built from the elementwise max of the low corners and
// min of the high corners. If that box is inverted on either axis the
// rectangles do not overlap and the result is 0, never negative.
func IntersectionArea(r, o Rect) int {
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	return interW * interH
}

// UnionArea returns the total area covered by r and o combined, using the
// inclusion-exclusion principle so the overlap is not counted twice:
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
func UnionArea(r, o Rect) int {
	return r.Area() + o.Area() - IntersectionArea(r, o)
}

// CalculateIoU returns the Intersection over Union of two rectangles, the
// standard overlap score used when matching predicted regions against ground
// truth:
//
//	IoU = Area of Intersection / Area of Union
//
// The result is in [0, 1]: 1.0 for identical rectangles, 0.0 for disjoint
// ones. When both rectangles are degenerate the union is 0; that case
// returns 0 rather than dividing by zero.
func CalculateIoU(r, o Rect) float32 {
	inter := IntersectionArea(r, o)
	union := UnionArea(r, o)
	if union == 0 {
		return 0.0
	}
	return float32(inter) / float32(union)
}
