package raysdf

// Scalar forms of the CSG combinators. They operate on distances already
// evaluated so that callers holding plain distance values (shaders, 2D drawing,
// tests) compose them with the same arithmetic used by the node evaluators.

// Union returns min(d1,d2).
func Union(d1, d2 float32) float32 { return minf(d1, d2) }

// Intersect returns max(d1,d2).
func Intersect(d1, d2 float32) float32 { return maxf(d1, d2) }

// Subtract returns the distance of d1 with d2 carved out, max(d1,-d2).
func Subtract(d1, d2 float32) float32 { return maxf(d1, -d2) }

// SmoothMin is the polynomial smooth union of d1 and d2 with blend radius k.
// A k <= 0 degenerates to [Union].
func SmoothMin(d1, d2, k float32) float32 {
	if k <= 0 {
		return Union(d1, d2)
	}
	h := clampf(0.5+0.5*(d2-d1)/k, 0, 1)
	return mixf(d2, d1, h) - k*h*(1-h)
}

// SmoothMax is the polynomial smooth intersection of d1 and d2 with blend radius k.
// A k <= 0 degenerates to [Intersect].
func SmoothMax(d1, d2, k float32) float32 {
	if k <= 0 {
		return Intersect(d1, d2)
	}
	h := clampf(0.5-0.5*(d2-d1)/k, 0, 1)
	return mixf(d2, d1, h) + k*h*(1-h)
}

// SmoothSubtract is the polynomial smooth subtraction of d2 from d1 with blend radius k.
// A k <= 0 degenerates to [Subtract].
func SmoothSubtract(d1, d2, k float32) float32 {
	if k <= 0 {
		return Subtract(d1, d2)
	}
	h := clampf(0.5-0.5*(d2+d1)/k, 0, 1)
	return mixf(d1, -d2, h) + k*h*(1-h)
}
