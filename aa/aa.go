// Package aa computes anti-aliased coverage from signed distances and their
// screen-space rate of change.
//
// The ramp width is derived from the per-pixel change of the distance, so
// edges stay one pixel wide at any resolution or zoom.
package aa

import (
	"image/color"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
)

// FWidth returns the screen-space derivative magnitude |dDx|+|dDy| given the
// change of the distance over one pixel in x and y.
func FWidth(dDx, dDy float32) float32 {
	return math32.Abs(dDx) + math32.Abs(dDy)
}

// FWidthSamples approximates [FWidth] from the distance d at a pixel and the
// distances dRight and dDown at its right and lower neighbours.
func FWidthSamples(d, dRight, dDown float32) float32 {
	return FWidth(dRight-d, dDown-d)
}

// Coverage returns the fraction of the pixel covered by the shape, 1 deep
// inside, 0 outside, with a ramp of width 2*[FWidth] straddling the surface.
// Coverage(0, dDx, dDy) is 0.5.
func Coverage(sdf, dDx, dDy float32) float32 {
	return CoverageWidth(sdf, FWidth(dDx, dDy))
}

// CoverageSoft is [Coverage] with the ramp width scaled by softness.
func CoverageSoft(sdf, dDx, dDy, softness float32) float32 {
	return CoverageWidth(sdf, FWidth(dDx, dDy)*softness)
}

// CoverageWidth returns coverage for an already computed pixel width.
// A non-positive width degenerates to a hard step that is 0.5 on the surface.
func CoverageWidth(sdf, pixelWidth float32) float32 {
	if pixelWidth <= 0 {
		switch {
		case sdf < 0:
			return 1
		case sdf > 0:
			return 0
		}
		return 0.5
	}
	return Smoothstep(pixelWidth, -pixelWidth, sdf)
}

// Silhouette anti-aliases only the outer contour of a ray-marched shape.
// Pixels whose ray hit the shape are fully covered so interior edges stay sharp;
// for missed rays minDistance is the ray's closest approach to the shape and
// pixelWidth the pixel footprint at that point.
func Silhouette(hit bool, minDistance, pixelWidth float32) float32 {
	if hit {
		return 1
	}
	if minDistance < 0 {
		minDistance = 0
	}
	return CoverageWidth(minDistance, pixelWidth)
}

// Edge returns 1 on the shape's contour fading to 0 at edgeWidth pixels away from it.
func Edge(sdf, pixelWidth, edgeWidth float32) float32 {
	return 1 - Smoothstep(0, pixelWidth*edgeWidth, math32.Abs(sdf))
}

// Outline returns the fill coverage of the shape and the coverage of an
// outline of the given width around its contour.
func Outline(sdf, pixelWidth, outlineWidth float32) (fill, outline float32) {
	fill = CoverageWidth(sdf, pixelWidth)
	outline = CoverageWidth(math32.Abs(sdf)-outlineWidth, pixelWidth)
	return fill, outline
}

// Smoothstep is the GLSL smoothstep function. edge0 may be greater than edge1
// in which case the result is mirrored.
func Smoothstep(edge0, edge1, x float32) float32 {
	t := clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}

// Smootherstep is the quintic variant of [Smoothstep] with zero second derivative at the edges.
func Smootherstep(edge0, edge1, x float32) float32 {
	t := clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * t * (t*(t*6-15) + 10)
}

// Multisample averages the distance sampled with a rotated 2x2 grid around
// center. samples is clamped to [1,4]; a single sample evaluates center.
func Multisample(sample func(p ms2.Vec) float32, center ms2.Vec, pixelSize float32, samples int) float32 {
	if samples <= 1 {
		return sample(center)
	}
	samples = min(samples, 4)
	o := pixelSize * 0.25
	offsets := [4]ms2.Vec{
		{X: -o, Y: -o * 0.5},
		{X: o, Y: -o * 0.5},
		{X: -o * 0.5, Y: o},
		{X: o * 0.5, Y: o},
	}
	var sum float32
	for _, off := range offsets[:samples] {
		sum += sample(ms2.Add(center, off))
	}
	return sum / float32(samples)
}

// Supersample returns the fraction of a grid x grid sample pattern inside the
// pixel of size pixelSize at center for which the distance is negative.
func Supersample(sample func(p ms2.Vec) float32, center ms2.Vec, pixelSize float32, grid int) float32 {
	if grid < 1 {
		grid = 1
	}
	step := pixelSize / float32(grid)
	start := -pixelSize*0.5 + step*0.5
	inside := 0
	for y := 0; y < grid; y++ {
		for x := 0; x < grid; x++ {
			off := ms2.Vec{X: start + float32(x)*step, Y: start + float32(y)*step}
			if sample(ms2.Add(center, off)) < 0 {
				inside++
			}
		}
	}
	return float32(inside) / float32(grid*grid)
}

// BlendColor mixes outside toward inside by the coverage alpha.
func BlendColor(inside, outside color.Color, alpha float32) color.RGBA64 {
	alpha = clamp(alpha, 0, 1)
	ir, ig, ib, ia := inside.RGBA()
	or, og, ob, oa := outside.RGBA()
	mix := func(o, i uint32) uint16 {
		return uint16(float32(o) + (float32(i)-float32(o))*alpha + 0.5)
	}
	return color.RGBA64{R: mix(or, ir), G: mix(og, ig), B: mix(ob, ib), A: mix(oa, ia)}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	} else if v > hi {
		return hi
	}
	return v
}
