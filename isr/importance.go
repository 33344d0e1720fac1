package isr

import (
	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// ImportanceFactors are the per pixel or per tile signals that make up importance, each in [0,1].
type ImportanceFactors struct {
	Edge           float32
	NormalVariance float32
	Distance       float32
	Silhouette     float32
	Motion         float32
	Foveated       float32
}

// Combined returns the weighted sum of the factors clamped to [0,1].
// Weights are 0.25 edge, 0.15 normal variance, 0.2 distance, 0.15 silhouette,
// 0.15 motion and 0.1 foveation.
func (f ImportanceFactors) Combined() float32 {
	sum := 0.25*f.Edge + 0.15*f.NormalVariance + 0.2*f.Distance +
		0.15*f.Silhouette + 0.15*f.Motion + 0.1*f.Foveated
	return clamp01(sum)
}

// Max returns the component-wise maximum of f and g. Used to reduce pixel factors to a tile.
func (f ImportanceFactors) Max(g ImportanceFactors) ImportanceFactors {
	return ImportanceFactors{
		Edge:           math32.Max(f.Edge, g.Edge),
		NormalVariance: math32.Max(f.NormalVariance, g.NormalVariance),
		Distance:       math32.Max(f.Distance, g.Distance),
		Silhouette:     math32.Max(f.Silhouette, g.Silhouette),
		Motion:         math32.Max(f.Motion, g.Motion),
		Foveated:       math32.Max(f.Foveated, g.Foveated),
	}
}

// ImportanceConfig parametrizes the computation of [ImportanceFactors] from G-buffer style inputs.
type ImportanceConfig struct {
	// EdgeThreshold is the normal difference that counts as a full edge.
	EdgeThreshold float32
	// MotionSensitivity scales screen-space motion in pixels per frame.
	MotionSensitivity float32
	// Depths before DistanceStart are fully important, after DistanceEnd not at all.
	DistanceStart float32
	DistanceEnd   float32
	// Foveated enables foveation around FoveatedCenter given in normalized
	// screen coordinates. Within FoveatedInner the factor is 1, beyond FoveatedOuter 0.
	Foveated       bool
	FoveatedCenter ms2.Vec
	FoveatedInner  float32
	FoveatedOuter  float32
}

// DefaultImportanceConfig returns the default importance parameters with foveation disabled.
func DefaultImportanceConfig() ImportanceConfig {
	return ImportanceConfig{
		EdgeThreshold:     0.1,
		MotionSensitivity: 1,
		DistanceStart:     10,
		DistanceEnd:       100,
		FoveatedCenter:    ms2.Vec{X: 0.5, Y: 0.5},
		FoveatedInner:     0.2,
		FoveatedOuter:     0.8,
	}
}

// PixelFactors computes the importance factors of the pixel at screenPos in a
// width x height frame from its depth, its normal and the normal of a neighbour
// or the previous frame, and its screen-space motion.
func (cfg *ImportanceConfig) PixelFactors(screenPos ms2.Vec, width, height int, depth float32, normal, prevNormal ms3.Vec, motion ms2.Vec) ImportanceFactors {
	var f ImportanceFactors
	f.Edge = clamp01(ms3.Norm(ms3.Sub(normal, prevNormal)) / cfg.EdgeThreshold)
	f.Distance = 1 - clamp01((depth-cfg.DistanceStart)/(cfg.DistanceEnd-cfg.DistanceStart))
	f.Motion = clamp01(ms2.Norm(motion) * cfg.MotionSensitivity)
	f.Foveated = 1
	if cfg.Foveated {
		p := ms2.Vec{X: screenPos.X / float32(width), Y: screenPos.Y / float32(height)}
		f.Foveated = FoveatedImportance(p, cfg.FoveatedCenter, cfg.FoveatedInner, cfg.FoveatedOuter)
	}
	return f
}

// FoveatedImportance returns 1 within inner of center decaying linearly to 0 at outer.
// Positions are in normalized screen coordinates.
func FoveatedImportance(pos, center ms2.Vec, inner, outer float32) float32 {
	if outer <= inner {
		if ms2.Norm(ms2.Sub(pos, center)) <= inner {
			return 1
		}
		return 0
	}
	d := ms2.Norm(ms2.Sub(pos, center))
	return 1 - clamp01((d-inner)/(outer-inner))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	} else if v > 1 {
		return 1
	}
	return v
}
