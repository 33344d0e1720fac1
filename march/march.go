// Package march implements sphere tracing of signed distance fields with
// normal estimation, soft shadows, ambient occlusion and shading.
//
// Rays are marched in lockstep batches so that each step issues a single
// vectorized evaluation of the distance field over all rays still marching.
package march

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf"
	"github.com/epicx/raysdf/gleval"
	"github.com/soypat/geometry/ms3"
)

// Config holds ray marching parameters. Use [DefaultConfig] for a ready to use configuration.
type Config struct {
	// SurfaceEpsilon is the distance under which a ray is considered to hit the surface.
	SurfaceEpsilon float32
	// MaxSteps is the maximum number of marching steps before a ray is considered missed.
	MaxSteps int
	// MaxDistance is the maximum distance a ray travels before it is considered missed.
	MaxDistance float32
	// RelaxationFactor multiplies each step when the field is not a strict
	// distance bound, see [raysdf.Scene.BoundRelaxed]. Must be in (0,1].
	// Fields that stretch space, see [raysdf.Scene.Lipschitz], step by the
	// smaller of RelaxationFactor and the inverse of their Lipschitz bound.
	RelaxationFactor float32
	// NormalEpsilon is the central difference offset used to estimate normals.
	NormalEpsilon float32

	// ShadowSoftness is the penumbra factor k of soft shadows. Larger is harder.
	ShadowSoftness float32
	// ShadowSteps is the maximum number of steps of a shadow ray.
	ShadowSteps int
	// ShadowMaxDistance is the distance after which a shadow ray is unoccluded.
	ShadowMaxDistance float32
	// ShadowBias offsets shadow ray origins along the normal to avoid self intersection.
	ShadowBias float32
	// ShadowMinStep is both the starting distance and the minimum step of shadow rays.
	ShadowMinStep float32

	// AOSamples is the number of taps along the normal used for ambient occlusion. Zero disables it.
	AOSamples int
	// AOStart is the distance of the first ambient occlusion tap.
	AOStart float32
	// AOStep is the distance between consecutive ambient occlusion taps.
	AOStep float32
	// AODecay weights each successive tap.
	AODecay float32
	// AOStrength scales accumulated occlusion before inversion.
	AOStrength float32
}

// DefaultConfig returns the default marching configuration.
func DefaultConfig() Config {
	return Config{
		SurfaceEpsilon:    1e-3,
		MaxSteps:          128,
		MaxDistance:       100,
		RelaxationFactor:  0.9,
		NormalEpsilon:     1e-3,
		ShadowSoftness:    16,
		ShadowSteps:       48,
		ShadowMaxDistance: 20,
		ShadowBias:        0.02,
		ShadowMinStep:     0.02,
		AOSamples:         5,
		AOStart:           0.01,
		AOStep:            0.12,
		AODecay:           0.95,
		AOStrength:        3,
	}
}

// Validate checks the configuration. Returned errors wrap [raysdf.ErrInvalidParameter].
func (cfg Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("march: %w: "+format, append([]any{raysdf.ErrInvalidParameter}, args...)...))
		}
	}
	check(cfg.SurfaceEpsilon > 0, "surface epsilon %v must be positive", cfg.SurfaceEpsilon)
	check(cfg.MaxSteps > 0, "max steps %d must be positive", cfg.MaxSteps)
	check(cfg.MaxDistance > cfg.SurfaceEpsilon, "max distance %v must exceed surface epsilon", cfg.MaxDistance)
	check(cfg.RelaxationFactor > 0 && cfg.RelaxationFactor <= 1, "relaxation factor %v not in (0,1]", cfg.RelaxationFactor)
	check(cfg.NormalEpsilon > 0, "normal epsilon %v must be positive", cfg.NormalEpsilon)
	check(cfg.ShadowSoftness > 0, "shadow softness %v must be positive", cfg.ShadowSoftness)
	check(cfg.ShadowSteps > 0, "shadow steps %d must be positive", cfg.ShadowSteps)
	check(cfg.ShadowMaxDistance > 0, "shadow max distance %v must be positive", cfg.ShadowMaxDistance)
	check(cfg.ShadowBias >= 0, "negative shadow bias %v", cfg.ShadowBias)
	check(cfg.ShadowMinStep > 0, "shadow min step %v must be positive", cfg.ShadowMinStep)
	check(cfg.AOSamples >= 0, "negative ambient occlusion samples %d", cfg.AOSamples)
	check(cfg.AOStep >= 0 && cfg.AOStart >= 0, "negative ambient occlusion offsets (%v,%v)", cfg.AOStart, cfg.AOStep)
	check(cfg.AODecay > 0 && cfg.AODecay <= 1, "ambient occlusion decay %v not in (0,1]", cfg.AODecay)
	return errors.Join(errs...)
}

// Result is the outcome of marching a single ray.
type Result struct {
	Hit bool
	// Distance travelled along the ray. Equal to MaxDistance for missed rays.
	Distance float32
	// Position is the point where the ray stopped.
	Position ms3.Vec
	// Normal is the unit surface normal at Position. Zero for missed rays.
	Normal ms3.Vec
	// Steps is the number of field evaluations spent on the ray.
	Steps int
	// AmbientOcclusion in [0,1] where 1 is unoccluded. Missed rays report 1.
	AmbientOcclusion float32
	// MinDistance is the smallest distance to the surface seen along the ray
	// and MinDistanceT the ray parameter at which it was seen. Used for silhouette anti-aliasing.
	MinDistance  float32
	MinDistanceT float32
}

// Tracer marches rays against a distance field.
// A Tracer is not safe for concurrent use; create one per goroutine.
// Tracers created over the same [raysdf.Scene] may run concurrently.
type Tracer struct {
	sdf     gleval.SDF3
	// occl answers ambient occlusion and shadow queries. Equal to sdf unless set.
	occl    gleval.SDF3
	cfg     Config
	shading Shading
	factor  float32
	vp      gleval.VecPool
	// Lockstep marching state.
	active  []int
	t       []float32
	pos     []ms3.Vec
	dist    []float32
	normals []ms3.Vec
}

// NewTracer returns a Tracer for sdf. The field is evaluated once so that
// evaluation errors surface here instead of during marching.
func NewTracer(sdf gleval.SDF3, cfg Config) (*Tracer, error) {
	if sdf == nil {
		return nil, errors.New("march: nil distance field")
	}
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	tr := &Tracer{sdf: sdf, occl: sdf, cfg: cfg, factor: 1, shading: DefaultShading()}
	if r, ok := sdf.(interface{ BoundRelaxed() bool }); ok && r.BoundRelaxed() {
		tr.factor = cfg.RelaxationFactor
	}
	if l, ok := sdf.(interface{ Lipschitz() float32 }); ok && l.Lipschitz() > 1 {
		tr.factor = min(tr.factor, 1/l.Lipschitz())
	}
	var d [1]float32
	center := [1]ms3.Vec{sdf.Bounds().Center()}
	err = sdf.Evaluate(center[:], d[:], &tr.vp)
	if err != nil {
		return nil, fmt.Errorf("march: initial evaluation: %w", err)
	}
	err = tr.vp.AssertAllReleased()
	if err != nil {
		return nil, fmt.Errorf("march: initial evaluation leaked buffers: %w", err)
	}
	return tr, nil
}

// SetOcclusionField sets the field queried by ambient occlusion and soft
// shadows. It may be a coarse lower bound of the marched field such as a
// [gleval.BlockCachedSDF3]. Primary rays and normals always query the marched
// field. A nil sdf restores the marched field.
func (tr *Tracer) SetOcclusionField(sdf gleval.SDF3) {
	if sdf == nil {
		sdf = tr.sdf
	}
	tr.occl = sdf
}

// Config returns the Tracer's marching configuration.
func (tr *Tracer) Config() Config { return tr.cfg }

// StepFactor returns the factor applied to every marching step.
func (tr *Tracer) StepFactor() float32 { return tr.factor }

// March traces a single ray. dir should be of unit length.
func (tr *Tracer) March(origin, dir ms3.Vec) Result {
	var res [1]Result
	tr.MarchBatch(res[:0], []ms3.Vec{origin}, []ms3.Vec{dir})
	return res[0]
}

// MarchBatch traces rays (origins[i], dirs[i]) and appends one result per ray to dst.
// origins and dirs must be of the same length.
func (tr *Tracer) MarchBatch(dst []Result, origins, dirs []ms3.Vec) []Result {
	if len(origins) != len(dirs) {
		panic("march: origins and directions length mismatch")
	}
	n := len(origins)
	base := len(dst)
	dst = append(dst, make([]Result, n)...)
	results := dst[base:]
	if n == 0 {
		return dst
	}
	cfg := tr.cfg
	tr.active = tr.active[:0]
	tr.t = resize(tr.t, n)
	for i := range results {
		tr.active = append(tr.active, i)
		tr.t[i] = 0
		results[i].MinDistance = math32.Inf(1)
	}
	for step := 0; step < cfg.MaxSteps && len(tr.active) > 0; step++ {
		m := len(tr.active)
		tr.pos = resize(tr.pos, m)
		tr.dist = resize(tr.dist, m)
		for j, i := range tr.active {
			tr.pos[j] = ms3.Add(origins[i], ms3.Scale(tr.t[i], dirs[i]))
		}
		err := tr.sdf.Evaluate(tr.pos, tr.dist, &tr.vp)
		if err != nil {
			// Field validated at construction: treat rays in flight as missed.
			break
		}
		remaining := tr.active[:0]
		for j, i := range tr.active {
			r := &results[i]
			d := tr.dist[j]
			t := tr.t[i]
			r.Steps++
			if d < r.MinDistance {
				r.MinDistance = d
				r.MinDistanceT = t
			}
			if d < cfg.SurfaceEpsilon {
				r.Hit = true
				r.Distance = t
				r.Position = tr.pos[j]
				continue
			}
			t += d * tr.factor
			tr.t[i] = t
			if t > cfg.MaxDistance {
				continue // Missed.
			}
			remaining = append(remaining, i)
		}
		tr.active = remaining
	}
	for i := range results {
		r := &results[i]
		if !r.Hit {
			r.Distance = cfg.MaxDistance
			r.Position = ms3.Add(origins[i], ms3.Scale(cfg.MaxDistance, dirs[i]))
			r.AmbientOcclusion = 1
		}
	}
	tr.finishHits(results)
	return dst
}

// ClosestApproach returns a hit result at the point of closest approach of the
// missed ray (origin, dir) with normal and ambient occlusion computed there.
// It is used to shade anti-aliased silhouettes. Hit results are returned unchanged.
func (tr *Tracer) ClosestApproach(res Result, origin, dir ms3.Vec) Result {
	if res.Hit || math32.IsInf(res.MinDistance, 1) {
		return res
	}
	near := [1]Result{{
		Hit:          true,
		Distance:     res.MinDistanceT,
		Position:     ms3.Add(origin, ms3.Scale(res.MinDistanceT, dir)),
		Steps:        res.Steps,
		MinDistance:  res.MinDistance,
		MinDistanceT: res.MinDistanceT,
	}}
	tr.finishHits(near[:])
	return near[0]
}

// finishHits computes normals and ambient occlusion of all hit results.
func (tr *Tracer) finishHits(results []Result) {
	tr.active = tr.active[:0]
	for i := range results {
		if results[i].Hit {
			tr.active = append(tr.active, i)
		}
	}
	m := len(tr.active)
	if m == 0 {
		return
	}
	tr.pos = resize(tr.pos, m)
	tr.normals = resize(tr.normals, m)
	for j, i := range tr.active {
		tr.pos[j] = results[i].Position
	}
	err := gleval.NormalsCentralDiff(tr.sdf, tr.pos, tr.normals, 2*tr.cfg.NormalEpsilon, &tr.vp)
	if err != nil {
		return
	}
	for j, i := range tr.active {
		n := tr.normals[j]
		if nn := ms3.Norm(n); nn > 0 {
			n = ms3.Scale(1/nn, n)
		}
		results[i].Normal = n
		tr.normals[j] = n
	}
	ao := tr.ambientOcclusion(tr.pos, tr.normals)
	for j, i := range tr.active {
		results[i].AmbientOcclusion = ao[j]
	}
}

// AmbientOcclusion estimates occlusion at surface point p with unit normal n.
// Returns a value in [0,1] where 1 is unoccluded.
func (tr *Tracer) AmbientOcclusion(p, n ms3.Vec) float32 {
	ao := tr.ambientOcclusion([]ms3.Vec{p}, []ms3.Vec{n})
	return ao[0]
}

func (tr *Tracer) ambientOcclusion(pos, normals []ms3.Vec) []float32 {
	cfg := tr.cfg
	occ := make([]float32, len(pos))
	if cfg.AOSamples == 0 {
		for i := range occ {
			occ[i] = 1
		}
		return occ
	}
	taps := tr.vp.V3.Acquire(len(pos))
	defer tr.vp.V3.Release(taps)
	d := tr.vp.Float.Acquire(len(pos))
	defer tr.vp.Float.Release(d)
	var sca float32 = 1
	for k := 0; k < cfg.AOSamples; k++ {
		h := cfg.AOStart + cfg.AOStep*float32(k)
		for i := range pos {
			taps[i] = ms3.Add(pos[i], ms3.Scale(h, normals[i]))
		}
		if err := tr.occl.Evaluate(taps, d, &tr.vp); err != nil {
			break
		}
		for i := range occ {
			occ[i] += (h - d[i]) * sca
		}
		sca *= cfg.AODecay
	}
	for i, o := range occ {
		occ[i] = clamp(1-cfg.AOStrength*o, 0, 1)
	}
	return occ
}

// SoftShadow marches from surface point p with unit normal n toward the light
// direction and returns the penumbra factor in [0,1], 0 being fully occluded.
func (tr *Tracer) SoftShadow(p, n, lightDir ms3.Vec) float32 {
	var res [1]float32
	tr.SoftShadows(res[:0], []ms3.Vec{p}, []ms3.Vec{n}, lightDir)
	return res[0]
}

// SoftShadows computes soft shadows for several surface points against a single
// directional light and appends the factors to dst.
func (tr *Tracer) SoftShadows(dst []float32, pos, normals []ms3.Vec, lightDir ms3.Vec) []float32 {
	if len(pos) != len(normals) {
		panic("march: positions and normals length mismatch")
	}
	cfg := tr.cfg
	l := ms3.Unit(lightDir)
	n := len(pos)
	base := len(dst)
	for range pos {
		dst = append(dst, 1)
	}
	shadow := dst[base:]
	origins := tr.vp.V3.Acquire(n)
	defer tr.vp.V3.Release(origins)
	for i := range pos {
		origins[i] = ms3.Add(pos[i], ms3.Scale(cfg.ShadowBias, normals[i]))
	}
	tr.active = tr.active[:0]
	tr.t = resize(tr.t, n)
	for i := range pos {
		tr.active = append(tr.active, i)
		tr.t[i] = cfg.ShadowMinStep
	}
	for step := 0; step < cfg.ShadowSteps && len(tr.active) > 0; step++ {
		m := len(tr.active)
		tr.pos = resize(tr.pos, m)
		tr.dist = resize(tr.dist, m)
		for j, i := range tr.active {
			tr.pos[j] = ms3.Add(origins[i], ms3.Scale(tr.t[i], l))
		}
		if err := tr.occl.Evaluate(tr.pos, tr.dist, &tr.vp); err != nil {
			break
		}
		remaining := tr.active[:0]
		for j, i := range tr.active {
			d := tr.dist[j]
			t := tr.t[i]
			if d < cfg.SurfaceEpsilon {
				shadow[i] = 0
				continue
			}
			shadow[i] = math32.Min(shadow[i], cfg.ShadowSoftness*d/t)
			t += math32.Max(d, cfg.ShadowMinStep)
			tr.t[i] = t
			if t > cfg.ShadowMaxDistance {
				continue
			}
			remaining = append(remaining, i)
		}
		tr.active = remaining
	}
	for i, s := range shadow {
		shadow[i] = clamp(s, 0, 1)
	}
	return dst
}

func resize[T any](buf []T, n int) []T {
	if cap(buf) < n {
		return make([]T, n)
	}
	return buf[:n]
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	} else if v > hi {
		return hi
	}
	return v
}
