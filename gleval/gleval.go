package gleval

import (
	"errors"
	"fmt"
	"slices"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// SDF3 implements a 3D signed distance field in vectorized form.
type SDF3 interface {
	// Evaluate evaluates the signed distance field over pos positions.
	// dist and pos must be of same length.  Resulting distances are stored
	// in dist.
	//
	// userData facilitates getting data to the evaluators for use in processing, such as [VecPool].
	Evaluate(pos []ms3.Vec, dist []float32, userData any) error
	// Bounds returns the SDF's bounding box such that all of the shape is contained within.
	Bounds() ms3.Box
}

// SDF2 implements a 2D signed distance field in vectorized form.
type SDF2 interface {
	// Evaluate evaluates the signed distance field over pos positions.
	// dist and pos must be of same length.  Resulting distances are stored
	// in dist.
	//
	// userData facilitates getting data to the evaluators for use in processing, such as [VecPool].
	Evaluate(pos []ms2.Vec, dist []float32, userData any) error
	// Bounds returns the SDF's bounding box such that all of the shape is contained within.
	Bounds() ms2.Box
}

// These interfaces are implemented by all SDF interfaces such as SDF3/2 and Shader3D/2D.
// Using these instead of `any` Aids in catching mistakes at compile time such as passing a Shader3D instead of Shader2D as an argument.
type (
	bounder2 = interface{ Bounds() ms2.Box }
	bounder3 = interface{ Bounds() ms3.Box }
)

var (
	errEmptyBuffers         = errors.New("empty buffers")
	errMismatchBufferLength = errors.New("position and distance buffer length mismatch")
)

// EvaluateAt evaluates s at a single position. userData is passed through to s.
func EvaluateAt(s SDF3, p ms3.Vec, userData any) (float32, error) {
	var dist [1]float32
	pos := [1]ms3.Vec{p}
	err := s.Evaluate(pos[:], dist[:], userData)
	return dist[0], err
}

// NormalsCentralDiff uses central differences algorithm for normal calculation, which are stored in normals for each position.
// Each axis is sampled at ±step/2. The returned normals are not normalized (converted to unit length).
func NormalsCentralDiff(s SDF3, pos []ms3.Vec, normals []ms3.Vec, step float32, userData any) error {
	step *= 0.5
	if step <= 0 {
		return errors.New("invalid step")
	} else if len(pos) != len(normals) {
		return errors.New("length of position must match length of normals")
	} else if s == nil {
		return errors.New("nil SDF3")
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	vp, err := GetVecPool(userData)
	if err != nil {
		return fmt.Errorf("VecPool required for normal calculation: %w", err)
	}
	d1 := vp.Float.Acquire(len(pos))
	d2 := vp.Float.Acquire(len(pos))
	auxPos := vp.V3.Acquire(len(pos))
	defer vp.Float.Release(d1)
	defer vp.Float.Release(d2)
	defer vp.V3.Release(auxPos)
	var vecs = [3]ms3.Vec{{X: step}, {Y: step}, {Z: step}}
	for dim := 0; dim < 3; dim++ {
		h := vecs[dim]
		for i, p := range pos {
			auxPos[i] = ms3.Add(p, h)
		}
		err = s.Evaluate(auxPos, d1, userData)
		if err != nil {
			return err
		}
		for i, p := range pos {
			auxPos[i] = ms3.Sub(p, h)
		}
		err = s.Evaluate(auxPos, d2, userData)
		if err != nil {
			return err
		}

		switch dim {
		case 0:
			for i, d := range d1 {
				normals[i].X = d - d2[i]
			}
		case 1:
			for i, d := range d1 {
				normals[i].Y = d - d2[i]
			}
		case 2:
			for i, d := range d1 {
				normals[i].Z = d - d2[i]
			}
		}
	}
	return nil
}

// BlockCachedSDF3 caches distances of an SDF3 over a grid of blocks of a set resolution.
// Each block stores the distance at its center less half the block diagonal so
// that cached distances remain lower bounds of the wrapped field. The result is
// too coarse for normals or surface hits. Useful for coarse queries such as
// occlusion queries over static scenes.
type BlockCachedSDF3 struct {
	sdf     SDF3
	res     ms3.Vec
	mul     ms3.Vec
	margin  float32
	m       map[[3]int]float32
	vp      *VecPool
	keybuf  [][3]int
	posbuf  []ms3.Vec
	distbuf []float32
	hits    uint64
	evals   uint64
}

// VecPool returns the pool used to evaluate the wrapped SDF3 when Evaluate is called with nil userData.
func (c3 *BlockCachedSDF3) VecPool() *VecPool {
	if c3.vp == nil {
		c3.vp = new(VecPool)
	}
	return c3.vp
}

// Reset resets the SDF3 and reuses the underlying buffers for future SDF evaluations. It also resets statistics such as evaluations and cache hits.
func (c3 *BlockCachedSDF3) Reset(sdf SDF3, resX, resY, resZ float32) error {
	if resX <= 0 || resY <= 0 || resZ <= 0 {
		return errors.New("invalid resolution for BlockCachedSDF3")
	} else if sdf == nil {
		return errors.New("nil SDF3")
	}
	if c3.m == nil {
		c3.m = make(map[[3]int]float32)
	} else {
		clear(c3.m)
	}
	res := ms3.Vec{X: resX, Y: resY, Z: resZ}
	var lipschitz float32 = 1
	if l, ok := sdf.(interface{ Lipschitz() float32 }); ok {
		lipschitz = max(1, l.Lipschitz())
	}
	*c3 = BlockCachedSDF3{
		sdf:     sdf,
		res:     res,
		mul:     ms3.DivElem(ms3.Vec{X: 1, Y: 1, Z: 1}, res),
		margin:  lipschitz * ms3.Norm(res) / 2,
		m:       c3.m,
		vp:      c3.vp,
		keybuf:  c3.keybuf[:0],
		posbuf:  c3.posbuf[:0],
		distbuf: c3.distbuf[:0],
	}
	return nil
}

// CacheHits returns total amount of cached evalutions done throughout the SDF's lifetime.
func (c3 *BlockCachedSDF3) CacheHits() uint64 {
	return c3.hits
}

// Evaluations returns total evaluations performed succesfully during sdf's lifetime, including cached.
func (c3 *BlockCachedSDF3) Evaluations() uint64 {
	return c3.evals
}

// Evaluate implements the [SDF3] interface with cached evaluation.
// Blocks not yet cached are evaluated at their centers in a single batch.
func (c3 *BlockCachedSDF3) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	if userData == nil {
		userData = c3.VecPool()
	}
	seekKeys := c3.keybuf[:0]
	seekPos := c3.posbuf[:0]
	for _, p := range pos {
		k := c3.key(p)
		if _, ok := c3.m[k]; ok {
			continue
		}
		c3.m[k] = math32.NaN() // Scheduled, evaluated below.
		seekKeys = append(seekKeys, k)
		seekPos = append(seekPos, ms3.MulElem(c3.res, ms3.Vec{X: float32(k[0]), Y: float32(k[1]), Z: float32(k[2])}))
	}
	if len(seekPos) > 0 {
		// Renew buffers in case they were grown.
		c3.keybuf = seekKeys
		c3.posbuf = seekPos
		c3.distbuf = slices.Grow(c3.distbuf[:0], len(seekPos))
		seekDist := c3.distbuf[:len(seekPos)]
		err := c3.sdf.Evaluate(seekPos, seekDist, userData)
		if err != nil {
			for _, k := range seekKeys {
				delete(c3.m, k)
			}
			return err
		}
		for i, k := range seekKeys {
			c3.m[k] = seekDist[i] - c3.margin
		}
	}
	for i, p := range pos {
		dist[i] = c3.m[c3.key(p)]
	}
	c3.evals += uint64(len(dist))
	c3.hits += uint64(len(dist) - len(seekPos))
	return nil
}

// Margin returns the amount subtracted from every cached distance: half the
// block diagonal scaled by the Lipschitz bound of the wrapped field.
func (c3 *BlockCachedSDF3) Margin() float32 { return c3.margin }

func (c3 *BlockCachedSDF3) key(p ms3.Vec) [3]int {
	tp := ms3.RoundElem(ms3.MulElem(c3.mul, p))
	return [3]int{int(tp.X), int(tp.Y), int(tp.Z)}
}

// BoundRelaxed reports whether the cached SDF3 only provides a relaxed distance bound.
func (c3 *BlockCachedSDF3) BoundRelaxed() bool {
	r, ok := c3.sdf.(interface{ BoundRelaxed() bool })
	return ok && r.BoundRelaxed()
}

// Lipschitz forwards the Lipschitz bound of the cached SDF3, 1 if it reports none.
func (c3 *BlockCachedSDF3) Lipschitz() float32 {
	if l, ok := c3.sdf.(interface{ Lipschitz() float32 }); ok {
		return l.Lipschitz()
	}
	return 1
}

// Bounds returns the SDF's bounding box such that all of the shape is contained within.
func (c3 *BlockCachedSDF3) Bounds() ms3.Box {
	return c3.sdf.Bounds()
}
