package raysdf

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

const (
	largenum = 1e20
	// epstol is used to check for badly conditioned denominators
	// such as lengths used for normalization or transformation matrix determinants.
	epstol = 6e-7
)

// ErrInvalidParameter is wrapped by all construction errors reported by [Builder].
var ErrInvalidParameter = errors.New("raysdf: invalid parameter")

// Flags modify the behaviour of a [Builder].
type Flags uint64

const (
	// FlagNoDimensionPanic makes the Builder accumulate invalid parameter errors
	// instead of panicking. Accumulated errors are returned by [Builder.Err].
	FlagNoDimensionPanic Flags = 1 << iota
)

// Builder wraps all SDF primitive and operation logic generation.
// Provides error handling strategies with panics or error accumulation during shape generation.
type Builder struct {
	flags     Flags
	accumErrs []error
}

// SetFlags sets the Builder's flags, replacing the previous set.
func (bld *Builder) SetFlags(flags Flags) { bld.flags = flags }

// Flags returns the Builder's flags.
func (bld *Builder) Flags() Flags { return bld.flags }

// Err returns all accumulated construction errors joined, or nil if there were none.
func (bld *Builder) Err() error {
	if len(bld.accumErrs) == 0 {
		return nil
	}
	return errors.Join(bld.accumErrs...)
}

// ClearErrors discards accumulated errors.
func (bld *Builder) ClearErrors() {
	bld.accumErrs = bld.accumErrs[:0]
}

func (bld *Builder) shapeErrorf(msg string, args ...any) {
	err := fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(msg, args...))
	if bld.flags&FlagNoDimensionPanic == 0 {
		panic(err)
	}
	bld.accumErrs = append(bld.accumErrs, err)
}

func (*Builder) nilsdf(msg string) {
	panic("nil SDF argument: " + msg)
}

// These interfaces are implemented by all SDF interfaces such as SDF3/2 and Shader3D/2D.
// Using these instead of `any` Aids in catching mistakes at compile time such as passing a Shader3D instead of Shader2D as an argument.
type (
	bounder2 = interface{ Bounds() ms2.Box }
	bounder3 = interface{ Bounds() ms3.Box }
)

// relaxer is implemented by nodes whose output is no longer a strict
// distance bound, such as smooth blends and domain warps.
type relaxer interface {
	relaxesBound() bool
}

// warper is implemented by domain warps that stretch space. lipschitz
// returns an upper bound of the warp's stretch factor, at least 1.
type warper interface {
	lipschitz() float32
}

func minf(a, b float32) float32 {
	return math32.Min(a, b)
}

func hypotf(a, b float32) float32 {
	return math32.Hypot(a, b)
}

func signf(a float32) float32 {
	if a == 0 {
		return 0
	}
	return math32.Copysign(1, a)
}

func clampf(v, Min, Max float32) float32 {
	if v < Min {
		return Min
	} else if v > Max {
		return Max
	}
	return v
}

func mixf(x, y, a float32) float32 {
	return x*(1-a) + y*a
}

func maxf(a, b float32) float32 {
	return math32.Max(a, b)
}

func absf(a float32) float32 {
	return math32.Abs(a)
}

func dot2(v ms2.Vec) float32 { return ms2.Dot(v, v) }

// cornerRadius returns the largest distance to the origin of the corners of the rectangle [a0,a1]x[b0,b1].
func cornerRadius(a0, a1, b0, b1 float32) float32 {
	return hypotf(maxf(absf(a0), absf(a1)), maxf(absf(b0), absf(b1)))
}

func hashf(values []float32) float32 {
	var hashA float32 = 0.0
	var hashB float32 = 1.0
	for _, num := range values {
		hashA, hashB = hashAdd(hashA, hashB, num)
	}
	return hashfint(hashA + hashB)
}

func hashAdd(a, b, num float32) (aNew, bNew float32) {
	const prime = 31.0
	a += num
	b *= (prime + num)
	a = hashfint(a)
	b = hashfint(b)
	return a, b
}

func hashfint(f float32) float32 {
	return float32(int(f*1000000)%1000000) / 1000000 // Keep within [0.0, 1.0)
}
