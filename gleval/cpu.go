package gleval

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// NewCPUSDF3 checks if the shader implements CPU evaluation and returns a [CPUSDF3]
// ready for evaluation, taking care of the buffers for evaluating the SDF correctly.
//
// The returned SDF3 should only require a [VecPool] as a userData argument,
// which is automatically taken care of if a nil userData is passed in.
func NewCPUSDF3(root bounder3) (*CPUSDF3, error) {
	sdf, err := AssertSDF3(root)
	if err != nil {
		return nil, fmt.Errorf("top level SDF cannot be CPU evaluated: %w", err)
	}
	return &CPUSDF3{SDF: sdf}, nil
}

// NewCPUSDF2 checks if the shader implements CPU evaluation and returns a [CPUSDF2]
// ready for evaluation.
func NewCPUSDF2(root bounder2) (*CPUSDF2, error) {
	sdf, err := AssertSDF2(root)
	if err != nil {
		return nil, fmt.Errorf("top level SDF cannot be CPU evaluated: %w", err)
	}
	return &CPUSDF2{SDF: sdf}, nil
}

// AssertSDF3 asserts the argument as a SDF3 implementation
// and returns the raw result. It provides readable errors beyond simply converting the interface.
func AssertSDF3(s bounder3) (SDF3, error) {
	if s == nil {
		return nil, errors.New("nil argument to AssertSDF3")
	}
	evaluator, ok := s.(SDF3)
	if !ok {
		return nil, fmt.Errorf("%T does not implement gleval.SDF3", s)
	}
	return evaluator, nil
}

// AssertSDF2 asserts the argument as a SDF2 implementation
// and returns the raw result. It provides readable errors beyond simply converting the interface.
func AssertSDF2(s bounder2) (SDF2, error) {
	if s == nil {
		return nil, errors.New("nil argument to AssertSDF2")
	}
	evaluator, ok := s.(SDF2)
	if !ok {
		return nil, fmt.Errorf("%T does not implement gleval.SDF2", s)
	}
	return evaluator, nil
}

// CPUSDF3 implements [SDF3] by evaluating on the CPU with its own [VecPool].
// It is not safe for concurrent use: use one CPUSDF3 per goroutine or pass
// a distinct VecPool as userData.
type CPUSDF3 struct {
	SDF SDF3
	vp  VecPool
}

// Evaluate performs CPU evaluation of the underlying SDF3.
func (sdf *CPUSDF3) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	if userData == nil {
		userData = &sdf.vp
	}
	err := sdf.SDF.Evaluate(pos, dist, userData)
	if err != nil {
		return err
	}
	return sdf.vp.AssertAllReleased()
}

// Bounds returns the SDF's bounding box such that all of the shape is contained within.
func (sdf *CPUSDF3) Bounds() ms3.Box { return sdf.SDF.Bounds() }

// VecPool returns the evaluator's buffer pool.
func (sdf *CPUSDF3) VecPool() *VecPool { return &sdf.vp }

// EvaluateNormalsCentralDiff evaluates the normals of the SDF at the given positions
// using central differences with the given step.
func (sdf *CPUSDF3) EvaluateNormalsCentralDiff(pos, normals []ms3.Vec, step float32) error {
	return NormalsCentralDiff(sdf.SDF, pos, normals, step, &sdf.vp)
}

// CPUSDF2 implements [SDF2] by evaluating on the CPU with its own [VecPool].
type CPUSDF2 struct {
	SDF SDF2
	vp  VecPool
}

// Evaluate performs CPU evaluation of the underlying SDF2.
func (sdf *CPUSDF2) Evaluate(pos []ms2.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	if userData == nil {
		userData = &sdf.vp
	}
	err := sdf.SDF.Evaluate(pos, dist, userData)
	if err != nil {
		return err
	}
	return sdf.vp.AssertAllReleased()
}

// Bounds returns the SDF's bounding box such that all of the shape is contained within.
func (sdf *CPUSDF2) Bounds() ms2.Box { return sdf.SDF.Bounds() }

// VecPool returns the evaluator's buffer pool.
func (sdf *CPUSDF2) VecPool() *VecPool { return &sdf.vp }

// GetVecPool asserts the userData as a VecPool. If assert fails then
// an error is returned with information on what went wrong.
func GetVecPool(userData any) (*VecPool, error) {
	switch v := userData.(type) {
	case *VecPool:
		if v == nil {
			return nil, errors.New("nil VecPool in userData")
		}
		return v, nil
	case interface{ VecPool() *VecPool }:
		vp := v.VecPool()
		if vp == nil {
			return nil, fmt.Errorf("%T returned nil VecPool", userData)
		}
		return vp, nil
	case nil:
		return nil, errors.New("nil userData, want *gleval.VecPool")
	}
	return nil, fmt.Errorf("want userData type *gleval.VecPool for CPU evaluations, got %T", userData)
}

// VecPool serves scratch buffers to SDF evaluators so that deep trees
// do not allocate on every evaluation. A VecPool is not safe for concurrent use.
type VecPool struct {
	V3    bufPool[ms3.Vec]
	V2    bufPool[ms2.Vec]
	Float bufPool[float32]
}

// AssertAllReleased checks all buffers were returned to the pool.
func (vp *VecPool) AssertAllReleased() error {
	err := vp.Float.assertAllReleased()
	if err != nil {
		return fmt.Errorf("Float: %w", err)
	}
	err = vp.V2.assertAllReleased()
	if err != nil {
		return fmt.Errorf("V2: %w", err)
	}
	err = vp.V3.assertAllReleased()
	if err != nil {
		return fmt.Errorf("V3: %w", err)
	}
	return nil
}

// TotalAlloc returns the number of buffers allocated over the pool's lifetime.
func (vp *VecPool) TotalAlloc() int {
	return len(vp.Float.ins) + len(vp.V2.ins) + len(vp.V3.ins)
}

type bufPool[T any] struct {
	ins      [][]T
	acquired []bool
}

// Acquire gets a buffer of the given length from the pool. The buffer contents are undefined.
func (bp *bufPool[T]) Acquire(length int) []T {
	for i, locked := range bp.acquired {
		if !locked && cap(bp.ins[i]) >= length {
			bp.acquired[i] = true
			return bp.ins[i][:length]
		}
	}
	newSlice := make([]T, length, max(length, 1))
	bp.ins = append(bp.ins, newSlice)
	bp.acquired = append(bp.acquired, true)
	return newSlice
}

// Release returns a buffer acquired from the pool. It fails if the buffer
// was not acquired from this pool or was released twice.
func (bp *bufPool[T]) Release(buf []T) error {
	if cap(buf) == 0 {
		return errors.New("release of zero capacity buffer")
	}
	ptr := &buf[:1][0]
	for i, instance := range bp.ins {
		if &instance[:1][0] == ptr {
			if !bp.acquired[i] {
				return errors.New("release of unacquired resource")
			}
			bp.acquired[i] = false
			return nil
		}
	}
	return errors.New("release of nonexistent resource")
}

func (bp *bufPool[T]) assertAllReleased() error {
	for _, locked := range bp.acquired {
		if locked {
			return errors.New("buffer not released")
		}
	}
	return nil
}
