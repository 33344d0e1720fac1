package raysdf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/epicx/raysdf/glbuild"
	"github.com/epicx/raysdf/gleval"
	"github.com/soypat/geometry/ms3"
)

// Scene is an immutable tree of primitive and combinator nodes evaluated as a
// single distance field. A Scene is safe for concurrent use.
type Scene struct {
	root      glbuild.Shader3D
	sdf       gleval.SDF3
	relaxed   bool
	lipschitz float32
	materials []int
	nodes     int
	pools     sync.Pool
}

// NewScene validates that every node of root can be evaluated on the CPU and returns the Scene.
func NewScene(root glbuild.Shader3D) (*Scene, error) {
	if root == nil {
		return nil, errors.New("raysdf: nil scene root")
	}
	sdf, err := gleval.AssertSDF3(root)
	if err != nil {
		return nil, err
	}
	sc := &Scene{root: root, sdf: sdf}
	nodes, err := glbuild.AppendAllNodes(nil, root)
	if err != nil {
		return nil, fmt.Errorf("raysdf: invalid scene tree: %w", err)
	}
	for _, node := range nodes {
		n3, ok := node.(glbuild.Shader3D)
		if !ok {
			continue // 2D children are evaluated through their 3D parents.
		}
		if _, err := gleval.AssertSDF3(n3); err != nil {
			return nil, err
		}
		if r, ok := node.(relaxer); ok && r.relaxesBound() {
			sc.relaxed = true
		}
	}
	sc.lipschitz = lipschitzBound(root)
	sc.materials = materialIDs(nodes)
	sc.nodes = len(nodes)
	sc.pools.New = func() any { return new(gleval.VecPool) }
	return sc, nil
}

// Distance evaluates the scene's distance field at a single point.
func (sc *Scene) Distance(p ms3.Vec) float32 {
	vp := sc.pools.Get().(*gleval.VecPool)
	d, err := gleval.EvaluateAt(sc.sdf, p, vp)
	sc.pools.Put(vp)
	if err != nil {
		// Unreachable for scenes built by Builder, NewScene checked all nodes.
		panic(err)
	}
	return d
}

// Evaluate implements [gleval.SDF3]. userData should carry a [gleval.VecPool];
// if nil a pooled one is used.
func (sc *Scene) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if userData != nil {
		return sc.sdf.Evaluate(pos, dist, userData)
	}
	vp := sc.pools.Get().(*gleval.VecPool)
	err := sc.sdf.Evaluate(pos, dist, vp)
	sc.pools.Put(vp)
	return err
}

// Bounds returns the bounding box of the scene's root node.
func (sc *Scene) Bounds() ms3.Box { return sc.root.Bounds() }

// Root returns the root node of the scene.
func (sc *Scene) Root() glbuild.Shader3D { return sc.root }

// BoundRelaxed reports whether the scene contains nodes, such as smooth blends,
// twists or bends, whose distance may overestimate the true distance.
// Ray marchers should shrink their steps when it is true.
func (sc *Scene) BoundRelaxed() bool { return sc.relaxed }

// Lipschitz returns an upper bound of the factor by which domain warps such
// as twists and bends stretch the scene's field. It is 1 for scenes without
// warps. Ray marchers stepping by the field's value divided by Lipschitz do not
// step past the surface.
func (sc *Scene) Lipschitz() float32 { return sc.lipschitz }

// lipschitzBound returns the largest product of warp stretch factors along any
// path from s to a leaf of its tree.
func lipschitzBound(s glbuild.Shader3D) float32 {
	var child float32 = 1
	s.ForEachChild(nil, func(_ any, c *glbuild.Shader3D) error {
		child = maxf(child, lipschitzBound(*c))
		return nil
	})
	if w, ok := s.(warper); ok {
		child *= w.lipschitz()
	}
	return child
}

// NumNodes returns the number of nodes in the scene tree.
func (sc *Scene) NumNodes() int { return sc.nodes }

func (sc *Scene) String() string {
	return glbuild.FormatShader(sc.root)
}
