package raysdf

import (
	"errors"
	"sort"

	"github.com/epicx/raysdf/glbuild"
	"github.com/epicx/raysdf/gleval"
	"github.com/soypat/geometry/ms3"
)

// NoMaterial is reported by [Scene.MaterialsAt] where the closest surface carries no material tag.
const NoMaterial = -1

// materialNudge is added to the distance of a tagged object to measure how
// much the scene's surface follows it.
const materialNudge = 1e-3

// WithMaterial tags s with the material index id. The tag does not modify the
// distance field, it is used by [Scene.MaterialsAt] to resolve which object a
// surface point belongs to.
func (bld *Builder) WithMaterial(s glbuild.Shader3D, id int) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("WithMaterial")
	}
	if id < 0 {
		bld.shapeErrorf("negative material id %d", id)
	}
	return &material{s: s, id: id}
}

type material struct {
	s  glbuild.Shader3D
	id int
}

func (m *material) Bounds() ms3.Box { return m.s.Bounds() }

func (m *material) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &m.s)
}

func (m *material) AppendShaderName(b []byte) []byte {
	b = append(b, "material"...)
	b = glbuild.AppendFloat(b, 'n', 'p', float32(m.id))
	b = append(b, '_')
	b = m.s.AppendShaderName(b)
	return b
}

func (m *material) AppendShaderBody(b []byte) []byte {
	b = append(b, "return "...)
	b = m.s.AppendShaderName(b)
	b = append(b, "(p);"...)
	return b
}

func (m *material) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	err := evaluateSDF3(m.s, pos, dist, userData)
	if err != nil {
		return err
	}
	if mask, ok := userData.(materialMask); ok && mask.nudged == m.id {
		for i := range dist[:len(pos)] {
			dist[i] += materialNudge
		}
	}
	return nil
}

// materialMask is passed as userData to nudge the distance of every object
// tagged with the nudged material. Buffers are served from vp.
type materialMask struct {
	vp     *gleval.VecPool
	nudged int
}

func (mm materialMask) VecPool() *gleval.VecPool { return mm.vp }

// materialIDs returns the distinct material ids tagged in nodes, which are in
// breadth first order. Ids are ordered by their deepest tag.
func materialIDs(nodes []glbuild.Shader) []int {
	last := make(map[int]int)
	var ids []int
	for i, node := range nodes {
		m, ok := node.(*material)
		if !ok {
			continue
		}
		if _, seen := last[m.id]; !seen {
			ids = append(ids, m.id)
		}
		last[m.id] = i
	}
	sort.SliceStable(ids, func(i, j int) bool { return last[ids[i]] < last[ids[j]] })
	return ids
}

// Materials returns the material ids tagged in the scene.
func (sc *Scene) Materials() []int {
	return append([]int(nil), sc.materials...)
}

// MaterialsAt stores in ids[i] the material of the object whose surface is
// closest to pos[i], which is the tagged object the scene's distance follows
// most closely there. Points whose closest surface is untagged get
// [NoMaterial]. When tags nest the innermost tag wins. Carved surfaces
// take the material of the carving object.
func (sc *Scene) MaterialsAt(ids []int, pos []ms3.Vec) error {
	if len(ids) != len(pos) {
		return errors.New("raysdf: ids and positions length mismatch")
	}
	for i := range ids {
		ids[i] = NoMaterial
	}
	if len(sc.materials) == 0 || len(pos) == 0 {
		return nil
	}
	vp := sc.pools.Get().(*gleval.VecPool)
	defer sc.pools.Put(vp)
	all := vp.Float.Acquire(len(pos))
	defer vp.Float.Release(all)
	nudged := vp.Float.Acquire(len(pos))
	defer vp.Float.Release(nudged)
	rise := vp.Float.Acquire(len(pos))
	defer vp.Float.Release(rise)
	err := sc.sdf.Evaluate(pos, all, vp)
	if err != nil {
		return err
	}
	for i := range rise {
		rise[i] = 0
	}
	for _, id := range sc.materials {
		err = sc.sdf.Evaluate(pos, nudged, materialMask{vp: vp, nudged: id})
		if err != nil {
			return err
		}
		for i := range pos {
			// Deeper tags come later and win ties with their ancestors.
			if r := absf(nudged[i] - all[i]); r > 0 && r >= rise[i] {
				rise[i] = r
				ids[i] = id
			}
		}
	}
	return nil
}
