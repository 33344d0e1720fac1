package raysdf

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf/glbuild"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// OpUnion2D is the result of [Builder.Union2D]. Exported so that callers can
// inspect the flattened elements, see [OpUnion].
type OpUnion2D struct {
	joined []glbuild.Shader2D
}

// Union2D joins the shapes of several 2D SDFs into one. Is exact.
// Union2D aggregates nested Union2D results into its own.
func (*Builder) Union2D(shaders ...glbuild.Shader2D) glbuild.Shader2D {
	if len(shaders) < 2 {
		panic("need at least 2 arguments to Union2D")
	}
	var U OpUnion2D
	for i, s := range shaders {
		if s == nil {
			panic(fmt.Sprintf("nil %d argument to Union2D", i))
		}
		if subU, ok := s.(*OpUnion2D); ok {
			U.joined = append(U.joined, subU.joined...)
		} else {
			U.joined = append(U.joined, s)
		}
	}
	return &U
}

// Len returns the number of flattened shapes in the union.
func (u *OpUnion2D) Len() int { return len(u.joined) }

// Bounds returns the union of all joined SDFs. Implements [glbuild.Shader2D] and [gleval.SDF2].
func (u *OpUnion2D) Bounds() ms2.Box {
	u.mustValidate()
	bb := u.joined[0].Bounds()
	for _, bb2 := range u.joined[1:] {
		bb = bb.Union(bb2.Bounds())
	}
	return bb
}

// ForEach2DChild implements [glbuild.Shader2D].
func (u *OpUnion2D) ForEach2DChild(userData any, fn func(userData any, s *glbuild.Shader2D) error) error {
	u.mustValidate()
	for i := range u.joined {
		err := fn(userData, &u.joined[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// AppendShaderName implements [glbuild.Shader].
func (u *OpUnion2D) AppendShaderName(b []byte) []byte {
	u.mustValidate()
	b = append(b, "union2D_"...)
	for i := range u.joined {
		b = u.joined[i].AppendShaderName(b)
		if i < len(u.joined)-1 {
			b = append(b, '_')
		}
	}
	return b
}

// AppendShaderBody implements [glbuild.Shader].
func (u *OpUnion2D) AppendShaderBody(b []byte) []byte {
	u.mustValidate()
	b = glbuild.AppendDistanceDecl(b, "d", "p", u.joined[0])
	for i := range u.joined[1:] {
		b = append(b, "d=min(d,"...)
		b = u.joined[i+1].AppendShaderName(b)
		b = append(b, "(p));\n"...)
	}
	b = append(b, "return d;"...)
	return b
}

func (u *OpUnion2D) mustValidate() {
	if len(u.joined) < 2 {
		panic("OpUnion2D must have at least 2 elements. Please prefer using Builder.Union2D over OpUnion2D")
	}
}

// Translate2D moves the SDF s in the given direction.
func (bld *Builder) Translate2D(s glbuild.Shader2D, dirX, dirY float32) glbuild.Shader2D {
	if s == nil {
		bld.nilsdf("Translate2D")
	}
	return &translate2D{s: s, p: ms2.Vec{X: dirX, Y: dirY}}
}

type translate2D struct {
	s glbuild.Shader2D
	p ms2.Vec
}

func (t *translate2D) Bounds() ms2.Box {
	return t.s.Bounds().Add(t.p)
}

func (t *translate2D) ForEach2DChild(userData any, fn func(userData any, s *glbuild.Shader2D) error) error {
	return fn(userData, &t.s)
}

func (t *translate2D) AppendShaderName(b []byte) []byte {
	b = append(b, "translate2D"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', t.p.X, t.p.Y)
	b = append(b, '_')
	b = t.s.AppendShaderName(b)
	return b
}

func (t *translate2D) AppendShaderBody(b []byte) []byte {
	b = append(b, "return "...)
	b = t.s.AppendShaderName(b)
	b = append(b, "(p-vec2("...)
	b = glbuild.AppendFloats(b, ',', '-', '.', t.p.X, t.p.Y)
	b = append(b, "));"...)
	return b
}

// Annulus makes a 2D shape hollow, leaving a ring of thickness 2*sub centered on the contour.
// Is exact.
func (bld *Builder) Annulus(s glbuild.Shader2D, sub float32) glbuild.Shader2D {
	if s == nil {
		bld.nilsdf("Annulus")
	}
	if sub <= 0 {
		bld.shapeErrorf("zero or negative annulus thickness %v", sub)
	}
	return &annulus2D{s: s, r: sub}
}

type annulus2D struct {
	s glbuild.Shader2D
	r float32
}

func (a *annulus2D) Bounds() ms2.Box {
	bb := a.s.Bounds()
	bb.Max = ms2.AddScalar(a.r, bb.Max)
	bb.Min = ms2.AddScalar(-a.r, bb.Min)
	return bb
}

func (a *annulus2D) ForEach2DChild(userData any, fn func(userData any, s *glbuild.Shader2D) error) error {
	return fn(userData, &a.s)
}

func (a *annulus2D) AppendShaderName(b []byte) []byte {
	b = append(b, "annulus2D"...)
	b = glbuild.AppendFloat(b, 'n', 'p', a.r)
	b = append(b, '_')
	b = a.s.AppendShaderName(b)
	return b
}

func (a *annulus2D) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "r", a.r)
	b = glbuild.AppendDistanceDecl(b, "d", "p", a.s)
	b = append(b, "return abs(d)-r;"...)
	return b
}

// Extrude converts a 2D SDF into a 3D extrusion along Z. Extrudes half of h
// in the positive and negative Z direction. Is exact.
func (bld *Builder) Extrude(s glbuild.Shader2D, h float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Extrude")
	}
	if h <= 0 {
		bld.shapeErrorf("zero or negative extrusion length %v", h)
	}
	return &extrusion{s: s, h: h}
}

type extrusion struct {
	s glbuild.Shader2D
	h float32
}

func (e *extrusion) Bounds() ms3.Box {
	b2 := e.s.Bounds()
	hd2 := e.h / 2
	return ms3.Box{
		Min: ms3.Vec{X: b2.Min.X, Y: b2.Min.Y, Z: -hd2},
		Max: ms3.Vec{X: b2.Max.X, Y: b2.Max.Y, Z: hd2},
	}
}

func (e *extrusion) ForEach2DChild(userData any, fn func(userData any, s *glbuild.Shader2D) error) error {
	return fn(userData, &e.s)
}

func (e *extrusion) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (e *extrusion) AppendShaderName(b []byte) []byte {
	b = append(b, "extrusion"...)
	b = glbuild.AppendFloat(b, 'n', 'p', e.h)
	b = append(b, '_')
	b = e.s.AppendShaderName(b)
	return b
}

func (e *extrusion) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "h", e.h/2)
	b = glbuild.AppendDistanceDecl(b, "d", "p.xy", e.s)
	b = append(b, `vec2 w = vec2( d, abs(p.z) - h );
return min(max(w.x,w.y),0.0) + length(max(w,0.0));`...)
	return b
}

// Revolve revolves a 2D SDF around the Y axis, offsetting the axis of revolution by axisOffset.
func (bld *Builder) Revolve(s glbuild.Shader2D, axisOffset float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Revolve")
	}
	if axisOffset < 0 {
		bld.shapeErrorf("negative revolution axis offset %v", axisOffset)
	}
	return &revolution{s2d: s, off: axisOffset}
}

type revolution struct {
	s2d glbuild.Shader2D
	off float32
}

func (r *revolution) Bounds() ms3.Box {
	b2 := r.s2d.Bounds()
	radius := math32.Max(0, math32.Max(b2.Max.X, -b2.Min.X)+r.off)
	return ms3.Box{
		Min: ms3.Vec{X: -radius, Y: b2.Min.Y, Z: -radius},
		Max: ms3.Vec{X: radius, Y: b2.Max.Y, Z: radius},
	}
}

func (r *revolution) ForEach2DChild(userData any, fn func(userData any, s *glbuild.Shader2D) error) error {
	return fn(userData, &r.s2d)
}

func (r *revolution) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (r *revolution) AppendShaderName(b []byte) []byte {
	b = append(b, "revolution"...)
	b = glbuild.AppendFloat(b, 'n', 'p', r.off)
	b = append(b, '_')
	b = r.s2d.AppendShaderName(b)
	return b
}

func (r *revolution) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "w", r.off)
	b = append(b, "vec2 q = vec2( length(p.xz) - w, p.y );\n"...)
	b = glbuild.AppendDistanceDecl(b, "d", "q", r.s2d)
	b = append(b, "return d;"...)
	return b
}
