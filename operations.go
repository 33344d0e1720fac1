package raysdf

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf/glbuild"
	"github.com/soypat/geometry/ms3"
)

// OpUnion is the result of the [Builder.Union] operation. Prefer using [Builder.Union] to using this type directly.
//
// Normally primitives and results of operations in this package are
// not exported since their concrete type provides relatively little value.
// The result of Union is the exception to the rule since it is the
// most common operation to perform on SDFs: scenes are usually a
// union of many objects and users may want to traverse it to
// cull or section objects by their bounding boxes.
type OpUnion struct {
	// joined contains 2 or more 3D SDFs.
	// OpUnion methods will panic if joined less than 2 elements.
	joined []glbuild.Shader3D
}

// Union joins the shapes of several 3D SDFs into one. Is exact.
// Union aggregates nested Union results into its own.
func (bld *Builder) Union(shaders ...glbuild.Shader3D) glbuild.Shader3D {
	if len(shaders) < 2 {
		panic("need at least 2 arguments to Union")
	}
	var U OpUnion
	for i, s := range shaders {
		if s == nil {
			bld.nilsdf(fmt.Sprintf("nil arg[%d] to Union", i))
		}
		if subU, ok := s.(*OpUnion); ok {
			// Discard nested union elements and join their elements.
			// Results in much smaller and readable GLSL code.
			U.joined = append(U.joined, subU.joined...)
		} else {
			U.joined = append(U.joined, s)
		}
	}
	return &U
}

// Len returns the number of shapes joined by the union.
func (u *OpUnion) Len() int { return len(u.joined) }

// Bounds returns the union of all joined SDFs. Implements [glbuild.Shader3D] and [gleval.SDF3].
func (u *OpUnion) Bounds() ms3.Box {
	u.mustValidate()
	bb := u.joined[0].Bounds()
	for _, bb2 := range u.joined[1:] {
		bb = bb.Union(bb2.Bounds())
	}
	return bb
}

// ForEachChild implements [glbuild.Shader3D].
func (u *OpUnion) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
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
func (u *OpUnion) AppendShaderName(b []byte) []byte {
	u.mustValidate()
	b = append(b, "union_"...)
	for i := range u.joined {
		b = u.joined[i].AppendShaderName(b)
		if i < len(u.joined)-1 {
			b = append(b, '_')
		}
	}
	return b
}

// AppendShaderBody implements [glbuild.Shader].
func (u *OpUnion) AppendShaderBody(b []byte) []byte {
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

func (u *OpUnion) mustValidate() {
	if len(u.joined) < 2 {
		panic("OpUnion must have at least 2 elements. please prefer using Builder.Union over OpUnion")
	}
}

// Difference is the SDF difference of a-b, max(a,-b). Does not produce an exact SDF
// but remains a valid distance bound.
func (bld *Builder) Difference(a, b glbuild.Shader3D) glbuild.Shader3D {
	if a == nil || b == nil {
		bld.nilsdf("Difference")
	}
	return &diff{s1: a, s2: b}
}

type diff struct {
	s1, s2 glbuild.Shader3D // Performs s1-s2.
}

func (u *diff) Bounds() ms3.Box {
	return u.s1.Bounds()
}

func (s *diff) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	err := fn(userData, &s.s1)
	if err != nil {
		return err
	}
	return fn(userData, &s.s2)
}

func (s *diff) AppendShaderName(b []byte) []byte {
	b = append(b, "diff_"...)
	b = s.s1.AppendShaderName(b)
	b = append(b, '_')
	b = s.s2.AppendShaderName(b)
	return b
}

func (s *diff) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendDistanceDecl(b, "a", "p", s.s1)
	b = glbuild.AppendDistanceDecl(b, "b", "p", s.s2)
	b = append(b, "return max(a,-b);"...)
	return b
}

// Intersection is the SDF intersection of a ^ b, max(a,b). Does not produce an exact SDF
// but remains a valid distance bound.
func (bld *Builder) Intersection(a, b glbuild.Shader3D) glbuild.Shader3D {
	if a == nil || b == nil {
		bld.nilsdf("Intersection")
	}
	return &intersect{s1: a, s2: b}
}

type intersect struct {
	s1, s2 glbuild.Shader3D // Performs s1 ^ s2.
}

func (u *intersect) Bounds() ms3.Box {
	return u.s1.Bounds().Intersect(u.s2.Bounds())
}

func (s *intersect) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	err := fn(userData, &s.s1)
	if err != nil {
		return err
	}
	return fn(userData, &s.s2)
}

func (s *intersect) AppendShaderName(b []byte) []byte {
	b = append(b, "intersect_"...)
	b = s.s1.AppendShaderName(b)
	b = append(b, '_')
	b = s.s2.AppendShaderName(b)
	return b
}

func (s *intersect) AppendShaderBody(b []byte) []byte {
	b = append(b, "return max("...)
	b = s.s1.AppendShaderName(b)
	b = append(b, "(p),"...)
	b = s.s2.AppendShaderName(b)
	b = append(b, "(p));"...)
	return b
}

// Xor is the mutually exclusive boolean operation and results in an exact SDF.
func (bld *Builder) Xor(s1, s2 glbuild.Shader3D) glbuild.Shader3D {
	if s1 == nil || s2 == nil {
		bld.nilsdf("nil argument to Xor")
	}
	return &xor{s1: s1, s2: s2}
}

type xor struct {
	s1, s2 glbuild.Shader3D
}

func (u *xor) Bounds() ms3.Box {
	return u.s1.Bounds().Union(u.s2.Bounds())
}

func (s *xor) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	err := fn(userData, &s.s1)
	if err != nil {
		return err
	}
	return fn(userData, &s.s2)
}

func (s *xor) AppendShaderName(b []byte) []byte {
	b = append(b, "xor_"...)
	b = s.s1.AppendShaderName(b)
	b = append(b, '_')
	b = s.s2.AppendShaderName(b)
	return b
}

func (s *xor) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendDistanceDecl(b, "d1", "(p)", s.s1)
	b = glbuild.AppendDistanceDecl(b, "d2", "(p)", s.s2)
	b = append(b, "return max(min(d1,d2),-max(d1,d2));"...)
	return b
}

// SmoothUnion joins the shapes of two shaders into one with a smoothing blend of radius k.
// k must be positive. The result is not a strict distance bound near the blend.
func (bld *Builder) SmoothUnion(k float32, s1, s2 glbuild.Shader3D) glbuild.Shader3D {
	if s1 == nil || s2 == nil {
		bld.nilsdf("SmoothUnion")
	}
	if !(k > 0) {
		bld.shapeErrorf("SmoothUnion blend k=%v must be positive", k)
	}
	return &smoothUnion{s1: s1, s2: s2, k: k}
}

type smoothUnion struct {
	s1, s2 glbuild.Shader3D
	k      float32
}

func (s *smoothUnion) relaxesBound() bool { return true }

func (s *smoothUnion) Bounds() ms3.Box {
	return s.s1.Bounds().Union(s.s2.Bounds())
}

func (s *smoothUnion) ForEachChild(userData any, fn func(any, *glbuild.Shader3D) error) error {
	err := fn(userData, &s.s1)
	if err != nil {
		return err
	}
	return fn(userData, &s.s2)
}

func (s *smoothUnion) AppendShaderName(b []byte) []byte {
	b = append(b, "smoothUnion_"...)
	b = glbuild.AppendFloat(b, 'n', 'd', s.k)
	b = append(b, '_')
	b = s.s1.AppendShaderName(b)
	b = append(b, '_')
	b = s.s2.AppendShaderName(b)
	return b
}

func (s *smoothUnion) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendDistanceDecl(b, "d1", "p", s.s1)
	b = glbuild.AppendDistanceDecl(b, "d2", "p", s.s2)
	b = glbuild.AppendFloatDecl(b, "k", s.k)
	b = append(b, `float h = clamp( 0.5 + 0.5*(d2-d1)/k, 0.0, 1.0 );
return mix( d2, d1, h ) - k*h*(1.0-h);`...)
	return b
}

// SmoothDifference performs the difference of two SDFs with a smoothing parameter k, which must be positive.
func (bld *Builder) SmoothDifference(k float32, s1, s2 glbuild.Shader3D) glbuild.Shader3D {
	if s1 == nil || s2 == nil {
		bld.nilsdf("SmoothDifference")
	}
	if !(k > 0) {
		bld.shapeErrorf("SmoothDifference blend k=%v must be positive", k)
	}
	return &smoothDiff{diff: diff{s1: s1, s2: s2}, k: k}
}

type smoothDiff struct {
	diff
	k float32
}

func (s *smoothDiff) relaxesBound() bool { return true }

func (s *smoothDiff) AppendShaderName(b []byte) []byte {
	b = append(b, "smoothDiff"...)
	b = glbuild.AppendFloat(b, 'n', 'd', s.k)
	b = append(b, '_')
	b = s.s1.AppendShaderName(b)
	b = append(b, '_')
	b = s.s2.AppendShaderName(b)
	return b
}

func (s *smoothDiff) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendDistanceDecl(b, "d1", "p", s.s1)
	b = glbuild.AppendDistanceDecl(b, "d2", "p", s.s2)
	b = glbuild.AppendFloatDecl(b, "k", s.k)
	b = append(b, `float h = clamp( 0.5 - 0.5*(d2+d1)/k, 0.0, 1.0 );
return mix( d1, -d2, h ) + k*h*(1.0-h);`...)
	return b
}

// SmoothIntersection performs the intersection of two SDFs with a smoothing parameter k, which must be positive.
func (bld *Builder) SmoothIntersection(k float32, s1, s2 glbuild.Shader3D) glbuild.Shader3D {
	if s1 == nil || s2 == nil {
		bld.nilsdf("SmoothIntersection")
	}
	if !(k > 0) {
		bld.shapeErrorf("SmoothIntersection blend k=%v must be positive", k)
	}
	return &smoothIntersect{intersect: intersect{s1: s1, s2: s2}, k: k}
}

type smoothIntersect struct {
	intersect
	k float32
}

func (s *smoothIntersect) relaxesBound() bool { return true }

func (s *smoothIntersect) AppendShaderName(b []byte) []byte {
	b = append(b, "smoothIntersect"...)
	b = glbuild.AppendFloat(b, 'n', 'd', s.k)
	b = append(b, '_')
	b = s.s1.AppendShaderName(b)
	b = append(b, '_')
	b = s.s2.AppendShaderName(b)
	return b
}

func (s *smoothIntersect) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendDistanceDecl(b, "d1", "p", s.s1)
	b = glbuild.AppendDistanceDecl(b, "d2", "p", s.s2)
	b = glbuild.AppendFloatDecl(b, "k", s.k)
	b = append(b, `float h = clamp( 0.5 - 0.5*(d2-d1)/k, 0.0, 1.0 );
return mix( d2, d1, h ) + k*h*(1.0-h);`...)
	return b
}

// Translate moves the SDF s in the given direction (dirX, dirY, dirZ) and returns the result.
func (bld *Builder) Translate(s glbuild.Shader3D, dirX, dirY, dirZ float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Translate")
	}
	return &translate{s: s, p: ms3.Vec{X: dirX, Y: dirY, Z: dirZ}}
}

type translate struct {
	s glbuild.Shader3D
	p ms3.Vec
}

func (u *translate) Bounds() ms3.Box {
	return u.s.Bounds().Add(u.p)
}

func (s *translate) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &s.s)
}

func (s *translate) AppendShaderName(b []byte) []byte {
	b = append(b, "translate"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', s.p.X, s.p.Y, s.p.Z)
	b = append(b, '_')
	b = s.s.AppendShaderName(b)
	return b
}

func (s *translate) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendVec3Decl(b, "t", s.p)
	b = append(b, "return "...)
	b = s.s.AppendShaderName(b)
	b = append(b, "(p-t);"...)
	return b
}

// Scale scales s by scaleFactor around the origin. Is exact for exact s.
func (bld *Builder) Scale(s glbuild.Shader3D, scaleFactor float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Scale")
	}
	if !(scaleFactor > epstol) {
		bld.shapeErrorf("zero or negative scale factor %v", scaleFactor)
	}
	return &scale{s: s, scale: scaleFactor}
}

type scale struct {
	s     glbuild.Shader3D
	scale float32
}

func (u *scale) Bounds() ms3.Box {
	b := u.s.Bounds()
	return ms3.Box{Min: ms3.Scale(u.scale, b.Min), Max: ms3.Scale(u.scale, b.Max)}
}

func (s *scale) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &s.s)
}

func (s *scale) AppendShaderName(b []byte) []byte {
	b = append(b, "scale"...)
	b = glbuild.AppendFloat(b, 'n', 'p', s.scale)
	b = append(b, '_')
	b = s.s.AppendShaderName(b)
	return b
}

func (s *scale) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "s", s.scale)
	b = append(b, "return "...)
	b = s.s.AppendShaderName(b)
	b = append(b, "(p/s)*s;"...)
	return b
}

// Rotate rotates s by radians around axis following the right hand rule. Is exact.
func (bld *Builder) Rotate(s glbuild.Shader3D, radians float32, axis ms3.Vec) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Rotate")
	}
	n := ms3.Norm(axis)
	if n < epstol {
		bld.shapeErrorf("null rotation axis")
		axis, n = ms3.Vec{Y: 1}, 1
	}
	axis = ms3.Scale(1/n, axis)
	sin, cos := math32.Sincos(radians)
	t := 1 - cos
	x, y, z := axis.X, axis.Y, axis.Z
	// Rodrigues' rotation formula in row major form.
	m := [9]float32{
		t*x*x + cos, t*x*y - sin*z, t*x*z + sin*y,
		t*x*y + sin*z, t*y*y + cos, t*y*z - sin*x,
		t*x*z - sin*y, t*y*z + sin*x, t*z*z + cos,
	}
	return &rotate{s: s, rot: m, angle: radians, axis: axis}
}

type rotate struct {
	s     glbuild.Shader3D
	rot   [9]float32 // Rotates points from child space into world space.
	angle float32
	axis  ms3.Vec
}

// inv rotates a world space point into the child's space.
func (r *rotate) inv(p ms3.Vec) ms3.Vec {
	m := &r.rot
	return ms3.Vec{
		X: m[0]*p.X + m[3]*p.Y + m[6]*p.Z,
		Y: m[1]*p.X + m[4]*p.Y + m[7]*p.Z,
		Z: m[2]*p.X + m[5]*p.Y + m[8]*p.Z,
	}
}

func (r *rotate) fwd(p ms3.Vec) ms3.Vec {
	m := &r.rot
	return ms3.Vec{
		X: m[0]*p.X + m[1]*p.Y + m[2]*p.Z,
		Y: m[3]*p.X + m[4]*p.Y + m[5]*p.Z,
		Z: m[6]*p.X + m[7]*p.Y + m[8]*p.Z,
	}
}

func (r *rotate) Bounds() ms3.Box {
	bb := r.s.Bounds()
	var out ms3.Box
	for i := 0; i < 8; i++ {
		corner := bb.Min
		if i&1 != 0 {
			corner.X = bb.Max.X
		}
		if i&2 != 0 {
			corner.Y = bb.Max.Y
		}
		if i&4 != 0 {
			corner.Z = bb.Max.Z
		}
		c := r.fwd(corner)
		if i == 0 {
			out = ms3.Box{Min: c, Max: c}
			continue
		}
		out.Min = ms3.MinElem(out.Min, c)
		out.Max = ms3.MaxElem(out.Max, c)
	}
	return out
}

func (r *rotate) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &r.s)
}

func (r *rotate) AppendShaderName(b []byte) []byte {
	b = append(b, "rotate"...)
	// Hash floats so that name is not too long.
	b = glbuild.AppendFloat(b, 'n', 'p', hashf([]float32{r.angle, r.axis.X, r.axis.Y, r.axis.Z}))
	b = append(b, '_')
	b = r.s.AppendShaderName(b)
	return b
}

func (r *rotate) AppendShaderBody(b []byte) []byte {
	// Row major rotation is the transpose of GL's column major interpretation, which is the inverse we need.
	var transposed [9]float32
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			transposed[i*3+j] = r.rot[j*3+i]
		}
	}
	b = glbuild.AppendMat3Decl(b, "invR", transposed)
	b = append(b, "return "...)
	b = r.s.AppendShaderName(b)
	b = append(b, "(invR*p);"...)
	return b
}

// Symmetry reflects the SDF around one or more cartesian planes.
func (bld *Builder) Symmetry(s glbuild.Shader3D, mirrorX, mirrorY, mirrorZ bool) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Symmetry")
	}
	if !mirrorX && !mirrorY && !mirrorZ {
		bld.shapeErrorf("ineffective symmetry")
	}
	return &symmetry{s: s, xyz: glbuild.NewXYZBits(mirrorX, mirrorY, mirrorZ)}
}

type symmetry struct {
	s   glbuild.Shader3D
	xyz glbuild.XYZBits
}

func (u *symmetry) Bounds() ms3.Box {
	box := u.s.Bounds()
	if u.xyz.X() {
		box.Max.X = maxf(box.Max.X, -box.Min.X)
		box.Min.X = -box.Max.X
	}
	if u.xyz.Y() {
		box.Max.Y = maxf(box.Max.Y, -box.Min.Y)
		box.Min.Y = -box.Max.Y
	}
	if u.xyz.Z() {
		box.Max.Z = maxf(box.Max.Z, -box.Min.Z)
		box.Min.Z = -box.Max.Z
	}
	return box
}

func (s *symmetry) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &s.s)
}

func (s *symmetry) AppendShaderName(b []byte) []byte {
	b = append(b, "symmetry"...)
	b = s.xyz.AppendMapped_xyz(b)
	b = append(b, '_')
	b = s.s.AppendShaderName(b)
	return b
}

func (s *symmetry) AppendShaderBody(b []byte) []byte {
	b = append(b, "p."...)
	b = s.xyz.AppendMapped_xyz(b)
	b = append(b, "=abs(p."...)
	b = s.xyz.AppendMapped_xyz(b)
	b = append(b, ");\nreturn "...)
	b = s.s.AppendShaderName(b)
	b = append(b, "(p);"...)
	return b
}

// Repeat is the infinite domain repetition operation. Space is tiled with cells of the given
// period centered around the origin. A zero period component disables repetition along that axis.
// The child should fit inside a cell for the result to remain a valid distance bound.
func (bld *Builder) Repeat(s glbuild.Shader3D, periodX, periodY, periodZ float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Repeat")
	}
	if periodX < 0 || periodY < 0 || periodZ < 0 {
		bld.shapeErrorf("negative repeat period (%v,%v,%v)", periodX, periodY, periodZ)
	} else if periodX == 0 && periodY == 0 && periodZ == 0 {
		bld.shapeErrorf("ineffective repeat")
	}
	return &repeat{s: s, period: ms3.Vec{X: periodX, Y: periodY, Z: periodZ}}
}

// RepeatLimited repeats s with the given period clamping the cell index to [-limit, limit]
// along each axis, producing (2*limit+1) instances per axis instead of infinite tiling.
func (bld *Builder) RepeatLimited(s glbuild.Shader3D, period, limit ms3.Vec) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("RepeatLimited")
	}
	if period.X < 0 || period.Y < 0 || period.Z < 0 {
		bld.shapeErrorf("negative repeat period %v", period)
	}
	if limit.X < 0 || limit.Y < 0 || limit.Z < 0 {
		bld.shapeErrorf("negative repeat limit %v", limit)
	}
	limit = ms3.RoundElem(limit)
	return &repeat{s: s, period: period, limit: limit, limited: true}
}

type repeat struct {
	s       glbuild.Shader3D
	period  ms3.Vec
	limit   ms3.Vec
	limited bool
}

// cell returns the query point mapped into the cell closest to the origin.
func (r *repeat) cell(p ms3.Vec) ms3.Vec {
	return ms3.Vec{
		X: r.cellAxis(p.X, r.period.X, r.limit.X),
		Y: r.cellAxis(p.Y, r.period.Y, r.limit.Y),
		Z: r.cellAxis(p.Z, r.period.Z, r.limit.Z),
	}
}

func (r *repeat) cellAxis(v, period, limit float32) float32 {
	if period == 0 {
		return v
	}
	id := math32.Round(v / period)
	if r.limited {
		id = clampf(id, -limit, limit)
	}
	return v - period*id
}

func (r *repeat) Bounds() ms3.Box {
	bb := r.s.Bounds()
	grow := func(min, max *float32, period, limit float32) {
		switch {
		case period == 0:
		case !r.limited:
			*min, *max = -largenum, largenum
		default:
			*min -= period * limit
			*max += period * limit
		}
	}
	grow(&bb.Min.X, &bb.Max.X, r.period.X, r.limit.X)
	grow(&bb.Min.Y, &bb.Max.Y, r.period.Y, r.limit.Y)
	grow(&bb.Min.Z, &bb.Max.Z, r.period.Z, r.limit.Z)
	return bb
}

func (r *repeat) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &r.s)
}

func (r *repeat) AppendShaderName(b []byte) []byte {
	b = append(b, "repeat"...)
	b = glbuild.AppendFloats(b, 'q', 'n', 'p', r.period.X, r.period.Y, r.period.Z)
	if r.limited {
		b = append(b, "lim"...)
		b = glbuild.AppendFloats(b, 'q', 'n', 'p', r.limit.X, r.limit.Y, r.limit.Z)
	}
	b = append(b, '_')
	b = r.s.AppendShaderName(b)
	return b
}

func (r *repeat) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendVec3Decl(b, "s", r.period)
	// Zero period axes use a unit divisor and a zero mask so that they are left untouched.
	mask := ms3.Vec{X: b2f(r.period.X != 0), Y: b2f(r.period.Y != 0), Z: b2f(r.period.Z != 0)}
	b = glbuild.AppendVec3Decl(b, "m", mask)
	b = append(b, "vec3 id = m*round(p/(s+1.0-m));\n"...)
	if r.limited {
		b = glbuild.AppendVec3Decl(b, "l", r.limit)
		b = append(b, "id = clamp(id,-l,l);\n"...)
	}
	b = append(b, "return "...)
	b = r.s.AppendShaderName(b)
	b = append(b, "(p-s*id);"...)
	return b
}

func b2f(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// Twist rotates each horizontal slice of s around the y axis by an angle of k*y radians.
// The result is not a strict distance bound: dividing it by the Lipschitz bound of
// the node, see [Scene.Lipschitz], yields one. Larger |k| requires smaller ray steps.
func (bld *Builder) Twist(s glbuild.Shader3D, k float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Twist")
	}
	if math32.IsNaN(k) || math32.IsInf(k, 0) {
		bld.shapeErrorf("invalid twist rate %v", k)
	}
	return &twist{s: s, k: k}
}

type twist struct {
	s glbuild.Shader3D
	k float32
}

func (t *twist) relaxesBound() bool { return true }

// lipschitz bounds the stretch of the warp inside the child's bounding
// cylinder. The Jacobian there is a shear of magnitude |k|*r orthogonal to y.
func (t *twist) lipschitz() float32 {
	return shearStretch(absf(t.k) * t.radius())
}

// shearStretch returns the largest singular value of a shear of magnitude s.
func shearStretch(s float32) float32 {
	return (s + math32.Sqrt(s*s+4)) / 2
}

// radius is the radius of the child's bounding cylinder around the y axis.
func (t *twist) radius() float32 {
	bb := t.s.Bounds()
	return cornerRadius(bb.Min.X, bb.Max.X, bb.Min.Z, bb.Max.Z)
}

func (t *twist) Bounds() ms3.Box {
	bb := t.s.Bounds()
	// Twist preserves the distance to the y axis.
	r := t.radius()
	return ms3.Box{
		Min: ms3.Vec{X: -r, Y: bb.Min.Y, Z: -r},
		Max: ms3.Vec{X: r, Y: bb.Max.Y, Z: r},
	}
}

func (t *twist) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &t.s)
}

func (t *twist) AppendShaderName(b []byte) []byte {
	b = append(b, "twist"...)
	b = glbuild.AppendFloat(b, 'n', 'p', t.k)
	b = append(b, '_')
	b = t.s.AppendShaderName(b)
	return b
}

func (t *twist) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "k", t.k)
	b = glbuild.AppendFloatDecl(b, "r0", t.radius())
	b = glbuild.AppendFloatDecl(b, "l0", t.lipschitz())
	b = append(b, `float c = cos(k*p.y);
float s = sin(k*p.y);
vec3 q = vec3(c*p.x-s*p.z, p.y, s*p.x+c*p.z);
float d = `...)
	b = t.s.AppendShaderName(b)
	b = append(b, `(q);
float r = length(p.xz);
if (r>r0 && d>0.0) {
	float sh = abs(k)*r;
	d *= 2.0*l0/(sh+sqrt(sh*sh+4.0));
}
return d;`...)
	return b
}

// Bend bends s in the xy plane by rotating each point by an angle of k*x radians around the z axis.
// The result is not a strict distance bound, see [Builder.Twist].
func (bld *Builder) Bend(s glbuild.Shader3D, k float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Bend")
	}
	if math32.IsNaN(k) || math32.IsInf(k, 0) {
		bld.shapeErrorf("invalid bend rate %v", k)
	}
	return &bend{s: s, k: k}
}

type bend struct {
	s glbuild.Shader3D
	k float32
}

func (bn *bend) relaxesBound() bool { return true }

func (bn *bend) lipschitz() float32 {
	return 1 + absf(bn.k)*bn.radius()
}

// radius is the radius of the child's bounding cylinder around the z axis.
func (bn *bend) radius() float32 {
	bb := bn.s.Bounds()
	return cornerRadius(bb.Min.X, bb.Max.X, bb.Min.Y, bb.Max.Y)
}

func (bn *bend) Bounds() ms3.Box {
	bb := bn.s.Bounds()
	// Bend preserves the distance to the z axis.
	r := bn.radius()
	return ms3.Box{
		Min: ms3.Vec{X: -r, Y: -r, Z: bb.Min.Z},
		Max: ms3.Vec{X: r, Y: r, Z: bb.Max.Z},
	}
}

func (bn *bend) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &bn.s)
}

func (bn *bend) AppendShaderName(b []byte) []byte {
	b = append(b, "bend"...)
	b = glbuild.AppendFloat(b, 'n', 'p', bn.k)
	b = append(b, '_')
	b = bn.s.AppendShaderName(b)
	return b
}

func (bn *bend) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "k", bn.k)
	b = glbuild.AppendFloatDecl(b, "r0", bn.radius())
	b = glbuild.AppendFloatDecl(b, "l0", bn.lipschitz())
	b = append(b, `float c = cos(k*p.x);
float s = sin(k*p.x);
vec3 q = vec3(c*p.x-s*p.y, s*p.x+c*p.y, p.z);
float d = `...)
	b = bn.s.AppendShaderName(b)
	b = append(b, `(q);
float r = length(p.xy);
if (r>r0 && d>0.0) d *= l0/(1.0+abs(k)*r);
return d;`...)
	return b
}

// Round subtracts radius from the SDF, inflating the shape and rounding its edges.
// radius must be non-negative.
func (bld *Builder) Round(s glbuild.Shader3D, radius float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Round")
	}
	if radius < 0 {
		bld.shapeErrorf("negative round radius %v", radius)
	}
	return &offset{s: s, off: -radius}
}

// Offset adds sdfAdd to the entire argument SDF. If sdfAdd is negative this will
// round edges and increase the dimension of flat surfaces of the SDF by the absolute magnitude.
func (bld *Builder) Offset(s glbuild.Shader3D, sdfAdd float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Offset")
	}
	return &offset{s: s, off: sdfAdd}
}

type offset struct {
	s   glbuild.Shader3D
	off float32
}

func (u *offset) Bounds() ms3.Box {
	bb := u.s.Bounds()
	bb.Max = ms3.AddScalar(-u.off, bb.Max)
	bb.Min = ms3.AddScalar(u.off, bb.Min)
	return bb.Canon()
}

func (s *offset) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &s.s)
}

func (s *offset) AppendShaderName(b []byte) []byte {
	b = append(b, "offset"...)
	b = glbuild.AppendFloat(b, 'n', 'p', s.off)
	b = append(b, '_')
	b = s.s.AppendShaderName(b)
	return b
}

func (s *offset) AppendShaderBody(b []byte) []byte {
	b = append(b, "return "...)
	b = s.s.AppendShaderName(b)
	b = append(b, "(p)+("...)
	b = glbuild.AppendFloat(b, '-', '.', s.off)
	b = append(b, ')', ';')
	return b
}

// Shell carves the interior of the SDF leaving a shell of the given thickness
// around the original surface, |d|-thickness. Also known as onion.
func (bld *Builder) Shell(s glbuild.Shader3D, thickness float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Shell")
	}
	if !(thickness > 0) {
		bld.shapeErrorf("zero or negative shell thickness %v", thickness)
	}
	return &shell{s: s, thick: thickness}
}

type shell struct {
	s     glbuild.Shader3D
	thick float32
}

func (u *shell) Bounds() ms3.Box {
	bb := u.s.Bounds()
	bb.Max = ms3.AddScalar(u.thick, bb.Max)
	bb.Min = ms3.AddScalar(-u.thick, bb.Min)
	return bb
}

func (s *shell) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &s.s)
}

func (s *shell) AppendShaderName(b []byte) []byte {
	b = append(b, "shell"...)
	b = glbuild.AppendFloat(b, 'n', 'p', s.thick)
	b = append(b, '_')
	b = s.s.AppendShaderName(b)
	return b
}

func (s *shell) AppendShaderBody(b []byte) []byte {
	b = append(b, "return abs("...)
	b = s.s.AppendShaderName(b)
	b = append(b, "(p))-"...)
	b = glbuild.AppendFloat(b, '-', '.', s.thick)
	b = append(b, ';')
	return b
}

// Elongate "stretches" the SDF by splitting it at the origin and inserting
// h worth of extruded cross section along each axis on both sides.
// Arguments are half-distances, so zero-valued arguments are no-op.
func (bld *Builder) Elongate(s glbuild.Shader3D, hx, hy, hz float32) glbuild.Shader3D {
	if s == nil {
		bld.nilsdf("Elongate")
	}
	if hx < 0 || hy < 0 || hz < 0 {
		bld.shapeErrorf("negative elongation (%v,%v,%v)", hx, hy, hz)
	}
	return &elongate{s: s, h: ms3.Vec{X: hx, Y: hy, Z: hz}}
}

type elongate struct {
	s glbuild.Shader3D
	h ms3.Vec
}

func (u *elongate) Bounds() ms3.Box {
	box := u.s.Bounds()
	box.Max = ms3.Add(box.Max, u.h)
	box.Min = ms3.Sub(box.Min, u.h)
	return box
}

func (s *elongate) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return fn(userData, &s.s)
}

func (s *elongate) AppendShaderName(b []byte) []byte {
	b = append(b, "elongate"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', s.h.X, s.h.Y, s.h.Z)
	b = append(b, '_')
	b = s.s.AppendShaderName(b)
	return b
}

func (s *elongate) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendVec3Decl(b, "h", s.h)
	b = append(b, "vec3 q=abs(p)-h;\n"...)
	b = glbuild.AppendDistanceDecl(b, "d", "max(q,0.)", s.s)
	b = append(b, "return d+min(max(q.x,max(q.y,q.z)),0.);"...)
	return b
}

// String returns a compact representation of the node tree of s, i.e: "OpUnion(sphere,translate(box))".
func String(s glbuild.Shader) string {
	return glbuild.FormatShader(s)
}
