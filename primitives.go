package raysdf

import (
	"strconv"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf/glbuild"
	"github.com/soypat/geometry/ms3"
)

type sphere struct {
	r float32
}

// NewSphere creates a sphere centered at the origin of radius r.
// Use [Builder.Translate] to place it at another center.
func (bld *Builder) NewSphere(r float32) glbuild.Shader3D {
	valid := r > 0
	if !valid {
		bld.shapeErrorf("zero or negative sphere radius %v", r)
	}
	return &sphere{r: r}
}

func (s *sphere) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (s *sphere) AppendShaderName(b []byte) []byte {
	b = append(b, "sphere"...)
	b = glbuild.AppendFloat(b, 'n', 'p', s.r)
	return b
}

func (s *sphere) AppendShaderBody(b []byte) []byte {
	b = append(b, "return length(p)-"...)
	b = glbuild.AppendFloat(b, '-', '.', s.r)
	b = append(b, ';')
	return b
}

func (s *sphere) Bounds() ms3.Box {
	return ms3.Box{
		Min: ms3.Vec{X: -s.r, Y: -s.r, Z: -s.r},
		Max: ms3.Vec{X: s.r, Y: s.r, Z: s.r},
	}
}

// NewBox creates a box centered at the origin with half extents hx, hy, hz. Is exact.
func (bld *Builder) NewBox(hx, hy, hz float32) glbuild.Shader3D {
	return bld.NewRoundBox(hx, hy, hz, 0)
}

// NewRoundBox creates a box centered at the origin with half extents hx, hy, hz
// whose edges are rounded by round. The outer dimensions are preserved.
func (bld *Builder) NewRoundBox(hx, hy, hz, round float32) glbuild.Shader3D {
	if hx <= 0 || hy <= 0 || hz <= 0 {
		bld.shapeErrorf("zero or negative box half extent (%v,%v,%v)", hx, hy, hz)
	}
	if round < 0 || round > hx || round > hy || round > hz {
		bld.shapeErrorf("invalid box rounding value %v", round)
	}
	return &box{half: ms3.Vec{X: hx, Y: hy, Z: hz}, round: round}
}

type box struct {
	half  ms3.Vec
	round float32
}

func (s *box) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (s *box) AppendShaderName(b []byte) []byte {
	b = append(b, "box"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', s.half.X, s.half.Y, s.half.Z)
	b = glbuild.AppendFloat(b, 'n', 'p', s.round)
	return b
}

func (s *box) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "r", s.round)
	b = glbuild.AppendVec3Decl(b, "d", s.half)
	b = append(b, `vec3 q = abs(p)-d+r;
return length(max(q,0.0)) + min(max(q.x,max(q.y,q.z)),0.0)-r;`...)
	return b
}

func (s *box) Bounds() ms3.Box {
	return ms3.Box{Min: ms3.Scale(-1, s.half), Max: s.half}
}

// NewCylinder creates a cylinder centered at the origin with given radius and half height.
// The cylinder's axis points in y direction.
func (bld *Builder) NewCylinder(radius, halfHeight float32) glbuild.Shader3D {
	okDim := radius > 0 && halfHeight > 0
	if !okDim {
		bld.shapeErrorf("bad cylinder dimension r=%v h=%v", radius, halfHeight)
	}
	return &cylinder{r: radius, h: halfHeight}
}

type cylinder struct {
	r float32
	h float32
}

func (c *cylinder) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (c *cylinder) AppendShaderName(b []byte) []byte {
	b = append(b, "cyl"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', c.r, c.h)
	return b
}

func (c *cylinder) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "r", c.r)
	b = glbuild.AppendFloatDecl(b, "h", c.h)
	b = append(b, `vec2 d = abs(vec2(length(p.xz),p.y)) - vec2(r,h);
return min(max(d.x,d.y),0.0) + length(max(d,0.0));`...)
	return b
}

func (c *cylinder) Bounds() ms3.Box {
	return ms3.Box{
		Min: ms3.Vec{X: -c.r, Y: -c.h, Z: -c.r},
		Max: ms3.Vec{X: c.r, Y: c.h, Z: c.r},
	}
}

// NewTorus creates a torus around the y axis. greaterRadius is the distance from
// the origin to the center of the tube and lesserRadius is the tube's radius.
func (bld *Builder) NewTorus(greaterRadius, lesserRadius float32) glbuild.Shader3D {
	if greaterRadius < 2*epstol || lesserRadius < epstol {
		bld.shapeErrorf("invalid torus parameter R=%v r=%v", greaterRadius, lesserRadius)
	}
	if lesserRadius > greaterRadius {
		bld.shapeErrorf("torus lesser radius %v larger than greater radius %v", lesserRadius, greaterRadius)
	}
	return &torus{rLesser: lesserRadius, rGreater: greaterRadius}
}

type torus struct {
	rLesser, rGreater float32
}

func (t *torus) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (t *torus) AppendShaderName(b []byte) []byte {
	b = append(b, "torus"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', t.rGreater, t.rLesser)
	return b
}

func (t *torus) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "t1", t.rGreater)
	b = glbuild.AppendFloatDecl(b, "t2", t.rLesser)
	b = append(b, `vec2 q = vec2(length(p.xz)-t1,p.y);
return length(q)-t2;`...)
	return b
}

func (t *torus) Bounds() ms3.Box {
	R := t.rGreater + t.rLesser
	return ms3.Box{
		Min: ms3.Vec{X: -R, Y: -t.rLesser, Z: -R},
		Max: ms3.Vec{X: R, Y: t.rLesser, Z: R},
	}
}

// NewCapsule creates a capsule of radius r around the segment joining a and b.
// a and b may coincide, in which case the result is a sphere.
func (bld *Builder) NewCapsule(a, b ms3.Vec, r float32) glbuild.Shader3D {
	if r <= 0 {
		bld.shapeErrorf("zero or negative capsule radius %v", r)
	}
	return &capsule{a: a, b: b, r: r}
}

type capsule struct {
	a, b ms3.Vec
	r    float32
}

func (c *capsule) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (c *capsule) AppendShaderName(b []byte) []byte {
	b = append(b, "capsule"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', c.a.X, c.a.Y, c.a.Z, c.b.X, c.b.Y, c.b.Z, c.r)
	return b
}

func (c *capsule) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendVec3Decl(b, "a", c.a)
	b = glbuild.AppendVec3Decl(b, "ba", ms3.Sub(c.b, c.a))
	b = glbuild.AppendFloatDecl(b, "r", c.r)
	b = append(b, `vec3 pa = p-a;
float bb = dot(ba,ba);
float h = bb > 0.0 ? clamp(dot(pa,ba)/bb,0.0,1.0) : 0.0;
return length(pa-ba*h)-r;`...)
	return b
}

func (c *capsule) Bounds() ms3.Box {
	r := c.r
	return ms3.Box{
		Min: ms3.AddScalar(-r, ms3.MinElem(c.a, c.b)),
		Max: ms3.AddScalar(r, ms3.MaxElem(c.a, c.b)),
	}
}

// NewCone creates a solid cone with its circular base of the given radius
// lying on the y=0 plane and its tip at y=height. Is exact.
func (bld *Builder) NewCone(radius, height float32) glbuild.Shader3D {
	if radius <= 0 || height <= 0 {
		bld.shapeErrorf("bad cone dimension r=%v h=%v", radius, height)
	}
	return &cone{r: radius, h: height}
}

type cone struct {
	r, h float32
}

func (c *cone) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (c *cone) AppendShaderName(b []byte) []byte {
	b = append(b, "cone"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', c.r, c.h)
	return b
}

func (c *cone) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "r", c.r)
	b = glbuild.AppendFloatDecl(b, "h", c.h)
	b = append(b, `vec2 q = vec2(r,-h);
vec2 w = vec2(length(p.xz),p.y-h);
vec2 a = w - q*clamp(dot(w,q)/dot(q,q),0.0,1.0);
vec2 b = w - q*vec2(clamp(w.x/q.x,0.0,1.0),1.0);
float k = sign(q.y);
float d = min(dot(a,a),dot(b,b));
float s = max(k*(w.x*q.y-w.y*q.x),k*(w.y-q.y));
return sqrt(d)*sign(s);`...)
	return b
}

func (c *cone) Bounds() ms3.Box {
	return ms3.Box{
		Min: ms3.Vec{X: -c.r, Y: 0, Z: -c.r},
		Max: ms3.Vec{X: c.r, Y: c.h, Z: c.r},
	}
}

// NewPlane creates an infinite half-space bounded by the plane with the given normal.
// The distance is dot(p, unit(normal)) + offset, so the plane passes through -offset*unit(normal).
func (bld *Builder) NewPlane(normal ms3.Vec, offset float32) glbuild.Shader3D {
	n := ms3.Norm(normal)
	if n < epstol || math32.IsNaN(n) {
		bld.shapeErrorf("zero or invalid plane normal %v", normal)
		return &plane{n: ms3.Vec{Y: 1}, off: offset}
	}
	return &plane{n: ms3.Scale(1/n, normal), off: offset}
}

type plane struct {
	n   ms3.Vec
	off float32
}

func (pl *plane) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (pl *plane) AppendShaderName(b []byte) []byte {
	b = append(b, "plane"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', pl.n.X, pl.n.Y, pl.n.Z, pl.off)
	return b
}

func (pl *plane) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendVec3Decl(b, "n", pl.n)
	b = append(b, "return dot(p,n)+("...)
	b = glbuild.AppendFloat(b, '-', '.', pl.off)
	b = append(b, ");"...)
	return b
}

func (pl *plane) Bounds() ms3.Box {
	return ms3.Box{
		Min: ms3.Vec{X: -largenum, Y: -largenum, Z: -largenum},
		Max: ms3.Vec{X: largenum, Y: largenum, Z: largenum},
	}
}

// NewEllipsoid creates an ellipsoid centered at the origin with semi-axes rx, ry, rz.
// The distance is a conservative bound: it never exceeds the true distance.
func (bld *Builder) NewEllipsoid(rx, ry, rz float32) glbuild.Shader3D {
	if rx <= 0 || ry <= 0 || rz <= 0 {
		bld.shapeErrorf("zero or negative ellipsoid semi-axis (%v,%v,%v)", rx, ry, rz)
	}
	return &ellipsoid{r: ms3.Vec{X: rx, Y: ry, Z: rz}}
}

type ellipsoid struct {
	r ms3.Vec
}

func (e *ellipsoid) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (e *ellipsoid) AppendShaderName(b []byte) []byte {
	b = append(b, "ellipsoid"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', e.r.X, e.r.Y, e.r.Z)
	return b
}

func (e *ellipsoid) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendVec3Decl(b, "r", e.r)
	b = append(b, "return (length(p/r)-1.0)*min(min(r.x,r.y),r.z);"...)
	return b
}

func (e *ellipsoid) Bounds() ms3.Box {
	return ms3.Box{Min: ms3.Scale(-1, e.r), Max: e.r}
}

// NewPyramid creates a square based pyramid with its base centered on the y=0 plane
// with half side length halfBase and its apex at y=height. Is exact.
func (bld *Builder) NewPyramid(halfBase, height float32) glbuild.Shader3D {
	if halfBase <= 0 || height <= 0 {
		bld.shapeErrorf("bad pyramid dimension base=%v h=%v", halfBase, height)
	}
	return &pyramid{halfBase: halfBase, h: height}
}

type pyramid struct {
	halfBase, h float32
}

func (py *pyramid) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (py *pyramid) AppendShaderName(b []byte) []byte {
	b = append(b, "pyramid"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', py.halfBase, py.h)
	return b
}

// The unit pyramid has a base of side 1. Scaling by the base side keeps the field exact.
func (py *pyramid) AppendShaderBody(b []byte) []byte {
	sc := 2 * py.halfBase
	b = glbuild.AppendFloatDecl(b, "s", sc)
	b = glbuild.AppendFloatDecl(b, "h", py.h/sc)
	b = append(b, `p /= s;
float m2 = h*h + 0.25;
p.xz = abs(p.xz);
p.xz = (p.z>p.x) ? p.zx : p.xz;
p.xz -= 0.5;
if (p.y<0.0) return s*length(vec3(max(p.x,0.0),p.y,max(p.z,0.0)));
vec3 q = vec3(p.z, h*p.y-0.5*p.x, h*p.x+0.5*p.y);
float ss = max(-q.x,0.0);
float t = clamp((q.y-0.5*p.z)/(m2+0.25),0.0,1.0);
float a = m2*(q.x+ss)*(q.x+ss) + q.y*q.y;
float b = m2*(q.x+0.5*t)*(q.x+0.5*t) + (q.y-m2*t)*(q.y-m2*t);
float d2 = min(q.y,-q.x*m2-q.y*0.5) > 0.0 ? 0.0 : min(a,b);
return s*sqrt((d2+q.z*q.z)/m2)*sign(max(q.z,-p.y));`...)
	return b
}

func (py *pyramid) Bounds() ms3.Box {
	return ms3.Box{
		Min: ms3.Vec{X: -py.halfBase, Y: 0, Z: -py.halfBase},
		Max: ms3.Vec{X: py.halfBase, Y: py.h, Z: py.halfBase},
	}
}

// NewBezierQuadratic creates a tube of radius r around the quadratic Bezier
// curve with endpoints p0, p2 and control point p1. Is exact except for nearly
// straight curves, which are bounded by the distance to their chord.
func (bld *Builder) NewBezierQuadratic(p0, p1, p2 ms3.Vec, r float32) glbuild.Shader3D {
	if r <= 0 {
		bld.shapeErrorf("zero or negative bezier radius %v", r)
	}
	return &bezierQuadratic{p0: p0, p1: p1, p2: p2, r: r}
}

type bezierQuadratic struct {
	p0, p1, p2 ms3.Vec
	r          float32
}

// straight returns the deviation of the curve from its chord if it is too
// small for the cubic root solve to be well conditioned.
func (bz *bezierQuadratic) straight() (deviation float32, ok bool) {
	b := ms3.Add(ms3.Sub(bz.p0, ms3.Scale(2, bz.p1)), bz.p2)
	nb := ms3.Norm(b)
	// The curve departs at most |b|/4 from the chord at t=0.5.
	size := ms3.Norm(ms3.Sub(bz.p1, bz.p0)) + ms3.Norm(ms3.Sub(bz.p2, bz.p0))
	return nb / 4, nb <= 1e-3*size+epstol
}

func (bz *bezierQuadratic) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (bz *bezierQuadratic) AppendShaderName(b []byte) []byte {
	b = append(b, "bezier2"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', bz.p0.X, bz.p0.Y, bz.p0.Z, bz.p1.X, bz.p1.Y, bz.p1.Z, bz.p2.X, bz.p2.Y, bz.p2.Z, bz.r)
	return b
}

func (bz *bezierQuadratic) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "r", bz.r)
	if dev, ok := bz.straight(); ok {
		b = glbuild.AppendVec3Decl(b, "a", bz.p0)
		b = glbuild.AppendVec3Decl(b, "ba", ms3.Sub(bz.p2, bz.p0))
		b = glbuild.AppendFloatDecl(b, "dev", dev)
		b = append(b, `vec3 pa = p-a;
float bb = dot(ba,ba);
float h = bb > 0.0 ? clamp(dot(pa,ba)/bb,0.0,1.0) : 0.0;
return length(pa-ba*h)-r-dev;`...)
		return b
	}
	b = glbuild.AppendVec3Decl(b, "A", bz.p0)
	b = glbuild.AppendVec3Decl(b, "a", ms3.Sub(bz.p1, bz.p0))
	b = glbuild.AppendVec3Decl(b, "b", ms3.Add(ms3.Sub(bz.p0, ms3.Scale(2, bz.p1)), bz.p2))
	b = append(b, `vec3 c = a*2.0;
vec3 d = A-p;
float kk = 1.0/dot(b,b);
float kx = kk*dot(a,b);
float ky = kk*(2.0*dot(a,a)+dot(d,b))/3.0;
float kz = kk*dot(d,a);
float pp = ky-kx*kx;
float q = kx*(2.0*kx*kx-3.0*ky)+kz;
float h = q*q+4.0*pp*pp*pp;
float res;
if (h>=0.0) {
	h = sqrt(h);
	vec2 x = (vec2(h,-h)-q)/2.0;
	vec2 uv = sign(x)*pow(abs(x),vec2(1.0/3.0));
	float t = clamp(uv.x+uv.y-kx,0.0,1.0);
	vec3 w = d+(c+b*t)*t;
	res = dot(w,w);
} else {
	float z = sqrt(-pp);
	float v = acos(q/(pp*z*2.0))/3.0;
	float m = cos(v);
	float n = sin(v)*1.732050808;
	vec2 t = clamp(vec2(m+m,-n-m)*z-kx,0.0,1.0);
	vec3 w0 = d+(c+b*t.x)*t.x;
	vec3 w1 = d+(c+b*t.y)*t.y;
	res = min(dot(w0,w0),dot(w1,w1));
}
return sqrt(res)-r;`...)
	return b
}

func (bz *bezierQuadratic) Bounds() ms3.Box {
	return curveBounds(bz.r, bz.p0, bz.p1, bz.p2)
}

// NewBezierCubic creates a tube of radius r around the cubic Bezier curve
// with endpoints p0, p3 and control points p1, p2. The closest curve point
// is found by sampling followed by Newton refinement, so the field may
// slightly overestimate near points equidistant to distant parts of the curve.
func (bld *Builder) NewBezierCubic(p0, p1, p2, p3 ms3.Vec, r float32) glbuild.Shader3D {
	if r <= 0 {
		bld.shapeErrorf("zero or negative bezier radius %v", r)
	}
	return &bezierCubic{p0: p0, p1: p1, p2: p2, p3: p3, r: r}
}

const (
	bezierSamples = 16
	bezierNewton  = 4
)

type bezierCubic struct {
	p0, p1, p2, p3 ms3.Vec
	r              float32
}

// coefs returns the power basis coefficients of the curve so that
// B(t) = c0 + t*c1 + t²*c2 + t³*c3.
func (bz *bezierCubic) coefs() (c0, c1, c2, c3 ms3.Vec) {
	c0 = bz.p0
	c1 = ms3.Scale(3, ms3.Sub(bz.p1, bz.p0))
	c2 = ms3.Scale(3, ms3.Add(ms3.Sub(bz.p0, ms3.Scale(2, bz.p1)), bz.p2))
	c3 = ms3.Add(ms3.Sub(bz.p3, bz.p0), ms3.Scale(3, ms3.Sub(bz.p1, bz.p2)))
	return c0, c1, c2, c3
}

func (bz *bezierCubic) relaxesBound() bool { return true }

func (bz *bezierCubic) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (bz *bezierCubic) AppendShaderName(b []byte) []byte {
	b = append(b, "bezier3"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', bz.p0.X, bz.p0.Y, bz.p0.Z, bz.p1.X, bz.p1.Y, bz.p1.Z,
		bz.p2.X, bz.p2.Y, bz.p2.Z, bz.p3.X, bz.p3.Y, bz.p3.Z, bz.r)
	return b
}

func (bz *bezierCubic) AppendShaderBody(b []byte) []byte {
	c0, c1, c2, c3 := bz.coefs()
	b = glbuild.AppendVec3Decl(b, "c0", c0)
	b = glbuild.AppendVec3Decl(b, "c1", c1)
	b = glbuild.AppendVec3Decl(b, "c2", c2)
	b = glbuild.AppendVec3Decl(b, "c3", c3)
	b = glbuild.AppendFloatDecl(b, "r", bz.r)
	b = append(b, "float bt = 0.0;\nfloat bd = 1e20;\nfor (int i=0; i<"...)
	b = strconv.AppendInt(b, bezierSamples, 10)
	b = append(b, "; i++) {\n\tfloat t = float(i)/"...)
	b = strconv.AppendInt(b, bezierSamples-1, 10)
	b = append(b, `.0;
	vec3 w = c0+t*(c1+t*(c2+t*c3))-p;
	float dd = dot(w,w);
	if (dd<bd) { bd = dd; bt = t; }
}
for (int i=0; i<`...)
	b = strconv.AppendInt(b, bezierNewton, 10)
	b = append(b, `; i++) {
	vec3 w = c0+bt*(c1+bt*(c2+bt*c3))-p;
	vec3 d1 = c1+bt*(2.0*c2+3.0*bt*c3);
	vec3 d2 = 2.0*c2+6.0*bt*c3;
	float fp = dot(d1,d1)+dot(w,d2);
	if (fp>0.0) bt = clamp(bt-dot(w,d1)/fp,0.0,1.0);
}
return length(c0+bt*(c1+bt*(c2+bt*c3))-p)-r;`...)
	return b
}

func (bz *bezierCubic) Bounds() ms3.Box {
	return curveBounds(bz.r, bz.p0, bz.p1, bz.p2, bz.p3)
}

// curveBounds returns the box containing the control points grown by r.
// Bezier curves lie in the convex hull of their control points.
func curveBounds(r float32, pts ...ms3.Vec) ms3.Box {
	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo = ms3.MinElem(lo, p)
		hi = ms3.MaxElem(hi, p)
	}
	return ms3.Box{Min: ms3.AddScalar(-r, lo), Max: ms3.AddScalar(r, hi)}
}
