package raysdf

import (
	"github.com/chewxy/math32"
	"github.com/epicx/raysdf/glbuild"
	"github.com/soypat/geometry/ms2"
)

// NewCircle creates a circle of radius r centered at the origin. Is exact.
func (bld *Builder) NewCircle(r float32) glbuild.Shader2D {
	if r <= 0 {
		bld.shapeErrorf("zero or negative circle radius %v", r)
	}
	return &circle2D{r: r}
}

type circle2D struct {
	r float32
}

func (c *circle2D) ForEach2DChild(userData any, fn func(userData any, s *glbuild.Shader2D) error) error {
	return nil
}

func (c *circle2D) AppendShaderName(b []byte) []byte {
	b = append(b, "circle2D"...)
	b = glbuild.AppendFloat(b, 'n', 'p', c.r)
	return b
}

func (c *circle2D) AppendShaderBody(b []byte) []byte {
	b = append(b, "return length(p)-"...)
	b = glbuild.AppendFloat(b, '-', '.', c.r)
	b = append(b, ';')
	return b
}

func (c *circle2D) Bounds() ms2.Box {
	r := c.r
	return ms2.NewBox(-r, -r, r, r)
}

// NewRectangle creates a rectangle of width x and height y centered at the origin
// whose corners are rounded by round. Is exact.
func (bld *Builder) NewRectangle(x, y, round float32) glbuild.Shader2D {
	if x <= 0 || y <= 0 {
		bld.shapeErrorf("zero or negative rectangle dimension (%v,%v)", x, y)
	}
	if round < 0 || 2*round > x || 2*round > y {
		bld.shapeErrorf("invalid rectangle rounding value %v", round)
	}
	return &rect2D{half: ms2.Vec{X: x / 2, Y: y / 2}, round: round}
}

type rect2D struct {
	half  ms2.Vec
	round float32
}

func (r *rect2D) ForEach2DChild(userData any, fn func(userData any, s *glbuild.Shader2D) error) error {
	return nil
}

func (r *rect2D) AppendShaderName(b []byte) []byte {
	b = append(b, "rect2D"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', r.half.X, r.half.Y, r.round)
	return b
}

func (r *rect2D) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendVec2Decl(b, "b", r.half)
	b = glbuild.AppendFloatDecl(b, "r", r.round)
	b = append(b, `vec2 q = abs(p)-b+r;
return length(max(q,0.0)) + min(max(q.x,q.y),0.0) - r;`...)
	return b
}

func (r *rect2D) Bounds() ms2.Box {
	return ms2.NewBox(-r.half.X, -r.half.Y, r.half.X, r.half.Y)
}

// NewLine2D creates a straight line between (x0,y0) and (x1,y1) with a given thickness.
func (bld *Builder) NewLine2D(x0, y0, x1, y1, width float32) glbuild.Shader2D {
	hasNaN := math32.IsNaN(x0) || math32.IsNaN(y0) || math32.IsNaN(x1) || math32.IsNaN(y1) || math32.IsNaN(width)
	if hasNaN {
		bld.shapeErrorf("NaN argument to NewLine2D")
	} else if width <= 0 {
		bld.shapeErrorf("zero or negative line thickness %v", width)
	}
	a, b := ms2.Vec{X: x0, Y: y0}, ms2.Vec{X: x1, Y: y1}
	lineLen := ms2.Norm(ms2.Sub(a, b))
	if lineLen < width*1e-6 || lineLen < epstol {
		return bld.NewCircle(width / 2)
	}
	return &line2D{a: a, b: b, width: width}
}

type line2D struct {
	width float32
	a, b  ms2.Vec
}

func (l *line2D) ForEach2DChild(userData any, fn func(userData any, s *glbuild.Shader2D) error) error {
	return nil
}

func (l *line2D) Bounds() ms2.Box {
	w := l.width / 2
	b := ms2.Box{Min: l.a, Max: l.b}.Canon()
	b.Max = ms2.AddScalar(w, b.Max)
	b.Min = ms2.AddScalar(-w, b.Min)
	return b
}

func (l *line2D) AppendShaderName(b []byte) []byte {
	b = append(b, "line2D"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', l.a.X, l.a.Y, l.b.X, l.b.Y, l.width)
	return b
}

func (l *line2D) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendVec2Decl(b, "a", l.a)
	b = glbuild.AppendVec2Decl(b, "ba", ms2.Sub(l.b, l.a))
	b = glbuild.AppendFloatDecl(b, "w", l.width/2)
	b = append(b, `vec2 pa = p-a;
float h = clamp(dot(pa,ba)/dot(ba,ba), 0.0, 1.0);
return length(pa-ba*h) - w;`...)
	return b
}
