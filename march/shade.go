package march

import (
	"fmt"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf"
	"github.com/soypat/geometry/ms3"
)

// Color is a linear RGBA colour with float32 components, nominally in [0,1].
// Color implements [color.Color].
type Color struct {
	R, G, B, A float32
}

// RGB returns an opaque colour.
func RGB(r, g, b float32) Color { return Color{R: r, G: g, B: b, A: 1} }

// Add returns the component-wise sum of the RGB channels. Alpha is kept from c.
func (c Color) Add(o Color) Color {
	return Color{R: c.R + o.R, G: c.G + o.G, B: c.B + o.B, A: c.A}
}

// Mul returns the component-wise product of the RGB channels. Alpha is kept from c.
func (c Color) Mul(o Color) Color {
	return Color{R: c.R * o.R, G: c.G * o.G, B: c.B * o.B, A: c.A}
}

// Scale multiplies the RGB channels by f.
func (c Color) Scale(f float32) Color {
	return Color{R: c.R * f, G: c.G * f, B: c.B * f, A: c.A}
}

// Lerp interpolates all channels linearly between c (t=0) and o (t=1).
func (c Color) Lerp(o Color, t float32) Color {
	return Color{
		R: c.R + (o.R-c.R)*t,
		G: c.G + (o.G-c.G)*t,
		B: c.B + (o.B-c.B)*t,
		A: c.A + (o.A-c.A)*t,
	}
}

// Clamp clamps all channels to [0,1].
func (c Color) Clamp() Color {
	return Color{R: clamp(c.R, 0, 1), G: clamp(c.G, 0, 1), B: clamp(c.B, 0, 1), A: clamp(c.A, 0, 1)}
}

// RGBA implements [color.Color]. Channels are clamped and alpha premultiplied.
func (c Color) RGBA() (r, g, b, a uint32) {
	c = c.Clamp()
	a = uint32(c.A*0xffff + 0.5)
	r = uint32(c.R*c.A*0xffff + 0.5)
	g = uint32(c.G*c.A*0xffff + 0.5)
	b = uint32(c.B*c.A*0xffff + 0.5)
	return r, g, b, a
}

var _ color.Color = Color{}

// Light is a directional light.
type Light struct {
	// Direction points from the surface toward the light. Need not be unit length.
	Direction ms3.Vec
	Color     Color
}

// Material describes how the surface reflects light.
type Material struct {
	Albedo Color
	// Roughness in [0,1] controls the specular lobe width and strength.
	Roughness float32
	// Metallic in [0,1] weights specular tint and sky reflection.
	Metallic float32
}

// MaterialField is implemented by distance fields that tag regions of space
// with material ids, such as [raysdf.Scene]. MaterialsAt stores in ids[i] the
// id of the object closest to pos[i] or a negative id if it is untagged.
type MaterialField interface {
	MaterialsAt(ids []int, pos []ms3.Vec) error
}

// Shading configures [Tracer.Shade].
type Shading struct {
	// Material shades surfaces without a material in Materials.
	Material Material
	// Materials is indexed by the material ids of a field implementing [MaterialField].
	Materials []Material
	Ambient   Color
	// FogColor is the colour distant hits fade to. The zero Color fades to the sky.
	FogColor   Color
	FogDensity float32
	// SkyZenith and SkyHorizon define the sky gradient over the ray's vertical component.
	SkyZenith  Color
	SkyHorizon Color
	// SunGlow adds a glow around the first light's direction in the sky.
	SunGlow bool
}

// DefaultShading returns the default shading parameters.
func DefaultShading() Shading {
	return Shading{
		Material: Material{
			Albedo:    RGB(0.8, 0.3, 0.2),
			Roughness: 0.3,
			Metallic:  0.1,
		},
		Ambient:    RGB(0.15, 0.18, 0.25),
		FogDensity: 0.03,
		SkyZenith:  RGB(0.4, 0.6, 0.9),
		SkyHorizon: RGB(0.7, 0.8, 0.95),
		SunGlow:    true,
	}
}

// DefaultLights returns a single sun light.
func DefaultLights() []Light {
	return []Light{{Direction: ms3.Vec{X: 0.5, Y: 0.8, Z: 0.3}, Color: RGB(1, 0.95, 0.9)}}
}

// Validate checks the shading parameters. Returned errors wrap [raysdf.ErrInvalidParameter].
func (sh Shading) Validate() error {
	if err := sh.Material.validate(); err != nil {
		return err
	}
	for i, m := range sh.Materials {
		if err := m.validate(); err != nil {
			return fmt.Errorf("material %d: %w", i, err)
		}
	}
	if sh.FogDensity < 0 {
		return fmt.Errorf("march: %w: negative fog density %v", raysdf.ErrInvalidParameter, sh.FogDensity)
	}
	return nil
}

func (m Material) validate() error {
	if m.Roughness < 0 || m.Roughness > 1 {
		return fmt.Errorf("march: %w: roughness %v not in [0,1]", raysdf.ErrInvalidParameter, m.Roughness)
	} else if m.Metallic < 0 || m.Metallic > 1 {
		return fmt.Errorf("march: %w: metallic %v not in [0,1]", raysdf.ErrInvalidParameter, m.Metallic)
	}
	return nil
}

// material returns the palette entry for id or the default material.
func (sh *Shading) material(id int) *Material {
	if id < 0 || id >= len(sh.Materials) {
		return &sh.Material
	}
	return &sh.Materials[id]
}

// SetShading replaces the Tracer's shading parameters.
func (tr *Tracer) SetShading(sh Shading) error {
	if err := sh.Validate(); err != nil {
		return err
	}
	tr.shading = sh
	return nil
}

// Shading returns the Tracer's shading parameters.
func (tr *Tracer) Shading() Shading { return tr.shading }

// Sky returns the sky gradient colour seen along unit direction rd without sun glow.
func (sh *Shading) Sky(rd ms3.Vec) Color {
	y := rd.Y
	c := sh.SkyZenith.Scale(1 - 0.3*y).Add(sh.SkyHorizon.Scale(0.3*y + 0.5))
	c.A = 1
	return c
}

func (sh *Shading) background(rd ms3.Vec, lights []Light) Color {
	c := sh.Sky(rd)
	if sh.SunGlow && len(lights) > 0 {
		sunDot := math32.Max(ms3.Dot(rd, ms3.Unit(lights[0].Direction)), 0)
		glow := math32.Pow(sunDot, 64) * 0.5
		c = c.Add(RGB(1, 0.9, 0.7).Scale(glow))
	}
	return c.Clamp()
}

// Shade returns the colour seen along rayDir for the marching result res.
// Missed rays are shaded with the sky.
func (tr *Tracer) Shade(res Result, rayDir ms3.Vec, lights []Light) Color {
	var c [1]Color
	tr.ShadeBatch(c[:0], []Result{res}, []ms3.Vec{rayDir}, lights)
	return c[0]
}

// ShadeBatch shades results[i] seen along dirs[i] and appends the colours to dst.
// Shadow rays for each light are marched in a single batch.
func (tr *Tracer) ShadeBatch(dst []Color, results []Result, dirs []ms3.Vec, lights []Light) []Color {
	if len(results) != len(dirs) {
		panic("march: results and directions length mismatch")
	}
	sh := &tr.shading
	base := len(dst)
	var hitPos, hitNorm []ms3.Vec
	var hitIdx []int
	for i, r := range results {
		if r.Hit {
			hitIdx = append(hitIdx, i)
			hitPos = append(hitPos, r.Position)
			hitNorm = append(hitNorm, r.Normal)
		}
	}
	ids := make([]int, len(hitIdx))
	if mf, ok := tr.sdf.(MaterialField); !ok || len(sh.Materials) == 0 || mf.MaterialsAt(ids, hitPos) != nil {
		for j := range ids {
			ids[j] = raysdf.NoMaterial
		}
	}
	mats := make([]*Material, len(hitIdx))
	for j, id := range ids {
		mats[j] = sh.material(id)
	}
	j := 0
	for i, r := range results {
		rd := ms3.Unit(dirs[i])
		if !r.Hit {
			dst = append(dst, sh.background(rd, lights))
			continue
		}
		m := mats[j]
		j++
		ambient := sh.Ambient.Mul(m.Albedo).Scale(r.AmbientOcclusion)
		fresnel := math32.Pow(1-math32.Max(ms3.Dot(ms3.Scale(-1, rd), r.Normal), 0), 5)
		reflection := sh.Sky(rd).Scale(fresnel * m.Metallic * 0.3)
		dst = append(dst, ambient.Add(reflection))
	}
	out := dst[base:]
	if len(hitIdx) == 0 {
		return dst
	}
	var shadows []float32
	for _, light := range lights {
		l := ms3.Unit(light.Direction)
		shadows = tr.SoftShadows(shadows[:0], hitPos, hitNorm, l)
		for j, i := range hitIdx {
			r := results[i]
			rd := ms3.Unit(dirs[i])
			s := shadows[j]
			m := mats[j]
			specPower := 32 / (m.Roughness + 0.01)
			nDotL := math32.Max(ms3.Dot(r.Normal, l), 0)
			half := ms3.Unit(ms3.Sub(l, rd))
			spec := math32.Pow(math32.Max(ms3.Dot(r.Normal, half), 0), specPower) * (1 - m.Roughness)
			diffuse := m.Albedo.Mul(light.Color).Scale(nDotL * s)
			specular := light.Color.Scale(spec * s * (m.Metallic*0.5 + 0.5))
			out[i] = out[i].Add(diffuse).Add(specular)
		}
	}
	for _, i := range hitIdx {
		r := results[i]
		rd := ms3.Unit(dirs[i])
		fog := sh.FogColor
		if fog == (Color{}) {
			fog = sh.Sky(rd)
		}
		amount := clamp(1-math32.Exp(-r.Distance*sh.FogDensity), 0, 1)
		c := out[i].Scale(1 - amount).Add(fog.Scale(amount))
		c.A = 1
		out[i] = c.Clamp()
	}
	return dst
}
