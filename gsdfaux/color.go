package gsdfaux

import (
	"image/color"

	math "github.com/chewxy/math32"
	"github.com/epicx/raysdf/aa"
	"github.com/epicx/raysdf/isr"
	"github.com/soypat/geometry/ms1"
	"github.com/soypat/geometry/ms3"
)

// HSV conversions follow Esme Lamb's (@dedelala) color manipulation work
// presented at Gophercon AU 2024.
// https://github.com/dedelala/disco/tree/main/color

var red = color.RGBA{R: 255, A: 255}

// ColorConversionInigoQuilez creates a new color conversion using [Inigo Quilez]'s style.
// A good value for characteristic distance is the bounding box diagonal divided by 3. Returns red for NaN values.
//
// [Inigo Quilez]: https://iquilezles.org/articles/distfunctions2d/
func ColorConversionInigoQuilez(characteristicDistance float32) func(float32) color.Color {
	inv := 1. / characteristicDistance
	outside := ms3.Vec{X: 0.9, Y: 0.6, Z: 0.3}
	inside := ms3.Vec{X: 0.65, Y: 0.85, Z: 1.0}
	white := ms3.Vec{X: 1, Y: 1, Z: 1}
	return func(d float32) color.Color {
		if math.IsNaN(d) {
			return red
		}
		d *= inv
		c := outside
		if d <= 0 {
			c = inside
		}
		// Exponential falloff modulated by iso-distance bands.
		c = ms3.Scale((1-math.Exp(-6*math.Abs(d)))*(0.8+0.2*math.Cos(150*d)), c)
		edge := 1 - aa.Smoothstep(0, 0.01, math.Abs(d))
		c = ms3.InterpElem(c, white, ms3.Vec{X: edge, Y: edge, Z: edge})
		return vecToRGBA(c)
	}
}

// ColorConversionLinearGradient creates a color conversion function that creates a gradient centered
// along d=0 that extends gradientLength. Colours are interpolated along the shortest hue path.
func ColorConversionLinearGradient(gradientLength float32, c0, c1 color.Color) func(d float32) color.Color {
	if c0 == color.Black && c1 == color.White {
		return grayscaleGradient(gradientLength)
	}
	start, end := hsvOf(c0), hsvOf(c1)
	return func(d float32) color.Color {
		t := d/gradientLength + 0.5
		switch {
		case t <= 0:
			return c0
		case t >= 1:
			return c1
		}
		return start.lerp(end, t).rgba()
	}
}

func grayscaleGradient(gradientLength float32) func(d float32) color.Color {
	if gradientLength == 0 {
		return func(d float32) color.Color {
			if d < 0 {
				return color.Black
			}
			return color.White
		}
	}
	return func(d float32) color.Color {
		t := d/gradientLength + 0.5
		switch {
		case t <= 0:
			return color.Black
		case t >= 1:
			return color.White
		}
		return color.Gray{Y: uint8(ms1.Clamp(t, 0, 1) * math.MaxUint8)}
	}
}

// ColorConversionShadingRate returns a conversion that maps an importance in
// [0,1] to the debug colour of the shading rate cfg assigns to it. Used to
// visualise importance maps with the same palette as shading rate overlays.
func ColorConversionShadingRate(cfg isr.Config) func(importance float32) color.Color {
	return func(importance float32) color.Color {
		if math.IsNaN(importance) {
			return red
		}
		return cfg.Classify(importance).DebugColor()
	}
}

// ColorConversionEdgeRate colours a distance field with the shading rate a tile
// at that distance from the surface would be assigned when importance falls
// off linearly over band.
func ColorConversionEdgeRate(cfg isr.Config, band float32) func(d float32) color.Color {
	conv := ColorConversionShadingRate(cfg)
	return func(d float32) color.Color {
		return conv(1 - ms1.Clamp(math.Abs(d)/band, 0, 1))
	}
}

func vecToRGBA(c ms3.Vec) color.RGBA {
	c = ms3.ClampElem(c, ms3.Vec{}, ms3.Vec{X: 1, Y: 1, Z: 1})
	return color.RGBA{
		R: uint8(c.X * math.MaxUint8),
		G: uint8(c.Y * math.MaxUint8),
		B: uint8(c.Z * math.MaxUint8),
		A: math.MaxUint8,
	}
}

// hsv is a colour in the hue, saturation and value model. All components are in [0,1].
type hsv struct {
	h, s, v float32
}

func hsvOf(c color.Color) hsv {
	r, g, b, _ := c.RGBA()
	return rgbToHSV(float32(r)/0xffff, float32(g)/0xffff, float32(b)/0xffff)
}

// lerp interpolates towards b taking the shortest way around the hue circle.
func (a hsv) lerp(b hsv, t float32) hsv {
	h0, h1 := a.h, b.h
	switch {
	case h1-h0 > 0.5:
		h0++
	case h1-h0 < -0.5:
		h1++
	}
	h := ms1.Interp(h0, h1, t)
	if h >= 1 {
		h--
	}
	return hsv{h: h, s: ms1.Interp(a.s, b.s, t), v: ms1.Interp(a.v, b.v, t)}
}

func (c hsv) rgba() color.RGBA {
	chroma := c.s * c.v
	x := chroma * (1 - math.Abs(math.Mod(c.h*6, 2)-1))
	var rgb ms3.Vec
	switch sector := int(ms1.Clamp(c.h, 0, 1) * 6); sector {
	case 0, 6:
		rgb = ms3.Vec{X: chroma, Y: x}
	case 1:
		rgb = ms3.Vec{X: x, Y: chroma}
	case 2:
		rgb = ms3.Vec{Y: chroma, Z: x}
	case 3:
		rgb = ms3.Vec{Y: x, Z: chroma}
	case 4:
		rgb = ms3.Vec{X: x, Z: chroma}
	default:
		rgb = ms3.Vec{X: chroma, Z: x}
	}
	return vecToRGBA(ms3.AddScalar(c.v-chroma, rgb))
}

func rgbToHSV(r, g, b float32) hsv {
	hi := max(r, g, b)
	chroma := hi - min(r, g, b)
	c := hsv{v: hi}
	if hi > 0 {
		c.s = chroma / hi
	}
	switch {
	case chroma == 0:
	case hi == r:
		c.h = (g - b) / (6 * chroma)
	case hi == g:
		c.h = 1.0/3 + (b-r)/(6*chroma)
	default:
		c.h = 2.0/3 + (r-g)/(6*chroma)
	}
	if c.h < 0 {
		c.h++
	}
	return c
}
