package glrender

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf/aa"
	"github.com/epicx/raysdf/gleval"
	"github.com/soypat/geometry/ms2"
)

type setImage = interface {
	image.Image
	Set(x, y int, c color.Color)
}

// ImageRendererSDF2 converts 2D SDFs to images.
type ImageRendererSDF2 struct {
	conv func(d, pixelWidth float32) color.Color
	// Two columns of distances, each one sample longer than the image height,
	// so every pixel has its right and lower neighbour for derivatives.
	pos  []ms2.Vec
	cur  []float32
	next []float32
}

// NewImageRendererSDF2 instances a new [ImageRendererSDF2] to render images from 2D SDFs. A nil float->color conversion
// function results in an anti-aliased black-white color scheme where black is the interior of the SDF (negative distance).
func NewImageRendererSDF2(evalBufferSize int, conversion func(float32) color.Color) (*ImageRendererSDF2, error) {
	if conversion == nil {
		return NewImageRendererSDF2AA(evalBufferSize, color.Black, color.White, 1)
	}
	return newImageRenderer(evalBufferSize, func(d, _ float32) color.Color { return conversion(d) })
}

// NewImageRendererSDF2AA returns a renderer that fills the interior of the SDF
// with inside and the exterior with outside, blending across a ramp of
// softness pixels given by [aa.CoverageWidth]. NaN and infinite distances are drawn red.
func NewImageRendererSDF2AA(evalBufferSize int, inside, outside color.Color, softness float32) (*ImageRendererSDF2, error) {
	if softness < 0 {
		return nil, errors.New("negative anti-aliasing softness")
	}
	return newImageRenderer(evalBufferSize, func(d, pixelWidth float32) color.Color {
		if math32.IsNaN(d) || math32.IsInf(d, 0) {
			return color.RGBA{R: 255, A: 255}
		}
		return aa.BlendColor(inside, outside, aa.CoverageWidth(d, pixelWidth*softness))
	})
}

func newImageRenderer(evalBufferSize int, conv func(d, pixelWidth float32) color.Color) (*ImageRendererSDF2, error) {
	if evalBufferSize <= 64 {
		return nil, errors.New("too small evaluation buffer size")
	}
	return &ImageRendererSDF2{
		conv: conv,
		pos:  make([]ms2.Vec, evalBufferSize),
		cur:  make([]float32, evalBufferSize),
		next: make([]float32, evalBufferSize),
	}, nil
}

// Render maps the SDF2's bounds to the input Image and renders it. The top
// row of the image is the top of the bounds. It uses userData as an argument to all [gleval.SDF2.Evaluate] calls.
func (ir *ImageRendererSDF2) Render(sdf gleval.SDF2, img setImage, userData any) error {
	imgBB := img.Bounds()
	dxi := imgBB.Dx()
	dyi := imgBB.Dy()
	if len(ir.cur) < dyi+1 {
		return fmt.Errorf("require evaluation buffer (%d) to be longer than image columns (%d)", len(ir.cur), dyi)
	}
	bb := sdf.Bounds()
	sz := bb.Size()
	dx := sz.X / float32(dxi)
	dy := sz.Y / float32(dyi)
	xmin := bb.Min.X + dx/2 // Offset to center pixels.
	ymax := bb.Max.Y - dy/2
	err := ir.evalColumn(sdf, ir.cur[:dyi+1], xmin, ymax, dy, userData)
	if err != nil {
		return err
	}
	for i := 0; i < dxi; i++ {
		x := float32(i+1)*dx + xmin
		err = ir.evalColumn(sdf, ir.next[:dyi+1], x, ymax, dy, userData)
		if err != nil {
			return err
		}
		for j := 0; j < dyi; j++ {
			d := ir.cur[j]
			pw := aa.FWidthSamples(d, ir.next[j], ir.cur[j+1])
			img.Set(i+imgBB.Min.X, j+imgBB.Min.Y, ir.conv(d, pw))
		}
		ir.cur, ir.next = ir.next, ir.cur
	}
	return nil
}

func (ir *ImageRendererSDF2) evalColumn(sdf gleval.SDF2, dist []float32, x, ymax, dy float32, userData any) error {
	pos := ir.pos[:len(dist)]
	for j := range pos {
		pos[j] = ms2.Vec{X: x, Y: ymax - float32(j)*dy}
	}
	return sdf.Evaluate(pos, dist, userData)
}
