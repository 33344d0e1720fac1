package glrender

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// DefaultFocalLength is the distance from the eye to the image plane in units
// of half the image height.
const DefaultFocalLength = 1.2

// Camera is a pinhole camera that generates primary rays. Forward, Right and Up
// form an orthonormal right handed basis. Pixel coordinates have their origin
// at the top left corner of the image with y growing downward.
type Camera struct {
	Position ms3.Vec
	Forward  ms3.Vec
	Right    ms3.Vec
	Up       ms3.Vec
	Focal    float32
}

// NewCamera returns a camera at position looking at target. worldUp orients
// the camera and must not be parallel to the viewing direction.
func NewCamera(position, target, worldUp ms3.Vec) (Camera, error) {
	fwd := ms3.Sub(target, position)
	fn := ms3.Norm(fwd)
	if fn == 0 || math32.IsNaN(fn) {
		return Camera{}, errors.New("camera position and target coincide")
	}
	fwd = ms3.Scale(1/fn, fwd)
	right := ms3.Cross(fwd, worldUp)
	rn := ms3.Norm(right)
	if rn < 1e-6 {
		return Camera{}, errors.New("camera up vector parallel to view direction")
	}
	right = ms3.Scale(1/rn, right)
	return Camera{
		Position: position,
		Forward:  fwd,
		Right:    right,
		Up:       ms3.Cross(right, fwd),
		Focal:    DefaultFocalLength,
	}, nil
}

// OrbitCamera returns a camera circling target at the given horizontal radius
// and height above it, at angle radians around the Y axis.
func OrbitCamera(target ms3.Vec, radius, height, angle float32) (Camera, error) {
	s, c := math32.Sincos(angle)
	pos := ms3.Add(target, ms3.Vec{X: radius * c, Y: height, Z: radius * s})
	return NewCamera(pos, target, ms3.Vec{Y: 1})
}

// Ray returns the unit direction of the ray through the continuous pixel
// coordinate (px,py) of a width x height image. The center of pixel (i,j) is (i+0.5, j+0.5).
func (c *Camera) Ray(px, py float32, width, height int) ms3.Vec {
	aspect := float32(width) / float32(height)
	u := (2*px/float32(width) - 1) * aspect
	v := 1 - 2*py/float32(height)
	d := ms3.Add(ms3.Scale(c.Focal, c.Forward), ms3.Add(ms3.Scale(u, c.Right), ms3.Scale(v, c.Up)))
	return ms3.Unit(d)
}

// Project returns the continuous pixel coordinate p projects to. ok is false
// for points behind the camera.
func (c *Camera) Project(p ms3.Vec, width, height int) (px ms2.Vec, ok bool) {
	rel := ms3.Sub(p, c.Position)
	z := ms3.Dot(rel, c.Forward)
	if z <= 0 {
		return ms2.Vec{}, false
	}
	aspect := float32(width) / float32(height)
	u := ms3.Dot(rel, c.Right) / z * c.Focal / aspect
	v := ms3.Dot(rel, c.Up) / z * c.Focal
	return ms2.Vec{
		X: (u + 1) * 0.5 * float32(width),
		Y: (1 - v) * 0.5 * float32(height),
	}, true
}

// PixelFootprint returns the approximate world size of one pixel at distance t
// from the camera in an image of the given height.
func (c *Camera) PixelFootprint(t float32, height int) float32 {
	return t * 2 / (float32(height) * c.Focal)
}
