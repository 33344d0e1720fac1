package aa

import (
	"image/color"
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
)

func TestCoverageMidpoint(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		dx := rng.Float32()*2 - 1
		dy := rng.Float32()*2 - 1
		if dx == 0 && dy == 0 {
			continue
		}
		got := Coverage(0, dx, dy)
		if got != 0.5 {
			t.Errorf("Coverage(0,%v,%v)=%v, want 0.5", dx, dy, got)
		}
	}
	if got := CoverageWidth(0, 0); got != 0.5 {
		t.Errorf("zero width coverage on surface: got %v, want 0.5", got)
	}
}

func TestCoverageRamp(t *testing.T) {
	const w = 0.25
	tests := []struct {
		sdf  float32
		want float32
	}{
		{sdf: -1, want: 1},
		{sdf: -w, want: 1},
		{sdf: w, want: 0},
		{sdf: 1, want: 0},
	}
	for _, test := range tests {
		got := CoverageWidth(test.sdf, w)
		if got != test.want {
			t.Errorf("CoverageWidth(%v,%v)=%v, want %v", test.sdf, w, got, test.want)
		}
	}
	prev := float32(2)
	for d := float32(-w); d <= w; d += w / 16 {
		c := CoverageWidth(d, w)
		if c > prev {
			t.Fatalf("coverage not monotonically decreasing at %v", d)
		}
		prev = c
	}
	// Ramp width depends on the derivative, not on a constant.
	if Coverage(0.1, 0.1, 0.1) <= Coverage(0.1, 0.05, 0.05) {
		t.Error("wider derivative should widen the ramp")
	}
	if CoverageSoft(0.1, 0.1, 0, 2) != CoverageWidth(0.1, 0.2) {
		t.Error("softness should scale the pixel width")
	}
}

func TestSilhouette(t *testing.T) {
	if got := Silhouette(true, 0.3, 0.1); got != 1 {
		t.Errorf("hit pixel silhouette: got %v, want 1", got)
	}
	if got := Silhouette(false, 10, 0.1); got != 0 {
		t.Errorf("far miss silhouette: got %v, want 0", got)
	}
	got := Silhouette(false, 0.02, 0.1)
	if got <= 0 || got >= 1 {
		t.Errorf("grazing miss silhouette should be partial, got %v", got)
	}
}

func TestSmoothsteps(t *testing.T) {
	for _, fn := range []func(a, b, x float32) float32{Smoothstep, Smootherstep} {
		if fn(0, 1, -1) != 0 || fn(0, 1, 2) != 1 || fn(0, 1, 0.5) != 0.5 {
			t.Error("smoothstep edge values incorrect")
		}
	}
}

func TestEdgeOutline(t *testing.T) {
	if got := Edge(0, 0.1, 1); got != 1 {
		t.Errorf("edge on contour: got %v, want 1", got)
	}
	if got := Edge(1, 0.1, 1); got != 0 {
		t.Errorf("edge far from contour: got %v, want 0", got)
	}
	fill, outline := Outline(-1, 0.1, 0.2)
	if fill != 1 || outline != 0 {
		t.Errorf("deep inside outline: got fill=%v outline=%v", fill, outline)
	}
	fill, outline = Outline(0, 0.01, 0.2)
	if fill != 0.5 || outline != 1 {
		t.Errorf("contour outline: got fill=%v outline=%v", fill, outline)
	}
}

func TestSampling(t *testing.T) {
	// Half plane x<0.
	halfPlane := func(p ms2.Vec) float32 { return p.X }
	if got := Supersample(halfPlane, ms2.Vec{}, 1, 4); got != 0.5 {
		t.Errorf("supersampled half plane coverage: got %v, want 0.5", got)
	}
	if got := Supersample(halfPlane, ms2.Vec{X: -5}, 1, 4); got != 1 {
		t.Errorf("supersampled interior coverage: got %v, want 1", got)
	}
	if got := Multisample(halfPlane, ms2.Vec{X: 3}, 1, 4); math32.Abs(got-3) > 1e-6 {
		t.Errorf("multisampled distance: got %v, want 3", got)
	}
	if got := Multisample(halfPlane, ms2.Vec{X: 3}, 1, 1); got != 3 {
		t.Errorf("single sample distance: got %v, want 3", got)
	}
}

func TestBlendColor(t *testing.T) {
	white := color.RGBA64{R: 0xffff, G: 0xffff, B: 0xffff, A: 0xffff}
	black := color.RGBA64{A: 0xffff}
	if got := BlendColor(white, black, 1); got != white {
		t.Errorf("full coverage: got %v", got)
	}
	if got := BlendColor(white, black, 0); got != black {
		t.Errorf("zero coverage: got %v", got)
	}
	mid := BlendColor(white, black, 0.5)
	if mid.R < 0x7fff || mid.R > 0x8000 || mid.A != 0xffff {
		t.Errorf("half coverage: got %v", mid)
	}
}
