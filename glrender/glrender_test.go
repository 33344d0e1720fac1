package glrender

import (
	"image"
	"image/color"
	"testing"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf"
	"github.com/epicx/raysdf/gleval"
	"github.com/epicx/raysdf/march"
	"github.com/soypat/geometry/ms3"
)

func TestCameraRayProject(t *testing.T) {
	const tol = 1e-3
	const w, h = 80, 60
	cam, err := NewCamera(ms3.Vec{Z: -5}, ms3.Vec{}, ms3.Vec{Y: 1})
	if err != nil {
		t.Fatal(err)
	}
	center := cam.Ray(w/2, h/2, w, h)
	if ms3.Norm(ms3.Sub(center, ms3.Vec{Z: 1})) > tol {
		t.Errorf("center ray %v, want +Z", center)
	}
	up := cam.Ray(w/2, 0, w, h)
	if up.Y <= 0 {
		t.Errorf("top row ray %v should point up", up)
	}
	for _, px := range [][2]float32{{10.5, 20.5}, {79.5, 0.5}, {40, 59}} {
		dir := cam.Ray(px[0], px[1], w, h)
		p := ms3.Add(cam.Position, ms3.Scale(3, dir))
		got, ok := cam.Project(p, w, h)
		if !ok {
			t.Fatalf("point %v in front of camera not projected", p)
		}
		if math32.Abs(got.X-px[0]) > tol || math32.Abs(got.Y-px[1]) > tol {
			t.Errorf("project(ray(%v)) = %v", px, got)
		}
	}
	if _, ok := cam.Project(ms3.Vec{Z: -10}, w, h); ok {
		t.Error("point behind camera should not project")
	}
	if _, err := NewCamera(ms3.Vec{Y: 5}, ms3.Vec{}, ms3.Vec{Y: 1}); err == nil {
		t.Error("expected error for up parallel to view direction")
	}
	if _, err := NewCamera(ms3.Vec{}, ms3.Vec{}, ms3.Vec{Y: 1}); err == nil {
		t.Error("expected error for coincident position and target")
	}
	orbit, err := OrbitCamera(ms3.Vec{}, 4, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ms3.Norm(ms3.Sub(orbit.Position, ms3.Vec{X: 4, Y: 1})) > tol {
		t.Errorf("orbit camera position %v", orbit.Position)
	}
}

func newSphereScene(t *testing.T) *raysdf.Scene {
	t.Helper()
	var bld raysdf.Builder
	scene, err := raysdf.NewScene(bld.NewSphere(1))
	if err != nil {
		t.Fatal(err)
	}
	return scene
}

func TestFrameRenderer(t *testing.T) {
	const w, h = 96, 64
	scene := newSphereScene(t)
	cfg := DefaultFrameConfig(w, h)
	cfg.Workers = 3
	fr, err := NewFrameRenderer(scene, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Close()
	cam, _ := NewCamera(ms3.Vec{Y: 2, Z: -4}, ms3.Vec{}, ms3.Vec{Y: 1})
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	stats, err := fr.Render(img, cam)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Rays != w*h || stats.ISR.SavingsPercent != 0 {
		t.Errorf("first frame should be shaded at full rate: %+v", stats)
	}
	if stats.Hits == 0 || stats.Hits == stats.Rays {
		t.Errorf("expected sphere to cover part of the frame, got %d/%d hits", stats.Hits, stats.Rays)
	}

	// Pixels far from the silhouette match single ray shading.
	tr, err := march.NewTracer(scene, cfg.March)
	if err != nil {
		t.Fatal(err)
	}
	for _, px := range [][2]int{{w / 2, h / 2}, {0, 0}, {w - 1, h - 1}} {
		dir := cam.Ray(float32(px[0])+0.5, float32(px[1])+0.5, w, h)
		res := tr.March(cam.Position, dir)
		want := color.RGBAModel.Convert(tr.Shade(res, dir, cfg.Lights)).(color.RGBA)
		if got := img.RGBAAt(px[0], px[1]); got != want {
			t.Errorf("pixel %v: got %v, want %v (hit=%v)", px, got, want, res.Hit)
		}
	}

	stats2, err := fr.Render(img, cam)
	if err != nil {
		t.Fatal(err)
	}
	if stats2.Frame != 1 || stats2.Rays >= stats.Rays {
		t.Errorf("second frame should shade fewer rays: %d >= %d", stats2.Rays, stats.Rays)
	}
	if stats2.ISR.Histogram[0] == stats2.ISR.TileCount {
		t.Error("second frame has no coarse tiles")
	}
	corner, _ := fr.Analyzer().GetTileShadingRate(0, 0)
	if corner.Divisor() == 1 {
		t.Errorf("empty sky tile should be coarse, got %v", corner)
	}
}

func TestFrameRendererNoISR(t *testing.T) {
	const w, h = 40, 24
	cfg := DefaultFrameConfig(w, h)
	cfg.Workers = 2
	cfg.DisableISR = true
	cfg.ImageImportance = true
	fr, err := NewFrameRenderer(newSphereScene(t), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Close()
	cam, _ := NewCamera(ms3.Vec{Z: -4}, ms3.Vec{}, ms3.Vec{Y: 1})
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for range 2 {
		stats, err := fr.Render(img, cam)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Rays != w*h {
			t.Errorf("frame %d: got %d rays, want %d", stats.Frame, stats.Rays, w*h)
		}
	}
	if len(fr.Importance()) != fr.Analyzer().TileCount() {
		t.Errorf("importance length %d", len(fr.Importance()))
	}
	if _, err := fr.Render(image.NewRGBA(image.Rect(0, 0, 10, 10)), cam); err == nil {
		t.Error("expected error for mismatched image size")
	}
}

func TestNewFrameRendererErrors(t *testing.T) {
	scene := newSphereScene(t)
	cfg := DefaultFrameConfig(0, 10)
	if _, err := NewFrameRenderer(scene, cfg); err == nil {
		t.Error("expected error for zero width")
	}
	cfg = DefaultFrameConfig(10, 10)
	cfg.March.MaxSteps = 0
	if _, err := NewFrameRenderer(scene, cfg); err == nil {
		t.Error("expected error for invalid march config")
	}
	if _, err := NewFrameRenderer(nil, DefaultFrameConfig(10, 10)); err == nil {
		t.Error("expected error for nil field")
	}
}

func TestRegionImportance(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			c := color.RGBA{R: 128, G: 128, B: 128, A: 255}
			if x >= 8 && x < 12 {
				c = color.RGBA{A: 255}
			} else if x >= 12 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	got := TileImportance(nil, img, 8)
	if len(got) != 2 {
		t.Fatalf("got %d tiles, want 2", len(got))
	}
	if got[0] != 0 {
		t.Errorf("flat tile importance %v, want 0", got[0])
	}
	if got[1] < 0.99 {
		t.Errorf("black and white tile importance %v, want 1", got[1])
	}
	if v := RegionImportance(img, image.Rect(100, 100, 110, 110)); v != 0 {
		t.Errorf("region outside image: got %v", v)
	}
}

func TestImageRendererSDF2(t *testing.T) {
	const size = 64
	var bld raysdf.Builder
	circle := bld.NewCircle(1)
	sdf, err := gleval.NewCPUSDF2(circle)
	if err != nil {
		t.Fatal(err)
	}
	ir, err := NewImageRendererSDF2(128, nil)
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	err = ir.Render(sdf, img, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(size/2, size/2); c.R != 0 {
		t.Errorf("circle center should be black, got %v", c)
	}
	if c := img.RGBAAt(0, 0); c.R != 255 {
		t.Errorf("corner should be white, got %v", c)
	}
	gray := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if r := img.RGBAAt(x, y).R; r > 0 && r < 255 {
				gray++
			}
		}
	}
	if gray == 0 {
		t.Error("expected anti-aliased pixels along the circle edge")
	}
	if _, err := NewImageRendererSDF2(8, nil); err == nil {
		t.Error("expected error for small buffer")
	}
	small, _ := NewImageRendererSDF2(65, nil)
	if err := small.Render(sdf, image.NewRGBA(image.Rect(0, 0, 10, 100)), nil); err == nil {
		t.Error("expected error for buffer shorter than image column")
	}
}
