package march_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf"
	"github.com/epicx/raysdf/glbuild"
	"github.com/epicx/raysdf/gleval"
	"github.com/epicx/raysdf/march"
	"github.com/soypat/geometry/ms3"
)

func newTracer(t *testing.T, root glbuild.Shader3D, cfg march.Config) *march.Tracer {
	t.Helper()
	scene, err := raysdf.NewScene(root)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := march.NewTracer(scene, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestMarchSphere(t *testing.T) {
	const tol = 2e-3
	var bld raysdf.Builder
	tr := newTracer(t, bld.NewSphere(1), march.DefaultConfig())
	res := tr.March(ms3.Vec{Z: -5}, ms3.Vec{Z: 1})
	if !res.Hit {
		t.Fatal("expected hit")
	}
	if math32.Abs(res.Distance-4) > tol {
		t.Errorf("distance: got %v, want 4", res.Distance)
	}
	want := ms3.Vec{Z: -1}
	if ms3.Norm(ms3.Sub(res.Normal, want)) > tol {
		t.Errorf("normal: got %v, want %v", res.Normal, want)
	}
	if math32.Abs(ms3.Norm(res.Normal)-1) > 1e-5 {
		t.Errorf("normal not unit length: %v", ms3.Norm(res.Normal))
	}
	if res.Steps < 2 {
		t.Errorf("expected at least 2 steps, got %d", res.Steps)
	}
	if res.AmbientOcclusion < 0 || res.AmbientOcclusion > 1 {
		t.Errorf("ambient occlusion out of range: %v", res.AmbientOcclusion)
	}
}

func TestMarchMiss(t *testing.T) {
	var bld raysdf.Builder
	cfg := march.DefaultConfig()
	tr := newTracer(t, bld.NewSphere(1), cfg)
	res := tr.March(ms3.Vec{Z: -5}, ms3.Vec{Z: -1})
	if res.Hit {
		t.Fatal("expected miss")
	}
	if res.Distance != cfg.MaxDistance {
		t.Errorf("distance: got %v, want %v", res.Distance, cfg.MaxDistance)
	}
	if res.Normal != (ms3.Vec{}) {
		t.Errorf("missed ray normal should be zero, got %v", res.Normal)
	}
	if res.AmbientOcclusion != 1 {
		t.Errorf("missed ray ambient occlusion should be 1, got %v", res.AmbientOcclusion)
	}
}

func TestMarchStepExhaustion(t *testing.T) {
	var bld raysdf.Builder
	cfg := march.DefaultConfig()
	cfg.MaxSteps = 1
	tr := newTracer(t, bld.NewSphere(1), cfg)
	res := tr.March(ms3.Vec{Z: -5}, ms3.Vec{Z: 1})
	if res.Hit {
		t.Fatal("expected miss after exhausting steps")
	}
	if res.Steps != 1 {
		t.Errorf("steps: got %d, want 1", res.Steps)
	}
	if res.Distance != cfg.MaxDistance {
		t.Errorf("distance: got %v, want %v", res.Distance, cfg.MaxDistance)
	}
}

func TestMarchBatchMatchesSingle(t *testing.T) {
	var bld raysdf.Builder
	root := bld.Union(
		bld.NewSphere(1),
		bld.Translate(bld.NewBox(0.5, 0.5, 0.5), 2, 0, 0),
		bld.Translate(bld.NewTorus(1, 0.25), -2, 0, 1),
	)
	tr := newTracer(t, root, march.DefaultConfig())
	rng := rand.New(rand.NewSource(1))
	const N = 64
	origins := make([]ms3.Vec, N)
	dirs := make([]ms3.Vec, N)
	for i := range origins {
		origins[i] = ms3.Vec{X: rng.Float32()*8 - 4, Y: rng.Float32()*8 - 4, Z: -6}
		dirs[i] = ms3.Unit(ms3.Vec{X: rng.Float32() - 0.5, Y: rng.Float32() - 0.5, Z: 1})
	}
	batch := tr.MarchBatch(nil, origins, dirs)
	if len(batch) != N {
		t.Fatalf("got %d results, want %d", len(batch), N)
	}
	hits := 0
	for i := range batch {
		single := tr.March(origins[i], dirs[i])
		if single != batch[i] {
			t.Errorf("ray %d: batch %+v != single %+v", i, batch[i], single)
		}
		if single.Hit {
			hits++
		}
	}
	if hits == 0 {
		t.Error("expected some rays to hit the scene")
	}
}

func TestMarchRandomRaysNoTunneling(t *testing.T) {
	// Rays aimed inside the sphere must stop on a surface, never past it.
	var bld raysdf.Builder
	cfg := march.DefaultConfig()
	scene, err := raysdf.NewScene(bld.Union(bld.NewSphere(1), bld.Translate(bld.NewCylinder(0.5, 1), 3, 0, 0)))
	if err != nil {
		t.Fatal(err)
	}
	tr, err := march.NewTracer(scene, cfg)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(2))
	randDir := func() ms3.Vec {
		return ms3.Unit(ms3.Vec{X: rng.Float32() - .5, Y: rng.Float32() - .5, Z: rng.Float32() - .5})
	}
	for i := 0; i < 200; i++ {
		target := ms3.Scale(0.9*rng.Float32(), randDir())
		origin := ms3.Scale(6, randDir())
		dir := ms3.Unit(ms3.Sub(target, origin))
		res := tr.March(origin, dir)
		if !res.Hit {
			t.Fatalf("ray from %v to %v missed", origin, target)
		}
		if res.Distance > ms3.Norm(ms3.Sub(target, origin)) {
			t.Errorf("ray from %v stopped past its target: t=%v", origin, res.Distance)
		}
		d := scene.Distance(res.Position)
		if d >= cfg.SurfaceEpsilon || d < -1e-4 {
			t.Errorf("hit position %v is not on the surface: d=%v", res.Position, d)
		}
	}
}

// firstCrossing samples scene every ds along the ray and returns the ray
// parameter of the first sample inside the surface or +Inf if there is none.
func firstCrossing(t *testing.T, scene *raysdf.Scene, origin, dir ms3.Vec, tmax, ds float32) float32 {
	t.Helper()
	pos := make([]ms3.Vec, int(tmax/ds)+1)
	for i := range pos {
		pos[i] = ms3.Add(origin, ms3.Scale(float32(i)*ds, dir))
	}
	dist := make([]float32, len(pos))
	if err := scene.Evaluate(pos, dist, nil); err != nil {
		t.Fatal(err)
	}
	for i, d := range dist {
		if d < 0 {
			return float32(i) * ds
		}
	}
	return math32.Inf(1)
}

func TestMarchDoesNotSkipSurfaces(t *testing.T) {
	var bld raysdf.Builder
	cfg := march.DefaultConfig()
	cfg.MaxSteps = 4000 // Grazing rays must not run out of steps.
	const ds = 4e-3
	for _, test := range []struct {
		name string
		s    glbuild.Shader3D
	}{
		{"sphere", bld.NewSphere(1)},
		{"box", bld.NewBox(1, 0.5, 0.75)},
		{"round box", bld.NewRoundBox(1, 0.5, 0.75, 0.2)},
		{"cylinder", bld.NewCylinder(0.5, 1)},
		{"torus", bld.NewTorus(1, 0.25)},
		{"capsule", bld.NewCapsule(ms3.Vec{X: -1}, ms3.Vec{Y: 1}, 0.3)},
		{"cone", bld.NewCone(0.8, 1.5)},
		{"pyramid", bld.NewPyramid(0.5, 1)},
		{"ellipsoid", bld.NewEllipsoid(1, 0.5, 0.8)},
		{"revolve", bld.Revolve(bld.NewRectangle(0.5, 1, 0.1), 0.6)},
		{"extrude", bld.Extrude(bld.NewLine2D(0, 0, 1, 1, 0.2), 0.5)},
		{"smooth union", bld.SmoothUnion(0.3, bld.NewSphere(0.6), bld.Translate(bld.NewBox(0.5, 0.5, 0.5), 0.8, 0, 0))},
		{"twist", bld.Twist(bld.NewBox(0.3, 1, 0.6), 1.5)},
		{"bend", bld.Bend(bld.NewBox(1.2, 0.2, 0.3), 0.8)},
		{"translated twist", bld.Translate(bld.Twist(bld.Twist(bld.NewBox(0.3, 1, 0.6), 1), 0.5), 0.5, 0, 0)},
		{"quadratic bezier", bld.NewBezierQuadratic(ms3.Vec{X: -1}, ms3.Vec{Y: 2, Z: 0.5}, ms3.Vec{X: 1}, 0.15)},
		{"cubic bezier", bld.NewBezierCubic(ms3.Vec{X: -1}, ms3.Vec{X: -0.5, Y: 1.5}, ms3.Vec{X: 0.5, Y: -1.5, Z: 0.5}, ms3.Vec{X: 1}, 0.15)},
	} {
		scene, err := raysdf.NewScene(test.s)
		if err != nil {
			t.Fatal(err)
		}
		tr, err := march.NewTracer(scene, cfg)
		if err != nil {
			t.Fatal(err)
		}
		bb := scene.Bounds()
		center, size := bb.Center(), bb.Size()
		radius := ms3.Norm(size)
		rng := rand.New(rand.NewSource(3))
		randDir := func() ms3.Vec {
			return ms3.Unit(ms3.Vec{X: rng.Float32() - .5, Y: rng.Float32() - .5, Z: rng.Float32() - .5})
		}
		skipped := 0
		for i := 0; i < 100; i++ {
			origin := ms3.Add(center, ms3.Scale(2*radius, randDir()))
			target := ms3.Add(bb.Min, ms3.MulElem(size, ms3.Vec{X: rng.Float32(), Y: rng.Float32(), Z: rng.Float32()}))
			dir := ms3.Unit(ms3.Sub(target, origin))
			cross := firstCrossing(t, scene, origin, dir, 3*radius, ds)
			res := tr.March(origin, dir)
			switch {
			case math32.IsInf(cross, 1):
			case !res.Hit:
				t.Errorf("%s: ray from %v missed surface crossed at t=%v", test.name, origin, cross)
				skipped++
			case res.Distance > cross+ds:
				t.Errorf("%s: ray from %v hit at t=%v past surface crossed at t=%v", test.name, origin, res.Distance, cross)
				skipped++
			}
			if skipped > 3 {
				break
			}
		}
	}
}

func TestOcclusionFieldKeepsNormals(t *testing.T) {
	var bld raysdf.Builder
	scene, err := raysdf.NewScene(bld.NewSphere(1))
	if err != nil {
		t.Fatal(err)
	}
	exact, err := march.NewTracer(scene, march.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	cached, err := march.NewTracer(scene, march.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	var cache gleval.BlockCachedSDF3
	if err := cache.Reset(scene, 0.01, 0.01, 0.01); err != nil {
		t.Fatal(err)
	}
	cached.SetOcclusionField(&cache)

	origin, dir := ms3.Vec{X: 0.3, Y: 0.2, Z: -5}, ms3.Vec{Z: 1}
	want := exact.March(origin, dir)
	got := cached.March(origin, dir)
	if !got.Hit || !want.Hit {
		t.Fatal("expected both rays to hit")
	}
	if got.Distance != want.Distance || got.Normal != want.Normal {
		t.Errorf("occlusion field changed the primary hit: got %+v, want %+v", got, want)
	}
	wantNormal := ms3.Unit(ms3.Vec{X: 0.3, Y: 0.2, Z: -math32.Sqrt(1 - 0.13)})
	if ms3.Norm(ms3.Sub(got.Normal, wantNormal)) > 5e-3 {
		t.Errorf("normal: got %v, want %v", got.Normal, wantNormal)
	}
	if cache.Evaluations() == 0 {
		t.Error("ambient occlusion taps should query the occlusion field")
	}
	if got.AmbientOcclusion < 0 || got.AmbientOcclusion > want.AmbientOcclusion+1e-6 {
		t.Errorf("cached ambient occlusion %v should not exceed exact %v", got.AmbientOcclusion, want.AmbientOcclusion)
	}
	// Lit side of a convex shape stays unshadowed with the coarse field.
	if sh := cached.SoftShadow(got.Position, got.Normal, ms3.Scale(-1, dir)); sh != 1 {
		t.Errorf("soft shadow through occlusion field: got %v, want 1", sh)
	}

	cached.SetOcclusionField(nil)
	if again := cached.March(origin, dir); again != want {
		t.Errorf("restoring the marched field: got %+v, want %+v", again, want)
	}
}

func TestStepFactor(t *testing.T) {
	var bld raysdf.Builder
	cfg := march.DefaultConfig()
	exact := newTracer(t, bld.NewSphere(1), cfg)
	if exact.StepFactor() != 1 {
		t.Errorf("exact scene step factor: got %v, want 1", exact.StepFactor())
	}
	blended := newTracer(t, bld.SmoothUnion(0.3, bld.NewSphere(1), bld.Translate(bld.NewSphere(1), 1.5, 0, 0)), cfg)
	if blended.StepFactor() != cfg.RelaxationFactor {
		t.Errorf("blended scene step factor: got %v, want %v", blended.StepFactor(), cfg.RelaxationFactor)
	}
	res := blended.March(ms3.Vec{X: 0.75, Y: 5}, ms3.Vec{Y: -1})
	if !res.Hit {
		t.Error("expected hit on blended scene")
	}

	twisted, err := raysdf.NewScene(bld.Twist(bld.NewBox(0.3, 1, 0.6), 1.5))
	if err != nil {
		t.Fatal(err)
	}
	if twisted.Lipschitz() <= 1 {
		t.Fatalf("twist should stretch space, got Lipschitz %v", twisted.Lipschitz())
	}
	tr, err := march.NewTracer(twisted, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if want := 1 / twisted.Lipschitz(); tr.StepFactor() != want {
		t.Errorf("twisted scene step factor: got %v, want %v", tr.StepFactor(), want)
	}
}

func TestSoftShadow(t *testing.T) {
	var bld raysdf.Builder
	up := ms3.Vec{Y: 1}
	root := bld.Union(
		bld.NewPlane(up, 0),
		bld.Translate(bld.NewSphere(0.5), 0, 1.5, 0),
	)
	tr := newTracer(t, root, march.DefaultConfig())
	if s := tr.SoftShadow(ms3.Vec{}, up, up); s != 0 {
		t.Errorf("point under sphere should be fully shadowed, got %v", s)
	}
	if s := tr.SoftShadow(ms3.Vec{X: 10}, up, up); s != 1 {
		t.Errorf("open point should be unshadowed, got %v", s)
	}
	penumbra := tr.SoftShadow(ms3.Vec{X: 0.6}, up, up)
	if penumbra < 0 || penumbra > 1 {
		t.Errorf("shadow out of range: %v", penumbra)
	}
	batch := tr.SoftShadows(nil, []ms3.Vec{{}, {X: 10}, {X: 0.6}}, []ms3.Vec{up, up, up}, up)
	if batch[0] != 0 || batch[1] != 1 || batch[2] != penumbra {
		t.Errorf("batch shadows %v do not match single evaluations", batch)
	}
}

func TestAmbientOcclusion(t *testing.T) {
	var bld raysdf.Builder
	up := ms3.Vec{Y: 1}
	open := newTracer(t, bld.NewPlane(up, 0), march.DefaultConfig())
	if ao := open.AmbientOcclusion(ms3.Vec{}, up); math32.Abs(ao-1) > 1e-5 {
		t.Errorf("open plane ambient occlusion: got %v, want 1", ao)
	}
	crease := newTracer(t, bld.Union(bld.NewPlane(up, 0), bld.NewPlane(ms3.Vec{X: 1}, 0)), march.DefaultConfig())
	ao := crease.AmbientOcclusion(ms3.Vec{X: 0.02}, up)
	if ao >= 1 || ao < 0 {
		t.Errorf("crease ambient occlusion should be in [0,1), got %v", ao)
	}
}

func TestShade(t *testing.T) {
	var bld raysdf.Builder
	tr := newTracer(t, bld.NewSphere(1), march.DefaultConfig())
	lights := []march.Light{{Direction: ms3.Vec{Z: -1}, Color: march.RGB(1, 1, 1)}}
	dir := ms3.Vec{Z: 1}
	hit := tr.March(ms3.Vec{Z: -5}, dir)
	lit := tr.Shade(hit, dir, lights)
	unlit := tr.Shade(hit, dir, nil)
	if lit.R+lit.G+lit.B <= unlit.R+unlit.G+unlit.B {
		t.Errorf("lit colour %v should be brighter than ambient only %v", lit, unlit)
	}
	for _, c := range []march.Color{lit, unlit} {
		if c.A != 1 {
			t.Errorf("expected opaque colour, got %v", c)
		}
		for _, v := range []float32{c.R, c.G, c.B} {
			if v < 0 || v > 1 {
				t.Errorf("colour channel out of range: %v", c)
			}
		}
	}
	missUp := tr.Shade(tr.March(ms3.Vec{Z: -5}, ms3.Vec{Y: 1}), ms3.Vec{Y: 1}, lights)
	missDown := tr.Shade(tr.March(ms3.Vec{Z: -5}, ms3.Vec{Y: -1}), ms3.Vec{Y: -1}, lights)
	if missUp == missDown {
		t.Error("sky gradient should depend on the ray's vertical component")
	}
	sh := tr.Shading()
	if want := sh.Sky(ms3.Vec{Y: 1}).Clamp(); missUp != want {
		t.Errorf("missed ray: got %v, want sky %v", missUp, want)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := march.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	bad := cfg
	bad.MaxSteps = 0
	bad.RelaxationFactor = 1.5
	err := bad.Validate()
	if !errors.Is(err, raysdf.ErrInvalidParameter) {
		t.Errorf("expected invalid parameter error, got %v", err)
	}
	var bld raysdf.Builder
	scene, err := raysdf.NewScene(bld.NewSphere(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := march.NewTracer(scene, bad); err == nil {
		t.Error("expected NewTracer to reject invalid config")
	}
	tr, _ := march.NewTracer(scene, cfg)
	sh := march.DefaultShading()
	sh.Material.Roughness = 2
	if err := tr.SetShading(sh); !errors.Is(err, raysdf.ErrInvalidParameter) {
		t.Errorf("expected invalid roughness error, got %v", err)
	}
}

func TestShadeMaterials(t *testing.T) {
	var bld raysdf.Builder
	left := bld.WithMaterial(bld.Translate(bld.NewSphere(0.8), -1, 0, 0), 0)
	right := bld.WithMaterial(bld.Translate(bld.NewSphere(0.8), 1, 0, 0), 1)
	tr := newTracer(t, bld.Union(left, right), march.DefaultConfig())
	sh := march.DefaultShading()
	sh.Ambient = march.RGB(1, 1, 1)
	sh.FogDensity = 0
	sh.Materials = []march.Material{
		{Albedo: march.RGB(1, 0, 0), Roughness: 1},
		{Albedo: march.RGB(0, 0, 1), Roughness: 1},
	}
	if err := tr.SetShading(sh); err != nil {
		t.Fatal(err)
	}
	origins := []ms3.Vec{{X: -1, Z: -5}, {X: 1, Z: -5}}
	dirs := []ms3.Vec{{Z: 1}, {Z: 1}}
	results := tr.MarchBatch(nil, origins, dirs)
	colors := tr.ShadeBatch(nil, results, dirs, march.DefaultLights())
	for i, want := range []string{"red", "blue"} {
		if !results[i].Hit {
			t.Fatalf("ray %d missed", i)
		}
		c := colors[i]
		if (want == "red") != (c.R > c.B) {
			t.Errorf("sphere %d: want %s dominant colour, got %v", i, want, c)
		}
	}

	// Ids outside the palette use the default material.
	sh.Materials = sh.Materials[:1]
	sh.Material.Albedo = march.RGB(0, 1, 0)
	if err := tr.SetShading(sh); err != nil {
		t.Fatal(err)
	}
	colors = tr.ShadeBatch(colors[:0], results, dirs, march.DefaultLights())
	if c := colors[1]; c.G <= c.R || c.G <= c.B {
		t.Errorf("sphere without palette entry: want green dominant colour, got %v", c)
	}

	sh.Materials = []march.Material{{Metallic: 2}}
	if err := tr.SetShading(sh); !errors.Is(err, raysdf.ErrInvalidParameter) {
		t.Errorf("expected invalid palette material error, got %v", err)
	}
}

func TestClosestApproach(t *testing.T) {
	var bld raysdf.Builder
	tr := newTracer(t, bld.NewSphere(1), march.DefaultConfig())
	origin, dir := ms3.Vec{X: 1.05, Z: -5}, ms3.Vec{Z: 1}
	res := tr.March(origin, dir)
	if res.Hit {
		t.Fatal("grazing ray should miss")
	}
	if math32.Abs(res.MinDistance-0.05) > 5e-3 {
		t.Errorf("min distance: got %v, want 0.05", res.MinDistance)
	}
	near := tr.ClosestApproach(res, origin, dir)
	if !near.Hit {
		t.Fatal("closest approach should be shaded as a hit")
	}
	if math32.Abs(near.Position.Z) > 0.1 {
		t.Errorf("closest approach should be near z=0, got %v", near.Position)
	}
	if ms3.Norm(ms3.Sub(near.Normal, ms3.Vec{X: 1})) > 0.1 {
		t.Errorf("normal at closest approach: got %v, want +X", near.Normal)
	}

	hit := tr.March(ms3.Vec{Z: -5}, dir)
	if got := tr.ClosestApproach(hit, ms3.Vec{Z: -5}, dir); got != hit {
		t.Errorf("hit result should be returned unchanged: %+v != %+v", got, hit)
	}
}
