package gleval_test

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf"
	"github.com/epicx/raysdf/gleval"
	"github.com/soypat/geometry/ms3"
)

func TestVecPool(t *testing.T) {
	var vp gleval.VecPool
	a := vp.Float.Acquire(8)
	b := vp.Float.Acquire(4)
	if len(a) != 8 || len(b) != 4 {
		t.Fatalf("bad lengths %d %d", len(a), len(b))
	}
	if err := vp.AssertAllReleased(); err == nil {
		t.Error("expected unreleased buffer error")
	}
	if err := vp.Float.Release(a); err != nil {
		t.Fatal(err)
	}
	if err := vp.Float.Release(a); err == nil {
		t.Error("expected double release error")
	}
	if err := vp.Float.Release(make([]float32, 3)); err == nil {
		t.Error("expected foreign buffer release error")
	}
	if err := vp.Float.Release(b); err != nil {
		t.Fatal(err)
	}
	if err := vp.AssertAllReleased(); err != nil {
		t.Fatal(err)
	}
	// Released buffers are reused.
	c := vp.Float.Acquire(6)
	vp.Float.Release(c)
	if vp.TotalAlloc() != 2 {
		t.Errorf("want 2 allocations, got %d", vp.TotalAlloc())
	}
}

func TestGetVecPool(t *testing.T) {
	var bld raysdf.Builder
	sdf, err := gleval.NewCPUSDF3(bld.NewSphere(1))
	if err != nil {
		t.Fatal(err)
	}
	vp, err := gleval.GetVecPool(sdf)
	if err != nil || vp != sdf.VecPool() {
		t.Errorf("VecPool provider not resolved: %v", err)
	}
	if _, err := gleval.GetVecPool(nil); err == nil {
		t.Error("expected error for nil userData")
	}
	if _, err := gleval.GetVecPool(42); err == nil {
		t.Error("expected error for bad userData type")
	}
}

func TestNormalsCentralDiff(t *testing.T) {
	var bld raysdf.Builder
	sdf, err := gleval.NewCPUSDF3(bld.NewSphere(1))
	if err != nil {
		t.Fatal(err)
	}
	pos := []ms3.Vec{{X: 1}, {Y: -1}, ms3.Unit(ms3.Vec{X: 1, Y: 1, Z: 1})}
	normals := make([]ms3.Vec, len(pos))
	err = sdf.EvaluateNormalsCentralDiff(pos, normals, 1e-3)
	if err != nil {
		t.Fatal(err)
	}
	for i, n := range normals {
		got := ms3.Unit(n)
		if ms3.Norm(ms3.Sub(got, pos[i])) > 1e-2 {
			t.Errorf("normal at %v: got %v", pos[i], got)
		}
	}
	if err := gleval.NormalsCentralDiff(sdf, pos, normals[:1], 1e-3, sdf.VecPool()); err == nil {
		t.Error("expected length mismatch error")
	}
	if err := gleval.NormalsCentralDiff(sdf, pos, normals, 0, sdf.VecPool()); err == nil {
		t.Error("expected invalid step error")
	}
}

func TestBlockCachedSDF3(t *testing.T) {
	var bld raysdf.Builder
	scene, err := raysdf.NewScene(bld.NewSphere(1))
	if err != nil {
		t.Fatal(err)
	}
	var cache gleval.BlockCachedSDF3
	if err := cache.Reset(scene, 0, 1, 1); err == nil {
		t.Error("expected invalid resolution error")
	}
	const res = 0.5
	if err := cache.Reset(scene, res, res, res); err != nil {
		t.Fatal(err)
	}
	margin := math32.Sqrt(3) * res / 2
	if math32.Abs(cache.Margin()-margin) > 1e-6 {
		t.Errorf("margin: got %v, want %v", cache.Margin(), margin)
	}
	pos := []ms3.Vec{{X: 2}, {X: 2.1}, {X: 3}, {X: 2}}
	dist := make([]float32, len(pos))
	var vp gleval.VecPool
	if err := cache.Evaluate(pos, dist, &vp); err != nil {
		t.Fatal(err)
	}
	// 2 and 2.1 fall in the block centered at x=2.
	want := []float32{1 - margin, 1 - margin, 2 - margin, 1 - margin}
	for i := range want {
		if math32.Abs(dist[i]-want[i]) > 1e-6 {
			t.Errorf("cached distance at %v: got %v, want %v", pos[i], dist[i], want[i])
		}
	}
	if err := cache.Evaluate(pos, dist, &vp); err != nil {
		t.Fatal(err)
	}
	if cache.Evaluations() != 8 {
		t.Errorf("want 8 evaluations, got %d", cache.Evaluations())
	}
	// Only the two block centers were evaluated.
	if cache.CacheHits() != 6 {
		t.Errorf("want 6 cache hits, got %d", cache.CacheHits())
	}
	if cache.BoundRelaxed() {
		t.Error("sphere scene is an exact bound")
	}
	if cache.Bounds() != scene.Bounds() {
		t.Error("cache bounds differ from the wrapped field")
	}

	blend, err := raysdf.NewScene(bld.SmoothUnion(0.2, bld.NewSphere(1), bld.NewBox(1, 1, 1)))
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Reset(blend, res, res, res); err != nil {
		t.Fatal(err)
	}
	if !cache.BoundRelaxed() {
		t.Error("smooth blend should report a relaxed bound through the cache")
	}
	if cache.Evaluations() != 0 {
		t.Error("Reset should clear statistics")
	}

	twisted, err := raysdf.NewScene(bld.Twist(bld.NewBox(0.3, 1, 0.6), 1.5))
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Reset(twisted, res, res, res); err != nil {
		t.Fatal(err)
	}
	if cache.Lipschitz() != twisted.Lipschitz() {
		t.Errorf("cache Lipschitz %v differs from scene %v", cache.Lipschitz(), twisted.Lipschitz())
	}
	if math32.Abs(cache.Margin()-margin*twisted.Lipschitz()) > 1e-6 {
		t.Errorf("twisted scene margin: got %v, want %v", cache.Margin(), margin*twisted.Lipschitz())
	}
}

func TestBlockCachedSDF3LowerBound(t *testing.T) {
	var bld raysdf.Builder
	scene, err := raysdf.NewScene(bld.Union(bld.NewSphere(1), bld.Translate(bld.NewBox(0.5, 0.5, 0.5), 1.5, 0, 0)))
	if err != nil {
		t.Fatal(err)
	}
	var cache gleval.BlockCachedSDF3
	const res = 0.05
	if err := cache.Reset(scene, res, res, res); err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))
	pos := make([]ms3.Vec, 512)
	for i := range pos {
		pos[i] = ms3.Vec{X: 6*rng.Float32() - 3, Y: 4*rng.Float32() - 2, Z: 4*rng.Float32() - 2}
	}
	exact := make([]float32, len(pos))
	cached := make([]float32, len(pos))
	if err := scene.Evaluate(pos, exact, nil); err != nil {
		t.Fatal(err)
	}
	if err := cache.Evaluate(pos, cached, nil); err != nil {
		t.Fatal(err)
	}
	for i := range pos {
		if cached[i] > exact[i]+1e-5 {
			t.Errorf("cached distance %v exceeds exact %v at %v", cached[i], exact[i], pos[i])
		}
		if cached[i] < exact[i]-2*cache.Margin()-1e-5 {
			t.Errorf("cached distance %v too far below exact %v at %v", cached[i], exact[i], pos[i])
		}
	}
}

func TestBlockCachedSDF3VecPool(t *testing.T) {
	// Raw shader nodes take their buffers from userData.
	var bld raysdf.Builder
	root := bld.Union(bld.NewSphere(1), bld.Translate(bld.NewSphere(1), 2, 0, 0))
	sdf, err := gleval.AssertSDF3(root)
	if err != nil {
		t.Fatal(err)
	}
	var cache gleval.BlockCachedSDF3
	if err := cache.Reset(sdf, 0.1, 0.1, 0.1); err != nil {
		t.Fatal(err)
	}
	vp := cache.VecPool()
	if vp == nil || vp != cache.VecPool() {
		t.Fatal("cache should own a single VecPool")
	}
	pos := []ms3.Vec{{X: 3}, {X: -3}}
	dist := make([]float32, len(pos))
	if err := cache.Evaluate(pos, dist, nil); err != nil {
		t.Fatal(err)
	}
	if err := vp.AssertAllReleased(); err != nil {
		t.Error(err)
	}
	if vp.TotalAlloc() == 0 {
		t.Error("union evaluation should have used the cache's VecPool")
	}
	if err := cache.Reset(sdf, 0.1, 0.1, 0.1); err != nil {
		t.Fatal(err)
	}
	if cache.VecPool() != vp {
		t.Error("Reset should keep the cache's VecPool")
	}
}

func TestEvaluateAt(t *testing.T) {
	var bld raysdf.Builder
	sdf, err := gleval.NewCPUSDF3(bld.NewSphere(1))
	if err != nil {
		t.Fatal(err)
	}
	d, err := gleval.EvaluateAt(sdf, ms3.Vec{Y: 3}, nil)
	if err != nil {
		t.Fatal(err)
	} else if d != 2 {
		t.Errorf("want 2, got %v", d)
	}
}
