package isr

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf/internal/parallel"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FullThreshold = 0.8
	cfg.HalfThreshold = 0.5
	cfg.QuarterThreshold = 0.2
	return cfg
}

func TestClassifyThresholds(t *testing.T) {
	a, err := New(64, 64, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		importance float32
		want       ShadingRate
	}{
		{0.9, Full},
		{0.8, Full},
		{0.79, Half},
		{0.5, Half},
		{0.49, Quarter},
		{0.2, Quarter},
		{0.1, Eighth},
		{0, Eighth},
		{1, Full},
	}
	for _, test := range tests {
		err := a.SetTileImportance(1, 2, test.importance)
		if err != nil {
			t.Fatal(err)
		}
		got, err := a.GetTileShadingRate(1, 2)
		if err != nil {
			t.Fatal(err)
		}
		if got != test.want {
			t.Errorf("importance %v: got %v, want %v", test.importance, got, test.want)
		}
	}
}

func TestGridSize(t *testing.T) {
	a, err := New(100, 50, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if a.TilesX() != 13 || a.TilesY() != 7 {
		t.Fatalf("got %dx%d tiles, want 13x7", a.TilesX(), a.TilesY())
	}
	if _, err := a.GetTileShadingRate(12, 6); err != nil {
		t.Errorf("last tile should be in range: %v", err)
	}
	outOfRange := [][2]int{{13, 0}, {0, 7}, {-1, 0}, {0, -1}}
	for _, c := range outOfRange {
		if _, err := a.GetTileShadingRate(c[0], c[1]); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("tile %v: expected out of range error, got %v", c, err)
		}
		if err := a.SetTileImportance(c[0], c[1], 0.5); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("tile %v: expected out of range error on set, got %v", c, err)
		}
	}
	r, _ := a.TileRect(12, 6)
	if r.Dx() != 4 || r.Dy() != 2 {
		t.Errorf("edge tile rect %v should be 4x2", r)
	}
}

func TestInvalidSamples(t *testing.T) {
	a, err := New(16, 16, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []float32{-0.1, 1.1, float32(math.NaN())} {
		if err := a.SetTileImportance(0, 0, v); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("sample %v: expected invalid parameter error, got %v", v, err)
		}
	}
	samples := []float32{0, 0, 0, 2}
	if err := a.Update(samples, nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected invalid parameter error, got %v", err)
	}
	if r, _ := a.GetTileShadingRate(0, 0); r != Full {
		t.Errorf("failed update modified tiles: got %v", r)
	}
	if err := a.Update(samples[:3], nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected sample count error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{TileSize: 0, FullThreshold: .75, HalfThreshold: .5, QuarterThreshold: .25},
		{TileSize: 8, FullThreshold: .5, HalfThreshold: .75, QuarterThreshold: .25},
		{TileSize: 8, FullThreshold: 1.5, HalfThreshold: .5, QuarterThreshold: .25},
		{TileSize: 8, FullThreshold: .75, HalfThreshold: .5, QuarterThreshold: .25, TemporalBlend: 1},
	}
	for i, cfg := range bad {
		if _, err := New(8, 8, cfg); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("config %d: expected invalid parameter error, got %v", i, err)
		}
	}
	if _, err := New(0, 8, DefaultConfig()); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected invalid frame size error, got %v", err)
	}
}

func TestStatsSavings(t *testing.T) {
	const tol = 1e-4
	a, err := New(64, 32, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	st := a.Stats()
	if st.SavingsPercent != 0 || st.Histogram[Full] != st.TileCount {
		t.Errorf("all Full frame: got %+v", st)
	}
	if st.Samples != st.FullSamples || st.FullSamples != 64*32 {
		t.Errorf("all Full samples: got %d/%d", st.Samples, st.FullSamples)
	}
	zeros := make([]float32, a.TileCount())
	if err := a.Update(zeros, nil); err != nil {
		t.Fatal(err)
	}
	st = a.Stats()
	if math32.Abs(st.SavingsPercent-98.4375) > tol {
		t.Errorf("all Eighth savings: got %v, want 98.4375", st.SavingsPercent)
	}
	if st.Histogram[Eighth] != st.TileCount || st.Samples != st.TileCount {
		t.Errorf("all Eighth frame: got %+v", st)
	}
	if !strings.Contains(st.String(), "Eighth(8x8): 32") {
		t.Errorf("unexpected stats string:\n%s", st.String())
	}

	// Mixed: one tile of each rate.
	b, _ := New(32, 8, DefaultConfig())
	b.Update([]float32{1, 0.6, 0.3, 0}, nil)
	st = b.Stats()
	wantCost := float32(1 + 0.25 + 0.0625 + 0.015625)
	want := 100 * (1 - wantCost/4)
	if math32.Abs(st.SavingsPercent-want) > tol {
		t.Errorf("mixed savings: got %v, want %v", st.SavingsPercent, want)
	}
	if st.Samples != 64+16+4+1 {
		t.Errorf("mixed samples: got %d, want 85", st.Samples)
	}
}

func TestUpdateParallel(t *testing.T) {
	pool := parallel.NewWorkerPool(4)
	defer pool.Close()
	cfg := DefaultConfig()
	a, _ := New(256, 128, cfg)
	b, _ := New(256, 128, cfg)
	samples := make([]float32, a.TileCount())
	for i := range samples {
		samples[i] = float32(i%17) / 16
	}
	if err := a.Update(samples, pool); err != nil {
		t.Fatal(err)
	}
	if err := b.Update(samples, nil); err != nil {
		t.Fatal(err)
	}
	ra := a.AppendRates(nil)
	rb := b.AppendRates(nil)
	for i := range ra {
		if ra[i] != rb[i] {
			t.Fatalf("tile %d: parallel %v != sequential %v", i, ra[i], rb[i])
		}
	}
}

func TestTemporalBlend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TemporalBlend = 0.5
	a, _ := New(8, 8, cfg)
	// Previous frame starts at importance 1.
	a.SetTileImportance(0, 0, 0)
	if v, _ := a.TileImportance(0, 0); v != 0.5 {
		t.Errorf("first blend: got %v, want 0.5", v)
	}
	a.NextFrame()
	a.SetTileImportance(0, 0, 0)
	if v, _ := a.TileImportance(0, 0); v != 0.25 {
		t.Errorf("second blend: got %v, want 0.25", v)
	}
	if r, _ := a.GetTileShadingRate(0, 0); r != Quarter {
		t.Errorf("blended rate: got %v, want Quarter", r)
	}
	a.NextFrame()
	// No sample this frame: previous importance carries over.
	if v, _ := a.TileImportance(0, 0); v != 0.25 {
		t.Errorf("carried importance: got %v, want 0.25", v)
	}
	if a.Frame() != 2 {
		t.Errorf("frame: got %d, want 2", a.Frame())
	}
}

func TestShadingRate(t *testing.T) {
	wantDiv := [numRates]int{1, 2, 4, 8}
	wantCost := [numRates]float32{1, 0.25, 0.0625, 0.015625}
	for r := Full; r < numRates; r++ {
		if r.Divisor() != wantDiv[r] || r.Cost() != wantCost[r] {
			t.Errorf("%v: divisor %d cost %v", r, r.Divisor(), r.Cost())
		}
		if r > Full && r.Cost() >= (r-1).Cost() {
			t.Errorf("%v should be cheaper than %v", r, r-1)
		}
	}
	if Full.DebugColor().G != 255 || Eighth.DebugColor().R != 255 || Eighth.DebugColor().G != 0 {
		t.Error("unexpected debug colours")
	}
}

func TestImportanceFactors(t *testing.T) {
	all := ImportanceFactors{1, 1, 1, 1, 1, 1}
	if got := all.Combined(); math32.Abs(got-1) > 1e-6 {
		t.Errorf("all ones combined: got %v, want 1", got)
	}
	edge := ImportanceFactors{Edge: 1}
	if got := edge.Combined(); got != 0.25 {
		t.Errorf("edge only combined: got %v, want 0.25", got)
	}
	cfg := DefaultImportanceConfig()
	f := cfg.PixelFactors(ms2.Vec{}, 100, 100, 0, ms3.Vec{Y: 1}, ms3.Vec{Y: 1}, ms2.Vec{})
	if f.Edge != 0 || f.Distance != 1 || f.Motion != 0 || f.Foveated != 1 {
		t.Errorf("static near pixel: got %+v", f)
	}
	cfg.Foveated = true
	center := cfg.PixelFactors(ms2.Vec{X: 50, Y: 50}, 100, 100, 200, ms3.Vec{Y: 1}, ms3.Vec{X: 1}, ms2.Vec{X: 3})
	if center.Foveated != 1 || center.Distance != 0 || center.Edge != 1 || center.Motion != 1 {
		t.Errorf("foveated center pixel: got %+v", center)
	}
	if got := FoveatedImportance(ms2.Vec{X: 1.5, Y: 0.5}, ms2.Vec{X: 0.5, Y: 0.5}, 0.2, 0.8); got != 0 {
		t.Errorf("periphery foveation: got %v, want 0", got)
	}
	m := ImportanceFactors{Edge: 0.3}.Max(ImportanceFactors{Edge: 0.1, Motion: 0.4})
	if m.Edge != 0.3 || m.Motion != 0.4 {
		t.Errorf("Max: got %+v", m)
	}
}
