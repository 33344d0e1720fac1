package glrender

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf/aa"
	"github.com/epicx/raysdf/gleval"
	"github.com/epicx/raysdf/internal/parallel"
	"github.com/epicx/raysdf/isr"
	"github.com/epicx/raysdf/log"
	"github.com/epicx/raysdf/march"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

var logger = log.New("glrender")

// FrameConfig configures a [FrameRenderer].
type FrameConfig struct {
	Width, Height int
	// Workers is the number of rendering goroutines. Zero uses GOMAXPROCS.
	Workers int
	March   march.Config
	Shading march.Shading
	Lights  []march.Light
	// ISR configures the shading rate analyzer. Its tile size is also the
	// size of the unit of work scheduled on the worker pool.
	ISR isr.Config
	// DisableISR shades every pixel at full rate.
	DisableISR bool
	// Importance parametrizes the geometric importance estimate fed back to the analyzer.
	Importance isr.ImportanceConfig
	// ImageImportance estimates tile importance from the contrast of the
	// rendered image instead of the marched geometry.
	ImageImportance bool
	// AntiAlias blends missed rays that pass within a pixel of the surface.
	AntiAlias bool
}

// DefaultFrameConfig returns a configuration for a width x height frame with
// default marching, shading, shading rates and silhouette anti-aliasing.
func DefaultFrameConfig(width, height int) FrameConfig {
	return FrameConfig{
		Width:      width,
		Height:     height,
		March:      march.DefaultConfig(),
		Shading:    march.DefaultShading(),
		Lights:     march.DefaultLights(),
		ISR:        isr.DefaultConfig(),
		Importance: isr.DefaultImportanceConfig(),
		AntiAlias:  true,
	}
}

// Validate checks the frame configuration and the configurations it embeds.
func (cfg *FrameConfig) Validate() error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("glrender: invalid frame size %dx%d", cfg.Width, cfg.Height)
	}
	return errors.Join(cfg.March.Validate(), cfg.Shading.Validate(), cfg.ISR.Validate())
}

// FrameStats summarises a rendered frame.
type FrameStats struct {
	Frame    int
	Duration time.Duration
	// Rays is the number of primary rays marched, Hits how many hit the
	// surface and Steps the total field evaluations spent marching them.
	Rays  int
	Hits  int
	Steps int
	// ISR is the shading rate assignment the frame was rendered with.
	ISR isr.Stats
}

// FrameRenderer ray marches frames tile by tile on a worker pool. The shading
// rate of each tile is chosen by an [isr.Analyzer] fed with the importance
// measured on the previous frame.
type FrameRenderer struct {
	cfg        FrameConfig
	pool       *parallel.WorkerPool
	grid       parallel.Grid
	analyzer   *isr.Analyzer
	workers    []tileWorker
	rates      []isr.ShadingRate
	importance []float32
	prevCam    Camera
	hasPrev    bool
	frame      int
}

// tileWorker holds the scratch state owned by a single pool worker.
type tileWorker struct {
	tracer  *march.Tracer
	origins []ms3.Vec
	dirs    []ms3.Vec
	blocks  []image.Rectangle
	results []march.Result
	colors  []march.Color
	alpha   []float32

	rays, hits, steps int
}

// NewFrameRenderer returns a FrameRenderer for sdf. Close must be called to
// release the worker pool.
func NewFrameRenderer(sdf gleval.SDF3, cfg FrameConfig) (*FrameRenderer, error) {
	if sdf == nil {
		return nil, errors.New("glrender: nil distance field")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	analyzer, err := isr.New(cfg.Width, cfg.Height, cfg.ISR)
	if err != nil {
		return nil, err
	}
	pool := parallel.NewWorkerPool(cfg.Workers)
	fr := &FrameRenderer{
		cfg:      cfg,
		pool:     pool,
		grid:     parallel.NewGrid(cfg.Width, cfg.Height, cfg.ISR.TileSize),
		analyzer: analyzer,
		workers:  make([]tileWorker, pool.Workers()),
	}
	for i := range fr.workers {
		tr, err := march.NewTracer(sdf, cfg.March)
		if err == nil {
			err = tr.SetShading(cfg.Shading)
		}
		if err != nil {
			pool.Close()
			return nil, err
		}
		fr.workers[i].tracer = tr
	}
	fr.importance = make([]float32, fr.grid.Len())
	return fr, nil
}

// SetOcclusionField replaces the field queried for ambient occlusion and soft
// shadows. newField is called once per worker so fields which are not safe for
// concurrent use, such as [gleval.BlockCachedSDF3], may be used.
func (fr *FrameRenderer) SetOcclusionField(newField func(worker int) (gleval.SDF3, error)) error {
	for i := range fr.workers {
		sdf, err := newField(i)
		if err != nil {
			return fmt.Errorf("glrender: occlusion field of worker %d: %w", i, err)
		}
		fr.workers[i].tracer.SetOcclusionField(sdf)
	}
	return nil
}

// Workers returns the number of rendering goroutines.
func (fr *FrameRenderer) Workers() int { return len(fr.workers) }

// Close stops the renderer's workers.
func (fr *FrameRenderer) Close() { fr.pool.Close() }

// Config returns the renderer's configuration.
func (fr *FrameRenderer) Config() FrameConfig { return fr.cfg }

// Analyzer returns the shading rate analyzer driving the renderer.
func (fr *FrameRenderer) Analyzer() *isr.Analyzer { return fr.analyzer }

// Importance returns the per tile importance measured on the last rendered
// frame in row-major tile order. The slice is reused by the next Render call.
func (fr *FrameRenderer) Importance() []float32 { return fr.importance }

// Render renders the scene seen by cam into dst, which must match the
// configured frame size, and feeds the measured tile importance to the analyzer
// for the next frame.
func (fr *FrameRenderer) Render(dst *image.RGBA, cam Camera) (FrameStats, error) {
	cfg := &fr.cfg
	if dst.Bounds().Dx() != cfg.Width || dst.Bounds().Dy() != cfg.Height {
		return FrameStats{}, fmt.Errorf("glrender: image size %v does not match frame %dx%d", dst.Bounds().Size(), cfg.Width, cfg.Height)
	}
	start := time.Now()
	fr.rates = fr.analyzer.AppendRates(fr.rates[:0])
	stats := FrameStats{Frame: fr.frame, ISR: fr.analyzer.Stats()}
	for i := range fr.workers {
		w := &fr.workers[i]
		w.rays, w.hits, w.steps = 0, 0, 0
	}
	jobs := make([]parallel.Job, fr.grid.Len())
	for i := range jobs {
		idx := i
		jobs[i] = func(worker int) {
			fr.renderTile(&fr.workers[worker], dst, &cam, idx)
		}
	}
	fr.pool.ExecuteAll(jobs)
	for i := range fr.workers {
		w := &fr.workers[i]
		stats.Rays += w.rays
		stats.Hits += w.hits
		stats.Steps += w.steps
	}
	if !cfg.DisableISR {
		fr.analyzer.NextFrame()
		if err := fr.analyzer.Update(fr.importance, fr.pool); err != nil {
			return stats, fmt.Errorf("glrender: updating shading rates: %w", err)
		}
	}
	fr.prevCam = cam
	fr.hasPrev = true
	fr.frame++
	stats.Duration = time.Since(start)
	logger.Debugf("frame %d: %d rays, %d hits, %.1f%% ISR savings in %s",
		stats.Frame, stats.Rays, stats.Hits, stats.ISR.SavingsPercent, stats.Duration)
	return stats, nil
}

func (fr *FrameRenderer) renderTile(w *tileWorker, dst *image.RGBA, cam *Camera, idx int) {
	cfg := &fr.cfg
	tx, ty := fr.grid.Coords(idx)
	rect := fr.grid.Rect(tx, ty)
	d := fr.rates[idx].Divisor()
	w.origins = w.origins[:0]
	w.dirs = w.dirs[:0]
	w.blocks = w.blocks[:0]
	for y := rect.Min.Y; y < rect.Max.Y; y += d {
		for x := rect.Min.X; x < rect.Max.X; x += d {
			b := image.Rect(x, y, min(x+d, rect.Max.X), min(y+d, rect.Max.Y))
			px := float32(b.Min.X+b.Max.X) / 2
			py := float32(b.Min.Y+b.Max.Y) / 2
			w.blocks = append(w.blocks, b)
			w.origins = append(w.origins, cam.Position)
			w.dirs = append(w.dirs, cam.Ray(px, py, cfg.Width, cfg.Height))
		}
	}
	tr := w.tracer
	w.results = tr.MarchBatch(w.results[:0], w.origins, w.dirs)
	w.colors = tr.ShadeBatch(w.colors[:0], w.results, w.dirs, cfg.Lights)
	w.alpha = w.alpha[:0]
	for i, r := range w.results {
		w.rays++
		w.steps += r.Steps
		if r.Hit {
			w.hits++
			w.alpha = append(w.alpha, 1)
			continue
		}
		pw := cam.PixelFootprint(r.MinDistanceT, cfg.Height) * float32(d)
		alpha := aa.Silhouette(false, r.MinDistance, pw)
		w.alpha = append(w.alpha, alpha)
		if cfg.AntiAlias && alpha > 0 {
			near := tr.ClosestApproach(r, w.origins[i], w.dirs[i])
			edge := tr.Shade(near, w.dirs[i], cfg.Lights)
			c := aa.BlendColor(edge, w.colors[i], alpha)
			w.colors[i] = march.Color{
				R: float32(c.R) / 0xffff,
				G: float32(c.G) / 0xffff,
				B: float32(c.B) / 0xffff,
				A: 1,
			}
		}
	}
	for i, b := range w.blocks {
		c := color.RGBAModel.Convert(w.colors[i]).(color.RGBA)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				dst.SetRGBA(dst.Rect.Min.X+x, dst.Rect.Min.Y+y, c)
			}
		}
	}
	var importance float32
	if cfg.ImageImportance {
		importance = RegionImportance(dst, rect.Add(dst.Rect.Min))
	} else {
		importance = fr.geometricImportance(w, cam, rect, d)
	}
	if math32.IsNaN(importance) {
		importance = 1
	}
	fr.importance[idx] = importance
}

// geometricImportance reduces the factors of a tile's marched blocks to a single importance.
func (fr *FrameRenderer) geometricImportance(w *tileWorker, cam *Camera, rect image.Rectangle, d int) float32 {
	cfg := &fr.cfg
	var tile isr.ImportanceFactors
	var normalSum ms3.Vec
	var nhits int
	for i, r := range w.results {
		b := w.blocks[i]
		center := ms2.Vec{X: float32(b.Min.X+b.Max.X) / 2, Y: float32(b.Min.Y+b.Max.Y) / 2}
		prevNormal := r.Normal
		if i > 0 {
			prevNormal = w.results[i-1].Normal
		}
		var motion ms2.Vec
		if r.Hit {
			nhits++
			normalSum = ms3.Add(normalSum, r.Normal)
			if fr.hasPrev {
				p0, ok0 := fr.prevCam.Project(r.Position, cfg.Width, cfg.Height)
				p1, ok1 := cam.Project(r.Position, cfg.Width, cfg.Height)
				if ok0 && ok1 {
					motion = ms2.Sub(p1, p0)
				}
			}
		}
		f := cfg.Importance.PixelFactors(center, cfg.Width, cfg.Height, r.Distance, r.Normal, prevNormal, motion)
		if !r.Hit {
			// Graded band of one tile width around the silhouette.
			band := cam.PixelFootprint(r.MinDistanceT, cfg.Height) * float32(rect.Dx())
			if band > 0 {
				f.Silhouette = 1 - min(1, math32.Max(r.MinDistance, 0)/band)
			}
		}
		tile = tile.Max(f)
	}
	if nhits > 1 {
		tile.NormalVariance = 1 - ms3.Norm(normalSum)/float32(nhits)
	}
	return tile.Combined()
}

// TileImportance appends to dst the importance of each tileSize square tile of
// img in row-major order, as measured by [RegionImportance].
func TileImportance(dst []float32, img image.Image, tileSize int) []float32 {
	bounds := img.Bounds()
	grid := parallel.NewGrid(bounds.Dx(), bounds.Dy(), tileSize)
	for i := range grid.Len() {
		tx, ty := grid.Coords(i)
		dst = append(dst, RegionImportance(img, grid.Rect(tx, ty).Add(bounds.Min)))
	}
	return dst
}

// RegionImportance estimates the visual importance in [0,1] of the region r of
// img from its luminance contrast and mean luminance gradient.
func RegionImportance(img image.Image, r image.Rectangle) float32 {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return 0
	}
	lmin, lmax := float32(1), float32(0)
	var grad float32
	var ngrad int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			l := luminance(img.At(x, y))
			lmin = math32.Min(lmin, l)
			lmax = math32.Max(lmax, l)
			if x+1 < r.Max.X {
				grad += math32.Abs(luminance(img.At(x+1, y)) - l)
				ngrad++
			}
			if y+1 < r.Max.Y {
				grad += math32.Abs(luminance(img.At(x, y+1)) - l)
				ngrad++
			}
		}
	}
	importance := lmax - lmin
	if ngrad > 0 {
		importance = math32.Max(importance, 4*grad/float32(ngrad))
	}
	return min(1, importance)
}

// luminance returns the Rec. 709 relative luminance of c in [0,1].
func luminance(c color.Color) float32 {
	r, g, b, _ := c.RGBA()
	return (0.2126*float32(r) + 0.7152*float32(g) + 0.0722*float32(b)) / 0xffff
}
