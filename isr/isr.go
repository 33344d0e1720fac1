// Package isr implements adaptive shading rates: the frame is partitioned into
// square tiles and each tile is assigned a [ShadingRate] from a per-frame
// importance sample in [0,1].
package isr

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf/internal/parallel"
	"github.com/epicx/raysdf/log"
)

var (
	// ErrInvalidParameter is wrapped by configuration and importance sample errors.
	ErrInvalidParameter = errors.New("isr: invalid parameter")
	// ErrOutOfRange is wrapped by errors of tile queries outside the grid.
	ErrOutOfRange = errors.New("isr: tile out of range")
)

var logger = log.New("isr")

// ShadingRate is the size of the pixel block shaded by a single sample.
// Rates are ordered from most to least expensive.
type ShadingRate uint8

const (
	Full    ShadingRate = iota // 1x1
	Half                       // 2x2
	Quarter                    // 4x4
	Eighth                     // 8x8
	numRates
)

// Divisor returns the side length in pixels of the block shaded by one sample.
func (r ShadingRate) Divisor() int {
	return 1 << r
}

// Cost returns the fraction of full rate samples needed, 1/Divisor².
func (r ShadingRate) Cost() float32 {
	d := float32(r.Divisor())
	return 1 / (d * d)
}

func (r ShadingRate) String() string {
	switch r {
	case Full:
		return "Full(1x1)"
	case Half:
		return "Half(2x2)"
	case Quarter:
		return "Quarter(4x4)"
	case Eighth:
		return "Eighth(8x8)"
	}
	return fmt.Sprintf("ShadingRate(%d)", uint8(r))
}

// DebugColor returns the colour used to visualise the rate: green for Full,
// yellow for Half, orange for Quarter and red for Eighth.
func (r ShadingRate) DebugColor() color.RGBA {
	switch r {
	case Full:
		return color.RGBA{G: 255, A: 255}
	case Half:
		return color.RGBA{R: 255, G: 255, A: 255}
	case Quarter:
		return color.RGBA{R: 255, G: 128, A: 255}
	}
	return color.RGBA{R: 255, A: 255}
}

// Config configures an [Analyzer].
type Config struct {
	// TileSize is the side length of a tile in pixels.
	TileSize int
	// Importance at or above FullThreshold selects Full, at or above
	// HalfThreshold selects Half, at or above QuarterThreshold Quarter, else Eighth.
	FullThreshold    float32
	HalfThreshold    float32
	QuarterThreshold float32
	// TemporalBlend in [0,1) is the weight of the previous frame's importance
	// when a new sample is set. Zero disables temporal smoothing.
	TemporalBlend float32
}

// DefaultConfig returns 8x8 tiles with thresholds 0.75, 0.5 and 0.25 and no temporal smoothing.
func DefaultConfig() Config {
	return Config{
		TileSize:         8,
		FullThreshold:    0.75,
		HalfThreshold:    0.5,
		QuarterThreshold: 0.25,
	}
}

// Validate checks the configuration. Returned errors wrap [ErrInvalidParameter].
func (cfg Config) Validate() error {
	switch {
	case cfg.TileSize <= 0:
		return fmt.Errorf("%w: tile size %d must be positive", ErrInvalidParameter, cfg.TileSize)
	case !(cfg.FullThreshold >= cfg.HalfThreshold && cfg.HalfThreshold >= cfg.QuarterThreshold):
		return fmt.Errorf("%w: thresholds must be non increasing, got %v,%v,%v", ErrInvalidParameter,
			cfg.FullThreshold, cfg.HalfThreshold, cfg.QuarterThreshold)
	case cfg.QuarterThreshold < 0 || cfg.FullThreshold > 1:
		return fmt.Errorf("%w: thresholds must be within [0,1]", ErrInvalidParameter)
	case !(cfg.TemporalBlend >= 0 && cfg.TemporalBlend < 1):
		return fmt.Errorf("%w: temporal blend %v not in [0,1)", ErrInvalidParameter, cfg.TemporalBlend)
	}
	return nil
}

// Classify maps an importance value to a shading rate. A value equal to a
// threshold selects the finer rate.
func (cfg *Config) Classify(importance float32) ShadingRate {
	switch {
	case importance >= cfg.FullThreshold:
		return Full
	case importance >= cfg.HalfThreshold:
		return Half
	case importance >= cfg.QuarterThreshold:
		return Quarter
	}
	return Eighth
}

// Executor runs independent jobs to completion. [parallel.WorkerPool] implements it.
type Executor interface {
	ExecuteAll(jobs []parallel.Job)
}

// Analyzer assigns shading rates to the tiles of a frame.
// An Analyzer is not safe for concurrent use.
type Analyzer struct {
	cfg  Config
	grid parallel.Grid
	// prev holds the previous frame's importance, cur the current frame's.
	prev  []float32
	cur   []float32
	rates []ShadingRate
	frame int
}

// New returns an Analyzer for a width x height frame. The grid has
// ceil(width/TileSize) x ceil(height/TileSize) tiles, all starting at importance 1.
func New(width, height int, cfg Config) (*Analyzer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: frame size %dx%d must be positive", ErrInvalidParameter, width, height)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	grid := parallel.NewGrid(width, height, cfg.TileSize)
	n := grid.Len()
	a := &Analyzer{
		cfg:   cfg,
		grid:  grid,
		prev:  make([]float32, n),
		cur:   make([]float32, n),
		rates: make([]ShadingRate, n),
	}
	for i := range a.cur {
		a.prev[i] = 1
		a.cur[i] = 1
		a.rates[i] = cfg.Classify(1)
	}
	return a, nil
}

// Config returns the analyzer's configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// TilesX returns the number of tile columns.
func (a *Analyzer) TilesX() int { return a.grid.TilesX() }

// TilesY returns the number of tile rows.
func (a *Analyzer) TilesY() int { return a.grid.TilesY() }

// TileCount returns the number of tiles.
func (a *Analyzer) TileCount() int { return a.grid.Len() }

// Frame returns the number of times [Analyzer.NextFrame] has been called.
func (a *Analyzer) Frame() int { return a.frame }

// TileRect returns the pixel rectangle covered by the tile, clipped to the frame.
func (a *Analyzer) TileRect(tileX, tileY int) (image.Rectangle, error) {
	if err := a.checkRange(tileX, tileY); err != nil {
		return image.Rectangle{}, err
	}
	return a.grid.Rect(tileX, tileY), nil
}

// SetTileImportance sets the importance sample of a tile for the current frame
// and reclassifies it.
func (a *Analyzer) SetTileImportance(tileX, tileY int, importance float32) error {
	if err := a.checkRange(tileX, tileY); err != nil {
		return err
	}
	if err := checkSample(importance); err != nil {
		return fmt.Errorf("tile (%d,%d): %w", tileX, tileY, err)
	}
	a.set(a.grid.Index(tileX, tileY), importance)
	return nil
}

func (a *Analyzer) set(idx int, importance float32) {
	blend := a.cfg.TemporalBlend
	v := a.prev[idx]*blend + importance*(1-blend)
	a.cur[idx] = v
	a.rates[idx] = a.cfg.Classify(v)
}

// Update sets the importance of every tile from samples, given in row-major tile
// order. Tiles are classified concurrently when exec is not nil.
// No tile is modified if any sample is invalid.
func (a *Analyzer) Update(samples []float32, exec Executor) error {
	if len(samples) != a.grid.Len() {
		return fmt.Errorf("%w: got %d samples for %d tiles", ErrInvalidParameter, len(samples), a.grid.Len())
	}
	for i, v := range samples {
		if err := checkSample(v); err != nil {
			tx, ty := a.grid.Coords(i)
			return fmt.Errorf("tile (%d,%d): %w", tx, ty, err)
		}
	}
	if exec == nil {
		for i, v := range samples {
			a.set(i, v)
		}
		return nil
	}
	var jobs []parallel.Job
	a.grid.Chunks(4*a.grid.TilesY(), func(start, end int) {
		jobs = append(jobs, func(int) {
			for i := start; i < end; i++ {
				a.set(i, samples[i])
			}
		})
	})
	exec.ExecuteAll(jobs)
	return nil
}

// GetTileShadingRate returns the current frame's rate of the tile at (tileX,tileY).
func (a *Analyzer) GetTileShadingRate(tileX, tileY int) (ShadingRate, error) {
	if err := a.checkRange(tileX, tileY); err != nil {
		return Full, err
	}
	return a.rates[a.grid.Index(tileX, tileY)], nil
}

// TileImportance returns the current frame's importance of a tile after temporal blending.
func (a *Analyzer) TileImportance(tileX, tileY int) (float32, error) {
	if err := a.checkRange(tileX, tileY); err != nil {
		return 0, err
	}
	return a.cur[a.grid.Index(tileX, tileY)], nil
}

// AppendRates appends the rates of all tiles in row-major order to dst.
func (a *Analyzer) AppendRates(dst []ShadingRate) []ShadingRate {
	return append(dst, a.rates...)
}

// NextFrame ends the current frame. The current importance becomes the
// previous frame's and is carried over for tiles that receive no new sample.
func (a *Analyzer) NextFrame() {
	st := a.Stats()
	logger.Debugf("frame %d: histogram %v savings %.1f%%", a.frame, st.Histogram, st.SavingsPercent)
	a.prev, a.cur = a.cur, a.prev
	copy(a.cur, a.prev)
	a.frame++
}

// Stats returns the statistics of the current frame's assignment.
func (a *Analyzer) Stats() Stats {
	st := Stats{TileCount: a.grid.Len(), FullSamples: a.grid.Width * a.grid.Height}
	var cost float32
	for i, r := range a.rates {
		st.Histogram[r]++
		cost += r.Cost()
		tx, ty := a.grid.Coords(i)
		rect := a.grid.Rect(tx, ty)
		d := r.Divisor()
		st.Samples += ceilDiv(rect.Dx(), d) * ceilDiv(rect.Dy(), d)
	}
	if st.TileCount > 0 {
		st.SavingsPercent = 100 * (1 - cost/(float32(st.TileCount)*Full.Cost()))
	}
	return st
}

func (a *Analyzer) checkRange(tileX, tileY int) error {
	if !a.grid.Contains(tileX, tileY) {
		return fmt.Errorf("%w: (%d,%d) not within %dx%d grid", ErrOutOfRange, tileX, tileY, a.grid.TilesX(), a.grid.TilesY())
	}
	return nil
}

func checkSample(v float32) error {
	if math32.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: importance %v not in [0,1]", ErrInvalidParameter, v)
	}
	return nil
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// Stats aggregates the shading rate assignment of a frame.
type Stats struct {
	TileCount int
	// Histogram counts tiles per rate, indexed by [ShadingRate].
	Histogram [numRates]int
	// SavingsPercent is 100*(1 - Σcost/(TileCount*cost(Full))).
	SavingsPercent float32
	// Samples is the number of shading samples the assignment needs and
	// FullSamples the number needed at full rate, one per pixel.
	Samples     int
	FullSamples int
}

func (st Stats) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tiles: %d\n", st.TileCount)
	for r := Full; r < numRates; r++ {
		fmt.Fprintf(&sb, "  %s: %d\n", r, st.Histogram[r])
	}
	fmt.Fprintf(&sb, "samples: %d/%d\nsavings: %.2f%%", st.Samples, st.FullSamples, st.SavingsPercent)
	return sb.String()
}
