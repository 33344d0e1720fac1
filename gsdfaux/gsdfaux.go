package gsdfaux

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"strconv"
	"time"

	math "github.com/chewxy/math32"
	"github.com/epicx/raysdf"
	"github.com/epicx/raysdf/aa"
	"github.com/epicx/raysdf/glbuild"
	"github.com/epicx/raysdf/gleval"
	"github.com/epicx/raysdf/glrender"
	"github.com/epicx/raysdf/isr"
	"github.com/epicx/raysdf/log"
	"github.com/soypat/geometry/ms3"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var logger = log.New("gsdfaux")

type RenderConfig struct {
	// Output receives the last frame encoded as PNG.
	Output io.Writer
	// Overlay receives the last frame with its shading rates drawn over it, encoded as PNG.
	Overlay io.Writer
	Frame   glrender.FrameConfig
	// Frames is the number of frames rendered. Shading rates adapt over frames
	// so the last frame is the one written. Defaults to 1.
	Frames int
	// Camera returns the camera for each frame. If nil the scene is viewed
	// from a fixed orbit around its bounding box.
	Camera func(frame int) (glrender.Camera, error)
	// EnableCaching answers ambient occlusion and shadow queries from a
	// [gleval.BlockCachedSDF3] per worker to omit potential evaluations.
	// Primary rays and normals are always evaluated on the exact field.
	EnableCaching bool
	// CacheResolution is the cache block size. Defaults to a quarter of the
	// ambient occlusion tap spacing of the frame's marching configuration.
	CacheResolution float32
}

// Render is an auxiliary function to aid users in getting setup in using raysdf quickly.
// It renders cfg.Frames frames of s and returns the statistics of every frame.
// Ideally users should drive [glrender.FrameRenderer] themselves since applications may vary widely.
func Render(s glbuild.Shader3D, cfg RenderConfig) (stats []glrender.FrameStats, err error) {
	if cfg.Output == nil && cfg.Overlay == nil {
		return nil, errors.New("Render requires output parameter in config")
	}
	frames := max(cfg.Frames, 1)
	scene, err := raysdf.NewScene(s)
	if err != nil {
		return nil, err
	}
	bb := scene.Bounds()
	if cfg.Camera == nil {
		center := bb.Center()
		radius := min(ms3.Norm(bb.Size()), 50)
		cfg.Camera = func(frame int) (glrender.Camera, error) {
			return glrender.OrbitCamera(center, radius, radius/2, 0.05*float32(frame))
		}
	}
	watch := stopwatch()
	fr, err := glrender.NewFrameRenderer(scene, cfg.Frame)
	if err != nil {
		return nil, err
	}
	defer fr.Close()
	logger.Infof("instantiating %d node scene took %s", scene.NumNodes(), watch())
	if cfg.EnableCaching {
		res := cfg.CacheResolution
		if res <= 0 {
			res = max(cfg.Frame.March.AOStep, cfg.Frame.March.AOStart, 4e-3) / 4
		}
		caches := make([]gleval.BlockCachedSDF3, fr.Workers())
		err = fr.SetOcclusionField(func(worker int) (gleval.SDF3, error) {
			c := &caches[worker]
			return c, c.Reset(scene, res, res, res)
		})
		if err != nil {
			return nil, err
		}
		defer func() {
			var hits, evals uint64
			for i := range caches {
				hits += caches[i].CacheHits()
				evals += caches[i].Evaluations()
			}
			logger.Infof("SDF caching omitted %.2f percent of %d occlusion evaluations", percentUint64(hits, evals), evals)
		}()
	}

	img := image.NewRGBA(image.Rect(0, 0, cfg.Frame.Width, cfg.Frame.Height))
	var rates []isr.ShadingRate
	for i := 0; i < frames; i++ {
		cam, err := cfg.Camera(i)
		if err != nil {
			return stats, fmt.Errorf("frame %d camera: %w", i, err)
		}
		rates = fr.Analyzer().AppendRates(rates[:0])
		st, err := fr.Render(img, cam)
		if err != nil {
			return stats, err
		}
		stats = append(stats, st)
		logger.Infof("frame %d: %d rays (%d hits) in %s, %.1f%% shading savings",
			st.Frame, st.Rays, st.Hits, st.Duration, st.ISR.SavingsPercent)
	}

	if cfg.Output != nil {
		watch = stopwatch()
		err = png.Encode(cfg.Output, img)
		if err != nil {
			return stats, fmt.Errorf("writing frame PNG: %s", err)
		}
		logger.Infof("wrote %s in %s", outputName(cfg.Output, "frame"), watch())
	}
	if cfg.Overlay != nil {
		err = DrawISROverlay(img, rates, cfg.Frame.ISR.TileSize, 0.4)
		if err != nil {
			return stats, err
		}
		err = png.Encode(cfg.Overlay, img)
		if err != nil {
			return stats, fmt.Errorf("writing overlay PNG: %s", err)
		}
		logger.Infof("wrote %s", outputName(cfg.Overlay, "overlay"))
	}
	return stats, nil
}

func outputName(w io.Writer, fallback string) string {
	if fp, ok := w.(*os.File); ok {
		return fp.Name()
	}
	return fallback
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

// DrawISROverlay blends the debug colour of each tile's shading rate over dst
// with the given opacity. rates are in row-major tile order over tiles of
// tileSize pixels. Tiles large enough to fit text are labeled with the rate's divisor.
func DrawISROverlay(dst draw.Image, rates []isr.ShadingRate, tileSize int, opacity float32) error {
	if tileSize <= 0 {
		return errors.New("non-positive tile size")
	}
	bounds := dst.Bounds()
	tilesX := (bounds.Dx() + tileSize - 1) / tileSize
	tilesY := (bounds.Dy() + tileSize - 1) / tileSize
	if len(rates) != tilesX*tilesY {
		return fmt.Errorf("got %d rates for %dx%d tiles", len(rates), tilesX, tilesY)
	}
	face := basicfont.Face7x13
	labelH := face.Height
	for i, rate := range rates {
		tx, ty := i%tilesX, i/tilesX
		r := image.Rect(tx*tileSize, ty*tileSize, (tx+1)*tileSize, (ty+1)*tileSize).Add(bounds.Min).Intersect(bounds)
		c := rate.DebugColor()
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				dst.Set(x, y, aa.BlendColor(c, dst.At(x, y), opacity))
			}
		}
		if r.Dy() < labelH+2 || r.Dx() < face.Advance+4 {
			continue
		}
		d := font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(color.Black),
			Face: face,
			Dot:  fixed.P(r.Min.X+2, r.Min.Y+face.Ascent+1),
		}
		d.DrawString(strconv.Itoa(rate.Divisor()))
	}
	return nil
}

// RenderPNGFile renders a 2D SDF as an image and saves result to a PNG file with said filename.
// The image width is sized automatically from the image height argument to preserve SDF aspect ratio.
// If a nil color conversion function is passed then edges are anti-aliased in black and white.
func RenderPNGFile(filename string, s glbuild.Shader2D, picHeight int, colorConversion func(float32) color.Color) error {
	bb := s.Bounds()
	sz := bb.Size()
	pixPerUnit := float64(picHeight) / float64(sz.Y)
	picWidth := int(pixPerUnit * float64(sz.X))
	img := image.NewRGBA(image.Rect(0, 0, picWidth, picHeight))
	renderer, err := glrender.NewImageRendererSDF2(max(4096, picHeight+1), colorConversion)
	if err != nil {
		return err
	}
	sdf, err := gleval.NewCPUSDF2(s)
	if err != nil {
		return err
	}
	err = renderer.Render(sdf, img, nil)
	if err != nil {
		return err
	}
	return WritePNG(filename, img)
}

// WritePNG encodes img as PNG into a new file with said filename.
func WritePNG(filename string, img image.Image) error {
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	err = png.Encode(fp, img)
	if err != nil {
		return err
	}
	return fp.Sync()
}

func percentUint64(num, denom uint64) float32 {
	if denom == 0 {
		return 0
	}
	return math.Trunc(10000*float32(num)/float32(denom)) / 100
}
