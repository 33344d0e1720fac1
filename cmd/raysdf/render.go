package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf"
	"github.com/epicx/raysdf/glrender"
	"github.com/epicx/raysdf/gsdfaux"
	"github.com/epicx/raysdf/isr"
	"github.com/olekukonko/tablewriter"
	"github.com/soypat/geometry/ms3"
	"github.com/urfave/cli"
)

// RenderFrames renders a sequence of frames of a built-in scene.
func RenderFrames(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene argument")
	}
	s, p, err := buildPreset(ctx.Args().First())
	if err != nil {
		return err
	}

	frameCfg := glrender.DefaultFrameConfig(ctx.Int("width"), ctx.Int("height"))
	frameCfg.Workers = ctx.Int("workers")
	frameCfg.Shading.Materials = palette
	frameCfg.ISR.TileSize = ctx.Int("tile")
	frameCfg.ISR.TemporalBlend = float32(ctx.Float64("temporal"))
	frameCfg.DisableISR = ctx.Bool("no-isr")
	frameCfg.AntiAlias = !ctx.Bool("no-aa")
	frameCfg.ImageImportance = ctx.Bool("image-importance")
	frameCfg.Importance.Foveated = ctx.Bool("foveated")
	if err := frameCfg.Validate(); err != nil {
		return err
	}

	orbit := float32(ctx.Float64("orbit"))
	offset := ms3.Sub(p.Eye, p.Target)
	radius := math32.Hypot(offset.X, offset.Z)
	startAngle := math32.Atan2(offset.Z, offset.X)
	camera := func(frame int) (glrender.Camera, error) {
		if orbit == 0 {
			return glrender.NewCamera(p.Eye, p.Target, ms3.Vec{Y: 1})
		}
		return glrender.OrbitCamera(p.Target, radius, offset.Y, startAngle+orbit*float32(frame))
	}

	out, err := os.Create(ctx.String("out"))
	if err != nil {
		return err
	}
	defer out.Close()
	cfg := gsdfaux.RenderConfig{
		Output:        out,
		Frame:         frameCfg,
		Frames:        ctx.Int("frames"),
		Camera:        camera,
		EnableCaching: ctx.Bool("cache"),
	}
	if name := ctx.String("overlay"); name != "" {
		overlay, err := os.Create(name)
		if err != nil {
			return err
		}
		defer overlay.Close()
		cfg.Overlay = overlay
	}

	logger.Noticef("rendering %d frames of scene %q at %dx%d", max(cfg.Frames, 1), ctx.Args().First(), frameCfg.Width, frameCfg.Height)
	stats, err := gsdfaux.Render(s, cfg)
	if err != nil {
		return err
	}
	displayFrameStats(stats)
	return nil
}

func displayFrameStats(stats []glrender.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	header := []string{"Frame", "Rays", "Hits", "Steps/ray"}
	for r := isr.Full; r <= isr.Eighth; r++ {
		header = append(header, r.String())
	}
	header = append(header, "Savings", "Render time")
	table.SetHeader(header)
	var total time.Duration
	for _, st := range stats {
		row := []string{
			fmt.Sprintf("%d", st.Frame),
			fmt.Sprintf("%d", st.Rays),
			fmt.Sprintf("%d", st.Hits),
			fmt.Sprintf("%.1f", float32(st.Steps)/float32(max(st.Rays, 1))),
		}
		for _, n := range st.ISR.Histogram {
			row = append(row, fmt.Sprintf("%d", n))
		}
		row = append(row,
			fmt.Sprintf("%02.1f %%", st.ISR.SavingsPercent),
			st.Duration.String(),
		)
		table.Append(row)
		total += st.Duration
	}
	footer := make([]string, len(header))
	footer[len(footer)-2] = "TOTAL"
	footer[len(footer)-1] = total.String()
	table.SetFooter(footer)

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}

// ListScenes prints the built-in scenes.
func ListScenes(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Scene", "Nodes", "Description"})
	for _, name := range presetNames() {
		s, p, err := buildPreset(name)
		if err != nil {
			return err
		}
		scene, err := raysdf.NewScene(s)
		if err != nil {
			return fmt.Errorf("scene %q: %w", name, err)
		}
		table.Append([]string{name, fmt.Sprintf("%d", scene.NumNodes()), p.Description})
	}
	table.Render()
	fmt.Print(buf.String())
	return nil
}
