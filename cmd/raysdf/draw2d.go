package main

import (
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/epicx/raysdf/gsdfaux"
	"github.com/epicx/raysdf/isr"
	"github.com/soypat/geometry/ms2"
	"github.com/urfave/cli"
)

// Draw2D renders a built-in 2D profile as a PNG image of its distance field.
func Draw2D(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing profile argument")
	}
	s, err := buildProfile(ctx.Args().First())
	if err != nil {
		return err
	}
	diag := ms2.Norm(s.Bounds().Size())
	conv, err := colorConversion(ctx.String("colors"), diag)
	if err != nil {
		return err
	}
	out := ctx.String("out")
	start := time.Now()
	err = gsdfaux.RenderPNGFile(out, s, ctx.Int("height"), conv)
	if err != nil {
		return err
	}
	logger.Noticef("wrote %s in %s", out, time.Since(start))
	return nil
}

// colorConversion maps a --colors flag value to a distance to colour conversion.
// A nil conversion renders anti-aliased black and white.
func colorConversion(name string, diag float32) (func(float32) color.Color, error) {
	switch name {
	case "bw":
		return nil, nil
	case "iq":
		return gsdfaux.ColorConversionInigoQuilez(diag / 3), nil
	case "gradient":
		return gsdfaux.ColorConversionLinearGradient(diag/4, color.RGBA{R: 30, G: 60, B: 200, A: 255}, color.RGBA{R: 240, G: 200, B: 40, A: 255}), nil
	case "rates":
		return gsdfaux.ColorConversionEdgeRate(isr.DefaultConfig(), diag/8), nil
	}
	return nil, fmt.Errorf("unknown color conversion %q, want one of iq, gradient, rates or bw", name)
}
