package main

import (
	"errors"
	"io"
	"os"

	"github.com/epicx/raysdf/glbuild"
	"github.com/urfave/cli"
)

// WriteShader writes the GLSL source evaluating a built-in scene so that a GPU
// backend can reproduce the CPU distance field.
func WriteShader(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene argument")
	}
	s, _, err := buildPreset(ctx.Args().First())
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if name := ctx.String("out"); name != "" {
		fp, err := os.Create(name)
		if err != nil {
			return err
		}
		defer fp.Close()
		w = fp
	}
	prog := glbuild.NewDefaultProgrammer()
	var n int
	if ctx.Bool("compute") {
		n, err = prog.WriteComputeSDF3(w, s)
	} else {
		var root string
		root, n, err = prog.WriteSDFDecl(w, s)
		logger.Infof("scene entry point: float %s(vec3 p)", root)
	}
	if err != nil {
		return err
	}
	logger.Infof("wrote %d bytes of GLSL", n)
	return nil
}
