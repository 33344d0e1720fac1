package main

import (
	"os"

	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "raysdf"
	app.Usage = "ray march signed distance field scenes with adaptive shading rates"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "scenes",
			Usage:  "list the built-in scenes",
			Action: ListScenes,
		},
		{
			Name:  "render",
			Usage: "render frames of a scene",
			Description: `
Ray march a sequence of frames of a built-in scene. Each frame's tile shading
rates are chosen from the importance measured on the previous frame, so the
frame statistics show how the shading cost settles over the sequence.

The last frame is written as PNG along with an optional shading rate overlay.`,
			ArgsUsage: "scene",
			Action:    RenderFrames,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 640,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 360,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "frames, n",
					Value: 4,
					Usage: "number of frames to render",
				},
				cli.Float64Flag{
					Name:  "orbit",
					Value: 0,
					Usage: "camera rotation around the scene per frame in radians",
				},
				cli.IntFlag{
					Name:  "workers",
					Value: 0,
					Usage: "number of rendering goroutines, 0 uses all processors",
				},
				cli.IntFlag{
					Name:  "tile",
					Value: 8,
					Usage: "shading rate tile size in pixels",
				},
				cli.Float64Flag{
					Name:  "temporal",
					Value: 0,
					Usage: "weight of the previous frame's tile importance in [0,1)",
				},
				cli.BoolFlag{
					Name:  "no-isr",
					Usage: "shade every pixel at full rate",
				},
				cli.BoolFlag{
					Name:  "no-aa",
					Usage: "disable silhouette anti-aliasing",
				},
				cli.BoolFlag{
					Name:  "image-importance",
					Usage: "measure tile importance from image contrast instead of geometry",
				},
				cli.BoolFlag{
					Name:  "foveated",
					Usage: "favour the center of the frame when measuring importance",
				},
				cli.BoolFlag{
					Name:  "cache",
					Usage: "memoize ambient occlusion and shadow distance queries on a grid",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the last rendered frame",
				},
				cli.StringFlag{
					Name:  "overlay",
					Value: "",
					Usage: "image filename for the last frame with its shading rates overlaid",
				},
			},
		},
		{
			Name:      "draw2d",
			Usage:     "render the distance field of a 2D profile",
			ArgsUsage: "profile",
			Description: `
Render one of the built-in 2D profiles (vase, bar or gear) as a PNG image.
The rates colouring shows the shading rate a tile would get at each distance
from the profile's edge.`,
			Action: Draw2D,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "colors",
					Value: "iq",
					Usage: "distance colouring: iq, gradient, rates or bw",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 512,
					Usage: "image height, the width follows the profile's aspect ratio",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "profile.png",
					Usage: "image filename",
				},
			},
		},
		{
			Name:      "shader",
			Usage:     "write the GLSL source of a scene",
			ArgsUsage: "scene",
			Action:    WriteShader,
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "compute",
					Usage: "write a complete compute program instead of the SDF declarations",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "",
					Usage: "output filename, standard output if empty",
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
