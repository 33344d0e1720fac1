package main

import (
	"fmt"
	"sort"

	"github.com/chewxy/math32"
	"github.com/epicx/raysdf"
	"github.com/epicx/raysdf/glbuild"
	"github.com/epicx/raysdf/march"
	"github.com/soypat/geometry/ms3"
)

// preset is a built-in scene with the viewpoint it is best seen from.
type preset struct {
	Description string
	Eye, Target ms3.Vec
	Build       func(bld *raysdf.Builder) glbuild.Shader3D
}

// Material ids tagged by the preset scenes, indexing palette.
const (
	matGround = iota
	matBlue
	matStone
	matMetal
	matYellow
	matPurple
	matRed
	matGreen
)

var palette = []march.Material{
	matGround: {Albedo: march.RGB(0.3, 0.35, 0.3), Roughness: 0.8},
	matBlue:   {Albedo: march.RGB(0.2, 0.6, 0.9), Roughness: 0.3, Metallic: 0.1},
	matStone:  {Albedo: march.RGB(0.6, 0.58, 0.55), Roughness: 0.6},
	matMetal:  {Albedo: march.RGB(0.95, 0.95, 0.95), Roughness: 0.1, Metallic: 0.9},
	matYellow: {Albedo: march.RGB(0.9, 0.8, 0.2), Roughness: 0.3, Metallic: 0.1},
	matPurple: {Albedo: march.RGB(0.8, 0.4, 0.9), Roughness: 0.3, Metallic: 0.1},
	matRed:    {Albedo: march.RGB(0.9, 0.3, 0.3), Roughness: 0.3, Metallic: 0.1},
	matGreen:  {Albedo: march.RGB(0.3, 0.8, 0.4), Roughness: 0.3, Metallic: 0.1},
}

var presets = map[string]preset{
	"demo": {
		Description: "ground, stacked tower, pillars with spheres, pyramids and scattered cubes",
		Eye:         ms3.Vec{Y: 6, Z: 15},
		Target:      ms3.Vec{Y: 1},
		Build:       buildDemo,
	},
	"blend": {
		Description: "smooth CSG of a sphere, rounded box and twisted torus over a ground plane",
		Eye:         ms3.Vec{X: 3, Y: 2.5, Z: 5},
		Target:      ms3.Vec{Y: 0.5},
		Build:       buildBlend,
	},
	"grid": {
		Description: "bounded repetition of spheres carved by a shell box",
		Eye:         ms3.Vec{X: 6, Y: 5, Z: 9},
		Target:      ms3.Vec{},
		Build:       buildGrid,
	},
	"lathe": {
		Description: "revolved and extruded 2D profiles with bezier tubes",
		Eye:         ms3.Vec{X: 4, Y: 3, Z: 6},
		Target:      ms3.Vec{Y: 0.5},
		Build:       buildLathe,
	},
}

func presetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildPreset builds the named scene and reports any accumulated construction error.
func buildPreset(name string) (glbuild.Shader3D, preset, error) {
	p, ok := presets[name]
	if !ok {
		return nil, p, fmt.Errorf("unknown scene %q, available scenes: %v", name, presetNames())
	}
	var bld raysdf.Builder
	bld.SetFlags(raysdf.FlagNoDimensionPanic)
	s := p.Build(&bld)
	if err := bld.Err(); err != nil {
		return nil, p, fmt.Errorf("building scene %q: %w", name, err)
	}
	return s, p, nil
}

func buildDemo(bld *raysdf.Builder) glbuild.Shader3D {
	tag := bld.WithMaterial
	ground := tag(bld.NewPlane(ms3.Vec{Y: 1}, 0.25), matGround)
	cube := func(pos ms3.Vec, size float32) glbuild.Shader3D {
		return bld.Translate(bld.NewBox(size/2, size/2, size/2), pos.X, pos.Y, pos.Z)
	}
	tower := bld.Union(
		cube(ms3.Vec{Y: 0.5}, 1.5),
		cube(ms3.Vec{Y: 1.5}, 1.2),
		cube(ms3.Vec{Y: 2.3}, 0.9),
	)
	parts := []glbuild.Shader3D{ground, tag(tower, matBlue)}
	pillars := []ms3.Vec{{X: -4, Y: 1, Z: -4}, {X: 4, Y: 1, Z: -4}, {X: -4, Y: 1, Z: 4}, {X: 4, Y: 1, Z: 4}}
	for _, pos := range pillars {
		parts = append(parts,
			tag(bld.Translate(bld.NewCylinder(0.4, 1), pos.X, pos.Y, pos.Z), matStone),
			tag(bld.Translate(bld.NewSphere(0.5), pos.X, pos.Y+2.3, pos.Z), matMetal),
		)
	}
	pyramid := func(pos ms3.Vec, base, height float32) glbuild.Shader3D {
		return tag(bld.Translate(bld.NewPyramid(base/2, height), pos.X, pos.Y, pos.Z), matYellow)
	}
	parts = append(parts,
		pyramid(ms3.Vec{X: -3}, 1.2, 1.5),
		pyramid(ms3.Vec{X: 3}, 1.2, 1.5),
		pyramid(ms3.Vec{Z: -4}, 1, 1.2),
		tag(cube(ms3.Vec{X: -2, Y: 0.4, Z: 2.5}, 0.8), matPurple),
		tag(cube(ms3.Vec{X: 2.5, Y: 0.35, Z: 2}, 0.7), matRed),
		tag(cube(ms3.Vec{X: -1.5, Y: 0.3, Z: -2.5}, 0.6), matGreen),
		tag(bld.Translate(bld.NewSphere(0.6), 1.5, 0.6, 3), matMetal),
	)
	return bld.Union(parts...)
}

func buildBlend(bld *raysdf.Builder) glbuild.Shader3D {
	sphere := bld.Translate(bld.NewSphere(0.7), -0.5, 0.7, 0)
	box := bld.Translate(bld.NewRoundBox(0.5, 0.5, 0.5, 0.1), 0.4, 0.5, 0)
	blob := bld.SmoothUnion(0.3, bld.WithMaterial(sphere, matRed), bld.WithMaterial(box, matBlue))
	hole := bld.Translate(bld.NewCapsule(ms3.Vec{X: -1.5}, ms3.Vec{X: 1.5}, 0.2), 0, 0.6, 0)
	blob = bld.SmoothDifference(0.05, blob, hole)
	torus := bld.Twist(bld.NewTorus(0.6, 0.15), 1.5)
	torus = bld.Translate(bld.Rotate(torus, 0.5, ms3.Vec{X: 1}), 1.8, 0.6, -0.5)
	ground := bld.WithMaterial(bld.NewPlane(ms3.Vec{Y: 1}, 0), matGround)
	return bld.Union(bld.SmoothUnion(0.2, blob, ground), bld.WithMaterial(torus, matMetal))
}

func buildGrid(bld *raysdf.Builder) glbuild.Shader3D {
	spheres := bld.RepeatLimited(bld.NewSphere(0.35), ms3.Vec{X: 1, Y: 1, Z: 1}, ms3.Vec{X: 2, Y: 2, Z: 2})
	frame := bld.Shell(bld.NewBox(2.6, 2.6, 2.6), 0.05)
	window := bld.Elongate(bld.NewEllipsoid(0.8, 0.8, 3), 1.2, 1.2, 0)
	frame = bld.Difference(frame, window)
	return bld.Union(bld.WithMaterial(spheres, matMetal), bld.WithMaterial(bld.Symmetry(frame, true, false, false), matBlue))
}

func buildLathe(bld *raysdf.Builder) glbuild.Shader3D {
	tag := bld.WithMaterial
	vase := bld.Translate(bld.Revolve(vaseProfile(bld), 0.3), -1, 0.6, 0)
	bar := bld.Extrude(barProfile(bld), 0.6)
	bar = bld.Translate(bar, 0.8, 0.3, 0)
	ring := bld.Translate(bld.Bend(bld.NewBox(1, 0.1, 0.2), 0.5), 1, 1.6, 0)
	ground := bld.NewPlane(ms3.Vec{Y: 1}, 0)
	arch := bld.NewBezierQuadratic(ms3.Vec{X: -1.5, Z: 1.2}, ms3.Vec{Y: 3, Z: 1.2}, ms3.Vec{X: 1.5, Z: 1.2}, 0.08)
	wire := bld.NewBezierCubic(ms3.Vec{X: -1.5, Y: 0.1, Z: -1.2}, ms3.Vec{X: -0.5, Y: 1.5, Z: -1.6},
		ms3.Vec{X: 0.5, Y: -0.3, Z: -0.8}, ms3.Vec{X: 1.5, Y: 1, Z: -1.2}, 0.1)
	return bld.Union(
		tag(ground, matGround),
		tag(vase, matYellow),
		tag(bar, matPurple),
		tag(bld.Round(ring, 0.05), matMetal),
		tag(arch, matRed),
		tag(wire, matGreen),
	)
}

// profiles are the built-in 2D shapes drawn by the draw2d command.
var profiles = map[string]func(bld *raysdf.Builder) glbuild.Shader2D{
	"vase": vaseProfile,
	"bar":  barProfile,
	"gear": gearProfile,
}

func profileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildProfile builds the named 2D shape and reports any accumulated construction error.
func buildProfile(name string) (glbuild.Shader2D, error) {
	build, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q, available profiles: %v", name, profileNames())
	}
	var bld raysdf.Builder
	bld.SetFlags(raysdf.FlagNoDimensionPanic)
	s := build(&bld)
	if err := bld.Err(); err != nil {
		return nil, fmt.Errorf("building profile %q: %w", name, err)
	}
	return s, nil
}

// vaseProfile is the hollow cross section revolved in the lathe scene.
func vaseProfile(bld *raysdf.Builder) glbuild.Shader2D {
	profile := bld.Union2D(
		bld.NewRectangle(0.8, 1.2, 0.1),
		bld.Translate2D(bld.NewCircle(0.3), 0.4, 0.6),
	)
	return bld.Annulus(profile, 0.05)
}

func barProfile(bld *raysdf.Builder) glbuild.Shader2D {
	return bld.NewLine2D(0, 0, 1.5, 0.5, 0.2)
}

func gearProfile(bld *raysdf.Builder) glbuild.Shader2D {
	const teeth = 8
	parts := []glbuild.Shader2D{bld.Annulus(bld.NewCircle(0.8), 0.3)}
	for i := 0; i < teeth; i++ {
		s, c := math32.Sincos(2 * math32.Pi * float32(i) / teeth)
		parts = append(parts, bld.NewLine2D(0.7*c, 0.7*s, 1.05*c, 1.05*s, 0.12))
	}
	return bld.Union2D(parts...)
}
