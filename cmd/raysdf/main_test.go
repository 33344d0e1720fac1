package main

import (
	"testing"

	"github.com/epicx/raysdf"
	"github.com/epicx/raysdf/gleval"
	"github.com/soypat/geometry/ms2"
)

func TestPresets(t *testing.T) {
	for _, name := range presetNames() {
		s, p, err := buildPreset(name)
		if err != nil {
			t.Fatal(err)
		}
		scene, err := raysdf.NewScene(s)
		if err != nil {
			t.Fatalf("scene %q: %v", name, err)
		}
		if d := scene.Distance(p.Eye); d <= 0 {
			t.Errorf("scene %q: camera eye %v is inside the scene (d=%v)", name, p.Eye, d)
		}
	}
	if _, _, err := buildPreset("nonexistent"); err == nil {
		t.Error("expected error for unknown scene")
	}
}

func TestProfiles(t *testing.T) {
	for _, name := range profileNames() {
		s, err := buildProfile(name)
		if err != nil {
			t.Fatal(err)
		}
		sdf, err := gleval.NewCPUSDF2(s)
		if err != nil {
			t.Fatal(err)
		}
		bb := s.Bounds()
		pos := []ms2.Vec{ms2.Add(bb.Max, ms2.Vec{X: 0.1, Y: 0.1})}
		dist := make([]float32, 1)
		if err := sdf.Evaluate(pos, dist, nil); err != nil {
			t.Fatal(err)
		}
		if dist[0] <= 0 {
			t.Errorf("profile %q: point outside bounds has distance %v", name, dist[0])
		}
	}
	if _, err := buildProfile("nonexistent"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestColorConversionFlag(t *testing.T) {
	for _, name := range []string{"iq", "gradient", "rates"} {
		conv, err := colorConversion(name, 2)
		if err != nil {
			t.Fatal(err)
		}
		if conv == nil {
			t.Errorf("%s: nil conversion", name)
		}
	}
	if conv, err := colorConversion("bw", 2); err != nil || conv != nil {
		t.Errorf("bw should select the default black and white rendering: %v", err)
	}
	if _, err := colorConversion("sepia", 2); err == nil {
		t.Error("expected error for unknown colouring")
	}
}
