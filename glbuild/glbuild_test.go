package glbuild_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/epicx/raysdf"
	"github.com/epicx/raysdf/glbuild"
)

func TestShaderNameDeduplication(t *testing.T) {
	var bld raysdf.Builder
	// s1 and s2 are identical in name and body but different primitives.
	s1 := bld.NewCylinder(1, 2)
	s2 := bld.NewCylinder(1, 2)
	s1s1 := bld.Union(s1, s1)
	s1s2 := bld.Union(s1, s2)
	s1Name := string(s1.AppendShaderName(nil))
	s2Name := string(s2.AppendShaderName(nil))
	if s1Name != s2Name {
		t.Error("expected same name, got\n", s1Name, "\n", s2Name)
	}
	decl := "float " + s1Name + "(vec3 p)"
	for _, obj := range []glbuild.Shader3D{s1s1, s1s2} {
		programmer := glbuild.NewDefaultProgrammer()
		source := new(bytes.Buffer)
		n, err := programmer.WriteComputeSDF3(source, obj)
		if err != nil {
			t.Fatal(err)
		} else if n != source.Len() {
			t.Fatal("written length mismatch")
		}
		src := source.String()
		declCount := strings.Count(src, decl)
		if declCount != 1 {
			t.Errorf("\n%s\nCompute: want one declaration, got %d", src, declCount)
		}

		source.Reset()
		base, n, err := programmer.WriteSDFDecl(source, obj)
		if err != nil {
			t.Fatal(err)
		} else if n != source.Len() {
			t.Fatal("written length mismatch")
		}
		if !strings.Contains(source.String(), "float "+base+"(vec3 p)") {
			t.Errorf("root declaration %q not found", base)
		}
		declCount = strings.Count(source.String(), decl)
		if declCount != 1 {
			t.Errorf("\n%s\nDecl: want one declaration, got %d", source.String(), declCount)
		}
	}
}

func TestWriteComputeInvocations(t *testing.T) {
	var bld raysdf.Builder
	programmer := glbuild.NewDefaultProgrammer()
	programmer.SetComputeInvocations(64, 1, 1)
	if x, y, z := programmer.ComputeInvocations(); x != 64 || y != 1 || z != 1 {
		t.Fatalf("got invocations %d,%d,%d", x, y, z)
	}
	var buf bytes.Buffer
	_, err := programmer.WriteComputeSDF3(&buf, bld.NewSphere(1))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "local_size_x = 64") {
		t.Error("compute program does not carry configured local size")
	}
}

func TestFormatShader(t *testing.T) {
	var bld raysdf.Builder
	s := bld.Union(bld.NewSphere(1), bld.Translate(bld.NewBox(1, 1, 1), 1, 0, 0))
	got := glbuild.FormatShader(s)
	const want = "OpUnion(sphere,translate(box))"
	if got != want {
		t.Errorf("want %q, got %q", want, got)
	}
	n, err := glbuild.CountNodes(s)
	if err != nil {
		t.Fatal(err)
	} else if n != 4 {
		t.Errorf("want 4 nodes, got %d", n)
	}
}

func TestAppendFloat(t *testing.T) {
	for _, test := range []struct {
		v    float32
		want string
	}{
		{v: 1, want: "1."},
		{v: -2.5, want: "-2.5"},
		{v: 0.125, want: "0.125"},
	} {
		got := string(glbuild.AppendFloat(nil, '-', '.', test.v))
		if got != test.want {
			t.Errorf("AppendFloat(%v): want %q, got %q", test.v, test.want, got)
		}
	}
}
