package world

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestParseWavefront(t *testing.T) {
	payload := `
# a unit quad split into two triangles
v 0 0 0
v 1.0 0 0
v 1.0 1.0 0
v 0 1.0 0

f 1/1/1 2/2/1 3/3/1
f 1//1 3//1 -1
`
	mesh, err := parseWavefront(strings.NewReader(payload), "quad.obj")
	if err != nil {
		t.Fatal(err)
	}

	if mesh.NumVertices() != 4 {
		t.Fatalf("expected 4 vertices; got %d", mesh.NumVertices())
	}
	if mesh.NumFaces() != 2 {
		t.Fatalf("expected 2 faces; got %d", mesh.NumFaces())
	}
	if got := mesh.Vertices()[2]; got != (mgl32.Vec3{1, 1, 0}) {
		t.Fatalf("expected vertex 2 to be {1 1 0}; got %v", got)
	}
	if got := mesh.Face(0); got != (Face{0, 1, 2}) {
		t.Fatalf("expected face 0 to be {0 1 2}; got %v", got)
	}
	if got := mesh.Face(1); got != (Face{0, 2, 3}) {
		t.Fatalf("expected face 1 to be {0 2 3}; got %v", got)
	}
}

func TestParseWavefrontTriangulatesPolygons(t *testing.T) {
	payload := `
v 0 0 0
v 1 0 0
v 1 1 0
v 0.5 1.5 0
v 0 1 0
f 1 2 3 4 5
`
	mesh, err := parseWavefront(strings.NewReader(payload), "poly.obj")
	if err != nil {
		t.Fatal(err)
	}

	expFaces := []Face{{0, 1, 2}, {0, 2, 3}, {0, 3, 4}}
	if mesh.NumFaces() != len(expFaces) {
		t.Fatalf("expected %d fan triangles; got %d", len(expFaces), mesh.NumFaces())
	}
	for i, exp := range expFaces {
		if mesh.Face(i) != exp {
			t.Fatalf("expected fan triangle %d to be %v; got %v", i, exp, mesh.Face(i))
		}
	}
}

func TestParseWavefrontErrors(t *testing.T) {
	specs := []struct {
		name    string
		payload string
	}{
		{"face index out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n"},
		{"short vertex record", "v 0 0\n"},
		{"short face record", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
		{"no faces", "v 0 0 0\nv 1 0 0\nv 0 1 0\n"},
	}

	for _, spec := range specs {
		if _, err := parseWavefront(strings.NewReader(spec.payload), "bad.obj"); err == nil {
			t.Fatalf("expected %q to fail parsing", spec.name)
		}
	}
}
