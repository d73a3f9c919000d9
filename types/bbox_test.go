package types

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestGrowAndUnion(t *testing.T) {
	box := EmptyAABB()
	if box.Valid() {
		t.Fatalf("expected empty box to be invalid")
	}

	box = box.Grow(mgl32.Vec3{1, 2, 3})
	if !box.Valid() {
		t.Fatalf("expected box to be valid after growing by a point")
	}
	if box.Min != box.Max {
		t.Fatalf("expected single-point box; got min %v max %v", box.Min, box.Max)
	}

	box = box.Grow(mgl32.Vec3{-1, 0, 5})
	expMin := mgl32.Vec3{-1, 0, 3}
	expMax := mgl32.Vec3{1, 2, 5}
	if box.Min != expMin || box.Max != expMax {
		t.Fatalf("expected box [%v, %v]; got [%v, %v]", expMin, expMax, box.Min, box.Max)
	}

	other := NewAABB(mgl32.Vec3{10, 10, 10})
	union := box.Union(other)
	if union.Min != expMin {
		t.Fatalf("expected union min %v; got %v", expMin, union.Min)
	}
	if union.Max != (mgl32.Vec3{10, 10, 10}) {
		t.Fatalf("expected union max {10 10 10}; got %v", union.Max)
	}
}

func TestIntersection(t *testing.T) {
	a := AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{2, 2, 2}}
	b := AABB{Min: mgl32.Vec3{1, 1, 1}, Max: mgl32.Vec3{3, 3, 3}}

	overlap := a.Intersection(b)
	if overlap.Min != (mgl32.Vec3{1, 1, 1}) || overlap.Max != (mgl32.Vec3{2, 2, 2}) {
		t.Fatalf("expected overlap [{1 1 1}, {2 2 2}]; got [%v, %v]", overlap.Min, overlap.Max)
	}

	disjoint := AABB{Min: mgl32.Vec3{5, 5, 5}, Max: mgl32.Vec3{6, 6, 6}}
	if a.Intersection(disjoint).Valid() {
		t.Fatalf("expected intersection of disjoint boxes to be invalid")
	}
}

func TestSurfaceArea(t *testing.T) {
	box := AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{1, 2, 3}}
	expArea := float32(2 * (1*2 + 2*3 + 1*3))
	if got := box.SurfaceArea(); got != expArea {
		t.Fatalf("expected surface area %f; got %f", expArea, got)
	}

	if got := EmptyAABB().SurfaceArea(); got != 0 {
		t.Fatalf("expected empty box surface area 0; got %f", got)
	}
}

func TestCenterAndContains(t *testing.T) {
	box := AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}
	if box.Center() != (mgl32.Vec3{0, 0, 0}) {
		t.Fatalf("expected center {0 0 0}; got %v", box.Center())
	}
	if !box.Contains(mgl32.Vec3{1, 0, -1}) {
		t.Fatalf("expected box to contain boundary point")
	}
	if box.Contains(mgl32.Vec3{1.001, 0, 0}) {
		t.Fatalf("expected box to exclude outside point")
	}
}

func TestTransform(t *testing.T) {
	box := AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{1, 1, 1}}

	moved := box.Transform(mgl32.Translate3D(5, 0, 0))
	if moved.Min != (mgl32.Vec3{5, 0, 0}) || moved.Max != (mgl32.Vec3{6, 1, 1}) {
		t.Fatalf("expected translated box [{5 0 0}, {6 1 1}]; got [%v, %v]", moved.Min, moved.Max)
	}

	// A rotation by 90 degrees around Z maps the unit box onto
	// [-1, 0] x [0, 1] on the XY plane.
	rotated := box.Transform(mgl32.HomogRotate3DZ(mgl32.DegToRad(90)))
	if !rotated.Contains(mgl32.Vec3{-0.5, 0.5, 0.5}) {
		t.Fatalf("expected rotated box to contain {-0.5 0.5 0.5}; got [%v, %v]", rotated.Min, rotated.Max)
	}
	if rotated.Contains(mgl32.Vec3{0.5, 0.5, 0.5}) {
		t.Fatalf("expected rotated box to exclude {0.5 0.5 0.5}; got [%v, %v]", rotated.Min, rotated.Max)
	}
}
