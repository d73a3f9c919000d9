package world

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func testMesh() *Mesh {
	return NewMesh(
		[]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[]Face{{0, 1, 2}},
	)
}

func TestAttachAssignsIDs(t *testing.T) {
	w := New()

	mesh := testMesh()
	inst := NewInstance(mesh)
	w.Attach(mesh)
	w.Attach(inst)

	if mesh.ID() != 1 {
		t.Fatalf("expected first shape id 1; got %d", mesh.ID())
	}
	if inst.ID() != 2 {
		t.Fatalf("expected second shape id 2; got %d", inst.ID())
	}
	if len(w.Shapes()) != 2 {
		t.Fatalf("expected 2 attached shapes; got %d", len(w.Shapes()))
	}
}

func TestStateTracking(t *testing.T) {
	w := New()
	if w.HasChanged() {
		t.Fatalf("expected a fresh world to report no changes")
	}

	mesh := testMesh()
	w.Attach(mesh)
	if w.State()&StateChangeAdd == 0 {
		t.Fatalf("expected attach to set the add flag; got %b", w.State())
	}

	w.Commit()
	if w.HasChanged() {
		t.Fatalf("expected no changes after commit; got %b", w.State())
	}

	mesh.SetTransform(mgl32.Translate3D(1, 0, 0))
	if w.State()&StateChangeMove == 0 {
		t.Fatalf("expected transform update to set the move flag; got %b", w.State())
	}

	w.Commit()
	w.Detach(mesh)
	if w.State()&StateChangeRemove == 0 {
		t.Fatalf("expected detach to set the remove flag; got %b", w.State())
	}
	if len(w.Shapes()) != 0 {
		t.Fatalf("expected no shapes after detach; got %d", len(w.Shapes()))
	}
}

func TestOptionSet(t *testing.T) {
	w := New()
	opts := w.Options()

	opts.SetString(OptBuilder, "sah")
	opts.SetFloat(OptTraversalCost, 12)

	if got := opts.Get(OptBuilder); got == nil || got.AsString() != "sah" {
		t.Fatalf("expected builder option \"sah\"; got %v", got)
	}
	if got := opts.Get(OptTraversalCost); got == nil || got.AsFloat() != 12 {
		t.Fatalf("expected traversal cost 12; got %v", got)
	}
	if got := opts.Get(OptUseSplits); got != nil {
		t.Fatalf("expected unset option to be nil; got %v", got)
	}
	if got := opts.Get(OptBuilder).AsFloat(); got != 0 {
		t.Fatalf("expected string option to report float 0; got %f", got)
	}
}

func TestFaceBounds(t *testing.T) {
	mesh := testMesh()
	mesh.SetTransform(mgl32.Translate3D(10, 0, 0))

	object := mesh.FaceBounds(0, true)
	if object.Min != (mgl32.Vec3{0, 0, 0}) || object.Max != (mgl32.Vec3{1, 1, 0}) {
		t.Fatalf("expected object-space bounds [{0 0 0}, {1 1 0}]; got [%v, %v]", object.Min, object.Max)
	}

	world := mesh.FaceBounds(0, false)
	if world.Min != (mgl32.Vec3{10, 0, 0}) || world.Max != (mgl32.Vec3{11, 1, 0}) {
		t.Fatalf("expected world-space bounds [{10 0 0}, {11 1 0}]; got [%v, %v]", world.Min, world.Max)
	}
}
