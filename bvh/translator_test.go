package bvh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/glowray/shortstack/types"
)

func TestFatNodeEncoding(t *testing.T) {
	var n FatNode

	n.SetChildNodes(1, 5)
	if n.IsLeaf() {
		t.Fatalf("expected an internal node after SetChildNodes")
	}
	if left, right := n.ChildNodes(); left != 1 || right != 5 {
		t.Fatalf("expected children (1, 5); got (%d, %d)", left, right)
	}

	n.SetPrimitives(0, 3)
	if !n.IsLeaf() {
		t.Fatalf("expected a leaf after SetPrimitives")
	}
	if first, count := n.Primitives(); first != 0 || count != 3 {
		t.Fatalf("expected primitives (0, 3); got (%d, %d)", first, count)
	}

	n.SetPrimitives(7, 2)
	if !n.IsLeaf() {
		t.Fatalf("expected a leaf for a non-zero first index")
	}
	if first, count := n.Primitives(); first != 7 || count != 2 {
		t.Fatalf("expected primitives (7, 2); got (%d, %d)", first, count)
	}
}

func TestTranslatorLayout(t *testing.T) {
	// Two distant boxes build a root with two single-prim leaves.
	bounds := []types.AABB{
		{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{1, 1, 1}},
		{Min: mgl32.Vec3{10, 0, 0}, Max: mgl32.Vec3{11, 1, 1}},
	}
	tree, err := NewBuilder(Options{}).Build(bounds)
	if err != nil {
		t.Fatal(err)
	}

	tr := NewTranslator()
	if err = tr.Process(tree); err != nil {
		t.Fatal(err)
	}

	if len(tr.Nodes) != 3 {
		t.Fatalf("expected 3 flat nodes; got %d", len(tr.Nodes))
	}

	root := &tr.Nodes[0]
	if root.IsLeaf() {
		t.Fatalf("expected node 0 to be the internal root")
	}

	// The left child always directly follows its parent.
	left, right := root.ChildNodes()
	if left != 1 {
		t.Fatalf("expected the left child at offset 1; got %d", left)
	}
	if right == left || int(right) >= len(tr.Nodes) {
		t.Fatalf("expected a distinct in-range right child; got %d", right)
	}

	// Each leaf covers a distinct single-primitive range of the
	// reordered index space.
	covered := make([]int, tree.NumIndices())
	for _, offset := range []uint32{left, right} {
		leaf := &tr.Nodes[offset]
		if !leaf.IsLeaf() {
			t.Fatalf("expected node %d to be a leaf", offset)
		}
		first, count := leaf.Primitives()
		if count != 1 {
			t.Fatalf("expected single-prim leaf at %d; got count %d", offset, count)
		}
		covered[first]++
	}
	for pos, hits := range covered {
		if hits != 1 {
			t.Fatalf("expected reordered position %d to be covered exactly once; got %d", pos, hits)
		}
	}
}

func TestTranslatorInjectIndices(t *testing.T) {
	bounds := []types.AABB{
		{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{1, 1, 1}},
		{Min: mgl32.Vec3{10, 0, 0}, Max: mgl32.Vec3{11, 1, 1}},
	}
	tree, err := NewBuilder(Options{}).Build(bounds)
	if err != nil {
		t.Fatal(err)
	}

	tr := NewTranslator()
	if err = tr.Process(tree); err != nil {
		t.Fatal(err)
	}

	if err = tr.InjectIndices(make([]Face, 1)); err == nil {
		t.Fatalf("expected a count mismatch error for a short payload")
	}

	faces := make([]Face, tree.NumIndices())
	if err = tr.InjectIndices(faces); err != nil {
		t.Fatal(err)
	}
	if len(tr.Faces) != tree.NumIndices() {
		t.Fatalf("expected %d face records; got %d", tree.NumIndices(), len(tr.Faces))
	}
}

func TestTranslatorRequiresTree(t *testing.T) {
	if err := NewTranslator().Process(nil); err == nil {
		t.Fatalf("expected an error for a nil tree")
	}
	if err := NewTranslator().Process(&Tree{}); err == nil {
		t.Fatalf("expected an error for an unbuilt tree")
	}
}
