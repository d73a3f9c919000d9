package bvh

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/glowray/shortstack/types"
)

// FatNode is the 32-byte flat node uploaded to the device. The int payload
// slots are multipurpose:
//
//   - internal nodes: LData > 0 and RData > 0 hold the left/right child
//     offsets within the flat node array (the left child always directly
//     follows its parent);
//   - leaf nodes: LData <= 0 holds the negated first reordered-primitive
//     index and RData holds the primitive count.
type FatNode struct {
	Min   mgl32.Vec3
	LData int32

	Max   mgl32.Vec3
	RData int32
}

// Set bounding box extents.
func (n *FatNode) SetBBox(bounds types.AABB) {
	n.Min = bounds.Min
	n.Max = bounds.Max
}

// Set left and right child node offsets.
func (n *FatNode) SetChildNodes(left, right uint32) {
	n.LData = int32(left)
	n.RData = int32(right)
}

// Get left and right child node offsets.
func (n *FatNode) ChildNodes() (left, right uint32) {
	return uint32(n.LData), uint32(n.RData)
}

// Set first reordered-primitive index and primitive count.
func (n *FatNode) SetPrimitives(firstPrimIndex, count uint32) {
	n.LData = -int32(firstPrimIndex)
	n.RData = int32(count)
}

// Get first reordered-primitive index and primitive count.
func (n *FatNode) Primitives() (firstPrimIndex, count uint32) {
	return uint32(-n.LData), uint32(n.RData)
}

// Report whether this is a leaf node.
func (n *FatNode) IsLeaf() bool {
	return n.LData <= 0
}

// Face is the per-primitive payload record, stored at the primitive's
// reordered position. Vertex indices are absolute into the global vertex
// buffer; ShapeID identifies the owning shape and PrimID is the face index
// local to the owning mesh.
type Face struct {
	Idx     [3]int32
	ShapeID int32
	PrimID  int32
	Flags   int32
}

// Translator converts a hierarchy into the flat fat-node array plus the
// reordered face payload the traversal kernels consume.
type Translator struct {
	Nodes []FatNode
	Faces []Face

	numIndices int
}

func NewTranslator() *Translator {
	return &Translator{}
}

// Walk the tree and emit one flat node per hierarchy node, parents before
// children. Leaf ranges refer to the tree's reordered index space; the
// matching payload is attached afterwards with InjectIndices.
func (t *Translator) Process(tree *Tree) error {
	if tree == nil || tree.root == nil {
		return errors.New("bvh: translator requires a built hierarchy")
	}

	t.Nodes = make([]FatNode, 0, tree.NumNodes())
	t.Faces = nil
	t.numIndices = tree.NumIndices()
	t.emit(tree.root)
	return nil
}

// Attach the face payload for every reordered primitive position. The
// record count must match the hierarchy's indexed-primitive count.
func (t *Translator) InjectIndices(faces []Face) error {
	if len(faces) != t.numIndices {
		return fmt.Errorf("bvh: expected %d face records; got %d", t.numIndices, len(faces))
	}
	t.Faces = faces
	return nil
}

func (t *Translator) emit(n *node) uint32 {
	index := uint32(len(t.Nodes))
	t.Nodes = append(t.Nodes, FatNode{})
	t.Nodes[index].SetBBox(n.bounds)

	if n.isLeaf() {
		t.Nodes[index].SetPrimitives(uint32(n.startIndex), uint32(n.numPrims))
		return index
	}

	left := t.emit(n.left)
	right := t.emit(n.right)
	t.Nodes[index].SetChildNodes(left, right)
	return index
}
