// Package bvh builds binary bounding-volume hierarchies over primitive
// bounding boxes and translates them into the flat, pointer-free node
// layout the traversal kernels consume.
package bvh

import (
	"bytes"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/glowray/shortstack/types"
)

// Builder is implemented by all hierarchy construction strategies.
type Builder interface {
	// Build a hierarchy over the given primitive bounding boxes. The
	// boxes are indexed by global primitive index.
	Build(bounds []types.AABB) (*Tree, error)
}

// A hierarchy node. Leaf nodes reference a contiguous range of the packed
// primitive index list.
type node struct {
	bounds types.AABB

	left  *node
	right *node

	// Leaf payload: range into the tree's packed index list.
	startIndex int32
	numPrims   int32
}

func (n *node) isLeaf() bool {
	return n.left == nil
}

type buildStats struct {
	nodes     int
	leafs     int
	refs      int
	splitRefs int
	buildTime time.Duration
}

// Tree is the output of a hierarchy build.
type Tree struct {
	root *node

	// Edge count from the root to the deepest leaf.
	height int

	// Packed primitive indices in leaf-storage order. indices[i] is the
	// global primitive index stored at reordered position i. Builders
	// that split primitives may reference the same global index from
	// more than one position.
	indices []int32

	primCount int
	stats     buildStats
}

// Tree height measured in edges from the root to the deepest leaf.
func (t *Tree) Height() int {
	return t.height
}

// The reordering from leaf-storage positions to global primitive indices.
func (t *Tree) Indices() []int32 {
	return t.indices
}

// Total number of indexed primitive references. Exceeds the input
// primitive count when the builder duplicated references by splitting.
func (t *Tree) NumIndices() int {
	return len(t.indices)
}

// Total number of hierarchy nodes.
func (t *Tree) NumNodes() int {
	return t.stats.nodes
}

// Build a tabular statistics dump for diagnostics.
func (t *Tree) Stats() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Hierarchy", "Value"})
	table.Append([]string{"Primitives", fmt.Sprintf("%d", t.primCount)})
	table.Append([]string{"Indexed refs", fmt.Sprintf("%d", len(t.indices))})
	table.Append([]string{"Split refs", fmt.Sprintf("%d", t.stats.splitRefs)})
	table.Append([]string{"Nodes", fmt.Sprintf("%d", t.stats.nodes)})
	table.Append([]string{"Leafs", fmt.Sprintf("%d", t.stats.leafs)})
	table.Append([]string{"Height", fmt.Sprintf("%d", t.height)})
	if t.stats.leafs > 0 {
		table.Append([]string{"Refs per leaf", fmt.Sprintf("%.2f", float32(len(t.indices))/float32(t.stats.leafs))})
	}
	table.Append([]string{"Build time", t.stats.buildTime.String()})
	table.Render()
	return buf.String()
}
