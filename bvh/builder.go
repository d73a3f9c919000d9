package bvh

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/glowray/shortstack/log"
	"github.com/glowray/shortstack/types"
)

const (
	// Default number of SAH bins per axis.
	DefaultNumBins = 64

	// Default node traversal cost relative to one primitive intersection.
	DefaultTraversalCost float32 = 10.0

	// Axes with a centroid extent below this threshold are not considered
	// for splitting.
	minAxisExtent float32 = 1e-6
)

var errNoPrimitives = errors.New("bvh: cannot build a hierarchy over zero primitives")

// Options for the plain and SAH-driven builders.
type Options struct {
	// Score split candidates with the binned surface area heuristic
	// instead of median splits.
	UseSAH bool

	// Number of SAH bins per axis. Defaults to DefaultNumBins.
	NumBins int

	// Estimated node traversal cost relative to a primitive
	// intersection. Defaults to DefaultTraversalCost.
	TraversalCost float32
}

// Create a hierarchy builder. With UseSAH unset the builder splits at the
// centroid median of the widest axis; with it set, split candidates are
// scored with a binned surface area heuristic.
func NewBuilder(opts Options) Builder {
	if opts.NumBins <= 0 {
		opts.NumBins = DefaultNumBins
	}
	if opts.TraversalCost <= 0 {
		opts.TraversalCost = DefaultTraversalCost
	}
	return &builder{
		logger: log.New("bvh"),
		opts:   opts,
	}
}

// A single primitive reference tracked during the build.
type primRef struct {
	index  int32
	bounds types.AABB
	center mgl32.Vec3
}

// A scored split candidate for one axis.
type splitCandidate struct {
	axis       int
	splitPoint float32

	leftCount, rightCount int
	cost                  float32
}

type builder struct {
	logger log.Logger
	opts   Options

	tree      *Tree
	height    int
	scoreChan chan splitCandidate
}

func (b *builder) Build(bounds []types.AABB) (*Tree, error) {
	if len(bounds) == 0 {
		return nil, errNoPrimitives
	}

	refs := make([]primRef, len(bounds))
	for i, box := range bounds {
		refs[i] = primRef{index: int32(i), bounds: box, center: box.Center()}
	}

	b.tree = &Tree{
		primCount: len(bounds),
		indices:   make([]int32, 0, len(bounds)),
	}
	b.height = 0
	b.scoreChan = make(chan splitCandidate)

	start := time.Now()
	b.tree.root = b.partition(refs, 0)
	b.tree.height = b.height
	b.tree.stats.buildTime = time.Since(start)

	b.logger.Debugf(
		"hierarchy build time: %d ms, height: %d, nodes: %d, leafs: %d",
		b.tree.stats.buildTime.Nanoseconds()/1e6,
		b.tree.height, b.tree.stats.nodes, b.tree.stats.leafs,
	)
	return b.tree, nil
}

// Partition refs into a subtree and return its root.
func (b *builder) partition(refs []primRef, depth int) *node {
	if depth > b.height {
		b.height = depth
	}

	bounds := types.EmptyAABB()
	centroidBounds := types.EmptyAABB()
	for _, ref := range refs {
		bounds = bounds.Union(ref.bounds)
		centroidBounds = centroidBounds.Grow(ref.center)
	}

	if len(refs) <= 1 {
		return b.createLeaf(bounds, refs)
	}

	var left, right []primRef
	if b.opts.UseSAH {
		left, right = b.sahSplit(refs, bounds, centroidBounds)
	} else {
		left, right = b.medianSplit(refs, centroidBounds)
	}

	// No split could separate the references: all centroids coincide or
	// the heuristic preferred a leaf.
	if left == nil {
		return b.createLeaf(bounds, refs)
	}

	n := &node{bounds: bounds}
	n.left = b.partition(left, depth+1)
	n.right = b.partition(right, depth+1)

	b.tree.stats.nodes++
	return n
}

// Split refs at the centroid median of the widest centroid-bounds axis.
// Returns nil slices when the centroids cannot be separated.
func (b *builder) medianSplit(refs []primRef, centroidBounds types.AABB) (left, right []primRef) {
	axis := widestAxis(centroidBounds)
	if centroidBounds.Extents()[axis] < minAxisExtent {
		return nil, nil
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].center[axis] < refs[j].center[axis]
	})

	mid := len(refs) / 2
	return refs[:mid], refs[mid:]
}

// Score binned SAH candidates on all three axes in parallel, pick the best
// one and partition refs around it. Returns nil slices when every candidate
// is invalid or the unsplit node scores better.
func (b *builder) sahSplit(refs []primRef, bounds, centroidBounds types.AABB) (left, right []primRef) {
	pendingScores := 0
	for axis := 0; axis < 3; axis++ {
		if centroidBounds.Extents()[axis] < minAxisExtent {
			continue
		}
		pendingScores++
		go scoreAxis(refs, axis, centroidBounds, b.opts.NumBins, b.scoreChan)
	}

	leafCost := float32(len(refs))
	bestCost := float32(math.MaxFloat32)
	var best *splitCandidate
	for ; pendingScores > 0; pendingScores-- {
		candidate := <-b.scoreChan
		if candidate.cost < bestCost {
			bestCost = candidate.cost
			best = &candidate
		}
	}

	if best == nil {
		return nil, nil
	}

	// Normalize the sweep score into a full SAH cost for the leaf test.
	area := bounds.SurfaceArea()
	if area > 0 && b.opts.TraversalCost+bestCost/area >= leafCost {
		return nil, nil
	}

	split := len(refs)
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].center[best.axis] < refs[j].center[best.axis]
	})
	for i, ref := range refs {
		if ref.center[best.axis] >= best.splitPoint {
			split = i
			break
		}
	}
	if split == 0 || split == len(refs) {
		return nil, nil
	}
	return refs[:split], refs[split:]
}

// Score one axis with a binned sweep and report the best candidate on the
// supplied channel. Invalid candidates carry a MaxFloat32 cost.
func scoreAxis(refs []primRef, axis int, centroidBounds types.AABB, numBins int, resChan chan<- splitCandidate) {
	lo := centroidBounds.Min[axis]
	extent := centroidBounds.Extents()[axis]
	scale := float32(numBins) / extent

	binCounts := make([]int, numBins)
	binBounds := make([]types.AABB, numBins)
	for i := range binBounds {
		binBounds[i] = types.EmptyAABB()
	}

	for _, ref := range refs {
		bin := int((ref.center[axis] - lo) * scale)
		if bin >= numBins {
			bin = numBins - 1
		}
		binCounts[bin]++
		binBounds[bin] = binBounds[bin].Union(ref.bounds)
	}

	// Sweep from the right accumulating suffix counts and areas.
	rightCounts := make([]int, numBins)
	rightAreas := make([]float32, numBins)
	suffixBounds := types.EmptyAABB()
	suffixCount := 0
	for i := numBins - 1; i > 0; i-- {
		suffixBounds = suffixBounds.Union(binBounds[i])
		suffixCount += binCounts[i]
		rightCounts[i] = suffixCount
		rightAreas[i] = suffixBounds.SurfaceArea()
	}

	best := splitCandidate{axis: axis, cost: math.MaxFloat32}

	// Sweep from the left scoring each bin boundary.
	prefixBounds := types.EmptyAABB()
	prefixCount := 0
	for i := 1; i < numBins; i++ {
		prefixBounds = prefixBounds.Union(binBounds[i-1])
		prefixCount += binCounts[i-1]
		if prefixCount == 0 || rightCounts[i] == 0 {
			continue
		}

		cost := float32(prefixCount)*prefixBounds.SurfaceArea() + float32(rightCounts[i])*rightAreas[i]
		if cost < best.cost {
			best.cost = cost
			best.splitPoint = lo + float32(i)/scale
			best.leftCount = prefixCount
			best.rightCount = rightCounts[i]
		}
	}

	resChan <- best
}

// Emit a leaf holding all refs and append their indices to the packed list.
func (b *builder) createLeaf(bounds types.AABB, refs []primRef) *node {
	n := &node{
		bounds:     bounds,
		startIndex: int32(len(b.tree.indices)),
		numPrims:   int32(len(refs)),
	}
	for _, ref := range refs {
		b.tree.indices = append(b.tree.indices, ref.index)
	}

	b.tree.stats.nodes++
	b.tree.stats.leafs++
	b.tree.stats.refs += len(refs)
	return n
}

// The axis with the largest extent.
func widestAxis(bounds types.AABB) int {
	side := bounds.Extents()
	axis := 0
	if side[1] > side[axis] {
		axis = 1
	}
	if side[2] > side[axis] {
		axis = 2
	}
	return axis
}
