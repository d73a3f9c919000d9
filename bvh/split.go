package bvh

import (
	"math"
	"sort"
	"time"

	"github.com/glowray/shortstack/log"
	"github.com/glowray/shortstack/types"
)

const (
	// Default maximum depth at which spatial splits are still attempted.
	DefaultMaxSplitDepth = 10

	// Default child-overlap area threshold (relative to the root area)
	// above which a spatial split is attempted.
	DefaultMinOverlap float32 = 0.05

	// Default budget for extra references created by splitting, as a
	// fraction of the input primitive count.
	DefaultExtraNodeBudget float32 = 0.5
)

// Options for the split-aware SAH builder.
type SplitOptions struct {
	// Number of SAH bins per axis. Defaults to DefaultNumBins.
	NumBins int

	// Node traversal cost relative to a primitive intersection.
	// Defaults to DefaultTraversalCost.
	TraversalCost float32

	// Depth below which spatial splits are no longer attempted.
	// Defaults to DefaultMaxSplitDepth.
	MaxSplitDepth int

	// Minimum child bounds overlap, as a fraction of the root surface
	// area, for a spatial split to be considered. Defaults to
	// DefaultMinOverlap.
	MinOverlap float32

	// Extra reference budget as a fraction of the input primitive count.
	// Defaults to DefaultExtraNodeBudget.
	ExtraNodeBudget float32
}

// Create a split-aware SAH builder. It scores object splits like the SAH
// builder but may also split primitive references across a spatial plane
// when the object split's children overlap heavily, duplicating references
// within the extra node budget to improve hierarchy quality.
func NewSplitBuilder(opts SplitOptions) Builder {
	if opts.NumBins <= 0 {
		opts.NumBins = DefaultNumBins
	}
	if opts.TraversalCost <= 0 {
		opts.TraversalCost = DefaultTraversalCost
	}
	if opts.MaxSplitDepth <= 0 {
		opts.MaxSplitDepth = DefaultMaxSplitDepth
	}
	if opts.MinOverlap <= 0 {
		opts.MinOverlap = DefaultMinOverlap
	}
	if opts.ExtraNodeBudget <= 0 {
		opts.ExtraNodeBudget = DefaultExtraNodeBudget
	}
	return &splitBuilder{
		logger: log.New("bvh"),
		opts:   opts,
	}
}

type splitBuilder struct {
	logger log.Logger
	opts   SplitOptions

	tree      *Tree
	height    int
	scoreChan chan splitCandidate

	// Area of the root bounds; overlap thresholds are relative to it.
	rootArea float32

	// Remaining extra references that splitting may still create.
	refBudget int
}

func (b *splitBuilder) Build(bounds []types.AABB) (*Tree, error) {
	if len(bounds) == 0 {
		return nil, errNoPrimitives
	}

	refs := make([]primRef, len(bounds))
	rootBounds := types.EmptyAABB()
	for i, box := range bounds {
		refs[i] = primRef{index: int32(i), bounds: box, center: box.Center()}
		rootBounds = rootBounds.Union(box)
	}

	b.tree = &Tree{
		primCount: len(bounds),
		indices:   make([]int32, 0, len(bounds)),
	}
	b.height = 0
	b.scoreChan = make(chan splitCandidate)
	b.rootArea = rootBounds.SurfaceArea()
	b.refBudget = int(b.opts.ExtraNodeBudget * float32(len(bounds)))

	start := time.Now()
	b.tree.root = b.partition(refs, 0)
	b.tree.height = b.height
	b.tree.stats.buildTime = time.Since(start)

	b.logger.Debugf(
		"split hierarchy build time: %d ms, height: %d, nodes: %d, leafs: %d, split refs: %d",
		b.tree.stats.buildTime.Nanoseconds()/1e6,
		b.tree.height, b.tree.stats.nodes, b.tree.stats.leafs, b.tree.stats.splitRefs,
	)
	return b.tree, nil
}

func (b *splitBuilder) partition(refs []primRef, depth int) *node {
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

	left, right := b.objectSplit(refs, centroidBounds)

	// When the object split produces heavily overlapping children, try a
	// spatial split that clips straddling references at a plane instead.
	if b.shouldTrySpatialSplit(left, right, depth) {
		if sLeft, sRight, ok := b.spatialSplit(refs, bounds); ok {
			if left == nil || splitCost(sLeft, sRight) < splitCost(left, right) {
				left, right = sLeft, sRight
			}
		}
	}

	if left == nil {
		return b.createLeaf(bounds, refs)
	}

	// Prefer a leaf when the winning split does not beat the flat
	// intersection cost of the references.
	area := bounds.SurfaceArea()
	if area > 0 && b.opts.TraversalCost+splitCost(left, right)/area >= float32(len(refs)) {
		return b.createLeaf(bounds, refs)
	}

	n := &node{bounds: bounds}
	n.left = b.partition(left, depth+1)
	n.right = b.partition(right, depth+1)

	b.tree.stats.nodes++
	return n
}

// Partition refs around the best binned SAH candidate. Returns nil slices
// when no candidate separates the references.
func (b *splitBuilder) objectSplit(refs []primRef, centroidBounds types.AABB) (left, right []primRef) {
	pendingScores := 0
	for axis := 0; axis < 3; axis++ {
		if centroidBounds.Extents()[axis] < minAxisExtent {
			continue
		}
		pendingScores++
		go scoreAxis(refs, axis, centroidBounds, b.opts.NumBins, b.scoreChan)
	}

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

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].center[best.axis] < refs[j].center[best.axis]
	})
	split := len(refs)
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

// A spatial split is worth scoring when splits are still allowed at this
// depth, budget remains, and the object split children overlap by more
// than the configured fraction of the root area.
func (b *splitBuilder) shouldTrySpatialSplit(left, right []primRef, depth int) bool {
	if depth >= b.opts.MaxSplitDepth || b.refBudget <= 0 {
		return false
	}
	if left == nil || right == nil {
		// No usable object split; a spatial split is the only option.
		return true
	}

	overlap := refListBounds(left).Intersection(refListBounds(right))
	return overlap.Valid() && overlap.SurfaceArea() > b.opts.MinOverlap*b.rootArea
}

// Split refs at the middle of the node bounds' widest axis, clipping
// references that straddle the plane into one left and one right reference
// while budget remains. Returns ok=false when the plane does not separate
// anything.
func (b *splitBuilder) spatialSplit(refs []primRef, bounds types.AABB) (left, right []primRef, ok bool) {
	axis := widestAxis(bounds)
	if bounds.Extents()[axis] < minAxisExtent {
		return nil, nil, false
	}
	plane := (bounds.Min[axis] + bounds.Max[axis]) * 0.5

	left = make([]primRef, 0, len(refs)/2+1)
	right = make([]primRef, 0, len(refs)/2+1)
	for _, ref := range refs {
		switch {
		case ref.bounds.Max[axis] <= plane:
			left = append(left, ref)
		case ref.bounds.Min[axis] >= plane:
			right = append(right, ref)
		case b.refBudget > 0:
			lRef, rRef := clipRef(ref, axis, plane)
			left = append(left, lRef)
			right = append(right, rRef)
			b.refBudget--
			b.tree.stats.splitRefs++
		default:
			// Budget exhausted: fall back to assignment by center.
			if ref.center[axis] < plane {
				left = append(left, ref)
			} else {
				right = append(right, ref)
			}
		}
	}

	if len(left) == 0 || len(right) == 0 {
		return nil, nil, false
	}
	// Clipping every reference to both sides makes no progress.
	if len(left) == len(refs) && len(right) == len(refs) {
		return nil, nil, false
	}
	return left, right, true
}

func (b *splitBuilder) createLeaf(bounds types.AABB, refs []primRef) *node {
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

// Clip a reference box at a plane, producing the two half-references. Both
// keep the original primitive index.
func clipRef(ref primRef, axis int, plane float32) (left, right primRef) {
	left, right = ref, ref
	left.bounds.Max[axis] = plane
	right.bounds.Min[axis] = plane
	left.center = left.bounds.Center()
	right.center = right.bounds.Center()
	return left, right
}

// Unnormalized SAH sweep cost of a two-way partition.
func splitCost(left, right []primRef) float32 {
	return float32(len(left))*refListBounds(left).SurfaceArea() +
		float32(len(right))*refListBounds(right).SurfaceArea()
}

func refListBounds(refs []primRef) types.AABB {
	bounds := types.EmptyAABB()
	for _, ref := range refs {
		bounds = bounds.Union(ref.bounds)
	}
	return bounds
}
