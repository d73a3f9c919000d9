package intersector

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/glowray/shortstack/bvh"
	"github.com/glowray/shortstack/compute"
	"github.com/glowray/shortstack/log"
	"github.com/glowray/shortstack/types"
	"github.com/glowray/shortstack/world"
)

//go:embed kernels/intersect_bvh2_short_stack.cl
var clProgramSource string

// Registry name of the host traversal program (see kernels.go).
const softProgramName = "bvh2-short-stack"

// ShortStack is the fixed-stack BVH accelerator. It rebuilds the
// hierarchy and its device buffers when the world changes and dispatches
// intersect/occlude batches over a 1-D grid, one thread per ray.
type ShortStack struct {
	logger log.Logger
	device compute.Device
	cfg    Config

	program     compute.Program
	isectFunc   compute.Kernel
	occludeFunc compute.Kernel

	// Rebuilt on world change.
	nodes    compute.Buffer
	vertices compute.Buffer
	faces    compute.Buffer

	// Grows with the largest observed batch, never rebuilt with the
	// hierarchy.
	stack compute.Buffer

	built bool
}

var _ Intersector = (*ShortStack)(nil)

// Create a short-stack intersector on the given device. The traversal
// program is compiled immediately with cfg.MaxStackDepth baked in.
func NewShortStack(device compute.Device, cfg Config) (*ShortStack, error) {
	cfg.applyDefaults()

	source := softProgramName
	if device.Platform() == compute.OpenCL {
		source = clProgramSource
	}

	buildOpts := fmt.Sprintf("-D MAX_STACK_DEPTH=%d", cfg.MaxStackDepth)
	program, err := device.CompileProgram(source, buildOpts)
	if err != nil {
		return nil, err
	}

	isectFunc, err := program.Kernel("intersect_main")
	if err != nil {
		program.Release()
		return nil, err
	}
	occludeFunc, err := program.Kernel("occluded_main")
	if err != nil {
		isectFunc.Release()
		program.Release()
		return nil, err
	}

	return &ShortStack{
		logger:      log.New("intersector"),
		device:      device,
		cfg:         cfg,
		program:     program,
		isectFunc:   isectFunc,
		occludeFunc: occludeFunc,
	}, nil
}

// Release all device resources held by the intersector.
func (s *ShortStack) Close() {
	s.releaseGeometry()
	if s.stack != nil {
		s.device.DeleteBuffer(s.stack)
		s.stack = nil
	}
	s.occludeFunc.Release()
	s.isectFunc.Release()
	s.program.Release()
	s.built = false
}

func (s *ShortStack) releaseGeometry() {
	if s.nodes != nil {
		s.device.DeleteBuffer(s.nodes)
		s.nodes = nil
	}
	if s.vertices != nil {
		s.device.DeleteBuffer(s.vertices)
		s.vertices = nil
	}
	if s.faces != nil {
		s.device.DeleteBuffer(s.faces)
		s.faces = nil
	}
}

// Build or reuse the acceleration structure for the world. A no-op while
// a valid build exists and the world reports no change.
func (s *ShortStack) Process(w *world.World) error {
	if s.built && !w.HasChanged() {
		return nil
	}

	// Verify the device can hold the worst-case traversal stack before
	// any construction work; failing here leaves the previous build (if
	// any) untouched and usable.
	required := uint64(s.cfg.MaxBatchSize) * uint64(s.cfg.MaxStackDepth) * stackSlotSize
	if devSpec := s.device.Spec(); devSpec.MaxAllocSize <= required {
		return ErrStackMemory
	}

	shapes := partitionShapes(w.Shapes())
	if len(shapes.all) == 0 {
		return fmt.Errorf("intersector: world holds no shapes")
	}

	// The previous build is released up front; past this point a failed
	// rebuild leaves the intersector unusable until the next successful
	// Process. The deferred guard keeps partially created buffers from
	// leaking on failure paths.
	s.releaseGeometry()
	s.built = false

	committed := false
	defer func() {
		if !committed {
			s.releaseGeometry()
		}
	}()

	bounds := extractBounds(shapes)

	tree, err := builderForOptions(w.Options()).Build(bounds)
	if err != nil {
		return err
	}

	// A tree deeper than the per-ray stack cannot be traversed safely;
	// discard it before the previous build is touched.
	if tree.Height() >= s.cfg.MaxStackDepth {
		return ErrTooDeep
	}
	s.logger.Debugf("hierarchy statistics:\n%s", tree.Stats())

	translator := bvh.NewTranslator()
	if err = translator.Process(tree); err != nil {
		return err
	}
	if err = translator.InjectIndices(shapes.resolveFaces(tree.Indices())); err != nil {
		return err
	}

	if err = s.uploadVertices(shapes); err != nil {
		return err
	}

	if s.nodes, err = s.device.CreateBufferWithData(translator.Nodes, compute.BufferRead); err != nil {
		return fmt.Errorf("intersector: node buffer upload failed: %w", err)
	}
	if s.faces, err = s.device.CreateBufferWithData(translator.Faces, compute.BufferRead); err != nil {
		return fmt.Errorf("intersector: face buffer upload failed: %w", err)
	}

	// Make sure everything is committed before queries may run.
	if err = s.device.Finish(0); err != nil {
		return err
	}

	committed = true
	s.built = true
	w.Commit()
	return nil
}

// Create the world-space vertex buffer: map it, write each shape's
// transformed vertices in parallel at the shape's vertex offset, unmap
// and wait for the transfer.
func (s *ShortStack) uploadVertices(shapes shapeSet) error {
	buf, err := s.device.CreateBuffer(uint64(shapes.numVertices)*uint64(unsafe.Sizeof(mgl32.Vec4{})), compute.BufferRead)
	if err != nil {
		return fmt.Errorf("intersector: vertex buffer allocation failed: %w", err)
	}
	s.vertices = buf

	mapped, ev, err := s.device.MapBuffer(buf, 0, 0, buf.Size(), compute.MapWrite)
	if err != nil {
		return fmt.Errorf("intersector: vertex buffer map failed: %w", err)
	}
	if err = ev.Wait(); err != nil {
		return err
	}
	ev.Release()

	vertexData := unsafe.Slice((*mgl32.Vec4)(unsafe.Pointer(&mapped[0])), shapes.numVertices)

	var wg sync.WaitGroup
	for i, shape := range shapes.all {
		wg.Add(1)
		go func(offset int32, shape world.Shape) {
			defer wg.Done()
			mesh, transform := resolveGeometry(shape)
			for j, v := range mesh.Vertices() {
				vertexData[int(offset)+j] = mgl32.TransformCoordinate(v, transform).Vec4(1)
			}
		}(shapes.vertexOffsets[i], shape)
	}
	wg.Wait()

	ev, err = s.device.UnmapBuffer(buf, 0, mapped)
	if err != nil {
		return fmt.Errorf("intersector: vertex buffer unmap failed: %w", err)
	}
	if err = ev.Wait(); err != nil {
		return err
	}
	ev.Release()
	return nil
}

// Find the closest hit for up to maxRays rays.
func (s *ShortStack) Intersect(queue int, rays, numRays compute.Buffer, maxRays int, hits compute.Buffer, wait compute.Event) (compute.Event, error) {
	return s.dispatch(s.isectFunc, queue, rays, numRays, maxRays, hits, wait)
}

// Test occlusion for up to maxRays rays.
func (s *ShortStack) Occluded(queue int, rays, numRays compute.Buffer, maxRays int, hits compute.Buffer, wait compute.Event) (compute.Event, error) {
	return s.dispatch(s.occludeFunc, queue, rays, numRays, maxRays, hits, wait)
}

func (s *ShortStack) dispatch(kernel compute.Kernel, queue int, rays, numRays compute.Buffer, maxRays int, hits compute.Buffer, wait compute.Event) (compute.Event, error) {
	if !s.built {
		return nil, ErrNotBuilt
	}
	if maxRays > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("intersector: batch of %d rays exceeds the maximum batch size %d", maxRays, s.cfg.MaxBatchSize)
	}

	if err := s.ensureStack(maxRays); err != nil {
		return nil, err
	}

	err := kernel.SetArgs(s.nodes, s.vertices, s.faces, rays, numRays, s.stack, hits)
	if err != nil {
		return nil, err
	}

	wgs := s.cfg.WorkGroupSize
	globalSize := ((maxRays + wgs - 1) / wgs) * wgs
	return s.device.Execute(kernel, queue, globalSize, wgs, wait)
}

// Grow the traversal stack buffer to hold maxRays rays. The stack only
// ever grows; smaller batches reuse the largest allocation seen so far.
func (s *ShortStack) ensureStack(maxRays int) error {
	required := uint64(maxRays) * uint64(s.cfg.MaxStackDepth) * stackSlotSize
	if s.stack != nil && s.stack.Size() >= required {
		return nil
	}

	if s.stack != nil {
		s.device.DeleteBuffer(s.stack)
		s.stack = nil
	}

	stack, err := s.device.CreateBuffer(required, compute.BufferWrite)
	if err != nil {
		return fmt.Errorf("intersector: traversal stack allocation failed: %w", err)
	}
	s.stack = stack
	return nil
}

// Select the hierarchy construction strategy from the world options.
// Unset options keep the builder defaults.
func builderForOptions(opts world.OptionSet) bvh.Builder {
	useSplits := false
	if v := opts.Get(world.OptUseSplits); v != nil && v.AsFloat() > 0 {
		useSplits = true
	}

	numBins := 0
	if v := opts.Get(world.OptNumBins); v != nil {
		numBins = int(v.AsFloat())
	}
	traversalCost := float32(0)
	if v := opts.Get(world.OptTraversalCost); v != nil {
		traversalCost = v.AsFloat()
	}

	if useSplits {
		splitOpts := bvh.SplitOptions{
			NumBins:       numBins,
			TraversalCost: traversalCost,
		}
		if v := opts.Get(world.OptMaxSplitDepth); v != nil {
			splitOpts.MaxSplitDepth = int(v.AsFloat())
		}
		if v := opts.Get(world.OptMinOverlap); v != nil {
			splitOpts.MinOverlap = v.AsFloat()
		}
		if v := opts.Get(world.OptExtraNodeBudget); v != nil {
			splitOpts.ExtraNodeBudget = v.AsFloat()
		}
		return bvh.NewSplitBuilder(splitOpts)
	}

	useSAH := false
	if v := opts.Get(world.OptBuilder); v != nil && v.AsString() == "sah" {
		useSAH = true
	}
	return bvh.NewBuilder(bvh.Options{
		UseSAH:        useSAH,
		NumBins:       numBins,
		TraversalCost: traversalCost,
	})
}

// shapeSet is the world's shape list partitioned into meshes followed by
// instances, with the per-shape face/vertex offset prefix sums.
type shapeSet struct {
	all       []world.Shape
	numMeshes int

	faceOffsets   []int32
	vertexOffsets []int32

	numFaces    int
	numVertices int
}

// Partition shapes into non-instances followed by instances, preserving
// relative order, and compute the running face/vertex offsets.
func partitionShapes(shapes []world.Shape) shapeSet {
	set := shapeSet{
		all:           make([]world.Shape, 0, len(shapes)),
		faceOffsets:   make([]int32, len(shapes)),
		vertexOffsets: make([]int32, len(shapes)),
	}

	for _, shape := range shapes {
		if !shape.IsInstance() {
			set.all = append(set.all, shape)
		}
	}
	set.numMeshes = len(set.all)
	for _, shape := range shapes {
		if shape.IsInstance() {
			set.all = append(set.all, shape)
		}
	}

	for i, shape := range set.all {
		mesh, _ := resolveGeometry(shape)
		set.faceOffsets[i] = int32(set.numFaces)
		set.vertexOffsets[i] = int32(set.numVertices)
		set.numFaces += mesh.NumFaces()
		set.numVertices += mesh.NumVertices()
	}
	return set
}

// The mesh owning a shape's geometry and the transform that places it in
// the world: the mesh's own for meshes, the instance's for instances.
func resolveGeometry(shape world.Shape) (*world.Mesh, mgl32.Mat4) {
	if inst, ok := shape.(*world.Instance); ok {
		transform, _ := inst.Transform()
		return inst.Base(), transform
	}
	mesh := shape.(*world.Mesh)
	transform, _ := mesh.Transform()
	return mesh, transform
}

// Compute one world-space bounding box per primitive, indexed by global
// face index. Shapes are processed in parallel; meshes bound their faces
// directly in world space while instances transform the base mesh's
// object-space face boxes by the instance transform.
func extractBounds(shapes shapeSet) []types.AABB {
	bounds := make([]types.AABB, shapes.numFaces)

	var wg sync.WaitGroup
	for i, shape := range shapes.all {
		wg.Add(1)
		go func(offset int32, shape world.Shape) {
			defer wg.Done()
			if inst, ok := shape.(*world.Instance); ok {
				base := inst.Base()
				transform, _ := inst.Transform()
				for j := 0; j < base.NumFaces(); j++ {
					bounds[int(offset)+j] = base.FaceBounds(j, true).Transform(transform)
				}
				return
			}

			mesh := shape.(*world.Mesh)
			for j := 0; j < mesh.NumFaces(); j++ {
				bounds[int(offset)+j] = mesh.FaceBounds(j, false)
			}
		}(shapes.faceOffsets[i], shape)
	}
	wg.Wait()
	return bounds
}

// Build the face payload for every reordered position: locate the owning
// shape with an upper-bound search over the face-offset prefix array, make
// the face's vertex indices absolute through the shape's vertex offset and
// record the owning shape id plus the mesh-local face index.
func (set shapeSet) resolveFaces(reordering []int32) []bvh.Face {
	faces := make([]bvh.Face, len(reordering))
	for i, globalIndex := range reordering {
		shapeIdx := sort.Search(len(set.faceOffsets), func(k int) bool {
			return set.faceOffsets[k] > globalIndex
		}) - 1

		mesh, _ := resolveGeometry(set.all[shapeIdx])
		localFace := globalIndex - set.faceOffsets[shapeIdx]
		vertexOffset := set.vertexOffsets[shapeIdx]

		face := mesh.Face(int(localFace))
		faces[i] = bvh.Face{
			Idx: [3]int32{
				face[0] + vertexOffset,
				face[1] + vertexOffset,
				face[2] + vertexOffset,
			},
			ShapeID: set.all[shapeIdx].ID(),
			PrimID:  localFace,
		}
	}
	return faces
}
