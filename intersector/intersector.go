// Package intersector implements the accelerator build-and-dispatch
// pipeline: it partitions scene geometry, builds a bounding-volume
// hierarchy, flattens it into the pointer-free device layout and
// dispatches batched intersect/occlude queries against it.
package intersector

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/glowray/shortstack/compute"
	"github.com/glowray/shortstack/world"
)

// Config holds the dispatch constants threaded into an accelerator at
// construction time. MaxStackDepth is also compiled into the traversal
// kernels; the two must agree or traversal would overrun its stack slice.
type Config struct {
	// Kernel work-group size. Dispatch grids are rounded up to it.
	WorkGroupSize int

	// Per-ray traversal stack depth in slots. Builds producing a tree
	// with height >= MaxStackDepth are rejected.
	MaxStackDepth int

	// Largest supported ray batch. The capacity guard sizes the
	// worst-case stack allocation from it.
	MaxBatchSize int
}

// DefaultConfig returns the dispatch constants tuned for GCN-class GPUs.
func DefaultConfig() Config {
	return Config{
		WorkGroupSize: 64,
		MaxStackDepth: 48,
		MaxBatchSize:  1024 * 1024,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.WorkGroupSize <= 0 {
		c.WorkGroupSize = def.WorkGroupSize
	}
	if c.MaxStackDepth <= 0 {
		c.MaxStackDepth = def.MaxStackDepth
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = def.MaxBatchSize
	}
}

// Size of one traversal stack slot in bytes (a node offset).
const stackSlotSize = 4

// NullID marks a missing hit in an Intersection record.
const NullID int32 = -1

// Ray is the 48-byte wire layout of one query ray.
type Ray struct {
	// Origin in xyz; w holds the maximum hit distance.
	Origin mgl32.Vec4

	// Direction in xyz; w holds the ray time.
	Dir mgl32.Vec4

	// x: ray mask, y: active flag (non-zero rays are traced).
	Extra [2]int32

	Padding [2]int32
}

// NewRay builds an active ray with the given origin, direction and
// maximum hit distance.
func NewRay(origin, dir mgl32.Vec3, maxT float32) Ray {
	return Ray{
		Origin: origin.Vec4(maxT),
		Dir:    dir.Vec4(0),
		Extra:  [2]int32{0, 1},
	}
}

// Intersection is the 32-byte wire layout of one hit record. ShapeID and
// PrimID are NullID on miss; UVWT packs the barycentric hit coordinates in
// xy and the hit distance in w.
type Intersection struct {
	ShapeID int32
	PrimID  int32
	Padding [2]int32

	UVWT mgl32.Vec4
}

// Intersector answers batched ray queries against a world. Process must
// complete, with all prior queries drained, before buffers shared with
// in-flight dispatches may be touched again.
type Intersector interface {
	// Build (or reuse) the acceleration structure for the world.
	Process(w *world.World) error

	// Find the closest hit for up to maxRays rays. The hits buffer
	// receives one Intersection per ray.
	Intersect(queue int, rays, numRays compute.Buffer, maxRays int, hits compute.Buffer, wait compute.Event) (compute.Event, error)

	// Test occlusion for up to maxRays rays. The hits buffer receives
	// one int32 per ray: 1 when occluded, -1 otherwise.
	Occluded(queue int, rays, numRays compute.Buffer, maxRays int, hits compute.Buffer, wait compute.Event) (compute.Event, error)

	// Release all device resources held by the intersector.
	Close()
}
