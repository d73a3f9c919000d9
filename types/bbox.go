package types

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// An axis-aligned bounding box. A freshly declared AABB is not usable;
// use NewAABB or EmptyAABB so the min/max extents start out inverted.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Create an AABB that contains a single point.
func NewAABB(p mgl32.Vec3) AABB {
	return AABB{Min: p, Max: p}
}

// Create an empty AABB. Growing it by any point yields that point's box.
func EmptyAABB() AABB {
	return AABB{
		Min: mgl32.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: mgl32.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Grow the box to include point p.
func (b AABB) Grow(p mgl32.Vec3) AABB {
	return AABB{Min: MinVec3(b.Min, p), Max: MaxVec3(b.Max, p)}
}

// Union of two boxes.
func (b AABB) Union(other AABB) AABB {
	return AABB{Min: MinVec3(b.Min, other.Min), Max: MaxVec3(b.Max, other.Max)}
}

// Intersection of two boxes. The result is invalid when the boxes are
// disjoint.
func (b AABB) Intersection(other AABB) AABB {
	return AABB{Min: MaxVec3(b.Min, other.Min), Max: MinVec3(b.Max, other.Max)}
}

// Box center point.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Box extents along each axis.
func (b AABB) Extents() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Surface area of the box. Empty boxes report zero area.
func (b AABB) SurfaceArea() float32 {
	if !b.Valid() {
		return 0
	}
	d := b.Extents()
	return 2.0 * (d[0]*d[1] + d[1]*d[2] + d[0]*d[2])
}

// A box is valid when its extents are non-negative along every axis.
func (b AABB) Valid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]
}

// Check whether p lies inside the box (inclusive).
func (b AABB) Contains(p mgl32.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// Transform the box by a 4x4 matrix. The eight corners are transformed and
// re-bounded; for non-uniform transforms this over-estimates the bounds of
// the underlying geometry, which is exactly the contract instanced shapes
// rely on.
func (b AABB) Transform(m mgl32.Mat4) AABB {
	out := EmptyAABB()
	for i := 0; i < 8; i++ {
		corner := mgl32.Vec3{
			pick(i&1 == 0, b.Min[0], b.Max[0]),
			pick(i&2 == 0, b.Min[1], b.Max[1]),
			pick(i&4 == 0, b.Min[2], b.Max[2]),
		}
		out = out.Grow(mgl32.TransformCoordinate(corner, m))
	}
	return out
}

// Component-wise minimum of two vectors.
func MinVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Min(float64(a[0]), float64(b[0]))),
		float32(math.Min(float64(a[1]), float64(b[1]))),
		float32(math.Min(float64(a[2]), float64(b[2]))),
	}
}

// Component-wise maximum of two vectors.
func MaxVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Max(float64(a[0]), float64(b[0]))),
		float32(math.Max(float64(a[1]), float64(b[1]))),
		float32(math.Max(float64(a[2]), float64(b[2]))),
	}
}

func pick(cond bool, a, b float32) float32 {
	if cond {
		return a
	}
	return b
}
