package intersector

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/glowray/shortstack/bvh"
	"github.com/glowray/shortstack/compute/soft"
)

// Host implementations of the traversal entry points, registered with the
// software back-end. They mirror the OpenCL kernels: one logical thread
// per ray, a private stack slice of MAX_STACK_DEPTH node offsets inside
// the shared stack buffer, and best-hit-so-far termination when that
// slice would overflow.

func init() {
	soft.RegisterProgram(softProgramName, map[string]soft.KernelFunc{
		"intersect_main": intersectMain,
		"occluded_main":  occludedMain,
	})
}

const triEpsilon float32 = 1e-7

func intersectMain(inv *soft.Invocation) {
	nodes := nodeView(inv.Buffer(0))
	vertices := vec4View(inv.Buffer(1))
	faces := faceView(inv.Buffer(2))
	rays := rayView(inv.Buffer(3))
	numRays := int(int32View(inv.Buffer(4))[0])
	stack := int32View(inv.Buffer(5))
	hits := hitView(inv.Buffer(6))

	gid := inv.GlobalID
	if gid >= numRays || gid >= len(rays) {
		return
	}
	ray := &rays[gid]
	if ray.Extra[1] == 0 {
		return
	}

	stackDepth := int(inv.Define("MAX_STACK_DEPTH"))
	local := stack[gid*stackDepth : (gid+1)*stackDepth]

	orig := ray.Origin.Vec3()
	dir := ray.Dir.Vec3()
	invDir := safeInvDir(dir)

	closestT := ray.Origin[3]
	hit := Intersection{ShapeID: NullID, PrimID: NullID}
	var hitU, hitV float32

	addr := int32(0)
	sptr := 0
	for addr >= 0 {
		node := &nodes[addr]

		if node.IsLeaf() {
			first, count := node.Primitives()
			for p := first; p < first+count; p++ {
				face := &faces[p]
				v0 := vertices[face.Idx[0]].Vec3()
				v1 := vertices[face.Idx[1]].Vec3()
				v2 := vertices[face.Idx[2]].Vec3()
				if t, u, v, ok := intersectTriangle(orig, dir, closestT, v0, v1, v2); ok {
					closestT = t
					hitU, hitV = u, v
					hit.ShapeID = face.ShapeID
					hit.PrimID = face.PrimID
				}
			}
			addr = pop(local, &sptr)
			continue
		}

		left, right := node.ChildNodes()
		tLeft, hitLeft := intersectBox(&nodes[left], orig, invDir, closestT)
		tRight, hitRight := intersectBox(&nodes[right], orig, invDir, closestT)

		switch {
		case hitLeft && hitRight:
			near, far := int32(left), int32(right)
			if tRight < tLeft {
				near, far = far, near
			}
			if sptr == len(local) {
				// Stack exhausted: terminate with the best hit
				// found so far.
				addr = -1
				continue
			}
			local[sptr] = far
			sptr++
			addr = near
		case hitLeft:
			addr = int32(left)
		case hitRight:
			addr = int32(right)
		default:
			addr = pop(local, &sptr)
		}
	}

	hit.UVWT = mgl32.Vec4{hitU, hitV, 0, closestT}
	hits[gid] = hit
}

func occludedMain(inv *soft.Invocation) {
	nodes := nodeView(inv.Buffer(0))
	vertices := vec4View(inv.Buffer(1))
	faces := faceView(inv.Buffer(2))
	rays := rayView(inv.Buffer(3))
	numRays := int(int32View(inv.Buffer(4))[0])
	stack := int32View(inv.Buffer(5))
	hits := int32View(inv.Buffer(6))

	gid := inv.GlobalID
	if gid >= numRays || gid >= len(rays) {
		return
	}
	ray := &rays[gid]
	if ray.Extra[1] == 0 {
		return
	}

	stackDepth := int(inv.Define("MAX_STACK_DEPTH"))
	local := stack[gid*stackDepth : (gid+1)*stackDepth]

	orig := ray.Origin.Vec3()
	dir := ray.Dir.Vec3()
	invDir := safeInvDir(dir)
	maxT := ray.Origin[3]

	addr := int32(0)
	sptr := 0
	for addr >= 0 {
		node := &nodes[addr]

		if node.IsLeaf() {
			first, count := node.Primitives()
			for p := first; p < first+count; p++ {
				face := &faces[p]
				v0 := vertices[face.Idx[0]].Vec3()
				v1 := vertices[face.Idx[1]].Vec3()
				v2 := vertices[face.Idx[2]].Vec3()
				if _, _, _, ok := intersectTriangle(orig, dir, maxT, v0, v1, v2); ok {
					hits[gid] = 1
					return
				}
			}
			addr = pop(local, &sptr)
			continue
		}

		left, right := node.ChildNodes()
		_, hitLeft := intersectBox(&nodes[left], orig, invDir, maxT)
		_, hitRight := intersectBox(&nodes[right], orig, invDir, maxT)

		switch {
		case hitLeft && hitRight:
			if sptr == len(local) {
				addr = -1
				continue
			}
			local[sptr] = int32(right)
			sptr++
			addr = int32(left)
		case hitLeft:
			addr = int32(left)
		case hitRight:
			addr = int32(right)
		default:
			addr = pop(local, &sptr)
		}
	}

	hits[gid] = -1
}

func pop(local []int32, sptr *int) int32 {
	if *sptr == 0 {
		return -1
	}
	*sptr = *sptr - 1
	return local[*sptr]
}

// Slab test against a node's bounds. Returns the entry distance and
// whether the ray segment [0, maxT] crosses the box.
func intersectBox(node *bvh.FatNode, orig, invDir mgl32.Vec3, maxT float32) (float32, bool) {
	tMin := float32(0)
	tMax := maxT
	for axis := 0; axis < 3; axis++ {
		t1 := (node.Min[axis] - orig[axis]) * invDir[axis]
		t2 := (node.Max[axis] - orig[axis]) * invDir[axis]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tMin {
			tMin = t1
		}
		if t2 < tMax {
			tMax = t2
		}
		if tMin > tMax {
			return 0, false
		}
	}
	return tMin, true
}

// Moeller-Trumbore ray/triangle intersection bounded by maxT.
func intersectTriangle(orig, dir mgl32.Vec3, maxT float32, v0, v1, v2 mgl32.Vec3) (t, u, v float32, ok bool) {
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)

	pvec := dir.Cross(e2)
	det := e1.Dot(pvec)
	if det > -triEpsilon && det < triEpsilon {
		return 0, 0, 0, false
	}
	invDet := 1.0 / det

	tvec := orig.Sub(v0)
	u = tvec.Dot(pvec) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	qvec := tvec.Cross(e1)
	v = dir.Dot(qvec) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = e2.Dot(qvec) * invDet
	if t <= triEpsilon || t >= maxT {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

// Reciprocal direction for the slab test. Zero components divide to
// +/-Inf which the slab comparisons handle.
func safeInvDir(dir mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}
}

func nodeView(b *soft.Buffer) []bvh.FatNode {
	return bufferView[bvh.FatNode](b)
}

func vec4View(b *soft.Buffer) []mgl32.Vec4 {
	return bufferView[mgl32.Vec4](b)
}

func faceView(b *soft.Buffer) []bvh.Face {
	return bufferView[bvh.Face](b)
}

func rayView(b *soft.Buffer) []Ray {
	return bufferView[Ray](b)
}

func hitView(b *soft.Buffer) []Intersection {
	return bufferView[Intersection](b)
}

func int32View(b *soft.Buffer) []int32 {
	return bufferView[int32](b)
}

// Reinterpret a buffer's backing store as a slice of T.
func bufferView[T any](b *soft.Buffer) []T {
	data := b.Bytes()
	if len(data) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), len(data)/int(unsafe.Sizeof(zero)))
}
