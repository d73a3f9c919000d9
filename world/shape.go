package world

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/glowray/shortstack/types"
)

// A triangular face referencing three mesh-local vertex indices.
type Face [3]int32

// Shape is implemented by all scene objects that can be attached to a
// world. Ids are assigned on attach and are stable for the lifetime of
// the shape within its world.
type Shape interface {
	ID() int32

	// Instances reference another shape's geometry instead of owning it.
	IsInstance() bool

	setID(id int32)
	dirty() bool
	clearDirty()
}

// Mesh owns vertex positions, face index triples and a local-to-world
// transform.
type Mesh struct {
	id int32

	vertices []mgl32.Vec3
	faces    []Face

	transform    mgl32.Mat4
	invTransform mgl32.Mat4

	moved bool
}

// Create a mesh from a vertex array and face index triples. The mesh
// starts out with an identity transform.
func NewMesh(vertices []mgl32.Vec3, faces []Face) *Mesh {
	return &Mesh{
		vertices:     vertices,
		faces:        faces,
		transform:    mgl32.Ident4(),
		invTransform: mgl32.Ident4(),
	}
}

func (m *Mesh) ID() int32        { return m.id }
func (m *Mesh) IsInstance() bool { return false }

func (m *Mesh) NumVertices() int { return len(m.vertices) }
func (m *Mesh) NumFaces() int    { return len(m.faces) }

// Raw vertex array in object space.
func (m *Mesh) Vertices() []mgl32.Vec3 { return m.vertices }

// Raw face index-triple array.
func (m *Mesh) Faces() []Face { return m.faces }

// Get face index triple.
func (m *Mesh) Face(index int) Face { return m.faces[index] }

// Set local-to-world transform.
func (m *Mesh) SetTransform(transform mgl32.Mat4) {
	m.transform = transform
	m.invTransform = transform.Inv()
	m.moved = true
}

// Get local-to-world transform and its inverse.
func (m *Mesh) Transform() (transform, inverse mgl32.Mat4) {
	return m.transform, m.invTransform
}

// Bounding box of a single face. When objectSpace is set the box is
// reported in the mesh local space; otherwise each vertex is transformed
// to world space before bounding.
func (m *Mesh) FaceBounds(index int, objectSpace bool) types.AABB {
	face := m.faces[index]
	box := types.EmptyAABB()
	for _, vi := range face {
		v := m.vertices[vi]
		if !objectSpace {
			v = mgl32.TransformCoordinate(v, m.transform)
		}
		box = box.Grow(v)
	}
	return box
}

func (m *Mesh) setID(id int32) { m.id = id }
func (m *Mesh) dirty() bool    { return m.moved }
func (m *Mesh) clearDirty()    { m.moved = false }

// Instance references a base mesh and carries its own transform; it owns
// no geometry.
type Instance struct {
	id   int32
	base *Mesh

	transform    mgl32.Mat4
	invTransform mgl32.Mat4

	moved bool
}

// Create an instance of the given base mesh with an identity transform.
func NewInstance(base *Mesh) *Instance {
	return &Instance{
		base:         base,
		transform:    mgl32.Ident4(),
		invTransform: mgl32.Ident4(),
	}
}

func (inst *Instance) ID() int32        { return inst.id }
func (inst *Instance) IsInstance() bool { return true }

// The shape whose geometry this instance references.
func (inst *Instance) Base() *Mesh { return inst.base }

// Set instance local-to-world transform.
func (inst *Instance) SetTransform(transform mgl32.Mat4) {
	inst.transform = transform
	inst.invTransform = transform.Inv()
	inst.moved = true
}

// Get instance local-to-world transform and its inverse.
func (inst *Instance) Transform() (transform, inverse mgl32.Mat4) {
	return inst.transform, inst.invTransform
}

func (inst *Instance) setID(id int32) { inst.id = id }
func (inst *Instance) dirty() bool    { return inst.moved }
func (inst *Instance) clearDirty()    { inst.moved = false }
