// Package world models the scene side of the accelerator contract: meshes,
// instances, per-shape transforms, change tracking and build options.
package world

// StateChange describes why a world is considered changed since the last
// commit. Reasons combine as a bitmask.
type StateChange uint32

const StateChangeNone StateChange = 0

const (
	StateChangeAdd    StateChange = 1 << iota // shape attached
	StateChangeRemove                         // shape detached
	StateChangeMove                           // shape transform updated
)

// World holds the shape list and the option set consumed by accelerator
// builds. It is not safe for concurrent mutation.
type World struct {
	shapes  []Shape
	nextID  int32
	state   StateChange
	options OptionSet
}

func New() *World {
	return &World{
		nextID:  1,
		options: NewOptionSet(),
	}
}

// Attach a shape to the world and assign its id.
func (w *World) Attach(s Shape) {
	s.setID(w.nextID)
	w.nextID++
	w.shapes = append(w.shapes, s)
	w.state |= StateChangeAdd
}

// Detach a shape from the world. Detaching an unknown shape is a no-op.
func (w *World) Detach(s Shape) {
	for i, shape := range w.shapes {
		if shape == s {
			w.shapes = append(w.shapes[:i], w.shapes[i+1:]...)
			w.state |= StateChangeRemove
			return
		}
	}
}

// The attached shapes in attach order.
func (w *World) Shapes() []Shape {
	return w.shapes
}

// Report whether the world changed since the last commit, either
// structurally or because a shape moved.
func (w *World) HasChanged() bool {
	return w.State() != StateChangeNone
}

// The accumulated state-change reasons since the last commit.
func (w *World) State() StateChange {
	state := w.state
	for _, s := range w.shapes {
		if s.dirty() {
			state |= StateChangeMove
		}
	}
	return state
}

// Mark the current state as consumed. Called by the accelerator once a
// rebuild against this world has completed.
func (w *World) Commit() {
	w.state = StateChangeNone
	for _, s := range w.shapes {
		s.clearDirty()
	}
}

// The world's option set.
func (w *World) Options() OptionSet {
	return w.options
}
