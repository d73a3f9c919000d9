package intersector

import "errors"

var (
	// The device cannot allocate the worst-case traversal stack. Raised
	// before any hierarchy construction work; callers should fall back
	// to an accelerator without a fixed-stack kernel.
	ErrStackMemory = errors.New("intersector: device cannot allocate enough traversal stack memory for this accelerator, use a fallback structure instead")

	// The built hierarchy is too deep to traverse with the fixed-size
	// per-ray stack. The build is discarded; callers should fall back
	// to an accelerator without a fixed-stack kernel.
	ErrTooDeep = errors.New("intersector: hierarchy can cause a traversal stack overflow for this scene, use a fallback structure instead")

	// A query was issued without a valid build.
	ErrNotBuilt = errors.New("intersector: no valid acceleration structure, Process must complete first")
)
