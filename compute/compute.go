// Package compute defines the back-end interface consumed by the
// accelerator core: typed device buffers, host mappings, compiled programs,
// kernel dispatch over 1-D grids and asynchronous completion events.
//
// Two implementations ship with this repository: a host software device
// (compute/soft) used as the reference back-end and by the test suite, and
// an OpenCL device (compute/opencl).
package compute

// Platform identifies the kind of back-end a device exposes. The
// accelerator uses it to select between embedded kernel source and
// registered host kernels.
type Platform uint8

const (
	Software Platform = iota
	OpenCL
)

func (p Platform) String() string {
	switch p {
	case Software:
		return "software"
	case OpenCL:
		return "opencl"
	}
	panic("compute: unsupported platform")
}

// BufferType describes how the device-side code accesses a buffer.
type BufferType uint8

const (
	// Device reads, host writes.
	BufferRead BufferType = iota
	// Device writes, host reads.
	BufferWrite
	// Device reads and writes.
	BufferReadWrite
)

// MapType describes the host access mode for a mapped buffer region.
type MapType uint8

const (
	MapRead MapType = iota
	MapWrite
)

// DeviceSpec reports device capability limits queried by callers before
// they commit to large allocations.
type DeviceSpec struct {
	Name string

	// Maximum size of a single buffer allocation in bytes.
	MaxAllocSize uint64

	// Total device memory in bytes.
	GlobalMemSize uint64

	// Largest supported work group size.
	MaxWorkGroupSize int
}

// Event tracks an asynchronous device operation.
type Event interface {
	// Block until the operation has completed.
	Wait() error

	// Release the event. The event must not be used afterwards.
	Release()
}

// Buffer is a device-side allocation handle.
type Buffer interface {
	// Allocated size in bytes.
	Size() uint64
}

// Kernel is an entry point of a compiled program with positional arguments.
type Kernel interface {
	// Bind positional kernel arguments. Supported argument types are
	// Buffer, int32, uint32 and float32.
	SetArgs(args ...interface{}) error

	Release()
}

// Program is a compiled device program from which kernels are created.
type Program interface {
	Kernel(name string) (Kernel, error)
	Release()
}

// Device abstracts a compute back-end. All queue-related calls take a
// queue index; implementations with a single hardware queue may ignore it.
type Device interface {
	Name() string
	Platform() Platform
	Spec() DeviceSpec

	// Allocate a buffer of the given size.
	CreateBuffer(size uint64, kind BufferType) (Buffer, error)

	// Allocate a buffer large enough for data and fill it. The data
	// argument must be a slice backed by contiguous memory.
	CreateBufferWithData(data interface{}, kind BufferType) (Buffer, error)

	// Release a buffer. Passing nil is a no-op.
	DeleteBuffer(buf Buffer)

	// Map size bytes of buf at offset for host access. A zero size maps
	// the remainder of the buffer past offset. The returned slice becomes
	// valid once the returned event completes.
	MapBuffer(buf Buffer, queue int, offset, size uint64, mode MapType) ([]byte, Event, error)

	// Unmap a previously mapped region. Host writes become visible to the
	// device once the returned event completes.
	UnmapBuffer(buf Buffer, queue int, mapped []byte) (Event, error)

	// Compile a program from source with backend-specific build options.
	CompileProgram(source string, options string) (Program, error)

	// Launch kernel over a 1-D grid on the given queue. When wait is
	// non-nil the launch is ordered after it. The returned event signals
	// kernel completion.
	Execute(kernel Kernel, queue int, globalSize, localSize int, wait Event) (Event, error)

	// Block until all work queued on the given queue has completed.
	Finish(queue int) error

	// Release the device and all resources still held by it.
	Close()
}
