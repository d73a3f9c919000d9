// Package soft provides a host-memory implementation of the compute
// back-end interface. Buffers live in RAM, programs are registries of
// named Go kernel functions and 1-D grids execute on a worker pool. It
// serves as the reference back-end and as the synthetic device used by
// the test suite.
package soft

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"unsafe"

	"github.com/glowray/shortstack/compute"
)

// Options for creating a software device. Zero-valued fields fall back to
// defaults; Spec limits may be lowered to emulate constrained hardware.
type Options struct {
	Name string

	// Capability limits reported by Spec(). Zero-valued limits default
	// to effectively unbounded values.
	Spec compute.DeviceSpec

	// Worker goroutines used per kernel launch. Defaults to NumCPU.
	NumWorkers int
}

type Device struct {
	name       string
	spec       compute.DeviceSpec
	numWorkers int

	mu     sync.Mutex
	queues map[int]*sync.WaitGroup
	closed bool
}

// Create a software device.
func NewDevice(opts Options) *Device {
	if opts.Name == "" {
		opts.Name = "soft"
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = runtime.NumCPU()
	}
	if opts.Spec.MaxAllocSize == 0 {
		opts.Spec.MaxAllocSize = 1 << 40
	}
	if opts.Spec.GlobalMemSize == 0 {
		opts.Spec.GlobalMemSize = 1 << 42
	}
	if opts.Spec.MaxWorkGroupSize == 0 {
		opts.Spec.MaxWorkGroupSize = 1024
	}
	opts.Spec.Name = opts.Name

	return &Device{
		name:       opts.Name,
		spec:       opts.Spec,
		numWorkers: opts.NumWorkers,
		queues:     make(map[int]*sync.WaitGroup),
	}
}

func (d *Device) Name() string               { return d.name }
func (d *Device) Platform() compute.Platform { return compute.Software }
func (d *Device) Spec() compute.DeviceSpec   { return d.spec }

// Buffer is a RAM-backed device buffer.
type Buffer struct {
	data []byte
	kind compute.BufferType
}

func (b *Buffer) Size() uint64 {
	return uint64(len(b.data))
}

// The raw backing store. Kernel functions use this to reinterpret the
// buffer contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (d *Device) CreateBuffer(size uint64, kind compute.BufferType) (compute.Buffer, error) {
	if size > d.spec.MaxAllocSize {
		return nil, fmt.Errorf("soft device (%s): allocation of %d bytes exceeds device limit %d", d.name, size, d.spec.MaxAllocSize)
	}
	return &Buffer{data: make([]byte, size), kind: kind}, nil
}

func (d *Device) CreateBufferWithData(data interface{}, kind compute.BufferType) (compute.Buffer, error) {
	src, size := sliceBytes(data)
	buf, err := d.CreateBuffer(uint64(size), kind)
	if err != nil {
		return nil, err
	}
	copy(buf.(*Buffer).data, src)
	return buf, nil
}

func (d *Device) DeleteBuffer(buf compute.Buffer) {
	if buf == nil {
		return
	}
	buf.(*Buffer).data = nil
}

func (d *Device) MapBuffer(buf compute.Buffer, queue int, offset, size uint64, mode compute.MapType) ([]byte, compute.Event, error) {
	b := buf.(*Buffer)
	if offset > uint64(len(b.data)) {
		return nil, nil, fmt.Errorf("soft device (%s): map offset %d exceeds buffer size %d", d.name, offset, len(b.data))
	}
	if size == 0 {
		size = uint64(len(b.data)) - offset
	}
	if offset+size > uint64(len(b.data)) {
		return nil, nil, fmt.Errorf("soft device (%s): map range [%d, %d) exceeds buffer size %d", d.name, offset, offset+size, len(b.data))
	}
	return b.data[offset : offset+size], completedEvent(), nil
}

func (d *Device) UnmapBuffer(buf compute.Buffer, queue int, mapped []byte) (compute.Event, error) {
	// Host and device share the backing store; writes are visible
	// immediately.
	return completedEvent(), nil
}

func (d *Device) Execute(kernel compute.Kernel, queue int, globalSize, localSize int, wait compute.Event) (compute.Event, error) {
	k, ok := kernel.(*Kernel)
	if !ok {
		return nil, fmt.Errorf("soft device (%s): kernel was not created by this backend", d.name)
	}
	if localSize <= 0 || globalSize%localSize != 0 {
		return nil, fmt.Errorf("soft device (%s): global size %d is not a multiple of local size %d", d.name, globalSize, localSize)
	}

	inv := Invocation{
		Args:       append([]interface{}(nil), k.args...),
		Defines:    k.defines,
		GlobalSize: globalSize,
		LocalSize:  localSize,
	}

	wg := d.queueGroup(queue)
	wg.Add(1)
	ev := newEvent()
	go func() {
		defer wg.Done()
		if wait != nil {
			if err := wait.Wait(); err != nil {
				ev.complete(err)
				return
			}
		}
		d.runGrid(k.fn, inv)
		ev.complete(nil)
	}()
	return ev, nil
}

// Run the kernel function for every global id, fanned out over the worker
// pool in contiguous chunks.
func (d *Device) runGrid(fn KernelFunc, inv Invocation) {
	workers := d.numWorkers
	if workers > inv.GlobalSize {
		workers = inv.GlobalSize
	}

	chunk := (inv.GlobalSize + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > inv.GlobalSize {
			hi = inv.GlobalSize
		}
		if lo >= hi {
			break
		}

		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			local := inv
			for gid := lo; gid < hi; gid++ {
				local.GlobalID = gid
				fn(&local)
			}
		}(lo, hi)
	}
	wg.Wait()
}

func (d *Device) Finish(queue int) error {
	d.queueGroup(queue).Wait()
	return nil
}

func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

func (d *Device) queueGroup(queue int) *sync.WaitGroup {
	d.mu.Lock()
	defer d.mu.Unlock()
	wg, exists := d.queues[queue]
	if !exists {
		wg = new(sync.WaitGroup)
		d.queues[queue] = wg
	}
	return wg
}

// Given a slice, return a byte view of its backing array and its size in
// bytes.
func sliceBytes(data interface{}) ([]byte, int) {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice {
		panic("soft: sliceBytes only supports slices")
	}
	if v.Len() == 0 {
		return nil, 0
	}

	size := v.Len() * int(v.Type().Elem().Size())
	ptr := unsafe.Pointer(v.Index(0).Addr().Pointer())
	return unsafe.Slice((*byte)(ptr), size), size
}
