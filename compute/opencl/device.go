// Package opencl implements the compute back-end interface on top of
// OpenCL 1.2. Queue indices map to lazily created command queues on the
// wrapped device.
package opencl

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"

	"github.com/glowray/shortstack/compute"
)

const (
	platformBufferSize = 100
	deviceBufferSize   = 100
	dataBufferSize     = 1024
)

// Device wraps an opencl device, its context and command queues.
type Device struct {
	name string
	id   cl.DeviceId
	spec compute.DeviceSpec

	ctx *cl.Context

	mu       sync.Mutex
	queues   map[int]cl.CommandQueue
	mappings map[*byte]mapping
}

var _ compute.Device = (*Device)(nil)

// Enumerate the GPU devices of every opencl platform on this system.
func Devices() ([]*Device, error) {
	pids := make([]cl.PlatformID, platformBufferSize)
	pidCount := uint32(0)
	cl.GetPlatformIDs(uint32(len(pids)), &pids[0], &pidCount)
	if pidCount == 0 {
		return nil, fmt.Errorf("opencl: no platforms available")
	}

	var out []*Device
	data := make([]byte, dataBufferSize)
	ids := make([]cl.DeviceId, deviceBufferSize)
	for p := 0; p < int(pidCount); p++ {
		deviceCount := uint32(0)
		cl.GetDeviceIDs(pids[p], cl.DEVICE_TYPE_GPU, uint32(deviceBufferSize), &ids[0], &deviceCount)
		for d := 0; d < int(deviceCount); d++ {
			dataLen := uint64(0)
			cl.GetDeviceInfo(ids[d], cl.DEVICE_NAME, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
			out = append(out, &Device{
				name:   string(data[0 : dataLen-1]),
				id:     ids[d],
				queues: make(map[int]cl.CommandQueue),
			})
		}
	}
	return out, nil
}

// Initialize the device context and query its capability limits. Must be
// called before any other method.
func (d *Device) Init() error {
	if d.ctx != nil {
		return nil
	}

	var errCode cl.ErrorCode
	d.ctx = cl.CreateContext(nil, 1, &d.id, nil, nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		d.ctx = nil
		return fmt.Errorf("opencl device (%s): could not create context (errCode %d)", d.name, errCode)
	}

	var maxAlloc, globalMem uint64
	var maxWg uint64
	cl.GetDeviceInfo(d.id, cl.DEVICE_MAX_MEM_ALLOC_SIZE, 8, unsafe.Pointer(&maxAlloc), nil)
	cl.GetDeviceInfo(d.id, cl.DEVICE_GLOBAL_MEM_SIZE, 8, unsafe.Pointer(&globalMem), nil)
	cl.GetDeviceInfo(d.id, cl.DEVICE_MAX_WORK_GROUP_SIZE, 8, unsafe.Pointer(&maxWg), nil)

	d.spec = compute.DeviceSpec{
		Name:             d.name,
		MaxAllocSize:     maxAlloc,
		GlobalMemSize:    globalMem,
		MaxWorkGroupSize: int(maxWg),
	}
	return nil
}

func (d *Device) Name() string               { return d.name }
func (d *Device) Platform() compute.Platform { return compute.OpenCL }
func (d *Device) Spec() compute.DeviceSpec   { return d.spec }

func (d *Device) queue(index int) (cl.CommandQueue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if q, exists := d.queues[index]; exists {
		return q, nil
	}

	var errCode cl.ErrorCode
	q := cl.CreateCommandQueue(*d.ctx, d.id, 0, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not create command queue %d (errCode %d)", d.name, index, errCode)
	}
	d.queues[index] = q
	return q, nil
}

// Compile a program from source with the given build options.
func (d *Device) CompileProgram(source string, options string) (compute.Program, error) {
	var errCode cl.ErrorCode

	progSrc := cl.Str(source + "\x00")
	handle := cl.CreateProgramWithSource(*d.ctx, 1, &progSrc, nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not create program (errCode %d)", d.name, errCode)
	}

	errCode = cl.BuildProgram(handle, 1, &d.id, cl.Str(options+"\x00"), nil, nil)
	if errCode != cl.SUCCESS {
		var dataLen uint64
		data := make([]byte, 120000)
		cl.GetProgramBuildInfo(handle, d.id, cl.PROGRAM_BUILD_LOG, uint64(len(data)), unsafe.Pointer(&data[0]), &dataLen)
		cl.ReleaseProgram(handle)
		return nil, fmt.Errorf("opencl device (%s): could not build program (errCode %d):\n%s", d.name, errCode, string(data[0:dataLen-1]))
	}

	return &Program{device: d, handle: handle}, nil
}

func (d *Device) Execute(kernel compute.Kernel, queue int, globalSize, localSize int, wait compute.Event) (compute.Event, error) {
	k, ok := kernel.(*Kernel)
	if !ok {
		return nil, fmt.Errorf("opencl device (%s): kernel was not created by this backend", d.name)
	}

	q, err := d.queue(queue)
	if err != nil {
		return nil, err
	}

	// Host-side ordering: queue submission happens after the dependency
	// has signalled.
	if wait != nil {
		if err := wait.Wait(); err != nil {
			return nil, err
		}
	}

	globalWorkSize := uint64(globalSize)
	localWorkSize := uint64(localSize)
	errCode := cl.EnqueueNDRangeKernel(
		q,
		k.handle,
		1,
		nil,
		(*uint64)(unsafe.Pointer(&globalWorkSize)),
		(*uint64)(unsafe.Pointer(&localWorkSize)),
		0,
		nil,
		nil,
	)
	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): unable to execute kernel %s (errCode %d)", d.name, k.name, errCode)
	}

	return &queueEvent{device: d, queue: queue}, nil
}

func (d *Device) Finish(queue int) error {
	q, err := d.queue(queue)
	if err != nil {
		return err
	}
	if errCode := cl.Finish(q); errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): finish on queue %d failed (errCode %d)", d.name, queue, errCode)
	}
	return nil
}

// Release the context and all command queues.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for index, q := range d.queues {
		cl.ReleaseCommandQueue(q)
		delete(d.queues, index)
	}
	if d.ctx != nil {
		cl.ReleaseContext(d.ctx)
		d.ctx = nil
	}
}
