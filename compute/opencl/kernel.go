package opencl

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"

	"github.com/glowray/shortstack/compute"
)

// Program wraps a compiled opencl program.
type Program struct {
	device *Device
	handle cl.Program
}

var _ compute.Program = (*Program)(nil)

func (p *Program) Kernel(name string) (compute.Kernel, error) {
	var errCode cl.ErrorCode
	handle := cl.CreateKernel(p.handle, cl.Str(name+"\x00"), (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not create kernel %s (errCode %d)", p.device.name, name, errCode)
	}
	return &Kernel{device: p.device, handle: handle, name: name}, nil
}

func (p *Program) Release() {
	if p.handle != nil {
		cl.ReleaseProgram(p.handle)
		p.handle = nil
	}
}

// Kernel wraps an opencl kernel handle.
type Kernel struct {
	device *Device
	handle cl.Kernel
	name   string
}

var _ compute.Kernel = (*Kernel)(nil)

// Bind positional kernel arguments.
func (k *Kernel) SetArgs(args ...interface{}) error {
	var errCode cl.ErrorCode
	for argIndex, arg := range args {
		// A pointer to the underlying data is required so the captured
		// value from a type switch cannot be used directly.
		switch arg.(type) {
		case *Buffer:
			bufHandle := arg.(*Buffer).handle
			errCode = cl.SetKernelArg(k.handle, uint32(argIndex), 8, unsafe.Pointer(&bufHandle))
		case int32:
			v := arg.(int32)
			errCode = cl.SetKernelArg(k.handle, uint32(argIndex), 4, unsafe.Pointer(&v))
		case uint32:
			v := arg.(uint32)
			errCode = cl.SetKernelArg(k.handle, uint32(argIndex), 4, unsafe.Pointer(&v))
		case float32:
			v := arg.(float32)
			errCode = cl.SetKernelArg(k.handle, uint32(argIndex), 4, unsafe.Pointer(&v))
		default:
			return fmt.Errorf(
				"opencl device (%s): could not set arg %d for kernel %s; unsupported arg type: %s",
				k.device.name,
				argIndex,
				k.name,
				reflect.TypeOf(arg).Name(),
			)
		}

		if errCode != cl.SUCCESS {
			return fmt.Errorf(
				"opencl device (%s): could not set arg %d for kernel %s (errCode %d)",
				k.device.name,
				argIndex,
				k.name,
				errCode,
			)
		}
	}
	return nil
}

func (k *Kernel) Release() {
	if k.handle != nil {
		cl.ReleaseKernel(k.handle)
		k.handle = nil
	}
}
