package opencl

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"

	"github.com/glowray/shortstack/compute"
)

// Buffer wraps an opencl memory object.
type Buffer struct {
	device *Device
	handle cl.Mem
	size   uint64
}

var _ compute.Buffer = (*Buffer)(nil)

func (b *Buffer) Size() uint64 { return b.size }

// mapping tracks a staged host view of a buffer region until it is unmapped.
type mapping struct {
	buf    *Buffer
	offset uint64
	mode   compute.MapType
}

func bufferFlags(kind compute.BufferType) cl.MemFlags {
	switch kind {
	case compute.BufferRead:
		return cl.MEM_READ_ONLY
	case compute.BufferWrite:
		return cl.MEM_WRITE_ONLY
	default:
		return cl.MEM_READ_WRITE
	}
}

func (d *Device) CreateBuffer(size uint64, kind compute.BufferType) (compute.Buffer, error) {
	var errCode cl.ErrorCode
	handle := cl.CreateBuffer(
		*d.ctx,
		bufferFlags(kind),
		cl.MemFlags(size),
		nil,
		(*int32)(&errCode),
	)
	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not allocate buffer of size %d (errCode %d)", d.name, size, errCode)
	}
	return &Buffer{device: d, handle: handle, size: size}, nil
}

func (d *Device) CreateBufferWithData(data interface{}, kind compute.BufferType) (compute.Buffer, error) {
	dataPtr, dataLen := sliceData(data)

	var errCode cl.ErrorCode
	handle := cl.CreateBuffer(
		*d.ctx,
		bufferFlags(kind)|cl.MEM_COPY_HOST_PTR,
		cl.MemFlags(dataLen),
		dataPtr,
		(*int32)(&errCode),
	)
	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not allocate buffer of size %d (errCode %d)", d.name, dataLen, errCode)
	}
	return &Buffer{device: d, handle: handle, size: uint64(dataLen)}, nil
}

func (d *Device) DeleteBuffer(buf compute.Buffer) {
	b, ok := buf.(*Buffer)
	if !ok || b.handle == nil {
		return
	}
	cl.ReleaseMemObject(b.handle)
	b.handle = nil
	b.size = 0
}

// MapBuffer stages the requested region in host memory. Read mappings are
// filled with a blocking device read; write mappings are flushed back on
// unmap.
func (d *Device) MapBuffer(buf compute.Buffer, queue int, offset, size uint64, mode compute.MapType) ([]byte, compute.Event, error) {
	b, ok := buf.(*Buffer)
	if !ok {
		return nil, nil, fmt.Errorf("opencl device (%s): buffer was not created by this backend", d.name)
	}
	if offset > b.size {
		return nil, nil, fmt.Errorf("opencl device (%s): map offset %d exceeds buffer size %d", d.name, offset, b.size)
	}
	if size == 0 {
		size = b.size - offset
	}
	if offset+size > b.size {
		return nil, nil, fmt.Errorf("opencl device (%s): map region [%d, %d) exceeds buffer size %d", d.name, offset, offset+size, b.size)
	}
	if size == 0 {
		return nil, completedEvent(), nil
	}

	host := make([]byte, size)
	if mode == compute.MapRead {
		q, err := d.queue(queue)
		if err != nil {
			return nil, nil, err
		}
		errCode := cl.EnqueueReadBuffer(q, b.handle, cl.TRUE, offset, size, unsafe.Pointer(&host[0]), 0, nil, nil)
		if errCode != cl.SUCCESS {
			return nil, nil, fmt.Errorf("opencl device (%s): error copying device data to host buffer (errCode %d)", d.name, errCode)
		}
	}

	d.mu.Lock()
	if d.mappings == nil {
		d.mappings = make(map[*byte]mapping)
	}
	d.mappings[&host[0]] = mapping{buf: b, offset: offset, mode: mode}
	d.mu.Unlock()

	return host, completedEvent(), nil
}

func (d *Device) UnmapBuffer(buf compute.Buffer, queue int, mapped []byte) (compute.Event, error) {
	if len(mapped) == 0 {
		return completedEvent(), nil
	}

	d.mu.Lock()
	m, exists := d.mappings[&mapped[0]]
	delete(d.mappings, &mapped[0])
	d.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("opencl device (%s): unmap of a region that is not mapped", d.name)
	}

	if m.mode == compute.MapWrite {
		q, err := d.queue(queue)
		if err != nil {
			return nil, err
		}
		errCode := cl.EnqueueWriteBuffer(q, m.buf.handle, cl.TRUE, m.offset, uint64(len(mapped)), unsafe.Pointer(&mapped[0]), 0, nil, nil)
		if errCode != cl.SUCCESS {
			return nil, fmt.Errorf("opencl device (%s): error copying host data to device buffer (errCode %d)", d.name, errCode)
		}
	}
	return completedEvent(), nil
}

// Given an interface{} containing a slice return a pointer to its data and
// its length in bytes.
func sliceData(data interface{}) (unsafe.Pointer, int) {
	reflVal := reflect.ValueOf(data)
	if reflVal.Kind() != reflect.Slice {
		panic("sliceData: this function only supports slices")
	}
	if reflVal.Len() == 0 {
		panic("sliceData: supplied slice object is empty")
	}
	return unsafe.Pointer(reflVal.Index(0).Addr().Pointer()),
		reflVal.Len() * int(reflect.TypeOf(data).Elem().Size())
}
