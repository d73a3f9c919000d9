package soft

import (
	"sync/atomic"
	"testing"

	"github.com/glowray/shortstack/compute"
)

func init() {
	RegisterProgram("test-grid", map[string]KernelFunc{
		"mark": func(inv *Invocation) {
			out := inv.Buffer(0).Bytes()
			if inv.GlobalID < len(out) {
				out[inv.GlobalID]++
			}
		},
		"scale": func(inv *Invocation) {
			data := inv.Buffer(0).Bytes()
			factor := byte(inv.Define("FACTOR"))
			if inv.GlobalID < len(data) {
				data[inv.GlobalID] *= factor
			}
		},
	})
}

func TestBufferAllocation(t *testing.T) {
	dev := NewDevice(Options{Spec: compute.DeviceSpec{MaxAllocSize: 64}})
	defer dev.Close()

	buf, err := dev.CreateBuffer(64, compute.BufferReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Size() != 64 {
		t.Fatalf("expected buffer size 64; got %d", buf.Size())
	}

	if _, err = dev.CreateBuffer(65, compute.BufferRead); err == nil {
		t.Fatalf("expected an allocation above MaxAllocSize to fail")
	}
	dev.DeleteBuffer(buf)
}

func TestCreateBufferWithData(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	src := []int32{1, -2, 3, -4}
	buf, err := dev.CreateBufferWithData(src, compute.BufferRead)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Size() != 16 {
		t.Fatalf("expected 16 bytes for 4 int32 values; got %d", buf.Size())
	}

	mapped, ev, err := dev.MapBuffer(buf, 0, 4, 4, compute.MapRead)
	if err != nil {
		t.Fatal(err)
	}
	if err = ev.Wait(); err != nil {
		t.Fatal(err)
	}
	exp := []byte{0xfe, 0xff, 0xff, 0xff} // -2 little endian
	for i, b := range mapped {
		if b != exp[i] {
			t.Fatalf("expected mapped byte %d to be %#x; got %#x", i, exp[i], b)
		}
	}
	if _, err = dev.UnmapBuffer(buf, 0, mapped); err != nil {
		t.Fatal(err)
	}

	if _, _, err = dev.MapBuffer(buf, 0, 8, 16, compute.MapRead); err == nil {
		t.Fatalf("expected an out-of-range map to fail")
	}
}

func TestMapBufferRemainder(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	buf, err := dev.CreateBufferWithData([]int32{1, 2, 3, 4}, compute.BufferRead)
	if err != nil {
		t.Fatal(err)
	}

	mapped, ev, err := dev.MapBuffer(buf, 0, 8, 0, compute.MapRead)
	if err != nil {
		t.Fatal(err)
	}
	if err = ev.Wait(); err != nil {
		t.Fatal(err)
	}
	if len(mapped) != 8 {
		t.Fatalf("expected a zero size to map the 8 remaining bytes; got %d", len(mapped))
	}
	if _, err = dev.UnmapBuffer(buf, 0, mapped); err != nil {
		t.Fatal(err)
	}

	if _, _, err = dev.MapBuffer(buf, 0, 32, 0, compute.MapRead); err == nil {
		t.Fatalf("expected a map offset past the buffer end to fail")
	}
}

func TestProgramRegistry(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	if _, err := dev.CompileProgram("no-such-program", ""); err == nil {
		t.Fatalf("expected an unregistered program to fail compilation")
	}

	prog, err := dev.CompileProgram("test-grid", "-D FACTOR=3 -cl-fast-relaxed-math")
	if err != nil {
		t.Fatal(err)
	}
	if _, err = prog.Kernel("no-such-kernel"); err == nil {
		t.Fatalf("expected an unknown kernel name to fail")
	}

	kernel, err := prog.Kernel("scale")
	if err != nil {
		t.Fatal(err)
	}

	data, err := dev.CreateBufferWithData([]byte{1, 2, 3, 4}, compute.BufferReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	if err = kernel.SetArgs(data); err != nil {
		t.Fatal(err)
	}

	ev, err := dev.Execute(kernel, 0, 4, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = ev.Wait(); err != nil {
		t.Fatal(err)
	}

	out := data.(*Buffer).Bytes()
	for i, exp := range []byte{3, 6, 9, 12} {
		if out[i] != exp {
			t.Fatalf("expected element %d to be scaled to %d; got %d", i, exp, out[i])
		}
	}
}

func TestExecuteCoversGrid(t *testing.T) {
	dev := NewDevice(Options{NumWorkers: 4})
	defer dev.Close()

	prog, err := dev.CompileProgram("test-grid", "")
	if err != nil {
		t.Fatal(err)
	}
	kernel, err := prog.Kernel("mark")
	if err != nil {
		t.Fatal(err)
	}

	const globalSize = 1024
	out, err := dev.CreateBuffer(globalSize, compute.BufferWrite)
	if err != nil {
		t.Fatal(err)
	}
	if err = kernel.SetArgs(out); err != nil {
		t.Fatal(err)
	}

	if _, err = dev.Execute(kernel, 0, globalSize, 100, nil); err == nil {
		t.Fatalf("expected a local size that does not divide the grid to fail")
	}

	ev, err := dev.Execute(kernel, 0, globalSize, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = ev.Wait(); err != nil {
		t.Fatal(err)
	}

	for gid, hits := range out.(*Buffer).Bytes() {
		if hits != 1 {
			t.Fatalf("expected global id %d to run exactly once; ran %d times", gid, hits)
		}
	}
}

func TestExecuteOrdering(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	var order int64
	RegisterProgram("test-ordering", map[string]KernelFunc{
		"first": func(inv *Invocation) {
			atomic.CompareAndSwapInt64(&order, 0, 1)
		},
		"second": func(inv *Invocation) {
			atomic.CompareAndSwapInt64(&order, 1, 2)
		},
	})

	prog, err := dev.CompileProgram("test-ordering", "")
	if err != nil {
		t.Fatal(err)
	}
	first, err := prog.Kernel("first")
	if err != nil {
		t.Fatal(err)
	}
	second, err := prog.Kernel("second")
	if err != nil {
		t.Fatal(err)
	}

	ev1, err := dev.Execute(first, 0, 1, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	ev2, err := dev.Execute(second, 0, 1, 1, ev1)
	if err != nil {
		t.Fatal(err)
	}
	if err = ev2.Wait(); err != nil {
		t.Fatal(err)
	}
	if err = dev.Finish(0); err != nil {
		t.Fatal(err)
	}

	if atomic.LoadInt64(&order) != 2 {
		t.Fatalf("expected the dependent launch to observe the first one; got order marker %d", order)
	}
}

func TestSetArgsValidation(t *testing.T) {
	dev := NewDevice(Options{})
	defer dev.Close()

	prog, err := dev.CompileProgram("test-grid", "")
	if err != nil {
		t.Fatal(err)
	}
	kernel, err := prog.Kernel("mark")
	if err != nil {
		t.Fatal(err)
	}

	if err = kernel.SetArgs(int32(1), uint32(2), float32(3)); err != nil {
		t.Fatal(err)
	}
	if err = kernel.SetArgs("not a supported type"); err == nil {
		t.Fatalf("expected an unsupported arg type to be rejected")
	}
}
