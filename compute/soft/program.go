package soft

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/glowray/shortstack/compute"
)

// Invocation carries the per-thread state a kernel function sees.
type Invocation struct {
	// Bound positional arguments: *Buffer, int32, uint32 or float32.
	Args []interface{}

	// Compile-time constants parsed from the program's "-D NAME=VALUE"
	// build options.
	Defines map[string]int32

	GlobalID   int
	GlobalSize int
	LocalSize  int
}

// Look up a build-option define. Missing defines report zero.
func (inv *Invocation) Define(name string) int32 {
	return inv.Defines[name]
}

// Buffer argument at position index.
func (inv *Invocation) Buffer(index int) *Buffer {
	return inv.Args[index].(*Buffer)
}

// KernelFunc is the host analogue of a device kernel entry point. It is
// called once per global id and must only write state derived from its
// own id.
type KernelFunc func(inv *Invocation)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]map[string]KernelFunc)
)

// Register the kernel entry points of a named program. The name stands in
// for kernel source: CompileProgram resolves it through this registry.
// Registering the same program twice panics.
func RegisterProgram(name string, kernels map[string]KernelFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("soft: program %q already registered", name))
	}
	registry[name] = kernels
}

type Program struct {
	name    string
	kernels map[string]KernelFunc
	defines map[string]int32
}

// Resolve a registered program. The source argument is the registry name.
// Build options of the form "-D NAME=VALUE" become integer defines visible
// to kernel invocations; other option tokens are ignored.
func (d *Device) CompileProgram(source string, options string) (compute.Program, error) {
	registryMu.RLock()
	kernels, exists := registry[source]
	registryMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("soft device (%s): no registered program %q", d.name, source)
	}
	return &Program{name: source, kernels: kernels, defines: parseDefines(options)}, nil
}

func parseDefines(options string) map[string]int32 {
	defines := make(map[string]int32)
	tokens := strings.Fields(options)
	for i, token := range tokens {
		if token != "-D" || i+1 >= len(tokens) {
			continue
		}
		name, value, found := strings.Cut(tokens[i+1], "=")
		if !found {
			defines[name] = 1
			continue
		}
		if v, err := strconv.ParseInt(value, 10, 32); err == nil {
			defines[name] = int32(v)
		}
	}
	return defines
}

func (p *Program) Kernel(name string) (compute.Kernel, error) {
	fn, exists := p.kernels[name]
	if !exists {
		return nil, fmt.Errorf("soft: program %q defines no kernel %q", p.name, name)
	}
	return &Kernel{name: name, fn: fn, defines: p.defines}, nil
}

func (p *Program) Release() {}

// Kernel is a registered kernel function plus its bound arguments.
type Kernel struct {
	name    string
	fn      KernelFunc
	defines map[string]int32
	args    []interface{}
}

func (k *Kernel) SetArgs(args ...interface{}) error {
	for i, arg := range args {
		switch arg.(type) {
		case *Buffer, int32, uint32, float32:
		case compute.Buffer:
			return fmt.Errorf("soft: arg %d of kernel %s is a buffer from another backend", i, k.name)
		default:
			return fmt.Errorf("soft: unsupported arg type %T at position %d for kernel %s", arg, i, k.name)
		}
	}
	k.args = append(k.args[:0], args...)
	return nil
}

func (k *Kernel) Release() {}
