package adapter

import (
	"fmt"

	"github.com/heapcap/heapcap/internal/interfaces"
)

// MonoSymbols is the set of host-runtime entry points a Mono binding
// needs, resolved once at attach time by whatever loads the profiler
// into the target process (dlsym/GetProcAddress equivalent). The actual
// in-process attach mechanism is platform- and build-specific and lives
// outside this module; MonoAdapter only needs the resolved function
// values.
type MonoSymbols struct {
	ReadMemory   func(addr uint64, length int) ([]byte, bool)
	ObjectSize   func(obj interfaces.ObjectHandle) uint32
	ClassOf      func(obj interfaces.ObjectHandle) interfaces.ClassHandle
	ClassName    func(class interfaces.ClassHandle) (namespace, name string)
	MethodName   func(m interfaces.MethodHandle) (class, method string)
	WalkStack    func(obj interfaces.ObjectHandle) []interfaces.MethodHandle
	InstallAlloc func(interfaces.AllocCallback) error
	InstallGC    func(interfaces.GCCallback) error
	InstallRoot  func(interfaces.RootCallback) error
}

// MonoAdapter binds the profiler core to a Mono runtime (the engine
// behind Unity's "Mono" scripting backend) via resolved host symbols.
type MonoAdapter struct {
	sym MonoSymbols
}

// NewMonoAdapter wraps a resolved symbol set.
func NewMonoAdapter(sym MonoSymbols) *MonoAdapter {
	return &MonoAdapter{sym: sym}
}

func (a *MonoAdapter) Resolve(name string) (uintptr, error) {
	return 0, fmt.Errorf("adapter: mono: symbol resolution happens at attach time, not queryable as %q", name)
}

func (a *MonoAdapter) InstallAllocCallback(cb interfaces.AllocCallback) error {
	return a.sym.InstallAlloc(cb)
}

func (a *MonoAdapter) InstallGCCallback(cb interfaces.GCCallback) error {
	return a.sym.InstallGC(cb)
}

func (a *MonoAdapter) InstallRootCallback(cb interfaces.RootCallback) error {
	return a.sym.InstallRoot(cb)
}

func (a *MonoAdapter) WalkStack(obj interfaces.ObjectHandle) []interfaces.MethodHandle {
	return a.sym.WalkStack(obj)
}

func (a *MonoAdapter) ObjectSize(obj interfaces.ObjectHandle) uint32 {
	return a.sym.ObjectSize(obj)
}

func (a *MonoAdapter) ClassName(class interfaces.ClassHandle) string {
	ns, name := a.sym.ClassName(class)
	return FormatClassName(ns, name)
}

func (a *MonoAdapter) MethodName(m interfaces.MethodHandle) string {
	class, method := a.sym.MethodName(m)
	return FormatMethodName(class, method)
}

func (a *MonoAdapter) ReadMemory(addr uint64, length int) ([]byte, bool) {
	return a.sym.ReadMemory(addr, length)
}

var _ interfaces.Adapter = (*MonoAdapter)(nil)
