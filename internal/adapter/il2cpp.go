package adapter

import (
	"fmt"

	"github.com/heapcap/heapcap/internal/interfaces"
)

// IL2CPPSymbols mirrors MonoSymbols for a target built with IL2CPP
// ahead-of-time compilation instead of the Mono JIT. The shapes are the
// same; the two bindings are kept as distinct types because class and
// method metadata addressing differs enough between the two runtimes
// that sharing one struct would blur which symbol set an attach target
// actually needs.
type IL2CPPSymbols struct {
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

// IL2CPPAdapter binds the profiler core to an IL2CPP target.
type IL2CPPAdapter struct {
	sym IL2CPPSymbols
}

// NewIL2CPPAdapter wraps a resolved symbol set.
func NewIL2CPPAdapter(sym IL2CPPSymbols) *IL2CPPAdapter {
	return &IL2CPPAdapter{sym: sym}
}

func (a *IL2CPPAdapter) Resolve(name string) (uintptr, error) {
	return 0, fmt.Errorf("adapter: il2cpp: symbol resolution happens at attach time, not queryable as %q", name)
}

func (a *IL2CPPAdapter) InstallAllocCallback(cb interfaces.AllocCallback) error {
	return a.sym.InstallAlloc(cb)
}

func (a *IL2CPPAdapter) InstallGCCallback(cb interfaces.GCCallback) error {
	return a.sym.InstallGC(cb)
}

func (a *IL2CPPAdapter) InstallRootCallback(cb interfaces.RootCallback) error {
	return a.sym.InstallRoot(cb)
}

func (a *IL2CPPAdapter) WalkStack(obj interfaces.ObjectHandle) []interfaces.MethodHandle {
	return a.sym.WalkStack(obj)
}

func (a *IL2CPPAdapter) ObjectSize(obj interfaces.ObjectHandle) uint32 {
	return a.sym.ObjectSize(obj)
}

func (a *IL2CPPAdapter) ClassName(class interfaces.ClassHandle) string {
	ns, name := a.sym.ClassName(class)
	return FormatClassName(ns, name)
}

func (a *IL2CPPAdapter) MethodName(m interfaces.MethodHandle) string {
	class, method := a.sym.MethodName(m)
	return FormatMethodName(class, method)
}

func (a *IL2CPPAdapter) ReadMemory(addr uint64, length int) ([]byte, bool) {
	return a.sym.ReadMemory(addr, length)
}

var _ interfaces.Adapter = (*IL2CPPAdapter)(nil)
