package adapter

import (
	"sync"

	"github.com/heapcap/heapcap/internal/interfaces"
)

// MockAdapter is an in-memory interfaces.Adapter for tests: class and
// method names are registered up front, memory reads are served from a
// plain map, and calls to Resolve, ReadMemory, ClassName and MethodName
// are counted for test assertions.
type MockAdapter struct {
	mu sync.Mutex

	classes map[interfaces.ClassHandle]string
	methods map[interfaces.MethodHandle]string
	mem     map[uint64][]byte
	sizes   map[interfaces.ObjectHandle]uint32
	stacks  map[interfaces.ObjectHandle][]interfaces.MethodHandle

	allocCB interfaces.AllocCallback
	gcCB    interfaces.GCCallback
	rootCB  interfaces.RootCallback

	ResolveCalls    int
	ReadMemoryCalls int
	ClassNameCalls  int
	MethodNameCalls int
}

// NewMockAdapter returns an empty mock adapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		classes: make(map[interfaces.ClassHandle]string),
		methods: make(map[interfaces.MethodHandle]string),
		mem:     make(map[uint64][]byte),
		sizes:   make(map[interfaces.ObjectHandle]uint32),
		stacks:  make(map[interfaces.ObjectHandle][]interfaces.MethodHandle),
	}
}

// SetClassName registers the display name for a class handle.
func (m *MockAdapter) SetClassName(class interfaces.ClassHandle, namespace, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[class] = FormatClassName(namespace, name)
}

// SetMethodName registers the display name for a call-stack frame.
func (m *MockAdapter) SetMethodName(method interfaces.MethodHandle, class, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods[method] = FormatMethodName(class, name)
}

// SetMemory installs the bytes visible at addr, for reachability tests.
func (m *MockAdapter) SetMemory(addr uint64, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mem[addr] = data
}

// SetObjectSize fixes ObjectSize's answer for obj.
func (m *MockAdapter) SetObjectSize(obj interfaces.ObjectHandle, size uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes[obj] = size
}

// SetStack fixes WalkStack's answer for obj.
func (m *MockAdapter) SetStack(obj interfaces.ObjectHandle, stack []interfaces.MethodHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stacks[obj] = stack
}

// FireAlloc invokes the installed allocation callback, simulating the
// host runtime reporting an allocation.
func (m *MockAdapter) FireAlloc(frame uint64, class interfaces.ClassHandle, obj interfaces.ObjectHandle, size uint32) {
	m.mu.Lock()
	cb := m.allocCB
	m.mu.Unlock()
	if cb != nil {
		cb(frame, class, obj, size)
	}
}

// FireGC invokes the installed GC callback.
func (m *MockAdapter) FireGC(frame uint64) {
	m.mu.Lock()
	cb := m.gcCB
	m.mu.Unlock()
	if cb != nil {
		cb(frame)
	}
}

// FireRoot invokes the installed root callback.
func (m *MockAdapter) FireRoot(start uintptr, length uint64, source interfaces.RootSource) {
	m.mu.Lock()
	cb := m.rootCB
	m.mu.Unlock()
	if cb != nil {
		cb(start, length, source)
	}
}

func (m *MockAdapter) Resolve(name string) (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResolveCalls++
	return 0, nil
}

func (m *MockAdapter) InstallAllocCallback(cb interfaces.AllocCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocCB = cb
	return nil
}

func (m *MockAdapter) InstallGCCallback(cb interfaces.GCCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gcCB = cb
	return nil
}

func (m *MockAdapter) InstallRootCallback(cb interfaces.RootCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rootCB = cb
	return nil
}

func (m *MockAdapter) WalkStack(obj interfaces.ObjectHandle) []interfaces.MethodHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stacks[obj]
}

func (m *MockAdapter) ObjectSize(obj interfaces.ObjectHandle) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sizes[obj]
}

func (m *MockAdapter) ClassName(class interfaces.ClassHandle) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClassNameCalls++
	if name, ok := m.classes[class]; ok {
		return name
	}
	return FormatClassName("", "Unknown")
}

func (m *MockAdapter) MethodName(method interfaces.MethodHandle) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MethodNameCalls++
	if name, ok := m.methods[method]; ok {
		return name
	}
	return FormatMethodName("Unknown", "Unknown")
}

func (m *MockAdapter) ReadMemory(addr uint64, length int) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadMemoryCalls++
	data, ok := m.mem[addr]
	if !ok || len(data) < length {
		return nil, false
	}
	return data[:length], true
}

var _ interfaces.Adapter = (*MockAdapter)(nil)
