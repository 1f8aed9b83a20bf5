// Package interfaces provides internal interface definitions for heapcap.
// These are separate from the public interfaces to avoid circular imports
// between the root package and internal packages.
package interfaces

// ClassHandle identifies a runtime class/type. Opaque to the core; only the
// Adapter knows how to turn one into a name.
type ClassHandle uint64

// MethodHandle identifies one frame of a captured call stack.
type MethodHandle uint64

// ObjectHandle identifies a live managed object by address. The core treats
// it as a plain integer; only the Adapter dereferences it.
type ObjectHandle uint64

// AllocCallback is invoked by the Adapter on every managed allocation.
type AllocCallback func(frame uint64, class ClassHandle, obj ObjectHandle, size uint32)

// GCCallback is invoked by the Adapter when the host runtime notifies the
// profiler of a GC boundary.
type GCCallback func(frame uint64)

// RootSource classifies where a registered root range comes from. Mono
// (and IL2CPP, which mirrors its root-source vocabulary) reports this
// alongside every root (un)registration; the profiler must not treat
// every source as a scannable root.
type RootSource int

const (
	// RootSourceExternal is a root registered explicitly by embedding
	// code (the common case for a non-Mono-internal root).
	RootSourceExternal RootSource = iota
	// RootSourceStack is a managed thread's stack. Mono documents these
	// as unsafe to register as a profiler root: the stack moves and
	// shrinks continuously between the registration callback firing and
	// any scan that would read it.
	RootSourceStack
	// RootSourceFinalizerQueue is the finalizer queue's internal root.
	// Scanning it races the finalizer thread the same way the stack
	// does.
	RootSourceFinalizerQueue
	// RootSourceOther covers every other Mono root source (static
	// fields, GC handles, and similar) not otherwise distinguished
	// here.
	RootSourceOther
)

// RootCallback is invoked when the host runtime registers or unregisters a
// GC root range, tagged with the source Mono reports it under.
type RootCallback func(start uintptr, length uint64, source RootSource)

// Adapter is the capability set a concrete runtime binding (Mono, IL2CPP,
// or a test double) must provide. The core depends only on this interface;
// it never talks to the host runtime directly.
type Adapter interface {
	// Resolve looks up a host-runtime exported symbol by name.
	Resolve(name string) (uintptr, error)

	// InstallAllocCallback registers the hook invoked on every allocation.
	InstallAllocCallback(cb AllocCallback) error
	// InstallGCCallback registers the hook invoked on GC boundaries.
	InstallGCCallback(cb GCCallback) error
	// InstallRootCallback registers the hook invoked on root (un)registration.
	InstallRootCallback(cb RootCallback) error

	// WalkStack captures the mutator's current call stack as a sequence of
	// method handles, caller-first.
	WalkStack(obj ObjectHandle) []MethodHandle

	// ObjectSize returns the size in bytes of a live object.
	ObjectSize(obj ObjectHandle) uint32
	// ClassName returns "Namespace.ClassName" for a class handle.
	ClassName(class ClassHandle) string
	// MethodName returns "Class.method" for one call stack frame.
	MethodName(m MethodHandle) string

	// ReadMemory reads length bytes starting at addr. ok is false when the
	// read would fault (the address is unmapped or was freed behind the
	// tracker's back); in that case the returned slice is meaningless.
	ReadMemory(addr uint64, length int) (data []byte, ok bool)
}

// Logger is the narrow logging surface used throughout the core.
type Logger interface {
	Debugf(format string, args ...interface{})
	Printf(format string, args ...interface{})
}

// Observer receives operational metrics. Implementations must be
// thread-safe: methods are called from the worker goroutine, the transport
// goroutine, and mutator-side callbacks concurrently.
type Observer interface {
	ObserveAlloc(size uint64)
	ObserveFree(size uint64)
	ObserveMarkPass(durationNs uint64, scanned, freed int)
	ObserveQueueDepth(depth uint32)
	ObserveFrameFlush(events int, durationNs uint64)
}
