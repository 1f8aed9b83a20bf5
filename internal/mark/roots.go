package mark

import (
	"sync"

	"github.com/heapcap/heapcap/internal/interfaces"
)

// Root is one registered GC root range: a contiguous span of memory the
// reachability scan treats as always-live and always scans for outgoing
// pointers.
type Root struct {
	Start  uintptr
	Length uint64
}

// RootSet is the mutex-guarded list of currently registered roots,
// mutated by the adapter's root-(un)registration callback and read by
// every mark pass.
type RootSet struct {
	mu    sync.Mutex
	roots map[uintptr]Root
}

// NewRootSet returns an empty root set.
func NewRootSet() *RootSet {
	return &RootSet{roots: make(map[uintptr]Root)}
}

// Register adds or replaces the root range starting at start. Roots
// reported from MONO_ROOT_SOURCE_STACK or MONO_ROOT_SOURCE_FINALIZER_QUEUE
// equivalents are ignored: Mono documents these as unsafe to register as
// a profiler root, since the stack and finalizer queue mutate out from
// under a scan that isn't the runtime's own.
func (s *RootSet) Register(start uintptr, length uint64, source interfaces.RootSource) {
	if source == interfaces.RootSourceStack || source == interfaces.RootSourceFinalizerQueue {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots[start] = Root{Start: start, Length: length}
}

// Unregister removes the root range starting at start, if present.
func (s *RootSet) Unregister(start uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roots, start)
}

// Snapshot returns a copy of the currently registered roots, safe to scan
// without holding the root set's own lock for the duration of the scan.
func (s *RootSet) Snapshot() []Root {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Root, 0, len(s.roots))
	for _, r := range s.roots {
		out = append(out, r)
	}
	return out
}
