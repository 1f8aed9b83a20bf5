// Package track holds the server-side live-allocation table: the
// worker's per-address view of everything currently allocated in the
// target process, annotated with the mark-and-sweep flags and parent
// edges the reachability engine needs.
package track

import (
	"sync"

	"github.com/heapcap/heapcap/internal/interfaces"
)

// Flags are per-allocation mark-and-sweep bits, named after spec.md's
// normalized terms rather than the original instrumentation's.
type Flags uint8

const (
	// FlagAllocated marks an entry as currently live. Cleared at the start
	// of every mark pass and re-set while scanning from roots; anything
	// still clear after the scan is garbage.
	FlagAllocated Flags = 1 << iota
	// FlagVisited marks an entry as already pushed during a reference
	// query, deduping cycles in the parents walk. The mark phase clears it
	// but dedupes on FlagAllocated instead.
	FlagVisited
	// FlagRoot marks an object that a word of a registered root range
	// points at directly.
	FlagRoot
)

// Allocation is one live object tracked by the worker.
type Allocation struct {
	Addr    uint64
	Size    uint32
	Class   interfaces.ClassHandle
	Frame   uint64
	Stack   []interfaces.MethodHandle
	Flags   Flags
	Parents []uint64
}

// Table is the worker's address -> Allocation map. Its mutex is exported
// through Lock/Unlock so the mark-and-sweep and find-references code,
// which may run on whatever goroutine handles a GC notification or a
// query, can hold it across a multi-step scan exactly like the original
// worker's single gc_mutex.
type Table struct {
	mu   sync.Mutex
	objs map[uint64]*Allocation
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{objs: make(map[uint64]*Allocation)}
}

// Lock acquires the table for a multi-step scan (mark-and-sweep or a
// reference query). Callers must Unlock when done.
func (t *Table) Lock() { t.mu.Lock() }

// Unlock releases a held Lock.
func (t *Table) Unlock() { t.mu.Unlock() }

// PutResult reports what Put found already occupying the address.
type PutResult struct {
	// Reallocated is true when the address was already live. Prev holds
	// the entry that was there; the caller emits a synthetic FREE for
	// Prev.Size before the new allocation's ALLOC is recorded downstream.
	Reallocated bool
	Prev        Allocation
}

// Put records a new allocation at addr, locking internally. If addr is
// already present (the table holds only live entries, so presence means
// the address was allocated again without an intervening FREE) the
// previous entry is returned via PutResult so the caller can synthesize
// the implied FREE event at the previous size.
func (t *Table) Put(addr uint64, size uint32, class interfaces.ClassHandle, frame uint64, stack []interfaces.MethodHandle) PutResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res PutResult
	if prev, ok := t.objs[addr]; ok {
		res.Reallocated = true
		res.Prev = *prev
	}

	t.objs[addr] = &Allocation{
		Addr:  addr,
		Size:  size,
		Class: class,
		Frame: frame,
		Stack: stack,
		Flags: FlagAllocated,
	}
	return res
}

// Delete removes addr from the table. Returns false if it was not
// present.
func (t *Table) Delete(addr uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.objs[addr]; !ok {
		return false
	}
	delete(t.objs, addr)
	return true
}

// Get returns a pointer to the stored entry at addr, if present, so
// changes made through it (flags, parents) land in the table. Intended for
// callers that already hold the lock (e.g. the mark engine); Get itself
// does not lock, so it must only be called between Lock/Unlock.
func (t *Table) Get(addr uint64) (*Allocation, bool) {
	a, ok := t.objs[addr]
	return a, ok
}

// Len returns the number of live entries. Locks internally.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.objs)
}

// Range calls fn for every entry. The caller must already hold Lock;
// fn must not mutate the map.
func (t *Table) Range(fn func(*Allocation)) {
	for _, a := range t.objs {
		fn(a)
	}
}

// DeleteUnlocked removes addr without locking. Caller must hold Lock,
// used by the sweep phase while it already owns the table.
func (t *Table) DeleteUnlocked(addr uint64) {
	delete(t.objs, addr)
}
