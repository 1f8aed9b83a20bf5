package mark

import (
	"strings"
	"testing"

	"github.com/heapcap/heapcap/internal/interfaces"
	"github.com/heapcap/heapcap/internal/track"
)

func namer(a track.Allocation) string { return "Foo.Bar" }

func TestFindReferencesDeleted(t *testing.T) {
	tbl := track.NewTable()
	roots := NewRootSet()
	reader := NewSafeReader(newFakeAdapter())
	engine := NewEngine(DefaultConfig())

	results := FindReferences(tbl, engine, roots, reader, 1, []uint64{0x9999}, namer)
	if len(results) != 1 || results[0].Type != "(Deleted)" {
		t.Fatalf("want single (Deleted) entry, got %+v", results)
	}
}

// TestFindReferencesAnnotatesDeletedAfterUnreachedMark covers an entry
// that is still present in the table but was not reached by the mark
// pass FindReferences triggers: FindReferences calls DoGC with
// onlyUpdateParents=true, which clears FlagAllocated on anything
// unreached without sweeping it out of the table, so a stale entry like
// this is a distinct case from the "never existed" (!ok) one above.
func TestFindReferencesAnnotatesDeletedAfterUnreachedMark(t *testing.T) {
	tbl := track.NewTable()
	tbl.Put(0x1000, 8, 0, 1, nil)

	// No root points at 0x1000, so the mark pass FindReferences triggers
	// leaves it unreached.
	roots := NewRootSet()
	reader := NewSafeReader(newFakeAdapter())
	engine := NewEngine(DefaultConfig())

	results := FindReferences(tbl, engine, roots, reader, 1, []uint64{0x1000}, namer)
	if len(results) != 1 {
		t.Fatalf("want 1 result, got %d", len(results))
	}
	if !strings.Contains(results[0].Type, "(Deleted)") {
		t.Fatalf("want (Deleted) annotation on unreached-but-present entry, got %q", results[0].Type)
	}
	if results[0].Type == "(Deleted)" {
		t.Fatalf("want type name preserved alongside the annotation, got bare %q", results[0].Type)
	}

	obj, ok := tbl.Get(0x1000)
	if !ok {
		t.Fatal("entry should still be present in the table: onlyUpdateParents mark passes don't sweep")
	}
	if obj.Flags&track.FlagAllocated != 0 {
		t.Fatal("want FlagAllocated cleared on an entry unreached by the mark pass")
	}
}

func TestFindReferencesAnnotatesRoot(t *testing.T) {
	tbl := track.NewTable()
	tbl.Put(0x1000, 8, 0, 1, nil)

	adapter := newFakeAdapter()
	adapter.putWord(0x500, 0x1000)
	roots := NewRootSet()
	roots.Register(0x500, 8, interfaces.RootSourceExternal)

	reader := NewSafeReader(adapter)
	engine := NewEngine(DefaultConfig())

	results := FindReferences(tbl, engine, roots, reader, 1, []uint64{0x1000}, namer)
	if len(results) != 1 {
		t.Fatalf("want 1 result, got %d", len(results))
	}
	if !strings.Contains(results[0].Type, "(Root)") {
		t.Fatalf("want Root annotation, got %q", results[0].Type)
	}
}

func TestFindReferencesWalksParentsAndDedupes(t *testing.T) {
	tbl := track.NewTable()
	tbl.Put(0x1000, 16, 0, 1, nil)
	tbl.Put(0x2000, 16, 0, 1, nil)
	tbl.Put(0x3000, 8, 0, 1, nil)

	adapter := newFakeAdapter()
	adapter.putWord(0x500, 0x1000)
	adapter.putWord(0x1000, 0x3000)
	adapter.putWord(0x1008, 0x3000) // second pointer to same child, two parent edges from 0x1000
	adapter.putWord(0x2000, 0x3000)

	roots := NewRootSet()
	roots.Register(0x500, 8, interfaces.RootSourceExternal)
	reader := NewSafeReader(adapter)
	engine := NewEngine(DefaultConfig())

	// Seed 0x2000 as reachable too, by adding it to roots directly.
	roots.Register(0x504, 8, interfaces.RootSourceExternal)
	adapter.putWord(0x504, 0x2000)

	results := FindReferences(tbl, engine, roots, reader, 1, []uint64{0x3000}, namer)

	// Entry for 0x3000 plus exactly one entry per distinct parent
	// (0x1000, 0x2000), even though 0x1000 points to 0x3000 twice and
	// both parents share a child.
	seen := map[uint64]int{}
	for _, r := range results {
		seen[r.Addr]++
	}
	if seen[0x3000] != 1 {
		t.Fatalf("want exactly one entry for 0x3000, got %d", seen[0x3000])
	}
	if seen[0x1000] > 1 || seen[0x2000] > 1 {
		t.Fatalf("parent dedup failed: %v", seen)
	}
}

func TestFindReferencesClearsVisitedAcrossCalls(t *testing.T) {
	tbl := track.NewTable()
	tbl.Put(0x1000, 8, 0, 1, nil)
	adapter := newFakeAdapter()
	adapter.putWord(0x500, 0x1000)
	roots := NewRootSet()
	roots.Register(0x500, 8, interfaces.RootSourceExternal)
	reader := NewSafeReader(adapter)
	engine := NewEngine(DefaultConfig())

	first := FindReferences(tbl, engine, roots, reader, 1, []uint64{0x1000}, namer)
	second := FindReferences(tbl, engine, roots, reader, 1, []uint64{0x1000}, namer)
	if len(first) != len(second) {
		t.Fatalf("repeated query gave different result counts: %d vs %d", len(first), len(second))
	}
}
