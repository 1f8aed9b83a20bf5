package mark

import (
	"testing"

	"github.com/heapcap/heapcap/internal/interfaces"
)

func TestRootSetIgnoresStackAndFinalizerQueueSources(t *testing.T) {
	s := NewRootSet()
	s.Register(0x100, 8, interfaces.RootSourceStack)
	s.Register(0x200, 8, interfaces.RootSourceFinalizerQueue)
	s.Register(0x300, 8, interfaces.RootSourceExternal)
	s.Register(0x400, 8, interfaces.RootSourceOther)

	got := s.Snapshot()
	if len(got) != 2 {
		t.Fatalf("want 2 registered roots (stack and finalizer-queue sources dropped), got %d: %+v", len(got), got)
	}
	seen := map[uintptr]bool{}
	for _, r := range got {
		seen[r.Start] = true
	}
	if !seen[0x300] || !seen[0x400] {
		t.Fatalf("expected external and other sourced roots to survive, got %+v", got)
	}
	if seen[0x100] || seen[0x200] {
		t.Fatalf("expected stack/finalizer-queue sourced roots to be dropped, got %+v", got)
	}
}
