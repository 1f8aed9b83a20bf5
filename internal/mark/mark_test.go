package mark

import (
	"encoding/binary"

	"github.com/heapcap/heapcap/internal/interfaces"
)

// fakeAdapter is a byte-addressable in-memory space for testing the
// scanner without a real runtime. Only ReadMemory is exercised by mark;
// the rest satisfy interfaces.Adapter.
type fakeAdapter struct {
	mem map[uint64][]byte
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{mem: make(map[uint64][]byte)}
}

// putWord writes a little-endian 8-byte pointer value at addr.
func (f *fakeAdapter) putWord(addr, value uint64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	f.mem[addr] = buf
}

func (f *fakeAdapter) ReadMemory(addr uint64, length int) ([]byte, bool) {
	data, ok := f.mem[addr]
	if !ok || len(data) < length {
		return nil, false
	}
	return data[:length], true
}

func (f *fakeAdapter) Resolve(name string) (uintptr, error)                { return 0, nil }
func (f *fakeAdapter) InstallAllocCallback(interfaces.AllocCallback) error { return nil }
func (f *fakeAdapter) InstallGCCallback(interfaces.GCCallback) error       { return nil }
func (f *fakeAdapter) InstallRootCallback(interfaces.RootCallback) error   { return nil }
func (f *fakeAdapter) WalkStack(interfaces.ObjectHandle) []interfaces.MethodHandle {
	return nil
}
func (f *fakeAdapter) ObjectSize(interfaces.ObjectHandle) uint32  { return 0 }
func (f *fakeAdapter) ClassName(interfaces.ClassHandle) string    { return "" }
func (f *fakeAdapter) MethodName(interfaces.MethodHandle) string  { return "" }

var _ interfaces.Adapter = (*fakeAdapter)(nil)
