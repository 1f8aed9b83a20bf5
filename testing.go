package heapcap

import "github.com/heapcap/heapcap/internal/adapter"

// MockAdapter is a re-export of internal/adapter.MockAdapter for callers
// outside this module that want an in-memory Adapter without attaching to
// a real Mono or IL2CPP host process.
type MockAdapter = adapter.MockAdapter

// NewMockAdapter returns an empty mock adapter.
func NewMockAdapter() *MockAdapter {
	return adapter.NewMockAdapter()
}
