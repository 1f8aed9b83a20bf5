package heapcap

import "github.com/heapcap/heapcap/internal/constants"

// Re-exported tunable defaults; see internal/constants for rationale.
const (
	PendingReserve        = constants.PendingReserve
	FlushThreshold        = constants.FlushThreshold
	NoFrame               = constants.NoFrame
	DefaultStepBytes      = constants.DefaultStepBytes
	DefaultQueueCapacity  = constants.DefaultQueueCapacity
)
