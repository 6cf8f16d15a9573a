package bridge

type State int32

const (
	StateIdle State = iota
	StateReading
	StatePublishing
	StateDeviceOpenFailed
	StateTimedOut
	StatePublishFailed
	StateDeviceLost
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StatePublishing:
		return "publishing"
	case StateDeviceOpenFailed:
		return "device_open_failed"
	case StateTimedOut:
		return "timed_out"
	case StatePublishFailed:
		return "publish_failed"
	case StateDeviceLost:
		return "device_lost"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the loop has returned in this state.
func (s State) Terminal() bool {
	return s >= StateDeviceOpenFailed
}

// Stats counts what the loop saw since it started.
type Stats struct {
	LinesRead       uint64 `json:"lines_read"`
	ValuesPublished uint64 `json:"values_published"`
	LinesDiscarded  uint64 `json:"lines_discarded"`
	EmptyReads      uint64 `json:"empty_reads"`
	ReadErrors      uint64 `json:"read_errors"`
	// Milliseconds since the last valid value
	WatchdogElapsedMs int64 `json:"watchdog_elapsed_ms"`
}
